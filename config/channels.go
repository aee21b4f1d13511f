package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/b-open-io/backplane/store"
)

// ChannelsKey is the store hash holding per-channel settings.
const ChannelsKey = "backplane:channels"

// AnyChannel is the settings entry applied to channels without their own.
const AnyChannel = "*"

// ChannelSettings defines what HTTP clients may do on a channel
type ChannelSettings struct {
	Subscribe bool `json:"subscribe"` // Server-Sent Events streaming
	Publish   bool `json:"publish"`   // POST publishing
}

// Channels maps channel names to their settings. An empty map allows
// everything.
type Channels map[string]ChannelSettings

// Lookup returns the settings for channel, falling back to AnyChannel.
func (c Channels) Lookup(channel string) ChannelSettings {
	if len(c) == 0 {
		return ChannelSettings{Subscribe: true, Publish: true}
	}
	if s, ok := c[channel]; ok {
		return s
	}
	return c[AnyChannel]
}

// LoadChannels reads channel settings from the store. Entries that fail to
// parse are logged and skipped.
func LoadChannels(ctx context.Context, s store.Store, logger *slog.Logger) (Channels, error) {
	if s == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	data, err := s.HGetAll(ctx, ChannelsKey)
	if err != nil {
		return nil, fmt.Errorf("load channel settings: %w", err)
	}

	channels := make(Channels, len(data))
	for channel, settingsJSON := range data {
		var settings ChannelSettings
		if err := json.Unmarshal([]byte(settingsJSON), &settings); err != nil {
			logger.Warn("skipping malformed channel settings", "channel", channel, "error", err)
			continue
		}
		channels[channel] = settings
	}
	logger.Info("channel settings loaded", "channels", len(channels))
	return channels, nil
}

// SaveChannel stores the settings for one channel.
func SaveChannel(ctx context.Context, s store.Store, channel string, settings ChannelSettings) error {
	b, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return s.HSet(ctx, ChannelsKey, channel, string(b))
}
