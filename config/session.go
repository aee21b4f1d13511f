package config

import (
	"log/slog"
	"time"

	"github.com/b-open-io/backplane/backoff"
	"github.com/b-open-io/backplane/pubsub"
)

// Session holds the tunables of a pub/sub session.
type Session struct {
	HeartbeatInterval time.Duration
	Backoff           backoff.Policy
}

// LoadSession reads session tunables from the environment:
// HEARTBEAT_INTERVAL, RECONNECT_BASE, RECONNECT_CAP (durations) and
// RECONNECT_MAX_ATTEMPTS (0 retries forever).
func LoadSession() (Session, error) {
	def := backoff.Default()
	s := Session{Backoff: def}

	var err error
	if s.HeartbeatInterval, err = envDuration("HEARTBEAT_INTERVAL", pubsub.DefaultHeartbeatInterval); err != nil {
		return s, err
	}
	if s.Backoff.Base, err = envDuration("RECONNECT_BASE", def.Base); err != nil {
		return s, err
	}
	if s.Backoff.Cap, err = envDuration("RECONNECT_CAP", def.Cap); err != nil {
		return s, err
	}
	if s.Backoff.MaxAttempts, err = envInt("RECONNECT_MAX_ATTEMPTS", def.MaxAttempts); err != nil {
		return s, err
	}
	return s, s.Backoff.Validate()
}

// Options converts the tunables into session options.
func (s Session) Options(logger *slog.Logger) *pubsub.Options {
	return pubsub.NewOptions().
		SetHeartbeatInterval(s.HeartbeatInterval).
		SetBackoff(s.Backoff).
		SetLogger(logger)
}
