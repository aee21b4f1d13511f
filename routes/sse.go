package routes

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"time"

	"github.com/b-open-io/backplane/config"
	"github.com/b-open-io/backplane/pubsub"
	"github.com/gofiber/fiber/v2"
)

// DefaultPingInterval is how often an idle SSE stream gets a keepalive.
const DefaultPingInterval = 15 * time.Second

// SSERoutesConfig holds the configuration for SSE streaming routes
type SSERoutesConfig struct {
	Relay        *Relay
	Channels     config.Channels
	Context      context.Context
	PingInterval time.Duration
	Logger       *slog.Logger
}

// RegisterSSERoutes registers Server-Sent Events streaming routes
func RegisterSSERoutes(group fiber.Router, cfg *SSERoutesConfig) {
	if cfg == nil || cfg.Relay == nil || cfg.Context == nil {
		log.Fatal("RegisterSSERoutes: config, relay, and context are required")
	}

	relay := cfg.Relay
	acl := cfg.Channels
	ctx := cfg.Context
	ping := cfg.PingInterval
	if ping <= 0 {
		ping = DefaultPingInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	group.Get("/subscribe/:channels", func(c *fiber.Ctx) error {
		channels := splitChannels(c.Params("channels"))
		if len(channels) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "at least one channel is required",
			})
		}
		for _, ch := range channels {
			if !acl.Lookup(ch).Subscribe {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
					"message": fmt.Sprintf("subscribing to %s is not allowed", ch),
				})
			}
		}

		client, err := relay.Register(ctx, channels)
		if errors.Is(err, pubsub.ErrSessionClosed) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"message": "backplane is shutting down",
			})
		}
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": err.Error(),
			})
		}

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("Transfer-Encoding", "chunked")
		c.Set("X-Accel-Buffering", "no")
		c.Set("Access-Control-Allow-Origin", "*")

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer relay.Deregister(ctx, client.ID)

			fmt.Fprintf(w, "event: connected\ndata: %s\n\n", client.ID)
			if err := w.Flush(); err != nil {
				return
			}

			ticker := time.NewTicker(ping)
			defer ticker.Stop()

			for {
				select {
				case ev, ok := <-client.Events():
					if !ok {
						return
					}
					writeEvent(w, ev)
					if err := w.Flush(); err != nil {
						logger.Debug("sse client gone", "client", client.ID, "error", err)
						return
					}
				case <-ticker.C:
					fmt.Fprintf(w, ": ping\n\n")
					if err := w.Flush(); err != nil {
						return
					}
					relay.Touch(ctx, client.ID)
				case <-ctx.Done():
					return
				}
			}
		})

		return nil
	})
}

// writeEvent frames ev as one SSE event. Each payload line gets its own data
// field so multi-line payloads survive the framing.
func writeEvent(w *bufio.Writer, ev Event) {
	fmt.Fprintf(w, "event: %s\n", ev.Channel)
	for _, line := range strings.Split(ev.Data, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	w.WriteString("\n")
}

// splitChannels parses a comma separated channel list, dropping blanks and
// duplicates.
func splitChannels(raw string) []string {
	seen := make(map[string]bool)
	var channels []string
	for _, ch := range strings.Split(raw, ",") {
		ch = strings.TrimSpace(ch)
		if ch == "" || seen[ch] {
			continue
		}
		seen[ch] = true
		channels = append(channels, ch)
	}
	return channels
}
