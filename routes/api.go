package routes

import (
	"log"
	"log/slog"

	"github.com/b-open-io/backplane/config"
	"github.com/b-open-io/backplane/presence"
	"github.com/b-open-io/backplane/publish"
	"github.com/b-open-io/backplane/pubsub"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/singleflight"
)

// APIRoutesConfig holds the configuration for publishing and status routes
type APIRoutesConfig struct {
	Session   *pubsub.Session
	Relay     *Relay
	Publisher publish.Publisher
	Channels  config.Channels
	Presence  *presence.Tracker // optional
	Logger    *slog.Logger
}

// RegisterAPIRoutes registers the publish, status and presence routes
func RegisterAPIRoutes(group fiber.Router, cfg *APIRoutesConfig) {
	if cfg == nil || cfg.Session == nil || cfg.Relay == nil || cfg.Publisher == nil {
		log.Fatal("RegisterAPIRoutes: config, session, relay, and publisher are required")
	}

	session := cfg.Session
	relay := cfg.Relay
	publisher := cfg.Publisher
	acl := cfg.Channels
	tracker := cfg.Presence
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	group.Post("/publish/:channel", func(c *fiber.Ctx) error {
		channel := c.Params("channel")
		if !acl.Lookup(channel).Publish {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"message": "publishing to " + channel + " is not allowed",
			})
		}

		body := c.Body()
		if len(body) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "message body is required",
			})
		}

		receivers, err := publisher.Publish(c.Context(), channel, string(body))
		if err != nil {
			logger.Error("publish failed", "channel", channel, "error", err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"message": "failed to publish message",
			})
		}

		return c.JSON(fiber.Map{
			"channel":   channel,
			"receivers": receivers,
		})
	})

	group.Get("/status", func(c *fiber.Ctx) error {
		status := session.Status()
		return c.JSON(fiber.Map{
			"state":     status.State.String(),
			"channels":  status.Channels,
			"confirmed": status.Confirmed,
			"restarts":  status.Restarts,
			"count":     status.Count,
			"clients":   relay.Clients(),
			"relayed":   relay.ChannelClients(),
		})
	})

	if tracker == nil {
		return
	}

	// concurrent lookups of one channel share a store round trip
	var lookups singleflight.Group

	group.Get("/channels/:channel/clients", func(c *fiber.Ctx) error {
		channel := c.Params("channel")
		v, err, _ := lookups.Do(channel, func() (any, error) {
			return tracker.Clients(c.Context(), channel)
		})
		if err != nil {
			logger.Error("presence lookup failed", "channel", channel, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"message": "failed to look up clients",
			})
		}
		clients, _ := v.([]string)
		if clients == nil {
			clients = []string{}
		}
		return c.JSON(fiber.Map{
			"channel": channel,
			"clients": clients,
		})
	})
}
