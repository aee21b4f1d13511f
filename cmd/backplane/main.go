package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/b-open-io/backplane/config"
	"github.com/b-open-io/backplane/internal/utils"
	"github.com/b-open-io/backplane/presence"
	"github.com/b-open-io/backplane/publish"
	"github.com/b-open-io/backplane/pubsub"
	"github.com/b-open-io/backplane/routes"
	"github.com/b-open-io/backplane/store"
	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

var (
	PORT         int
	PUBSUB_URL   string
	STORE_URL    string
	PRESENCE_TTL time.Duration
)

const statusInterval = 30 * time.Second

func init() {
	godotenv.Load(".env")

	// Parse env before flags
	PORT, _ = strconv.Atoi(os.Getenv("PORT"))
	PUBSUB_URL = os.Getenv("PUBSUB_URL")
	STORE_URL = os.Getenv("STORE_URL")
	PRESENCE_TTL, _ = time.ParseDuration(os.Getenv("PRESENCE_TTL"))

	flag.IntVar(&PORT, "p", PORT, "Port to listen on")
	flag.StringVar(&PUBSUB_URL, "pubsub", PUBSUB_URL, "Pub/sub URL (redis://, rediss://, unix://, channels://)")
	flag.StringVar(&STORE_URL, "store", STORE_URL, "Store URL (redis://, mongodb://)")
	flag.DurationVar(&PRESENCE_TTL, "presence-ttl", PRESENCE_TTL, "Reap clients not seen for this long")
	flag.Parse()

	if PORT == 0 {
		PORT = 3000
	}
	if PRESENCE_TTL <= 0 {
		PRESENCE_TTL = 2 * time.Minute
	}
}

// backend is the broker side of the process: how sessions dial, how
// messages are published and where shared state lives.
type backend struct {
	dialer    pubsub.Dialer
	publisher publish.Publisher
	store     store.Store // nil when no store is configured
}

// openBackend prefers an explicit PUBSUB_URL and falls back to the REDIS_*
// settings, then to the in-memory broker.
func openBackend(logger *slog.Logger) (*backend, error) {
	b := &backend{}
	redisCfg, err := config.LoadRedis()
	if err != nil {
		return nil, err
	}
	useRedisCfg := PUBSUB_URL == "" && redisCfg.Validate() == nil

	if useRedisCfg {
		logger.Info("using redis configuration", "target", redisCfg.Target())
		if b.dialer, err = redisCfg.Dialer(); err != nil {
			return nil, err
		}
		if b.publisher, err = redisCfg.Publisher(); err != nil {
			return nil, err
		}
	} else {
		logger.Info("using pub/sub URL", "url", utils.SanitizeConnectionString(PUBSUB_URL))
		if b.dialer, err = pubsub.CreatePubSub(PUBSUB_URL); err != nil {
			return nil, err
		}
		if broker, ok := b.dialer.(*pubsub.Broker); ok {
			broker.WithLogger(logger)
		}
		if b.publisher, err = publish.CreatePublisher(PUBSUB_URL, b.dialer); err != nil {
			return nil, err
		}
	}

	switch {
	case STORE_URL != "":
		b.store, err = store.CreateStore(STORE_URL)
	case useRedisCfg:
		b.store, err = redisCfg.Store()
	}
	if err != nil {
		b.publisher.Close()
		return nil, err
	}
	return b, nil
}

func main() {
	logger, err := config.NewLogger(os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("backplane stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	sessCfg, err := config.LoadSession()
	if err != nil {
		return err
	}
	logger.Info("reconnect policy",
		"heartbeat", sessCfg.HeartbeatInterval,
		"max_attempts", sessCfg.Backoff.MaxAttempts,
		"schedule", sessCfg.Backoff.Schedule())

	b, err := openBackend(logger)
	if err != nil {
		return err
	}
	defer b.publisher.Close()

	var (
		tracker  *presence.Tracker
		channels config.Channels
	)
	if b.store != nil {
		defer b.store.Close()
		tracker = presence.NewTracker(b.store, "", logger)
		if channels, err = config.LoadChannels(ctx, b.store, logger); err != nil {
			logger.Warn("channel settings unavailable, allowing all channels", "error", err)
		}
	}

	opts := sessCfg.Options(logger).
		SetOnReconnecting(func(attempt int, delay time.Duration) {
			logger.Warn("reconnecting", "attempt", attempt, "delay", delay)
		}).
		SetOnFailed(func(err error) {
			cancel(err)
		})
	session, err := pubsub.New(b.dialer, opts)
	if err != nil {
		return err
	}

	relay := routes.NewRelay(session, tracker, logger)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	routes.RegisterSSERoutes(app, &routes.SSERoutesConfig{
		Relay:    relay,
		Channels: channels,
		Context:  ctx,
		Logger:   logger,
	})
	routes.RegisterAPIRoutes(app, &routes.APIRoutesConfig{
		Session:   session,
		Relay:     relay,
		Publisher: b.publisher,
		Channels:  channels,
		Presence:  tracker,
		Logger:    logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", PORT)
		logger.Info("listening", "addr", addr)
		return app.Listen(addr)
	})

	g.Go(func() error {
		ticker := time.NewTicker(statusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				st := session.Status()
				logger.Info("status",
					"state", st.State,
					"channels", len(st.Channels),
					"confirmed", st.Confirmed,
					"restarts", st.Restarts,
					"clients", relay.Clients())
				if tracker != nil {
					if _, err := tracker.Reap(gctx, PRESENCE_TTL); err != nil {
						logger.Warn("presence reap failed", "error", err)
					}
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
		relay.Close(shutdownCtx)
		return session.Shutdown()
	})

	err = g.Wait()
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return err
}
