package pubsub

import (
	"log/slog"
	"time"

	"github.com/b-open-io/backplane/backoff"
)

// DefaultHeartbeatInterval is how often an idle connection is probed.
const DefaultHeartbeatInterval = 30 * time.Second

// Options configures a Session.
type Options struct {
	HeartbeatInterval time.Duration  // Probe interval while no subscribe stream is active
	Backoff           backoff.Policy // Reconnect delays and give-up threshold
	Logger            *slog.Logger

	// Callbacks. They run on session goroutines and must not block or call
	// Shutdown.
	OnConnect      func()                                 // Called after every successful dial
	OnReconnecting func(attempt int, delay time.Duration) // Called before each reconnect sleep
	OnFailed       func(err error)                        // Called once when the session gives up
}

// NewOptions creates Options with sensible defaults.
func NewOptions() *Options {
	return &Options{
		HeartbeatInterval: DefaultHeartbeatInterval,
		Backoff:           backoff.Default(),
		Logger:            slog.Default(),
	}
}

// SetHeartbeatInterval sets the idle probe interval.
func (o *Options) SetHeartbeatInterval(d time.Duration) *Options {
	o.HeartbeatInterval = d
	return o
}

// SetBackoff sets the reconnect policy.
func (o *Options) SetBackoff(p backoff.Policy) *Options {
	o.Backoff = p
	return o
}

// SetLogger sets the session logger.
func (o *Options) SetLogger(l *slog.Logger) *Options {
	o.Logger = l
	return o
}

// SetOnConnect sets the connect callback.
func (o *Options) SetOnConnect(fn func()) *Options {
	o.OnConnect = fn
	return o
}

// SetOnReconnecting sets the reconnect attempt callback.
func (o *Options) SetOnReconnecting(fn func(attempt int, delay time.Duration)) *Options {
	o.OnReconnecting = fn
	return o
}

// SetOnFailed sets the give-up callback.
func (o *Options) SetOnFailed(fn func(err error)) *Options {
	o.OnFailed = fn
	return o
}

// Validate checks the options and fills unset fields with defaults.
func (o *Options) Validate() error {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.Backoff == (backoff.Policy{}) {
		o.Backoff = backoff.Default()
	}
	if err := o.Backoff.Validate(); err != nil {
		return err
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return nil
}
