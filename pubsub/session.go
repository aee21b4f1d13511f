package pubsub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/b-open-io/backplane/backoff"
)

// Session keeps a subscription set alive on a broker across disconnects.
//
// Subscribe and Unsubscribe only record intent; the session subscribes on
// the broker whenever it holds a live connection, and re-subscribes every
// desired channel after a reconnect. Messages are handed to the listeners
// registered with OnMessage, in receipt order.
type Session struct {
	dialer Dialer
	opts   *Options
	policy backoff.Policy
	logger *slog.Logger

	state    *stateManager
	reg      *registry
	restarts atomic.Int64 // consecutive failures
	count    atomic.Int64 // subscription count last reported by the broker
	probing  atomic.Bool

	// connMu guards the fields below. It may be held while taking reg.mu,
	// never the reverse, and is never held across a network call.
	connMu     sync.Mutex
	conn       Conn
	listenConn Conn // connection the receive loop is bound to
	closing    bool

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownOnce sync.Once
	shutdownErr  error
}

// Status is a point-in-time view of a session.
type Status struct {
	State     State
	Channels  []string // desired channels, sorted
	Confirmed int      // desired channels acknowledged by the broker
	Count     int      // subscriptions the broker reports on the live connection
	Restarts  int      // consecutive connection failures
}

// New creates a session, dials once and starts the heartbeat. A failed first
// dial is not an error: the session enters its reconnect sequence.
func New(dialer Dialer, opts *Options) (*Session, error) {
	if dialer == nil {
		return nil, ErrNilDialer
	}
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		dialer: dialer,
		opts:   opts,
		policy: opts.Backoff,
		logger: opts.Logger,
		state:  newStateManager(),
		reg:    newRegistry(opts.Logger),
		ctx:    ctx,
		cancel: cancel,
	}

	conn, err := dialer.Dial(ctx)
	if err != nil {
		s.logger.Warn("initial connection failed", "error", err)
		s.triggerReconnect(err)
	} else {
		s.connMu.Lock()
		s.conn = conn
		s.connMu.Unlock()
		s.logger.Info("connected")
		s.notifyConnect()
	}

	s.connMu.Lock()
	s.spawnLocked(s.heartbeat)
	s.connMu.Unlock()

	return s, nil
}

// Subscribe adds channel to the desired set. The result completes once the
// change is recorded; the broker subscription follows asynchronously.
func (s *Session) Subscribe(channel string) *Result {
	if channel == "" {
		return resolved(ErrInvalidChannel)
	}
	if s.state.get() == StateClosed {
		return resolved(ErrSessionClosed)
	}

	if s.reg.add(channel) {
		s.logger.Debug("subscribing", "channel", channel)
		s.subscribeLive(channel)
	}
	return resolved(s.outcome())
}

// Unsubscribe removes channel from the desired set. Messages for it are
// dropped from this point on, even if the broker still delivers them.
func (s *Session) Unsubscribe(channel string) *Result {
	if channel == "" {
		return resolved(ErrInvalidChannel)
	}
	if s.state.get() == StateClosed {
		return resolved(ErrSessionClosed)
	}

	if s.reg.remove(channel) {
		s.logger.Debug("unsubscribing", "channel", channel)
		s.connMu.Lock()
		conn := s.listenConn
		s.connMu.Unlock()
		if conn != nil {
			if err := conn.Unsubscribe(s.ctx, channel); err != nil {
				s.logger.Warn("unsubscribe failed", "channel", channel, "error", err)
			}
		}
	}
	return resolved(s.outcome())
}

// OnMessage registers l to receive every message on a desired channel.
// Listeners are called in registration order on the receive goroutine.
func (s *Session) OnMessage(l Listener) {
	if l == nil {
		return
	}
	s.reg.register(l)
}

// State returns the current connection state.
func (s *Session) State() State {
	return s.state.get()
}

// Channels returns the desired channel set, sorted.
func (s *Session) Channels() []string {
	return s.reg.snapshot()
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	return Status{
		State:     s.state.get(),
		Channels:  s.reg.snapshot(),
		Confirmed: s.reg.confirmed(),
		Count:     int(s.count.Load()),
		Restarts:  int(s.restarts.Load()),
	}
}

// Shutdown stops the heartbeat, closes the connection and waits for every
// session goroutine to exit. No listener runs after it returns. It must not
// be called from a listener or an Options callback.
func (s *Session) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.connMu.Lock()
		s.closing = true
		conn := s.conn
		s.conn = nil
		s.connMu.Unlock()

		s.state.force(StateClosed)
		s.cancel()
		if conn != nil {
			s.shutdownErr = conn.Close()
		}
		s.wg.Wait()
		s.logger.Info("session closed")
	})
	return s.shutdownErr
}

// outcome maps a terminal state to the error carried by operation results.
func (s *Session) outcome() error {
	switch s.state.get() {
	case StateFailed:
		return ErrSessionFailed
	case StateClosed:
		return ErrSessionClosed
	default:
		return nil
	}
}

// subscribeLive pushes a newly desired channel to the live connection,
// starting the receive loop if none is bound to it.
func (s *Session) subscribeLive(channel string) {
	s.connMu.Lock()
	conn := s.conn
	if s.closing || conn == nil || s.state.get() == StateConnecting {
		// the reconnect sequence subscribes the whole set
		s.connMu.Unlock()
		return
	}
	if s.listenConn != conn {
		s.startListenerLocked(conn)
		s.connMu.Unlock()
		return
	}
	s.connMu.Unlock()

	if err := conn.Subscribe(s.ctx, channel); err != nil {
		s.logger.Warn("subscribe failed", "channel", channel, "error", err)
	}
}

// spawnLocked runs fn on a tracked goroutine unless the session is closing.
// connMu must be held.
func (s *Session) spawnLocked(fn func()) bool {
	if s.closing {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

func (s *Session) notifyConnect() {
	if s.opts.OnConnect != nil {
		s.opts.OnConnect()
	}
}
