package pubsub

import "context"

// Handler receives the events of a blocking Listen call.
// Callbacks run on the listening goroutine, in the order the broker sent them.
type Handler struct {
	OnMessage     func(channel, payload string)
	OnSubscribe   func(channel string, count int)
	OnUnsubscribe func(channel string, count int)
}

func (h Handler) message(channel, payload string) {
	if h.OnMessage != nil {
		h.OnMessage(channel, payload)
	}
}

func (h Handler) subscribed(channel string, count int) {
	if h.OnSubscribe != nil {
		h.OnSubscribe(channel, count)
	}
}

func (h Handler) unsubscribed(channel string, count int) {
	if h.OnUnsubscribe != nil {
		h.OnUnsubscribe(channel, count)
	}
}

// Conn is one broker connection as seen by a Session.
type Conn interface {
	// Ping issues a liveness probe.
	Ping(ctx context.Context) error

	// Listen subscribes to channels and blocks, feeding events to h, until every
	// channel has been unsubscribed (returns nil), ctx is done, or the
	// connection fails. Only one Listen may be active per Conn.
	Listen(ctx context.Context, h Handler, channels ...string) error

	// Subscribe adds channels to the active Listen call. Channels requested
	// while no Listen is active are included in the next one.
	Subscribe(ctx context.Context, channels ...string) error

	// Unsubscribe removes channels from the active Listen call.
	Unsubscribe(ctx context.Context, channels ...string) error

	// Close releases the connection and makes an active Listen return.
	Close() error
}

// Dialer opens broker connections. It is the pre-resolved connection descriptor
// a Session reuses for every reconnect.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}

// Listener is a message callback registered with Session.OnMessage.
type Listener func(channel, payload string)
