package pubsub

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultConnQueue bounds the undelivered messages an in-memory connection
// holds before it starts skipping.
const DefaultConnQueue = 1024

// Broker is an in-process broker with Redis pub/sub semantics. It implements
// Dialer, so a Session can run against it without any external dependency.
type Broker struct {
	mu     sync.Mutex
	subs   map[string]map[*memConn]struct{} // channel -> subscribed conns
	conns  map[*memConn]struct{}
	closed bool
	queue  int
	logger *slog.Logger
}

// NewBroker creates an empty in-memory broker.
func NewBroker() *Broker {
	return &Broker{
		subs:   make(map[string]map[*memConn]struct{}),
		conns:  make(map[*memConn]struct{}),
		queue:  DefaultConnQueue,
		logger: slog.Default(),
	}
}

// WithLogger sets the broker logger.
func (b *Broker) WithLogger(logger *slog.Logger) *Broker {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// Dial opens a new connection to the broker.
func (b *Broker) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}
	c := &memConn{
		broker:     b,
		notify:     make(chan struct{}, 1),
		closed:     make(chan struct{}),
		subscribed: make(map[string]struct{}),
	}
	b.conns[c] = struct{}{}
	return c, nil
}

// Publish delivers payload to every connection subscribed to channel and
// returns how many received it.
func (b *Broker) Publish(ctx context.Context, channel, payload string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, ErrBrokerClosed
	}
	targets := make([]*memConn, 0, len(b.subs[channel]))
	for c := range b.subs[channel] {
		targets = append(targets, c)
	}
	b.mu.Unlock()

	sent := 0
	for _, c := range targets {
		if c.enqueue(memEvent{kind: eventMessage, channel: channel, payload: payload}, b.queue) {
			sent++
		} else {
			b.logger.Warn("broker: skipping full connection", "channel", channel)
		}
	}
	b.logger.Debug("broker: published", "channel", channel, "receivers", sent)
	return sent, nil
}

// Disconnect severs every open connection, as a network partition would.
// Returns the number of connections closed.
func (b *Broker) Disconnect() int {
	b.mu.Lock()
	conns := make([]*memConn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	return len(conns)
}

// Subscribers returns the number of connections subscribed to channel.
func (b *Broker) Subscribers(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channel])
}

// Close severs all connections and rejects further dials.
func (b *Broker) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.Disconnect()
	return nil
}

func (b *Broker) attach(c *memConn, channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[channel]
	if !ok {
		set = make(map[*memConn]struct{})
		b.subs[channel] = set
	}
	set[c] = struct{}{}
}

func (b *Broker) detach(c *memConn, channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[channel]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(b.subs, channel)
		}
	}
}

func (b *Broker) forget(c *memConn) {
	b.mu.Lock()
	delete(b.conns, c)
	b.mu.Unlock()
}

type eventKind int

const (
	eventMessage eventKind = iota
	eventSubscribe
	eventUnsubscribe
)

type memEvent struct {
	kind    eventKind
	channel string
	payload string
	count   int
}

// memConn is one connection to a Broker. Events are queued whether or not a
// Listen call is active, the way a socket buffers replies nobody has read.
type memConn struct {
	broker *Broker

	mu         sync.Mutex
	queue      []memEvent
	subscribed map[string]struct{}
	listening  bool

	notify    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *memConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// enqueue appends ev. Messages are skipped once limit events are pending;
// acks always queue.
func (c *memConn) enqueue(ev memEvent, limit int) bool {
	c.mu.Lock()
	if ev.kind == eventMessage && limit > 0 && len(c.queue) >= limit {
		c.mu.Unlock()
		return false
	}
	c.queue = append(c.queue, ev)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

func (c *memConn) next() (memEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return memEvent{}, false
	}
	ev := c.queue[0]
	c.queue = c.queue[1:]
	return ev, true
}

func (c *memConn) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isClosed() {
		return ErrConnClosed
	}
	return nil
}

func (c *memConn) Subscribe(ctx context.Context, channels ...string) error {
	for _, ch := range channels {
		c.mu.Lock()
		if c.isClosed() {
			c.mu.Unlock()
			return ErrConnClosed
		}
		c.subscribed[ch] = struct{}{}
		c.broker.attach(c, ch)
		count := len(c.subscribed)
		c.mu.Unlock()
		c.enqueue(memEvent{kind: eventSubscribe, channel: ch, count: count}, 0)
	}
	return nil
}

func (c *memConn) Unsubscribe(ctx context.Context, channels ...string) error {
	for _, ch := range channels {
		c.mu.Lock()
		if c.isClosed() {
			c.mu.Unlock()
			return ErrConnClosed
		}
		delete(c.subscribed, ch)
		c.broker.detach(c, ch)
		count := len(c.subscribed)
		c.mu.Unlock()
		c.enqueue(memEvent{kind: eventUnsubscribe, channel: ch, count: count}, 0)
	}
	return nil
}

func (c *memConn) Listen(ctx context.Context, h Handler, channels ...string) error {
	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		return ErrAlreadyListening
	}
	c.listening = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.listening = false
		c.mu.Unlock()
	}()

	if err := c.Subscribe(ctx, channels...); err != nil {
		return err
	}

	for {
		ev, ok := c.next()
		if !ok {
			select {
			case <-c.notify:
				continue
			case <-c.closed:
				return ErrConnClosed
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if c.isClosed() {
			return ErrConnClosed
		}

		switch ev.kind {
		case eventMessage:
			h.message(ev.channel, ev.payload)
		case eventSubscribe:
			h.subscribed(ev.channel, ev.count)
		case eventUnsubscribe:
			h.unsubscribed(ev.channel, ev.count)
			if ev.count == 0 && c.idle() {
				return nil
			}
		}
	}
}

// idle reports whether the connection holds no subscriptions and no
// undelivered events.
func (c *memConn) idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribed) == 0 && len(c.queue) == 0
}

func (c *memConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		channels := make([]string, 0, len(c.subscribed))
		for ch := range c.subscribed {
			channels = append(channels, ch)
		}
		c.subscribed = make(map[string]struct{})
		c.queue = nil
		c.mu.Unlock()
		for _, ch := range channels {
			c.broker.detach(c, ch)
		}
		c.broker.forget(c)
	})
	return nil
}
