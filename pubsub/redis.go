package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisDialer opens Redis pub/sub connections. Each Dial builds a fresh
// client from the stored constructor, so a reconnect never reuses a pool that
// saw the failure.
type RedisDialer struct {
	newClient func() *redis.Client
}

// NewRedisDialer creates a dialer from a client constructor, typically one
// returned by config.Redis.
func NewRedisDialer(newClient func() *redis.Client) *RedisDialer {
	return &RedisDialer{newClient: newClient}
}

// NewRedisURLDialer creates a dialer from a redis://, rediss:// or unix:// URL.
func NewRedisURLDialer(redisURL string) (*RedisDialer, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return NewRedisDialer(func() *redis.Client {
		return redis.NewClient(opts)
	}), nil
}

// Dial connects and verifies the connection with PING.
func (d *RedisDialer) Dial(ctx context.Context) (Conn, error) {
	client := d.newClient()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &redisConn{
		client: client,
		ps:     client.Subscribe(ctx),
	}, nil
}

// redisConn pairs a command client, used for PING, with one PubSub
// connection that carries every subscription.
type redisConn struct {
	client *redis.Client
	ps     *redis.PubSub

	mu        sync.Mutex
	listening bool
	closed    bool
}

func (c *redisConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *redisConn) Ping(ctx context.Context) error {
	if c.isClosed() {
		return ErrConnClosed
	}
	return c.client.Ping(ctx).Err()
}

func (c *redisConn) Subscribe(ctx context.Context, channels ...string) error {
	if len(channels) == 0 {
		return nil
	}
	if c.isClosed() {
		return ErrConnClosed
	}
	return c.ps.Subscribe(ctx, channels...)
}

func (c *redisConn) Unsubscribe(ctx context.Context, channels ...string) error {
	// an empty UNSUBSCRIBE drops every channel
	if len(channels) == 0 {
		return nil
	}
	if c.isClosed() {
		return ErrConnClosed
	}
	return c.ps.Unsubscribe(ctx, channels...)
}

func (c *redisConn) Listen(ctx context.Context, h Handler, channels ...string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
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
		return fmt.Errorf("subscribe: %w", err)
	}

	for {
		msg, err := c.ps.Receive(ctx)
		if err != nil {
			if c.isClosed() {
				return ErrConnClosed
			}
			return fmt.Errorf("receive: %w", err)
		}

		switch m := msg.(type) {
		case *redis.Message:
			h.message(m.Channel, m.Payload)
		case *redis.Subscription:
			switch m.Kind {
			case "subscribe":
				h.subscribed(m.Channel, m.Count)
			case "unsubscribe":
				h.unsubscribed(m.Channel, m.Count)
				if m.Count == 0 {
					return nil
				}
			}
		case *redis.Pong:
		}
	}
}

func (c *redisConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.ps.Close()
	if cerr := c.client.Close(); err == nil {
		err = cerr
	}
	return err
}
