package routes

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/b-open-io/backplane/presence"
	"github.com/b-open-io/backplane/pubsub"
	"github.com/google/uuid"
)

// DefaultClientBuffer is the number of undelivered events a relay client may
// hold before new events for it are skipped.
const DefaultClientBuffer = 256

// Event is one message relayed to a client.
type Event struct {
	Channel string
	Data    string
}

// Client is a relay subscriber, typically one SSE connection.
type Client struct {
	ID       string
	Channels []string
	events   chan Event
}

// Events returns the client's event stream. It is closed on deregistration.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Relay fans session messages out to its clients. The session is subscribed
// to a channel while at least one client wants it.
type Relay struct {
	session  *pubsub.Session
	presence *presence.Tracker
	logger   *slog.Logger
	buffer   int

	mu             sync.RWMutex
	clients        map[string]*Client
	channelClients map[string]map[string]*Client
}

// NewRelay creates a relay on session. tracker may be nil.
func NewRelay(session *pubsub.Session, tracker *presence.Tracker, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Relay{
		session:        session,
		presence:       tracker,
		logger:         logger,
		buffer:         DefaultClientBuffer,
		clients:        make(map[string]*Client),
		channelClients: make(map[string]map[string]*Client),
	}
	session.OnMessage(r.broadcast)
	return r
}

// Register adds a client for channels and subscribes the session to any
// channel that had no clients.
func (r *Relay) Register(ctx context.Context, channels []string) (*Client, error) {
	client := &Client{
		ID:       uuid.NewString(),
		Channels: channels,
		events:   make(chan Event, r.buffer),
	}

	r.mu.Lock()
	r.clients[client.ID] = client
	for _, ch := range channels {
		set, ok := r.channelClients[ch]
		if !ok {
			set = make(map[string]*Client)
			r.channelClients[ch] = set
		}
		set[client.ID] = client
		if len(set) > 1 {
			continue
		}
		err := r.session.Subscribe(ch).Err()
		if errors.Is(err, pubsub.ErrSessionClosed) || errors.Is(err, pubsub.ErrInvalidChannel) {
			r.mu.Unlock()
			r.Deregister(ctx, client.ID)
			return nil, err
		}
		if err != nil {
			r.logger.Warn("relay subscribed while session is down", "channel", ch, "error", err)
		}
	}
	r.mu.Unlock()

	if r.presence != nil {
		if err := r.presence.Register(ctx, client.ID, channels); err != nil {
			r.logger.Warn("presence register failed", "client", client.ID, "error", err)
		}
	}
	r.logger.Info("relay client registered", "client", client.ID, "channels", channels)
	return client, nil
}

// Deregister removes a client and unsubscribes the session from channels left
// without clients.
func (r *Relay) Deregister(ctx context.Context, id string) {
	r.mu.Lock()
	client, ok := r.clients[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.clients, id)
	for _, ch := range client.Channels {
		set := r.channelClients[ch]
		if _, member := set[id]; !member {
			continue
		}
		delete(set, id)
		if len(set) == 0 {
			delete(r.channelClients, ch)
			r.session.Unsubscribe(ch)
		}
	}
	close(client.events)
	r.mu.Unlock()

	if r.presence != nil {
		if err := r.presence.Remove(ctx, id); err != nil {
			r.logger.Warn("presence remove failed", "client", id, "error", err)
		}
	}
	r.logger.Info("relay client deregistered", "client", id)
}

// Touch refreshes a client's presence record.
func (r *Relay) Touch(ctx context.Context, id string) {
	if r.presence == nil {
		return
	}
	if err := r.presence.Touch(ctx, id); err != nil {
		r.logger.Warn("presence touch failed", "client", id, "error", err)
	}
}

// Clients returns the number of registered clients.
func (r *Relay) Clients() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// ChannelClients returns the number of clients per channel.
func (r *Relay) ChannelClients() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.channelClients))
	for ch, set := range r.channelClients {
		out[ch] = len(set)
	}
	return out
}

// Close deregisters every client.
func (r *Relay) Close(ctx context.Context) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Deregister(ctx, id)
	}
}

// broadcast delivers a session message to the channel's clients. A client
// whose buffer is full misses the event.
func (r *Relay) broadcast(channel, payload string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.channelClients[channel]
	sent := 0
	for id, client := range set {
		select {
		case client.events <- Event{Channel: channel, Data: payload}:
			sent++
		default:
			r.logger.Warn("relay skipping full client", "client", id, "channel", channel)
		}
	}
	r.logger.Debug("relayed", "channel", channel, "clients", sent)
}
