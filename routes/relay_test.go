package routes

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/b-open-io/backplane/backoff"
	"github.com/b-open-io/backplane/presence"
	"github.com/b-open-io/backplane/pubsub"
	"github.com/b-open-io/backplane/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type harness struct {
	broker  *pubsub.Broker
	session *pubsub.Session
	tracker *presence.Tracker
	relay   *Relay
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := pubsub.NewBroker().WithLogger(discard)
	opts := pubsub.NewOptions().
		SetHeartbeatInterval(10 * time.Millisecond).
		SetBackoff(backoff.Policy{Base: time.Millisecond, Cap: 5 * time.Millisecond}).
		SetLogger(discard)
	s, err := pubsub.New(b, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Shutdown() })

	mr := miniredis.RunT(t)
	st, err := store.NewRedisStore("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	tracker := presence.NewTracker(st, "", discard)

	return &harness{
		broker:  b,
		session: s,
		tracker: tracker,
		relay:   NewRelay(s, tracker, discard),
	}
}

func (h *harness) waitSubscribed(t *testing.T, channel string) {
	t.Helper()
	require.Eventually(t, func() bool { return h.broker.Subscribers(channel) == 1 }, waitFor, time.Millisecond)
}

func nextRelayed(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		require.True(t, ok, "event stream closed")
		return ev
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestRelaySharesSessionSubscriptions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	c1, err := h.relay.Register(ctx, []string{"news"})
	require.NoError(t, err)
	c2, err := h.relay.Register(ctx, []string{"news", "chat"})
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID, c2.ID)

	assert.Equal(t, []string{"chat", "news"}, h.session.Channels())
	assert.Equal(t, map[string]int{"news": 2, "chat": 1}, h.relay.ChannelClients())
	h.waitSubscribed(t, "news")

	_, err = h.broker.Publish(ctx, "news", "hello")
	require.NoError(t, err)
	assert.Equal(t, Event{Channel: "news", Data: "hello"}, nextRelayed(t, c1))
	assert.Equal(t, Event{Channel: "news", Data: "hello"}, nextRelayed(t, c2))

	h.relay.Deregister(ctx, c1.ID)
	assert.Equal(t, []string{"chat", "news"}, h.session.Channels(), "news still has a client")

	h.relay.Deregister(ctx, c2.ID)
	assert.Empty(t, h.session.Channels())
	assert.Zero(t, h.relay.Clients())

	_, open := <-c2.Events()
	assert.False(t, open)

	// deregistering twice is harmless
	h.relay.Deregister(ctx, c2.ID)
}

func TestRelaySkipsFullClients(t *testing.T) {
	h := newHarness(t)
	h.relay.buffer = 1

	slow, err := h.relay.Register(context.Background(), []string{"news"})
	require.NoError(t, err)

	h.relay.broadcast("news", "first")
	h.relay.broadcast("news", "second")
	h.relay.broadcast("other", "ignored")

	assert.Equal(t, Event{Channel: "news", Data: "first"}, nextRelayed(t, slow))
	select {
	case ev := <-slow.Events():
		t.Fatalf("unexpected event %v", ev)
	default:
	}
}

func TestRelayTracksPresence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	c, err := h.relay.Register(ctx, []string{"news"})
	require.NoError(t, err)

	clients, err := h.tracker.Clients(ctx, "news")
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, clients)

	h.relay.Touch(ctx, c.ID)
	h.relay.Close(ctx)

	clients, err = h.tracker.Clients(ctx, "news")
	require.NoError(t, err)
	assert.Empty(t, clients)
	n, err := h.tracker.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelayRegisterAfterShutdown(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.session.Shutdown())

	_, err := h.relay.Register(context.Background(), []string{"news"})
	assert.ErrorIs(t, err, pubsub.ErrSessionClosed)
	assert.Zero(t, h.relay.Clients())
	assert.Empty(t, h.relay.ChannelClients())
}

func TestRelayWithoutPresence(t *testing.T) {
	b := pubsub.NewBroker()
	s, err := pubsub.New(b, pubsub.NewOptions().SetLogger(discard))
	require.NoError(t, err)
	defer s.Shutdown()

	r := NewRelay(s, nil, discard)
	c, err := r.Register(context.Background(), []string{"news"})
	require.NoError(t, err)
	r.Touch(context.Background(), c.ID)
	r.Deregister(context.Background(), c.ID)
	assert.Empty(t, s.Channels())
}
