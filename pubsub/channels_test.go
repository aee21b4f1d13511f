package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	kind    string
	channel string
	payload string
	count   int
}

func recordingHandler(out chan<- recordedEvent) Handler {
	return Handler{
		OnMessage: func(channel, payload string) {
			out <- recordedEvent{kind: "message", channel: channel, payload: payload}
		},
		OnSubscribe: func(channel string, count int) {
			out <- recordedEvent{kind: "subscribe", channel: channel, count: count}
		},
		OnUnsubscribe: func(channel string, count int) {
			out <- recordedEvent{kind: "unsubscribe", channel: channel, count: count}
		},
	}
}

func nextEvent(t *testing.T, events <-chan recordedEvent) recordedEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
		return recordedEvent{}
	}
}

func TestBrokerListen(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()

	conn, err := b.Dial(ctx)
	require.NoError(t, err)

	events := make(chan recordedEvent, 16)
	done := make(chan error, 1)
	go func() { done <- conn.Listen(ctx, recordingHandler(events), "a", "b") }()

	assert.Equal(t, recordedEvent{kind: "subscribe", channel: "a", count: 1}, nextEvent(t, events))
	assert.Equal(t, recordedEvent{kind: "subscribe", channel: "b", count: 2}, nextEvent(t, events))

	n, err := b.Publish(ctx, "a", "hello")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, recordedEvent{kind: "message", channel: "a", payload: "hello"}, nextEvent(t, events))

	n, err = b.Publish(ctx, "nobody", "x")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, conn.Unsubscribe(ctx, "a"))
	assert.Equal(t, recordedEvent{kind: "unsubscribe", channel: "a", count: 1}, nextEvent(t, events))
	require.NoError(t, conn.Unsubscribe(ctx, "b"))
	assert.Equal(t, recordedEvent{kind: "unsubscribe", channel: "b", count: 0}, nextEvent(t, events))

	select {
	case err := <-done:
		assert.NoError(t, err, "listen returns cleanly once every channel is gone")
	case <-time.After(2 * time.Second):
		t.Fatal("listen did not return")
	}
	assert.Zero(t, b.Subscribers("a"))
}

func TestBrokerQueuesBeforeListen(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()

	conn, err := b.Dial(ctx)
	require.NoError(t, err)
	require.NoError(t, conn.Subscribe(ctx, "early"))
	_, err = b.Publish(ctx, "early", "queued")
	require.NoError(t, err)

	events := make(chan recordedEvent, 16)
	go conn.Listen(ctx, recordingHandler(events), "late")
	defer conn.Close()

	assert.Equal(t, "early", nextEvent(t, events).channel)
	assert.Equal(t, recordedEvent{kind: "message", channel: "early", payload: "queued"}, nextEvent(t, events))
	assert.Equal(t, recordedEvent{kind: "subscribe", channel: "late", count: 2}, nextEvent(t, events))
}

func TestBrokerDisconnect(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()

	conn, err := b.Dial(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- conn.Listen(ctx, Handler{}, "a") }()
	require.Eventually(t, func() bool { return b.Subscribers("a") == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, 1, b.Disconnect())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrConnClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("listen did not return")
	}
	assert.ErrorIs(t, conn.Ping(ctx), ErrConnClosed)
	assert.ErrorIs(t, conn.Subscribe(ctx, "b"), ErrConnClosed)
	assert.Zero(t, b.Subscribers("a"))
}

func TestBrokerSingleListen(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())

	conn, err := b.Dial(ctx)
	require.NoError(t, err)

	events := make(chan recordedEvent, 4)
	done := make(chan error, 1)
	go func() { done <- conn.Listen(ctx, recordingHandler(events), "a") }()
	nextEvent(t, events)

	assert.ErrorIs(t, conn.Listen(ctx, Handler{}, "b"), ErrAlreadyListening)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestBrokerClose(t *testing.T) {
	b := NewBroker()
	require.NoError(t, b.Close())

	_, err := b.Dial(context.Background())
	assert.ErrorIs(t, err, ErrBrokerClosed)
	_, err = b.Publish(context.Background(), "a", "x")
	assert.ErrorIs(t, err, ErrBrokerClosed)
}
