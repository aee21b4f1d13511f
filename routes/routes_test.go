package routes

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/b-open-io/backplane/config"
	"github.com/b-open-io/backplane/publish"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(t *testing.T, h *harness, ctx context.Context, acl config.Channels) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	RegisterSSERoutes(app, &SSERoutesConfig{
		Relay:    h.relay,
		Channels: acl,
		Context:  ctx,
		Logger:   discard,
	})
	RegisterAPIRoutes(app, &APIRoutesConfig{
		Session:   h.session,
		Relay:     h.relay,
		Publisher: publish.NewBrokerPublish(h.broker),
		Channels:  acl,
		Presence:  h.tracker,
		Logger:    discard,
	})
	return app
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestPublishRoute(t *testing.T) {
	h := newHarness(t)
	app := newApp(t, h, context.Background(), config.Channels{
		"news":            {Subscribe: true, Publish: true},
		config.AnyChannel: {Subscribe: true},
	})

	c, err := h.relay.Register(context.Background(), []string{"news"})
	require.NoError(t, err)
	h.waitSubscribed(t, "news")

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/publish/news", strings.NewReader("hello")), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "news", body["channel"])
	assert.EqualValues(t, 1, body["receivers"])
	assert.Equal(t, Event{Channel: "news", Data: "hello"}, nextRelayed(t, c))

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/publish/news", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/publish/chat", strings.NewReader("hi")), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestStatusAndPresenceRoutes(t *testing.T) {
	h := newHarness(t)
	app := newApp(t, h, context.Background(), nil)

	c, err := h.relay.Register(context.Background(), []string{"news"})
	require.NoError(t, err)
	h.waitSubscribed(t, "news")
	require.Eventually(t, func() bool { return h.session.Status().Count == 1 }, waitFor, time.Millisecond)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/status", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, []any{"news"}, body["channels"])
	assert.EqualValues(t, 1, body["clients"])
	assert.EqualValues(t, 1, body["count"])
	assert.Contains(t, []any{"disconnected", "subscribed"}, body["state"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/channels/news/clients", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body = decode(t, resp)
	assert.Equal(t, []any{c.ID}, body["clients"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/channels/empty/clients", nil), -1)
	require.NoError(t, err)
	body = decode(t, resp)
	assert.Equal(t, []any{}, body["clients"])
}

func TestSubscribeRouteRejects(t *testing.T) {
	h := newHarness(t)
	app := newApp(t, h, context.Background(), config.Channels{"news": {Subscribe: true}})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/subscribe/news,secret", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/subscribe/,,", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, h.relay.Clients())
}

func TestSubscribeRouteStreams(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	app := newApp(t, h, ctx, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)
	defer func() {
		cancel()
		app.Shutdown()
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/subscribe/news")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	readLine := func() string {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		return strings.TrimSuffix(line, "\n")
	}

	assert.Equal(t, "event: connected", readLine())
	id := strings.TrimPrefix(readLine(), "data: ")
	assert.NotEmpty(t, id)
	assert.Equal(t, "", readLine())

	h.waitSubscribed(t, "news")
	_, err = h.broker.Publish(context.Background(), "news", "line one\nline two")
	require.NoError(t, err)

	assert.Equal(t, "event: news", readLine())
	assert.Equal(t, "data: line one", readLine())
	assert.Equal(t, "data: line two", readLine())
	assert.Equal(t, "", readLine())

	// shutting down ends the stream and releases the client
	cancel()
	_, err = io.ReadAll(r)
	assert.NoError(t, err)
	assert.Eventually(t, func() bool { return h.relay.Clients() == 0 }, waitFor, time.Millisecond)
}

func TestSplitChannels(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitChannels(" a,b,,a "))
	assert.Empty(t, splitChannels(""))
}
