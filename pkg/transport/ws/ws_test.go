package ws

import (
	"context"
	"crypto/x509"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgdesk/realtime-go/pkg/connection"
	"github.com/orgdesk/realtime-go/pkg/log"
	"github.com/orgdesk/realtime-go/pkg/transport"
	"github.com/orgdesk/realtime-go/pkg/transport/memory"
)

const waitFor = 2 * time.Second

// testEnv runs a websocket server in front of a memory hub. The serving
// Server can be swapped to simulate a server restart.
type testEnv struct {
	hub     *memory.Hub
	current atomic.Pointer[Server]
	http    *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{hub: memory.NewHub()}
	env.current.Store(NewServer(env.hub, ServerConfig{}))
	env.http = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.current.Load().ServeHTTP(w, r)
	}))
	t.Cleanup(func() {
		_ = env.current.Load().Close()
		env.http.Close()
		env.hub.Close()
	})
	return env
}

func (env *testEnv) url() string {
	return "ws" + strings.TrimPrefix(env.http.URL, "http")
}

// restart disconnects every client; later connections reach a new Server.
func (env *testEnv) restart() {
	old := env.current.Swap(NewServer(env.hub, ServerConfig{}))
	_ = old.Close()
}

func (env *testEnv) dial(t *testing.T, opts ...func(*ClientConfig)) *Client {
	t.Helper()
	cfg := ClientConfig{
		URL: env.url(),
		Backoff: connection.Policy{
			Initial:    10 * time.Millisecond,
			Max:        50 * time.Millisecond,
			Multiplier: 2,
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	c, err := Dial(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// statusRecorder collects status transitions of a channel.
type statusRecorder struct {
	mu       sync.Mutex
	statuses []transport.Status
	errs     []error
}

func (r *statusRecorder) handle(s transport.Status, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
	r.errs = append(r.errs, err)
}

func (r *statusRecorder) snapshot() ([]transport.Status, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transport.Status(nil), r.statuses...), append([]error(nil), r.errs...)
}

func (r *statusRecorder) count(s transport.Status) int {
	statuses, _ := r.snapshot()
	n := 0
	for _, got := range statuses {
		if got == s {
			n++
		}
	}
	return n
}

func subscribe(t *testing.T, c *Client, topic string, events chan<- transport.Event) (transport.Channel, *statusRecorder) {
	t.Helper()
	ch, err := c.Open(topic)
	require.NoError(t, err)
	if events != nil {
		ch.OnEvent(func(ev transport.Event) { events <- ev })
	}
	rec := &statusRecorder{}
	status, err := transport.SubscribeAndWait(context.Background(), ch, rec.handle)
	require.NoError(t, err)
	require.Equal(t, transport.StatusSubscribed, status)
	return ch, rec
}

func receive(t *testing.T, events <-chan transport.Event) transport.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(waitFor):
		t.Fatal("no event received")
		return transport.Event{}
	}
}

func TestSubscribeAndReceiveChange(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)

	events := make(chan transport.Event, 4)
	ch, _ := subscribe(t, c, "org:42", events)
	assert.Equal(t, transport.StatusSubscribed, ch.Status())
	assert.Equal(t, 1, env.hub.Subscribers("org:42"))

	env.hub.PublishChange("org:42", transport.RawChange{
		Type:            transport.ChangeUpdate,
		Collection:      "org",
		New:             map[string]any{"id": "42", "name": "Acme"},
		Old:             map[string]any{"id": "42", "name": "Acme Inc"},
		CommitTimestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})

	ev := receive(t, events)
	require.Equal(t, transport.KindChange, ev.Kind)
	require.NotNil(t, ev.Change)
	assert.Equal(t, "org:42", ev.Topic)
	assert.Equal(t, transport.ChangeUpdate, ev.Change.Type)
	assert.Equal(t, "Acme", ev.Change.New["name"])
	assert.Equal(t, "Acme Inc", ev.Change.Old["name"])
	assert.True(t, ev.Change.CommitTimestamp.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestBroadcastBetweenClients(t *testing.T) {
	env := newTestEnv(t)
	a := env.dial(t)
	b := env.dial(t)

	aEvents := make(chan transport.Event, 4)
	bEvents := make(chan transport.Event, 4)
	chA, _ := subscribe(t, a, "room", aEvents)
	subscribe(t, b, "room", bEvents)

	err := chA.Send(context.Background(), transport.Message{
		Kind:    transport.MessageBroadcast,
		Event:   "cursor",
		Payload: map[string]any{"x": "10"},
	})
	require.NoError(t, err)

	ev := receive(t, bEvents)
	require.Equal(t, transport.KindBroadcast, ev.Kind)
	assert.Equal(t, "cursor", ev.Broadcast.Event)
	assert.Equal(t, "10", ev.Broadcast.Payload["x"])

	select {
	case ev := <-aEvents:
		t.Fatalf("sender received its own broadcast: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPresenceRosterOverWebsocket(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)

	events := make(chan transport.Event, 8)
	ch, _ := subscribe(t, c, "doc:1", events)

	err := ch.Send(context.Background(), transport.Message{
		Kind:    transport.MessageTrack,
		Key:     "alice",
		Payload: map[string]any{"participant_id": "alice", "intent": "viewing"},
	})
	require.NoError(t, err)

	ev := receive(t, events)
	require.Equal(t, transport.KindPresence, ev.Kind)
	require.Len(t, ev.Presence["alice"], 1)
	assert.Equal(t, "viewing", ev.Presence["alice"][0]["intent"])
}

func TestJoinRejected(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)

	rejection := errors.New("not allowed")
	env.hub.FailSubscribe(rejection)

	ch, err := c.Open("secret")
	require.NoError(t, err)
	status, err := transport.SubscribeAndWait(context.Background(), ch, nil)
	assert.Equal(t, transport.StatusError, status)
	assert.ErrorIs(t, err, transport.ErrSubscribeRejected)
	assert.Contains(t, err.Error(), "not allowed")
	assert.Equal(t, transport.StatusError, ch.Status())
}

func TestChannelCloseLeavesHub(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)

	ch, _ := subscribe(t, c, "org:7", nil)
	require.Equal(t, 1, env.hub.Subscribers("org:7"))

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	assert.Equal(t, transport.StatusClosed, ch.Status())

	assert.Eventually(t, func() bool {
		return env.hub.Subscribers("org:7") == 0 && env.hub.OpenChannels() == 0
	}, waitFor, 10*time.Millisecond)

	err := ch.Send(context.Background(), transport.Message{Kind: transport.MessageBroadcast, Event: "x"})
	assert.ErrorIs(t, err, transport.ErrChannelClosed)
}

func TestSendBeforeSubscribe(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)

	ch, err := c.Open("org:1")
	require.NoError(t, err)
	err = ch.Send(context.Background(), transport.Message{Kind: transport.MessageBroadcast, Event: "x"})
	assert.ErrorIs(t, err, transport.ErrNotSubscribed)
}

func TestDoubleSubscribe(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)

	ch, _ := subscribe(t, c, "org:1", nil)
	assert.ErrorIs(t, ch.Subscribe(func(transport.Status, error) {}), transport.ErrAlreadySubscribed)
}

func TestReconnectRejoinsChannels(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)

	events := make(chan transport.Event, 4)
	_, rec := subscribe(t, c, "org:42", events)

	env.restart()

	require.Eventually(t, func() bool {
		return rec.count(transport.StatusError) >= 1 && rec.count(transport.StatusSubscribed) >= 2
	}, waitFor, 10*time.Millisecond)

	statuses, errs := rec.snapshot()
	for i, s := range statuses {
		if s == transport.StatusError {
			assert.ErrorIs(t, errs[i], transport.ErrConnectionLost)
		}
	}
	assert.Equal(t, connection.StateConnected, c.State())

	require.Eventually(t, func() bool {
		return env.hub.Subscribers("org:42") == 1
	}, waitFor, 10*time.Millisecond)

	env.hub.PublishChange("org:42", transport.RawChange{
		Type:       transport.ChangeInsert,
		Collection: "org",
		New:        map[string]any{"id": "42"},
	})
	ev := receive(t, events)
	assert.Equal(t, transport.ChangeInsert, ev.Change.Type)
}

func TestServerClosedChannel(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)

	ch, rec := subscribe(t, c, "org:9", nil)

	// Closing the hub closes the server-side channel.
	env.hub.Close()

	require.Eventually(t, func() bool {
		return rec.count(transport.StatusClosed) == 1
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, transport.StatusClosed, ch.Status())
}

func TestKeepAliveMeasuresLatency(t *testing.T) {
	env := newTestEnv(t)

	var mu sync.Mutex
	var pongs int
	logger := loggerFunc(func(e log.Event) {
		if e.Control != nil && e.Control.Type == log.ControlMsgPong && e.Direction == log.DirectionIn {
			mu.Lock()
			pongs++
			mu.Unlock()
		}
	})

	c := env.dial(t, func(cfg *ClientConfig) {
		cfg.KeepAlive = transport.KeepAliveConfig{
			PingInterval:   20 * time.Millisecond,
			PongTimeout:    10 * time.Millisecond,
			MaxMissedPongs: 3,
		}
		cfg.Logger = logger
	})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return pongs >= 2
	}, waitFor, 10*time.Millisecond)
	assert.Greater(t, c.Latency(), time.Duration(0))
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	_, err := Dial(context.Background(), ClientConfig{URL: url, ConnectTimeout: time.Second})
	assert.Error(t, err)

	_, err = Dial(context.Background(), ClientConfig{})
	assert.Error(t, err)
}

func TestClientClose(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)

	ch, rec := subscribe(t, c, "org:1", nil)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.Equal(t, transport.StatusClosed, ch.Status())
	assert.Eventually(t, func() bool {
		return rec.count(transport.StatusClosed) == 1
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, 0, rec.count(transport.StatusError))

	_, err := c.Open("org:2")
	assert.ErrorIs(t, err, ErrClientClosed)

	assert.Eventually(t, func() bool {
		return env.current.Load().ConnectionCount() == 0 && env.hub.OpenChannels() == 0
	}, waitFor, 10*time.Millisecond)
}

func TestServerRejectsAfterClose(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.current.Load().Close())

	_, err := Dial(context.Background(), ClientConfig{URL: env.url(), ConnectTimeout: time.Second})
	assert.Error(t, err)
}

type loggerFunc func(log.Event)

func (f loggerFunc) Log(e log.Event) { f(e) }

func TestSecureWebsocket(t *testing.T) {
	hub := memory.NewHub()
	defer hub.Close()
	server := NewServer(hub, ServerConfig{})
	defer server.Close()

	srv := httptest.NewTLSServer(server)
	defer srv.Close()

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	dialer := *websocket.DefaultDialer
	dialer.TLSClientConfig = transport.NewClientTLSConfig(&transport.TLSConfig{RootCAs: pool})

	c, err := Dial(context.Background(), ClientConfig{
		URL:    "wss" + strings.TrimPrefix(srv.URL, "https"),
		Dialer: &dialer,
	})
	require.NoError(t, err)
	defer c.Close()

	events := make(chan transport.Event, 1)
	subscribe(t, c, "secure", events)
	hub.PublishChange("secure", transport.RawChange{
		Type:       transport.ChangeInsert,
		Collection: "notes",
		New:        map[string]any{"id": "n-1"},
	})

	select {
	case ev := <-events:
		require.NotNil(t, ev.Change)
		assert.Equal(t, "n-1", ev.Change.New["id"])
	case <-time.After(waitFor):
		t.Fatal("change not delivered over wss")
	}
}

func TestSecureWebsocketUntrustedCertificate(t *testing.T) {
	hub := memory.NewHub()
	defer hub.Close()
	server := NewServer(hub, ServerConfig{})
	defer server.Close()

	srv := httptest.NewTLSServer(server)
	defer srv.Close()

	dialer := *websocket.DefaultDialer
	dialer.TLSClientConfig = transport.NewClientTLSConfig(&transport.TLSConfig{RootCAs: x509.NewCertPool()})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := Dial(ctx, ClientConfig{
		URL:            "wss" + strings.TrimPrefix(srv.URL, "https"),
		Dialer:         &dialer,
		ConnectTimeout: 200 * time.Millisecond,
		Backoff:        connection.Policy{Initial: 10 * time.Millisecond, Max: 20 * time.Millisecond, Multiplier: 2},
	})
	assert.Error(t, err)
}
