package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgdesk/realtime-go/pkg/realtime"
	"github.com/orgdesk/realtime-go/pkg/transport"
	"github.com/orgdesk/realtime-go/pkg/transport/memory"
)

// syncBuffer is written from listener goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestConsole(t *testing.T, hub *memory.Hub, participant string) (*Console, *syncBuffer) {
	t.Helper()
	engine := realtime.New(hub, realtime.WithHealthTimeout(time.Second))
	out := &syncBuffer{}
	c := NewConsole(engine, participant, out)
	t.Cleanup(func() {
		c.Close()
		engine.Cleanup()
	})
	return c, out
}

func TestConsoleSubscribePrintsChanges(t *testing.T) {
	hub := memory.NewHub()
	defer hub.Close()
	c, out := newTestConsole(t, hub, "alice")
	ctx := context.Background()

	assert.False(t, c.Exec(ctx, "subscribe tasks"))
	assert.Contains(t, out.String(), "Subscribed to tasks")

	hub.PublishChange("tasks", transport.RawChange{
		Type:       transport.ChangeInsert,
		Collection: "tasks",
		New:        map[string]any{"id": "t-1"},
	})

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), `[tasks] INSERT {"id":"t-1"}`)
	}, time.Second, 5*time.Millisecond)

	c.Exec(ctx, "topics")
	assert.Contains(t, out.String(), "  tasks\n")

	c.Exec(ctx, "unsubscribe tasks")
	assert.Contains(t, out.String(), "Unsubscribed from tasks")
	assert.Eventually(t, func() bool { return hub.OpenChannels() == 0 }, time.Second, 5*time.Millisecond)
}

func TestConsoleBroadcastBetweenConsoles(t *testing.T) {
	hub := memory.NewHub()
	defer hub.Close()
	alice, _ := newTestConsole(t, hub, "alice")
	bob, bobOut := newTestConsole(t, hub, "bob")
	ctx := context.Background()

	alice.Exec(ctx, "subscribe room")
	bob.Exec(ctx, "subscribe room")

	alice.Exec(ctx, `broadcast room cursor {"x": 10, "y": 20}`)

	assert.Eventually(t, func() bool {
		return strings.Contains(bobOut.String(), `[room] BROADCAST cursor {"x":10,"y":20}`)
	}, time.Second, 5*time.Millisecond)
}

func TestConsolePresence(t *testing.T) {
	hub := memory.NewHub()
	defer hub.Close()
	c, out := newTestConsole(t, hub, "alice")
	ctx := context.Background()

	c.Exec(ctx, "track doc t-1")
	assert.Contains(t, out.String(), "Tracking alice on doc")

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[doc] + alice (editing t-1)")
	}, time.Second, 5*time.Millisecond)

	c.Exec(ctx, "presence doc")
	assert.Contains(t, out.String(), "  alice (editing t-1)\n")

	c.Exec(ctx, "untrack doc")
	assert.Contains(t, out.String(), "Untracked doc")

	c.Exec(ctx, "presence doc")
	assert.Contains(t, out.String(), "Nobody here")
}

func TestConsoleCheck(t *testing.T) {
	hub := memory.NewHub()
	defer hub.Close()
	c, out := newTestConsole(t, hub, "alice")

	c.Exec(context.Background(), "check")
	assert.Contains(t, out.String(), "Connected, subscribe round trip")

	hub.FailSubscribe(transport.ErrSubscribeRejected)
	c.Exec(context.Background(), "check")
	assert.Contains(t, out.String(), "Not connected:")
}

func TestConsoleResolve(t *testing.T) {
	hub := memory.NewHub()
	defer hub.Close()
	c, out := newTestConsole(t, hub, "alice")

	c.Exec(context.Background(),
		`resolve {"id": "1", "title": "local", "updated_at": "2026-01-02T00:00:00Z"} {"id": "1", "title": "remote", "updated_at": "2026-01-01T00:00:00Z"} title`)

	s := out.String()
	assert.Contains(t, s, `"title":"local"`)
	assert.Contains(t, s, "title: local=local remote=remote")
	assert.Contains(t, s, "Kept local: title")

	c.Exec(context.Background(), `resolve {"id": "1"} {"id": "1"} title`)
	assert.Contains(t, out.String(), "No conflicts")
}

func TestConsoleErrors(t *testing.T) {
	hub := memory.NewHub()
	defer hub.Close()
	c, out := newTestConsole(t, hub, "alice")
	ctx := context.Background()

	tests := []struct {
		line string
		want string
	}{
		{"subscribe", "usage: subscribe"},
		{"unsubscribe nothing", "not subscribed to nothing"},
		{"broadcast room", "usage: broadcast"},
		{"broadcast room cursor {bad", "invalid payload"},
		{"untrack doc", "not tracking doc"},
		{"resolve {}", "usage: resolve"},
		{"dance", "unknown command: dance"},
	}
	for _, tt := range tests {
		c.Exec(ctx, tt.line)
		assert.Contains(t, out.String(), tt.want, tt.line)
	}
}

func TestConsoleQuit(t *testing.T) {
	hub := memory.NewHub()
	defer hub.Close()
	c, _ := newTestConsole(t, hub, "alice")
	ctx := context.Background()

	require.False(t, c.Exec(ctx, "subscribe tasks"))
	require.False(t, c.Exec(ctx, ""))
	assert.True(t, c.Exec(ctx, "quit"))
	assert.Eventually(t, func() bool { return hub.OpenChannels() == 0 }, time.Second, 5*time.Millisecond)
}

func TestConsoleResolveAllFields(t *testing.T) {
	hub := memory.NewHub()
	defer hub.Close()
	c, out := newTestConsole(t, hub, "alice")

	c.Exec(context.Background(), `resolve {"id": "1", "a": 1, "b": 2} {"id": "1", "a": 1, "b": 3}`)

	s := out.String()
	assert.Contains(t, s, "b: local=2 remote=3")
	assert.NotContains(t, s, "a: local")
	assert.Contains(t, s, `"b":3`, "remote wins without timestamps")
}
