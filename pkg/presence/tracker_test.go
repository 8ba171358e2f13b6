package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/orgdesk/realtime-go/pkg/changes"
	"github.com/orgdesk/realtime-go/pkg/transport"
	"github.com/orgdesk/realtime-go/pkg/transport/memory"
	"github.com/orgdesk/realtime-go/pkg/transport/mocks"
)

const waitTimeout = 2 * time.Second

type roster struct {
	joins  chan string
	leaves chan string
	syncs  chan State
	errs   chan error
}

func newRoster() *roster {
	return &roster{
		joins:  make(chan string, 32),
		leaves: make(chan string, 32),
		syncs:  make(chan State, 32),
		errs:   make(chan error, 32),
	}
}

func (r *roster) callbacks() Callbacks {
	return Callbacks{
		OnSync:  func(s State) { r.syncs <- s },
		OnJoin:  func(id string, _ []Entry) { r.joins <- id },
		OnLeave: func(id string, _ []Entry) { r.leaves <- id },
		OnError: func(err error) { r.errs <- err },
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for callback")
	}
	var zero T
	return zero
}

func expectNone[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected callback: %v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTrackValidation(t *testing.T) {
	tr := New(memory.NewHub())

	_, err := tr.Track(context.Background(), "", "u1", "", Callbacks{})
	assert.ErrorIs(t, err, ErrEmptyTopic)

	_, err = tr.Track(context.Background(), "doc:1", "", "", Callbacks{})
	assert.ErrorIs(t, err, ErrEmptyParticipant)
}

func TestStateOfUntrackedTopicIsEmpty(t *testing.T) {
	tr := New(memory.NewHub())

	s := tr.State("doc:unknown")
	assert.NotNil(t, s)
	assert.Empty(t, s)
}

func TestTrackJoinAndLeave(t *testing.T) {
	hub := memory.NewHub()
	alice, bob := New(hub), New(hub)
	ar, br := newRoster(), newRoster()

	untrackA, err := alice.Track(context.Background(), "doc:1", "alice", "", ar.callbacks())
	require.NoError(t, err)
	defer untrackA()
	assert.Equal(t, "alice", receive(t, ar.joins))

	untrackB, err := bob.Track(context.Background(), "doc:1", "bob", "rec-7", br.callbacks())
	require.NoError(t, err)

	assert.Equal(t, "bob", receive(t, ar.joins))

	require.Eventually(t, func() bool {
		return len(alice.State("doc:1")) == 2
	}, waitTimeout, 5*time.Millisecond)

	state := alice.State("doc:1")
	require.Len(t, state["bob"], 1)
	assert.Equal(t, Editing, state["bob"][0].Intent)
	assert.Equal(t, "rec-7", state["bob"][0].RecordID)
	assert.Equal(t, []string{"bob"}, state.Editors("rec-7"))

	untrackB()
	assert.Equal(t, "bob", receive(t, ar.leaves))
	expectNone(t, ar.errs)

	require.Eventually(t, func() bool {
		return len(alice.State("doc:1")) == 1
	}, waitTimeout, 5*time.Millisecond)
	assert.Empty(t, bob.State("doc:1"))
}

func TestSyncFiresForEverySnapshot(t *testing.T) {
	hub := memory.NewHub()
	tr := New(hub)
	r := newRoster()

	untrack, err := tr.Track(context.Background(), "doc:1", "u1", "", r.callbacks())
	require.NoError(t, err)
	defer untrack()

	first := receive(t, r.syncs)
	assert.Equal(t, []string{"u1"}, first.Participants())

	// Moving from viewing to editing is a roster update, not a join.
	_, err = tr.Track(context.Background(), "doc:1", "u1", "rec-1", r.callbacks())
	require.NoError(t, err)

	second := receive(t, r.syncs)
	require.Len(t, second["u1"], 1)
	assert.Equal(t, Editing, second["u1"][0].Intent)

	assert.Equal(t, "u1", receive(t, r.joins))
	expectNone(t, r.joins)
	assert.Equal(t, 1, hub.OpenChannels())
}

func TestTrackDifferentParticipantReplacesChannel(t *testing.T) {
	hub := memory.NewHub()
	tr := New(hub)

	_, err := tr.Track(context.Background(), "doc:1", "u1", "", Callbacks{})
	require.NoError(t, err)
	_, err = tr.Track(context.Background(), "doc:1", "u2", "", Callbacks{})
	require.NoError(t, err)

	assert.Equal(t, 1, hub.OpenChannels())
	require.Eventually(t, func() bool {
		r := hub.Roster("doc:1")
		_, hasU1 := r["u1"]
		_, hasU2 := r["u2"]
		return !hasU1 && hasU2
	}, waitTimeout, 5*time.Millisecond)
}

func TestCleanupClosesEverything(t *testing.T) {
	hub := memory.NewHub()
	tr := New(hub)

	for _, topic := range []string{"doc:1", "doc:2", "doc:3"} {
		_, err := tr.Track(context.Background(), topic, "u1", "", Callbacks{})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, tr.Topics())

	tr.Cleanup()
	tr.Cleanup()

	assert.Equal(t, 0, hub.OpenChannels())
	assert.Equal(t, 0, tr.Topics())
	assert.Empty(t, hub.Roster("doc:1"))
	assert.Empty(t, tr.State("doc:1"))

	_, err := tr.Track(context.Background(), "doc:1", "u1", "", Callbacks{})
	assert.ErrorIs(t, err, ErrTrackerClosed)
}

func TestUntrackIsIdempotent(t *testing.T) {
	hub := memory.NewHub()
	tr := New(hub)

	untrack, err := tr.Track(context.Background(), "doc:1", "u1", "", Callbacks{})
	require.NoError(t, err)

	untrack()
	untrack()

	assert.Equal(t, 0, hub.OpenChannels())
	assert.Equal(t, 0, tr.Topics())
}

func TestTrackSubscribeFailure(t *testing.T) {
	hub := memory.NewHub()
	denied := errors.New("presence disabled")
	hub.FailSubscribe(denied)
	tr := New(hub)
	r := newRoster()

	untrack, err := tr.Track(context.Background(), "doc:1", "u1", "", r.callbacks())
	require.NoError(t, err)
	defer untrack()

	got := receive(t, r.errs)
	var terr *transport.Error
	require.True(t, errors.As(got, &terr))
	assert.ErrorIs(t, got, denied)
	assert.Empty(t, hub.Roster("doc:1"))
}

func TestTrackOpenFailure(t *testing.T) {
	mt := mocks.NewMockTransport(t)
	boom := errors.New("no route")
	mt.EXPECT().Open("doc:1").Return(nil, boom).Once()

	tr := New(mt)
	r := newRoster()

	untrack, err := tr.Track(context.Background(), "doc:1", "u1", "", r.callbacks())
	require.NoError(t, err)
	untrack()

	assert.ErrorIs(t, receive(t, r.errs), boom)
	assert.Equal(t, 0, tr.Topics())
}

func TestPanickingCallbackGoesToOnError(t *testing.T) {
	hub := memory.NewHub()
	tr := New(hub)
	errs := make(chan error, 8)

	untrack, err := tr.Track(context.Background(), "doc:1", "u1", "", Callbacks{
		OnJoin:  func(string, []Entry) { panic("bad join handler") },
		OnError: func(err error) { errs <- err },
	})
	require.NoError(t, err)
	defer untrack()

	got := receive(t, errs)
	var lErr *changes.ListenerError
	require.True(t, errors.As(got, &lErr))
	assert.Equal(t, "OnJoin", lErr.Callback)
	assert.ErrorIs(t, got, changes.ErrListenerPanic)
}

func TestTrackWithClock(t *testing.T) {
	hub := memory.NewHub()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tr := New(hub, WithClock(func() time.Time { return fixed }))

	var mu sync.Mutex
	var last State
	untrack, err := tr.Track(context.Background(), "doc:1", "u1", "", Callbacks{
		OnSync: func(s State) {
			mu.Lock()
			last = s
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	defer untrack()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last["u1"]) == 1
	}, waitTimeout, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, last["u1"][0].LastSeenAt.Equal(fixed))
}

func TestRetrackKeepsRegistrationAfterReplacedUntrack(t *testing.T) {
	hub := memory.NewHub()
	tr := New(hub)

	replaced, err := tr.Track(context.Background(), "doc:1", "u1", "", Callbacks{})
	require.NoError(t, err)
	current, err := tr.Track(context.Background(), "doc:1", "u1", "rec-9", Callbacks{})
	require.NoError(t, err)

	replaced()

	assert.Equal(t, 1, hub.OpenChannels())
	assert.Equal(t, 1, tr.Topics())
	require.Eventually(t, func() bool {
		metas := hub.Roster("doc:1")["u1"]
		return len(metas) == 1 && metas[0][metaRecord] == "rec-9"
	}, waitTimeout, 5*time.Millisecond)

	current()
	assert.Equal(t, 0, hub.OpenChannels())
	assert.Equal(t, 0, tr.Topics())
}

// flakyChannel wires a mock channel whose status the test drives.
type flakyChannel struct {
	ch *mocks.MockChannel

	mu     sync.Mutex
	status transport.Status
	cb     transport.StatusHandler
	sent   chan transport.Message
}

func newFlakyChannel(t *testing.T, first transport.Status, firstErr error) *flakyChannel {
	f := &flakyChannel{
		ch:     mocks.NewMockChannel(t),
		status: transport.StatusConnecting,
		sent:   make(chan transport.Message, 8),
	}
	f.ch.EXPECT().OnEvent(mock.Anything).Return()
	f.ch.EXPECT().Subscribe(mock.Anything).RunAndReturn(func(cb transport.StatusHandler) error {
		f.mu.Lock()
		f.cb = cb
		f.mu.Unlock()
		f.set(first, firstErr)
		return nil
	})
	f.ch.EXPECT().Status().RunAndReturn(func() transport.Status {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.status
	}).Maybe()
	f.ch.EXPECT().Send(mock.Anything, mock.Anything).RunAndReturn(func(_ context.Context, msg transport.Message) error {
		f.sent <- msg
		return nil
	}).Maybe()
	f.ch.EXPECT().Close().Return(nil).Maybe()
	return f
}

func (f *flakyChannel) set(status transport.Status, err error) {
	f.mu.Lock()
	f.status = status
	cb := f.cb
	f.mu.Unlock()
	cb(status, err)
}

func TestTrackSendsEntryOnceSubscribedAfterError(t *testing.T) {
	f := newFlakyChannel(t, transport.StatusError, transport.ErrConnectionLost)
	mt := mocks.NewMockTransport(t)
	mt.EXPECT().Open("doc:1").Return(f.ch, nil).Once()

	tr := New(mt)
	r := newRoster()
	untrack, err := tr.Track(context.Background(), "doc:1", "u1", "", r.callbacks())
	require.NoError(t, err)
	defer untrack()

	assert.ErrorIs(t, receive(t, r.errs), transport.ErrConnectionLost)
	expectNone(t, f.sent)

	f.set(transport.StatusSubscribed, nil)
	msg := receive(t, f.sent)
	assert.Equal(t, transport.MessageTrack, msg.Kind)
	assert.Equal(t, "u1", msg.Key)

	// Losing the subscription again means the hub dropped the entry.
	f.set(transport.StatusError, transport.ErrConnectionLost)
	f.set(transport.StatusSubscribed, nil)
	msg = receive(t, f.sent)
	assert.Equal(t, transport.MessageTrack, msg.Kind)
	expectNone(t, f.sent)
}

func TestTrackSendsEntryOnce(t *testing.T) {
	f := newFlakyChannel(t, transport.StatusSubscribed, nil)
	mt := mocks.NewMockTransport(t)
	mt.EXPECT().Open("doc:1").Return(f.ch, nil).Once()

	tr := New(mt)
	untrack, err := tr.Track(context.Background(), "doc:1", "u1", "rec-1", Callbacks{})
	require.NoError(t, err)

	msg := receive(t, f.sent)
	assert.Equal(t, transport.MessageTrack, msg.Kind)
	assert.Equal(t, "rec-1", msg.Payload[metaRecord])
	expectNone(t, f.sent)

	untrack()
	msg = receive(t, f.sent)
	assert.Equal(t, transport.MessageUntrack, msg.Kind)
}
