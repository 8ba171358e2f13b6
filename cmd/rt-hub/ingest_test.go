package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgdesk/realtime-go/pkg/journal"
	"github.com/orgdesk/realtime-go/pkg/transport"
	"github.com/orgdesk/realtime-go/pkg/transport/memory"
)

type recordingPublisher struct {
	mu        sync.Mutex
	published []ingestRequest
}

func (p *recordingPublisher) PublishChange(topic string, change transport.RawChange) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, ingestRequest{Topic: topic, Change: change})
	return 2
}

var fixedNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func newTestHandler(t *testing.T, withJournal bool) (*ingestHandler, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	h := &ingestHandler{
		hub:    pub,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    func() time.Time { return fixedNow },
	}
	if withJournal {
		j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
		require.NoError(t, err)
		t.Cleanup(func() { j.Close() })
		h.journal = j
	}
	return h, pub
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/changes", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, query string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/changes?"+query, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const insertBody = `{"topic":"tasks","change":{"type":"INSERT","collection":"tasks","new":{"id":"t-1","title":"Write docs"}}}`

func TestIngestPublishesAndJournals(t *testing.T) {
	h, pub := newTestHandler(t, true)

	rec := post(t, h, insertBody)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp ingestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Delivered)
	assert.NotEmpty(t, resp.ID)

	require.Len(t, pub.published, 1)
	assert.Equal(t, "tasks", pub.published[0].Topic)
	assert.Equal(t, transport.ChangeInsert, pub.published[0].Change.Type)
	assert.Equal(t, fixedNow, pub.published[0].Change.CommitTimestamp, "missing commit timestamp defaults to now")

	rec = get(t, h, "topic=tasks")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var page catchUpResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Entries, 1)
	assert.Equal(t, resp.ID, page.Next)
	assert.Equal(t, "t-1", page.Entries[0].Change.New["id"])
}

func TestIngestWithoutJournal(t *testing.T) {
	h, pub := newTestHandler(t, false)

	rec := post(t, h, insertBody)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp ingestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.ID)
	assert.Len(t, pub.published, 1)

	assert.Equal(t, http.StatusNotFound, get(t, h, "topic=tasks").Code)
}

func TestIngestAcceptsChangeWithOnlyOtherRecord(t *testing.T) {
	h, pub := newTestHandler(t, false)
	rec := post(t, h, `{"topic":"tasks","change":{"type":"INSERT","old":{"id":"1"}}}`)
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Len(t, pub.published, 1)
}

func TestIngestRejectsInvalidChanges(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"not json", `{`, http.StatusBadRequest},
		{"unknown field", `{"topic":"tasks","payload":{}}`, http.StatusBadRequest},
		{"missing topic", `{"change":{"type":"INSERT","new":{"id":"1"}}}`, http.StatusBadRequest},
		{"no records", `{"topic":"tasks","change":{"type":"UPDATE"}}`, http.StatusUnprocessableEntity},
		{"unknown type", `{"topic":"tasks","change":{"type":"UPSERT","new":{"id":"1"}}}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, pub := newTestHandler(t, false)
			rec := post(t, h, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.Empty(t, pub.published)
		})
	}
}

func TestCatchUpPaging(t *testing.T) {
	h, _ := newTestHandler(t, true)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusAccepted, post(t, h, insertBody).Code)
	}

	var first catchUpResponse
	rec := get(t, h, "topic=tasks&limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.Len(t, first.Entries, 2)

	var second catchUpResponse
	rec = get(t, h, "topic=tasks&after="+first.Next)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	require.Len(t, second.Entries, 1)
	assert.Greater(t, second.Entries[0].ID.String(), first.Next)

	var empty catchUpResponse
	rec = get(t, h, "topic=tasks&after="+second.Next)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &empty))
	assert.Empty(t, empty.Entries)
	assert.Empty(t, empty.Next)
}

func TestCatchUpRejectsBadQueries(t *testing.T) {
	h, _ := newTestHandler(t, true)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "").Code, "missing topic")
	assert.Equal(t, http.StatusBadRequest, get(t, h, "topic=tasks&after=nope").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "topic=tasks&limit=ten").Code)
}

func TestIngestMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t, false)
	req := httptest.NewRequest(http.MethodDelete, "/v1/changes", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))
}

func TestIngestDeliversToHubChannel(t *testing.T) {
	hub := memory.NewHub()
	defer hub.Close()

	ch, err := hub.Open("tasks")
	require.NoError(t, err)
	events := make(chan transport.Event, 1)
	ch.OnEvent(func(ev transport.Event) { events <- ev })
	status, err := transport.SubscribeAndWait(t.Context(), ch, nil)
	require.NoError(t, err)
	require.Equal(t, transport.StatusSubscribed, status)

	h := &ingestHandler{hub: hub, logger: slog.New(slog.NewTextHandler(io.Discard, nil)), now: time.Now}
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Post(srv.URL, "application/json", bytes.NewBufferString(insertBody))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case ev := <-events:
		require.NotNil(t, ev.Change)
		assert.Equal(t, "t-1", ev.Change.New["id"])
	case <-time.After(time.Second):
		t.Fatal("change not delivered")
	}
}
