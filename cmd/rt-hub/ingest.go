package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/orgdesk/realtime-go/pkg/changes"
	"github.com/orgdesk/realtime-go/pkg/journal"
	"github.com/orgdesk/realtime-go/pkg/transport"
)

// maxIngestBody bounds a POSTed change.
const maxIngestBody = 1 << 20

type publisher interface {
	PublishChange(topic string, change transport.RawChange) int
}

type changeStore interface {
	Append(ctx context.Context, topic string, change transport.RawChange) (journal.Entry, error)
	Since(ctx context.Context, topic string, after ulid.ULID, limit int) ([]journal.Entry, error)
}

// ingestRequest is the body of POST {ingest_path}.
type ingestRequest struct {
	Topic  string              `json:"topic"`
	Change transport.RawChange `json:"change"`
}

type ingestResponse struct {
	ID        string `json:"id,omitempty"`
	Delivered int    `json:"delivered"`
}

type catchUpResponse struct {
	Entries []journal.Entry `json:"entries"`
	Next    string          `json:"next,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ingestHandler accepts record changes from a producer, journals them and
// publishes them to subscribed channels. GET replays the journal of a topic
// after a cursor.
type ingestHandler struct {
	hub     publisher
	journal changeStore // nil when journaling is disabled
	logger  *slog.Logger
	now     func() time.Time
}

func (h *ingestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.ingest(w, r)
	case http.MethodGet:
		h.catchUp(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	}
}

func (h *ingestHandler) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body: " + err.Error()})
		return
	}
	if req.Topic == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: journal.ErrEmptyTopic.Error()})
		return
	}
	if _, err := changes.Translate(req.Change); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	if req.Change.CommitTimestamp.IsZero() {
		req.Change.CommitTimestamp = h.now().UTC()
	}

	var resp ingestResponse
	if h.journal != nil {
		entry, err := h.journal.Append(r.Context(), req.Topic, req.Change)
		if err != nil {
			h.logger.Error("journal append failed", "topic", req.Topic, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "journal unavailable"})
			return
		}
		resp.ID = entry.ID.String()
	}
	resp.Delivered = h.hub.PublishChange(req.Topic, req.Change)

	h.logger.Debug("change ingested",
		"topic", req.Topic,
		"type", req.Change.Type,
		"collection", req.Change.Collection,
		"delivered", resp.Delivered)
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *ingestHandler) catchUp(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "journal disabled"})
		return
	}

	q := r.URL.Query()
	after, err := journal.ParseCursor(q.Get("after"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	limit := 0
	if s := q.Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
	}

	entries, err := h.journal.Since(r.Context(), q.Get("topic"), after, limit)
	switch {
	case errors.Is(err, journal.ErrEmptyTopic):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	case err != nil:
		h.logger.Error("journal read failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "journal unavailable"})
		return
	}

	resp := catchUpResponse{Entries: entries}
	if n := len(entries); n > 0 {
		resp.Next = entries[n-1].ID.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
