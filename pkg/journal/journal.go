package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/orgdesk/realtime-go/pkg/transport"
	"github.com/orgdesk/realtime-go/pkg/wire"
)

//go:embed schema.sql
var schemaSQL string

// Query limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

var (
	// ErrEmptyTopic is returned by Append and Since for an empty topic.
	ErrEmptyTopic = errors.New("journal: empty topic")

	// ErrInvalidCursor is returned by ParseCursor for a malformed id.
	ErrInvalidCursor = errors.New("journal: invalid cursor")
)

// Entry is one journaled change.
type Entry struct {
	ID         ulid.ULID           `json:"id"`
	Topic      string              `json:"topic"`
	Change     transport.RawChange `json:"change"`
	ReceivedAt time.Time           `json:"received_at"`
}

// Journal is a SQLite-backed change journal. It is safe for concurrent use.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithClock sets the clock used for ReceivedAt and entry ids.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) {
		j.now = now
	}
}

// Open creates or opens the journal database at path. Use ":memory:" for a
// private in-memory journal.
func Open(path string, opts ...Option) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	// One connection: SQLite has a single writer, and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}

	j := &Journal{db: db, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append journals a change for topic and returns the stored entry.
func (j *Journal) Append(ctx context.Context, topic string, change transport.RawChange) (Entry, error) {
	if topic == "" {
		return Entry{}, ErrEmptyTopic
	}

	newRec, err := encodeRecord(change.New)
	if err != nil {
		return Entry{}, fmt.Errorf("append: encode new record: %w", err)
	}
	oldRec, err := encodeRecord(change.Old)
	if err != nil {
		return Entry{}, fmt.Errorf("append: encode old record: %w", err)
	}

	now := j.now().UTC()
	entry := Entry{
		ID:         ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()),
		Topic:      topic,
		Change:     change,
		ReceivedAt: now,
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO changes
		(id, topic, type, collection, new_record, old_record, commit_ts, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID.String(),
		topic,
		change.Type,
		change.Collection,
		newRec,
		oldRec,
		change.CommitTimestamp.UTC().Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("append: %w", err)
	}
	return entry, nil
}

// Since returns up to limit entries of topic journaled after the entry with
// id after, oldest first. The zero ULID starts at the beginning. A limit
// outside 1..MaxLimit is replaced by DefaultLimit or MaxLimit.
func (j *Journal) Since(ctx context.Context, topic string, after ulid.ULID, limit int) ([]Entry, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, topic, type, collection, new_record, old_record, commit_ts, received_at
		FROM changes
		WHERE topic = ? AND id > ?
		ORDER BY id ASC
		LIMIT ?
	`, topic, after.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("since: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("since: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("since: %w", err)
	}
	return entries, nil
}

// Prune deletes entries received before cutoff and returns how many were
// removed.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	// The smallest id of the cutoff millisecond.
	var bound ulid.ULID
	if err := bound.SetTime(ulid.Timestamp(cutoff)); err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}

	res, err := j.db.ExecContext(ctx, `DELETE FROM changes WHERE id < ?`, bound.String())
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of journaled entries.
func (j *Journal) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM changes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// ParseCursor parses an entry id. An empty string is the zero cursor.
func ParseCursor(s string) (ulid.ULID, error) {
	if s == "" {
		return ulid.ULID{}, nil
	}
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("%w %q: %w", ErrInvalidCursor, s, err)
	}
	return id, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		id, commitTS, receivedAt string
		newRec, oldRec           []byte
		e                        Entry
	)
	err := rows.Scan(&id, &e.Topic, &e.Change.Type, &e.Change.Collection,
		&newRec, &oldRec, &commitTS, &receivedAt)
	if err != nil {
		return Entry{}, err
	}

	if e.ID, err = ulid.ParseStrict(id); err != nil {
		return Entry{}, fmt.Errorf("entry id %q: %w", id, err)
	}
	if e.Change.New, err = decodeRecord(newRec); err != nil {
		return Entry{}, fmt.Errorf("entry %s new record: %w", id, err)
	}
	if e.Change.Old, err = decodeRecord(oldRec); err != nil {
		return Entry{}, fmt.Errorf("entry %s old record: %w", id, err)
	}
	if e.Change.CommitTimestamp, err = time.Parse(time.RFC3339Nano, commitTS); err != nil {
		return Entry{}, fmt.Errorf("entry %s commit timestamp: %w", id, err)
	}
	if e.ReceivedAt, err = time.Parse(time.RFC3339Nano, receivedAt); err != nil {
		return Entry{}, fmt.Errorf("entry %s received_at: %w", id, err)
	}
	return e, nil
}

func encodeRecord(rec map[string]any) ([]byte, error) {
	if len(rec) == 0 {
		return nil, nil
	}
	return wire.Marshal(rec)
}

func decodeRecord(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var rec map[string]any
	if err := wire.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}
