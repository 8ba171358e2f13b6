package log

import (
	"errors"
	"io"
	"iter"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events. Zero fields match everything; TimeEnd is
// exclusive.
type Filter struct {
	SessionID string
	Topic     string
	Direction *Direction
	Layer     *Layer
	Category  *Category
	TimeStart *time.Time
	TimeEnd   *time.Time
}

// Match reports whether event satisfies every set criterion.
func (f Filter) Match(event Event) bool {
	switch {
	case f.SessionID != "" && event.SessionID != f.SessionID,
		f.Topic != "" && event.Topic != f.Topic,
		f.Direction != nil && event.Direction != *f.Direction,
		f.Layer != nil && event.Layer != *f.Layer,
		f.Category != nil && event.Category != *f.Category,
		f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart),
		f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd):
		return false
	}
	return true
}

// Reader streams the events of a log file that match its filter.
type Reader struct {
	file    *os.File
	dec     *cbor.Decoder
	filter  Filter
	header  Header
	pending *Event
}

// OpenFile opens a log file for reading. The header, if any, is consumed
// here; a header from a newer version fails with ErrUnsupportedVersion.
func OpenFile(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		file:   f,
		dec:    NewDecoder(f),
		filter: filter,
		header: Header{Format: FileFormat, Version: FileVersion},
	}
	if err := r.readHeader(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) readHeader() error {
	var raw cbor.RawMessage
	if err := r.dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	h, ok, err := parseHeader(raw)
	if err != nil {
		return err
	}
	if ok {
		r.header = h
		return nil
	}
	event, err := DecodeEvent(raw)
	if err != nil {
		return err
	}
	r.pending = &event
	return nil
}

// Header returns the file header.
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next matching event, or io.EOF at the end of the file.
// A truncated trailing event is reported as io.ErrUnexpectedEOF.
func (r *Reader) Next() (Event, error) {
	if r.pending != nil {
		event := *r.pending
		r.pending = nil
		if r.filter.Match(event) {
			return event, nil
		}
	}
	for {
		var event Event
		if err := r.dec.Decode(&event); err != nil {
			return Event{}, err
		}
		if r.filter.Match(event) {
			return event, nil
		}
	}
}

// All iterates the remaining matching events. Iteration stops after the
// first error other than io.EOF, which is yielded.
func (r *Reader) All() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			event, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(event, err) || err != nil {
				return
			}
		}
	}
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}
