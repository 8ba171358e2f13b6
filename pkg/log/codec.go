package log

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// FileFormat and FileVersion identify a protocol log file.
const (
	FileFormat  = "rtlog"
	FileVersion = 1
)

// ErrUnsupportedVersion is returned for files written by a newer version.
var ErrUnsupportedVersion = errors.New("log: unsupported file version")

// Header is the first item of every log file. Files without one are read
// as version 1.
type Header struct {
	Format  string    `cbor:"0,keyasint"`
	Version int       `cbor:"1,keyasint"`
	Created time.Time `cbor:"2,keyasint,omitempty"`
}

// Timestamps keep nanoseconds; map keys are sorted so equal events encode
// to equal bytes.
var (
	encMode = mustEncMode(cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	})
	decMode = mustDecMode(cbor.DecOptions{
		DupMapKey:      cbor.DupMapKeyQuiet,
		IndefLength:    cbor.IndefLengthAllowed,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	})
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	m, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: cbor encode options: %v", err))
	}
	return m
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	m, err := opts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("log: cbor decode options: %v", err))
	}
	return m
}

// EncodeEvent encodes one event.
func EncodeEvent(event Event) ([]byte, error) {
	return encMode.Marshal(event)
}

// DecodeEvent decodes one event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	err := decMode.Unmarshal(data, &event)
	return event, err
}

// NewEncoder returns a stream encoder for events written to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder for events read from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// parseHeader reports whether raw is a file header. Events never carry
// key 0, so they decode with an empty Format.
func parseHeader(raw cbor.RawMessage) (Header, bool, error) {
	var h Header
	if err := decMode.Unmarshal(raw, &h); err != nil || h.Format != FileFormat {
		return Header{}, false, nil
	}
	if h.Version > FileVersion {
		return h, true, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	return h, true, nil
}
