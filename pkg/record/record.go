package record

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// Well-known field names.
const (
	FieldID        = "id"
	FieldUpdatedAt = "updated_at"
)

// Record is a single row of a record collection.
type Record map[string]any

// Clone returns a shallow copy of the record. A nil record clones to nil.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// IsEmpty reports whether the record carries no fields.
func (r Record) IsEmpty() bool {
	return len(r) == 0
}

// ID returns the record identity as a string, or "" if the record has none.
func (r Record) ID() string {
	v, ok := r[FieldID]
	if !ok || v == nil {
		return ""
	}
	switch id := v.(type) {
	case string:
		return id
	case float64:
		if id == math.Trunc(id) {
			return strconv.FormatInt(int64(id), 10)
		}
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}

// UpdatedAt returns the parsed updated_at timestamp.
// The second return value is false when the field is absent or unparseable.
func (r Record) UpdatedAt() (time.Time, bool) {
	return ParseTime(r[FieldUpdatedAt])
}

// ParseTime converts a timestamp value as produced by the supported codecs.
// Accepted forms: time.Time, RFC3339 / RFC3339Nano strings, and numeric Unix
// milliseconds.
func ParseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case string:
		if t == "" {
			return time.Time{}, false
		}
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed, true
		}
		// Postgres text form without the T separator.
		if parsed, err := time.Parse("2006-01-02 15:04:05.999999999Z07:00", t); err == nil {
			return parsed, true
		}
		if parsed, err := time.Parse("2006-01-02 15:04:05.999999999Z07", t); err == nil {
			return parsed, true
		}
		return time.Time{}, false
	}

	if ms, ok := toFloat(v); ok {
		return time.UnixMilli(int64(ms)), true
	}
	return time.Time{}, false
}

// Equal reports whether two field values are the same.
// Numbers compare by value regardless of their Go kind, integers exactly;
// everything else compares structurally.
func Equal(a, b any) bool {
	if an, ok := toNumber(a); ok {
		if bn, ok := toNumber(b); ok {
			return an.equal(bn)
		}
		return false
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Equal(bt)
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

type numKind uint8

const (
	numSigned numKind = iota
	numUnsigned
	numFloat
)

type number struct {
	kind numKind
	i    int64
	u    uint64
	f    float64
}

func toNumber(v any) (number, bool) {
	switch n := v.(type) {
	case int:
		return number{kind: numSigned, i: int64(n)}, true
	case int8:
		return number{kind: numSigned, i: int64(n)}, true
	case int16:
		return number{kind: numSigned, i: int64(n)}, true
	case int32:
		return number{kind: numSigned, i: int64(n)}, true
	case int64:
		return number{kind: numSigned, i: n}, true
	case uint:
		return number{kind: numUnsigned, u: uint64(n)}, true
	case uint8:
		return number{kind: numUnsigned, u: uint64(n)}, true
	case uint16:
		return number{kind: numUnsigned, u: uint64(n)}, true
	case uint32:
		return number{kind: numUnsigned, u: uint64(n)}, true
	case uint64:
		return number{kind: numUnsigned, u: n}, true
	case float32:
		return number{kind: numFloat, f: float64(n)}, true
	case float64:
		return number{kind: numFloat, f: n}, true
	default:
		return number{}, false
	}
}

func (a number) equal(b number) bool {
	if a.kind > b.kind {
		a, b = b, a
	}
	switch {
	case a.kind == numSigned && b.kind == numSigned:
		return a.i == b.i
	case a.kind == numUnsigned && b.kind == numUnsigned:
		return a.u == b.u
	case a.kind == numSigned && b.kind == numUnsigned:
		return a.i >= 0 && uint64(a.i) == b.u
	case a.kind == numFloat:
		return a.f == b.f
	case a.kind == numSigned:
		// 2^63 is the first float64 outside int64.
		return b.f == math.Trunc(b.f) && b.f >= -(1<<63) && b.f < 1<<63 && int64(b.f) == a.i
	default:
		return b.f == math.Trunc(b.f) && b.f >= 0 && b.f < 1<<64 && uint64(b.f) == a.u
	}
}

// FromMap converts a decoded map with arbitrary key types into a Record.
// CBOR decodes nested maps as map[any]any; non-string keys are formatted with
// fmt.Sprint. Returns nil for nil input.
func FromMap(v any) Record {
	switch m := v.(type) {
	case nil:
		return nil
	case Record:
		return m
	case map[string]any:
		return Record(m)
	case map[any]any:
		out := make(Record, len(m))
		for k, val := range m {
			if s, ok := k.(string); ok {
				out[s] = val
			} else {
				out[fmt.Sprint(k)] = val
			}
		}
		return out
	default:
		return nil
	}
}

func toFloat(v any) (float64, bool) {
	n, ok := toNumber(v)
	switch {
	case !ok:
		return 0, false
	case n.kind == numSigned:
		return float64(n.i), true
	case n.kind == numUnsigned:
		return float64(n.u), true
	default:
		return n.f, true
	}
}
