// Package record defines the neutral record representation shared by the
// realtime engine.
//
// A Record is a loosely typed row as delivered by the change-notification
// source: a map from column name to a CBOR/JSON-compatible value. The engine
// never interprets records beyond two well-known fields:
//
//   - id: the record identity, used by presence entries and logging
//   - updated_at: the modification timestamp used for last-write-wins
//
// Values decoded by different codecs can disagree on numeric kinds (JSON
// produces float64, CBOR produces uint64/int64). Equal treats numbers of any
// kind as equal when they denote the same value.
package record
