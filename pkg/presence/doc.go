// Package presence tracks which participants are viewing or editing records
// within a topic.
//
// A Tracker opens one presence channel per topic, publishes the local
// participant's entry on it and keeps the last full roster snapshot the
// transport delivered. Join and leave callbacks are derived by diffing
// consecutive snapshots by participant key.
package presence
