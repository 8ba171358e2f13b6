// Package conflict merges a locally edited record with a remotely changed
// copy of the same record using last-write-wins on updated_at.
//
// The remote copy is the baseline. A compared field keeps the local value
// only when the local updated_at is strictly newer; ties and missing
// timestamps go to remote so that every session converges on the same
// result. Intermediate edits can be lost under contention.
package conflict
