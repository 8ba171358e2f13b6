// Package journal stores the change events accepted by a hub in SQLite.
//
// The journal is append-only. Entry ids are ULIDs, so ordering by id is
// arrival order and a client that reconnects can ask for everything after
// the last id it saw (Since). Record images are stored as CBOR blobs with
// the wire codec, which keeps integer and nested map values intact.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - a single connection, since SQLite allows one writer
package journal
