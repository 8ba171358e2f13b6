// Package log provides structured event logging for the realtime engine.
//
// This package defines the Logger interface and Event types for capturing
// events at multiple layers (transport, channel, engine). It is separate from
// operational logging (slog): event capture provides a complete
// machine-readable trace of what each session subscribed to, received and
// sent.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	engine := realtime.New(t, realtime.WithLogger(log.NewSlogAdapter(slog.Default())))
//
//	// For production: write to binary file
//	fl, _ := log.NewFileLogger("/var/log/realtime/session.rtlog")
//
//	// Both: use MultiLogger
//	l := log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Event Types
//
// Each event carries one payload:
//   - Change: record change delivered to a subscription
//   - Broadcast: custom message sent or received
//   - Presence: track/untrack and roster sync/join/leave
//   - Status: channel, connection and registry lifecycle
//   - Control: ping/pong/close on a websocket connection
//   - Health: health check outcome
//   - Error: failures at any layer
//
// # File Format
//
// Log files use CBOR encoding with the .rtlog extension: a Header item
// followed by one item per event. The rt-log CLI provides viewing,
// filtering, statistics and export.
package log
