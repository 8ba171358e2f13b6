package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes realtime events to an slog.Logger.
// Useful for development when you want to see events in the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
// Error events are written at Warn level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session_id", event.SessionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	if event.Topic != "" {
		attrs = append(attrs, slog.String("topic", event.Topic))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote_addr", event.RemoteAddr))
	}

	level := slog.LevelDebug

	// Add type-specific attributes
	switch {
	case event.Change != nil:
		attrs = append(attrs,
			slog.String("operation", event.Change.Operation),
			slog.String("collection", event.Change.Collection),
		)
		if event.Change.RecordID != "" {
			attrs = append(attrs, slog.String("record_id", event.Change.RecordID))
		}
	case event.Presence != nil:
		attrs = append(attrs,
			slog.String("action", event.Presence.Action.String()),
			slog.Int("roster_size", event.Presence.RosterSize),
		)
		if event.Presence.ParticipantID != "" {
			attrs = append(attrs, slog.String("participant", event.Presence.ParticipantID))
		}
		if event.Presence.Intent != "" {
			attrs = append(attrs, slog.String("intent", event.Presence.Intent))
		}
		if event.Presence.RecordID != "" {
			attrs = append(attrs, slog.String("record_id", event.Presence.RecordID))
		}
	case event.Status != nil:
		attrs = append(attrs,
			slog.String("entity", event.Status.Entity.String()),
			slog.String("old_state", event.Status.OldState),
			slog.String("new_state", event.Status.NewState),
		)
		if event.Status.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.Status.Reason))
		}
	case event.Broadcast != nil:
		attrs = append(attrs,
			slog.String("name", event.Broadcast.Name),
			slog.Int("payload_fields", len(event.Broadcast.Payload)),
		)
	case event.Control != nil:
		attrs = append(attrs, slog.String("ctrl_type", event.Control.Type.String()))
		if event.Control.Seq != 0 {
			attrs = append(attrs, slog.Uint64("seq", uint64(event.Control.Seq)))
		}
		if event.Control.Latency != 0 {
			attrs = append(attrs, slog.Duration("latency", event.Control.Latency))
		}
	case event.Health != nil:
		attrs = append(attrs, slog.Bool("connected", event.Health.Connected))
		if event.Health.Connected {
			attrs = append(attrs, slog.Duration("latency", event.Health.Latency))
		}
	case event.Error != nil:
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), level, "realtime", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
