// Package commands implements the rt-log CLI commands.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/orgdesk/realtime-go/pkg/log"
)

const timeLayout = "2006-01-02T15:04:05.000000Z"

// RunView writes the events of path matching filter in human-readable form.
func RunView(path string, filter log.Filter, w io.Writer) error {
	reader, err := log.OpenFile(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	return each(reader, func(event log.Event) error {
		formatEvent(w, event)
		return nil
	})
}

// formatEvent writes a header line followed by type-specific details.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format(timeLayout)
	session := shortenID(event.SessionID)

	layer := event.Layer.String()
	if event.Category == log.CategoryControl {
		layer = "CTRL"
	}

	fmt.Fprintf(w, "%s [%s] %-3s %s %s", ts, session, event.Direction.String(), layer, typeLabel(event))
	if event.Topic != "" {
		fmt.Fprintf(w, " %s", event.Topic)
	}
	fmt.Fprintln(w)

	switch {
	case event.Change != nil:
		formatChangeDetails(w, event.Change)
	case event.Broadcast != nil:
		formatBroadcastDetails(w, event.Broadcast)
	case event.Presence != nil:
		formatPresenceDetails(w, event.Presence)
	case event.Status != nil:
		formatStatusDetails(w, event.Status)
	case event.Control != nil:
		if event.Control.Latency > 0 {
			fmt.Fprintf(w, "  Seq: %d  Latency: %s\n", event.Control.Seq, formatDuration(event.Control.Latency))
		} else if event.Control.Seq > 0 {
			fmt.Fprintf(w, "  Seq: %d\n", event.Control.Seq)
		}
	case event.Health != nil:
		fmt.Fprintf(w, "  Connected: %t  Latency: %s\n", event.Health.Connected, formatDuration(event.Health.Latency))
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}
	if event.RemoteAddr != "" {
		fmt.Fprintf(w, "  Remote: %s\n", event.RemoteAddr)
	}

	fmt.Fprintln(w)
}

// typeLabel names the payload carried by the event.
func typeLabel(event log.Event) string {
	switch {
	case event.Change != nil:
		return event.Change.Operation
	case event.Broadcast != nil:
		return "Broadcast"
	case event.Presence != nil:
		return event.Presence.Action.String()
	case event.Status != nil:
		return "State"
	case event.Control != nil:
		return event.Control.Type.String()
	case event.Health != nil:
		return "Health"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatChangeDetails(w io.Writer, c *log.ChangeEventData) {
	if c.Collection != "" {
		fmt.Fprintf(w, "  Collection: %s\n", c.Collection)
	}
	if c.RecordID != "" {
		fmt.Fprintf(w, "  Record: %s\n", c.RecordID)
	}
	if !c.CommitTimestamp.IsZero() {
		fmt.Fprintf(w, "  Committed: %s\n", c.CommitTimestamp.UTC().Format(timeLayout))
	}
}

func formatBroadcastDetails(w io.Writer, b *log.BroadcastEventData) {
	fmt.Fprintf(w, "  Name: %s\n", b.Name)
	if b.Payload != nil {
		payload, err := json.Marshal(b.Payload)
		if err == nil {
			fmt.Fprintf(w, "  Payload: %s\n", payload)
		}
	}
}

func formatPresenceDetails(w io.Writer, p *log.PresenceEventData) {
	if p.ParticipantID != "" {
		fmt.Fprintf(w, "  Participant: %s", p.ParticipantID)
		if p.Intent != "" {
			fmt.Fprintf(w, " (%s", p.Intent)
			if p.RecordID != "" {
				fmt.Fprintf(w, " %s", p.RecordID)
			}
			fmt.Fprint(w, ")")
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "  Roster: %d\n", p.RosterSize)
}

func formatStatusDetails(w io.Writer, s *log.StatusEventData) {
	fmt.Fprintf(w, "  Entity: %s\n", s.Entity.String())
	if s.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", s.OldState, s.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", s.NewState)
	}
	if s.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", s.Reason)
	}
}

func formatErrorDetails(w io.Writer, e *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", e.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", e.Message)
	if e.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", e.Context)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}
