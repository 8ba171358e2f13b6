package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/orgdesk/realtime-go/pkg/log"
)

// ExportFormats lists the supported export formats.
var ExportFormats = []string{"jsonl", "csv"}

// RunExport writes the events of path matching filter to output, or w when
// output is empty.
func RunExport(path, format, output string, filter log.Filter, w io.Writer) error {
	if format != "jsonl" && format != "csv" {
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.OpenFile(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == "csv" {
		return exportCSV(reader, w)
	}
	return exportJSONL(reader, w)
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	return each(reader, func(event log.Event) error {
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		return nil
	})
}

var csvHeader = []string{"timestamp", "session_id", "topic", "direction", "layer", "category", "type", "detail"}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	err := each(reader, func(event log.Event) error {
		row := []string{
			event.Timestamp.UTC().Format(timeLayout),
			event.SessionID,
			event.Topic,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			typeLabel(event),
			detail(event),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// detail is the single most useful field of the event payload.
func detail(event log.Event) string {
	switch {
	case event.Change != nil:
		return event.Change.RecordID
	case event.Broadcast != nil:
		return event.Broadcast.Name
	case event.Presence != nil:
		return event.Presence.ParticipantID
	case event.Status != nil:
		return event.Status.NewState
	case event.Control != nil && event.Control.Latency > 0:
		return event.Control.Latency.String()
	case event.Error != nil:
		return event.Error.Message
	default:
		return ""
	}
}
