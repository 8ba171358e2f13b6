package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/orgdesk/realtime-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Sessions          map[string]*SessionStats
	Topics            map[string]int
	Errors            int
	Pongs             int
	MaxLatency        time.Duration
	totalLatency      time.Duration
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// SessionStats holds statistics for a single session.
type SessionStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	RemoteAddr string
}

// AvgLatency is the mean pong round trip, zero without pongs.
func (s *Stats) AvgLatency() time.Duration {
	if s.Pongs == 0 {
		return 0
	}
	return s.totalLatency / time.Duration(s.Pongs)
}

// CollectStats reads every event of path matching filter.
func CollectStats(path string, filter log.Filter) (*Stats, error) {
	reader, err := log.OpenFile(path, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Sessions:          make(map[string]*SessionStats),
		Topics:            make(map[string]int),
	}

	err = each(reader, func(event log.Event) error {
		stats.add(event)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++
	if event.Topic != "" {
		s.Topics[event.Topic]++
	}

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	session, ok := s.Sessions[event.SessionID]
	if !ok {
		session = &SessionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Sessions[event.SessionID] = session
	}
	session.Events++
	if event.Timestamp.After(session.LastSeen) {
		session.LastSeen = event.Timestamp
	}
	if session.RemoteAddr == "" {
		session.RemoteAddr = event.RemoteAddr
	}

	if event.Control != nil && event.Control.Type == log.ControlMsgPong {
		s.Pongs++
		s.totalLatency += event.Control.Latency
		if event.Control.Latency > s.MaxLatency {
			s.MaxLatency = event.Control.Latency
		}
	}

	if event.Error != nil {
		s.Errors++
	}
}

// RunStats prints statistics about the events of path matching filter.
func RunStats(path string, filter log.Filter, w io.Writer) error {
	stats, err := CollectStats(path, filter)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Realtime Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerChannel, log.LayerEngine} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range categories {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}

	if len(stats.Topics) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Topics: %d\n", len(stats.Topics))
		topics := make([]string, 0, len(stats.Topics))
		for t := range stats.Topics {
			topics = append(topics, t)
		}
		sort.Strings(topics)
		for _, t := range topics {
			fmt.Fprintf(w, "  %-24s %d\n", t, stats.Topics[t])
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	if len(stats.Sessions) > 0 {
		ids := make([]string, 0, len(stats.Sessions))
		for id := range stats.Sessions {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return stats.Sessions[ids[i]].FirstSeen.Before(stats.Sessions[ids[j]].FirstSeen)
		})
		for _, id := range ids {
			s := stats.Sessions[id]
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n",
				shortenID(id), s.Events, s.LastSeen.Sub(s.FirstSeen).Round(time.Millisecond))
			if s.RemoteAddr != "" {
				fmt.Fprintf(w, "           Remote: %s\n", s.RemoteAddr)
			}
		}
	}

	if stats.Pongs > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Latency: avg %s, max %s over %d pongs\n",
			formatDuration(stats.AvgLatency()), formatDuration(stats.MaxLatency), stats.Pongs)
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
