package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/orgdesk/realtime-go/pkg/changes"
	"github.com/orgdesk/realtime-go/pkg/conflict"
	"github.com/orgdesk/realtime-go/pkg/presence"
	"github.com/orgdesk/realtime-go/pkg/realtime"
	"github.com/orgdesk/realtime-go/pkg/record"
	"github.com/orgdesk/realtime-go/pkg/subscription"
)

// Console drives an Engine from typed commands.
type Console struct {
	engine        *realtime.Engine
	participantID string
	out           io.Writer

	// latency reports the keep-alive round trip, nil when unavailable.
	latency func() time.Duration

	mu     sync.Mutex
	subs   map[string]subscription.Unsubscribe
	tracks map[string]presence.Untrack
}

// NewConsole creates a console writing to out.
func NewConsole(engine *realtime.Engine, participantID string, out io.Writer) *Console {
	return &Console{
		engine:        engine,
		participantID: participantID,
		out:           out,
		subs:          make(map[string]subscription.Unsubscribe),
		tracks:        make(map[string]presence.Untrack),
	}
}

// Run reads commands until quit, EOF or ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "rt> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	c.out = rl.Stdout()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			return nil
		}
		if c.Exec(ctx, line) {
			return nil
		}
	}
}

// Exec runs one command line and reports whether the console should exit.
func (c *Console) Exec(ctx context.Context, line string) (quit bool) {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	cmd, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)
	args := strings.Fields(rest)

	var err error
	switch strings.ToLower(cmd) {
	case "help", "?":
		c.printHelp()
	case "subscribe", "sub":
		err = c.cmdSubscribe(ctx, args)
	case "unsubscribe", "unsub":
		err = c.cmdUnsubscribe(args)
	case "topics":
		c.cmdTopics()
	case "broadcast", "bc":
		err = c.cmdBroadcast(ctx, rest)
	case "track":
		err = c.cmdTrack(ctx, args)
	case "untrack":
		err = c.cmdUntrack(args)
	case "presence", "who":
		err = c.cmdPresence(args)
	case "check":
		c.cmdCheck(ctx, args)
	case "resolve":
		err = c.cmdResolve(rest)
	case "quit", "exit", "q":
		c.Close()
		return true
	default:
		err = fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
	}
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
	return false
}

// Close untracks and unsubscribes everything.
func (c *Console) Close() {
	c.mu.Lock()
	subs, tracks := c.subs, c.tracks
	c.subs = make(map[string]subscription.Unsubscribe)
	c.tracks = make(map[string]presence.Untrack)
	c.mu.Unlock()

	for _, untrack := range tracks {
		untrack()
	}
	for _, unsub := range subs {
		unsub()
	}
}

func (c *Console) printHelp() {
	fmt.Fprint(c.out, `Commands:
  subscribe <topic> [collection]      Print changes and broadcasts on topic
  unsubscribe <topic>                 Stop printing topic
  topics                              List subscribed topics
  broadcast <topic> <name> [json]     Send a broadcast on a subscribed topic
  track <topic> [record-id]           Join topic's presence roster
  untrack <topic>                     Leave topic's presence roster
  presence <topic>                    Print topic's roster
  check [namespace]                   Measure connectivity
  resolve <local-json> <remote-json> [field ...]
                                      Merge two record versions (default: all fields)
  quit                                Exit
`)
}

func (c *Console) cmdSubscribe(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: subscribe <topic> [collection]")
	}
	topic := args[0]
	l := changes.Listeners{
		OnInsert: func(rec record.Record) error {
			fmt.Fprintf(c.out, "[%s] INSERT %s\n", topic, formatRecord(rec))
			return nil
		},
		OnUpdate: func(rec, previous record.Record) error {
			fmt.Fprintf(c.out, "[%s] UPDATE %s\n", topic, formatRecord(rec))
			if !previous.IsEmpty() {
				fmt.Fprintf(c.out, "[%s]   was %s\n", topic, formatRecord(previous))
			}
			return nil
		},
		OnDelete: func(rec record.Record) error {
			fmt.Fprintf(c.out, "[%s] DELETE %s\n", topic, formatRecord(rec))
			return nil
		},
		OnBroadcast: func(name string, payload map[string]any) error {
			fmt.Fprintf(c.out, "[%s] BROADCAST %s %s\n", topic, name, formatRecord(payload))
			return nil
		},
		OnError: func(err error) {
			fmt.Fprintf(c.out, "[%s] error: %v\n", topic, err)
		},
	}
	if len(args) > 1 {
		l.Collection = args[1]
	}

	unsub, err := c.engine.Subscribe(ctx, topic, l)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.subs[topic] = unsub
	c.mu.Unlock()
	fmt.Fprintf(c.out, "Subscribed to %s\n", topic)
	return nil
}

func (c *Console) cmdUnsubscribe(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: unsubscribe <topic>")
	}
	c.mu.Lock()
	unsub, ok := c.subs[args[0]]
	delete(c.subs, args[0])
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("not subscribed to %s", args[0])
	}
	unsub()
	fmt.Fprintf(c.out, "Unsubscribed from %s\n", args[0])
	return nil
}

func (c *Console) cmdTopics() {
	topics := c.engine.Subscriptions()
	if len(topics) == 0 {
		fmt.Fprintln(c.out, "No subscriptions")
		return
	}
	sort.Strings(topics)
	for _, t := range topics {
		fmt.Fprintf(c.out, "  %s\n", t)
	}
}

func (c *Console) cmdBroadcast(ctx context.Context, rest string) error {
	args := strings.SplitN(rest, " ", 3)
	if len(args) < 2 || args[0] == "" || args[1] == "" {
		return errors.New("usage: broadcast <topic> <name> [json]")
	}
	var payload map[string]any
	if len(args) == 3 && strings.TrimSpace(args[2]) != "" {
		if err := json.Unmarshal([]byte(args[2]), &payload); err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
	}
	c.engine.BroadcastEvent(ctx, args[0], args[1], payload)
	return nil
}

func (c *Console) cmdTrack(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: track <topic> [record-id]")
	}
	topic := args[0]
	recordID := ""
	if len(args) == 2 {
		recordID = args[1]
	}

	untrack, err := c.engine.Track(ctx, topic, c.participantID, recordID, presence.Callbacks{
		OnJoin: func(id string, entries []presence.Entry) {
			fmt.Fprintf(c.out, "[%s] + %s (%s)\n", topic, id, describeEntries(entries))
		},
		OnLeave: func(id string, _ []presence.Entry) {
			fmt.Fprintf(c.out, "[%s] - %s\n", topic, id)
		},
		OnError: func(err error) {
			fmt.Fprintf(c.out, "[%s] presence error: %v\n", topic, err)
		},
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.tracks[topic] = untrack
	c.mu.Unlock()
	fmt.Fprintf(c.out, "Tracking %s on %s\n", c.participantID, topic)
	return nil
}

func (c *Console) cmdUntrack(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: untrack <topic>")
	}
	c.mu.Lock()
	untrack, ok := c.tracks[args[0]]
	delete(c.tracks, args[0])
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("not tracking %s", args[0])
	}
	untrack()
	fmt.Fprintf(c.out, "Untracked %s\n", args[0])
	return nil
}

func (c *Console) cmdPresence(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: presence <topic>")
	}
	state := c.engine.PresenceState(args[0])
	if len(state) == 0 {
		fmt.Fprintln(c.out, "Nobody here")
		return nil
	}
	ids := make([]string, 0, len(state))
	for id := range state {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(c.out, "  %s (%s)\n", id, describeEntries(state[id]))
	}
	return nil
}

func (c *Console) cmdCheck(ctx context.Context, args []string) {
	namespace := ""
	if len(args) > 0 {
		namespace = args[0]
	}
	res := c.engine.Check(ctx, namespace)
	if ms, ok := res.LatencyMillis(); ok {
		fmt.Fprintf(c.out, "Connected, subscribe round trip %.1fms\n", ms)
	} else {
		fmt.Fprintf(c.out, "Not connected: %v\n", res.Err)
	}
	if c.latency != nil {
		if d := c.latency(); d > 0 {
			fmt.Fprintf(c.out, "Keep-alive round trip %s\n", d.Round(time.Microsecond))
		}
	}
}

// cmdResolve parses two JSON objects followed by optional field names.
func (c *Console) cmdResolve(rest string) error {
	dec := json.NewDecoder(strings.NewReader(rest))
	var local, remote map[string]any
	if err := dec.Decode(&local); err != nil {
		return fmt.Errorf("usage: resolve <local-json> <remote-json> [field ...]: %w", err)
	}
	if err := dec.Decode(&remote); err != nil {
		return fmt.Errorf("usage: resolve <local-json> <remote-json> [field ...]: %w", err)
	}
	fields := strings.Fields(rest[dec.InputOffset():])
	if len(fields) == 0 {
		fields = conflict.Fields(local, remote)
	}

	report := c.engine.Resolve(local, remote, fields)
	fmt.Fprintf(c.out, "Resolved: %s\n", formatRecord(report.Resolved))
	if !report.HasConflicts() {
		fmt.Fprintln(c.out, "No conflicts")
		return nil
	}
	for _, d := range report.Divergent {
		fmt.Fprintf(c.out, "  %s: local=%v remote=%v\n", d.Field, d.LocalValue, d.RemoteValue)
	}
	if len(report.LocalFields) > 0 {
		fmt.Fprintf(c.out, "Kept local: %s\n", strings.Join(report.LocalFields, ", "))
	}
	return nil
}

func describeEntries(entries []presence.Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Intent == presence.Editing {
			parts = append(parts, "editing "+e.RecordID)
		} else {
			parts = append(parts, "viewing")
		}
	}
	return strings.Join(parts, ", ")
}

func formatRecord(v map[string]any) string {
	if v == nil {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
