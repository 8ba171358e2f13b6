// Command rt-log views and analyzes realtime protocol log files.
//
// Log files are written by rt-hub and rt-client when started with the
// -protocol-log flag.
//
// Usage:
//
//	rt-log <command> [flags] <file.rtlog>
//
// Commands:
//
//	view     View log file in human-readable format
//	stats    Show statistics about the log file
//	export   Export log file to JSONL or CSV
//	filter   Filter log file and write to new file
package main

import (
	"os"

	"github.com/orgdesk/realtime-go/cmd/rt-log/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
