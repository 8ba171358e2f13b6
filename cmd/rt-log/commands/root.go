package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRootCommand creates the rt-log command tree. Filter flags are shared by
// all subcommands.
func NewRootCommand() *cobra.Command {
	opts := &FilterOptions{}

	cmd := &cobra.Command{
		Use:   "rt-log",
		Short: "Realtime protocol log analyzer",
		Long: `View and analyze protocol log files written by rt-hub and rt-client
with the -protocol-log flag.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.SessionID, "session", "", "filter by session ID")
	flags.StringVar(&opts.Topic, "topic", "", "filter by topic")
	flags.StringVar(&opts.TimeStart, "time-start", "", "filter by start time (RFC3339)")
	flags.StringVar(&opts.TimeEnd, "time-end", "", "filter by end time (RFC3339)")
	flags.StringVar(&opts.Layer, "layer", "", "filter by layer (transport, channel, engine)")
	flags.StringVar(&opts.Direction, "direction", "", "filter by direction (in, out)")
	flags.StringVar(&opts.Category, "category", "", "filter by category (change, broadcast, presence, state, control, health, error)")

	cmd.AddCommand(newViewCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newFilterCommand(opts))

	return cmd
}

func newViewCommand(opts *FilterOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "view <file.rtlog>",
		Short: "View log file in human-readable format",
		Example: `  rt-log view hub.rtlog
  rt-log view --topic room:1 --category presence hub.rtlog`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := opts.Build()
			if err != nil {
				return err
			}
			return RunView(args[0], filter, cmd.OutOrStdout())
		},
	}
}

func newStatsCommand(opts *FilterOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file.rtlog>",
		Short: "Show statistics about the log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := opts.Build()
			if err != nil {
				return err
			}
			return RunStats(args[0], filter, cmd.OutOrStdout())
		},
	}
}

func newExportCommand(opts *FilterOptions) *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export <file.rtlog>",
		Short: "Export log file to JSONL or CSV",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range ExportFormats {
				if f == format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", format, ExportFormats)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := opts.Build()
			if err != nil {
				return err
			}
			return RunExport(args[0], format, output, filter, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&format, "format", "jsonl", "output format (jsonl|csv)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

func newFilterCommand(opts *FilterOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "filter <file.rtlog>",
		Short:   "Filter log file and write to new file",
		Example: `  rt-log filter --session 3f2a9c1e -o session.rtlog hub.rtlog`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := opts.Build()
			if err != nil {
				return err
			}
			count, err := RunFilter(args[0], output, filter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Filtered %d events to %s\n", count, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (required)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
