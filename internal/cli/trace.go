package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/onelane/internal/bridge"
	"github.com/roach88/onelane/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Journal string
	RunID   string
	Actor   string
	Kind    string
	Limit   int
	Runs    bool
}

// TraceResult holds the events selected by the trace command.
type TraceResult struct {
	Events []journal.Record `json:"events"`
	Stats  TraceStats       `json:"stats"`
}

// TraceStats counts the selected events per kind.
type TraceStats struct {
	TotalEvents int                      `json:"total_events"`
	ByKind      map[bridge.EventKind]int `json:"by_kind"`
	Runs        int                      `json:"runs"`
}

var traceKinds = []bridge.EventKind{
	bridge.EventGranted,
	bridge.EventQueued,
	bridge.EventReleased,
	bridge.EventPurged,
	bridge.EventInvited,
	bridge.EventSkipped,
	bridge.EventIdle,
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show journaled bridge events",
		Long: `Print events recorded by 'serve --journal'.

Each line shows the event sequence number, its kind, the actor and the
bridge state right after the change. Filters combine with AND.

Examples:
  onelane trace --journal ./onelane.db
  onelane trace --journal ./onelane.db --runs
  onelane trace --journal ./onelane.db --actor car-1 --kind granted
  onelane trace --journal ./onelane.db --limit 20 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite event journal (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "only events from this run")
	cmd.Flags().StringVar(&opts.Actor, "actor", "", "only events for this vehicle id")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only events of this kind (granted|queued|released|purged|invited|skipped|idle)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "only the last N matching events (0 for all)")
	cmd.Flags().BoolVar(&opts.Runs, "runs", false, "list recorded runs instead of events")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Kind != "" && !isTraceKind(bridge.EventKind(opts.Kind)) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid kind %q", opts.Kind))
	}
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "limit must not be negative")
	}
	// Open would create an empty journal.
	if _, err := os.Stat(opts.Journal); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}

	j, err := journal.Open(opts.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	if opts.Runs {
		runs, err := j.Runs(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to list runs", err)
		}
		if opts.Format == "json" {
			return outputTraceJSON(cmd, runs)
		}
		outputRunsText(cmd.OutOrStdout(), runs)
		return nil
	}

	records, err := j.Events(ctx, journal.Filter{
		RunID: opts.RunID,
		Actor: bridge.ActorID(opts.Actor),
		Kind:  bridge.EventKind(opts.Kind),
		Limit: opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read journal", err)
	}

	result := TraceResult{Events: records, Stats: traceStats(records)}
	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
	return nil
}

func isTraceKind(k bridge.EventKind) bool {
	for _, known := range traceKinds {
		if k == known {
			return true
		}
	}
	return false
}

func traceStats(records []journal.Record) TraceStats {
	stats := TraceStats{TotalEvents: len(records), ByKind: make(map[bridge.EventKind]int)}
	runs := make(map[string]struct{})
	for _, rec := range records {
		stats.ByKind[rec.Event.Kind]++
		runs[rec.RunID] = struct{}{}
	}
	stats.Runs = len(runs)
	return stats
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, data any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(CLIResponse{Status: "ok", Data: data})
}

func outputRunsText(w io.Writer, runs []journal.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  started %s  %d event(s)\n", r.ID, r.StartedAt.Format("2006-01-02 15:04:05Z07:00"), r.Events)
	}
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	if len(result.Events) == 0 {
		fmt.Fprintln(w, "No events found")
		return
	}

	run := ""
	for _, rec := range result.Events {
		if rec.RunID != run {
			run = rec.RunID
			fmt.Fprintf(w, "=== Run %s ===\n", run)
		}
		fmt.Fprintln(w, formatTraceEvent(rec.Event))
		if verbose {
			fmt.Fprintf(w, "       recorded %s\n", rec.RecordedAt.Format("15:04:05.000"))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	for _, k := range traceKinds {
		if n := result.Stats.ByKind[k]; n > 0 {
			fmt.Fprintf(w, "  %-13s %d\n", string(k)+":", n)
		}
	}
}

// formatTraceEvent renders one event on a single line.
func formatTraceEvent(ev bridge.Event) string {
	actor := string(ev.Actor)
	if actor == "" {
		actor = "-"
	}
	s := ev.Snapshot
	line := fmt.Sprintf("  [%d] %-8s %-12s %-5s occupancy=%d left=[%s] right=[%s]",
		ev.Seq, ev.Kind, actor, ev.Direction, s.Occupancy, idList(s.WaitingLeft), idList(s.WaitingRight))
	if s.Expected != "" {
		line += " expected=" + string(s.Expected)
	}
	return line
}

func idList(ids []bridge.ActorID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, " ")
}
