package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xll-gen/rtd/internal/ir"
	"github.com/xll-gen/rtd/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	SessionID string // optional - lists sessions when empty
	Topic     int32  // optional - filter to one topic
}

// SessionSummary is one line of the session listing.
type SessionSummary struct {
	ID      string `json:"id"`
	Ended   bool   `json:"ended"`
	Events  int    `json:"events"`
	Batches int    `json:"batches"`
}

// TopicEventOutput is a subscribe or unsubscribe in the trace.
type TopicEventOutput struct {
	Seq  int64    `json:"seq"`
	Kind string   `json:"kind"`
	Key  int32    `json:"key"`
	Args []string `json:"args,omitempty"`
}

// DeliveryOutput is one delivered topic value in the trace.
type DeliveryOutput struct {
	Key       int32    `json:"key"`
	Value     ir.Value `json:"value"`
	UpdateSeq int64    `json:"update_seq"`
}

// BatchOutput is one journalled drain in the trace.
type BatchOutput struct {
	DrainSeq   int64            `json:"drain_seq"`
	Digest     string           `json:"digest"`
	Deliveries []DeliveryOutput `json:"deliveries"`
}

// TraceResult holds the complete trace output for a session.
type TraceResult struct {
	SessionID     string             `json:"session_id"`
	EngineVersion string             `json:"engine_version"`
	Ended         bool               `json:"ended"`
	Events        []TopicEventOutput `json:"events"`
	Batches       []BatchOutput      `json:"batches"`
	Subscribed    []int32            `json:"subscribed"`
	Stats         TraceStats         `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Subscribes   int `json:"subscribes"`
	Unsubscribes int `json:"unsubscribes"`
	Batches      int `json:"batches"`
	Deliveries   int `json:"deliveries"`
	Mismatches   int `json:"mismatches"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show what a session subscribed and delivered",
		Long: `Show the journal of a server session.

Without --session, lists every journalled session. With --session, shows
the session's subscribe and unsubscribe events, each drained batch with
its values, and the topics still subscribed when the journal ends.

Examples:
  rtd trace --db ./rtd.db
  rtd trace --db ./rtd.db --session 0190a5c2-...
  rtd trace --db ./rtd.db --session 0190a5c2-... --topic 101 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "session to trace (lists sessions when omitted)")
	cmd.Flags().Int32Var(&opts.Topic, "topic", 0, "filter to one topic key")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := newFormatter(opts.RootOptions, cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.SessionID == "" {
		return listSessions(ctx, st, out)
	}

	state, err := st.GetSessionState(ctx, opts.SessionID)
	if errors.Is(err, store.ErrSessionNotFound) {
		return WrapExitError(ExitCommandError, fmt.Sprintf("session %s not found", opts.SessionID), err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	filtered := cmd.Flags().Changed("topic")
	result := buildTrace(state, opts.Topic, filtered)

	if out.JSON() {
		return out.Respond(CLIResponse{Status: "ok", Data: result, SessionID: result.SessionID})
	}
	return outputTraceText(out.Writer, result, out.Verbose)
}

// buildTrace converts a rebuilt session to trace output. When filtered is
// set only events and deliveries for topic are kept; batches left empty
// by the filter are dropped.
func buildTrace(state store.SessionState, topic int32, filtered bool) TraceResult {
	result := TraceResult{
		SessionID:     state.Session.ID,
		EngineVersion: state.Session.EngineVersion,
		Ended:         state.Session.Ended,
		Events:        []TopicEventOutput{},
		Batches:       []BatchOutput{},
		Subscribed:    state.Subscribed,
	}

	for _, ev := range state.Events {
		if filtered && ev.Key != topic {
			continue
		}
		result.Events = append(result.Events, TopicEventOutput{
			Seq:  ev.Seq,
			Kind: string(ev.Kind),
			Key:  ev.Key,
			Args: ev.Args,
		})
		switch ev.Kind {
		case store.EventSubscribe:
			result.Stats.Subscribes++
		case store.EventUnsubscribe:
			result.Stats.Unsubscribes++
		}
	}

	for _, b := range state.Batches {
		out := BatchOutput{DrainSeq: b.DrainSeq, Digest: b.Digest}
		for _, e := range b.Batch {
			if filtered && e.Key != topic {
				continue
			}
			out.Deliveries = append(out.Deliveries, DeliveryOutput{Key: e.Key, Value: e.Value, UpdateSeq: e.Seq})
		}
		if len(out.Deliveries) == 0 {
			continue
		}
		result.Batches = append(result.Batches, out)
		result.Stats.Deliveries += len(out.Deliveries)
	}
	result.Stats.Batches = len(result.Batches)
	result.Stats.Mismatches = len(state.Mismatches)

	return result
}

func listSessions(ctx context.Context, st *store.Store, out *OutputFormatter) error {
	sessions, err := st.ReadSessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		events, err := st.ReadTopicEvents(ctx, s.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read topic events", err)
		}
		batches, err := st.ReadBatches(ctx, s.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read batches", err)
		}
		summaries = append(summaries, SessionSummary{
			ID:      s.ID,
			Ended:   s.Ended,
			Events:  len(events),
			Batches: len(batches),
		})
	}

	if out.JSON() {
		return out.Respond(CLIResponse{Status: "ok", Data: summaries})
	}

	w := out.Writer
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No sessions found in database.")
		return nil
	}
	fmt.Fprintf(w, "Sessions: %d\n", len(summaries))
	for _, s := range summaries {
		fmt.Fprintf(w, "  %s  %-7s  %d event(s), %d batch(es)\n", s.ID, sessionStatus(s.Ended), s.Events, s.Batches)
	}
	return nil
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintf(w, "Trace for Session: %s\n", result.SessionID)
	fmt.Fprintf(w, "Status: %s\n", sessionStatus(result.Ended))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Topic Events ===")
	if len(result.Events) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, ev := range result.Events {
		fmt.Fprintf(w, "  [%d] %s %d", ev.Seq, strings.ToUpper(ev.Kind), ev.Key)
		if len(ev.Args) > 0 {
			fmt.Fprintf(w, " %s", strings.Join(ev.Args, ", "))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Batches ===")
	if len(result.Batches) == 0 {
		fmt.Fprintln(w, "  (no batches)")
	}
	for _, b := range result.Batches {
		fmt.Fprintf(w, "  [%d] %d topic(s)", b.DrainSeq, len(b.Deliveries))
		if verbose {
			fmt.Fprintf(w, " digest %s", truncateID(b.Digest))
		}
		fmt.Fprintln(w)
		for _, d := range b.Deliveries {
			fmt.Fprintf(w, "       %d = %s\n", d.Key, formatValue(d.Value))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Subscribed:   %v\n", result.Subscribed)
	fmt.Fprintf(w, "  Subscribes:   %d\n", result.Stats.Subscribes)
	fmt.Fprintf(w, "  Unsubscribes: %d\n", result.Stats.Unsubscribes)
	fmt.Fprintf(w, "  Batches:      %d\n", result.Stats.Batches)
	fmt.Fprintf(w, "  Deliveries:   %d\n", result.Stats.Deliveries)
	if result.Stats.Mismatches > 0 {
		fmt.Fprintf(w, "  Mismatches:   %d (run replay for details)\n", result.Stats.Mismatches)
	}

	return nil
}

// formatValue renders a cell value for display.
func formatValue(v ir.Value) string {
	switch v.Kind() {
	case ir.KindText:
		return fmt.Sprintf("%q", v.String())
	case ir.KindAbsent:
		return "(empty)"
	default:
		return v.String()
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

// sessionStatus returns a human-readable session status.
func sessionStatus(ended bool) string {
	if ended {
		return "ended"
	}
	return "open"
}
