package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xll-gen/rtd/internal/store"
)

// errDigestMismatch fails replay with ExitFailure when any batch no longer
// matches its journalled digest.
var errDigestMismatch = NewExitError(ExitFailure, "batch digest verification failed")

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database  string
	SessionID string // optional - specific session only
}

// ReplaySessionResult holds the replay result for a single session.
type ReplaySessionResult struct {
	SessionID  string                 `json:"session_id"`
	Batches    int                    `json:"batches"`
	Deliveries int                    `json:"deliveries"`
	Ended      bool                   `json:"ended"`
	Verified   bool                   `json:"verified"`
	Mismatches []store.DigestMismatch `json:"mismatches,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Sessions      []ReplaySessionResult `json:"sessions"`
	TotalSessions int                   `json:"total_sessions"`
	AllVerified   bool                  `json:"all_verified"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay journalled batches and verify their digests",
		Long: `Rebuild every journalled batch from its deliveries and verify it
against the digest recorded when it was drained.

Exit codes:
  0 - Every batch matches its digest
  1 - Verification failed (a batch was altered or lost deliveries)
  2 - Command error (database not found, etc.)

Examples:
  rtd replay --db ./rtd.db
  rtd replay --db ./rtd.db --session 0190a5c2-...
  rtd replay --db ./rtd.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "replay specific session only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := newFormatter(opts.RootOptions, cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var sessionIDs []string
	if opts.SessionID != "" {
		sessionIDs = []string{opts.SessionID}
	} else {
		sessions, err := st.ReadSessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
		for _, s := range sessions {
			sessionIDs = append(sessionIDs, s.ID)
		}
	}

	if len(sessionIDs) == 0 {
		if out.JSON() {
			return outputReplayJSON(out, ReplayResult{
				Sessions:    []ReplaySessionResult{},
				AllVerified: true,
			})
		}
		fmt.Fprintln(out.Writer, "No sessions found in database.")
		return nil
	}

	result := ReplayResult{
		Sessions:      make([]ReplaySessionResult, 0, len(sessionIDs)),
		TotalSessions: len(sessionIDs),
		AllVerified:   true,
	}

	for _, id := range sessionIDs {
		sessionResult, err := replayAndVerifySession(ctx, st, id)
		if errors.Is(err, store.ErrSessionNotFound) {
			return WrapExitError(ExitCommandError, fmt.Sprintf("session %s not found", id), err)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay session %s", id), err)
		}

		result.Sessions = append(result.Sessions, sessionResult)
		if !sessionResult.Verified {
			result.AllVerified = false
		}
	}

	if out.JSON() {
		return outputReplayJSON(out, result)
	}
	return outputReplayText(out, result)
}

// replayAndVerifySession rebuilds one session's batches and checks their digests.
func replayAndVerifySession(ctx context.Context, st *store.Store, sessionID string) (ReplaySessionResult, error) {
	session, err := st.ReadSession(ctx, sessionID)
	if err != nil {
		return ReplaySessionResult{}, err
	}

	batches, err := st.ReplayBatches(ctx, sessionID)
	if err != nil {
		return ReplaySessionResult{}, fmt.Errorf("replay batches: %w", err)
	}

	mismatches, err := st.VerifySession(ctx, sessionID)
	if err != nil {
		return ReplaySessionResult{}, fmt.Errorf("verify session: %w", err)
	}

	deliveries := 0
	for _, b := range batches {
		deliveries += b.Batch.Len()
	}

	return ReplaySessionResult{
		SessionID:  sessionID,
		Batches:    len(batches),
		Deliveries: deliveries,
		Ended:      session.Ended,
		Verified:   len(mismatches) == 0,
		Mismatches: mismatches,
	}, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(out *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllVerified {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DIGEST",
			Message: "batch digest verification failed",
		}
	}

	if err := out.Respond(response); err != nil {
		return err
	}
	if !result.AllVerified {
		return errDigestMismatch
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(out *OutputFormatter, result ReplayResult) error {
	w := out.Writer

	fmt.Fprintf(w, "Replay Summary: %d session(s)\n", result.TotalSessions)
	fmt.Fprintln(w)

	for _, s := range result.Sessions {
		status := "\u2713"
		if !s.Verified {
			status = "\u2717"
		}

		fmt.Fprintf(w, "%s Session: %s\n", status, s.SessionID)
		fmt.Fprintf(w, "  Batches: %d, deliveries: %d\n", s.Batches, s.Deliveries)
		if out.Verbose {
			fmt.Fprintf(w, "  Status: %s\n", sessionStatus(s.Ended))
		}

		for _, m := range s.Mismatches {
			fmt.Fprintf(w, "  Warning: drain %d digest %s, journalled %s\n", m.DrainSeq, truncateID(m.Got), truncateID(m.Want))
		}
		fmt.Fprintln(w)
	}

	if result.AllVerified {
		fmt.Fprintln(w, "\u2713 All batches verified")
		return nil
	}

	fmt.Fprintln(w, "\u2717 Batch digest verification failed")
	return errDigestMismatch
}
