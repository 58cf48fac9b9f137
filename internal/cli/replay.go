package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	DB      string
	Session string
}

// ProgramInfo is one program reconstructed by replay.
type ProgramInfo struct {
	Handle      string `json:"handle"`
	Fingerprint string `json:"fingerprint"`
	Kind        string `json:"kind"`
	Provenance  string `json:"provenance"`
	Reloads     int    `json:"reloads"`
	Promoted    bool   `json:"promoted,omitempty"`
}

// ReplayResult holds the replay command output.
type ReplayResult struct {
	Session  SessionInfo   `json:"session"`
	Programs []ProgramInfo `json:"programs"`
	Released int           `json:"released"`
	Failures int           `json:"failures"`
	LastSeq  int64         `json:"last_seq"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Reconstruct program state from a session journal",
		Long: `Replay a session's journal and print the programs that were live when
it ended, with how each one's code was produced.

Defaults to the most recent session.

Exit codes:
  0 - Replay succeeded and no reload or promotion failed
  1 - Replay succeeded but the session recorded failures
  2 - Command error (journal not found, session not found, etc.)

Examples:
  shaderhunt replay --db shaderhunt.db
  shaderhunt replay --db shaderhunt.db --session 6f1c... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "journal database path (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (defaults to the latest)")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openJournal(formatter, opts.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	id := opts.Session
	if id == "" {
		latest, err := st.LatestSession(ctx)
		if err != nil {
			return sessionLookupError(formatter, err)
		}
		id = latest.ID
		formatter.VerboseLog("Replaying latest session %s", id)
	}

	state, err := st.ReplaySession(ctx, id)
	if err != nil {
		return sessionLookupError(formatter, err)
	}

	result := ReplayResult{
		Session:  toSessionInfo(state.Session),
		Programs: make([]ProgramInfo, 0, len(state.Programs)),
		Released: state.Released,
		Failures: state.Failures,
		LastSeq:  state.LastSeq,
	}
	for _, p := range state.Programs {
		result.Programs = append(result.Programs, ProgramInfo{
			Handle:      formatHandle(p.Handle),
			Fingerprint: p.Fingerprint.String(),
			Kind:        p.Kind.String(),
			Provenance:  p.Provenance.String(),
			Reloads:     p.Reloads,
			Promoted:    p.Promoted,
		})
	}

	if opts.Format == "json" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(CLIResponse{Status: "ok", Data: result, SessionID: id}); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Session %s (%d events)\n\n", id, result.LastSeq)
		if len(result.Programs) == 0 {
			fmt.Fprintln(w, "No live programs.")
		}
		for _, p := range result.Programs {
			promoted := ""
			if p.Promoted {
				promoted = " promoted"
			}
			fmt.Fprintf(w, "  %-8s %s %-2s  %-12s reloads=%d%s\n", p.Handle, p.Fingerprint, p.Kind, p.Provenance, p.Reloads, promoted)
		}
		fmt.Fprintf(w, "\nLive: %d  Released: %d  Failures: %d\n", len(result.Programs), result.Released, result.Failures)
	}

	if result.Failures > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d failure(s) recorded", result.Failures))
	}
	return nil
}
