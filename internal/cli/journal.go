package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shaderhunt/internal/ir"
	"github.com/roach88/shaderhunt/internal/store"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	DB          string
	Session     string
	Fingerprint string
}

// SessionInfo is one listed session.
type SessionInfo struct {
	ID           string `json:"id"`
	StartedAt    string `json:"started_at"`
	EndedAt      string `json:"ended_at,omitempty"`
	Version      string `json:"engine_version"`
	HashStrategy string `json:"hash_strategy"`
}

// EventInfo is one listed journal event.
type EventInfo struct {
	Session     string `json:"session"`
	Seq         int64  `json:"seq"`
	Type        string `json:"type"`
	Handle      string `json:"handle,omitempty"`
	Fingerprint string `json:"fingerprint"`
	Kind        string `json:"kind,omitempty"`
	Resource    string `json:"resource,omitempty"`
	Provenance  string `json:"provenance,omitempty"`
	OK          bool   `json:"ok"`
	Detail      string `json:"detail,omitempty"`
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the engine's session journal",
		Long: `Read the SQLite journal the engine writes while attached.

Without --session or --fingerprint every recorded session is listed.
With --session the session's events are shown in order. With
--fingerprint every event touching that program is shown, across sessions.

Examples:
  shaderhunt journal --db shaderhunt.db
  shaderhunt journal --db shaderhunt.db --session 6f1c...
  shaderhunt journal --db shaderhunt.db --fingerprint 000000000000aabb`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "journal database path (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "show one session's events")
	cmd.Flags().StringVar(&opts.Fingerprint, "fingerprint", "", "show events for one program fingerprint")

	return cmd
}

func runJournal(opts *JournalOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Session != "" && opts.Fingerprint != "" {
		return NewExitError(ExitCommandError, "--session and --fingerprint are mutually exclusive")
	}

	st, err := openJournal(formatter, opts.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	switch {
	case opts.Fingerprint != "":
		fp, err := ir.ParseFingerprint(opts.Fingerprint)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --fingerprint", err)
		}
		events, err := st.EventsForFingerprint(ctx, fp)
		if err != nil {
			_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		return outputEvents(formatter, events, true)

	case opts.Session != "":
		if _, err := st.Session(ctx, opts.Session); err != nil {
			return sessionLookupError(formatter, err)
		}
		events, err := st.Events(ctx, opts.Session)
		if err != nil {
			_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		return outputEvents(formatter, events, false)

	default:
		sessions, err := st.Sessions(ctx)
		if err != nil {
			_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		return outputSessions(formatter, sessions)
	}
}

// openJournal opens an existing journal. store.Open would create a new
// database at a mistyped path, so existence is checked first.
func openJournal(f *OutputFormatter, path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		_ = f.Error(ErrCodeNotFound, fmt.Sprintf("journal not found: %s", path), nil)
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("journal not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		_ = f.Error(ErrCodeJournal, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	f.VerboseLog("Opened journal %s", path)
	return st, nil
}

func sessionLookupError(f *OutputFormatter, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		_ = f.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitFailure, "session not found", err)
	}
	_ = f.Error(ErrCodeJournal, err.Error(), nil)
	return WrapExitError(ExitCommandError, "failed to read journal", err)
}

func toSessionInfo(s ir.Session) SessionInfo {
	info := SessionInfo{
		ID:           s.ID,
		StartedAt:    s.StartedAt.UTC().Format(time.RFC3339Nano),
		Version:      s.EngineVersion,
		HashStrategy: s.HashStrategy,
	}
	if !s.EndedAt.IsZero() {
		info.EndedAt = s.EndedAt.UTC().Format(time.RFC3339Nano)
	}
	return info
}

func toEventInfo(e ir.JournalEvent) EventInfo {
	info := EventInfo{
		Session:     e.SessionID,
		Seq:         e.Seq,
		Type:        string(e.Type),
		Fingerprint: e.Fingerprint.String(),
		Resource:    e.Resource,
		OK:          e.OK,
		Detail:      e.Detail,
	}
	if e.Handle.Valid() {
		info.Handle = formatHandle(e.Handle)
	}
	// Marks carry a resource name in place of a kind.
	if e.Type != ir.EventMark {
		info.Kind = e.Kind.String()
		info.Provenance = e.Provenance.String()
	}
	return info
}

func formatHandle(h ir.Handle) string {
	return fmt.Sprintf("0x%x", uint64(h))
}

func outputSessions(f *OutputFormatter, sessions []ir.Session) error {
	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, toSessionInfo(s))
	}

	if f.Format == "json" {
		return f.Success(infos)
	}

	if len(infos) == 0 {
		fmt.Fprintln(f.Writer, "No sessions recorded.")
		return nil
	}
	for _, s := range infos {
		ended := s.EndedAt
		if ended == "" {
			ended = "(running)"
		}
		fmt.Fprintf(f.Writer, "%s  %s  %s  %s %s\n", s.ID, s.StartedAt, ended, s.HashStrategy, s.Version)
	}
	return nil
}

func outputEvents(f *OutputFormatter, events []ir.JournalEvent, withSession bool) error {
	infos := make([]EventInfo, 0, len(events))
	for _, e := range events {
		infos = append(infos, toEventInfo(e))
	}

	if f.Format == "json" {
		return f.Success(infos)
	}

	if len(infos) == 0 {
		fmt.Fprintln(f.Writer, "No events.")
		return nil
	}
	for _, e := range infos {
		writeEventLine(f.Writer, e, withSession)
	}
	return nil
}

func writeEventLine(w io.Writer, e EventInfo, withSession bool) {
	if withSession {
		fmt.Fprintf(w, "%s ", e.Session)
	}
	status := "ok"
	if !e.OK {
		status = "FAILED"
	}
	fmt.Fprintf(w, "%5d  %-7s  %s", e.Seq, e.Type, e.Fingerprint)
	if e.Resource != "" {
		fmt.Fprintf(w, " %s", e.Resource)
	}
	if e.Kind != "" {
		fmt.Fprintf(w, " %s", e.Kind)
	}
	if e.Handle != "" {
		fmt.Fprintf(w, " %s", e.Handle)
	}
	if e.Provenance != "" {
		fmt.Fprintf(w, " %s", e.Provenance)
	}
	fmt.Fprintf(w, " %s", status)
	if e.Detail != "" {
		fmt.Fprintf(w, "  %s", e.Detail)
	}
	fmt.Fprintln(w)
}
