package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shaderhunt/internal/ir"
	"github.com/roach88/shaderhunt/internal/store"
)

var journalEpoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// writeJournal records two sessions: "s1" ends cleanly, "s2" is still
// running and has a failed reload.
func writeJournal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shaderhunt.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	for i, id := range []string{"s1", "s2"} {
		require.NoError(t, st.BeginSession(ctx, ir.Session{
			ID:            id,
			StartedAt:     journalEpoch.Add(time.Duration(i) * time.Hour),
			EngineVersion: ir.EngineVersion,
			HashStrategy:  "header",
			OverridesDir:  "/game/ShaderFixes",
			CacheDir:      "/game/ShaderCache",
		}))
	}
	require.NoError(t, st.EndSession(ctx, "s1", journalEpoch.Add(30*time.Minute)))

	events := []ir.JournalEvent{
		{SessionID: "s1", Seq: 1, Type: ir.EventCreate, Handle: 0x1000, Fingerprint: 0xaabb, Kind: ir.KindVertex, Provenance: ir.ProvenanceRecompiled, OK: true, Detail: "000000000000aabb-vs_replace.txt"},
		{SessionID: "s1", Seq: 2, Type: ir.EventCreate, Handle: 0x1002, Fingerprint: 0xccdd, Kind: ir.KindPixel, OK: true},
		{SessionID: "s1", Seq: 3, Type: ir.EventReload, Handle: 0x1000, Fingerprint: 0xaabb, Kind: ir.KindVertex, Provenance: ir.ProvenanceRecompiled, OK: true},
		{SessionID: "s1", Seq: 4, Type: ir.EventMark, Fingerprint: 0xccdd, Resource: "ps", OK: true},
		{SessionID: "s1", Seq: 5, Type: ir.EventRelease, Handle: 0x1002, Fingerprint: 0xccdd, Kind: ir.KindPixel, OK: true},
		{SessionID: "s2", Seq: 1, Type: ir.EventCreate, Handle: 0x1000, Fingerprint: 0xaabb, Kind: ir.KindVertex, Provenance: ir.ProvenanceRecompiled, OK: true},
		{SessionID: "s2", Seq: 2, Type: ir.EventReload, Handle: 0x1000, Fingerprint: 0xaabb, Kind: ir.KindVertex, OK: false, Detail: "error X3000: syntax error"},
	}
	for _, ev := range events {
		ev.At = journalEpoch.Add(time.Duration(ev.Seq) * time.Millisecond)
		require.NoError(t, st.AppendEvent(ctx, ev))
	}
	return path
}

func TestJournalListsSessions(t *testing.T) {
	db := writeJournal(t)

	buf := &bytes.Buffer{}
	cmd := NewJournalCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", db})

	require.NoError(t, cmd.Execute())
	assert.Equal(t,
		"s1  2024-01-01T12:00:00Z  2024-01-01T12:30:00Z  header 0.1.0\n"+
			"s2  2024-01-01T13:00:00Z  (running)  header 0.1.0\n",
		buf.String())
}

func TestJournalSessionEvents(t *testing.T) {
	db := writeJournal(t)

	buf := &bytes.Buffer{}
	cmd := NewJournalCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", db, "--session", "s1"})

	require.NoError(t, cmd.Execute())
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 5)
	assert.Equal(t, "    1  create   000000000000aabb vs 0x1000 recompiled-from-source ok  000000000000aabb-vs_replace.txt", string(lines[0]))
	assert.Equal(t, "    4  mark     000000000000ccdd ps ok", string(lines[3]))
}

func TestJournalFingerprintJSON(t *testing.T) {
	db := writeJournal(t)

	buf := &bytes.Buffer{}
	cmd := NewJournalCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", db, "--fingerprint", "000000000000aabb"})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string      `json:"status"`
		Data   []EventInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Len(t, resp.Data, 4)
	assert.Equal(t, "s1", resp.Data[0].Session)
	assert.Equal(t, "s2", resp.Data[3].Session)
	assert.False(t, resp.Data[3].OK)
	assert.Equal(t, "error X3000: syntax error", resp.Data[3].Detail)
	assert.Equal(t, "0x1000", resp.Data[3].Handle)
}

func TestJournalErrors(t *testing.T) {
	db := writeJournal(t)

	tests := []struct {
		name string
		args []string
		code int
		want string
	}{
		{"missing db", []string{"--db", filepath.Join(t.TempDir(), "none.db")}, ExitCommandError, "journal not found"},
		{"unknown session", []string{"--db", db, "--session", "nope"}, ExitFailure, "session not found"},
		{"bad fingerprint", []string{"--db", db, "--fingerprint", "xyz"}, ExitCommandError, "invalid --fingerprint"},
		{"both filters", []string{"--db", db, "--session", "s1", "--fingerprint", "aabb"}, ExitCommandError, "mutually exclusive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewJournalCommand(&RootOptions{Format: "text"})
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			require.Error(t, err)
			assert.Equal(t, tt.code, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReplayCleanSession(t *testing.T) {
	db := writeJournal(t)

	buf := &bytes.Buffer{}
	cmd := NewReplayCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", db, "--session", "s1"})

	require.NoError(t, cmd.Execute())
	out := buf.String()
	assert.Contains(t, out, "Session s1 (5 events)")
	assert.Contains(t, out, "0x1000   000000000000aabb vs  recompiled-from-source reloads=1\n")
	assert.NotContains(t, out, "ccdd")
	assert.Contains(t, out, "Live: 1  Released: 1  Failures: 0")
}

func TestReplayLatestSessionWithFailures(t *testing.T) {
	db := writeJournal(t)

	buf := &bytes.Buffer{}
	cmd := NewReplayCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", db})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status    string       `json:"status"`
		Data      ReplayResult `json:"data"`
		SessionID string       `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "s2", resp.SessionID)
	assert.Equal(t, 1, resp.Data.Failures)
	assert.Empty(t, resp.Data.Session.EndedAt)
	require.Len(t, resp.Data.Programs, 1)
	assert.Equal(t, 0, resp.Data.Programs[0].Reloads)
}

func TestReplayEmptyJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	cmd := NewReplayCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", path})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
