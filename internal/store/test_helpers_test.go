package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/shaderhunt/internal/ir"
)

var testEpoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// createTestStore opens a fresh journal in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSession inserts a session with fixed metadata.
func createTestSession(t *testing.T, s *Store, id string, started time.Time) ir.Session {
	t.Helper()
	sess := ir.Session{
		ID:            id,
		StartedAt:     started,
		EngineVersion: ir.EngineVersion,
		HashStrategy:  "fnv",
		OverridesDir:  "/game/overrides",
		CacheDir:      "/game/cache",
	}
	if err := s.BeginSession(context.Background(), sess); err != nil {
		t.Fatalf("BeginSession() failed: %v", err)
	}
	return sess
}

// appendTestEvent appends ev with the session id and a timestamp filled in.
func appendTestEvent(t *testing.T, s *Store, sessionID string, ev ir.JournalEvent) {
	t.Helper()
	ev.SessionID = sessionID
	if ev.At.IsZero() {
		ev.At = testEpoch.Add(time.Duration(ev.Seq) * time.Millisecond)
	}
	if err := s.AppendEvent(context.Background(), ev); err != nil {
		t.Fatalf("AppendEvent(%d) failed: %v", ev.Seq, err)
	}
}
