package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/shaderhunt/internal/ir"
)

// BeginSession inserts a session record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) BeginSession(ctx context.Context, sess ir.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions
		(id, started_at, engine_version, hash_strategy, overrides_dir, cache_dir)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		toNanos(sess.StartedAt),
		sess.EngineVersion,
		sess.HashStrategy,
		sess.OverridesDir,
		sess.CacheDir,
	)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	return nil
}

// EndSession stamps the session's end time.
func (s *Store) EndSession(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET ended_at = ? WHERE id = ?`, toNanos(at), id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("end session %s: %w", id, ErrNotFound)
	}
	return nil
}

// AppendEvent inserts a journal event.
// Uses ON CONFLICT(session_id, seq) DO NOTHING - replaying the same event
// is silently ignored.
//
// Note: The session referenced by SessionID must exist (foreign key constraint).
func (s *Store) AppendEvent(ctx context.Context, ev ir.JournalEvent) error {
	ok := 0
	if ev.OK {
		ok = 1
	}
	kind := ev.Kind.String()
	if ev.Type == ir.EventMark && ev.Resource != "" {
		kind = ev.Resource
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events
		(session_id, seq, type, handle, fingerprint, kind, provenance, ok, detail, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`,
		ev.SessionID,
		ev.Seq,
		string(ev.Type),
		int64(ev.Handle),
		ev.Fingerprint.String(),
		kind,
		ev.Provenance.String(),
		ok,
		ev.Detail,
		toNanos(ev.At),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// PutOriginal stores a program's original bytecode, compressed.
// The first write for a (fingerprint, kind) wins; identical fingerprints
// carry identical bytecode.
func (s *Store) PutOriginal(ctx context.Context, fp ir.Fingerprint, kind ir.ProgramKind, bytecode []byte) error {
	packed, err := compressBytecode(bytecode)
	if err != nil {
		return fmt.Errorf("put original: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO originals (fingerprint, kind, size, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(fingerprint, kind) DO NOTHING
	`, fp.String(), kind.String(), len(bytecode), packed)
	if err != nil {
		return fmt.Errorf("put original: %w", err)
	}
	return nil
}
