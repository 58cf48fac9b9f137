package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/shaderhunt/internal/ir"
)

// Sessions returns every session, oldest first.
// Results are ordered deterministically: ORDER BY started_at ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if there are none.
func (s *Store) Sessions(ctx context.Context) ([]ir.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, COALESCE(ended_at, 0), engine_version, hash_strategy, overrides_dir, cache_dir
		FROM sessions
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []ir.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// Session returns one session by id.
func (s *Store) Session(ctx context.Context, id string) (ir.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, COALESCE(ended_at, 0), engine_version, hash_strategy, overrides_dir, cache_dir
		FROM sessions
		WHERE id = ?
	`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return sess, err
}

// LatestSession returns the most recently started session.
func (s *Store) LatestSession(ctx context.Context) (ir.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, COALESCE(ended_at, 0), engine_version, hash_strategy, overrides_dir, cache_dir
		FROM sessions
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Session{}, fmt.Errorf("latest session: %w", ErrNotFound)
	}
	return sess, err
}

// Events returns a session's events in seq order.
//
// Returns an empty slice (not nil) if no events exist.
func (s *Store) Events(ctx context.Context, sessionID string) ([]ir.JournalEvent, error) {
	return s.queryEvents(ctx, `
		SELECT session_id, seq, type, handle, fingerprint, kind, provenance, ok, detail, at
		FROM events
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
}

// EventsForFingerprint returns every event for fp across sessions, ordered
// by session start then seq.
func (s *Store) EventsForFingerprint(ctx context.Context, fp ir.Fingerprint) ([]ir.JournalEvent, error) {
	return s.queryEvents(ctx, `
		SELECT e.session_id, e.seq, e.type, e.handle, e.fingerprint, e.kind, e.provenance, e.ok, e.detail, e.at
		FROM events e
		JOIN sessions s ON e.session_id = s.id
		WHERE e.fingerprint = ?
		ORDER BY s.started_at ASC, e.session_id COLLATE BINARY ASC, e.seq ASC
	`, fp.String())
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]ir.JournalEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.JournalEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Original returns the stored original bytecode for (fp, kind).
func (s *Store) Original(ctx context.Context, fp ir.Fingerprint, kind ir.ProgramKind) ([]byte, error) {
	var size int
	var packed []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT size, data FROM originals WHERE fingerprint = ? AND kind = ?
	`, fp.String(), kind.String()).Scan(&size, &packed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("original %s: %w", ir.Key(fp, kind), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query original: %w", err)
	}
	return decompressBytecode(packed, size)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (ir.Session, error) {
	var sess ir.Session
	var started, ended int64
	if err := sc.Scan(&sess.ID, &started, &ended, &sess.EngineVersion, &sess.HashStrategy, &sess.OverridesDir, &sess.CacheDir); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Session{}, err
		}
		return ir.Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.StartedAt = fromNanos(started)
	sess.EndedAt = fromNanos(ended)
	return sess, nil
}

func scanEvent(sc scanner) (ir.JournalEvent, error) {
	var (
		ev                  ir.JournalEvent
		typ, fp, kind, prov string
		handle, at          int64
		ok                  int
	)
	if err := sc.Scan(&ev.SessionID, &ev.Seq, &typ, &handle, &fp, &kind, &prov, &ok, &ev.Detail, &at); err != nil {
		return ir.JournalEvent{}, fmt.Errorf("scan event: %w", err)
	}
	ev.Type = ir.EventType(typ)
	ev.Handle = ir.Handle(handle)
	ev.OK = ok != 0
	ev.At = fromNanos(at)

	var err error
	if ev.Fingerprint, err = ir.ParseFingerprint(fp); err != nil {
		return ir.JournalEvent{}, fmt.Errorf("scan event %d: %w", ev.Seq, err)
	}
	if ev.Provenance, err = ir.ParseProvenance(prov); err != nil {
		return ir.JournalEvent{}, fmt.Errorf("scan event %d: %w", ev.Seq, err)
	}
	if k, kerr := ir.ParseProgramKind(kind); kerr == nil {
		ev.Kind = k
	} else if ev.Type != ir.EventMark {
		return ir.JournalEvent{}, fmt.Errorf("scan event %d: %w", ev.Seq, kerr)
	}
	if ev.Type == ir.EventMark {
		ev.Resource = kind
	}
	return ev, nil
}
