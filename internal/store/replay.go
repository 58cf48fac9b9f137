package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/shaderhunt/internal/ir"
)

// SessionState is a session's program table reconstructed from its journal.
type SessionState struct {
	Session  ir.Session
	Programs []ir.ProgramState // live at the end of the journal, sorted by handle
	Released int               // release events seen
	Failures int               // reload/promote events with OK=false
	LastSeq  int64
}

// ReplaySession folds a session's events into the program table the engine
// held when the last event was written.
//
// A create for a handle that is already live replaces it, matching the
// engine's handle-reuse behavior.
func (s *Store) ReplaySession(ctx context.Context, sessionID string) (SessionState, error) {
	sess, err := s.Session(ctx, sessionID)
	if err != nil {
		return SessionState{}, fmt.Errorf("replay session: %w", err)
	}
	events, err := s.Events(ctx, sessionID)
	if err != nil {
		return SessionState{}, fmt.Errorf("replay session: %w", err)
	}

	state := SessionState{Session: sess}
	live := make(map[ir.Handle]*ir.ProgramState)
	for _, ev := range events {
		state.LastSeq = ev.Seq
		switch ev.Type {
		case ir.EventCreate:
			live[ev.Handle] = &ir.ProgramState{
				Handle:      ev.Handle,
				Fingerprint: ev.Fingerprint,
				Kind:        ev.Kind,
				Provenance:  ev.Provenance,
			}
		case ir.EventRelease:
			delete(live, ev.Handle)
			state.Released++
		case ir.EventReload:
			if !ev.OK {
				state.Failures++
				continue
			}
			if p, ok := live[ev.Handle]; ok {
				p.Provenance = ev.Provenance
				p.Reloads++
			}
		case ir.EventPromote:
			if !ev.OK {
				state.Failures++
				continue
			}
			for _, p := range live {
				if p.Fingerprint == ev.Fingerprint && p.Kind == ev.Kind {
					p.Promoted = true
				}
			}
		}
	}

	state.Programs = make([]ir.ProgramState, 0, len(live))
	for _, p := range live {
		state.Programs = append(state.Programs, *p)
	}
	sort.Slice(state.Programs, func(i, j int) bool {
		return state.Programs[i].Handle < state.Programs[j].Handle
	})
	return state, nil
}
