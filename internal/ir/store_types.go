package ir

import "time"

// NOTE: These are journal record types shared by the engine (writer) and
// the store (persistence). Seq is the engine's logical clock.

// EventType names a journal event.
type EventType string

const (
	EventCreate  EventType = "create"
	EventRelease EventType = "release"
	EventReload  EventType = "reload"
	EventPromote EventType = "promote"
	EventMark    EventType = "mark"
)

// Session is one attach/detach of the engine.
type Session struct {
	ID            string
	StartedAt     time.Time
	EndedAt       time.Time // zero while running
	EngineVersion string
	HashStrategy  string
	OverridesDir  string
	CacheDir      string
}

// JournalEvent is one entry in a session's journal.
type JournalEvent struct {
	SessionID   string
	Seq         int64
	Type        EventType
	Handle      Handle
	Fingerprint Fingerprint
	Kind        ProgramKind
	Resource    string // marks only: the hunted resource ("vs", "ib", ...)
	Provenance  Provenance
	OK          bool
	Detail      string // file path, rule names or diagnostics
	At          time.Time
}

// ProgramState is a program's state reconstructed from a journal.
type ProgramState struct {
	Handle      Handle
	Fingerprint Fingerprint
	Kind        ProgramKind
	Provenance  Provenance
	Reloads     int
	Promoted    bool
}
