package ir

import (
	"fmt"
	"strconv"
)

// Fingerprint is the deterministic identity of a program's bytecode.
type Fingerprint uint64

// String renders the fingerprint as 16 lowercase hex digits, the form used
// in every artifact filename.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// ParseFingerprint parses 1-16 hex digits. Case is ignored.
func ParseFingerprint(s string) (Fingerprint, error) {
	if len(s) == 0 || len(s) > 16 {
		return 0, fmt.Errorf("invalid fingerprint %q: want 1-16 hex digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}
	return Fingerprint(v), nil
}

// Handle is an opaque reference to a host-owned object.
// The zero Handle means "no handle".
type Handle uint64

// Valid reports whether h refers to an object.
func (h Handle) Valid() bool {
	return h != 0
}

// ProgramKind identifies a programmable pipeline stage.
type ProgramKind int

const (
	KindVertex ProgramKind = iota
	KindPixel
	KindGeometry
	KindHull
	KindDomain
	KindCompute
)

// AllKinds lists every ProgramKind in declaration order.
var AllKinds = []ProgramKind{KindVertex, KindPixel, KindGeometry, KindHull, KindDomain, KindCompute}

var kindShortNames = [...]string{"vs", "ps", "gs", "hs", "ds", "cs"}

// String returns the two-letter name used in filenames ("vs", "ps", ...).
func (k ProgramKind) String() string {
	if k < 0 || int(k) >= len(kindShortNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindShortNames[k]
}

// Valid reports whether k is a known kind.
func (k ProgramKind) Valid() bool {
	return k >= 0 && int(k) < len(kindShortNames)
}

// DefaultTarget returns the compiler target profile for the kind, e.g. "vs_5_0".
func (k ProgramKind) DefaultTarget() string {
	return k.String() + "_5_0"
}

// ParseProgramKind parses a two-letter kind name.
func ParseProgramKind(s string) (ProgramKind, error) {
	for i, name := range kindShortNames {
		if name == s {
			return ProgramKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown program kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k ProgramKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid program kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ProgramKind) UnmarshalText(b []byte) error {
	v, err := ParseProgramKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Provenance records which resolution stage produced a live replacement.
type Provenance int

const (
	ProvenanceNone Provenance = iota
	ProvenanceCachedBinary
	ProvenanceRecompiled
	ProvenanceReassembled
	ProvenanceAutoPatched
)

var provenanceNames = [...]string{
	"none",
	"cached-binary",
	"recompiled-from-source",
	"reassembled-from-asm",
	"auto-patched",
}

func (p Provenance) String() string {
	if p < 0 || int(p) >= len(provenanceNames) {
		return fmt.Sprintf("provenance(%d)", int(p))
	}
	return provenanceNames[p]
}

// IsSourceBased reports whether the replacement came from an on-disk text
// artifact an operator can edit.
func (p Provenance) IsSourceBased() bool {
	return p == ProvenanceRecompiled || p == ProvenanceReassembled
}

// ParseProvenance parses the String form of a provenance.
func ParseProvenance(s string) (Provenance, error) {
	for i, name := range provenanceNames {
		if name == s {
			return Provenance(i), nil
		}
	}
	return 0, fmt.Errorf("unknown provenance %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Provenance) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Role identifies what an artifact file holds.
type Role int

const (
	// RoleBinaryCache is a compiled replacement ({key}_replace.bin).
	RoleBinaryCache Role = iota
	// RoleHumanSource is editable replacement source ({key}_replace.txt).
	RoleHumanSource
	// RoleDisassembly is assembly text ({key}.txt). In the overrides root it
	// is an assembly override; in the cache root it is a diagnostic export.
	RoleDisassembly
	// RoleMarkedBad disables auto-patching for the key ({key}_bad.txt).
	RoleMarkedBad
	// RoleOriginal is a raw snapshot of the original bytecode ({key}.bin).
	RoleOriginal
)

var roleNames = [...]string{"binary-cache", "human-source", "disassembly", "marked-bad", "original"}

func (r Role) String() string {
	if r < 0 || int(r) >= len(roleNames) {
		return fmt.Sprintf("role(%d)", int(r))
	}
	return roleNames[r]
}

// suffix returns the filename suffix that follows "{fp}-{kind}".
func (r Role) suffix() string {
	switch r {
	case RoleBinaryCache:
		return "_replace.bin"
	case RoleHumanSource:
		return "_replace.txt"
	case RoleDisassembly:
		return ".txt"
	case RoleMarkedBad:
		return "_bad.txt"
	case RoleOriginal:
		return ".bin"
	default:
		return ""
	}
}

// FixRule is a compiled declarative auto-fix: a regular expression rewrite
// applied to decompiled program text.
type FixRule struct {
	// Name is the rule's label in the rules file.
	Name string `json:"name"`

	// Description is free-form operator documentation.
	Description string `json:"description,omitempty"`

	// Kinds restricts the rule to these program kinds. Empty means all kinds.
	Kinds []ProgramKind `json:"kinds,omitempty"`

	// Match is the regular expression source.
	Match string `json:"match"`

	// Replace is the replacement template (regexp.Expand syntax).
	Replace string `json:"replace"`

	// Once limits the rule to its first match.
	Once bool `json:"once,omitempty"`
}

// AppliesTo reports whether the rule applies to kind.
func (r FixRule) AppliesTo(kind ProgramKind) bool {
	if len(r.Kinds) == 0 {
		return true
	}
	for _, k := range r.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
