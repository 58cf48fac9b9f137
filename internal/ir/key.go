package ir

import (
	"fmt"
	"strings"
)

// ArtifactKey identifies a program on disk: "{fingerprint}-{kind}".
type ArtifactKey struct {
	Fingerprint Fingerprint
	Kind        ProgramKind
}

// Key builds an ArtifactKey.
func Key(fp Fingerprint, kind ProgramKind) ArtifactKey {
	return ArtifactKey{Fingerprint: fp, Kind: kind}
}

// String returns "{fp:016x}-{kind}".
func (k ArtifactKey) String() string {
	return k.Fingerprint.String() + "-" + k.Kind.String()
}

// Filename returns the canonical filename for role.
func (k ArtifactKey) Filename(role Role) string {
	return k.String() + role.suffix()
}

// ParsedName is the result of parsing an artifact filename.
type ParsedName struct {
	Key    ArtifactKey
	Role   Role
	Legacy bool // name used the split {hi8}-{lo8} form
}

// roleSuffixes is ordered longest first so "_replace.txt" wins over ".txt".
var roleSuffixes = []Role{RoleHumanSource, RoleBinaryCache, RoleMarkedBad, RoleDisassembly, RoleOriginal}

// ParseFilename parses a base filename of the form
//
//	{fp:16}-{kind}{suffix}
//	{hi:8}-{lo:8}-{kind}{suffix}   (legacy)
//
// Hex digits are accepted in either case.
func ParseFilename(name string) (ParsedName, error) {
	var role Role
	stem := ""
	found := false
	for _, r := range roleSuffixes {
		if s, ok := strings.CutSuffix(name, r.suffix()); ok {
			role, stem, found = r, s, true
			break
		}
	}
	if !found {
		return ParsedName{}, fmt.Errorf("parse %q: unrecognized suffix", name)
	}

	parts := strings.Split(stem, "-")
	var fpText string
	legacy := false
	switch {
	case len(parts) == 2 && len(parts[0]) == 16:
		fpText = parts[0]
	case len(parts) == 3 && len(parts[0]) == 8 && len(parts[1]) == 8:
		fpText = parts[0] + parts[1]
		legacy = true
	default:
		return ParsedName{}, fmt.Errorf("parse %q: want {fp:16}-{kind} or {hi:8}-{lo:8}-{kind}", name)
	}

	fp, err := ParseFingerprint(fpText)
	if err != nil {
		return ParsedName{}, fmt.Errorf("parse %q: %w", name, err)
	}
	kind, err := ParseProgramKind(parts[len(parts)-1])
	if err != nil {
		return ParsedName{}, fmt.Errorf("parse %q: %w", name, err)
	}
	return ParsedName{Key: Key(fp, kind), Role: role, Legacy: legacy}, nil
}
