package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/shaderhunt/internal/artifact"
	"github.com/roach88/shaderhunt/internal/ir"
)

// ResolveError represents a failure to turn an artifact into a program.
//
// Resolve errors include:
//   - Not found: no artifact for this stage (never surfaced by Resolve)
//   - Stale: a cached binary whose timestamp no longer matches its source
//   - Compile failed: a found source or assembly did not build
//   - Create failed: the device rejected the built bytecode
//
// ResolveError includes structured fields for diagnostics.
type ResolveError struct {
	// Code identifies the error category.
	Code ResolveErrorCode

	// Message is a human-readable description.
	Message string

	// Key identifies the program.
	Key ir.ArtifactKey

	// Path is the artifact involved, if any.
	Path string

	// Err is the underlying cause. For compile failures it is a
	// *compiler.DiagnosticError.
	Err error
}

// ResolveErrorCode categorizes resolve errors.
type ResolveErrorCode string

const (
	// ErrCodeNotFound indicates no artifact exists for the stage.
	ErrCodeNotFound ResolveErrorCode = "NOT_FOUND"

	// ErrCodeStale indicates a cached binary older or newer than its source.
	ErrCodeStale ResolveErrorCode = "STALE"

	// ErrCodeCompileFailed indicates the toolchain rejected a found artifact.
	ErrCodeCompileFailed ResolveErrorCode = "COMPILE_FAILED"

	// ErrCodeCreateFailed indicates the device rejected built bytecode.
	ErrCodeCreateFailed ResolveErrorCode = "CREATE_FAILED"

	// ErrCodeReadFailed indicates an artifact exists but could not be read.
	ErrCodeReadFailed ResolveErrorCode = "READ_FAILED"
)

// ErrNoOriginal reports that a program's original bytecode was not
// retained, so it cannot be promoted.
var ErrNoOriginal = errors.New("original bytecode not retained")

// ErrUnknownProgram reports that no live program has the fingerprint.
var ErrUnknownProgram = errors.New("no live program with fingerprint")

// Error implements the error interface.
func (e *ResolveError) Error() string {
	msg := fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Key)
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s (%s, path=%s)", e.Code, e.Message, e.Key, e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ResolveError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if err means "no artifact". Matches both
// ResolveError with ErrCodeNotFound and artifact.ErrNotFound.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	var re *ResolveError
	if errors.As(err, &re) && re.Code == ErrCodeNotFound {
		return true
	}
	return errors.Is(err, artifact.ErrNotFound)
}

// IsStale returns true if err is a stale cached binary.
func IsStale(err error) bool {
	var re *ResolveError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStale
	}
	return false
}

// IsCompileFailed returns true if a found artifact failed to build.
func IsCompileFailed(err error) bool {
	var re *ResolveError
	if errors.As(err, &re) {
		return re.Code == ErrCodeCompileFailed
	}
	return false
}

func newStaleError(key ir.ArtifactKey, path string) *ResolveError {
	return &ResolveError{
		Code:    ErrCodeStale,
		Message: "cached binary does not match its source timestamp",
		Key:     key,
		Path:    path,
	}
}

func newCompileError(key ir.ArtifactKey, path string, err error) *ResolveError {
	return &ResolveError{
		Code:    ErrCodeCompileFailed,
		Message: "toolchain rejected artifact",
		Key:     key,
		Path:    path,
		Err:     err,
	}
}

func newReadError(key ir.ArtifactKey, path string, err error) *ResolveError {
	return &ResolveError{
		Code:    ErrCodeReadFailed,
		Message: "artifact unreadable",
		Key:     key,
		Path:    path,
		Err:     err,
	}
}

func newCreateError(key ir.ArtifactKey, path string, err error) *ResolveError {
	return &ResolveError{
		Code:    ErrCodeCreateFailed,
		Message: "device rejected replacement",
		Key:     key,
		Path:    path,
		Err:     err,
	}
}
