package compiler

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/shaderhunt/internal/ir"
)

// Output is the product of a successful compile or assemble.
type Output struct {
	Bytecode []byte

	// Warnings are non-fatal diagnostics. For assembly they include parse
	// errors the assembler recovered from.
	Warnings []string
}

// Toolchain is the external bytecode/text toolchain.
//
// Compile and Assemble report failures as *DiagnosticError so callers can
// surface the full diagnostic text to the operator.
type Toolchain interface {
	// Compile compiles human-editable source for target (e.g. "vs_5_0").
	Compile(ctx context.Context, source, target string) (Output, error)

	// Assemble converts assembly text back to bytecode.
	Assemble(ctx context.Context, asm string) (Output, error)

	// Disassemble renders bytecode as assembly text.
	Disassemble(ctx context.Context, bytecode []byte) (string, error)

	// Decompile converts assembly text to equivalent editable source.
	Decompile(ctx context.Context, asm string, kind ir.ProgramKind) (string, error)
}

// Stage names used in DiagnosticError.
const (
	StageCompile     = "compile"
	StageAssemble    = "assemble"
	StageDisassemble = "disassemble"
	StageDecompile   = "decompile"
)

// DiagnosticError is a toolchain failure with the tool's diagnostic output.
type DiagnosticError struct {
	Stage       string
	Diagnostics string
	Err         error
}

func (e *DiagnosticError) Error() string {
	msg := e.Stage + " failed"
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Diagnostics != "" {
		msg += "\n" + e.Diagnostics
	}
	return msg
}

func (e *DiagnosticError) Unwrap() error {
	return e.Err
}

// NewDiagnosticError creates a DiagnosticError.
func NewDiagnosticError(stage, diagnostics string, err error) *DiagnosticError {
	return &DiagnosticError{Stage: stage, Diagnostics: diagnostics, Err: err}
}

// Diagnostics extracts diagnostic text from err, falling back to err.Error().
func Diagnostics(err error) string {
	if err == nil {
		return ""
	}
	var de *DiagnosticError
	if errors.As(err, &de) && de.Diagnostics != "" {
		return de.Diagnostics
	}
	return err.Error()
}

// IsDiagnosticError returns true if err carries toolchain diagnostics.
func IsDiagnosticError(err error) bool {
	var de *DiagnosticError
	return errors.As(err, &de)
}
