package testutil

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/shaderhunt/internal/compiler"
	"github.com/roach88/shaderhunt/internal/ir"
)

// Toolchain is a deterministic stand-in for the external compiler suite.
//
//   - Compile fails when the source contains "#error"; otherwise the output
//     is "BC|{target}|{source}".
//   - Assemble fails when the text contains "!!fatal"; lines starting with
//     "??" produce warnings. Output is "ASM|{asm}".
//   - Disassemble returns "asm {hex}\nret\n".
//   - Decompile returns a small function containing "mul(r1, cb0)" so fix
//     rules have something to match.
//
// Thread-safety: All methods are safe for concurrent use.
type Toolchain struct {
	mu           sync.Mutex
	compiles     int
	assembles    int
	disassembles int
	decompiles   int
	targets      []string

	// FailDisassemble and FailDecompile force those stages to fail.
	FailDisassemble bool
	FailDecompile   bool
}

var _ compiler.Toolchain = (*Toolchain)(nil)

// NewToolchain creates a Toolchain.
func NewToolchain() *Toolchain {
	return &Toolchain{}
}

// Compile implements compiler.Toolchain.
func (tc *Toolchain) Compile(_ context.Context, source, target string) (compiler.Output, error) {
	tc.mu.Lock()
	tc.compiles++
	tc.targets = append(tc.targets, target)
	tc.mu.Unlock()

	for i, line := range strings.Split(source, "\n") {
		if strings.Contains(line, "#error") {
			return compiler.Output{}, compiler.NewDiagnosticError(compiler.StageCompile,
				fmt.Sprintf("(%d,1): error X1000: %s", i+1, strings.TrimSpace(line)),
				errors.New("compilation failed"))
		}
	}
	return compiler.Output{Bytecode: []byte("BC|" + target + "|" + source)}, nil
}

// Assemble implements compiler.Toolchain.
func (tc *Toolchain) Assemble(_ context.Context, asm string) (compiler.Output, error) {
	tc.mu.Lock()
	tc.assembles++
	tc.mu.Unlock()

	if strings.Contains(asm, "!!fatal") {
		return compiler.Output{}, compiler.NewDiagnosticError(compiler.StageAssemble,
			"fatal: unrecoverable assembly", errors.New("assembly failed"))
	}
	var warnings []string
	for i, line := range strings.Split(asm, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "??") {
			warnings = append(warnings, fmt.Sprintf("line %d: unknown instruction", i+1))
		}
	}
	return compiler.Output{Bytecode: []byte("ASM|" + asm), Warnings: warnings}, nil
}

// Disassemble implements compiler.Toolchain.
func (tc *Toolchain) Disassemble(_ context.Context, bytecode []byte) (string, error) {
	tc.mu.Lock()
	tc.disassembles++
	fail := tc.FailDisassemble
	tc.mu.Unlock()

	if fail {
		return "", compiler.NewDiagnosticError(compiler.StageDisassemble, "invalid bytecode", errors.New("disassembly failed"))
	}
	return "asm " + hex.EncodeToString(bytecode) + "\nret\n", nil
}

// Decompile implements compiler.Toolchain.
func (tc *Toolchain) Decompile(_ context.Context, asm string, kind ir.ProgramKind) (string, error) {
	tc.mu.Lock()
	tc.decompiles++
	fail := tc.FailDecompile
	tc.mu.Unlock()

	if fail {
		return "", compiler.NewDiagnosticError(compiler.StageDecompile, "unsupported opcode", errors.New("decompile failed"))
	}
	first, _, _ := strings.Cut(asm, "\n")
	return fmt.Sprintf("// decompiled %s\nfloat4 main() {\n  r0 = mul(r1, cb0);\n}\n// from: %s\n", kind, first), nil
}

// SetFailures sets FailDisassemble and FailDecompile under the lock.
func (tc *Toolchain) SetFailures(disassemble, decompile bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.FailDisassemble = disassemble
	tc.FailDecompile = decompile
}

// Compiles returns the number of Compile calls.
func (tc *Toolchain) Compiles() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.compiles
}

// Assembles returns the number of Assemble calls.
func (tc *Toolchain) Assembles() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.assembles
}

// Disassembles returns the number of Disassemble calls.
func (tc *Toolchain) Disassembles() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.disassembles
}

// Decompiles returns the number of Decompile calls.
func (tc *Toolchain) Decompiles() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.decompiles
}

// Targets returns the compile targets used, in call order.
func (tc *Toolchain) Targets() []string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return append([]string(nil), tc.targets...)
}
