// Package compiler connects shaderhunt to the external program toolchain and
// compiles declarative auto-fix rules.
//
// The toolchain (compiler, assembler, disassembler, decompiler) is a black
// box reached through the Toolchain interface. Calls are bounded and
// synchronous; there is no cancellation once a call starts.
//
// Auto-fix rules are declared in CUE and compiled to ir.FixRule values:
//
//	fix: "reverse-stereo-halo": {
//	    description: "Move the stereo correction before the projection"
//	    kinds: ["vs"]
//	    match: #"(o0\.xyzw = )(r\d+)\.xyzw;"#
//	    replace: "${1}stereo_fix(${2}).xyzw;"
//	    once: true
//	}
//
// Rules apply in declaration order. A rule whose pattern does not match is a
// no-op; an auto-patch only becomes a live replacement when at least one rule
// changed the text.
package compiler
