// Package harness runs conformance scenarios against a real Engine.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	config:
//	  hunting: { enabled: true }
//	files:
//	  - name: 000000000000aabb-vs_replace.txt
//	    content: |
//	      // tweak
//	steps:
//	  - create: { as: A, kind: vs, id: aabb, body: main }
//	  - bind: A
//	  - press: [next_vs, mark_vs]
//	  - advance: 1s
//	  - write: { name: 000000000000aabb-vs_replace.txt, content: "// v2" }
//	  - reload: true
//	assertions:
//	  - type: provenance
//	    program: A
//	    provenance: recompiled-from-source
//
// Program labels ("A") name the handle a create step returned. Each step
// sets exactly one action. A press sends a down and an up event for each
// listed action and then ticks the engine once.
//
// # Assertion Types
//
//   - provenance: a program's replacement came from the given stage
//   - replaced, not_replaced: whether a program has a replacement installed
//   - selected: the hunting cursor of a resource is on an id
//   - file_exists, file_absent: an artifact exists (optionally containing text)
//   - journal_count: the session journal holds N events of a type
//   - live_programs: the device holds N live programs
//
// # Deterministic Testing
//
// Each run gets fresh temp directories, the in-memory device and toolchain
// from testutil, a manual clock starting at testutil.Epoch and an in-memory
// SQLite journal. Files are stamped with the clock, programs fingerprint to
// their declared id under header hashing and device handles are issued in
// order, so traces are byte-identical across runs and are compared to golden
// files in testdata/golden.
package harness
