// Package ir provides the shared data model for shaderhunt.
//
// This package contains value types only: fingerprints, program kinds,
// provenance, artifact keys and compiled auto-fix rules, plus the content
// hashers that derive a Fingerprint from program bytecode. All other internal
// packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Fingerprint equality means "same program" for caching purposes.
//     Collisions are accepted as residual risk.
//   - Handles are opaque host-issued identifiers. The host may reissue a
//     handle value for an unrelated object, so nothing here assumes handles
//     are unique for the lifetime of the process.
//   - Filenames are always written in the canonical 16-digit form. The legacy
//     split form is parsed, never produced.
package ir
