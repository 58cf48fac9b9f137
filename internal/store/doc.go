// Package store provides the SQLite-backed session journal.
//
// A session spans one attach/detach of the engine. Within it the journal
// records, in logical-clock order:
//   - create: a program passed through the creation intercept
//   - release: the host released a program
//   - reload: a reload installed (or failed to install) a replacement
//   - promote: the operator promoted a program to an editable source
//   - mark: the operator marked the selected object
//
// Original bytecode is stored once per (fingerprint, kind), compressed with
// zstd, so the CLI can export it after the session has ended.
//
// # Ordering
//
//   - All ordering uses seq INTEGER (logical clock), NEVER timestamps
//   - All event queries include ORDER BY seq ASC
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
