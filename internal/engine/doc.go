// Package engine implements runtime program substitution and hot reload.
//
// The Engine is the per-device context object. It sits between the host's
// program-creation call and the device:
//
// Creation Flow:
// 1. CreateProgram hashes the original bytecode into a fingerprint
// 2. Resolver looks for a replacement keyed by {fingerprint}-{kind}
// 3. The original and the replacement are both created on the device
// 4. The registry records the pair under the handle the host receives
// 5. While hunting, the fingerprint is admitted into the selection tracker
//
// Bind swaps the replacement in on the drawing path.
//
// Frame Flow:
// Tick runs once per frame on the host's submission thread. It turns input
// events into triggers, moves hunting cursors, promotes marked programs,
// reloads edited overrides and applies idle clearing.
//
// CRITICAL PATTERNS:
//
// Degrade, never fail: a broken artifact, toolchain failure or device
// rejection of a replacement is logged and the original is used. Only the
// device's failure to create the original itself reaches the host.
//
// Locks: only the registry map and each selection set are locked, and
// never across file I/O or toolchain calls.
//
// Logical Clock: journal events are stamped with Clock.Next(), not wall
// time, since intercepts on different threads can tie.
package engine
