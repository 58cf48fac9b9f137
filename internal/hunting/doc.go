// Package hunting tracks the objects the host has used recently so an
// operator can step through them one at a time.
//
// Each Resource kind has its own Set: a sorted collection of observed ids
// plus a cursor. Navigation wraps at both ends. When the operator stops
// touching the controls the Tracker clears every set, and until the first
// input ever arrives it keeps them empty.
//
// Dispatcher converts raw key events into triggers, applying per-action
// repeat rates and delayed releases.
package hunting
