// Package flows contains pure-function orchestrators for Manager operations.
//
// Each flow function (RunRehydrate, RunTokenRefresh, RunSwitch) accepts a
// typed dependency struct and returns a classified result without side
// effects beyond those dependencies. The Manager owns state, locking and
// storage; flows decide what should happen.
//
// # Architecture boundaries
//
// Flow functions never touch the stores or the state container directly.
// Anything that mutates goes through a dependency callback supplied by the
// Manager, which applies it under its own lock.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goSession (to avoid import cycles).
//   - Read the wall clock; "now" is always an input.
package flows
