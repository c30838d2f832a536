// Package store provides the two persistence scopes behind a goSession
// manager and the versioned JSON envelope used for the durable profile.
//
// # Scopes
//
// [ScopeProfile] survives process and browser restarts and is scoped to the
// device. [ScopeSession] is scoped to a single session and is expected to be
// discarded with it. Bearer tokens belong in [ScopeSession] only.
//
// # Envelope
//
// The profile is persisted as {"state": {...}, "version": N}. Older envelopes
// are migrated forward on read, one version at a time. Migrations never
// reinterpret a field in place; they rename, drop, or derive.
//
// # Architecture boundaries
//
// This package owns read/write/delete primitives and the envelope schema. It
// does NOT decide which keys go to which scope, interpret tokens, or resolve
// inconsistent state. Both belong to the Manager.
//
// # What this package must NOT do
//
//   - Import goSession, jwt, or permission (no upward imports).
//   - Swallow backend errors; callers decide whether an error means "absent".
//   - Write to a scope on behalf of anyone other than the Manager.
package store
