// Package goSession manages the client-side session of a multi-branch
// institutional ERP: the authenticated user, the bearer token lifecycle, the
// selected branch and academic year, and the role-derived permission
// predicates that route guards and UI controls depend on.
//
// State is split across two persistence scopes. The profile scope is
// durable and device-scoped and holds the user, branches, current branch
// and academic years. The session scope is ephemeral and holds only the
// access token, its expiry and the refresh token. A [Manager] is built with
// [Builder.Build], which rehydrates the state from both scopes before the
// Manager is returned.
//
// # Concurrency
//
// Manager methods are safe for concurrent use. Synchronous mutations run
// under one mutex and are atomic to observers; the mutex is never held
// while calling a BranchConfirmer, TokenRefresher or SessionInvalidator.
// Branch switches, academic year switches and token refreshes share one
// transition slot: while one is in flight the others are rejected, never
// queued. Login and logout advance a generation counter, and completions
// that started under an older generation are discarded.
//
// # What callers must NOT do
//
//   - Write to either store except through the Manager. This is a
//     convention; the types do not prevent it.
//   - Expect changes made by another process sharing the profile scope to
//     appear in a running Manager. Cross-instance synchronisation is not
//     implemented.
//   - Treat the access token as verified. Its exp claim is read only to
//     date a token whose expiry was not supplied.
package goSession
