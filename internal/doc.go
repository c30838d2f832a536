// Package internal contains helpers that are intentionally private to goSession.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - flows: pure-function orchestrators for rehydration, refresh and switches
//
// # What this package must NOT do
//
//   - Export types that appear in the public goSession API.
//   - Be imported by any package outside the goSession module.
package internal
