// Package audit delivers session transition events to pluggable sinks.
//
// # Components
//
//   - [Sink]: consumer interface (channel, JSON lines, zerolog, no-op).
//   - [Dispatcher]: buffered async relay that either drops or blocks when full.
//   - [Event]: one login, logout, switch, refresh or rehydration record.
//
// The package does not decide which events to emit; the session manager does.
// It must not import goSession or any sibling internal package.
package audit
