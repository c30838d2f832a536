// Package permission compiles the static role and module capability tables
// into bitmask lookups and answers the predicates used to gate screens and
// controls.
//
// # Tables
//
// Two generations of tables exist. The general tables are consulted first;
// a legacy table is consulted only when the general table has no entry for
// the module (or role) in question. Callers never choose a generation.
//
// The wildcard "*" grants every module or every permission.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O. Roles are
// matched case-insensitively after trimming; permission and module keys are
// matched exactly.
//
// # What this package must NOT do
//
//   - Access storage or the network.
//   - Import goSession or store.
//   - Mutate compiled tables after [Compile] returns.
package permission
