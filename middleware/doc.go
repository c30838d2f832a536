// Package middleware exposes net/http route guards built on a
// goSession.Manager.
//
// # Guards
//
//   - [RequireSession]: an authenticated session is present.
//   - [RequireModule]: the user's role may open a module.
//   - [RequirePermission]: the user's role holds a permission key.
//   - [RequireAdmin]: the user is an administrator.
//
// Unauthenticated requests get 401; authenticated but denied requests get
// 403. Guards never refresh tokens or log out; they only read a snapshot.
package middleware
