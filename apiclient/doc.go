// Package apiclient implements the goSession collaborators against the ERP
// REST API:
//
//	POST /auth/login          credentials -> login payload
//	POST /auth/switch-branch  {"branch_id": n}
//	POST /auth/refresh        {"refreshToken": "..."} -> token pair
//	POST /auth/logout         bearer token
//	GET  /auth/me             bearer token -> user and branches
//
// Non-2xx responses are returned as *Error. A 401 from /auth/refresh wraps
// goSession.ErrRefreshTokenInvalid; every other refresh failure is transient.
package apiclient
