// Package jwt reads claims out of access tokens without verifying them.
//
// The session manager treats the access token as an opaque bearer string.
// When the login or refresh payload omits an explicit expiry, the "exp"
// claim is the only hint available; this package extracts it.
//
// # What this package must NOT do
//
//   - Treat a parsed token as authentic. Signatures are never checked here;
//     the API that issued the token is the only verifier.
//   - Import goSession or store.
package jwt
