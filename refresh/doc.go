// Package refresh defines the opaque refresh token format and the record
// model shared by refresh token stores.
//
// # Token format
//
//	base64url( ksuid(20 bytes) || secret(32 bytes) )
//
// The ksuid identifies the refresh session and stays stable across
// rotations; the secret is replaced on every rotation. Stores keep only
// sha256(secret).
//
// # What this package must NOT do
//
//   - Perform I/O.
//   - Import authcore, jwt, or any store package.
package refresh
