// Package session is the Redis-backed refresh token store.
//
// Each refresh session is one key holding a compact binary record (secret
// hash, issue and expiry timestamps, owner). A per-user set indexes session
// ids for revoke-all. Rotation runs as a single Lua script so two concurrent
// redemptions of one token can never both succeed.
//
// # What this package must NOT do
//
//   - Import authcore or jwt (no upward imports).
//   - Store plaintext refresh secrets.
package session
