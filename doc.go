// Package authcore is an authentication and session trust engine: password
// and federated login, signed access tokens, rotating refresh sessions,
// account status gating and two-factor challenges.
//
// An [Engine] is assembled once through [Builder] and is safe for concurrent
// use. Persistent user records are reached through a [CredentialStore] the
// host provides; refresh sessions live in a [RefreshTokenStore], by default
// the Redis store from package session. Ephemeral two-factor state and rate
// limit counters are kept in Redis so that any number of processes can serve
// the same user.
//
// # Revocation
//
// Every user carries a monotonic token version that is copied into each
// access token. [Engine.Verify] compares it with the live value, so bumping
// it (password change, ban, deactivation) kills every outstanding access
// token at once without a denylist. Refresh sessions are revoked explicitly.
//
// # Errors
//
// Operations return the sentinels declared in errors.go, possibly wrapped.
// Match them with errors.Is. Account gate denials are *AccountInactiveError
// values that also match [ErrAccountInactive].
package authcore
