// Package stores holds the short-lived Redis records behind two-factor
// authentication:
//
//   - enrollment: a pending TOTP secret and its failed-attempt count
//   - codes: the single outstanding challenge code per user and its resend
//     cooldown
//   - login tickets: a password-verified login waiting for its second factor
//
// Attempt counters are updated with WATCH/MULTI and retried on contention.
// Single-use reads use GETDEL so two concurrent verifications can never both
// observe the same record.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package.
//   - Store plaintext challenge codes.
package stores
