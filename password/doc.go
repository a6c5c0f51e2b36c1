// Package password implements salted scrypt password hashing and
// constant-time verification.
//
// # Output format
//
// Hashes are stored as two hex fields joined by a dot:
//
//	<hex(salt)>.<hex(derivedKey)>
//
// Cost parameters are process-wide configuration, not part of the stored
// value, so every record produced by one configuration has the same length.
// [Scrypt.NeedsRehash] reports records whose key length no longer matches.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other authcore package.
//   - Log plaintext passwords.
package password
