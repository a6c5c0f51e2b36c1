// Package jwt creates and verifies the signed, stateless access tokens handed
// to clients after authentication.
//
// Tokens carry the subject id, email, a tokenVersion snapshot and the refresh
// session id. This package checks signature, algorithm, kid, issuer,
// audience and expiry only; comparing the tokenVersion snapshot against the
// live user record is the caller's job.
package jwt
