// Package federated verifies identity tokens issued by an external OpenID
// Connect provider.
//
// OIDCVerifier checks the RS256 signature of an ID token against the
// provider's JWKS document, then its issuer, audience and expiry. Keys are
// cached and refetched when a token names an unknown kid. Fetches are
// deduplicated across goroutines and retried with exponential backoff on
// network errors and 5xx responses.
package federated
