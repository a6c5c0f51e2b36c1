// Package middleware adapts Engine.Verify to net/http.
//
// Guard reads a bearer token from the Authorization header, verifies it and
// stores the resulting claims in the request context. Every decision is the
// Engine's; this package only translates errors into status codes.
package middleware
