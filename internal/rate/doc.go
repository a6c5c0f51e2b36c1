// Package rate implements Redis fixed-window attempt counters for login and
// password-reset requests.
//
// # Window semantics
//
// INCR + EXPIRE on the first hit of a window. Key prefixes:
//   - al:  login failures per identifier
//   - ali: login failures per client IP
//   - apr: password-reset requests per identifier
package rate
