// Package internal holds helpers private to authcore: random identifiers,
// reset codes and TOTP secrets.
//
// # Sub-packages
//
//   - audit: async audit event dispatch
//   - flows: refresh rotation and access verification over injected deps
//   - rate: Redis fixed-window attempt limiter
//   - security: configuration posture report
//   - stores: Redis stores for two-factor enrollment, codes and login tickets
package internal
