// Package flows holds the multi-step orchestrations behind the Engine's
// session operations.
//
// Each Run function takes a dependency struct and returns a classified result
// so the root package maps failures onto its own sentinel errors. Flows never
// import the root package and own no resources.
package flows
