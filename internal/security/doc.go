// Package security summarizes the protections a configuration turns on, so
// operators can log or assert the posture at startup.
package security
