// Package audit delivers security audit events to a Sink without blocking
// authentication paths.
//
//   - [Event]: one audited operation.
//   - [Sink]: consumer (channel, zap logger, no-op, or caller supplied).
//   - [Dispatcher]: single-goroutine relay that either waits or drops when its queue is full.
//
// Deciding which events to emit is the engine's job.
package audit
