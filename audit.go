package authcore

import (
	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is one audited authentication operation. Events never carry
// passwords, codes or tokens.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = internalaudit.Sink

type NoOpSink = internalaudit.NoOpSink

type ChannelSink = internalaudit.ChannelSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewZapAuditSink writes audit events as structured log entries.
func NewZapAuditSink(logger *zap.Logger) AuditSink {
	return internalaudit.NewZapSink(logger)
}
