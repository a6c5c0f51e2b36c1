package authcore

import (
	"context"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Engine runs every authentication flow. Build one with New().Build().
type Engine struct {
	config   Config
	users    CredentialStore
	sessions RefreshTokenStore
	hasher   *password.Scrypt
	jwt      *jwt.Manager
	notifier Notifier
	verifier FederatedIdentityVerifier

	enrollments *stores.EnrollmentStore
	codes       *stores.CodeStore
	tickets     *stores.LoginTicketStore
	limiter     *rate.Limiter

	audit   *internalaudit.Dispatcher
	metrics *Metrics
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time

	dummyHash string
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.users == nil || e.sessions == nil || e.hasher == nil || e.jwt == nil {
		return ErrEngineNotReady
	}
	return nil
}

// startSpan opens a span named after op. The returned func records *errp
// on the span and ends it.
func (e *Engine) startSpan(ctx context.Context, op string) (context.Context, func(*error)) {
	ctx, span := e.tracer.Start(ctx, "authcore."+op)
	return ctx, func(errp *error) {
		if errp != nil && *errp != nil {
			span.RecordError(*errp)
			span.SetStatus(codes.Error, auditErrorCode(*errp).String())
		}
		span.End()
	}
}

func (c AuditErrorCode) String() string {
	return string(c)
}

// findUser loads id, turning absence into ErrUserNotFound.
func (e *Engine) findUser(ctx context.Context, id string) (*User, error) {
	u, err := e.users.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// activeUser loads id and applies the account gate.
func (e *Engine) activeUser(ctx context.Context, id string) (*User, error) {
	u, err := e.findUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := gate(u); err != nil {
		return nil, err
	}
	return u, nil
}

func (e *Engine) checkPasswordPolicy(pw string) error {
	if len(pw) < e.config.Password.MinLength || len(pw) > e.config.Password.MaxLength {
		return ErrPasswordPolicy
	}
	return nil
}

func (e *Engine) notify(ctx context.Context, n Notification) error {
	if e.notifier == nil {
		e.logger.Error("no notifier configured", zap.Stringer("kind", n.Kind), zap.String("user_id", n.UserID))
		return ErrEngineNotReady
	}
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.logger.Warn("notification failed", zap.Stringer("kind", n.Kind), zap.String("user_id", n.UserID), zap.Error(err))
		return backendError(err)
	}
	return nil
}
