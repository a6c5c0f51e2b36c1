package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/refresh"
	"go.uber.org/zap"
)

// issueSession mints an access token and a new refresh session for u. Only
// active accounts get one.
func (e *Engine) issueSession(ctx context.Context, u *User) (*Session, error) {
	if err := gate(u); err != nil {
		return nil, err
	}

	secret, err := refresh.NewSecret()
	if err != nil {
		return nil, err
	}
	now := e.now()
	rec := &refresh.Record{
		ID:         refresh.NewID(),
		UserID:     u.ID,
		SecretHash: secret.Hash(),
		IssuedAt:   now,
		ExpiresAt:  now.Add(e.config.Refresh.TTL),
	}

	access, accessExp, err := e.jwt.CreateAccess(jwt.Subject{
		UserID:       u.ID,
		Email:        u.Email,
		TokenVersion: u.TokenVersion,
		SessionID:    rec.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	token, err := refresh.Encode(rec.ID, secret)
	if err != nil {
		return nil, err
	}

	if err := e.sessions.Save(ctx, rec); err != nil {
		e.logger.Error("save refresh session failed", zap.String("user_id", u.ID), zap.Error(err))
		return nil, backendError(err)
	}
	e.metricInc(MetricSessionCreated)

	return &Session{
		UserID:           u.ID,
		SessionID:        rec.ID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     token,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

// Refresh redeems a refresh token for a new token pair. The session keeps
// its id while its secret is rotated, so the presented token can never be
// redeemed again. Of two concurrent calls with the same token exactly one
// succeeds; the other gets ErrTokenRevoked.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (_ *Session, err error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ctx, end := e.startSpan(ctx, "Refresh")
	defer end(&err)

	result := flows.RunRefresh(ctx, refreshToken, flows.RefreshDeps{
		Now:           e.now,
		SessionTTL:    e.config.Refresh.TTL,
		Store:         e.sessions,
		LoadSubject:   e.refreshSubject,
		IssueAccess:   e.jwt.CreateAccess,
		RevokeOnReuse: e.config.Refresh.RevokeOnReuse,
		Warn: func(msg string, kv ...any) {
			e.logger.Sugar().Warnw(msg, kv...)
		},
	})

	if result.Failure != flows.RefreshFailureNone {
		err = e.mapRefreshFailure(ctx, result)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, result.UserID, result.SessionID, err, nil)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, result.UserID, result.SessionID, nil, nil)
	return &Session{
		UserID:           result.UserID,
		SessionID:        result.SessionID,
		AccessToken:      result.AccessToken,
		AccessExpiresAt:  result.AccessExpiresAt,
		RefreshToken:     result.RefreshToken,
		RefreshExpiresAt: result.Record.ExpiresAt,
	}, nil
}

func (e *Engine) refreshSubject(ctx context.Context, userID string) (jwt.Subject, error) {
	u, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return jwt.Subject{}, storeError(err)
	}
	if u == nil {
		return jwt.Subject{}, ErrUserNotFound
	}
	if err := gate(u); err != nil {
		return jwt.Subject{}, err
	}
	return jwt.Subject{UserID: u.ID, Email: u.Email, TokenVersion: u.TokenVersion}, nil
}

func (e *Engine) mapRefreshFailure(ctx context.Context, r flows.RefreshResult) error {
	switch r.Failure {
	case flows.RefreshFailureDecode, flows.RefreshFailureNotFound:
		return ErrTokenRevoked
	case flows.RefreshFailureExpired:
		return ErrTokenExpired
	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshReuseDetected)
		e.logger.Warn("refresh token reuse detected", zap.String("session_id", r.SessionID))
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, "", r.SessionID, ErrTokenRevoked, nil)
		return ErrTokenRevoked
	case flows.RefreshFailureAccount:
		if errors.Is(r.Err, ErrBackendUnavailable) {
			return r.Err
		}
		// the owner is gone or gated; the session has been revoked
		return fmt.Errorf("%w: %w", ErrTokenRevoked, r.Err)
	case flows.RefreshFailureStore:
		e.logger.Error("refresh rotation failed", zap.String("session_id", r.SessionID), zap.Error(r.Err))
		return backendError(r.Err)
	default:
		e.logger.Error("refresh failed", zap.String("session_id", r.SessionID), zap.Error(r.Err))
		return r.Err
	}
}

// Logout revokes the session behind refreshToken. Unknown or already
// revoked tokens are not an error.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if err := e.ready(); err != nil {
		return err
	}
	id, _, err := refresh.Decode(refreshToken)
	if err != nil {
		return nil
	}
	if err := e.sessions.Revoke(ctx, id); err != nil {
		return backendError(err)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, "", id, nil, nil)
	return nil
}

// RevokeAll ends every session of userID: refresh sessions are deleted and
// the token version is bumped so access tokens stop verifying too.
func (e *Engine) RevokeAll(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.findUser(ctx, userID); err != nil {
		return err
	}
	if err := e.revokeEverything(ctx, userID); err != nil {
		return err
	}
	e.metricInc(MetricRevokeAll)
	e.emitAudit(ctx, auditEventRevokeAll, true, userID, "", nil, nil)
	return nil
}

// ActiveSessions lists the live refresh session ids of userID. It returns
// errors.ErrUnsupported when the refresh store cannot enumerate sessions.
func (e *Engine) ActiveSessions(ctx context.Context, userID string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	lister, ok := e.sessions.(SessionLister)
	if !ok {
		return nil, errors.ErrUnsupported
	}
	if _, err := e.findUser(ctx, userID); err != nil {
		return nil, err
	}
	ids, err := lister.ActiveSessionIDs(ctx, userID, e.now())
	if err != nil {
		return nil, backendError(err)
	}
	return ids, nil
}

// Verify checks an access token's signature and expiry and then compares
// its token version with the owner's live value. ErrTokenVersionMismatch
// must be treated like any other invalid token.
func (e *Engine) Verify(ctx context.Context, accessToken string) (*Claims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricVerifyLatency, time.Since(start)) }()
	}

	result := flows.RunVerify(ctx, accessToken, flows.VerifyDeps{
		ParseAccess:         e.jwt.ParseAccess,
		CurrentTokenVersion: e.currentTokenVersion,
	})

	switch result.Failure {
	case flows.VerifyFailureNone:
	case flows.VerifyFailureParse:
		e.metricInc(MetricVerifyFailure)
		if errors.Is(result.Err, jwt.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	case flows.VerifyFailureLookup:
		return nil, storeError(result.Err)
	case flows.VerifyFailureUnknownUser:
		e.metricInc(MetricVerifyFailure)
		return nil, ErrTokenInvalid
	case flows.VerifyFailureVersion:
		e.metricInc(MetricVerifyFailure)
		e.metricInc(MetricTokenVersionMismatch)
		return nil, ErrTokenVersionMismatch
	}

	c := result.Claims
	claims := &Claims{
		UserID:       c.Subject,
		Email:        c.Email,
		SessionID:    c.SessionID,
		TokenVersion: c.TokenVersion,
	}
	if c.IssuedAt != nil {
		claims.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		claims.ExpiresAt = c.ExpiresAt.Time
	}
	return claims, nil
}

func (e *Engine) currentTokenVersion(ctx context.Context, userID string) (uint64, bool, error) {
	u, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	if u == nil {
		return 0, false, nil
	}
	return u.TokenVersion, true, nil
}
