package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/internal"
	"go.uber.org/zap"
)

// ForgotPassword sends a reset code to the account behind email. Unknown,
// federated-only and closed accounts get no code, and the caller cannot
// tell: the result is nil either way. Only ErrRateLimited and backend
// failures are reported.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	email = NormalizeEmail(email)

	if err := e.limiter.TakePasswordReset(ctx, email); err != nil {
		return limiterError(err)
	}
	e.metricInc(MetricPasswordResetRequest)

	u, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		return storeError(err)
	}
	if u == nil || !u.HasPassword() || u.Status == StatusBlocked || u.Status == StatusDeleted {
		return nil
	}

	code, err := internal.NewResetCode()
	if err != nil {
		return err
	}
	hash := internal.HashCode(code)
	expires := e.now().Add(e.config.PasswordReset.CodeTTL)
	if err := e.users.UpdateFields(ctx, u.ID, UserPatch{
		PasswordResetCodeHash:  &hash,
		PasswordResetExpiresAt: &expires,
	}); err != nil {
		return storeError(err)
	}

	e.emitAudit(ctx, auditEventPasswordResetRequest, true, u.ID, "", nil, nil)
	return e.notify(ctx, Notification{
		Kind:      NotifyPasswordReset,
		UserID:    u.ID,
		Email:     u.Email,
		Code:      code,
		ExpiresAt: expires,
	})
}

// ResetPassword sets a new password with a code from ForgotPassword. The
// code works once. Every outstanding session ends; the user signs in
// again with the new password.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) (err error) {
	if err := e.ready(); err != nil {
		return err
	}
	defer func() {
		if err != nil && (errors.Is(err, ErrOTPInvalid) || errors.Is(err, ErrOTPExpired)) {
			e.metricInc(MetricPasswordResetFailure)
		}
	}()

	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}
	u, err := e.users.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return storeError(err)
	}
	if u == nil || u.PasswordResetCodeHash == "" {
		return ErrOTPInvalid
	}

	presented := internal.HashCode(code)
	if !codesEqual(presented, u.PasswordResetCodeHash) {
		return ErrOTPInvalid
	}
	now := e.now()
	if !now.Before(u.PasswordResetExpiresAt) {
		return ErrOTPExpired
	}
	if u.Status == StatusBlocked || u.Status == StatusDeleted {
		return gate(u)
	}

	hash, err := e.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}
	consumed, err := e.users.ConsumeResetCode(ctx, u.ID, presented, now)
	if err != nil {
		return storeError(err)
	}
	if !consumed {
		return ErrOTPInvalid
	}

	if err := e.users.UpdateFields(ctx, u.ID, UserPatch{PasswordHash: &hash}); err != nil {
		e.logger.Error("reset code consumed but password not stored", zap.String("user_id", u.ID), zap.Error(err))
		return storeError(err)
	}
	if err := e.revokeEverything(ctx, u.ID); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordReset, true, u.ID, "", nil, nil)
	return nil
}
