package authcore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/stores"
	"go.uber.org/zap"
)

// SetupTwoFactor starts enrollment: a fresh secret is held pending until
// ConfirmTwoFactor accepts a code generated from it. Calling it again
// replaces the pending secret. An already enabled secret stays in force
// until the new one is confirmed.
func (e *Engine) SetupTwoFactor(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	u, err := e.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	secret, err := internal.NewTOTPSecret()
	if err != nil {
		return nil, err
	}
	expires := e.now().Add(e.config.TwoFactor.EnrollmentTTL)
	err = e.enrollments.Save(ctx, u.ID, &stores.Enrollment{
		Secret:    secret,
		ExpiresAt: expires.Unix(),
	}, e.config.TwoFactor.EnrollmentTTL)
	if err != nil {
		return nil, twoFactorStoreError(err)
	}

	e.emitAudit(ctx, auditEventTwoFactorSetup, true, u.ID, "", nil, nil)
	return &TwoFactorSetup{
		Secret:          secret,
		ProvisioningURI: e.provisioningURI(secret, u.Email),
		ExpiresAt:       expires,
	}, nil
}

// ConfirmTwoFactor completes enrollment. A wrong code keeps the pending
// secret until the attempt budget is spent, after which setup has to be
// started again.
func (e *Engine) ConfirmTwoFactor(ctx context.Context, userID, code string) (err error) {
	if err := e.ready(); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			e.metricInc(MetricTwoFactorFailure)
		}
	}()

	u, err := e.activeUser(ctx, userID)
	if err != nil {
		return err
	}
	pending, err := e.enrollments.Get(ctx, u.ID, e.now())
	switch {
	case errors.Is(err, stores.ErrNotFound), errors.Is(err, stores.ErrExpired), errors.Is(err, stores.ErrCorrupt):
		return ErrTwoFactorSetupRequired
	case err != nil:
		return twoFactorStoreError(err)
	}

	raw, err := decodeTOTPSecret(pending.Secret)
	if err != nil {
		return ErrTwoFactorSetupRequired
	}
	if !e.verifyTOTP(raw, code, e.now()) {
		exceeded, ferr := e.enrollments.RecordFailure(ctx, u.ID, e.config.TwoFactor.EnrollmentMaxAttempts, e.now())
		switch {
		case errors.Is(ferr, stores.ErrNotFound), errors.Is(ferr, stores.ErrExpired):
			return ErrTwoFactorSetupRequired
		case ferr != nil:
			return twoFactorStoreError(ferr)
		case exceeded:
			e.emitAudit(ctx, auditEventTwoFactorFailure, false, u.ID, "", ErrTwoFactorSetupRequired, nil)
			return ErrTwoFactorSetupRequired
		}
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, u.ID, "", ErrOTPInvalid, nil)
		return ErrOTPInvalid
	}

	won, err := e.enrollments.Complete(ctx, u.ID, pending.Secret)
	if err != nil {
		return twoFactorStoreError(err)
	}
	if !won {
		// a concurrent confirmation or a new setup got there first
		return ErrTwoFactorSetupRequired
	}

	enabled := true
	if err := e.users.UpdateFields(ctx, u.ID, UserPatch{
		TwoFactorSecret:  &pending.Secret,
		TwoFactorEnabled: &enabled,
	}); err != nil {
		return storeError(err)
	}

	e.metricInc(MetricTwoFactorEnrolled)
	e.emitAudit(ctx, auditEventTwoFactorEnabled, true, u.ID, "", nil, nil)
	return nil
}

// DisableTwoFactor turns two-factor off after re-checking the password.
// Federated-only accounts have no password to check and get
// ErrNoPasswordCredential.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID, password string) error {
	if err := e.ready(); err != nil {
		return err
	}
	u, err := e.activeUser(ctx, userID)
	if err != nil {
		return err
	}
	if !u.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}
	if !u.HasPassword() {
		return ErrNoPasswordCredential
	}
	if !e.hasher.Verify(ctx, password, u.PasswordHash) {
		return ErrInvalidCredentials
	}

	disabled, empty := false, ""
	if err := e.users.UpdateFields(ctx, u.ID, UserPatch{
		TwoFactorSecret:  &empty,
		TwoFactorEnabled: &disabled,
	}); err != nil {
		return storeError(err)
	}
	if err := e.codes.Discard(ctx, u.ID); err != nil {
		e.logger.Warn("discard outstanding code failed", zap.String("user_id", u.ID), zap.Error(err))
	}

	e.emitAudit(ctx, auditEventTwoFactorDisabled, true, u.ID, "", nil, nil)
	return nil
}

// SendTwoFactorChallenge delivers a one-time code to the user, replacing
// any outstanding one, and starts the resend cooldown.
func (e *Engine) SendTwoFactorChallenge(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	u, err := e.twoFactorUser(ctx, userID)
	if err != nil {
		return err
	}
	_, err = e.issueChallenge(ctx, u, true)
	return err
}

// ResendTwoFactorChallenge reissues the code unless the cooldown started by
// the previous send is still running, in which case it returns
// ErrOTPThrottled.
func (e *Engine) ResendTwoFactorChallenge(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	u, err := e.twoFactorUser(ctx, userID)
	if err != nil {
		return err
	}
	_, err = e.resendChallenge(ctx, u)
	return err
}

// VerifyTwoFactorChallenge consumes the outstanding code. Success and
// failure both burn it.
func (e *Engine) VerifyTwoFactorChallenge(ctx context.Context, userID, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	u, err := e.twoFactorUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := e.verifyChallenge(ctx, u, code); err != nil {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, u.ID, "", err, nil)
		return err
	}
	e.metricInc(MetricTwoFactorSuccess)
	e.emitAudit(ctx, auditEventTwoFactorSuccess, true, u.ID, "", nil, nil)
	return nil
}

func (e *Engine) twoFactorUser(ctx context.Context, userID string) (*User, error) {
	u, err := e.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := e.loginGate(u); err != nil {
		return nil, err
	}
	if !u.TwoFactorEnabled || u.TwoFactorSecret == "" {
		return nil, ErrTwoFactorNotEnabled
	}
	return u, nil
}

// issueChallenge derives a code from the user's secret and a random nonce,
// stores the nonce and hands the code to the notifier.
func (e *Engine) issueChallenge(ctx context.Context, u *User, startCooldown bool) (time.Time, error) {
	secret, err := decodeTOTPSecret(u.TwoFactorSecret)
	if err != nil {
		e.logger.Error("stored totp secret unreadable", zap.String("user_id", u.ID))
		return time.Time{}, err
	}
	nonce, err := internal.NewNonce()
	if err != nil {
		return time.Time{}, err
	}

	ttl := e.config.OTP.TTL
	expires := e.now().Add(ttl)
	if err := e.codes.Issue(ctx, u.ID, &stores.OutstandingCode{
		Nonce:     nonce,
		ExpiresAt: expires.Unix(),
	}, 2*ttl); err != nil {
		return time.Time{}, twoFactorStoreError(err)
	}
	err = e.notify(ctx, Notification{
		Kind:      NotifyTwoFactorCode,
		UserID:    u.ID,
		Email:     u.Email,
		Code:      hotpCode(secret, nonce, e.config.OTP.Digits),
		ExpiresAt: expires,
	})
	if err != nil {
		return time.Time{}, err
	}
	// the cooldown only runs once a code has actually gone out
	if startCooldown {
		if err := e.codes.StartCooldown(ctx, u.ID, e.config.OTP.ResendCooldown); err != nil {
			return time.Time{}, twoFactorStoreError(err)
		}
	}
	e.emitAudit(ctx, auditEventTwoFactorCodeSent, true, u.ID, "", nil, nil)
	return expires, nil
}

func (e *Engine) resendChallenge(ctx context.Context, u *User) (time.Time, error) {
	acquired, err := e.codes.AcquireCooldown(ctx, u.ID, e.config.OTP.ResendCooldown)
	if err != nil {
		return time.Time{}, twoFactorStoreError(err)
	}
	if !acquired {
		e.metricInc(MetricOTPThrottled)
		return time.Time{}, ErrOTPThrottled
	}
	expires, err := e.issueChallenge(ctx, u, false)
	if err != nil {
		// no code went out, so the user may ask again at once
		if relErr := e.codes.ReleaseCooldown(ctx, u.ID); relErr != nil {
			e.logger.Warn("release resend cooldown failed", zap.String("user_id", u.ID), zap.Error(relErr))
		}
		return time.Time{}, err
	}
	return expires, nil
}

func (e *Engine) verifyChallenge(ctx context.Context, u *User, code string) error {
	outstanding, err := e.codes.Take(ctx, u.ID)
	switch {
	case errors.Is(err, stores.ErrNotFound), errors.Is(err, stores.ErrCorrupt):
		return ErrOTPInvalid
	case err != nil:
		return twoFactorStoreError(err)
	}
	if e.now().Unix() > outstanding.ExpiresAt {
		return ErrOTPExpired
	}

	secret, err := decodeTOTPSecret(u.TwoFactorSecret)
	if err != nil {
		return ErrOTPInvalid
	}
	code = strings.TrimSpace(code)
	if !wellFormedCode(code, e.config.OTP.Digits) ||
		!codesEqual(hotpCode(secret, outstanding.Nonce, e.config.OTP.Digits), code) {
		return ErrOTPInvalid
	}
	return nil
}

func twoFactorStoreError(err error) error {
	if errors.Is(err, stores.ErrBackend) {
		return backendError(err)
	}
	return err
}
