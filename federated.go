package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/federated"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LoginFederated signs in with an external identity token. A new identity
// gets a federated-only account with no password. An identity whose email
// belongs to an existing account is linked only under
// Federated.LinkVerifiedEmail and otherwise reported as
// ErrFederatedAccountConflict. Two-factor applies as in Login.
func (e *Engine) LoginFederated(ctx context.Context, idToken string) (_ *LoginResult, err error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.verifier == nil {
		return nil, ErrEngineNotReady
	}
	ctx, end := e.startSpan(ctx, "LoginFederated")
	defer end(&err)

	ident, err := e.verifier.Verify(ctx, idToken)
	if err != nil {
		e.metricInc(MetricFederatedLoginFailure)
		if errors.Is(err, federated.ErrKeysUnavailable) {
			e.logger.Warn("identity provider keys unavailable", zap.Error(err))
			return nil, backendError(err)
		}
		e.emitAudit(ctx, auditEventFederatedLogin, false, "", "", ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	u, err := e.resolveFederated(ctx, ident)
	if err != nil {
		e.metricInc(MetricFederatedLoginFailure)
		return nil, err
	}
	if err := e.loginGate(u); err != nil {
		e.metricInc(MetricFederatedLoginFailure)
		e.emitAudit(ctx, auditEventFederatedLogin, false, u.ID, "", err, nil)
		return nil, err
	}
	return e.finishLogin(ctx, u, auditEventFederatedLogin, MetricFederatedLoginSuccess)
}

// resolveFederated maps a verified identity to a local user, creating one
// when the identity is new.
func (e *Engine) resolveFederated(ctx context.Context, ident *FederatedIdentity) (*User, error) {
	fid := ident.FederatedID()
	u, err := e.users.FindByFederatedID(ctx, fid)
	if err != nil {
		return nil, storeError(err)
	}
	if u != nil {
		return u, nil
	}

	email := NormalizeEmail(ident.Email)
	if !plausibleEmail(email) {
		return nil, ErrInvalidCredentials
	}
	existing, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, storeError(err)
	}
	if existing != nil {
		return e.linkFederated(ctx, existing, ident)
	}

	now := e.now()
	u = &User{
		ID:          uuid.NewString(),
		Email:       email,
		Status:      StatusActive,
		Role:        e.config.Account.DefaultRole,
		FederatedID: fid,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = e.users.Create(ctx, u)
	switch {
	case err == nil:
		e.metricInc(MetricRegisterSuccess)
		e.emitAudit(ctx, auditEventRegister, true, u.ID, "", nil, func() map[string]string {
			return map[string]string{"issuer": ident.Issuer}
		})
		return u, nil
	case errors.Is(err, ErrFederatedIdentityExists):
		// lost a race with a concurrent first login of the same identity
		winner, ferr := e.users.FindByFederatedID(ctx, fid)
		if ferr != nil {
			return nil, storeError(ferr)
		}
		if winner == nil {
			return nil, backendError(err)
		}
		return winner, nil
	case errors.Is(err, ErrEmailInUse):
		return nil, e.federatedConflict(ctx, "", ident)
	default:
		return nil, storeError(err)
	}
}

// linkFederated attaches ident to an account that already owns its email.
// It never happens implicitly: the policy has to allow it and the provider
// has to vouch for the email.
func (e *Engine) linkFederated(ctx context.Context, u *User, ident *FederatedIdentity) (*User, error) {
	if !e.config.Federated.LinkVerifiedEmail || !ident.EmailVerified || u.FederatedID != "" {
		return nil, e.federatedConflict(ctx, u.ID, ident)
	}

	fid := ident.FederatedID()
	if err := e.users.UpdateFields(ctx, u.ID, UserPatch{FederatedID: &fid}); err != nil {
		if errors.Is(err, ErrFederatedIdentityExists) {
			return nil, e.federatedConflict(ctx, u.ID, ident)
		}
		return nil, storeError(err)
	}

	e.metricInc(MetricFederatedLinked)
	e.logger.Info("federated identity linked", zap.String("user_id", u.ID), zap.String("issuer", ident.Issuer))
	e.emitAudit(ctx, auditEventFederatedLinked, true, u.ID, "", nil, func() map[string]string {
		return map[string]string{"issuer": ident.Issuer}
	})

	linked := *u
	linked.FederatedID = fid
	return &linked, nil
}

func (e *Engine) federatedConflict(ctx context.Context, userID string, ident *FederatedIdentity) error {
	e.metricInc(MetricFederatedConflict)
	e.logger.Warn("federated identity conflicts with existing account",
		zap.String("user_id", userID), zap.String("issuer", ident.Issuer))
	e.emitAudit(ctx, auditEventFederatedConflict, false, userID, "", ErrFederatedAccountConflict, func() map[string]string {
		return map[string]string{"issuer": ident.Issuer}
	})
	return ErrFederatedAccountConflict
}
