package authcore

import (
	"context"

	"go.uber.org/zap"
)

// canTransition is the account status transition table. Deleted is
// terminal and Blocked is left only by deletion.
func canTransition(from, to AccountStatus) bool {
	switch from {
	case StatusActive:
		return to == StatusInactive || to == StatusBlocked || to == StatusDeleted
	case StatusInactive:
		return to == StatusActive || to == StatusBlocked || to == StatusDeleted
	case StatusBlocked:
		return to == StatusDeleted
	default:
		return false
	}
}

// gate admits only active accounts to a session.
func gate(u *User) error {
	switch u.Status {
	case StatusActive:
		return nil
	case StatusInactive:
		return &AccountInactiveError{Remedy: RemedyReactivate}
	default:
		return &AccountInactiveError{Remedy: RemedyContactSupport}
	}
}

// loginGate is the gate as seen by an interactive login: a deactivated
// account passes when it may reactivate by logging in.
func (e *Engine) loginGate(u *User) error {
	if u.Status == StatusInactive && e.config.Account.ReactivateOnLogin {
		return nil
	}
	return gate(u)
}

// admit reactivates u if the login policy allows it and returns the user a
// session may be issued for.
func (e *Engine) admit(ctx context.Context, u *User) (*User, error) {
	if err := e.loginGate(u); err != nil {
		return nil, err
	}
	if u.Status != StatusInactive {
		return u, nil
	}

	active := StatusActive
	if err := e.users.UpdateFields(ctx, u.ID, UserPatch{Status: &active}); err != nil {
		return nil, storeError(err)
	}
	e.metricInc(MetricAccountReactivated)
	e.emitAudit(ctx, auditEventAccountStatusChange, true, u.ID, "", nil, func() map[string]string {
		return map[string]string{"from": StatusInactive.String(), "to": StatusActive.String(), "via": "login"}
	})

	reactivated := *u
	reactivated.Status = StatusActive
	return &reactivated, nil
}

// Deactivate moves an active account to Inactive and ends its sessions.
func (e *Engine) Deactivate(ctx context.Context, userID string) error {
	return e.transition(ctx, userID, StatusInactive, true)
}

// Reactivate moves an inactive account back to Active.
func (e *Engine) Reactivate(ctx context.Context, userID string) error {
	return e.transition(ctx, userID, StatusActive, false)
}

// Ban blocks the account. Every refresh session is revoked and the token
// version is bumped, so outstanding access tokens stop verifying at once.
func (e *Engine) Ban(ctx context.Context, userID string) error {
	return e.transition(ctx, userID, StatusBlocked, true)
}

// Delete marks the account deleted. No transition leaves Deleted.
func (e *Engine) Delete(ctx context.Context, userID string) error {
	return e.transition(ctx, userID, StatusDeleted, true)
}

func (e *Engine) transition(ctx context.Context, userID string, to AccountStatus, revoke bool) (err error) {
	if err := e.ready(); err != nil {
		return err
	}

	u, err := e.findUser(ctx, userID)
	if err != nil {
		return err
	}
	from := u.Status
	defer func() {
		e.emitAudit(ctx, auditEventAccountStatusChange, err == nil, userID, "", err, func() map[string]string {
			return map[string]string{"from": from.String(), "to": to.String()}
		})
	}()

	if from == to {
		return nil
	}
	if !canTransition(from, to) {
		return ErrInvalidTransition
	}

	if err := e.users.UpdateFields(ctx, userID, UserPatch{Status: &to}); err != nil {
		return storeError(err)
	}
	e.metricInc(MetricAccountStatusChange)

	if revoke {
		if err := e.revokeEverything(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

// revokeEverything bumps the token version and drops every refresh session.
// The version bump goes first: it alone is enough to stop access tokens,
// and a session saved concurrently with RevokeAllForUser still fails the
// account gate on refresh.
func (e *Engine) revokeEverything(ctx context.Context, userID string) error {
	if _, err := e.users.IncrementTokenVersion(ctx, userID); err != nil {
		return storeError(err)
	}
	n, err := e.sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		e.logger.Error("revoke sessions failed", zap.String("user_id", userID), zap.Error(err))
		return backendError(err)
	}
	e.logger.Debug("sessions revoked", zap.String("user_id", userID), zap.Int("count", n))
	return nil
}
