package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Register creates a password account for email and signs it in.
func (e *Engine) Register(ctx context.Context, email, password string) (_ *Session, err error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ctx, end := e.startSpan(ctx, "Register")
	defer end(&err)

	email = NormalizeEmail(email)
	if !plausibleEmail(email) {
		return nil, ErrInvalidCredentials
	}
	if err := e.checkPasswordPolicy(password); err != nil {
		return nil, err
	}

	existing, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, storeError(err)
	}
	if existing != nil {
		e.metricInc(MetricRegisterDuplicate)
		return nil, ErrEmailInUse
	}

	hash, err := e.hasher.Hash(ctx, password)
	if err != nil {
		return nil, err
	}
	now := e.now()
	u := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Status:       StatusActive,
		Role:         e.config.Account.DefaultRole,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.users.Create(ctx, u); err != nil {
		// a concurrent registration for the same email lands here
		if errors.Is(err, ErrEmailInUse) {
			e.metricInc(MetricRegisterDuplicate)
		}
		return nil, storeError(err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegister, true, u.ID, "", nil, nil)
	return e.issueSession(ctx, u)
}

// Login checks email and password. When the account has two-factor
// enabled no session is issued: the result carries a challenge id, a code
// is sent through the Notifier, and CompleteLogin finishes the sign-in.
func (e *Engine) Login(ctx context.Context, email, password string) (_ *LoginResult, err error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ctx, end := e.startSpan(ctx, "Login")
	defer end(&err)

	email = NormalizeEmail(email)
	ip := clientIPFromContext(ctx)

	if err := e.limiter.CheckLogin(ctx, email, ip); err != nil {
		err = limiterError(err)
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", err, nil)
		}
		return nil, err
	}

	u, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, storeError(err)
	}
	if u == nil {
		// keep the unknown-email path as slow as a wrong password
		e.hasher.Verify(ctx, password, e.dummyHash)
		return nil, e.loginFailed(ctx, email, ip, "", ErrInvalidCredentials)
	}
	if !u.HasPassword() {
		e.metricInc(MetricLoginNoPassword)
		e.emitAudit(ctx, auditEventLoginFailure, false, u.ID, "", ErrNoPasswordCredential, nil)
		return nil, ErrNoPasswordCredential
	}
	if !e.hasher.Verify(ctx, password, u.PasswordHash) {
		return nil, e.loginFailed(ctx, email, ip, u.ID, ErrInvalidCredentials)
	}

	if err := e.limiter.ResetLogin(ctx, email); err != nil {
		e.logger.Warn("reset login counter failed", zap.String("user_id", u.ID), zap.Error(err))
	}
	if err := e.loginGate(u); err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, u.ID, "", err, nil)
		return nil, err
	}
	e.upgradeHash(ctx, u, password)

	return e.finishLogin(ctx, u, auditEventLoginSuccess, MetricLoginSuccess)
}

func (e *Engine) loginFailed(ctx context.Context, email, ip, userID string, cause error) error {
	if err := e.limiter.RecordLoginFailure(ctx, email, ip); err != nil {
		e.logger.Warn("record login failure failed", zap.Error(err))
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", cause, nil)
	return cause
}

// upgradeHash re-hashes a correct password whose stored form no longer
// matches the configured parameters. Failure only costs the upgrade.
func (e *Engine) upgradeHash(ctx context.Context, u *User, password string) {
	if !e.config.Password.UpgradeOnLogin || !e.hasher.NeedsRehash(u.PasswordHash) {
		return
	}
	hash, err := e.hasher.Hash(ctx, password)
	if err != nil {
		return
	}
	if err := e.users.UpdateFields(ctx, u.ID, UserPatch{PasswordHash: &hash}); err != nil {
		e.logger.Warn("password hash upgrade failed", zap.String("user_id", u.ID), zap.Error(err))
	}
}

// finishLogin runs after the primary credential was accepted: it either
// opens a two-factor challenge or admits the user and issues a session.
func (e *Engine) finishLogin(ctx context.Context, u *User, event string, success MetricID) (*LoginResult, error) {
	if u.TwoFactorEnabled {
		return e.openLoginChallenge(ctx, u)
	}

	admitted, err := e.admit(ctx, u)
	if err != nil {
		return nil, err
	}
	sess, err := e.issueSession(ctx, admitted)
	if err != nil {
		return nil, err
	}
	e.metricInc(success)
	e.emitAudit(ctx, event, true, admitted.ID, sess.SessionID, nil, nil)
	return &LoginResult{Session: sess}, nil
}

func (e *Engine) openLoginChallenge(ctx context.Context, u *User) (*LoginResult, error) {
	challengeID, err := internal.NewChallengeID()
	if err != nil {
		return nil, err
	}
	ticketExpires := e.now().Add(e.config.TwoFactor.LoginTicketTTL)
	err = e.tickets.Save(ctx, challengeID, &stores.LoginTicket{
		UserID:    u.ID,
		ExpiresAt: ticketExpires.Unix(),
	}, e.config.TwoFactor.LoginTicketTTL)
	if err != nil {
		return nil, twoFactorStoreError(err)
	}

	if _, err := e.issueChallenge(ctx, u, true); err != nil {
		_, _ = e.tickets.Delete(ctx, challengeID)
		return nil, err
	}

	e.metricInc(MetricTwoFactorRequired)
	e.emitAudit(ctx, auditEventTwoFactorRequired, true, u.ID, "", nil, nil)
	return &LoginResult{
		TwoFactorRequired:  true,
		ChallengeID:        challengeID,
		ChallengeExpiresAt: ticketExpires,
	}, nil
}

// CompleteLogin finishes a two-factor login started by Login or
// LoginFederated. A wrong code burns the outstanding code; ResendLoginCode
// gets a new one until the ticket's attempt budget is spent.
func (e *Engine) CompleteLogin(ctx context.Context, challengeID, code string) (_ *Session, err error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ctx, end := e.startSpan(ctx, "CompleteLogin")
	defer end(&err)

	u, err := e.ticketUser(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	if verr := e.verifyChallenge(ctx, u, code); verr != nil {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, u.ID, "", verr, nil)
		exceeded, ferr := e.tickets.RecordFailure(ctx, challengeID, e.config.TwoFactor.LoginMaxAttempts, e.now())
		if ferr != nil && !errors.Is(ferr, stores.ErrNotFound) && !errors.Is(ferr, stores.ErrExpired) {
			e.logger.Warn("record login ticket failure failed", zap.String("user_id", u.ID), zap.Error(ferr))
		}
		if exceeded {
			_ = e.codes.Discard(ctx, u.ID)
		}
		return nil, verr
	}

	won, err := e.tickets.Delete(ctx, challengeID)
	if err != nil {
		return nil, twoFactorStoreError(err)
	}
	if !won {
		return nil, ErrOTPInvalid
	}

	e.metricInc(MetricTwoFactorSuccess)
	e.emitAudit(ctx, auditEventTwoFactorSuccess, true, u.ID, "", nil, nil)

	admitted, err := e.admit(ctx, u)
	if err != nil {
		return nil, err
	}
	sess, err := e.issueSession(ctx, admitted)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, admitted.ID, sess.SessionID, nil, nil)
	return sess, nil
}

// ResendLoginCode sends a new code for a pending two-factor login, subject
// to the resend cooldown.
func (e *Engine) ResendLoginCode(ctx context.Context, challengeID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	u, err := e.ticketUser(ctx, challengeID)
	if err != nil {
		return err
	}
	_, err = e.resendChallenge(ctx, u)
	return err
}

// ticketUser resolves a pending login to its user and re-applies the gate
// and the two-factor precondition.
func (e *Engine) ticketUser(ctx context.Context, challengeID string) (*User, error) {
	ticket, err := e.tickets.Get(ctx, challengeID, e.now())
	switch {
	case errors.Is(err, stores.ErrNotFound), errors.Is(err, stores.ErrCorrupt):
		return nil, ErrOTPInvalid
	case errors.Is(err, stores.ErrExpired):
		return nil, ErrOTPExpired
	case err != nil:
		return nil, twoFactorStoreError(err)
	}

	u, err := e.users.FindByID(ctx, ticket.UserID)
	if err != nil {
		return nil, storeError(err)
	}
	if u == nil {
		return nil, ErrOTPInvalid
	}
	if err := e.loginGate(u); err != nil {
		return nil, err
	}
	if !u.TwoFactorEnabled {
		return nil, ErrTwoFactorNotEnabled
	}
	return u, nil
}

// ChangePassword replaces the password after re-checking the current one.
// Every outstanding session ends; the returned session is the only one
// left.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next string) (_ *Session, err error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ctx, end := e.startSpan(ctx, "ChangePassword")
	defer end(&err)

	u, err := e.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.HasPassword() {
		return nil, ErrNoPasswordCredential
	}
	if !e.hasher.Verify(ctx, current, u.PasswordHash) {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChange, false, u.ID, "", ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}
	if err := e.checkPasswordPolicy(next); err != nil {
		return nil, err
	}

	hash, err := e.hasher.Hash(ctx, next)
	if err != nil {
		return nil, err
	}
	if err := e.users.UpdateFields(ctx, u.ID, UserPatch{PasswordHash: &hash}); err != nil {
		return nil, storeError(err)
	}
	if err := e.revokeEverything(ctx, u.ID); err != nil {
		return nil, err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChange, true, u.ID, "", nil, nil)

	fresh, err := e.findUser(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return e.issueSession(ctx, fresh)
}

func limiterError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrRateLimited
	default:
		return backendError(err)
	}
}
