package authcore

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned for a wrong password, an unknown email,
	// a corrupt stored hash or a rejected federated token. Callers cannot tell
	// these apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountInactive is matched by every *AccountInactiveError.
	ErrAccountInactive      = errors.New("account inactive")
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenRevoked         = errors.New("token revoked")
	ErrTokenVersionMismatch = errors.New("token version mismatch")
	// ErrTokenInvalid covers malformed or forged access tokens.
	ErrTokenInvalid             = errors.New("invalid token")
	ErrOTPInvalid               = errors.New("invalid one-time code")
	ErrOTPExpired               = errors.New("one-time code expired")
	ErrOTPThrottled             = errors.New("one-time code resend throttled")
	ErrFederatedAccountConflict = errors.New("federated identity conflicts with an existing account")
	// ErrFederatedIdentityExists is returned by CredentialStore.Create when
	// another record already holds the federated id.
	ErrFederatedIdentityExists = errors.New("federated identity already linked")
	ErrUserNotFound            = errors.New("user not found")
	ErrEmailInUse              = errors.New("email already in use")
	// ErrNoPasswordCredential is returned when a federated-only account
	// attempts a password login.
	ErrNoPasswordCredential   = errors.New("account has no password credential")
	ErrPasswordPolicy         = errors.New("password policy violation")
	ErrTwoFactorNotEnabled    = errors.New("two-factor authentication not enabled")
	ErrTwoFactorSetupRequired = errors.New("two-factor setup required")
	ErrInvalidTransition      = errors.New("invalid account status transition")
	ErrRateLimited            = errors.New("rate limited")
	ErrBackendUnavailable     = errors.New("backend unavailable")
	ErrEngineNotReady         = errors.New("engine not initialized")
)

// Remedy tells the caller what a denied user can do about it.
type Remedy uint8

const (
	// RemedyReactivate means the account was deactivated by its owner and a
	// login can bring it back.
	RemedyReactivate Remedy = iota + 1
	// RemedyContactSupport covers blocked and deleted accounts alike.
	RemedyContactSupport
)

func (r Remedy) String() string {
	switch r {
	case RemedyReactivate:
		return "reactivate"
	case RemedyContactSupport:
		return "contact_support"
	default:
		return "unknown"
	}
}

// AccountInactiveError is returned when the account gate denies a session.
// It deliberately does not name the exact status.
type AccountInactiveError struct {
	Remedy Remedy
}

func (e *AccountInactiveError) Error() string {
	return "account inactive: " + e.Remedy.String()
}

func (e *AccountInactiveError) Is(target error) bool {
	return target == ErrAccountInactive
}

func backendError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

// storeError passes domain errors from a CredentialStore through and wraps
// everything else as a backend failure.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrEmailInUse),
		errors.Is(err, ErrFederatedIdentityExists),
		errors.Is(err, ErrBackendUnavailable):
		return err
	default:
		return backendError(err)
	}
}
