package authcore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/refresh"
)

// CredentialStore persists user records.
//
// Finders return (nil, nil) when nothing matches. Create returns
// ErrEmailInUse or ErrFederatedIdentityExists on a uniqueness conflict.
// UpdateFields and IncrementTokenVersion return ErrUserNotFound for unknown
// ids.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	FindByFederatedID(ctx context.Context, federatedID string) (*User, error)
	Create(ctx context.Context, u *User) error
	UpdateFields(ctx context.Context, id string, patch UserPatch) error
	// IncrementTokenVersion atomically bumps the token version and returns
	// the new value.
	IncrementTokenVersion(ctx context.Context, id string) (uint64, error)
	// ConsumeResetCode clears the reset code of id if it still equals
	// codeHash and has not expired at now, and reports whether it did.
	// Exactly one of any set of concurrent callers succeeds.
	ConsumeResetCode(ctx context.Context, id, codeHash string, now time.Time) (bool, error)
}

// RefreshTokenStore persists refresh sessions. Rotate must be a single
// atomic compare-and-swap on the secret hash.
type RefreshTokenStore interface {
	Save(ctx context.Context, r *refresh.Record) error
	Get(ctx context.Context, id string, now time.Time) (*refresh.Record, error)
	// Rotate checks the current expiry against issuedAt, the caller's clock.
	Rotate(ctx context.Context, id string, presented, next [32]byte, issuedAt, expiresAt time.Time) (*refresh.Record, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
}

// Notifier delivers one-time codes to users.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// FederatedIdentityVerifier checks an external identity token.
// federated.OIDCVerifier is the stock implementation.
type FederatedIdentityVerifier interface {
	Verify(ctx context.Context, rawToken string) (*FederatedIdentity, error)
}

// SessionLister is implemented by refresh stores that can enumerate the
// live sessions of a user. Both bundled stores do.
type SessionLister interface {
	ActiveSessionIDs(ctx context.Context, userID string, now time.Time) ([]string, error)
}
