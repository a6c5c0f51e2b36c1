package authcore

import (
	"time"

	"github.com/MrEthical07/authcore/federated"
)

// AccountStatus is the lifecycle state of a user account.
type AccountStatus uint8

const (
	StatusActive AccountStatus = iota
	StatusInactive
	StatusBlocked
	StatusDeleted
)

func (s AccountStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	case StatusBlocked:
		return "blocked"
	case StatusDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// User is the persisted account record. Empty strings stand for absent
// values: a user with FederatedID set and no PasswordHash is federated-only.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Status       AccountStatus
	Role         string
	FederatedID  string
	TokenVersion uint64

	TwoFactorSecret  string
	TwoFactorEnabled bool

	// PasswordResetCodeHash is the sha256 of the outstanding reset code.
	PasswordResetCodeHash  string
	PasswordResetExpiresAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPassword reports whether the user can log in with a password.
func (u *User) HasPassword() bool {
	return u != nil && u.PasswordHash != ""
}

// UserPatch lists the fields UpdateFields may change. Nil fields are left
// untouched.
type UserPatch struct {
	PasswordHash           *string
	Status                 *AccountStatus
	FederatedID            *string
	TwoFactorSecret        *string
	TwoFactorEnabled       *bool
	PasswordResetCodeHash  *string
	PasswordResetExpiresAt *time.Time
}

// Session is a freshly minted token pair. RefreshToken is shown to the
// caller exactly once; only its hash is stored.
type Session struct {
	UserID           string
	SessionID        string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Claims are the verified contents of an access token.
type Claims struct {
	UserID       string
	Email        string
	SessionID    string
	TokenVersion uint64
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// LoginResult is returned by Login. When TwoFactorRequired is set, Session
// is nil and the login is finished with CompleteLogin(ChallengeID, code).
type LoginResult struct {
	Session            *Session
	TwoFactorRequired  bool
	ChallengeID        string
	ChallengeExpiresAt time.Time
}

// TwoFactorSetup is the enrollment material returned by SetupTwoFactor.
type TwoFactorSetup struct {
	Secret          string
	ProvisioningURI string
	ExpiresAt       time.Time
}

// NotificationKind selects the message a Notifier delivers.
type NotificationKind uint8

const (
	NotifyTwoFactorCode NotificationKind = iota + 1
	NotifyPasswordReset
)

func (k NotificationKind) String() string {
	switch k {
	case NotifyTwoFactorCode:
		return "two_factor_code"
	case NotifyPasswordReset:
		return "password_reset"
	default:
		return "unknown"
	}
}

// Notification carries a secret code to its owner out of band.
type Notification struct {
	Kind      NotificationKind
	UserID    string
	Email     string
	Code      string
	ExpiresAt time.Time
}

// FederatedIdentity is a verified external identity assertion.
type FederatedIdentity = federated.Identity
