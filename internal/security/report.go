package security

import "time"

type ScryptReport struct {
	N          int
	R          int
	P          int
	KeyLength  int
	SaltLength int
}

// Report is a flattened view of the effective protections.
type Report struct {
	SigningAlgorithm    string
	KeyRotation         bool
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	Scrypt              ScryptReport
	MinPasswordLength   int
	RehashOnLogin       bool
	RefreshReuseRevokes bool
	LoginRateLimited    bool
	IPThrottled         bool
	ResetRateLimited    bool
	TwoFactorAttemptCap int
	FederatedEnabled    bool
	FederatedAutoLink   bool
	AuditEnabled        bool
	Warnings            []string
}

// Input is what BuildReport needs from the engine configuration.
type Input struct {
	SigningAlgorithm         string
	VerifyKeyCount           int
	AccessTTL                time.Duration
	RefreshTTL               time.Duration
	Scrypt                   ScryptReport
	MinPasswordLength        int
	RehashOnLogin            bool
	RevokeOnReuse            bool
	LoginMaxAttempts         int
	LoginWindow              time.Duration
	IPThrottle               bool
	PasswordResetMaxAttempts int
	PasswordResetWindow      time.Duration
	TwoFactorMaxAttempts     int
	FederatedEnabled         bool
	LinkVerifiedEmail        bool
	AuditEnabled             bool
}

// Weak thresholds that produce warnings. They mirror common guidance and
// are not enforced.
const (
	minScryptN        = 1 << 15
	minPasswordLength = 8
	maxAccessTTL      = time.Hour
)

func BuildReport(in Input) Report {
	loginLimited := in.LoginMaxAttempts > 0 && in.LoginWindow > 0

	r := Report{
		SigningAlgorithm:    in.SigningAlgorithm,
		KeyRotation:         in.VerifyKeyCount > 0,
		AccessTTL:           in.AccessTTL,
		RefreshTTL:          in.RefreshTTL,
		Scrypt:              in.Scrypt,
		MinPasswordLength:   in.MinPasswordLength,
		RehashOnLogin:       in.RehashOnLogin,
		RefreshReuseRevokes: in.RevokeOnReuse,
		LoginRateLimited:    loginLimited,
		IPThrottled:         loginLimited && in.IPThrottle,
		ResetRateLimited:    in.PasswordResetMaxAttempts > 0 && in.PasswordResetWindow > 0,
		TwoFactorAttemptCap: in.TwoFactorMaxAttempts,
		FederatedEnabled:    in.FederatedEnabled,
		FederatedAutoLink:   in.FederatedEnabled && in.LinkVerifiedEmail,
		AuditEnabled:        in.AuditEnabled,
	}

	if in.Scrypt.N < minScryptN {
		r.Warnings = append(r.Warnings, "scrypt N below 32768")
	}
	if in.MinPasswordLength < minPasswordLength {
		r.Warnings = append(r.Warnings, "minimum password length below 8")
	}
	if in.AccessTTL > maxAccessTTL {
		r.Warnings = append(r.Warnings, "access tokens live longer than an hour")
	}
	if !in.RevokeOnReuse {
		r.Warnings = append(r.Warnings, "refresh reuse does not revoke the session")
	}
	if !loginLimited {
		r.Warnings = append(r.Warnings, "login attempts are not rate limited")
	}
	return r
}
