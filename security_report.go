package authcore

import "github.com/MrEthical07/authcore/internal/security"

// SecurityReport summarizes the protections the engine runs with.
type SecurityReport = security.Report

// SecurityReport reports the effective posture with warnings for weak
// settings.
func (e *Engine) SecurityReport() SecurityReport {
	c := e.config
	return security.BuildReport(security.Input{
		SigningAlgorithm: c.JWT.SigningMethod,
		VerifyKeyCount:   len(c.JWT.VerifyKeys),
		AccessTTL:        c.JWT.AccessTTL,
		RefreshTTL:       c.Refresh.TTL,
		Scrypt: security.ScryptReport{
			N:          c.Password.N,
			R:          c.Password.R,
			P:          c.Password.P,
			KeyLength:  c.Password.KeyLength,
			SaltLength: c.Password.SaltLength,
		},
		MinPasswordLength:        c.Password.MinLength,
		RehashOnLogin:            c.Password.UpgradeOnLogin,
		RevokeOnReuse:            c.Refresh.RevokeOnReuse,
		LoginMaxAttempts:         c.RateLimit.LoginMaxAttempts,
		LoginWindow:              c.RateLimit.LoginWindow,
		IPThrottle:               c.RateLimit.EnableIPThrottle,
		PasswordResetMaxAttempts: c.RateLimit.PasswordResetMaxAttempts,
		PasswordResetWindow:      c.RateLimit.PasswordResetWindow,
		TwoFactorMaxAttempts:     c.TwoFactor.LoginMaxAttempts,
		FederatedEnabled:         e.verifier != nil,
		LinkVerifiedEmail:        c.Federated.LinkVerifiedEmail,
		AuditEnabled:             c.Audit.Enabled,
	})
}
