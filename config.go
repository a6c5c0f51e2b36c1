package authcore

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every variable read by LoadConfigFromEnv.
const EnvPrefix = "AUTHCORE_"

// Config is the complete engine configuration. Start from DefaultConfig.
type Config struct {
	JWT           JWTConfig           `envPrefix:"JWT_"`
	Refresh       RefreshConfig       `envPrefix:"REFRESH_"`
	Password      PasswordConfig      `envPrefix:"PASSWORD_"`
	PasswordReset PasswordResetConfig `envPrefix:"PASSWORD_RESET_"`
	OTP           OTPConfig           `envPrefix:"OTP_"`
	TwoFactor     TwoFactorConfig     `envPrefix:"TWO_FACTOR_"`
	Federated     FederatedConfig     `envPrefix:"FEDERATED_"`
	Account       AccountConfig       `envPrefix:"ACCOUNT_"`
	RateLimit     RateLimitConfig     `envPrefix:"RATE_LIMIT_"`
	Audit         AuditConfig         `envPrefix:"AUDIT_"`
	Metrics       MetricsConfig       `envPrefix:"METRICS_"`
}

// JWTConfig controls access token signing.
//
// For "hs256" PrivateKey is the shared secret (at least 32 bytes). For
// "ed25519" PrivateKey and PublicKey hold raw or PEM encoded keys. VerifyKeys
// maps kid to verification key so a retired signing key keeps verifying
// until its tokens expire.
type JWTConfig struct {
	SigningMethod string `env:"SIGNING_METHOD"`
	PrivateKey    string `env:"PRIVATE_KEY,unset"`
	PublicKey     string `env:"PUBLIC_KEY"`
	KeyID         string `env:"KEY_ID"`
	VerifyKeys    map[string]string
	Issuer        string        `env:"ISSUER"`
	Audience      string        `env:"AUDIENCE"`
	AccessTTL     time.Duration `env:"ACCESS_TTL"`
	Leeway        time.Duration `env:"LEEWAY"`
}

type RefreshConfig struct {
	TTL time.Duration `env:"TTL"`
	// RevokeOnReuse revokes the whole session when a rotated-away secret is
	// presented again.
	RevokeOnReuse bool   `env:"REVOKE_ON_REUSE"`
	RedisPrefix   string `env:"REDIS_PREFIX"`
	// Retention keeps expired Redis sessions around so late refreshes are
	// reported as expired instead of unknown.
	Retention time.Duration `env:"RETENTION"`
}

// PasswordConfig holds scrypt cost parameters and the length policy.
type PasswordConfig struct {
	N             int `env:"SCRYPT_N"`
	R             int `env:"SCRYPT_R"`
	P             int `env:"SCRYPT_P"`
	KeyLength     int `env:"KEY_LENGTH"`
	SaltLength    int `env:"SALT_LENGTH"`
	MaxConcurrent int `env:"MAX_CONCURRENT"`
	MinLength     int `env:"MIN_LENGTH"`
	MaxLength     int `env:"MAX_LENGTH"`
	// UpgradeOnLogin rehashes passwords whose stored parameters are stale.
	UpgradeOnLogin bool `env:"UPGRADE_ON_LOGIN"`
}

type PasswordResetConfig struct {
	CodeTTL time.Duration `env:"CODE_TTL"`
}

// OTPConfig shapes the one-time codes sent during a two-factor challenge.
type OTPConfig struct {
	Digits         int           `env:"DIGITS"`
	TTL            time.Duration `env:"TTL"`
	ResendCooldown time.Duration `env:"RESEND_COOLDOWN"`
	RedisPrefix    string        `env:"REDIS_PREFIX"`
}

// TwoFactorConfig covers TOTP enrollment and pending two-factor logins.
type TwoFactorConfig struct {
	Issuer                string        `env:"ISSUER"`
	Period                int           `env:"PERIOD"`
	Skew                  int           `env:"SKEW"`
	EnrollmentTTL         time.Duration `env:"ENROLLMENT_TTL"`
	EnrollmentMaxAttempts int           `env:"ENROLLMENT_MAX_ATTEMPTS"`
	LoginTicketTTL        time.Duration `env:"LOGIN_TICKET_TTL"`
	LoginMaxAttempts      int           `env:"LOGIN_MAX_ATTEMPTS"`
}

// FederatedConfig configures the stock OIDC verifier. It is only used when
// JWKSURL is set and no verifier was passed to the Builder.
type FederatedConfig struct {
	JWKSURL     string        `env:"JWKS_URL"`
	Issuers     []string      `env:"ISSUERS" envSeparator:","`
	Audience    string        `env:"AUDIENCE"`
	CacheTTL    time.Duration `env:"CACHE_TTL"`
	MaxAttempts int           `env:"MAX_ATTEMPTS"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT"`
	// LinkVerifiedEmail links a new federated identity to an existing
	// password account when the provider asserts the same, verified email.
	// When false such logins fail with ErrFederatedAccountConflict.
	LinkVerifiedEmail bool `env:"LINK_VERIFIED_EMAIL"`
}

type AccountConfig struct {
	DefaultRole string `env:"DEFAULT_ROLE"`
	// ReactivateOnLogin lets a deactivated user come back by logging in.
	ReactivateOnLogin bool `env:"REACTIVATE_ON_LOGIN"`
}

type RateLimitConfig struct {
	EnableIPThrottle         bool          `env:"ENABLE_IP_THROTTLE"`
	LoginMaxAttempts         int           `env:"LOGIN_MAX_ATTEMPTS"`
	LoginWindow              time.Duration `env:"LOGIN_WINDOW"`
	PasswordResetMaxAttempts int           `env:"PASSWORD_RESET_MAX_ATTEMPTS"`
	PasswordResetWindow      time.Duration `env:"PASSWORD_RESET_WINDOW"`
}

type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	DropIfFull bool `env:"DROP_IF_FULL"`
}

type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"ENABLE_LATENCY_HISTOGRAMS"`
}

// DefaultConfig returns production defaults. Signing keys are left empty
// and must be provided.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: "ed25519",
			AccessTTL:     5 * time.Minute,
		},
		Refresh: RefreshConfig{
			TTL:           30 * 24 * time.Hour,
			RevokeOnReuse: true,
			RedisPrefix:   "rt",
			Retention:     24 * time.Hour,
		},
		Password: PasswordConfig{
			N:              32768,
			R:              8,
			P:              1,
			KeyLength:      64,
			SaltLength:     16,
			MaxConcurrent:  runtime.GOMAXPROCS(0),
			MinLength:      8,
			MaxLength:      1024,
			UpgradeOnLogin: true,
		},
		PasswordReset: PasswordResetConfig{
			CodeTTL: 15 * time.Minute,
		},
		OTP: OTPConfig{
			Digits:         6,
			TTL:            5 * time.Minute,
			ResendCooldown: 30 * time.Second,
			RedisPrefix:    "tfc",
		},
		TwoFactor: TwoFactorConfig{
			Issuer:                "authcore",
			Period:                30,
			Skew:                  1,
			EnrollmentTTL:         10 * time.Minute,
			EnrollmentMaxAttempts: 5,
			LoginTicketTTL:        10 * time.Minute,
			LoginMaxAttempts:      5,
		},
		Federated: FederatedConfig{
			CacheTTL:    time.Hour,
			MaxAttempts: 3,
			HTTPTimeout: 5 * time.Second,
		},
		Account: AccountConfig{
			DefaultRole:       "user",
			ReactivateOnLogin: true,
		},
		RateLimit: RateLimitConfig{
			EnableIPThrottle:         true,
			LoginMaxAttempts:         10,
			LoginWindow:              15 * time.Minute,
			PasswordResetMaxAttempts: 5,
			PasswordResetWindow:      time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// LoadConfigFromEnv applies AUTHCORE_* environment variables on top of
// DefaultConfig and validates the result.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string]string, len(cfg.JWT.VerifyKeys))
		for k, v := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[k] = v
		}
	}
	out.Federated.Issuers = append([]string(nil), cfg.Federated.Issuers...)
	return out
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	// JWT
	switch strings.ToLower(c.JWT.SigningMethod) {
	case "ed25519":
		if c.JWT.PrivateKey == "" {
			return errors.New("ed25519 requires PrivateKey")
		}
		if c.JWT.PublicKey == "" && len(c.JWT.VerifyKeys) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("JWT Leeway must be >= 0")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must exceed JWT AccessTTL")
	}
	if c.Refresh.Retention < 0 {
		return errors.New("Refresh Retention must be >= 0")
	}

	// Password
	if c.Password.N <= 1 || c.Password.N&(c.Password.N-1) != 0 {
		return errors.New("Password N must be a power of two > 1")
	}
	if c.Password.R < 1 || c.Password.P < 1 {
		return errors.New("Password R and P must be >= 1")
	}
	if c.Password.SaltLength < 8 {
		return errors.New("Password SaltLength must be >= 8")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 || c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password length policy is inconsistent")
	}
	if c.PasswordReset.CodeTTL <= 0 {
		return errors.New("PasswordReset CodeTTL must be > 0")
	}

	// OTP and two-factor
	if c.OTP.Digits < 6 || c.OTP.Digits > 9 {
		return errors.New("OTP Digits must be between 6 and 9")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.ResendCooldown < 0 || c.OTP.ResendCooldown >= c.OTP.TTL {
		return errors.New("OTP ResendCooldown must be >= 0 and shorter than TTL")
	}
	if c.TwoFactor.Period <= 0 {
		return errors.New("TwoFactor Period must be > 0")
	}
	if c.TwoFactor.Skew < 0 || c.TwoFactor.Skew > 3 {
		return errors.New("TwoFactor Skew must be between 0 and 3")
	}
	if c.TwoFactor.EnrollmentTTL <= 0 || c.TwoFactor.LoginTicketTTL <= 0 {
		return errors.New("TwoFactor TTLs must be > 0")
	}
	if c.TwoFactor.EnrollmentMaxAttempts <= 0 || c.TwoFactor.LoginMaxAttempts <= 0 {
		return errors.New("TwoFactor attempt caps must be > 0")
	}

	// Federated
	if c.Federated.JWKSURL != "" {
		if len(c.Federated.Issuers) == 0 {
			return errors.New("Federated Issuers are required with JWKSURL")
		}
		if c.Federated.Audience == "" {
			return errors.New("Federated Audience is required with JWKSURL")
		}
	}

	// Rate limits
	if c.RateLimit.LoginMaxAttempts < 0 || c.RateLimit.PasswordResetMaxAttempts < 0 {
		return errors.New("RateLimit attempts must be >= 0")
	}
	if c.RateLimit.LoginMaxAttempts > 0 && c.RateLimit.LoginWindow <= 0 {
		return errors.New("RateLimit LoginWindow must be > 0")
	}
	if c.RateLimit.PasswordResetMaxAttempts > 0 && c.RateLimit.PasswordResetWindow <= 0 {
		return errors.New("RateLimit PasswordResetWindow must be > 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	return nil
}
