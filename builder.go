package authcore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/federated"
	"github.com/MrEthical07/authcore/internal"
	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/MrEthical07/authcore"

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users     CredentialStore
	sessions  RefreshTokenStore
	notifier  Notifier
	verifier  FederatedIdentityVerifier
	auditSink AuditSink
	logger    *zap.Logger
	tracer    trace.TracerProvider

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used for two-factor state, rate limits and,
// unless WithRefreshStore is used, refresh sessions.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.users = store
	return b
}

// WithRefreshStore replaces the Redis refresh session store, for example
// with sqlstore.
func (b *Builder) WithRefreshStore(store RefreshTokenStore) *Builder {
	b.sessions = store
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithFederatedVerifier sets the verifier used by LoginFederated. Without
// one, Build creates a federated.OIDCVerifier when Federated.JWKSURL is set.
func (b *Builder) WithFederatedVerifier(v FederatedIdentityVerifier) *Builder {
	b.verifier = v
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracer = tp
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("credential store required")
	}

	hasher, err := password.NewScrypt(password.Config{
		N:             cfg.Password.N,
		R:             cfg.Password.R,
		P:             cfg.Password.P,
		KeyLength:     cfg.Password.KeyLength,
		SaltLength:    cfg.Password.SaltLength,
		MaxConcurrent: cfg.Password.MaxConcurrent,
	})
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwtConfig(cfg.JWT))
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tp := b.tracer
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	engine := &Engine{
		config:      cfg,
		users:       b.users,
		sessions:    b.sessions,
		hasher:      hasher,
		jwt:         jm,
		notifier:    b.notifier,
		verifier:    b.verifier,
		enrollments: stores.NewEnrollmentStore(b.redis, ""),
		codes:       stores.NewCodeStore(b.redis, cfg.OTP.RedisPrefix),
		tickets:     stores.NewLoginTicketStore(b.redis, ""),
		limiter: rate.New(b.redis, rate.Config{
			EnableIPThrottle: cfg.RateLimit.EnableIPThrottle,
			Login: rate.Policy{
				MaxAttempts: cfg.RateLimit.LoginMaxAttempts,
				Window:      cfg.RateLimit.LoginWindow,
			},
			PasswordReset: rate.Policy{
				MaxAttempts: cfg.RateLimit.PasswordResetMaxAttempts,
				Window:      cfg.RateLimit.PasswordResetWindow,
			},
		}),
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger.Named("authcore"),
		tracer:  tp.Tracer(tracerName),
		now:     time.Now,
	}

	if engine.sessions == nil {
		engine.sessions = session.NewStore(b.redis, cfg.Refresh.RedisPrefix).WithRetention(cfg.Refresh.Retention)
	}
	if engine.verifier == nil && cfg.Federated.JWKSURL != "" {
		v, err := federated.NewOIDCVerifier(federated.Config{
			JWKSURL:     cfg.Federated.JWKSURL,
			Issuers:     cfg.Federated.Issuers,
			Audience:    cfg.Federated.Audience,
			CacheTTL:    cfg.Federated.CacheTTL,
			MaxAttempts: cfg.Federated.MaxAttempts,
			HTTPClient:  &http.Client{Timeout: cfg.Federated.HTTPTimeout},
		})
		if err != nil {
			return nil, err
		}
		engine.verifier = v
	}

	// Unknown-email logins verify against this hash so they cost the same
	// as a wrong password.
	dummy, err := internal.NewChallengeID()
	if err != nil {
		return nil, err
	}
	engine.dummyHash, err = hasher.Hash(context.Background(), dummy)
	if err != nil {
		return nil, fmt.Errorf("derive dummy hash: %w", err)
	}

	sink := b.auditSink
	if sink == nil && cfg.Audit.Enabled {
		sink = internalaudit.NewZapSink(logger)
	}
	if cfg.Audit.Enabled {
		overflow := internalaudit.Wait
		if cfg.Audit.DropIfFull {
			overflow = internalaudit.Drop
		}
		engine.audit = internalaudit.Start(internalaudit.Options{
			Queue:    cfg.Audit.BufferSize,
			Overflow: overflow,
		}, sink)
	}

	b.built = true
	return engine, nil
}

func jwtConfig(c JWTConfig) jwt.Config {
	out := jwt.Config{
		AccessTTL:     c.AccessTTL,
		SigningMethod: jwt.SigningMethod(strings.ToLower(c.SigningMethod)),
		PrivateKey:    []byte(c.PrivateKey),
		PublicKey:     []byte(c.PublicKey),
		Issuer:        c.Issuer,
		Audience:      c.Audience,
		Leeway:        c.Leeway,
		KeyID:         c.KeyID,
	}
	if len(c.VerifyKeys) > 0 {
		out.VerifyKeys = make(map[string][]byte, len(c.VerifyKeys))
		for kid, key := range c.VerifyKeys {
			out.VerifyKeys[kid] = []byte(key)
		}
	}
	return out
}
