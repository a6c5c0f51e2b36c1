package federated

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

const (
	maxJWKSBytes      = 1 << 20
	minRefetchSpacing = 30 * time.Second
)

// Config configures an OIDCVerifier.
type Config struct {
	JWKSURL  string
	Issuers  []string
	Audience string
	// CacheTTL bounds how long fetched keys are trusted without a refetch.
	CacheTTL time.Duration
	// MaxAttempts bounds JWKS fetch attempts, including the first.
	MaxAttempts int
	Leeway      time.Duration
	HTTPClient  *http.Client
}

// OIDCVerifier verifies provider ID tokens. It is safe for concurrent use.
type OIDCVerifier struct {
	cfg    Config
	client *http.Client
	group  singleflight.Group
	now    func() time.Time

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

type idTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
	Name          string `json:"name"`
	jwt.RegisteredClaims
}

// NewOIDCVerifier validates cfg and returns a verifier. No network call is
// made until the first Verify.
func NewOIDCVerifier(cfg Config) (*OIDCVerifier, error) {
	if strings.TrimSpace(cfg.JWKSURL) == "" {
		return nil, errors.New("federated: JWKS URL is required")
	}
	if len(cfg.Issuers) == 0 {
		return nil, errors.New("federated: at least one issuer is required")
	}
	if strings.TrimSpace(cfg.Audience) == "" {
		return nil, errors.New("federated: audience is required")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Leeway < 0 || cfg.Leeway > 5*time.Minute {
		return nil, errors.New("federated: leeway out of range")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &OIDCVerifier{cfg: cfg, client: client, now: time.Now}, nil
}

// Verify checks rawToken and returns the identity it asserts.
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	}
	if v.cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(v.cfg.Leeway))
	}

	claims := &idTokenClaims{}
	_, err := jwt.NewParser(options...).ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		return v.key(ctx, kid)
	})
	if err != nil {
		if errors.Is(err, ErrKeysUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !slices.Contains(v.cfg.Issuers, claims.Issuer) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}

	return &Identity{
		Issuer:        claims.Issuer,
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: truthy(claims.EmailVerified),
		Name:          claims.Name,
	}, nil
}

// some providers send email_verified as the string "true".
func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	default:
		return false
	}
}

func (v *OIDCVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	k, ok := v.keys[kid]
	fresh := v.now().Sub(v.fetchedAt) < v.cfg.CacheTTL
	recent := v.now().Sub(v.fetchedAt) < minRefetchSpacing
	v.mu.RUnlock()

	if ok && fresh {
		return k, nil
	}
	if !ok && recent {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}

	if err := v.refresh(ctx); err != nil {
		if ok {
			// keep serving the cached key while the provider is down
			return k, nil
		}
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	if k, ok := v.keys[kid]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("unknown kid %q", kid)
}

// refresh refetches the key set. Concurrent callers share one fetch.
func (v *OIDCVerifier) refresh(ctx context.Context) error {
	_, err, _ := v.group.Do("jwks", func() (interface{}, error) {
		keys, err := v.fetch(ctx)
		if err != nil {
			return nil, err
		}
		v.mu.Lock()
		v.keys = keys
		v.fetchedAt = v.now()
		v.mu.Unlock()
		return nil, nil
	})
	return err
}

func (v *OIDCVerifier) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	keys, err := backoff.Retry(ctx, func() (map[string]*rsa.PublicKey, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.JWKSURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := v.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxJWKSBytes))
			return nil, fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return nil, backoff.Permanent(fmt.Errorf("jwks endpoint returned %d", resp.StatusCode))
		}

		var doc jwksDocument
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSBytes)).Decode(&doc); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("decode jwks: %w", err))
		}
		keys, err := parseJWKS(doc)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return keys, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(v.cfg.MaxAttempts)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeysUnavailable, err)
	}
	return keys, nil
}
