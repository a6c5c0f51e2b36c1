package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the access token algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

var (
	// ErrExpired is returned by ParseAccess for a well-formed token past exp.
	ErrExpired = errors.New("access token expired")
	// ErrInvalid covers every other parse or verification failure.
	ErrInvalid = errors.New("access token invalid")
)

// Config holds signing and validation settings.
//
// VerifyKeys maps kid to verification key material. When set, tokens must
// carry a kid present in the map, which lets operators rotate the signing key
// while tokens signed by the previous key stay valid until they expire.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

// Manager signs and parses access tokens. Key material is decoded once in
// NewManager.
type Manager struct {
	config Config
	alg    jwt.SigningMethod
	// signKey is nil for verify-only managers.
	signKey any
	// byKID is populated from Config.VerifyKeys; when non-empty a kid is
	// mandatory on every token.
	byKID     map[string]any
	verifyKey any
	now       func() time.Time
}

// AccessClaims is the access token payload.
type AccessClaims struct {
	Email        string `json:"email"`
	TokenVersion uint64 `json:"tv"`
	SessionID    string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Subject is the identity an access token is minted for.
type Subject struct {
	UserID       string
	Email        string
	TokenVersion uint64
	SessionID    string
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	switch {
	case cfg.AccessTTL <= 0:
		return nil, errors.New("invalid TTL configuration")
	case cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute:
		return nil, errors.New("invalid leeway configuration")
	case cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour:
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg, now: time.Now}
	var decodePublic func([]byte) (any, error)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a key of at least 32 bytes")
		}
		m.alg = jwt.SigningMethodHS256
		m.signKey = cfg.PrivateKey
		m.verifyKey = cfg.PrivateKey
		decodePublic = func(b []byte) (any, error) { return b, nil }
	case MethodEd25519:
		m.alg = jwt.SigningMethodEdDSA
		decodePublic = func(b []byte) (any, error) { return parseEdPublicKey(b) }
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signKey = priv
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verifyKey = pub
		}
		if m.verifyKey == nil && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	if len(cfg.VerifyKeys) > 0 {
		m.byKID = make(map[string]any, len(cfg.VerifyKeys))
		for kid, raw := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			key, err := decodePublic(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid verify key for kid %q: %w", kid, err)
			}
			m.byKID[kid] = key
		}
		if _, ok := m.byKID[cfg.KeyID]; cfg.KeyID != "" && !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}
	return m, nil
}

// CreateAccess signs a token for s and returns it with its expiry.
func (j *Manager) CreateAccess(s Subject) (string, time.Time, error) {
	if s.UserID == "" {
		return "", time.Time{}, errors.New("empty subject")
	}
	if j.signKey == nil {
		return "", time.Time{}, errors.New("manager has no signing key")
	}

	issued := j.now()
	expires := issued.Add(j.config.AccessTTL)
	rc := jwt.RegisteredClaims{
		Subject:   s.UserID,
		Issuer:    j.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	if j.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(j.alg, AccessClaims{
		Email:            s.Email,
		TokenVersion:     s.TokenVersion,
		SessionID:        s.SessionID,
		RegisteredClaims: rc,
	})
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}
	signed, err := token.SignedString(j.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

func (j *Manager) parser() *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.alg.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
		jwt.WithLeeway(j.config.Leeway),
	}
	if j.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(j.config.Audience))
	}
	return jwt.NewParser(opts...)
}

// ParseAccess verifies tokenStr and returns its claims. Expired tokens
// return ErrExpired; anything else wrong returns an error wrapping ErrInvalid.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := j.parser().ParseWithClaims(tokenStr, claims, j.lookupKey)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrExpired
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalid
	}
	if iat := claims.IssuedAt; iat != nil && iat.After(j.now().Add(j.config.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat too far in the future", ErrInvalid)
	}
	return claims, nil
}

func (j *Manager) lookupKey(t *jwt.Token) (any, error) {
	if t.Method.Alg() != j.alg.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	kid, _ := t.Header["kid"].(string)

	if j.byKID != nil {
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		if key, ok := j.byKID[kid]; ok {
			return key, nil
		}
		return nil, errors.New("unknown kid")
	}
	if j.config.KeyID != "" && kid != j.config.KeyID {
		return nil, errors.New("unknown kid")
	}
	if j.verifyKey == nil {
		return nil, errors.New("no verification key")
	}
	return j.verifyKey, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	if k, ok := parsed.(ed25519.PrivateKey); ok {
		return k, nil
	}
	return nil, errors.New("invalid ed25519 private key type")
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	if k, ok := parsed.(ed25519.PublicKey); ok {
		return k, nil
	}
	return nil, errors.New("invalid ed25519 public key type")
}
