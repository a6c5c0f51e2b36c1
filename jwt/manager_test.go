package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func hsConfig() Config {
	return Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "authcore",
		Audience:      "api",
	}
}

func TestCreateAndParseAccess(t *testing.T) {
	m, err := NewManager(hsConfig())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, exp, err := m.CreateAccess(Subject{UserID: "u1", Email: "a@x.com", TokenVersion: 7, SessionID: "s1"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if time.Until(exp) <= 0 || time.Until(exp) > time.Minute {
		t.Fatalf("unexpected expiry %v", exp)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.Subject != "u1" || claims.Email != "a@x.com" || claims.TokenVersion != 7 || claims.SessionID != "s1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		t.Fatal("expected iat and exp")
	}
}

func TestParseAccessExpired(t *testing.T) {
	m, err := NewManager(hsConfig())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	m.now = func() time.Time { return time.Now().Add(-10 * time.Minute) }
	token, _, err := m.CreateAccess(Subject{UserID: "u1"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	m.now = time.Now

	if _, err := m.ParseAccess(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestParseAccessRejectsTampering(t *testing.T) {
	m, err := NewManager(hsConfig())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, _, err := m.CreateAccess(Subject{UserID: "u1"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	otherCfg := hsConfig()
	otherCfg.PrivateKey = []byte("fedcba9876543210fedcba9876543210")
	other, err := NewManager(otherCfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	forged, _, err := other.CreateAccess(Subject{UserID: "u1"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.ParseAccess(forged); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for foreign signature, got %v", err)
	}
	if _, err := m.ParseAccess(token); err != nil {
		t.Fatalf("expected own token to verify: %v", err)
	}
	for _, input := range []string{"", "not.a.jwt", "eyJhbGciOiJub25lIn0.eyJzdWIiOiJ1MSJ9."} {
		if _, err := m.ParseAccess(input); !errors.Is(err, ErrInvalid) {
			t.Fatalf("expected ErrInvalid for %q, got %v", input, err)
		}
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := AccessClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret-1234"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseAccessIssuerAndAudience(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "authcore",
		Audience:      "api",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	sign := func(issuer, audience string) string {
		claims := AccessClaims{RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    issuer,
			Audience:  gjwt.ClaimStrings{audience},
			IssuedAt:  gjwt.NewNumericDate(time.Now()),
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		}}
		s, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims).SignedString(priv)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	if _, err := m.ParseAccess(sign("authcore", "api")); err != nil {
		t.Fatalf("expected valid token: %v", err)
	}
	if _, err := m.ParseAccess(sign("other", "api")); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}
	if _, err := m.ParseAccess(sign("authcore", "other-api")); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
}

func TestKeyRotationWithVerifyKeys(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, priv2 := newEdKeys(t)

	oldSigner, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	oldToken, _, err := oldSigner.CreateAccess(Subject{UserID: "u1"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	rotated, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv2,
		KeyID:         "k2",
		VerifyKeys:    map[string][]byte{"k1": pub1, "k2": pub2},
	})
	if err != nil {
		t.Fatalf("new rotated manager: %v", err)
	}
	newToken, _, err := rotated.CreateAccess(Subject{UserID: "u1"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	if _, err := rotated.ParseAccess(oldToken); err != nil {
		t.Fatalf("expected token signed with previous key to verify: %v", err)
	}
	if _, err := rotated.ParseAccess(newToken); err != nil {
		t.Fatalf("expected token signed with current key to verify: %v", err)
	}

	retired, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		VerifyKeys:    map[string][]byte{"k2": pub2},
	})
	if err != nil {
		t.Fatalf("new retired manager: %v", err)
	}
	if _, err := retired.ParseAccess(oldToken); err == nil {
		t.Fatal("expected retired kid to fail")
	}
	if _, _, err := retired.CreateAccess(Subject{UserID: "u1"}); err == nil {
		t.Fatal("verify-only manager must refuse to sign")
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := map[string]Config{
		"zero ttl":       {SigningMethod: MethodHS256, PrivateKey: make([]byte, 32)},
		"short hs key":   {AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		"unknown method": {AccessTTL: time.Minute, SigningMethod: "rs256"},
		"ed no keys":     {AccessTTL: time.Minute, SigningMethod: MethodEd25519},
		"kid not in set": {AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: make([]byte, 32), KeyID: "a", VerifyKeys: map[string][]byte{"b": make([]byte, 32)}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewManager(cfg); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}
