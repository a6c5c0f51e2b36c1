package internal

import (
	"encoding/base32"
	"testing"
)

func TestNewResetCodeUniqueAndHashed(t *testing.T) {
	a, err := NewResetCode()
	if err != nil {
		t.Fatalf("NewResetCode: %v", err)
	}
	b, err := NewResetCode()
	if err != nil {
		t.Fatalf("NewResetCode: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct reset codes")
	}
	if HashCode(a) == a {
		t.Fatal("hash must differ from code")
	}
	if HashCode(a) != HashCode(a) {
		t.Fatal("hash must be deterministic")
	}
	if len(HashCode(a)) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(HashCode(a)))
	}
}

func TestNewTOTPSecretDecodes(t *testing.T) {
	secret, err := NewTOTPSecret()
	if err != nil {
		t.Fatalf("NewTOTPSecret: %v", err)
	}
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(raw) != totpSecretSize {
		t.Fatalf("expected %d bytes, got %d", totpSecretSize, len(raw))
	}
}

func TestNewChallengeIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		id, err := NewChallengeID()
		if err != nil {
			t.Fatalf("NewChallengeID: %v", err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate challenge id %q", id)
		}
		seen[id] = struct{}{}
	}
}
