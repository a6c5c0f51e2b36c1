package refresh

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	id := NewID()
	secret, err := NewSecret()
	if err != nil {
		t.Fatalf("NewSecret: %v", err)
	}

	token, err := Encode(id, secret)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	gotID, gotSecret, err := Decode(token)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if gotID != id || gotSecret != secret {
		t.Fatal("decoded token does not match input")
	}
}

func TestSecretsAreUniqueAndHashed(t *testing.T) {
	a, _ := NewSecret()
	b, _ := NewSecret()
	if a == b {
		t.Fatal("expected distinct secrets")
	}
	if a.Hash() == b.Hash() {
		t.Fatal("expected distinct hashes")
	}
	if a.Hash() != a.Hash() {
		t.Fatal("hash must be deterministic")
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	short := base64.RawURLEncoding.EncodeToString(make([]byte, rawSize-1))
	zeroID := base64.RawURLEncoding.EncodeToString(make([]byte, rawSize))

	for _, input := range []string{"", "!!!", short, zeroID, "a.b"} {
		if _, _, err := Decode(input); !errors.Is(err, ErrMalformed) {
			t.Fatalf("expected ErrMalformed for %q, got %v", input, err)
		}
	}
}

func TestEncodeRejectsBadID(t *testing.T) {
	secret, _ := NewSecret()
	if _, err := Encode("not-a-ksuid", secret); err == nil {
		t.Fatal("expected error for invalid id")
	}
}

func TestRecordActive(t *testing.T) {
	now := time.Now()
	r := &Record{ExpiresAt: now.Add(time.Minute)}
	if !r.Active(now) {
		t.Fatal("expected active record")
	}
	r.Revoked = true
	if r.Active(now) {
		t.Fatal("revoked record must not be active")
	}
	r.Revoked = false
	if r.Active(now.Add(2 * time.Minute)) {
		t.Fatal("expired record must not be active")
	}
	var nilRecord *Record
	if nilRecord.Active(now) {
		t.Fatal("nil record must not be active")
	}
}
