package password

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

var errVerify = errors.New("verify failed")

func fastConfig() Config {
	return Config{
		N:          1024,
		R:          8,
		P:          1,
		KeyLength:  32,
		SaltLength: 16,
	}
}

func newTestHasher(t *testing.T) *Scrypt {
	t.Helper()
	hasher, err := NewScrypt(fastConfig())
	if err != nil {
		t.Fatalf("NewScrypt error: %v", err)
	}
	return hasher
}

func TestHashAndVerify(t *testing.T) {
	hasher := newTestHasher(t)
	ctx := context.Background()

	stored, err := hasher.Hash(ctx, "P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	salt, key, ok := strings.Cut(stored, ".")
	if !ok {
		t.Fatalf("expected salt.key format, got %q", stored)
	}
	if len(salt) != 32 || len(key) != 64 {
		t.Fatalf("unexpected field lengths salt=%d key=%d", len(salt), len(key))
	}

	if !hasher.Verify(ctx, "P@ssw0rd-Ascii", stored) {
		t.Fatal("expected password verification to succeed")
	}
	if hasher.Verify(ctx, "P@ssw0rd-ascii", stored) {
		t.Fatal("expected different password to fail")
	}
}

func TestHashIsSalted(t *testing.T) {
	hasher := newTestHasher(t)
	ctx := context.Background()

	a, err := hasher.Hash(ctx, "same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	b, err := hasher.Hash(ctx, "same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if a == b {
		t.Fatal("expected two hashes of the same password to differ")
	}
	if !hasher.Verify(ctx, "same-password", a) || !hasher.Verify(ctx, "same-password", b) {
		t.Fatal("expected both hashes to verify")
	}
}

func TestVerifyMalformedStoredValue(t *testing.T) {
	hasher := newTestHasher(t)
	ctx := context.Background()

	cases := []string{
		"",
		".",
		"nodot",
		"zz.zz",
		"0011.",
		".0011",
		"00112233445566778899aabbccddeeff.abcd",
		"0011.00112233445566778899aabbccddeeff00112233445566778899aabbccdd",
	}
	for _, stored := range cases {
		if hasher.Verify(ctx, "anything", stored) {
			t.Fatalf("expected malformed value %q to fail verification", stored)
		}
	}
}

func TestVerifyCancelledContext(t *testing.T) {
	hasher := newTestHasher(t)

	stored, err := hasher.Hash(context.Background(), "password-123")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if hasher.Verify(ctx, "password-123", stored) {
		t.Fatal("expected cancelled context to report failure")
	}
}

func TestNeedsRehash(t *testing.T) {
	hasher := newTestHasher(t)

	stored, err := hasher.Hash(context.Background(), "password-123")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if hasher.NeedsRehash(stored) {
		t.Fatal("fresh hash should not need rehash")
	}

	longer := fastConfig()
	longer.KeyLength = 64
	upgraded, err := NewScrypt(longer)
	if err != nil {
		t.Fatalf("NewScrypt error: %v", err)
	}
	if !upgraded.NeedsRehash(stored) {
		t.Fatal("expected key length change to require rehash")
	}
	if !upgraded.NeedsRehash("garbage") {
		t.Fatal("expected malformed value to require rehash")
	}
}

func TestConcurrentHashingBounded(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxConcurrent = 2
	hasher, err := NewScrypt(cfg)
	if err != nil {
		t.Fatalf("NewScrypt error: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stored, err := hasher.Hash(context.Background(), "concurrent")
			if err != nil {
				errs <- err
				return
			}
			if !hasher.Verify(context.Background(), "concurrent", stored) {
				errs <- errVerify
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent hashing failed: %v", err)
	}
}

func TestNewScryptRejectsWeakConfig(t *testing.T) {
	cases := map[string]Config{
		"n not power of two": {N: 1000, R: 8, P: 1, KeyLength: 32, SaltLength: 16},
		"zero r":             {N: 1024, R: 0, P: 1, KeyLength: 32, SaltLength: 16},
		"short salt":         {N: 1024, R: 8, P: 1, KeyLength: 32, SaltLength: 4},
		"short key":          {N: 1024, R: 8, P: 1, KeyLength: 8, SaltLength: 16},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewScrypt(cfg); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}
