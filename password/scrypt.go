package password

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"golang.org/x/crypto/scrypt"
	"golang.org/x/sync/semaphore"
)

const (
	minSaltLength = 8
	minKeyLength  = 16
	separator     = "."
)

// Config holds scrypt cost parameters.
type Config struct {
	N          int
	R          int
	P          int
	KeyLength  int
	SaltLength int

	// MaxConcurrent bounds simultaneous derivations. Zero means GOMAXPROCS.
	MaxConcurrent int
}

// DefaultConfig returns interactive-login scrypt parameters.
func DefaultConfig() Config {
	return Config{
		N:          32768,
		R:          8,
		P:          1,
		KeyLength:  64,
		SaltLength: 16,
	}
}

// Scrypt hashes and verifies passwords. It is safe for concurrent use.
type Scrypt struct {
	config Config
	slots  *semaphore.Weighted
}

// NewScrypt validates cfg and returns a hasher.
func NewScrypt(cfg Config) (*Scrypt, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = runtime.GOMAXPROCS(0)
	}

	return &Scrypt{
		config: cfg,
		slots:  semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}, nil
}

// Hash derives a key from password and a fresh random salt. Two calls with
// the same password never return the same value.
func (s *Scrypt) Hash(ctx context.Context, password string) (string, error) {
	salt := make([]byte, s.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key, err := s.derive(ctx, password, salt)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(salt) + separator + hex.EncodeToString(key), nil
}

// Verify reports whether password matches stored. Malformed stored values
// and cancelled contexts report false.
func (s *Scrypt) Verify(ctx context.Context, password, stored string) bool {
	salt, want, ok := parseStored(stored)
	if !ok || len(want) != s.config.KeyLength {
		return false
	}

	got, err := s.derive(ctx, password, salt)
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(got, want) == 1
}

// NeedsRehash reports whether stored was produced with a different key or
// salt length than the current configuration.
func (s *Scrypt) NeedsRehash(stored string) bool {
	salt, key, ok := parseStored(stored)
	if !ok {
		return true
	}
	return len(salt) != s.config.SaltLength || len(key) != s.config.KeyLength
}

func (s *Scrypt) derive(ctx context.Context, password string, salt []byte) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.slots.Release(1)

	return scrypt.Key([]byte(password), salt, s.config.N, s.config.R, s.config.P, s.config.KeyLength)
}

func parseStored(stored string) ([]byte, []byte, bool) {
	saltHex, keyHex, found := strings.Cut(stored, separator)
	if !found || saltHex == "" || keyHex == "" {
		return nil, nil, false
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) < minSaltLength {
		return nil, nil, false
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) == 0 {
		return nil, nil, false
	}

	return salt, key, true
}

func validateConfig(cfg Config) error {
	if cfg.N <= 1 || cfg.N&(cfg.N-1) != 0 {
		return errors.New("scrypt N must be a power of two greater than 1")
	}
	if cfg.R <= 0 || cfg.P <= 0 {
		return errors.New("scrypt r and p must be > 0")
	}
	if uint64(cfg.R)*uint64(cfg.P) >= 1<<30 {
		return errors.New("scrypt r*p too large")
	}
	if cfg.SaltLength < minSaltLength {
		return fmt.Errorf("salt length must be >= %d", minSaltLength)
	}
	if cfg.KeyLength < minKeyLength {
		return fmt.Errorf("key length must be >= %d", minKeyLength)
	}
	return nil
}
