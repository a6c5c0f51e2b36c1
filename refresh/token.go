package refresh

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"github.com/segmentio/ksuid"
)

const (
	SecretSize = 32
	idSize     = 20
	rawSize    = idSize + SecretSize
)

// ErrMalformed is returned by Decode for anything that is not a token.
var ErrMalformed = errors.New("malformed refresh token")

// Secret is the random half of a refresh token.
type Secret [SecretSize]byte

// NewID returns a fresh refresh session id.
func NewID() string {
	return ksuid.New().String()
}

// NewSecret reads a fresh secret from crypto/rand.
func NewSecret() (Secret, error) {
	var s Secret
	_, err := rand.Read(s[:])
	return s, err
}

// Hash returns the value stores persist in place of the secret.
func (s Secret) Hash() [32]byte {
	return sha256.Sum256(s[:])
}

// Encode packs id and secret into the opaque client-facing string.
func Encode(id string, secret Secret) (string, error) {
	parsed, err := ksuid.Parse(id)
	if err != nil {
		return "", err
	}

	var raw [rawSize]byte
	copy(raw[:idSize], parsed.Bytes())
	copy(raw[idSize:], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// Decode splits token into session id and secret.
func Decode(token string) (string, Secret, error) {
	var secret Secret

	if base64.RawURLEncoding.DecodedLen(len(token)) != rawSize {
		return "", secret, ErrMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != rawSize {
		return "", secret, ErrMalformed
	}

	id, err := ksuid.FromBytes(raw[:idSize])
	if err != nil || id.IsNil() {
		return "", secret, ErrMalformed
	}
	copy(secret[:], raw[idSize:])

	return id.String(), secret, nil
}
