package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
)

const (
	challengeIDSize = 16
	resetCodeSize   = 32
	totpSecretSize  = 20
)

// NewChallengeID returns an opaque id for a pending two-factor login.
func NewChallengeID() (string, error) {
	var b [challengeIDSize]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

// NewResetCode returns a password reset code for delivery to the user.
func NewResetCode() (string, error) {
	var b [resetCodeSize]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

// HashCode is the persisted form of a reset code.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// NewNonce returns a random 64-bit counter for challenge codes.
func NewNonce() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// NewTOTPSecret returns an unpadded base32 shared secret.
func NewTOTPSecret() (string, error) {
	var b [totpSecretSize]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b[:]), nil
}
