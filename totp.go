package authcore

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var errBadTOTPSecret = errors.New("authcore: malformed totp secret")

var totpEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

func decodeTOTPSecret(secret string) ([]byte, error) {
	raw, err := totpEncoding.DecodeString(strings.ToUpper(strings.TrimRight(secret, "=")))
	if err != nil || len(raw) == 0 {
		return nil, errBadTOTPSecret
	}
	return raw, nil
}

// hotpCode is RFC 4226 HOTP with HMAC-SHA1.
func hotpCode(secret []byte, counter uint64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := uint32(sum[offset]&0x7f)<<24 |
		uint32(sum[offset+1])<<16 |
		uint32(sum[offset+2])<<8 |
		uint32(sum[offset+3])

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod)
}

func wellFormedCode(code string, digits int) bool {
	if len(code) != digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func codesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// verifyTOTP checks code against every time step within skew of now.
func (e *Engine) verifyTOTP(secret []byte, code string, now time.Time) bool {
	cfg := e.config.TwoFactor
	digits := e.config.OTP.Digits
	code = strings.TrimSpace(code)
	if !wellFormedCode(code, digits) {
		return false
	}

	base := now.Unix() / int64(cfg.Period)
	ok := false
	for step := -cfg.Skew; step <= cfg.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		// no early exit: every window is computed
		if codesEqual(hotpCode(secret, uint64(counter), digits), code) {
			ok = true
		}
	}
	return ok
}

func (e *Engine) provisioningURI(secret, account string) string {
	issuer := e.config.TwoFactor.Issuer
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("algorithm", "SHA1")
	v.Set("digits", strconv.Itoa(e.config.OTP.Digits))
	v.Set("period", strconv.Itoa(e.config.TwoFactor.Period))
	return "otpauth://totp/" + url.PathEscape(issuer+":"+account) + "?" + v.Encode()
}
