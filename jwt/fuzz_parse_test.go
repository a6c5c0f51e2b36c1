package jwt

import (
	"strings"
	"testing"
	"time"
)

// FuzzParseAccess checks that arbitrary input never panics the parser and
// that anything it accepts carries a subject.
func FuzzParseAccess(f *testing.F) {
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte(strings.Repeat("f", 32)),
		Issuer:        "fuzz",
		KeyID:         "current",
	})
	if err != nil {
		f.Fatal(err)
	}
	good, _, err := m.CreateAccess(Subject{UserID: "u", Email: "u@example.com", TokenVersion: 1, SessionID: "s"})
	if err != nil {
		f.Fatal(err)
	}
	head, rest, _ := strings.Cut(good, ".")
	payload, _, _ := strings.Cut(rest, ".")

	for _, seed := range []string{
		good,
		head + "." + payload + ".",
		"eyJhbGciOiJub25lIn0." + payload + ".",
		good + "x",
		strings.Repeat(".", 3),
		"",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, raw string) {
		claims, err := m.ParseAccess(raw)
		if err != nil {
			if claims != nil {
				t.Fatal("claims returned alongside an error")
			}
			return
		}
		if claims == nil || claims.Subject == "" {
			t.Fatalf("accepted token without subject: %q", raw)
		}
	})
}
