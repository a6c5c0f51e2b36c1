package authcore

import (
	"strings"

	"golang.org/x/text/cases"
)

// NormalizeEmail trims and case-folds an email address. Every lookup and
// every stored record uses the normalized form, so "Ada@X.com" and
// "ada@x.com" are one account.
func NormalizeEmail(email string) string {
	// a Caser carries state and is not shared between goroutines
	return cases.Fold().String(strings.TrimSpace(email))
}

func plausibleEmail(email string) bool {
	at := strings.LastIndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}
