package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
)

// Verifier checks an access token; *authcore.Engine satisfies it.
type Verifier interface {
	Verify(ctx context.Context, accessToken string) (*authcore.Claims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims Guard stored for this request.
func ClaimsFromContext(ctx context.Context) (*authcore.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*authcore.Claims)
	return c, ok && c != nil
}

// Guard rejects requests without a valid access token. Backend failures
// answer 503 so clients retry instead of discarding their tokens.
func Guard(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if v == nil || !ok {
				unauthorized(w, "")
				return
			}

			claims, err := v.Verify(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, authcore.ErrBackendUnavailable), errors.Is(err, authcore.ErrEngineNotReady):
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			case errors.Is(err, authcore.ErrTokenExpired):
				unauthorized(w, "token expired")
				return
			default:
				unauthorized(w, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, desc string) {
	challenge := "Bearer"
	if desc != "" {
		challenge += ` error="invalid_token", error_description="` + desc + `"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func bearerToken(value string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(value), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
