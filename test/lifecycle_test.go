//go:build integration

package test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/authcore"
)

func TestSessionLifecycle(t *testing.T) {
	for _, backend := range refreshBackends {
		t.Run(backend, func(t *testing.T) {
			s := newStack(t, backend, nil)
			ctx := context.Background()

			first := s.register(t, "Alice@Example.com")
			if _, err := s.engine.Register(ctx, "alice@example.com", "another-pass"); !errors.Is(err, authcore.ErrEmailInUse) {
				t.Fatalf("duplicate register: %v", err)
			}

			res, err := s.engine.Login(ctx, "alice@example.com", "correct-horse")
			if err != nil || res.Session == nil {
				t.Fatalf("login: %+v %v", res, err)
			}
			if res.Session.SessionID == first.SessionID {
				t.Fatal("login reused the registration session")
			}

			claims, err := s.engine.Verify(ctx, res.Session.AccessToken)
			if err != nil {
				t.Fatalf("verify: %v", err)
			}
			if claims.UserID != first.UserID || claims.Email != "alice@example.com" {
				t.Fatalf("claims = %+v", claims)
			}

			rotated, err := s.engine.Refresh(ctx, res.Session.RefreshToken)
			if err != nil {
				t.Fatalf("refresh: %v", err)
			}
			if rotated.SessionID != res.Session.SessionID || rotated.RefreshToken == res.Session.RefreshToken {
				t.Fatal("refresh did not rotate the secret in place")
			}

			// replaying the old token revokes the session
			if _, err := s.engine.Refresh(ctx, res.Session.RefreshToken); !errors.Is(err, authcore.ErrTokenRevoked) {
				t.Fatalf("reuse: %v", err)
			}
			if _, err := s.engine.Refresh(ctx, rotated.RefreshToken); !errors.Is(err, authcore.ErrTokenRevoked) {
				t.Fatalf("after reuse: %v", err)
			}

			if err := s.engine.Logout(ctx, first.RefreshToken); err != nil {
				t.Fatalf("logout: %v", err)
			}
			if _, err := s.engine.Refresh(ctx, first.RefreshToken); !errors.Is(err, authcore.ErrTokenRevoked) {
				t.Fatalf("refresh after logout: %v", err)
			}
		})
	}
}

func TestBanClosesEverySession(t *testing.T) {
	for _, backend := range refreshBackends {
		t.Run(backend, func(t *testing.T) {
			s := newStack(t, backend, nil)
			ctx := context.Background()

			sess := s.register(t, "bob@example.com")
			if err := s.engine.Ban(ctx, sess.UserID); err != nil {
				t.Fatalf("ban: %v", err)
			}

			if _, err := s.engine.Verify(ctx, sess.AccessToken); !errors.Is(err, authcore.ErrTokenVersionMismatch) {
				t.Fatalf("verify after ban: %v", err)
			}
			if _, err := s.engine.Refresh(ctx, sess.RefreshToken); !errors.Is(err, authcore.ErrTokenRevoked) {
				t.Fatalf("refresh after ban: %v", err)
			}

			_, err := s.engine.Login(ctx, "bob@example.com", "correct-horse")
			var inactive *authcore.AccountInactiveError
			if !errors.As(err, &inactive) || inactive.Remedy != authcore.RemedyContactSupport {
				t.Fatalf("login after ban: %v", err)
			}

			u, err := s.store.FindByID(ctx, sess.UserID)
			if err != nil || u.Status != authcore.StatusBlocked || u.TokenVersion == 0 {
				t.Fatalf("stored user = %+v, %v", u, err)
			}
		})
	}
}

func TestChangePasswordRevokesOtherSessions(t *testing.T) {
	s := newStack(t, "sql", nil)
	ctx := context.Background()

	old := s.register(t, "carol@example.com")
	fresh, err := s.engine.ChangePassword(ctx, old.UserID, "correct-horse", "battery-staple")
	if err != nil {
		t.Fatalf("change password: %v", err)
	}

	if _, err := s.engine.Refresh(ctx, old.RefreshToken); !errors.Is(err, authcore.ErrTokenRevoked) {
		t.Fatalf("old refresh: %v", err)
	}
	if _, err := s.engine.Verify(ctx, old.AccessToken); !errors.Is(err, authcore.ErrTokenVersionMismatch) {
		t.Fatalf("old access: %v", err)
	}
	if _, err := s.engine.Verify(ctx, fresh.AccessToken); err != nil {
		t.Fatalf("fresh access: %v", err)
	}
	if _, err := s.engine.Login(ctx, "carol@example.com", "correct-horse"); !errors.Is(err, authcore.ErrInvalidCredentials) {
		t.Fatalf("old password login: %v", err)
	}
	if _, err := s.engine.Login(ctx, "carol@example.com", "battery-staple"); err != nil {
		t.Fatalf("new password login: %v", err)
	}
}

func TestPasswordResetEndToEnd(t *testing.T) {
	s := newStack(t, "sql", nil)
	ctx := context.Background()

	sess := s.register(t, "dave@example.com")
	if err := s.engine.ForgotPassword(ctx, "dave@example.com"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	if err := s.engine.ForgotPassword(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("forgot unknown: %v", err)
	}
	code := s.notifier.last(t, authcore.NotifyPasswordReset).Code

	if err := s.engine.ResetPassword(ctx, "dave@example.com", "wrong-code", "new-password"); !errors.Is(err, authcore.ErrOTPInvalid) {
		t.Fatalf("wrong code: %v", err)
	}
	if err := s.engine.ResetPassword(ctx, "dave@example.com", code, "new-password"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := s.engine.ResetPassword(ctx, "dave@example.com", code, "other-password"); !errors.Is(err, authcore.ErrOTPInvalid) {
		t.Fatalf("code reuse: %v", err)
	}

	if _, err := s.engine.Refresh(ctx, sess.RefreshToken); !errors.Is(err, authcore.ErrTokenRevoked) {
		t.Fatalf("refresh after reset: %v", err)
	}
	if _, err := s.engine.Login(ctx, "dave@example.com", "new-password"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestTwoFactorLoginEndToEnd(t *testing.T) {
	s := newStack(t, "sql", nil)
	ctx := context.Background()

	sess := s.register(t, "erin@example.com")
	setup, err := s.engine.SetupTwoFactor(ctx, sess.UserID)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := s.engine.ConfirmTwoFactor(ctx, sess.UserID, totpNow(t, setup.Secret)); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	res, err := s.engine.Login(ctx, "erin@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !res.TwoFactorRequired || res.Session != nil || res.ChallengeID == "" {
		t.Fatalf("expected a challenge, got %+v", res)
	}
	code := s.notifier.last(t, authcore.NotifyTwoFactorCode).Code

	if err := s.engine.ResendLoginCode(ctx, res.ChallengeID); !errors.Is(err, authcore.ErrOTPThrottled) {
		t.Fatalf("resend inside cooldown: %v", err)
	}

	done, err := s.engine.CompleteLogin(ctx, res.ChallengeID, code)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := s.engine.Verify(ctx, done.AccessToken); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := s.engine.CompleteLogin(ctx, res.ChallengeID, code); !errors.Is(err, authcore.ErrOTPInvalid) {
		t.Fatalf("ticket reuse: %v", err)
	}
}
