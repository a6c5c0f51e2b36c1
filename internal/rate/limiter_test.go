package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return New(rdb, cfg), mr
}

func TestLoginBudgetAndWindowExpiry(t *testing.T) {
	l, mr := newTestLimiter(t, Config{Login: Policy{MaxAttempts: 3, Window: time.Minute}})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckLogin(ctx, "a@x.com", ""); err != nil {
			t.Fatalf("attempt %d unexpectedly limited: %v", i, err)
		}
		if err := l.RecordLoginFailure(ctx, "a@x.com", ""); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}
	if err := l.CheckLogin(ctx, "a@x.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.CheckLogin(ctx, "b@x.com", ""); err != nil {
		t.Fatalf("other identifier must not be limited: %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if err := l.CheckLogin(ctx, "a@x.com", ""); err != nil {
		t.Fatalf("expected window to expire: %v", err)
	}
}

func TestResetLoginClearsCounter(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Login: Policy{MaxAttempts: 2, Window: time.Minute}})
	ctx := context.Background()

	_ = l.RecordLoginFailure(ctx, "a@x.com", "")
	_ = l.RecordLoginFailure(ctx, "a@x.com", "")
	if err := l.CheckLogin(ctx, "a@x.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limited, got %v", err)
	}
	if err := l.ResetLogin(ctx, "a@x.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.CheckLogin(ctx, "a@x.com", ""); err != nil {
		t.Fatalf("expected counter cleared, got %v", err)
	}
}

func TestIPThrottle(t *testing.T) {
	l, _ := newTestLimiter(t, Config{EnableIPThrottle: true, Login: Policy{MaxAttempts: 2, Window: time.Minute}})
	ctx := context.Background()

	_ = l.RecordLoginFailure(ctx, "a@x.com", "10.0.0.1")
	_ = l.RecordLoginFailure(ctx, "b@x.com", "10.0.0.1")
	if err := l.CheckLogin(ctx, "c@x.com", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP limit, got %v", err)
	}
	if err := l.CheckLogin(ctx, "c@x.com", "10.0.0.2"); err != nil {
		t.Fatalf("other IP must pass: %v", err)
	}
}

func TestPasswordResetBudget(t *testing.T) {
	l, _ := newTestLimiter(t, Config{PasswordReset: Policy{MaxAttempts: 2, Window: time.Hour}})
	ctx := context.Background()

	if err := l.TakePasswordReset(ctx, "a@x.com"); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := l.TakePasswordReset(ctx, "a@x.com"); err != nil {
		t.Fatalf("second: %v", err)
	}
	if err := l.TakePasswordReset(ctx, "a@x.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestDisabledPoliciesAndNilLimiter(t *testing.T) {
	l, _ := newTestLimiter(t, Config{})
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_ = l.RecordLoginFailure(ctx, "a@x.com", "")
	}
	if err := l.CheckLogin(ctx, "a@x.com", ""); err != nil {
		t.Fatalf("disabled policy must not limit: %v", err)
	}

	var nilLimiter *Limiter
	if err := nilLimiter.CheckLogin(ctx, "a", ""); err != nil {
		t.Fatalf("nil limiter: %v", err)
	}
	if err := nilLimiter.TakePasswordReset(ctx, "a"); err != nil {
		t.Fatalf("nil limiter: %v", err)
	}
}
