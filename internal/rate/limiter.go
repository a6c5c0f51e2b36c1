package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Policy is one fixed window. MaxAttempts <= 0 disables it.
type Policy struct {
	MaxAttempts int
	Window      time.Duration
}

func (p Policy) enabled() bool {
	return p.MaxAttempts > 0 && p.Window > 0
}

// Config holds limiter tuning parameters.
type Config struct {
	EnableIPThrottle bool
	Login            Policy
	PasswordReset    Policy
}

// Limiter enforces attempt budgets using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckLogin returns ErrRateLimited when identifier, or ip when IP
// throttling is on, has exhausted its failure budget.
func (l *Limiter) CheckLogin(ctx context.Context, identifier, ip string) error {
	if l == nil || !l.config.Login.enabled() {
		return nil
	}
	if err := l.checkCounter(ctx, loginKey(identifier), l.config.Login.MaxAttempts); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		return l.checkCounter(ctx, loginIPKey(ip), l.config.Login.MaxAttempts)
	}
	return nil
}

// RecordLoginFailure counts one failed login.
func (l *Limiter) RecordLoginFailure(ctx context.Context, identifier, ip string) error {
	if l == nil || !l.config.Login.enabled() {
		return nil
	}
	if _, err := l.incrementWithTTL(ctx, loginKey(identifier), l.config.Login.Window); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if _, err := l.incrementWithTTL(ctx, loginIPKey(ip), l.config.Login.Window); err != nil {
			return err
		}
	}
	return nil
}

// ResetLogin clears the identifier's failure counter after a successful
// login. The IP counter is left to expire.
func (l *Limiter) ResetLogin(ctx context.Context, identifier string) error {
	if l == nil || !l.config.Login.enabled() {
		return nil
	}
	if err := l.redis.Del(ctx, loginKey(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// TakePasswordReset counts one reset request and reports ErrRateLimited
// once the window budget is spent.
func (l *Limiter) TakePasswordReset(ctx context.Context, identifier string) error {
	if l == nil || !l.config.PasswordReset.enabled() {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, resetKey(identifier), l.config.PasswordReset.Window)
	if err != nil {
		return err
	}
	if count > int64(l.config.PasswordReset.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

// checkCounter reports ErrRateLimited once key has reached maxAttempts.
func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	n, err := l.redis.Get(ctx, key).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return nil
	case err != nil:
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	case n >= int64(maxAttempts):
		return ErrRateLimited
	}
	return nil
}

// incrementWithTTL bumps key and starts its window on the first hit only,
// so the window is fixed rather than sliding.
func (l *Limiter) incrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if n == 1 {
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return n, nil
}

func loginKey(identifier string) string { return "arl:login:" + identifier }
func loginIPKey(ip string) string       { return "arl:ip:" + ip }
func resetKey(identifier string) string { return "arl:reset:" + identifier }
