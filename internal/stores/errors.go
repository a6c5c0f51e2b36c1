package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrExpired          = errors.New("record expired")
	ErrAttemptsExceeded = errors.New("attempts exceeded")
	ErrBackend          = errors.New("two-factor backend unavailable")
	ErrCorrupt          = errors.New("corrupt two-factor record")
)

const maxWatchRetries = 4

func backendErr(err error) error {
	return fmt.Errorf("%w: %v", ErrBackend, err)
}

type counted interface {
	incrementAttempts() uint16
	expiry() time.Time
	encode() ([]byte, error)
}

// bumpAttempts charges one attempt against the record at key under WATCH.
// A record that is out of attempts afterwards is deleted and reported as
// exhausted; one already expired at now is deleted and reported as
// ErrExpired.
func bumpAttempts(
	ctx context.Context,
	rdb redis.UniversalClient,
	key string,
	maxAttempts int,
	now time.Time,
	decode func([]byte) (counted, error),
) (exhausted bool, err error) {
	charge := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}
		rec, err := decode(raw)
		if err != nil {
			return err
		}

		remaining := rec.expiry().Sub(now)
		expired := remaining <= 0
		exhausted = !expired && int(rec.incrementAttempts()) >= maxAttempts

		var updated []byte
		if !expired && !exhausted {
			if updated, err = rec.encode(); err != nil {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if updated == nil {
				pipe.Del(ctx, key)
			} else {
				pipe.Set(ctx, key, updated, remaining)
			}
			return nil
		})
		if err == nil && expired {
			err = ErrExpired
		}
		return err
	}

	for range maxWatchRetries {
		err = rdb.Watch(ctx, charge, key)
		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case err == nil:
			return exhausted, nil
		case errors.Is(err, redis.Nil):
			return false, ErrNotFound
		case errors.Is(err, ErrExpired), errors.Is(err, ErrCorrupt):
			return false, err
		default:
			return false, backendErr(err)
		}
	}
	// lost every optimistic race; someone else consumed or rewrote it
	return false, ErrNotFound
}
