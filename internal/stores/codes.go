package stores

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// OutstandingCode is the single live challenge code of a user. The code
// itself is derived from the user's secret and Nonce and is never stored.
type OutstandingCode struct {
	Nonce     uint64
	ExpiresAt int64
}

func (c *OutstandingCode) encode() []byte {
	var buf [17]byte
	buf[0] = recordVersion1
	binary.BigEndian.PutUint64(buf[1:9], c.Nonce)
	binary.BigEndian.PutUint64(buf[9:17], uint64(c.ExpiresAt))
	return buf[:]
}

func decodeOutstandingCode(data []byte) (*OutstandingCode, error) {
	if len(data) != 17 || data[0] != recordVersion1 {
		return nil, ErrCorrupt
	}
	return &OutstandingCode{
		Nonce:     binary.BigEndian.Uint64(data[1:9]),
		ExpiresAt: int64(binary.BigEndian.Uint64(data[9:17])),
	}, nil
}

// CodeStore holds one outstanding code and one resend cooldown per user.
type CodeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewCodeStore(rdb redis.UniversalClient, prefix string) *CodeStore {
	if prefix == "" {
		prefix = "tfc"
	}
	return &CodeStore{redis: rdb, prefix: prefix}
}

func (s *CodeStore) codeKey(userID string) string {
	return s.prefix + ":" + userID
}

func (s *CodeStore) cooldownKey(userID string) string {
	return s.prefix + "cd:" + userID
}

// Issue stores c, overwriting any earlier outstanding code. retain keeps
// the record past its expiry so a late submission reports ErrExpired
// rather than ErrNotFound.
func (s *CodeStore) Issue(ctx context.Context, userID string, c *OutstandingCode, retain time.Duration) error {
	if err := s.redis.Set(ctx, s.codeKey(userID), c.encode(), retain).Err(); err != nil {
		return backendErr(err)
	}
	return nil
}

// Take removes and returns the outstanding code. Whoever calls Take first
// owns the code; later callers see ErrNotFound.
func (s *CodeStore) Take(ctx context.Context, userID string) (*OutstandingCode, error) {
	data, err := s.redis.GetDel(ctx, s.codeKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, backendErr(err)
	}
	return decodeOutstandingCode(data)
}

// Discard drops any outstanding code and cooldown for userID.
func (s *CodeStore) Discard(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.codeKey(userID), s.cooldownKey(userID)).Err(); err != nil {
		return backendErr(err)
	}
	return nil
}

// StartCooldown (re)arms the resend cooldown unconditionally.
func (s *CodeStore) StartCooldown(ctx context.Context, userID string, d time.Duration) error {
	if err := s.redis.Set(ctx, s.cooldownKey(userID), 1, d).Err(); err != nil {
		return backendErr(err)
	}
	return nil
}

// ReleaseCooldown ends the resend cooldown early.
func (s *CodeStore) ReleaseCooldown(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.cooldownKey(userID)).Err(); err != nil {
		return backendErr(err)
	}
	return nil
}

// AcquireCooldown arms the cooldown only if it is not already running and
// reports whether it did.
func (s *CodeStore) AcquireCooldown(ctx context.Context, userID string, d time.Duration) (bool, error) {
	ok, err := s.redis.SetNX(ctx, s.cooldownKey(userID), 1, d).Result()
	if err != nil {
		return false, backendErr(err)
	}
	return ok, nil
}
