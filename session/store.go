package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/MrEthical07/authcore/refresh"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusMismatch int64 = 2
	rotateStatusRotated  int64 = 3
	rotateStatusCorrupt  int64 = 4
)

// KEYS[1] record key.
// ARGV[1] session id, ARGV[2] presented hash, ARGV[3] next hash,
// ARGV[4] now millis, ARGV[5] issuedAt (8 bytes BE), ARGV[6] expiresAt
// (8 bytes BE), ARGV[7] key ttl millis.
// Expired records are left for their key TTL so repeated attempts keep
// reporting expiry.
const rotateRefreshScript = `
local function read_be64(s, i)
  local n = 0
  for k = 0, 7 do
    local b = string.byte(s, i + k)
    if not b then
      return nil
    end
    n = n * 256 + b
  end
  return n
end

local data = redis.call("GET", KEYS[1])
if not data then
  return {0}
end
if #data < 51 or string.byte(data, 1) ~= 1 then
  return {4}
end

local expires_at = read_be64(data, 42)
if not expires_at then
  return {4}
end
if expires_at <= tonumber(ARGV[4]) then
  return {1}
end

if string.sub(data, 2, 33) ~= ARGV[2] then
  return {2}
end

local updated = string.sub(data, 1, 1) .. ARGV[3] .. ARGV[5] .. ARGV[6] .. string.sub(data, 50)
redis.call("SET", KEYS[1], updated, "PX", ARGV[7])
return {3, updated}
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// DefaultRetention is how long a record outlives its expiry.
const DefaultRetention = 24 * time.Hour

// Store persists refresh sessions in Redis. Records stay readable for a
// retention window after they expire so that a late refresh is reported as
// expired rather than unknown.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	retain time.Duration
}

// NewStore returns a Store using prefix as key namespace.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "rt"
	}
	return &Store{redis: rdb, prefix: prefix, retain: DefaultRetention}
}

// WithRetention sets how long records outlive their expiry. Negative
// values are treated as zero.
func (s *Store) WithRetention(d time.Duration) *Store {
	s.retain = max(d, 0)
	return s
}

// keyTTL is the Redis lifetime of a record valid over [from, until).
func (s *Store) keyTTL(from, until time.Time) (time.Duration, error) {
	lifetime := until.Sub(from)
	if lifetime <= 0 {
		return 0, errors.New("refresh record already expired")
	}
	return lifetime + s.retain, nil
}

func (s *Store) key(id string) string {
	return s.prefix + ":" + id
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

// Save writes r and indexes it under its owner. The key lives until
// r.ExpiresAt plus the retention window, measured from r.IssuedAt.
func (s *Store) Save(ctx context.Context, r *refresh.Record) error {
	ttl, err := s.keyTTL(r.IssuedAt, r.ExpiresAt)
	if err != nil {
		return err
	}

	data, err := encodeRecord(r)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(r.ID), data, ttl)
		pipe.SAdd(ctx, s.userKey(r.UserID), r.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the record for id if it is still live at now. Revoked
// sessions are deleted, so they report refresh.ErrNotFound like sessions
// that never existed.
func (s *Store) Get(ctx context.Context, id string, now time.Time) (*refresh.Record, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, refresh.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	r, err := decodeRecord(id, data)
	if err != nil {
		return nil, err
	}
	if !r.ExpiresAt.After(now) {
		return nil, refresh.ErrExpired
	}
	return r, nil
}

// Rotate atomically swaps the secret hash of session id from presented to
// next and moves its expiry. issuedAt is the caller's clock and is also
// the instant the current expiry is checked against. Exactly one of any set
// of concurrent callers presenting the same hash succeeds; the others get
// refresh.ErrHashMismatch.
func (s *Store) Rotate(
	ctx context.Context,
	id string,
	presented, next [32]byte,
	issuedAt, expiresAt time.Time,
) (*refresh.Record, error) {
	ttl, err := s.keyTTL(issuedAt, expiresAt)
	if err != nil {
		return nil, err
	}

	raw, err := rotateRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.key(id)},
		id,
		string(presented[:]),
		string(next[:]),
		issuedAt.UnixMilli(),
		string(encodeMillis(issuedAt)),
		string(encodeMillis(expiresAt)),
		ttl.Milliseconds(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) == 0 {
		return nil, errCorruptRecord
	}
	status, ok := values[0].(int64)
	if !ok {
		return nil, errCorruptRecord
	}

	switch status {
	case rotateStatusNotFound:
		return nil, refresh.ErrNotFound
	case rotateStatusExpired:
		return nil, refresh.ErrExpired
	case rotateStatusMismatch:
		return nil, refresh.ErrHashMismatch
	case rotateStatusRotated:
		if len(values) < 2 {
			return nil, errCorruptRecord
		}
		updated, ok := values[1].(string)
		if !ok {
			return nil, errCorruptRecord
		}
		return decodeRecord(id, []byte(updated))
	default:
		return nil, errCorruptRecord
	}
}

// Revoke deletes session id. Unknown ids are not an error.
func (s *Store) Revoke(ctx context.Context, id string) error {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(id))
		if r, decErr := decodeRecord(id, data); decErr == nil {
			pipe.SRem(ctx, s.userKey(r.UserID), id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RevokeAllForUser deletes every indexed session of userID and returns how
// many existed. A session saved concurrently with this call may survive it;
// callers pair this with a tokenVersion bump and an account-state check on
// refresh.
func (s *Store) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	userKey := s.userKey(userID)

	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}

	var deleted *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			deleted = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if deleted == nil {
		return 0, nil
	}
	return int(deleted.Val()), nil
}

// ActiveSessionIDs lists the session ids of userID still live at now,
// newest first.
// Expired records kept for retention are skipped.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string, now time.Time) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	live := make([]*refresh.Record, 0, len(ids))
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		r, err := decodeRecord(ids[i], []byte(data))
		if err != nil || !r.ExpiresAt.After(now) {
			continue
		}
		live = append(live, r)
	}
	// newest first, like the SQL store
	slices.SortFunc(live, func(a, b *refresh.Record) int { return b.IssuedAt.Compare(a.IssuedAt) })

	out := make([]string, len(live))
	for i, r := range live {
		out[i] = r.ID
	}
	return out, nil
}
