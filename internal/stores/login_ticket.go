package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginTicket binds a pending second-factor step to the user whose password
// was already verified.
type LoginTicket struct {
	UserID    string
	ExpiresAt int64
	Attempts  uint16
}

func (t *LoginTicket) incrementAttempts() uint16 { t.Attempts++; return t.Attempts }
func (t *LoginTicket) expiry() time.Time         { return time.Unix(t.ExpiresAt, 0) }

func (t *LoginTicket) encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(recordVersion1)
	if err := binary.Write(&buf, binary.BigEndian, t.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, t.ExpiresAt); err != nil {
		return nil, err
	}
	if err := writeString(&buf, t.UserID); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeLoginTicket(data []byte) (*LoginTicket, error) {
	r, err := readHeader(data)
	if err != nil {
		return nil, err
	}
	t := &LoginTicket{}
	if err := readUint(r, &t.Attempts); err != nil {
		return nil, err
	}
	if err := readUint(r, &t.ExpiresAt); err != nil {
		return nil, err
	}
	if t.UserID, err = readString(r); err != nil {
		return nil, err
	}
	return t, nil
}

// LoginTicketStore persists pending two-factor logins by challenge id.
type LoginTicketStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewLoginTicketStore(rdb redis.UniversalClient, prefix string) *LoginTicketStore {
	if prefix == "" {
		prefix = "tfl"
	}
	return &LoginTicketStore{redis: rdb, prefix: prefix}
}

func (s *LoginTicketStore) key(challengeID string) string {
	return s.prefix + ":" + challengeID
}

func (s *LoginTicketStore) Save(ctx context.Context, challengeID string, t *LoginTicket, ttl time.Duration) error {
	encoded, err := t.encode()
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(challengeID), encoded, ttl).Err(); err != nil {
		return backendErr(err)
	}
	return nil
}

func (s *LoginTicketStore) Get(ctx context.Context, challengeID string, now time.Time) (*LoginTicket, error) {
	data, err := s.redis.Get(ctx, s.key(challengeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, backendErr(err)
	}
	t, err := decodeLoginTicket(data)
	if err != nil {
		return nil, err
	}
	if now.Unix() > t.ExpiresAt {
		_ = s.redis.Del(ctx, s.key(challengeID)).Err()
		return nil, ErrExpired
	}
	return t, nil
}

// Delete consumes the ticket. Only the caller that observes true may issue
// a session for it.
func (s *LoginTicketStore) Delete(ctx context.Context, challengeID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(challengeID)).Result()
	if err != nil {
		return false, backendErr(err)
	}
	return n > 0, nil
}

func (s *LoginTicketStore) RecordFailure(ctx context.Context, challengeID string, maxAttempts int, now time.Time) (bool, error) {
	return bumpAttempts(ctx, s.redis, s.key(challengeID), maxAttempts, now, func(data []byte) (counted, error) {
		return decodeLoginTicket(data)
	})
}
