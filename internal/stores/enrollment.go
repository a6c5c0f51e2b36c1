package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Enrollment is a TOTP secret waiting for its first valid code.
type Enrollment struct {
	Secret    string
	ExpiresAt int64
	Attempts  uint16
}

func (e *Enrollment) incrementAttempts() uint16 { e.Attempts++; return e.Attempts }
func (e *Enrollment) expiry() time.Time         { return time.Unix(e.ExpiresAt, 0) }

func (e *Enrollment) encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(recordVersion1)
	if err := binary.Write(&buf, binary.BigEndian, e.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, e.ExpiresAt); err != nil {
		return nil, err
	}
	if err := writeString(&buf, e.Secret); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEnrollment(data []byte) (*Enrollment, error) {
	r, err := readHeader(data)
	if err != nil {
		return nil, err
	}
	e := &Enrollment{}
	if err := readUint(r, &e.Attempts); err != nil {
		return nil, err
	}
	if err := readUint(r, &e.ExpiresAt); err != nil {
		return nil, err
	}
	if e.Secret, err = readString(r); err != nil {
		return nil, err
	}
	return e, nil
}

// EnrollmentStore keeps one pending enrollment per user. A new Save
// replaces any previous pending secret.
type EnrollmentStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewEnrollmentStore(rdb redis.UniversalClient, prefix string) *EnrollmentStore {
	if prefix == "" {
		prefix = "tfe"
	}
	return &EnrollmentStore{redis: rdb, prefix: prefix}
}

func (s *EnrollmentStore) key(userID string) string {
	return s.prefix + ":" + userID
}

func (s *EnrollmentStore) Save(ctx context.Context, userID string, e *Enrollment, ttl time.Duration) error {
	encoded, err := e.encode()
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(userID), encoded, ttl).Err(); err != nil {
		return backendErr(err)
	}
	return nil
}

// Get returns the pending enrollment, or ErrExpired when it lapsed before now.
func (s *EnrollmentStore) Get(ctx context.Context, userID string, now time.Time) (*Enrollment, error) {
	data, err := s.redis.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, backendErr(err)
	}
	e, err := decodeEnrollment(data)
	if err != nil {
		return nil, err
	}
	if now.Unix() > e.ExpiresAt {
		_ = s.redis.Del(ctx, s.key(userID)).Err()
		return nil, ErrExpired
	}
	return e, nil
}

// Complete removes the pending record if it still holds secret. It reports
// false when another caller completed it first or a new Save replaced it.
func (s *EnrollmentStore) Complete(ctx context.Context, userID, secret string) (bool, error) {
	key := s.key(userID)
	var won bool
	finish := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}
		pending, err := decodeEnrollment(raw)
		if err != nil {
			return err
		}
		if pending.Secret != secret {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		won = err == nil
		return err
	}

	for range maxWatchRetries {
		err := s.redis.Watch(ctx, finish, key)
		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case err == nil:
			return won, nil
		case errors.Is(err, redis.Nil):
			return false, nil
		case errors.Is(err, ErrCorrupt):
			return false, err
		default:
			return false, backendErr(err)
		}
	}
	return false, nil
}

// RecordFailure counts a wrong code and drops the enrollment once
// maxAttempts is reached, reporting true in that case.
func (s *EnrollmentStore) RecordFailure(ctx context.Context, userID string, maxAttempts int, now time.Time) (bool, error) {
	return bumpAttempts(ctx, s.redis, s.key(userID), maxAttempts, now, func(data []byte) (counted, error) {
		return decodeEnrollment(data)
	})
}
