package sqlstore

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/refresh"
)

type sessionRow struct {
	ID         string `db:"id"`
	UserID     string `db:"user_id"`
	SecretHash string `db:"secret_hash"`
	IssuedAt   int64  `db:"issued_at"`
	ExpiresAt  int64  `db:"expires_at"`
	Revoked    int    `db:"revoked"`
}

var errCorruptSession = errors.New("sqlstore: corrupt refresh session row")

func (r *sessionRow) record() (*refresh.Record, error) {
	raw, err := hex.DecodeString(r.SecretHash)
	if err != nil || len(raw) != 32 {
		return nil, errCorruptSession
	}
	rec := &refresh.Record{
		ID:        r.ID,
		UserID:    r.UserID,
		IssuedAt:  fromMillis(r.IssuedAt),
		ExpiresAt: fromMillis(r.ExpiresAt),
		Revoked:   r.Revoked != 0,
	}
	copy(rec.SecretHash[:], raw)
	return rec, nil
}

func hashHex(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

func (s *Store) Save(ctx context.Context, r *refresh.Record) error {
	q := s.db.Rebind(`INSERT INTO refresh_sessions (id, user_id, secret_hash, issued_at, expires_at, revoked)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q, r.ID, r.UserID, hashHex(r.SecretHash),
		millis(r.IssuedAt), millis(r.ExpiresAt), boolInt(r.Revoked))
	if err != nil {
		return fmt.Errorf("insert refresh session: %w", err)
	}
	return nil
}

func (s *Store) getSession(ctx context.Context, id string) (*sessionRow, error) {
	var row sessionRow
	q := s.db.Rebind(`SELECT id, user_id, secret_hash, issued_at, expires_at, revoked
		FROM refresh_sessions WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, refresh.ErrNotFound
		}
		return nil, fmt.Errorf("select refresh session: %w", err)
	}
	return &row, nil
}

// Get returns the record for id if it is live at now. Revoked rows are kept
// until purged and report refresh.ErrRevoked.
func (s *Store) Get(ctx context.Context, id string, now time.Time) (*refresh.Record, error) {
	row, err := s.getSession(ctx, id)
	if err != nil {
		return nil, err
	}
	rec, err := row.record()
	if err != nil {
		return nil, err
	}
	if rec.Revoked {
		return nil, refresh.ErrRevoked
	}
	if !rec.ExpiresAt.After(now) {
		return nil, refresh.ErrExpired
	}
	return rec, nil
}

// Rotate swaps the secret hash with a conditional UPDATE, checking the
// current expiry against issuedAt. When the update matches nothing the row
// is read back to name the reason.
func (s *Store) Rotate(
	ctx context.Context,
	id string,
	presented, next [32]byte,
	issuedAt, expiresAt time.Time,
) (*refresh.Record, error) {
	now := millis(issuedAt)

	var userID string
	q := s.db.Rebind(`UPDATE refresh_sessions
		SET secret_hash = ?, issued_at = ?, expires_at = ?
		WHERE id = ? AND secret_hash = ? AND revoked = 0 AND expires_at > ?
		RETURNING user_id`)
	err := s.db.QueryRowxContext(ctx, q,
		hashHex(next), millis(issuedAt), millis(expiresAt),
		id, hashHex(presented), now,
	).Scan(&userID)
	if err == nil {
		return &refresh.Record{
			ID:         id,
			UserID:     userID,
			SecretHash: next,
			IssuedAt:   issuedAt,
			ExpiresAt:  expiresAt,
		}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rotate refresh session: %w", err)
	}

	row, err := s.getSession(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case row.Revoked != 0:
		return nil, refresh.ErrRevoked
	case row.ExpiresAt <= now:
		return nil, refresh.ErrExpired
	default:
		return nil, refresh.ErrHashMismatch
	}
}

// Revoke marks session id revoked. Unknown ids are not an error.
func (s *Store) Revoke(ctx context.Context, id string) error {
	q := s.db.Rebind(`UPDATE refresh_sessions SET revoked = 1 WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every live session of userID and returns how
// many it revoked.
func (s *Store) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	q := s.db.Rebind(`UPDATE refresh_sessions SET revoked = 1 WHERE user_id = ? AND revoked = 0`)
	res, err := s.db.ExecContext(ctx, q, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke user sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke user sessions: %w", err)
	}
	return int(n), nil
}

// PurgeExpired deletes sessions that expired or were revoked before cutoff
// and returns how many rows it removed.
func (s *Store) PurgeExpired(ctx context.Context, cutoff time.Time) (int, error) {
	q := s.db.Rebind(`DELETE FROM refresh_sessions WHERE expires_at <= ? OR (revoked = 1 AND issued_at <= ?)`)
	res, err := s.db.ExecContext(ctx, q, millis(cutoff), millis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge refresh sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge refresh sessions: %w", err)
	}
	return int(n), nil
}

// ActiveSessionIDs lists the session ids of userID live at now, newest first.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string, now time.Time) ([]string, error) {
	var ids []string
	q := s.db.Rebind(`SELECT id FROM refresh_sessions
		WHERE user_id = ? AND revoked = 0 AND expires_at > ? ORDER BY issued_at DESC`)
	if err := s.db.SelectContext(ctx, &ids, q, userID, millis(now)); err != nil {
		return nil, fmt.Errorf("list refresh sessions: %w", err)
	}
	return ids, nil
}
