package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
)

type userRow struct {
	ID               string         `db:"id"`
	Email            string         `db:"email"`
	PasswordHash     string         `db:"password_hash"`
	Status           int            `db:"status"`
	Role             string         `db:"role"`
	FederatedID      sql.NullString `db:"federated_id"`
	TokenVersion     int64          `db:"token_version"`
	TwoFactorSecret  string         `db:"two_factor_secret"`
	TwoFactorEnabled int            `db:"two_factor_enabled"`
	ResetCodeHash    string         `db:"reset_code_hash"`
	ResetExpiresAt   int64          `db:"reset_expires_at"`
	CreatedAt        int64          `db:"created_at"`
	UpdatedAt        int64          `db:"updated_at"`
}

const userColumns = `id, email, password_hash, status, role, federated_id, token_version,
	two_factor_secret, two_factor_enabled, reset_code_hash, reset_expires_at, created_at, updated_at`

func rowFromUser(u *authcore.User) userRow {
	return userRow{
		ID:               u.ID,
		Email:            u.Email,
		PasswordHash:     u.PasswordHash,
		Status:           int(u.Status),
		Role:             u.Role,
		FederatedID:      nullable(u.FederatedID),
		TokenVersion:     int64(u.TokenVersion),
		TwoFactorSecret:  u.TwoFactorSecret,
		TwoFactorEnabled: boolInt(u.TwoFactorEnabled),
		ResetCodeHash:    u.PasswordResetCodeHash,
		ResetExpiresAt:   millis(u.PasswordResetExpiresAt),
		CreatedAt:        millis(u.CreatedAt),
		UpdatedAt:        millis(u.UpdatedAt),
	}
}

func (r *userRow) user() *authcore.User {
	return &authcore.User{
		ID:                     r.ID,
		Email:                  r.Email,
		PasswordHash:           r.PasswordHash,
		Status:                 authcore.AccountStatus(r.Status),
		Role:                   r.Role,
		FederatedID:            r.FederatedID.String,
		TokenVersion:           uint64(r.TokenVersion),
		TwoFactorSecret:        r.TwoFactorSecret,
		TwoFactorEnabled:       r.TwoFactorEnabled != 0,
		PasswordResetCodeHash:  r.ResetCodeHash,
		PasswordResetExpiresAt: fromMillis(r.ResetExpiresAt),
		CreatedAt:              fromMillis(r.CreatedAt),
		UpdatedAt:              fromMillis(r.UpdatedAt),
	}
}

func (s *Store) findUser(ctx context.Context, where string, arg any) (*authcore.User, error) {
	var row userRow
	q := s.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + where + ` = ?`)
	if err := s.db.GetContext(ctx, &row, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	return row.user(), nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*authcore.User, error) {
	return s.findUser(ctx, "email", email)
}

func (s *Store) FindByID(ctx context.Context, id string) (*authcore.User, error) {
	return s.findUser(ctx, "id", id)
}

func (s *Store) FindByFederatedID(ctx context.Context, federatedID string) (*authcore.User, error) {
	if federatedID == "" {
		return nil, nil
	}
	return s.findUser(ctx, "federated_id", federatedID)
}

// Create inserts u. A taken email reports authcore.ErrEmailInUse and a
// taken federated id authcore.ErrFederatedIdentityExists.
func (s *Store) Create(ctx context.Context, u *authcore.User) error {
	row := rowFromUser(u)
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO users (`+userColumns+`) VALUES (
		:id, :email, :password_hash, :status, :role, :federated_id, :token_version,
		:two_factor_secret, :two_factor_enabled, :reset_code_hash, :reset_expires_at, :created_at, :updated_at)`, row)
	if err == nil {
		return nil
	}
	if conflict := s.uniqueConflict(ctx, u.ID, u.Email, u.FederatedID); conflict != nil {
		return conflict
	}
	return fmt.Errorf("insert user: %w", err)
}

// uniqueConflict explains a failed write by looking for the row that holds
// the contested email or federated id. Driver error codes differ between
// databases; the lookup does not.
func (s *Store) uniqueConflict(ctx context.Context, id, email, federatedID string) error {
	if email != "" {
		if other, err := s.FindByEmail(ctx, email); err == nil && other != nil && other.ID != id {
			return authcore.ErrEmailInUse
		}
	}
	if federatedID != "" {
		if other, err := s.FindByFederatedID(ctx, federatedID); err == nil && other != nil && other.ID != id {
			return authcore.ErrFederatedIdentityExists
		}
	}
	return nil
}

// UpdateFields writes the non-nil fields of patch.
func (s *Store) UpdateFields(ctx context.Context, id string, patch authcore.UserPatch) error {
	sets := make([]string, 0, 8)
	args := make([]any, 0, 9)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if patch.PasswordHash != nil {
		add("password_hash", *patch.PasswordHash)
	}
	if patch.Status != nil {
		add("status", int(*patch.Status))
	}
	if patch.FederatedID != nil {
		add("federated_id", nullable(*patch.FederatedID))
	}
	if patch.TwoFactorSecret != nil {
		add("two_factor_secret", *patch.TwoFactorSecret)
	}
	if patch.TwoFactorEnabled != nil {
		add("two_factor_enabled", boolInt(*patch.TwoFactorEnabled))
	}
	if patch.PasswordResetCodeHash != nil {
		add("reset_code_hash", *patch.PasswordResetCodeHash)
	}
	if patch.PasswordResetExpiresAt != nil {
		add("reset_expires_at", millis(*patch.PasswordResetExpiresAt))
	}
	if len(sets) == 0 {
		return nil
	}
	add("updated_at", millis(time.Now()))
	args = append(args, id)

	q := s.db.Rebind(`UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		if patch.FederatedID != nil {
			if conflict := s.uniqueConflict(ctx, id, "", *patch.FederatedID); conflict != nil {
				return conflict
			}
		}
		return fmt.Errorf("update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

func (s *Store) IncrementTokenVersion(ctx context.Context, id string) (uint64, error) {
	var v int64
	q := s.db.Rebind(`UPDATE users SET token_version = token_version + 1, updated_at = ? WHERE id = ? RETURNING token_version`)
	if err := s.db.QueryRowxContext(ctx, q, millis(time.Now()), id).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, authcore.ErrUserNotFound
		}
		return 0, fmt.Errorf("increment token version: %w", err)
	}
	return uint64(v), nil
}

// ConsumeResetCode clears the reset code in the same statement that checks
// it, so one caller wins.
func (s *Store) ConsumeResetCode(ctx context.Context, id, codeHash string, now time.Time) (bool, error) {
	if codeHash == "" {
		return false, nil
	}
	q := s.db.Rebind(`UPDATE users SET reset_code_hash = '', reset_expires_at = 0, updated_at = ?
		WHERE id = ? AND reset_code_hash = ? AND reset_expires_at > ?`)
	res, err := s.db.ExecContext(ctx, q, millis(now), id, codeHash, millis(now))
	if err != nil {
		return false, fmt.Errorf("consume reset code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume reset code: %w", err)
	}
	return n == 1, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
