package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/refresh"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureNextSecret
	RefreshFailureNotFound
	RefreshFailureExpired
	RefreshFailureReuse
	RefreshFailureStore
	RefreshFailureAccount
	RefreshFailureIssueAccess
	RefreshFailureEncode
)

// RefreshResult carries either the rotated token pair or failure metadata.
type RefreshResult struct {
	Failure         RefreshFailureKind
	Err             error
	SessionID       string
	UserID          string
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
	Record          *refresh.Record
}

// RefreshStore is the subset of the refresh session store the flow needs.
type RefreshStore interface {
	Rotate(ctx context.Context, id string, presented, next [32]byte, issuedAt, expiresAt time.Time) (*refresh.Record, error)
	Revoke(ctx context.Context, id string) error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Now        func() time.Time
	SessionTTL time.Duration
	Store      RefreshStore
	// LoadSubject re-reads the session owner and applies the account gate.
	LoadSubject   func(ctx context.Context, userID string) (jwt.Subject, error)
	IssueAccess   func(jwt.Subject) (string, time.Time, error)
	RevokeOnReuse bool
	Warn          func(string, ...any)
}

// RunRefresh redeems refreshToken, rotating its secret in place and issuing a
// new access token for the same session.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	sessionID, presented, err := refresh.Decode(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}

	next, err := refresh.NewSecret()
	if err != nil {
		return RefreshResult{Failure: RefreshFailureNextSecret, Err: err, SessionID: sessionID}
	}

	now := deps.Now()
	rec, err := deps.Store.Rotate(ctx, sessionID, presented.Hash(), next.Hash(), now, now.Add(deps.SessionTTL))
	if err != nil {
		switch {
		case errors.Is(err, refresh.ErrHashMismatch):
			if deps.RevokeOnReuse {
				if revokeErr := deps.Store.Revoke(ctx, sessionID); revokeErr != nil && deps.Warn != nil {
					deps.Warn("authcore: revoke after refresh reuse failed", "session_id", sessionID, "error", revokeErr)
				}
			}
			return RefreshResult{Failure: RefreshFailureReuse, Err: err, SessionID: sessionID}
		case errors.Is(err, refresh.ErrNotFound), errors.Is(err, refresh.ErrRevoked):
			return RefreshResult{Failure: RefreshFailureNotFound, Err: err, SessionID: sessionID}
		case errors.Is(err, refresh.ErrExpired):
			return RefreshResult{Failure: RefreshFailureExpired, Err: err, SessionID: sessionID}
		default:
			return RefreshResult{Failure: RefreshFailureStore, Err: err, SessionID: sessionID}
		}
	}

	subject, err := deps.LoadSubject(ctx, rec.UserID)
	if err != nil {
		if revokeErr := deps.Store.Revoke(ctx, rec.ID); revokeErr != nil && deps.Warn != nil {
			deps.Warn("authcore: revoke after account check failed", "session_id", rec.ID, "error", revokeErr)
		}
		return RefreshResult{
			Failure:   RefreshFailureAccount,
			Err:       err,
			SessionID: rec.ID,
			UserID:    rec.UserID,
			Record:    rec,
		}
	}
	subject.SessionID = rec.ID

	access, accessExp, err := deps.IssueAccess(subject)
	if err != nil {
		return RefreshResult{
			Failure:   RefreshFailureIssueAccess,
			Err:       err,
			SessionID: rec.ID,
			UserID:    rec.UserID,
			Record:    rec,
		}
	}

	token, err := refresh.Encode(rec.ID, next)
	if err != nil {
		return RefreshResult{
			Failure:   RefreshFailureEncode,
			Err:       err,
			SessionID: rec.ID,
			UserID:    rec.UserID,
			Record:    rec,
		}
	}

	return RefreshResult{
		SessionID:       rec.ID,
		UserID:          rec.UserID,
		AccessToken:     access,
		AccessExpiresAt: accessExp,
		RefreshToken:    token,
		Record:          rec,
	}
}
