package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/refresh"
)

type fakeRefreshStore struct {
	rotateErr error
	revokeErr error
	rec       *refresh.Record
	revoked   []string
}

func (s *fakeRefreshStore) Rotate(_ context.Context, id string, _, next [32]byte, issuedAt, expiresAt time.Time) (*refresh.Record, error) {
	if s.rotateErr != nil {
		return nil, s.rotateErr
	}
	s.rec = &refresh.Record{ID: id, UserID: "u1", SecretHash: next, IssuedAt: issuedAt, ExpiresAt: expiresAt}
	return s.rec, nil
}

func (s *fakeRefreshStore) Revoke(_ context.Context, id string) error {
	s.revoked = append(s.revoked, id)
	return s.revokeErr
}

func newRefreshToken(t *testing.T) (string, string) {
	t.Helper()
	id := refresh.NewID()
	secret, err := refresh.NewSecret()
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	token, err := refresh.Encode(id, secret)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return id, token
}

func refreshDeps(store RefreshStore) RefreshDeps {
	return RefreshDeps{
		Now:        time.Now,
		SessionTTL: time.Hour,
		Store:      store,
		LoadSubject: func(_ context.Context, userID string) (jwt.Subject, error) {
			return jwt.Subject{UserID: userID, Email: "a@example.com", TokenVersion: 3}, nil
		},
		IssueAccess: func(s jwt.Subject) (string, time.Time, error) {
			return "access:" + s.SessionID, time.Now().Add(time.Minute), nil
		},
		RevokeOnReuse: true,
	}
}

func TestRunRefreshSuccessKeepsSessionID(t *testing.T) {
	store := &fakeRefreshStore{}
	id, token := newRefreshToken(t)

	res := RunRefresh(context.Background(), token, refreshDeps(store))
	if res.Failure != RefreshFailureNone {
		t.Fatalf("unexpected failure %v: %v", res.Failure, res.Err)
	}
	if res.SessionID != id || res.AccessToken != "access:"+id {
		t.Fatalf("unexpected result %+v", res)
	}

	gotID, secret, err := refresh.Decode(res.RefreshToken)
	if err != nil {
		t.Fatalf("decode rotated token: %v", err)
	}
	if gotID != id {
		t.Fatalf("session id changed: %s != %s", gotID, id)
	}
	if secret.Hash() != store.rec.SecretHash {
		t.Fatal("rotated token does not match stored hash")
	}
	if res.RefreshToken == token {
		t.Fatal("refresh token was not rotated")
	}
}

func TestRunRefreshFailureMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want RefreshFailureKind
	}{
		{"not found", refresh.ErrNotFound, RefreshFailureNotFound},
		{"revoked", refresh.ErrRevoked, RefreshFailureNotFound},
		{"expired", refresh.ErrExpired, RefreshFailureExpired},
		{"reuse", refresh.ErrHashMismatch, RefreshFailureReuse},
		{"backend", errors.New("dial tcp: refused"), RefreshFailureStore},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeRefreshStore{rotateErr: tc.err}
			_, token := newRefreshToken(t)
			res := RunRefresh(context.Background(), token, refreshDeps(store))
			if res.Failure != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, res.Failure)
			}
		})
	}
}

func TestRunRefreshReuseRevokesSession(t *testing.T) {
	store := &fakeRefreshStore{rotateErr: refresh.ErrHashMismatch}
	id, token := newRefreshToken(t)

	RunRefresh(context.Background(), token, refreshDeps(store))
	if len(store.revoked) != 1 || store.revoked[0] != id {
		t.Fatalf("expected session %s revoked, got %v", id, store.revoked)
	}

	store.revoked = nil
	deps := refreshDeps(store)
	deps.RevokeOnReuse = false
	RunRefresh(context.Background(), token, deps)
	if len(store.revoked) != 0 {
		t.Fatalf("expected no revoke when disabled, got %v", store.revoked)
	}
}

func TestRunRefreshAccountGateRevokes(t *testing.T) {
	store := &fakeRefreshStore{}
	id, token := newRefreshToken(t)
	gateErr := errors.New("inactive")

	deps := refreshDeps(store)
	deps.LoadSubject = func(context.Context, string) (jwt.Subject, error) { return jwt.Subject{}, gateErr }

	res := RunRefresh(context.Background(), token, deps)
	if res.Failure != RefreshFailureAccount || !errors.Is(res.Err, gateErr) {
		t.Fatalf("expected account failure, got %v %v", res.Failure, res.Err)
	}
	if len(store.revoked) != 1 || store.revoked[0] != id {
		t.Fatalf("expected session revoked, got %v", store.revoked)
	}
}

func TestRunRefreshReportsFailedGateRevoke(t *testing.T) {
	store := &fakeRefreshStore{revokeErr: errors.New("redis down")}
	_, token := newRefreshToken(t)

	var warned []string
	deps := refreshDeps(store)
	deps.LoadSubject = func(context.Context, string) (jwt.Subject, error) {
		return jwt.Subject{}, errors.New("blocked")
	}
	deps.Warn = func(msg string, _ ...any) { warned = append(warned, msg) }

	if res := RunRefresh(context.Background(), token, deps); res.Failure != RefreshFailureAccount {
		t.Fatalf("expected account failure, got %v", res.Failure)
	}
	if len(warned) != 1 {
		t.Fatalf("expected the failed revoke to be reported once, got %v", warned)
	}
}

func TestRunRefreshMalformedToken(t *testing.T) {
	res := RunRefresh(context.Background(), "not-a-token", refreshDeps(&fakeRefreshStore{}))
	if res.Failure != RefreshFailureDecode {
		t.Fatalf("expected decode failure, got %v", res.Failure)
	}
}

func TestRunVerify(t *testing.T) {
	claims := &jwt.AccessClaims{TokenVersion: 2}
	claims.Subject = "u1"
	deps := VerifyDeps{
		ParseAccess: func(string) (*jwt.AccessClaims, error) { return claims, nil },
		CurrentTokenVersion: func(context.Context, string) (uint64, bool, error) {
			return 2, true, nil
		},
	}
	if res := RunVerify(context.Background(), "t", deps); res.Failure != VerifyFailureNone {
		t.Fatalf("expected success, got %v", res.Failure)
	}

	deps.CurrentTokenVersion = func(context.Context, string) (uint64, bool, error) { return 3, true, nil }
	if res := RunVerify(context.Background(), "t", deps); res.Failure != VerifyFailureVersion {
		t.Fatalf("expected version failure, got %v", res.Failure)
	}

	deps.CurrentTokenVersion = func(context.Context, string) (uint64, bool, error) { return 0, false, nil }
	if res := RunVerify(context.Background(), "t", deps); res.Failure != VerifyFailureUnknownUser {
		t.Fatalf("expected unknown user, got %v", res.Failure)
	}

	deps.ParseAccess = func(string) (*jwt.AccessClaims, error) { return nil, jwt.ErrExpired }
	if res := RunVerify(context.Background(), "t", deps); res.Failure != VerifyFailureParse || !errors.Is(res.Err, jwt.ErrExpired) {
		t.Fatalf("expected parse failure, got %v", res.Failure)
	}
}
