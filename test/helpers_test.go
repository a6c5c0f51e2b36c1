//go:build integration

package test

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/sqlstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testKey = "0123456789abcdef0123456789abcdef"

// refreshBackends lists where refresh sessions can live.
var refreshBackends = []string{"redis", "sql"}

type stack struct {
	engine   *authcore.Engine
	store    *sqlstore.Store
	redis    *miniredis.Miniredis
	notifier *outbox
}

type outbox struct {
	mu   sync.Mutex
	sent []authcore.Notification
}

func (o *outbox) Notify(_ context.Context, n authcore.Notification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, n)
	return nil
}

func (o *outbox) last(t *testing.T, kind authcore.NotificationKind) authcore.Notification {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].Kind == kind {
			return o.sent[i]
		}
	}
	t.Fatalf("no %s notification sent", kind)
	return authcore.Notification{}
}

// newStack wires an Engine to sqlite and miniredis. backend selects the
// refresh session store.
func newStack(t *testing.T, backend string, mutate func(*authcore.Config)) *stack {
	t.Helper()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := authcore.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = testKey
	cfg.Password.N = 1024
	cfg.Password.MaxConcurrent = 4
	if mutate != nil {
		mutate(&cfg)
	}

	n := &outbox{}
	b := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithNotifier(n)
	if backend == "sql" {
		b = b.WithRefreshStore(store)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &stack{engine: engine, store: store, redis: mr, notifier: n}
}

func (s *stack) register(t *testing.T, email string) *authcore.Session {
	t.Helper()
	sess, err := s.engine.Register(context.Background(), email, "correct-horse")
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return sess
}

// totpNow computes the current RFC 6238 code for a base32 secret.
func totpNow(t *testing.T, secret string) string {
	t.Helper()
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secret))
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(time.Now().Unix()/30))
	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)
	off := sum[len(sum)-1] & 0x0f
	v := binary.BigEndian.Uint32(sum[off:off+4]) & 0x7fffffff
	return fmt.Sprintf("%06d", v%1000000)
}
