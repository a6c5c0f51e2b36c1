// Command authcore-loadtest drives an Engine through register, login,
// refresh and verify phases and prints latency percentiles per phase.
//
// Redis comes from -redis-addr or REDIS_ADDR, falling back to an embedded
// miniredis. Users live in sqlite unless -db-driver pgx is given.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/sqlstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type options struct {
	users        int
	concurrency  int
	verifyOps    int
	redisAddr    string
	dbDriver     string
	dsn          string
	scryptN      int
	printMetrics bool
}

func parseFlags() options {
	var o options
	flag.IntVar(&o.users, "users", 2000, "accounts to register and log in")
	flag.IntVar(&o.concurrency, "concurrency", 64, "concurrent workers per phase")
	flag.IntVar(&o.verifyOps, "verify-ops", 100000, "access token verifications")
	flag.StringVar(&o.redisAddr, "redis-addr", "", "redis address; REDIS_ADDR or an embedded miniredis when empty")
	flag.StringVar(&o.dbDriver, "db-driver", sqlstore.DriverSQLite, "sql driver: sqlite or pgx")
	flag.StringVar(&o.dsn, "dsn", "", "database DSN; a temporary sqlite file when empty")
	flag.IntVar(&o.scryptN, "scrypt-n", 0, "override the scrypt cost parameter")
	flag.BoolVar(&o.printMetrics, "metrics", true, "print engine metrics after the run")
	flag.Parse()
	return o
}

func main() {
	_ = godotenv.Load()
	opts := parseFlags()

	logger, err := newLogger(logConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error("loadtest failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logger *zap.Logger) error {
	if opts.users <= 0 || opts.concurrency <= 0 || opts.verifyOps <= 0 {
		return errors.New("users, concurrency and verify-ops must be > 0")
	}

	if os.Getenv(authcore.EnvPrefix+"JWT_PRIVATE_KEY") == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return err
		}
		_ = os.Setenv(authcore.EnvPrefix+"JWT_SIGNING_METHOD", "hs256")
		_ = os.Setenv(authcore.EnvPrefix+"JWT_PRIVATE_KEY", hex.EncodeToString(key))
		logger.Warn("no signing key configured, using an ephemeral hs256 key")
	}
	cfg, err := authcore.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	if opts.scryptN > 0 {
		cfg.Password.N = opts.scryptN
	}
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	tp, shutdownTracing, err := setupTracing(ctx, "authcore-loadtest")
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	rdb, closeRedis, err := openRedis(opts.redisAddr, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	store, err := openStore(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithRefreshStore(store).
		WithLogger(logger).
		WithTracerProvider(tp).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	for _, w := range engine.SecurityReport().Warnings {
		logger.Warn("weak setting", zap.String("warning", w))
	}

	results := runPhases(ctx, engine, opts)
	for _, s := range results {
		logger.Info("phase done",
			zap.String("phase", s.name),
			zap.Int("ops", s.ops),
			zap.Int64("failures", s.failures),
			zap.Duration("p50", s.p50),
			zap.Duration("p99", s.p99),
		)
		fmt.Println(s)
	}
	if opts.printMetrics {
		fmt.Print(prometheus.New(engine).Render())
	}
	return ctx.Err()
}

func runPhases(ctx context.Context, engine *authcore.Engine, opts options) []phaseStats {
	email := func(i int) string { return fmt.Sprintf("load-%d@example.com", i) }
	const pw = "correct horse battery staple"

	sessions := make([]*authcore.Session, opts.users)

	register := runPhase("register", opts.users, opts.concurrency, func(i int) error {
		s, err := engine.Register(ctx, email(i), pw)
		sessions[i] = s
		return err
	})

	login := runPhase("login", opts.users, opts.concurrency, func(i int) error {
		res, err := engine.Login(ctx, email(i), pw)
		if err != nil {
			return err
		}
		if res.Session != nil {
			sessions[i] = res.Session
		}
		return nil
	})

	// each worker owns disjoint indexes, so sessions[i] needs no lock
	refresh := runPhase("refresh", opts.users, opts.concurrency, func(i int) error {
		if sessions[i] == nil {
			return errors.New("no session")
		}
		s, err := engine.Refresh(ctx, sessions[i].RefreshToken)
		if err != nil {
			return err
		}
		sessions[i] = s
		return nil
	})

	verify := runPhase("verify", opts.verifyOps, opts.concurrency, func(i int) error {
		s := sessions[i%len(sessions)]
		if s == nil {
			return errors.New("no session")
		}
		_, err := engine.Verify(ctx, s.AccessToken)
		return err
	})

	return []phaseStats{register, login, refresh, verify}
}

func openRedis(addr string, logger *zap.Logger) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		logger.Info("using redis", zap.String("addr", addr))
		return rdb, func() { _ = rdb.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	logger.Info("using miniredis", zap.String("addr", mr.Addr()))
	return rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}, nil
}

func openStore(ctx context.Context, opts options, logger *zap.Logger) (*sqlstore.Store, error) {
	dsn := opts.dsn
	if dsn == "" {
		if opts.dbDriver != sqlstore.DriverSQLite {
			return nil, errors.New("-dsn is required for " + opts.dbDriver)
		}
		dir, err := os.MkdirTemp("", "authcore-loadtest")
		if err != nil {
			return nil, err
		}
		dsn = filepath.Join(dir, "auth.db")
	}

	store, err := sqlstore.Open(ctx, opts.dbDriver, dsn)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	logger.Info("using sql store", zap.String("driver", opts.dbDriver))
	return store, nil
}
