package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ledger-service/internal/application"
	"ledger-service/internal/config"
	httpserver "ledger-service/internal/infrastructure/http"
	infraconfig "ledger-service/internal/infrastructure/config"
	"ledger-service/internal/infrastructure/logx"
	"ledger-service/internal/infrastructure/pg"
	redisstore "ledger-service/internal/infrastructure/redis"
	"ledger-service/internal/infrastructure/sqldb"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrMissingDBURL = errors.New("DATABASE_URL is required")

// Store is the storage backend picked by STORAGE, exposed through the
// application ports.
type Store struct {
	Accounts application.AccountRepo
	Prober   application.Prober
	Writes   application.TransactionProvider
	Reads    application.TransactionProvider
	Ping     func(ctx context.Context) error
}

func ProvideLogger() *zap.Logger { return logx.L() }

func ProvideConfig() config.Config { return config.Load() }

func ProvideStore(ctx context.Context, log *zap.Logger, cfg config.Config) (Store, func(), error) {
	if cfg.DatabaseURL == "" {
		return Store{}, func() {}, ErrMissingDBURL
	}
	switch cfg.Storage {
	case "pg":
		return providePG(ctx, log, cfg)
	case "sql":
		return provideSQL(ctx, log, cfg)
	default:
		return Store{}, func() {}, fmt.Errorf("unsupported STORAGE=%q", cfg.Storage)
	}
}

func providePG(ctx context.Context, log *zap.Logger, cfg config.Config) (Store, func(), error) {
	iso, err := pg.ParseIsolation(cfg.IsolationLevel)
	if err != nil {
		return Store{}, func() {}, err
	}
	db, err := pg.Connect(ctx, cfg.DatabaseURL, pg.PoolConfig{
		MaxConns: int32(cfg.PGMaxConns),
		MinConns: int32(cfg.PGMinConns),
	})
	if err != nil {
		return Store{}, func() {}, err
	}
	if err := pg.RunMigrations(ctx, db); err != nil {
		db.Close()
		return Store{}, func() {}, err
	}
	timeout := pg.WithStatementTimeout(infraconfig.DefaultStatementTimeout)
	writes := pg.NewTxProvider(db, pg.WithIsolation(iso), timeout)
	var reads application.TransactionProvider = pg.NewTxProvider(db, pg.WithIsolation(iso), pg.ReadOnly(), timeout)
	if cfg.ReadTx == "none" {
		reads = pg.NewTxProvider(db, pg.WithoutTransaction())
	}
	cleanup := func() {
		log.Info("closing pg")
		db.Close()
	}
	return Store{
		Accounts: pg.NewAccountRepo(db),
		Prober:   pg.NewProber(db),
		Writes:   writes,
		Reads:    reads,
		Ping:     db.Ping,
	}, cleanup, nil
}

func provideSQL(ctx context.Context, log *zap.Logger, cfg config.Config) (Store, func(), error) {
	db, err := sqldb.Open(ctx, cfg.SQLDriver, cfg.DatabaseURL)
	if err != nil {
		return Store{}, func() {}, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return Store{}, func() {}, err
	}
	var txOpts *sql.TxOptions
	if db.Dialect() == sqldb.DialectPostgres && cfg.IsolationLevel == "serializable" {
		txOpts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	writes := sqldb.NewTxProvider(db, sqldb.WithTxOptions(txOpts))
	var reads application.TransactionProvider = writes
	if cfg.ReadTx == "none" {
		reads = sqldb.NewTxProvider(db, sqldb.WithoutTransaction())
	}
	cleanup := func() {
		log.Info("closing sql db", zap.String("driver", cfg.SQLDriver))
		_ = db.Close()
	}
	return Store{
		Accounts: sqldb.NewAccountRepo(db),
		Prober:   sqldb.NewProber(db),
		Writes:   writes,
		Reads:    reads,
		Ping:     db.Ping,
	}, cleanup, nil
}

// ProvideRedisClient returns nil when idempotency is not backed by redis.
func ProvideRedisClient(cfg config.Config) (*redis.Client, func(), error) {
	if cfg.IdempotencyBackend != "redis" {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return client, func() { _ = client.Close() }, nil
}

func ProvideIdempotency(client *redis.Client, cfg config.Config) application.IdempotencyStore {
	if client == nil {
		return application.NoopIdempotency{}
	}
	return redisstore.New(client, cfg.RedisTTL)
}

func ProvideLedgerService(store Store, idem application.IdempotencyStore, log *zap.Logger, cfg config.Config) *application.LedgerService {
	return application.NewLedgerService(store.Accounts, store.Prober, store.Writes,
		application.WithReadProvider(store.Reads),
		application.WithIdempotency(idem),
		application.WithUnitOfWorkOptions(
			application.WithLogger(log),
			application.WithRollbackTimeout(cfg.RollbackTimeout),
		),
	)
}

func ProvideHTTPServer(svc *application.LedgerService, store Store, idem application.IdempotencyStore) *httpserver.Server {
	srv := httpserver.NewServer(svc)
	srv.SetReadyCheck(readyCheck(store, idem))
	return srv
}

type pinger interface {
	Ping(ctx context.Context) error
}

// readyCheck pings the store and, when it has one, the idempotency backend.
func readyCheck(store Store, idem application.IdempotencyStore) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if store.Ping != nil {
			if err := store.Ping(ctx); err != nil {
				return fmt.Errorf("store: %w", err)
			}
		}
		if p, ok := idem.(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("idempotency: %w", err)
			}
		}
		return nil
	}
}
