package bootstrap

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"ledger-service/internal/application"
	"ledger-service/internal/config"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProvideStore_SQLite(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{
		Storage:     "sql",
		SQLDriver:   "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "ledger.db"),
		ReadTx:      "none",
	}
	store, cleanup, err := ProvideStore(ctx, zap.NewNop(), cfg)
	require.NoError(t, err)
	t.Cleanup(cleanup)
	require.NoError(t, store.Ping(ctx))

	otx, err := store.Reads.Begin(ctx)
	require.NoError(t, err)
	require.IsType(t, application.NoTransaction{}, otx)

	svc := ProvideLedgerService(store, ProvideIdempotency(nil, cfg), zap.NewNop(), cfg)
	_, err = svc.OpenAccount(ctx, "alice", decimal.NewFromInt(3))
	require.NoError(t, err)
	acc, err := svc.Balance(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "3", acc.Balance.String())
}

func TestProvideStore_Errors(t *testing.T) {
	_, _, err := ProvideStore(context.Background(), zap.NewNop(), config.Config{Storage: "pg"})
	require.ErrorIs(t, err, ErrMissingDBURL)

	_, _, err = ProvideStore(context.Background(), zap.NewNop(), config.Config{Storage: "mongo", DatabaseURL: "x"})
	require.Error(t, err)
}

func TestProvideIdempotency_DisabledRedis(t *testing.T) {
	client, cleanup, err := ProvideRedisClient(config.Config{IdempotencyBackend: "none"})
	require.NoError(t, err)
	defer cleanup()
	require.Nil(t, client)
	require.IsType(t, application.NoopIdempotency{}, ProvideIdempotency(client, config.Config{}))
}

func TestReadyCheck_IncludesRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := config.Config{IdempotencyBackend: "redis", RedisAddr: mr.Addr()}
	client, cleanup, err := ProvideRedisClient(cfg)
	require.NoError(t, err)
	defer cleanup()

	storeUp := Store{Ping: func(context.Context) error { return nil }}
	check := readyCheck(storeUp, ProvideIdempotency(client, cfg))
	require.NoError(t, check(context.Background()))

	mr.Close()
	require.ErrorContains(t, check(context.Background()), "idempotency")

	storeDown := Store{Ping: func(context.Context) error { return errors.New("db down") }}
	require.ErrorContains(t, readyCheck(storeDown, application.NoopIdempotency{})(context.Background()), "store")
}
