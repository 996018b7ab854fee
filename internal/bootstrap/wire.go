//go:build wireinject

package bootstrap

import (
	"context"

	"ledger-service/internal/application"
	httpserver "ledger-service/internal/infrastructure/http"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideConfig,
	ProvideStore,
	ProvideRedisClient,
	ProvideIdempotency,
	ProvideLedgerService,
)

// API injector: builds *httpserver.Server + Cleanup
func InitAPI(ctx context.Context) (*httpserver.Server, func(), error) {
	wire.Build(
		infraSet,
		ProvideHTTPServer,
	)
	return nil, nil, nil
}

// Service injector for the CLI: builds *application.LedgerService + Cleanup
func InitService(ctx context.Context) (*application.LedgerService, func(), error) {
	wire.Build(infraSet)
	return nil, nil, nil
}
