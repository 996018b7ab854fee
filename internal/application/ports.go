package application

import (
	"context"
	"time"

	"ledger-service/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountRepo is implemented by every store. Each call runs on tx when it is
// an ActiveTransaction and on a pooled connection otherwise.
type AccountRepo interface {
	Create(ctx context.Context, tx OptionalTx, a domain.Account) error
	Get(ctx context.Context, tx OptionalTx, id string) (domain.Account, error)
	// Adjust adds delta to the balance and returns the updated account.
	// A result below zero fails with domain.ErrInsufficientFunds.
	Adjust(ctx context.Context, tx OptionalTx, id string, delta decimal.Decimal) (domain.Account, error)
}

// Prober runs the store's trivial liveness query.
type Prober interface {
	SelectOne(ctx context.Context, tx OptionalTx) (int64, error)
}

type Clock interface{ Now() time.Time }

type IDGen interface{ New() uuid.UUID }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type defaultIDGen struct{}

func (defaultIDGen) New() uuid.UUID { return uuid.New() }
