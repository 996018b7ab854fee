package application

import (
	"context"
	"errors"

	"ledger-service/internal/domain"

	"github.com/shopspring/decimal"
)

type LedgerService struct {
	accounts AccountRepo
	prober   Prober
	writes   TransactionProvider
	reads    TransactionProvider
	idem     IdempotencyStore
	clock    Clock
	idgen    IDGen
	uowOpts  []Option
}

type ServiceOption func(*LedgerService)

func WithClock(c Clock) ServiceOption { return func(s *LedgerService) { s.clock = c } }
func WithIDGen(g IDGen) ServiceOption { return func(s *LedgerService) { s.idgen = g } }

// WithReadProvider sets the provider used by read-only use cases.
// It may answer NoTransaction.
func WithReadProvider(p TransactionProvider) ServiceOption {
	return func(s *LedgerService) { s.reads = p }
}

func WithIdempotency(store IdempotencyStore) ServiceOption {
	return func(s *LedgerService) { s.idem = store }
}

// WithUnitOfWorkOptions is applied to every unit of work the service runs.
func WithUnitOfWorkOptions(opts ...Option) ServiceOption {
	return func(s *LedgerService) { s.uowOpts = append(s.uowOpts, opts...) }
}

func NewLedgerService(accounts AccountRepo, prober Prober, writes TransactionProvider, opts ...ServiceOption) *LedgerService {
	s := &LedgerService{
		accounts: accounts,
		prober:   prober,
		writes:   writes,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reads == nil {
		s.reads = s.writes
	}
	if s.idem == nil {
		s.idem = NoopIdempotency{}
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.idgen == nil {
		s.idgen = defaultIDGen{}
	}
	return s
}

// Probe runs the select-one query twice on one transaction and commits.
func (s *LedgerService) Probe(ctx context.Context) (int64, error) {
	selectOne := OperationFunc[int64](s.prober.SelectOne)
	op := Then[int64, int64](selectOne, func(int64) Operation[int64] { return selectOne })
	return New(s.writes, op, s.uowOpts...).Run(ctx)
}

func (s *LedgerService) OpenAccount(ctx context.Context, id string, initial decimal.Decimal) (domain.Account, error) {
	if !domain.ValidateAccountID(id) {
		return domain.Account{}, domain.ErrInvalidAccountID
	}
	if initial.IsNegative() || !initial.Equal(initial.Truncate(2)) {
		return domain.Account{}, domain.ErrInvalidAmount
	}
	acc := domain.Account{ID: id, Balance: initial}
	err := Do(ctx, s.writes, func(ctx context.Context, tx OptionalTx) error {
		return s.accounts.Create(ctx, tx, acc)
	}, s.uowOpts...)
	if err != nil {
		return domain.Account{}, err
	}
	return acc, nil
}

func (s *LedgerService) Balance(ctx context.Context, id string) (domain.Account, error) {
	op := OperationFunc[domain.Account](func(ctx context.Context, tx OptionalTx) (domain.Account, error) {
		return s.accounts.Get(ctx, tx, id)
	})
	return New[domain.Account](s.reads, op, s.uowOpts...).Run(ctx)
}

// Transfer debits from and credits to inside one unit of work. Rows are
// touched in account id order so opposite transfers lock in the same order.
func (s *LedgerService) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (domain.Transfer, error) {
	if !domain.ValidateAccountID(from) || !domain.ValidateAccountID(to) {
		return domain.Transfer{}, domain.ErrInvalidAccountID
	}
	if from == to {
		return domain.Transfer{}, domain.ErrSameAccount
	}
	if !domain.ValidateAmount(amount) {
		return domain.Transfer{}, domain.ErrInvalidAmount
	}

	first, second := s.adjust(from, amount.Neg()), s.adjust(to, amount)
	if to < from {
		first, second = second, first
	}
	op := Then[domain.Account, domain.Transfer](first, func(a domain.Account) Operation[domain.Transfer] {
		return OperationFunc[domain.Transfer](func(ctx context.Context, tx OptionalTx) (domain.Transfer, error) {
			b, err := second.Execute(ctx, tx)
			if err != nil {
				return domain.Transfer{}, err
			}
			src, dst := a, b
			if to < from {
				src, dst = b, a
			}
			return domain.Transfer{
				ID:        s.idgen.New(),
				From:      src,
				To:        dst,
				Amount:    amount,
				CreatedAt: s.clock.Now(),
			}, nil
		})
	})
	return New(s.writes, op, s.uowOpts...).Run(ctx)
}

// TransferOnce is Transfer guarded by an idempotency key. A repeated key
// fails with domain.ErrConflict without touching the store. The key is
// released when the transfer definitely did not happen; after a commit
// error it stays reserved because the outcome is unknown.
func (s *LedgerService) TransferOnce(ctx context.Context, key string, from, to string, amount decimal.Decimal) (domain.Transfer, error) {
	if key == "" {
		return s.Transfer(ctx, from, to, amount)
	}
	key = "transfer:" + key
	ok, err := s.idem.TryReserve(ctx, key)
	if err != nil {
		return domain.Transfer{}, err
	}
	if !ok {
		return domain.Transfer{}, domain.ErrConflict
	}
	tr, err := s.Transfer(ctx, from, to, amount)
	if err != nil && !errors.Is(err, ErrCommit) {
		if relErr := s.idem.Release(context.WithoutCancel(ctx), key); relErr != nil {
			return domain.Transfer{}, errors.Join(err, relErr)
		}
	}
	return tr, err
}

func (s *LedgerService) adjust(id string, delta decimal.Decimal) Operation[domain.Account] {
	return OperationFunc[domain.Account](func(ctx context.Context, tx OptionalTx) (domain.Account, error) {
		return s.accounts.Adjust(ctx, tx, id, delta)
	})
}
