package application

import (
	"context"
	"errors"
	"sync"

	"ledger-service/internal/domain"

	"github.com/shopspring/decimal"
)

var errBoom = errors.New("boom")

func decimalOf(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeTx struct {
	mu          sync.Mutex
	commits     int
	rollbacks   int
	commitErr   error
	rollbackErr error
	// ctx.Err() seen by the last Rollback call
	rollbackCtxErr error

	store  *memStore
	writes map[string]decimal.Decimal
}

func (f *fakeTx) Commit(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	if f.commitErr != nil {
		return f.commitErr
	}
	if f.store != nil {
		f.store.apply(f.writes)
	}
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollbacks++
	f.rollbackCtxErr = ctx.Err()
	f.writes = nil
	return f.rollbackErr
}

func (f *fakeTx) counts() (commits, rollbacks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits, f.rollbacks
}

type fakeProvider struct {
	tx     *fakeTx
	none   bool
	err    error
	begins int
}

func (p *fakeProvider) Begin(context.Context) (OptionalTx, error) {
	p.begins++
	if p.err != nil {
		return nil, p.err
	}
	if p.none {
		return NoTransaction{}, nil
	}
	return Active(p.tx), nil
}

// memStore is an account store whose transactions buffer writes until commit.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]decimal.Decimal
	last     *fakeTx
	// failAdjust makes Adjust fail for the given account id.
	failAdjust string
}

func newMemStore(balances map[string]string) *memStore {
	s := &memStore{accounts: map[string]decimal.Decimal{}}
	for id, b := range balances {
		s.accounts[id] = decimal.RequireFromString(b)
	}
	return s
}

func (s *memStore) Begin(context.Context) (OptionalTx, error) {
	tx := &fakeTx{store: s, writes: map[string]decimal.Decimal{}}
	s.mu.Lock()
	s.last = tx
	s.mu.Unlock()
	return Active(tx), nil
}

func (s *memStore) apply(writes map[string]decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range writes {
		s.accounts[id] = b
	}
}

func (s *memStore) balance(id string) (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.accounts[id]
	return b, ok
}

func (s *memStore) lookup(tx OptionalTx, id string) (decimal.Decimal, *fakeTx, bool, error) {
	var ftx *fakeTx
	switch t := tx.(type) {
	case ActiveTransaction:
		raw, err := t.Handle.Unwrap()
		if err != nil {
			return decimal.Zero, nil, false, err
		}
		ftx = raw.(*fakeTx)
		if b, ok := ftx.writes[id]; ok {
			return b, ftx, true, nil
		}
	case NoTransaction:
	default:
		return decimal.Zero, nil, false, errors.New("unexpected transaction variant")
	}
	b, ok := s.balance(id)
	return b, ftx, ok, nil
}

func (s *memStore) Create(_ context.Context, tx OptionalTx, a domain.Account) error {
	_, ftx, exists, err := s.lookup(tx, a.ID)
	if err != nil {
		return err
	}
	if exists {
		return domain.ErrConflict
	}
	if ftx != nil {
		ftx.writes[a.ID] = a.Balance
		return nil
	}
	s.apply(map[string]decimal.Decimal{a.ID: a.Balance})
	return nil
}

func (s *memStore) Get(_ context.Context, tx OptionalTx, id string) (domain.Account, error) {
	b, _, ok, err := s.lookup(tx, id)
	if err != nil {
		return domain.Account{}, err
	}
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return domain.Account{ID: id, Balance: b}, nil
}

func (s *memStore) Adjust(_ context.Context, tx OptionalTx, id string, delta decimal.Decimal) (domain.Account, error) {
	if id == s.failAdjust {
		return domain.Account{}, errBoom
	}
	b, ftx, ok, err := s.lookup(tx, id)
	if err != nil {
		return domain.Account{}, err
	}
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	next := b.Add(delta)
	if next.IsNegative() {
		return domain.Account{}, domain.ErrInsufficientFunds
	}
	if ftx != nil {
		ftx.writes[id] = next
	} else {
		s.apply(map[string]decimal.Decimal{id: next})
	}
	return domain.Account{ID: id, Balance: next}, nil
}

type fakeProber struct {
	calls int
	err   error
}

func (p *fakeProber) SelectOne(_ context.Context, tx OptionalTx) (int64, error) {
	p.calls++
	if a, ok := tx.(ActiveTransaction); ok {
		if _, err := a.Handle.Unwrap(); err != nil {
			return 0, err
		}
	}
	if p.err != nil {
		return 0, p.err
	}
	return 1, nil
}

type fakeIdem struct {
	seen     map[string]bool
	released []string
}

func (f *fakeIdem) Release(_ context.Context, k string) error {
	delete(f.seen, k)
	f.released = append(f.released, k)
	return nil
}

func (f *fakeIdem) TryReserve(_ context.Context, k string) (bool, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[k] {
		return false, nil
	}
	f.seen[k] = true
	return true, nil
}
