package application

import (
	"context"
	"sync/atomic"
)

// Tx is an open store transaction. Commit and Rollback each end it.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

const (
	handleIdle int32 = iota
	handleBorrowed
	handleConsumed
)

// Handle owns a Tx for the duration of one unit of work.
//
// A handle is borrowed by exactly one operation at a time and consumed
// exactly once, by commit or rollback. Store adapters reach the underlying
// transaction through Unwrap, which only succeeds while the handle is
// borrowed by a running operation.
type Handle struct {
	tx    Tx
	state atomic.Int32
	owned atomic.Bool
}

func NewHandle(tx Tx) *Handle { return &Handle{tx: tx} }

// Unwrap returns the store transaction to the operation currently holding the handle.
func (h *Handle) Unwrap() (Tx, error) {
	switch h.state.Load() {
	case handleBorrowed:
		return h.tx, nil
	case handleConsumed:
		return nil, ErrTxConsumed
	default:
		return nil, ErrTxNotBorrowed
	}
}

// Consumed reports whether the handle has been committed or rolled back.
func (h *Handle) Consumed() bool { return h.state.Load() == handleConsumed }

// claim makes the caller the single party allowed to finish the handle.
func (h *Handle) claim() error {
	if h.state.Load() == handleConsumed {
		return ErrTxConsumed
	}
	if !h.owned.CompareAndSwap(false, true) {
		return ErrTxInUse
	}
	return nil
}

func (h *Handle) borrow() error {
	if h.state.CompareAndSwap(handleIdle, handleBorrowed) {
		return nil
	}
	if h.state.Load() == handleConsumed {
		return ErrTxConsumed
	}
	return ErrTxInUse
}

func (h *Handle) release() { h.state.CompareAndSwap(handleBorrowed, handleIdle) }

// consume moves the handle to its terminal state. A handle left borrowed by a
// panicking operation can still be consumed for rollback.
func (h *Handle) consume() (Tx, error) {
	for {
		switch s := h.state.Load(); s {
		case handleConsumed:
			return nil, ErrTxConsumed
		default:
			if h.state.CompareAndSwap(s, handleConsumed) {
				return h.tx, nil
			}
		}
	}
}

func (h *Handle) commit(ctx context.Context) error {
	if h.state.Load() == handleBorrowed {
		return ErrTxInUse
	}
	tx, err := h.consume()
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (h *Handle) rollback(ctx context.Context) error {
	tx, err := h.consume()
	if err != nil {
		return err
	}
	return tx.Rollback(ctx)
}

// OptionalTx is either NoTransaction or ActiveTransaction.
// Consumers switch on the concrete type.
type OptionalTx interface {
	isOptionalTx()
}

// NoTransaction runs work without transactional guarantees.
type NoTransaction struct{}

// ActiveTransaction runs work inside the transaction owned by Handle.
type ActiveTransaction struct {
	Handle *Handle
}

func (NoTransaction) isOptionalTx()     {}
func (ActiveTransaction) isOptionalTx() {}

// Active wraps tx in a fresh handle.
func Active(tx Tx) ActiveTransaction { return ActiveTransaction{Handle: NewHandle(tx)} }

// TransactionProvider decides whether work runs inside a transaction and opens one if so.
type TransactionProvider interface {
	Begin(ctx context.Context) (OptionalTx, error)
}

type ProviderFunc func(ctx context.Context) (OptionalTx, error)

func (f ProviderFunc) Begin(ctx context.Context) (OptionalTx, error) { return f(ctx) }

// NoTxProvider never opens a transaction.
type NoTxProvider struct{}

func (NoTxProvider) Begin(context.Context) (OptionalTx, error) { return NoTransaction{}, nil }
