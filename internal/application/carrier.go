package application

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Carried bundles an operation outcome with the transaction it ran on, so the
// transaction can be handed to the next step or finished by AndThenCommit.
//
// Tx is the same ActiveTransaction that went in, or NoTransaction when the
// incoming transaction was NoTransaction or has since been consumed.
type Carried[T any] struct {
	Value T
	Err   error
	Tx    OptionalTx
}

// CarrierFunc is a step that takes a transaction and hands it back.
type CarrierFunc[A, B any] func(ctx context.Context, in A, tx OptionalTx) Carried[B]

// Carry runs op on tx and hands tx back.
func Carry[T any](ctx context.Context, op Operation[T], tx OptionalTx) Carried[T] {
	v, err := execute(ctx, op, tx)
	return Carried[T]{Value: v, Err: err, Tx: handBack(tx)}
}

// Lift turns an operation constructor into a carrier step.
func Lift[A, B any](next func(A) Operation[B]) CarrierFunc[A, B] {
	return func(ctx context.Context, in A, tx OptionalTx) Carried[B] {
		return Carry(ctx, next(in), tx)
	}
}

// Bind feeds a successful carrier into next. A failed carrier passes through
// with its transaction so it can still be rolled back.
func Bind[A, B any](ctx context.Context, c Carried[A], next CarrierFunc[A, B]) Carried[B] {
	if c.Err != nil {
		return Carried[B]{Err: c.Err, Tx: handBack(c.Tx)}
	}
	out := next(ctx, c.Value, c.Tx)
	if !handedBack(c.Tx, out.Tx) {
		return Carried[B]{Err: errors.Join(out.Err, ErrCarrierMismatch), Tx: handBack(c.Tx)}
	}
	return out
}

// AndThenCommit commits the carried transaction if the chain succeeded and
// rolls it back otherwise. Without a transaction the outcome is returned as is.
func (c Carried[T]) AndThenCommit(ctx context.Context) (T, error) {
	var zero T
	tx, ok := c.Tx.(ActiveTransaction)
	if !ok || tx.Handle == nil || tx.Handle.Consumed() {
		return c.Value, c.Err
	}
	err := c.Err
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return zero, withRollback(err, rollbackDetached(ctx, tx.Handle, defaultRollbackTimeout))
	}
	if err := tx.Handle.commit(ctx); err != nil {
		return zero, &CommitError{Err: err}
	}
	return c.Value, nil
}

// RunCarried begins a transaction, threads it through chain and commits once.
// The chain must hand back the transaction it was given; anything else is
// ErrCarrierMismatch and the transaction is rolled back. An unfinished
// transaction is rolled back on every exit, panics included.
func RunCarried[T any](ctx context.Context, provider TransactionProvider, chain func(ctx context.Context, tx OptionalTx) Carried[T]) (T, error) {
	var zero T
	otx, err := provider.Begin(ctx)
	if err != nil {
		return zero, connectionError(err)
	}
	own, active := otx.(ActiveTransaction)
	if active {
		if own.Handle == nil {
			return zero, connectionError(fmt.Errorf("provider returned an active transaction without a handle"))
		}
		if err := own.Handle.claim(); err != nil {
			return zero, err
		}
		defer func() {
			if !own.Handle.Consumed() {
				_ = rollbackDetached(ctx, own.Handle, defaultRollbackTimeout)
			}
		}()
	}

	c := chain(ctx, otx)
	if !handedBack(otx, c.Tx) {
		err := errors.Join(c.Err, ErrCarrierMismatch)
		if active && !own.Handle.Consumed() {
			err = withRollback(err, rollbackDetached(ctx, own.Handle, defaultRollbackTimeout))
		}
		return zero, err
	}
	return Carried[T]{Value: c.Value, Err: c.Err, Tx: otx}.AndThenCommit(ctx)
}

func handBack(tx OptionalTx) OptionalTx {
	if a, ok := tx.(ActiveTransaction); ok && (a.Handle == nil || a.Handle.Consumed()) {
		return NoTransaction{}
	}
	if tx == nil {
		return NoTransaction{}
	}
	return tx
}

// handedBack reports whether out is a legal hand-back of in.
func handedBack(in, out OptionalTx) bool {
	switch in := in.(type) {
	case ActiveTransaction:
		if in.Handle == nil {
			return false
		}
		switch out := out.(type) {
		case ActiveTransaction:
			return out.Handle == in.Handle && !in.Handle.Consumed()
		case NoTransaction:
			return in.Handle.Consumed()
		default:
			return false
		}
	default:
		_, ok := out.(NoTransaction)
		return ok || out == nil
	}
}

func rollbackDetached(ctx context.Context, h *Handle, timeout time.Duration) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return h.rollback(rctx)
}
