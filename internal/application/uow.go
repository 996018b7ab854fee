package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// State is a step of a single Run.
type State int

const (
	StateIdle State = iota
	StateBegan
	StateExecuting
	StateCommitting
	StateCommitted
	StateFailed
	StateRolledBack
	// StateDone ends a run that had no transaction to commit.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBegan:
		return "began"
	case StateExecuting:
		return "executing"
	case StateCommitting:
		return "committing"
	case StateCommitted:
		return "committed"
	case StateFailed:
		return "failed"
	case StateRolledBack:
		return "rolled_back"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const defaultRollbackTimeout = 5 * time.Second

type settings struct {
	log             *zap.Logger
	rollbackTimeout time.Duration
	hook            func(State)
}

type Option func(*settings)

func WithLogger(l *zap.Logger) Option { return func(s *settings) { s.log = l } }

// WithRollbackTimeout bounds rollbacks, which run detached from the caller's cancellation.
func WithRollbackTimeout(d time.Duration) Option {
	return func(s *settings) { s.rollbackTimeout = d }
}

// WithStateHook observes every state transition of a run.
func WithStateHook(fn func(State)) Option { return func(s *settings) { s.hook = fn } }

// UnitOfWork runs an operation chain inside one transaction, or none, and
// commits once at the end. It is the only caller of Commit.
type UnitOfWork[T any] struct {
	provider TransactionProvider
	op       Operation[T]
	settings
}

func New[T any](provider TransactionProvider, op Operation[T], opts ...Option) *UnitOfWork[T] {
	u := &UnitOfWork[T]{provider: provider, op: op}
	for _, opt := range opts {
		opt(&u.settings)
	}
	if u.log == nil {
		u.log = zap.NewNop()
	}
	if u.rollbackTimeout <= 0 {
		u.rollbackTimeout = defaultRollbackTimeout
	}
	return u
}

// Run begins, executes the chain and commits. Operation errors are returned
// unchanged after rollback; a failed commit surfaces as *CommitError and a
// failed begin as *ConnectionError.
func (u *UnitOfWork[T]) Run(ctx context.Context) (T, error) {
	var zero T
	u.enter(StateIdle)
	otx, err := u.provider.Begin(ctx)
	if err != nil {
		return zero, connectionError(err)
	}
	u.enter(StateBegan)

	switch tx := otx.(type) {
	case NoTransaction:
		u.enter(StateExecuting)
		out, err := execute(ctx, u.op, tx)
		if err != nil {
			u.enter(StateFailed)
			return out, err
		}
		u.enter(StateDone)
		return out, nil
	case ActiveTransaction:
		if tx.Handle == nil {
			return zero, connectionError(fmt.Errorf("provider returned an active transaction without a handle"))
		}
		return u.runActive(ctx, tx)
	default:
		return zero, connectionError(fmt.Errorf("provider returned unsupported transaction %T", otx))
	}
}

func (u *UnitOfWork[T]) runActive(ctx context.Context, tx ActiveTransaction) (T, error) {
	var zero T
	h := tx.Handle
	if err := h.claim(); err != nil {
		u.enter(StateFailed)
		return zero, err
	}
	defer func() {
		if p := recover(); p != nil {
			u.enter(StateFailed)
			_ = u.rollback(ctx, h, nil)
			panic(p)
		}
	}()

	u.enter(StateExecuting)
	out, err := execute(ctx, u.op, tx)
	if err == nil {
		// caller gave up while the chain was running
		err = ctx.Err()
	}
	if err != nil {
		u.enter(StateFailed)
		return zero, u.rollback(ctx, h, err)
	}

	u.enter(StateCommitting)
	if err := h.commit(ctx); err != nil {
		u.enter(StateFailed)
		cerr := error(&CommitError{Err: err})
		if !h.Consumed() {
			return zero, u.rollback(ctx, h, cerr)
		}
		u.enter(StateRolledBack)
		return zero, cerr
	}
	u.enter(StateCommitted)
	return out, nil
}

func (u *UnitOfWork[T]) rollback(ctx context.Context, h *Handle, cause error) error {
	rbErr := rollbackDetached(ctx, h, u.rollbackTimeout)
	if rbErr == nil {
		u.enter(StateRolledBack)
	}
	return withRollback(cause, rbErr)
}

func (u *UnitOfWork[T]) enter(s State) {
	u.log.Debug("uow.state", zap.Stringer("state", s))
	if u.hook != nil {
		u.hook(s)
	}
}

// Do runs fn as a unit of work that produces no value.
func Do(ctx context.Context, provider TransactionProvider, fn func(ctx context.Context, tx OptionalTx) error, opts ...Option) error {
	op := OperationFunc[struct{}](func(ctx context.Context, tx OptionalTx) (struct{}, error) {
		return struct{}{}, fn(ctx, tx)
	})
	_, err := New[struct{}](provider, op, opts...).Run(ctx)
	return err
}
