package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func returnOne() Operation[int64] {
	return OperationFunc[int64](func(context.Context, OptionalTx) (int64, error) { return 1, nil })
}

func recordStates() (*[]State, Option) {
	var states []State
	return &states, WithStateHook(func(s State) { states = append(states, s) })
}

func TestRun_CommitsOnceOnSuccess(t *testing.T) {
	t.Parallel()
	tx := &fakeTx{}
	p := &fakeProvider{tx: tx}
	states, hook := recordStates()

	got, err := New(p, returnOne(), hook).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), got)
	commits, rollbacks := tx.counts()
	require.Equal(t, 1, commits)
	require.Zero(t, rollbacks)
	require.Equal(t, []State{StateIdle, StateBegan, StateExecuting, StateCommitting, StateCommitted}, *states)
}

func TestRun_NoTransactionPassesThrough(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{none: true}
	states, hook := recordStates()

	var seen OptionalTx
	op := OperationFunc[int64](func(_ context.Context, tx OptionalTx) (int64, error) {
		seen = tx
		return 1, nil
	})
	got, err := New[int64](p, op, hook).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), got)
	require.IsType(t, NoTransaction{}, seen)
	require.Equal(t, []State{StateIdle, StateBegan, StateExecuting, StateDone}, *states)
}

func TestRun_NoTransactionReturnsOperationErrorAsIs(t *testing.T) {
	t.Parallel()
	op := OperationFunc[int64](func(context.Context, OptionalTx) (int64, error) { return 7, errBoom })
	got, err := New[int64](NoTxProvider{}, op).Run(context.Background())
	require.Equal(t, errBoom, err)
	require.Equal(t, int64(7), got)
}

func TestRun_OperationFailureRollsBackWithoutCommit(t *testing.T) {
	t.Parallel()
	tx := &fakeTx{}
	states, hook := recordStates()
	op := OperationFunc[int64](func(context.Context, OptionalTx) (int64, error) { return 0, errBoom })

	_, err := New[int64](&fakeProvider{tx: tx}, op, hook).Run(context.Background())
	require.Equal(t, errBoom, err, "operation error must not be wrapped")
	commits, rollbacks := tx.counts()
	require.Zero(t, commits)
	require.Equal(t, 1, rollbacks)
	require.Equal(t, StateRolledBack, (*states)[len(*states)-1])
	require.NotContains(t, *states, StateCommitting)
}

func TestRun_CommitFailureIsDistinct(t *testing.T) {
	t.Parallel()
	tx := &fakeTx{commitErr: errors.New("serialization failure")}

	got, err := New(&fakeProvider{tx: tx}, returnOne()).Run(context.Background())
	require.Error(t, err)
	require.Zero(t, got)
	require.ErrorIs(t, err, ErrCommit)
	var ce *CommitError
	require.ErrorAs(t, err, &ce)
	require.EqualError(t, ce.Err, "serialization failure")
	commits, _ := tx.counts()
	require.Equal(t, 1, commits)
}

func TestRun_RollbackFailureAfterCommitFailureIsAttached(t *testing.T) {
	t.Parallel()
	tx := &fakeTx{rollbackErr: errors.New("conn reset")}
	var h *Handle
	op := OperationFunc[int64](func(_ context.Context, otx OptionalTx) (int64, error) {
		h = otx.(ActiveTransaction).Handle
		return 1, nil
	})
	// a borrow still held at commit time makes the commit fail
	hold := WithStateHook(func(s State) {
		if s == StateCommitting {
			require.NoError(t, h.borrow())
		}
	})

	_, err := New[int64](&fakeProvider{tx: tx}, op, hold).Run(context.Background())
	require.ErrorIs(t, err, ErrCommit)
	require.ErrorIs(t, err, ErrTxInUse)
	require.ErrorIs(t, err, ErrRollback)
	require.Contains(t, err.Error(), "conn reset")
	commits, rollbacks := tx.counts()
	require.Zero(t, commits)
	require.Equal(t, 1, rollbacks)
}

func TestRun_BeginFailureRunsNothing(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{err: errors.New("pool exhausted")}
	called := false
	op := OperationFunc[int64](func(context.Context, OptionalTx) (int64, error) {
		called = true
		return 1, nil
	})

	_, err := New[int64](p, op).Run(context.Background())
	require.ErrorIs(t, err, ErrConnection)
	require.False(t, called)
}

func TestRun_ConnectionErrorNotDoubleWrapped(t *testing.T) {
	t.Parallel()
	orig := &ConnectionError{Err: errBoom}
	_, err := New(&fakeProvider{err: orig}, returnOne()).Run(context.Background())
	require.Same(t, orig, err)
}

func TestRun_RollbackFailureIsAttached(t *testing.T) {
	t.Parallel()
	tx := &fakeTx{rollbackErr: errors.New("conn reset")}
	op := OperationFunc[int64](func(context.Context, OptionalTx) (int64, error) { return 0, errBoom })

	_, err := New[int64](&fakeProvider{tx: tx}, op).Run(context.Background())
	require.ErrorIs(t, err, errBoom)
	require.ErrorIs(t, err, ErrRollback)
	require.Contains(t, err.Error(), "conn reset")
}

func TestRun_ChainCommitsExactlyOnce(t *testing.T) {
	t.Parallel()
	tx := &fakeTx{}
	ops := make([]Operation[int64], 5)
	for i := range ops {
		ops[i] = returnOne()
	}

	got, err := New(&fakeProvider{tx: tx}, Sequence(ops...)).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 5)
	commits, rollbacks := tx.counts()
	require.Equal(t, 1, commits)
	require.Zero(t, rollbacks)
}

func TestRun_LaterFailureInChainRollsBackEarlierWrites(t *testing.T) {
	t.Parallel()
	store := newMemStore(map[string]string{"a": "10"})
	credit := OperationFunc[int64](func(ctx context.Context, tx OptionalTx) (int64, error) {
		_, err := store.Adjust(ctx, tx, "a", decimalOf("5"))
		return 0, err
	})
	fail := OperationFunc[int64](func(context.Context, OptionalTx) (int64, error) { return 0, errBoom })

	_, err := New(store, Sequence[int64](credit, fail)).Run(context.Background())
	require.Equal(t, errBoom, err)
	b, _ := store.balance("a")
	require.Equal(t, "10", b.String())
	_, rollbacks := store.last.counts()
	require.Equal(t, 1, rollbacks)
}

func TestRun_OperationsSeeEarlierUncommittedWrites(t *testing.T) {
	t.Parallel()
	store := newMemStore(map[string]string{"a": "10"})
	credit := OperationFunc[string](func(ctx context.Context, tx OptionalTx) (string, error) {
		acc, err := store.Adjust(ctx, tx, "a", decimalOf("5"))
		return acc.Balance.String(), err
	})
	read := OperationFunc[string](func(ctx context.Context, tx OptionalTx) (string, error) {
		acc, err := store.Get(ctx, tx, "a")
		return acc.Balance.String(), err
	})

	got, err := New(store, Sequence[string](credit, read)).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"15", "15"}, got)
}

func TestRun_CancelledContextRollsBackDetached(t *testing.T) {
	t.Parallel()
	tx := &fakeTx{}
	ctx, cancel := context.WithCancel(context.Background())
	op := OperationFunc[int64](func(context.Context, OptionalTx) (int64, error) {
		cancel()
		return 1, nil
	})

	_, err := New[int64](&fakeProvider{tx: tx}, op).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	commits, rollbacks := tx.counts()
	require.Zero(t, commits)
	require.Equal(t, 1, rollbacks)
	require.NoError(t, tx.rollbackCtxErr, "rollback must not inherit the caller's cancellation")
}

func TestRun_PanicRollsBackAndRepanics(t *testing.T) {
	t.Parallel()
	tx := &fakeTx{}
	op := OperationFunc[int64](func(context.Context, OptionalTx) (int64, error) { panic("kaboom") })

	require.PanicsWithValue(t, "kaboom", func() {
		_, _ = New[int64](&fakeProvider{tx: tx}, op).Run(context.Background())
	})
	commits, rollbacks := tx.counts()
	require.Zero(t, commits)
	require.Equal(t, 1, rollbacks)
}

func TestRun_HandleIsExclusive(t *testing.T) {
	t.Parallel()
	tx := &fakeTx{}
	var nestedErr error
	op := OperationFunc[int64](func(ctx context.Context, otx OptionalTx) (int64, error) {
		// a nested unit of work cannot grab the handle while it is borrowed
		nested := ProviderFunc(func(context.Context) (OptionalTx, error) { return otx, nil })
		_, nestedErr = New(nested, returnOne()).Run(ctx)
		return 1, nil
	})

	_, err := New[int64](&fakeProvider{tx: tx}, op).Run(context.Background())
	require.NoError(t, err)
	require.ErrorIs(t, nestedErr, ErrTxInUse)
	commits, _ := tx.counts()
	require.Equal(t, 1, commits)
}

func TestRun_HandleUnusableAfterCommit(t *testing.T) {
	t.Parallel()
	var leaked ActiveTransaction
	op := OperationFunc[int64](func(_ context.Context, otx OptionalTx) (int64, error) {
		leaked = otx.(ActiveTransaction)
		return 1, nil
	})

	_, err := New[int64](&fakeProvider{tx: &fakeTx{}}, op).Run(context.Background())
	require.NoError(t, err)
	_, err = leaked.Handle.Unwrap()
	require.ErrorIs(t, err, ErrTxConsumed)
	require.True(t, leaked.Handle.Consumed())
}

func TestRun_ConcurrentUnitsUseSeparateHandles(t *testing.T) {
	t.Parallel()
	const n = 16
	txs := make([]*fakeTx, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		txs[i] = &fakeTx{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = New(&fakeProvider{tx: txs[i]}, Sequence(returnOne(), returnOne())).Run(context.Background())
		}(i)
	}
	wg.Wait()
	for i, tx := range txs {
		require.NoError(t, errs[i])
		commits, _ := tx.counts()
		require.Equal(t, 1, commits)
	}
}

func TestDo(t *testing.T) {
	t.Parallel()
	tx := &fakeTx{}
	err := Do(context.Background(), &fakeProvider{tx: tx}, func(context.Context, OptionalTx) error { return nil })
	require.NoError(t, err)

	err = Do(context.Background(), &fakeProvider{tx: tx}, func(context.Context, OptionalTx) error { return errBoom })
	require.Equal(t, errBoom, err)
	commits, rollbacks := tx.counts()
	require.Equal(t, 1, commits)
	require.Equal(t, 1, rollbacks)
}

func TestState_String(t *testing.T) {
	require.Equal(t, "rolled_back", StateRolledBack.String())
	require.Equal(t, "state(42)", State(42).String())
}
