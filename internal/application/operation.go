package application

import "context"

// Operation performs one unit of data access. Given an ActiveTransaction it
// must run on that transaction; given NoTransaction it uses its own
// connection. Operations never commit.
type Operation[T any] interface {
	Execute(ctx context.Context, tx OptionalTx) (T, error)
}

type OperationFunc[T any] func(ctx context.Context, tx OptionalTx) (T, error)

func (f OperationFunc[T]) Execute(ctx context.Context, tx OptionalTx) (T, error) { return f(ctx, tx) }

// Sequence runs ops in order on the same transaction and collects their
// results. The first error stops the chain and is returned as is.
func Sequence[T any](ops ...Operation[T]) Operation[[]T] {
	return OperationFunc[[]T](func(ctx context.Context, tx OptionalTx) ([]T, error) {
		out := make([]T, 0, len(ops))
		for _, op := range ops {
			v, err := op.Execute(ctx, tx)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	})
}

// Then runs first and passes its value to next, both on the same transaction.
func Then[A, B any](first Operation[A], next func(A) Operation[B]) Operation[B] {
	return OperationFunc[B](func(ctx context.Context, tx OptionalTx) (B, error) {
		a, err := first.Execute(ctx, tx)
		if err != nil {
			var zero B
			return zero, err
		}
		return next(a).Execute(ctx, tx)
	})
}

// execute runs op while holding an exclusive borrow on the active handle.
func execute[T any](ctx context.Context, op Operation[T], tx OptionalTx) (T, error) {
	if a, ok := tx.(ActiveTransaction); ok {
		if err := a.Handle.borrow(); err != nil {
			var zero T
			return zero, err
		}
		defer a.Handle.release()
	}
	return op.Execute(ctx, tx)
}
