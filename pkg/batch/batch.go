// Package batch runs work in consecutive groups of bounded size.
package batch

import (
	"context"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// DefaultSize is the group size used when callers have no better value.
const DefaultSize = 15

// Func processes a single item.
type Func[T, R any] func(ctx context.Context, item T) (R, error)

type options struct {
	groupDone func(done, total int)
}

type Option func(*options)

// WithGroupDone registers fn to be called after each group settles with the
// number of items processed so far.
func WithGroupDone(fn func(done, total int)) Option {
	return func(o *options) {
		o.groupDone = fn
	}
}

// Run splits items into consecutive groups of size and runs each group
// concurrently, waiting for it to settle before starting the next one.
// Results keep the input order. The first failure cancels the rest of its
// group, and no later group is started. A size of zero or less runs
// everything as a single group.
func Run[T, R any](ctx context.Context, items []T, size int, fn Func[T, R], opts ...Option) ([]R, error) {
	o := options{groupDone: func(int, int) {}}
	for _, opt := range opts {
		opt(&o)
	}

	if len(items) == 0 {
		return nil, nil
	}
	if size <= 0 {
		size = len(items)
	}

	results := make([]R, 0, len(items))
	for i, group := range lo.Chunk(items, size) {
		if err := ctx.Err(); err != nil {
			return nil, xerrors.Errorf("batch %d not started: %w", i, err)
		}

		out := make([]R, len(group))
		g, gctx := errgroup.WithContext(ctx)
		for j, item := range group {
			g.Go(func() error {
				r, err := fn(gctx, item)
				if err != nil {
					return err
				}
				out[j] = r
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, xerrors.Errorf("batch %d failed: %w", i, err)
		}
		results = append(results, out...)
		o.groupDone(len(results), len(items))
	}
	return results, nil
}

// Outcome pairs a result with the error that produced it, for callers that
// keep going when individual items fail.
type Outcome[R any] struct {
	Value R
	Err   error
}

// Settle runs like Run, but wraps each item in its own failure boundary: a
// failing item is reported in its Outcome and never aborts the batch.
func Settle[T, R any](ctx context.Context, items []T, size int, fn Func[T, R], opts ...Option) ([]Outcome[R], error) {
	return Run(ctx, items, size, func(ctx context.Context, item T) (Outcome[R], error) {
		r, err := fn(ctx, item)
		return Outcome[R]{Value: r, Err: err}, nil
	}, opts...)
}
