package market

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one settle-all branch.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the branch succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// settle schedules fn on g and records its outcome in out. The branch never
// reports an error to the group, so siblings always run to completion. A
// panic in fn is captured as the branch error.
func settle[T any](ctx context.Context, g *errgroup.Group, out *Result[T], fn func(context.Context) (T, error)) {
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				out.Err = fmt.Errorf("panic: %v", r)
			}
		}()
		out.Value, out.Err = fn(ctx)
		return nil
	})
}
