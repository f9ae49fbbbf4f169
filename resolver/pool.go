package resolver

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool fans out independent IO-bound tasks. Implementations must run every
// task exactly once and return only after all tasks finish; the result of a
// resolution pass must not depend on which pool is installed.
type Pool interface {
	Run(ctx context.Context, n int, task func(i int))
}

// sequentialPool runs tasks one after another on the calling goroutine. It is
// the default when no pool is injected.
type sequentialPool struct{}

func (sequentialPool) Run(_ context.Context, n int, task func(i int)) {
	for i := 0; i < n; i++ {
		task(i)
	}
}

// BoundedPool runs tasks on up to Workers goroutines.
type BoundedPool struct {
	Workers int
}

func (p BoundedPool) Run(_ context.Context, n int, task func(i int)) {
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	var group errgroup.Group
	group.SetLimit(workers)
	for i := 0; i < n; i++ {
		i := i
		group.Go(func() error {
			task(i)
			return nil
		})
	}
	_ = group.Wait()
}
