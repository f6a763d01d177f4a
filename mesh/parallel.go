package mesh

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

type parallelismKey struct{}

// WithParallelism returns a context that caps the goroutines used for
// per-frame and per-point work started under it. Values below 1 mean 1.
func WithParallelism(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, parallelismKey{}, n)
}

// parallelism returns the cap carried by ctx, defaulting to GOMAXPROCS.
func parallelism(ctx context.Context) int {
	n, ok := ctx.Value(parallelismKey{}).(int)
	if !ok {
		n = runtime.GOMAXPROCS(0)
	}
	if n < 1 {
		n = 1
	}
	return n
}

// forEach runs fn for every index in [0, n) on a bounded errgroup. The first
// error cancels the remaining work.
func forEach(ctx context.Context, n int, fn func(i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism(ctx))
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	// a cancelled parent may have stopped the loop before any goroutine saw it
	return ctx.Err()
}
