package util

import (
	"context"
	"sync"
)

// ForEach runs fn(i) for every index in [0, n) across a fixed number of
// worker goroutines and blocks until all complete. Workers pull indices from
// a shared channel; fn must confine its writes to per-index state so no
// locking is needed. Returns the context error if the run was cancelled.
func ForEach(ctx context.Context, workers, n int, fn func(i int)) error {
	if n == 0 {
		return ctx.Err()
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	idxCh := make(chan int, n)
	for i := 0; i < n; i++ {
		idxCh <- i
	}
	close(idxCh)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxCh {
				if ctx.Err() != nil {
					return
				}
				fn(i)
			}
		}()
	}
	wg.Wait()

	return ctx.Err()
}
