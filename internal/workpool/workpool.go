// Package workpool runs independent jobs on a bounded set of goroutines
// and returns the results in job order.
package workpool

import (
	"context"
	"runtime"
	"sync"
)

// Map applies fn to every job using up to workers goroutines. out[i] is
// fn's result for jobs[i]. Jobs not yet started when ctx is cancelled are
// skipped and ctx.Err() is returned; results of skipped jobs are zero.
func Map[J, R any](ctx context.Context, workers int, jobs []J, fn func(context.Context, J) R) ([]R, error) {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, max(1, len(jobs)))

	type item struct {
		idx int
		job J
	}
	in := make(chan item, workers*2)
	out := make([]R, len(jobs))

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for it := range in {
				if ctx.Err() != nil {
					continue
				}
				// Each index is written by exactly one goroutine.
				out[it.idx] = fn(ctx, it.job)
			}
		}()
	}

feed:
	for i, j := range jobs {
		select {
		case <-ctx.Done():
			break feed
		case in <- item{idx: i, job: j}:
		}
	}
	close(in)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}
