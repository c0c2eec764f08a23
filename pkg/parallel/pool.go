// Package parallel runs independent jobs, such as whole simulations each
// owning its own collector, on a bounded set of goroutines.
package parallel

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/engine-gc/pkg/utils"
)

// Options bounds a fan-out.
type Options struct {
	// Workers is the number of jobs in flight. Values below 1 mean 1.
	Workers int
	// Timeout caps the whole fan-out. Zero means none.
	Timeout time.Duration
	// StopOnError cancels jobs not yet started once one job fails.
	StopOnError bool
	// Clock times each job; nil means the wall clock.
	Clock utils.Clock
}

// DefaultOptions uses one worker per CPU, at most 8.
func DefaultOptions() Options {
	return Options{Workers: min(max(runtime.NumCPU(), 1), 8)}
}

func (o Options) WithWorkers(n int) Options {
	o.Workers = n
	return o
}

func (o Options) WithTimeout(d time.Duration) Options {
	o.Timeout = d
	return o
}

func (o Options) WithStopOnError() Options {
	o.StopOnError = true
	return o
}

func (o Options) WithClock(c utils.Clock) Options {
	o.Clock = c
	return o
}

// Outcome is the result of job Index.
type Outcome[R any] struct {
	Index   int
	Value   R
	Err     error
	Elapsed time.Duration
	// Started is false when the job was skipped because the fan-out was
	// cancelled before a worker picked it up. Err is then the context error.
	Started bool
}

// Run calls fn for every index in [0, n) and returns one Outcome per index,
// in index order.
func Run[R any](ctx context.Context, n int, opts Options, fn func(ctx context.Context, i int) (R, error)) []Outcome[R] {
	if n <= 0 {
		return nil
	}
	clock := opts.Clock
	if clock == nil {
		clock = utils.NewRealClock()
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([]Outcome[R], n)
	next := make(chan int)
	var wg sync.WaitGroup
	for range min(max(opts.Workers, 1), n) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				o := &out[i]
				o.Index = i
				if err := ctx.Err(); err != nil {
					o.Err = err
					continue
				}
				o.Started = true
				start := clock.Now()
				o.Value, o.Err = fn(ctx, i)
				o.Elapsed = clock.Since(start)
				if o.Err != nil && opts.StopOnError {
					cancel()
				}
			}
		}()
	}
	for i := range n {
		next <- i
	}
	close(next)
	wg.Wait()
	return out
}

// Each runs fn for every index in [0, n) and reports how many jobs ran and
// the lowest-indexed error.
func Each(ctx context.Context, n int, opts Options, fn func(ctx context.Context, i int) error) (int, error) {
	outcomes := Run(ctx, n, opts, func(ctx context.Context, i int) (struct{}, error) {
		return struct{}{}, fn(ctx, i)
	})
	return Summarize(outcomes)
}

// Summarize counts started jobs and picks the lowest-indexed error.
func Summarize[R any](outcomes []Outcome[R]) (started int, firstErr error) {
	for _, o := range outcomes {
		if o.Started {
			started++
		}
		if firstErr == nil && o.Err != nil {
			firstErr = o.Err
		}
	}
	return started, firstErr
}
