package parallel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Progress reports finished jobs out of a known total at a fixed interval
// and once more when stopped.
type Progress struct {
	total  int
	every  time.Duration
	report func(done, total int)

	done     atomic.Int64
	stopOnce sync.Once
	quit     chan struct{}
	exited   chan struct{}
}

// NewProgress creates a stopped tracker. report must be safe to call from
// another goroutine.
func NewProgress(total int, every time.Duration, report func(done, total int)) *Progress {
	return &Progress{
		total:  total,
		every:  every,
		report: report,
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// Start begins periodic reporting until Stop or ctx is done.
func (p *Progress) Start(ctx context.Context) {
	go func() {
		defer close(p.exited)
		t := time.NewTicker(p.every)
		defer t.Stop()
		last := int64(-1)
		for {
			select {
			case <-t.C:
				if n := p.done.Load(); n != last {
					last = n
					p.report(int(n), p.total)
				}
			case <-p.quit:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Done marks one job finished.
func (p *Progress) Done() { p.done.Add(1) }

// Count returns the number of finished jobs.
func (p *Progress) Count() int { return int(p.done.Load()) }

// Stop ends reporting and emits the final count. It must follow Start and
// may be called more than once.
func (p *Progress) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
		<-p.exited
		p.report(p.Count(), p.total)
	})
}
