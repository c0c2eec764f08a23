package utils

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Phase is one timed step of a command.
type Phase struct {
	Name     string
	Start    time.Time
	Duration time.Duration
	Err      error
	done     bool
}

// PhaseTimer stops the phase it was started for. Stop may be deferred and
// called more than once; only the first call counts.
type PhaseTimer struct {
	t     *Timer
	index int
}

// Stop records the phase duration and returns it.
func (p *PhaseTimer) Stop() time.Duration {
	return p.t.stop(p.index, nil)
}

// Timer records the phases of one command, such as "simulate", "write
// report" and "upload" of gcsim run, and prints them as a summary. A
// disabled Timer still runs the timed functions but records nothing.
type Timer struct {
	mu      sync.Mutex
	name    string
	start   time.Time
	phases  []*Phase
	log     Logger
	enabled bool
	clock   Clock
}

// TimerOption configures a Timer.
type TimerOption func(*Timer)

// WithLogger sets where PrintSummary writes.
func WithLogger(logger Logger) TimerOption {
	return func(t *Timer) { t.log = logger }
}

// WithEnabled turns recording on or off.
func WithEnabled(enabled bool) TimerOption {
	return func(t *Timer) { t.enabled = enabled }
}

// WithClock sets the time source.
func WithClock(clock Clock) TimerOption {
	return func(t *Timer) { t.clock = clock }
}

// NewTimer creates an enabled Timer that starts now.
func NewTimer(name string, opts ...TimerOption) *Timer {
	t := &Timer{name: name, enabled: true, clock: NewRealClock()}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = &NullLogger{}
	}
	t.start = t.clock.Now()
	return t
}

// Start opens a phase.
func (t *Timer) Start(name string) *PhaseTimer {
	if !t.enabled {
		return &PhaseTimer{t: t, index: -1}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phases = append(t.phases, &Phase{Name: name, Start: t.clock.Now()})
	return &PhaseTimer{t: t, index: len(t.phases) - 1}
}

func (t *Timer) stop(i int, err error) time.Duration {
	if i < 0 {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.phases[i]
	if !p.done {
		p.Duration = t.clock.Since(p.Start)
		p.Err = err
		p.done = true
	}
	return p.Duration
}

// TimeFuncWithError runs fn as a phase and returns its duration and error.
// A failed phase is marked in the summary.
func (t *Timer) TimeFuncWithError(name string, fn func() error) (time.Duration, error) {
	pt := t.Start(name)
	err := fn()
	return t.stop(pt.index, err), err
}

// Phases returns copies of the recorded phases in start order.
func (t *Timer) Phases() []Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Phase, len(t.phases))
	for i, p := range t.phases {
		out[i] = *p
	}
	return out
}

// Total returns the time since the timer was created.
func (t *Timer) Total() time.Duration {
	return t.clock.Since(t.start)
}

// Summary renders one line per phase with its share of the total. Phases
// still running show as such.
func (t *Timer) Summary() []string {
	if !t.enabled {
		return nil
	}
	total := t.Total()
	phases := t.Phases()
	width := 0
	for _, p := range phases {
		if len(p.Name) > width {
			width = len(p.Name)
		}
	}

	lines := []string{fmt.Sprintf("%s: %v", t.name, total)}
	for _, p := range phases {
		switch {
		case !p.done:
			lines = append(lines, fmt.Sprintf("  %-*s  running", width, p.Name))
		default:
			share := 0.0
			if total > 0 {
				share = 100 * float64(p.Duration) / float64(total)
			}
			line := fmt.Sprintf("  %-*s  %10v  %5.1f%%", width, p.Name, p.Duration, share)
			if p.Err != nil {
				line += "  failed"
			}
			lines = append(lines, strings.TrimRight(line, " "))
		}
	}
	return lines
}

// PrintSummary writes Summary to the logger at info level.
func (t *Timer) PrintSummary() {
	for _, line := range t.Summary() {
		t.log.Info("%s", line)
	}
}
