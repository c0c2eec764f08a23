package gc

import (
	"github.com/engine-gc/pkg/utils"
)

// Config holds collector tunables.
type Config struct {
	// Pause is the heap growth, in percent of the live estimate, allowed
	// before the next cycle starts.
	Pause int
	// StepMul is the collection speed relative to allocation, in percent.
	// Zero means the default; StepMulUnlimited lets one Step run until the
	// next phase transition.
	StepMul int
	// StepSize is the base work budget of one paced Step, scaled by StepMul.
	StepSize int
	// StepBytes is how many allocated bytes one paced Step pays for.
	StepBytes uint64
	// SweepMax bounds the objects swept per single step.
	SweepMax int
	// FinalizeMax bounds the objects finalized per single step.
	FinalizeMax int
	// FinalizeCost is the work charged per finalized object.
	FinalizeCost int
	// MinEstimate is the floor of the live-set estimate used for thresholds.
	MinEstimate uint64
	// MaxObjects caps the arena. Zero means unbounded.
	MaxObjects int
	// HistorySize is how many finished cycles RecentCycles keeps.
	HistorySize int
	// Debug turns on magic guards, sweep colour assertions and class
	// validation. Assertion failures panic.
	Debug bool

	Logger   utils.Logger
	Clock    utils.Clock
	Observer Observer
}

// StepMulUnlimited removes the per-step work budget.
const StepMulUnlimited = -1

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Pause:        150,
		StepMul:      600,
		StepSize:     128,
		StepBytes:    4096,
		SweepMax:     40,
		FinalizeMax:  8,
		FinalizeCost: 4,
		MinEstimate:  16 * 1024,
		HistorySize:  32,
	}
}

func (c *Config) normalize() {
	def := DefaultConfig()
	if c.Pause <= 0 {
		c.Pause = def.Pause
	}
	switch {
	case c.StepMul == 0:
		c.StepMul = def.StepMul
	case c.StepMul < 0:
		c.StepMul = StepMulUnlimited
	}
	if c.StepSize <= 0 {
		c.StepSize = def.StepSize
	}
	if c.StepBytes == 0 {
		c.StepBytes = def.StepBytes
	}
	if c.SweepMax <= 0 {
		c.SweepMax = def.SweepMax
	}
	if c.FinalizeMax <= 0 {
		c.FinalizeMax = def.FinalizeMax
	}
	if c.FinalizeCost <= 0 {
		c.FinalizeCost = def.FinalizeCost
	}
	if c.HistorySize <= 0 {
		c.HistorySize = def.HistorySize
	}
	if c.Logger == nil {
		c.Logger = &utils.NullLogger{}
	}
	if c.Clock == nil {
		c.Clock = utils.NewRealClock()
	}
}
