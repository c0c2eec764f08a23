package gc

// setThreshold places the next cycle start at Pause percent of the larger of
// the allocation level and the live estimate.
func (c *Collector) setThreshold() {
	base := c.allocBytes
	if c.estimate > base {
		base = c.estimate
	}
	if base < c.cfg.MinEstimate {
		base = c.cfg.MinEstimate
	}
	c.threshold = base * uint64(c.cfg.Pause) / 100
}

// AllocBytes returns the bytes currently charged to allocated objects.
func (c *Collector) AllocBytes() uint64 { return c.allocBytes }

// Threshold returns the allocation level at which CheckGC steps.
func (c *Collector) Threshold() uint64 { return c.threshold }

// Estimate returns the live-set estimate taken at the end of the last mark.
func (c *Collector) Estimate() uint64 { return c.estimate }

// Debt returns the allocation bytes not yet paid for by collection work.
func (c *Collector) Debt() uint64 { return c.debt }

// SetPause changes the pause percentage. It takes effect at the next
// threshold computation.
func (c *Collector) SetPause(pause int) {
	if pause > 0 {
		c.cfg.Pause = pause
	}
}

// SetStepMul changes the step multiplier for subsequent Step calls. Any
// negative value selects StepMulUnlimited; zero is ignored.
func (c *Collector) SetStepMul(mul int) {
	switch {
	case mul > 0:
		c.cfg.StepMul = mul
	case mul < 0:
		c.cfg.StepMul = StepMulUnlimited
	}
}
