package drainer

import "time"

// LoopController implements SPEC_FULL.md §4.4's loop-interval controller:
// next sleep = base * (1 + alpha*f), where f is the exponentially-smoothed
// fraction of batches that returned fewer than max_read_count entries,
// bounded to [min, max]. Full batches push the interval towards min (keep
// draining fast); empty/partial batches relax it towards max (reduce store
// thrash when idle).
type LoopController struct {
	Base  time.Duration
	Min   time.Duration
	Max   time.Duration
	Alpha float64

	emptyFraction float64 // smoothed f, in [0, 1]
	initialized   bool
}

// DefaultController mirrors typical production defaults: gentle ramp, 5x
// ceiling over the base interval.
func DefaultController(base time.Duration) LoopController {
	return LoopController{
		Base:  base,
		Min:   base,
		Max:   5 * base,
		Alpha: 4.0,
	}
}

// Observe records one batch's fullness (count read out of requested max)
// and updates the smoothed empty-fraction with a simple EWMA.
func (c *LoopController) Observe(count, max int) {
	if max <= 0 {
		return
	}
	full := 1.0
	if count < max {
		full = 0.0
	}
	f := 1.0 - full // 1 if the batch was NOT full, 0 if it was full

	const smoothing = 0.3
	if !c.initialized {
		c.emptyFraction = f
		c.initialized = true
		return
	}
	c.emptyFraction = smoothing*f + (1-smoothing)*c.emptyFraction
}

// NextInterval computes the next sleep duration from the current smoothed
// fraction, bounded to [Min, Max].
func (c *LoopController) NextInterval() time.Duration {
	interval := time.Duration(float64(c.Base) * (1 + c.Alpha*c.emptyFraction))
	if interval < c.Min {
		return c.Min
	}
	if interval > c.Max {
		return c.Max
	}
	return interval
}
