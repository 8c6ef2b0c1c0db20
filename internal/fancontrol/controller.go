package fancontrol

import "pifan/internal/thermal"

// Controller is the fan control law: a hysteresis on/off state machine with
// a proportional term on the current reading and an accumulated correction
// driven by the moving average of recent readings.
//
// The caller owns the loop and the sleep; Tick is evaluated once per
// interval. Not safe for concurrent use.
type Controller struct {
	p Params

	hist       *history
	active     bool
	correction int
	speed      int
}

// State is a copy of the controller's internal state.
type State struct {
	Active     bool                  `json:"active"`
	Speed      int                   `json:"speed"`
	Correction int                   `json:"correction"`
	Average    thermal.Temperature   `json:"average"`
	History    []thermal.Temperature `json:"history"`
}

// NewController returns an idle controller whose history is pre-filled with
// the initial reading.
func NewController(p Params, initial thermal.Temperature) (*Controller, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Controller{p: p, hist: newHistory(p.HistoryDepth, initial)}, nil
}

func (c *Controller) Params() Params { return c.p }

// Tick feeds one reading into the controller and returns the commanded
// speed. changed reports whether it differs from the previous tick's speed;
// the actuator should only be written when it does.
func (c *Controller) Tick(t thermal.Temperature) (speed int, changed bool) {
	last := c.speed
	c.hist.push(t)

	threshold := c.p.onThreshold()
	if c.active {
		threshold = c.p.offThreshold()
	}

	switch {
	case t > threshold:
		c.active = true
		c.speed = clampInt(c.p.MainScale*int(t-c.p.Target), 0, c.p.MaxSpeed)

		avg := c.hist.average()
		c.correction += c.p.CorrScale * int(avg-c.p.Target)
		// Bound the accumulator by the current base speed so the sum always
		// lands in [0, MaxSpeed].
		c.correction = clampInt(c.correction, -c.speed, c.p.MaxSpeed-c.speed)
		c.speed += c.correction

		if c.speed < c.p.MinSpeed {
			c.speed = c.p.MinSpeed
		}
	case c.active:
		c.active = false
		c.speed = 0
		c.correction = 0
	}

	return c.speed, c.speed != last
}

func (c *Controller) State() State {
	return State{
		Active:     c.active,
		Speed:      c.speed,
		Correction: c.correction,
		Average:    c.hist.average(),
		History:    c.hist.snapshot(),
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
