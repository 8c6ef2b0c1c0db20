package fancontrol

import (
	"fmt"

	"pifan/internal/thermal"
)

// Params are the tunables of the control law. Temperatures are in
// thermal.Temperature units, speeds in duty steps out of Range.
type Params struct {
	Target   thermal.Temperature
	HystUp   int
	HystDown int

	MainScale int
	CorrScale int

	MinSpeed int
	MaxSpeed int
	// Range is the PWM cycle length; a speed of v means v/Range duty.
	Range int

	HistoryDepth int
}

// DefaultParams are tuned for a small heatsink fan on a Raspberry Pi.
func DefaultParams() Params {
	return Params{
		Target:       53,
		HystUp:       3,
		HystDown:     5,
		MainScale:    10,
		CorrScale:    5,
		MinSpeed:     50,
		MaxSpeed:     200,
		Range:        200,
		HistoryDepth: 4,
	}
}

func (p Params) Validate() error {
	switch {
	case p.HistoryDepth < 1:
		return fmt.Errorf("fancontrol: history depth must be >= 1, got %d", p.HistoryDepth)
	case p.Range < 1:
		return fmt.Errorf("fancontrol: range must be >= 1, got %d", p.Range)
	case p.HystUp < 0 || p.HystDown < 0:
		return fmt.Errorf("fancontrol: hysteresis must be non-negative")
	case p.MainScale < 0 || p.CorrScale < 0:
		return fmt.Errorf("fancontrol: scale factors must be non-negative")
	case p.MinSpeed < 0:
		return fmt.Errorf("fancontrol: min speed must be non-negative, got %d", p.MinSpeed)
	case p.MinSpeed > p.MaxSpeed:
		return fmt.Errorf("fancontrol: min speed %d exceeds max speed %d", p.MinSpeed, p.MaxSpeed)
	case p.MaxSpeed > p.Range:
		return fmt.Errorf("fancontrol: max speed %d exceeds range %d", p.MaxSpeed, p.Range)
	}
	return nil
}

// onThreshold is the temperature that must be exceeded to start the fan.
func (p Params) onThreshold() thermal.Temperature {
	return p.Target + thermal.Temperature(p.HystUp)
}

// offThreshold is the temperature the fan keeps running above.
func (p Params) offThreshold() thermal.Temperature {
	return p.Target - thermal.Temperature(p.HystDown)
}
