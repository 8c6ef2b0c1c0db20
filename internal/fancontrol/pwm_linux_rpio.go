//go:build linux

package fancontrol

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// rpioPWM drives the BCM2835 PWM peripheral directly through /dev/gpiomem,
// in mark-space mode with a cycle of Range steps. Only pins with a PWM alt
// function (12, 13, 18, 19) work. Not supported on the Pi 5.
type rpioPWM struct {
	pin   rpio.Pin
	cycle uint32
}

var rpioMu sync.Mutex

func openRPIO(cfg DriverConfig) (Actuator, error) {
	if _, err := pwmChannelForPin(cfg.Pin, false); err != nil {
		return nil, err
	}

	rpioMu.Lock()
	defer rpioMu.Unlock()
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("fancontrol: rpio open: %w", err)
	}

	pin := rpio.Pin(cfg.Pin)
	pin.Mode(rpio.Pwm)
	// Freq sets the PWM clock; the output frequency is clock / cycle.
	pin.Freq(cfg.FrequencyHz * cfg.Range)
	pin.DutyCycleWithPwmMode(0, uint32(cfg.Range), rpio.MarkSpace)

	return &rpioPWM{pin: pin, cycle: uint32(cfg.Range)}, nil
}

func (r *rpioPWM) SetDuty(v int) error {
	if v < 0 || uint32(v) > r.cycle {
		return fmt.Errorf("fancontrol: duty %d outside [0,%d]", v, r.cycle)
	}
	r.pin.DutyCycleWithPwmMode(uint32(v), r.cycle, rpio.MarkSpace)
	return nil
}

func (r *rpioPWM) Close() error {
	r.pin.DutyCycleWithPwmMode(0, r.cycle, rpio.MarkSpace)

	rpioMu.Lock()
	defer rpioMu.Unlock()
	return rpio.Close()
}
