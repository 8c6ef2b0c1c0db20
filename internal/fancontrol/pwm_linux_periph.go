//go:build linux

package fancontrol

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// periphPWM uses periph.io's pin registry, which picks the best PWM engine
// the host driver offers for the pin.
type periphPWM struct {
	pin  gpio.PinIO
	freq physic.Frequency
	rng  int
}

func openPeriph(cfg DriverConfig) (Actuator, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("fancontrol: periph init: %w", err)
	}
	name := fmt.Sprintf("GPIO%d", cfg.Pin)
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("fancontrol: periph pin %s not found", name)
	}
	p := &periphPWM{pin: pin, freq: physic.Frequency(cfg.FrequencyHz) * physic.Hertz, rng: cfg.Range}
	if err := p.SetDuty(0); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *periphPWM) SetDuty(v int) error {
	if v < 0 || v > p.rng {
		return fmt.Errorf("fancontrol: duty %d outside [0,%d]", v, p.rng)
	}
	if v == 0 {
		return p.pin.Out(gpio.Low)
	}
	duty := gpio.Duty(int64(gpio.DutyMax) * int64(v) / int64(p.rng))
	if err := p.pin.PWM(duty, p.freq); err != nil {
		return fmt.Errorf("fancontrol: periph pwm %s: %w", p.pin, err)
	}
	return nil
}

func (p *periphPWM) Close() error {
	if err := p.pin.Out(gpio.Low); err != nil {
		return err
	}
	return p.pin.Halt()
}
