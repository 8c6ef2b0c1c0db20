package fancontrol

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Actuator drives the fan. Duty is v/Range of the PWM period, with v in
// [0, Range].
//
// Close releases the hardware and should leave the fan off.
type Actuator interface {
	SetDuty(v int) error
	Close() error
}

// Backend names accepted by DriverConfig.Backend.
const (
	BackendSysfs  = "sysfs"
	BackendRPIO   = "rpio"
	BackendPeriph = "periph"
	BackendGPIO   = "gpio"
	BackendLog    = "log"
)

// Backends lists every known backend; some are Linux-only.
var Backends = []string{BackendSysfs, BackendRPIO, BackendPeriph, BackendGPIO, BackendLog}

// DriverConfig selects and configures an Actuator backend.
type DriverConfig struct {
	Backend string
	// Pin is BCM GPIO numbering.
	Pin int
	// FrequencyHz is the PWM output frequency.
	FrequencyHz int
	Range       int
}

// pwmClockHz is the Pi's 19.2 MHz oscillator divided by 1024, the clock the
// fan circuit was tuned with.
const pwmClockHz = 19_200_000 / 1024

// DefaultFrequencyHz is the output frequency of pwmClockHz over a range of
// rng steps.
func DefaultFrequencyHz(rng int) int {
	if rng <= 0 {
		return pwmClockHz
	}
	if f := pwmClockHz / rng; f > 0 {
		return f
	}
	return 1
}

func openActuator(cfg DriverConfig) (Actuator, error) {
	if cfg.Range <= 0 {
		return nil, fmt.Errorf("fancontrol: invalid pwm range %d", cfg.Range)
	}
	if cfg.FrequencyHz <= 0 {
		cfg.FrequencyHz = DefaultFrequencyHz(cfg.Range)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendSysfs, "":
		return openSysfsPWM(cfg)
	case BackendRPIO:
		return openRPIO(cfg)
	case BackendPeriph:
		return openPeriph(cfg)
	case BackendGPIO:
		return openGPIO(cfg.Pin)
	case BackendLog:
		return newLogActuator(cfg), nil
	default:
		return nil, fmt.Errorf("fancontrol: unknown backend %q", cfg.Backend)
	}
}

// logActuator only logs duty commands. Used for dry runs.
type logActuator struct {
	rng int
	log *log.Entry
}

func newLogActuator(cfg DriverConfig) *logActuator {
	return &logActuator{
		rng: cfg.Range,
		log: log.WithFields(log.Fields{"component": "fancontrol", "backend": BackendLog}),
	}
}

func (a *logActuator) SetDuty(v int) error {
	if v < 0 || v > a.rng {
		return fmt.Errorf("fancontrol: duty %d outside [0,%d]", v, a.rng)
	}
	a.log.WithField("duty", v).Infof("duty %.1f%%", dutyPercent(v, a.rng))
	return nil
}

func (a *logActuator) Close() error {
	a.log.Info("released")
	return nil
}

func dutyPercent(v, rng int) float64 {
	if rng <= 0 {
		return 0
	}
	return float64(v) * 100 / float64(rng)
}
