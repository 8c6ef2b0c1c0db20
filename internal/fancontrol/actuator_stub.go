//go:build !linux

package fancontrol

import "fmt"

// Hardware backends need Linux; only the log backend works elsewhere.

func openSysfsPWM(cfg DriverConfig) (Actuator, error) {
	return nil, fmt.Errorf("fancontrol: sysfs pwm unsupported on this platform")
}

func openRPIO(cfg DriverConfig) (Actuator, error) {
	return nil, fmt.Errorf("fancontrol: rpio unsupported on this platform")
}

func openPeriph(cfg DriverConfig) (Actuator, error) {
	return nil, fmt.Errorf("fancontrol: periph unsupported on this platform")
}

func openGPIO(pin int) (Actuator, error) {
	return nil, fmt.Errorf("fancontrol: gpio unsupported on this platform")
}
