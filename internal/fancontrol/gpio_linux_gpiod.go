//go:build linux

package fancontrol

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// openGPIO drives the given BCM GPIO as a digital output through the GPIO
// character device. It is meant for 2-wire fans switched by a transistor:
// any duty > 0 is ON.
func openGPIO(pin int) (Actuator, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("fancontrol: invalid gpio pin %d", pin)
	}

	// Header lines are named "GPIO18" etc. Pi 5 kernels may expose them on
	// gpiochip4 instead of gpiochip0.
	lineName := fmt.Sprintf("GPIO%d", pin)
	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", e.Name()))
		}
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("pifan"))
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &gpiodFan{chip: chip, line: line}, nil
	}

	return nil, fmt.Errorf("fancontrol: gpio line %q not found (or busy)", lineName)
}

type gpiodFan struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *gpiodFan) SetDuty(v int) error {
	if g == nil || g.line == nil {
		return fmt.Errorf("fancontrol: gpio driver not initialized")
	}
	on := 0
	if v > 0 {
		on = 1
	}
	return g.line.SetValue(on)
}

func (g *gpiodFan) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	_ = g.line.SetValue(0)
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
