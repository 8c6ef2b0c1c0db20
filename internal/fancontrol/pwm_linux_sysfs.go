//go:build linux

package fancontrol

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// sysfsPWM drives a hardware PWM channel via /sys/class/pwm.
//
// On a Raspberry Pi this needs `dtoverlay=pwm-2chan` (or pwm) so the header
// pin is exposed as a PWM channel. Duty is written as a fraction of the
// period: duty_cycle = period * v / Range.
type sysfsPWM struct {
	chipPath string // /sys/class/pwm/pwmchipN
	pwmPath  string // /sys/class/pwm/pwmchipN/pwmM
	channel  int
	rng      int

	periodNS uint64
	enabled  bool
}

var pwmSysfsBase = "/sys/class/pwm"

var isPi5Fn = isRaspberryPi5

// pwmChannelForPin maps a BCM pin to its PWM channel. The Pi 5's RP1 exposes
// all four header PWM pins as channels of one chip.
func pwmChannelForPin(pin int, pi5 bool) (int, error) {
	if pi5 {
		switch pin {
		case 12:
			return 0, nil
		case 13:
			return 1, nil
		case 18:
			return 2, nil
		case 19:
			return 3, nil
		}
	} else {
		switch pin {
		case 12, 18:
			return 0, nil
		case 13, 19:
			return 1, nil
		}
	}
	return 0, fmt.Errorf("fancontrol: gpio %d has no hardware pwm channel", pin)
}

func openSysfsPWM(cfg DriverConfig) (Actuator, error) {
	channel, err := pwmChannelForPin(cfg.Pin, isPi5Fn())
	if err != nil {
		return nil, err
	}
	chipPath, err := findPWMChip(channel)
	if err != nil {
		return nil, err
	}

	d := &sysfsPWM{
		chipPath: chipPath,
		channel:  channel,
		rng:      cfg.Range,
		pwmPath:  filepath.Join(chipPath, fmt.Sprintf("pwm%d", channel)),
	}
	if err := d.ensureExported(); err != nil {
		return nil, err
	}
	if err := d.setFrequencyHz(cfg.FrequencyHz); err != nil {
		return nil, err
	}
	return d, nil
}

// findPWMChip returns the first pwmchip with more than channel channels,
// preferring the low-numbered chips the Pi overlays create.
func findPWMChip(channel int) (string, error) {
	base := pwmSysfsBase
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", fmt.Errorf("fancontrol: read %s: %w", base, err)
	}

	preferred := []string{"pwmchip0", "pwmchip1", "pwmchip2"}
	// pwmchipN entries are commonly symlinks, not directories.
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "pwmchip") {
			seen[e.Name()] = true
		}
	}
	candidates := make([]string, 0, len(entries))
	for _, name := range preferred {
		if seen[name] {
			candidates = append(candidates, name)
			delete(seen, name)
		}
	}
	for _, e := range entries {
		if seen[e.Name()] {
			candidates = append(candidates, e.Name())
		}
	}

	for _, name := range candidates {
		chip := filepath.Join(base, name)
		n, err := readInt(filepath.Join(chip, "npwm"))
		if err != nil || n <= channel {
			continue
		}
		return chip, nil
	}
	return "", fmt.Errorf("fancontrol: no sysfs pwmchip with channel %d (is the pwm overlay enabled?)", channel)
}

func (d *sysfsPWM) ensureExported() error {
	if _, err := os.Stat(d.pwmPath); err == nil {
		return nil
	}
	exportPath := filepath.Join(d.chipPath, "export")
	if err := writeSysfs(exportPath, strconv.Itoa(d.channel)); err != nil {
		// Exported by someone else in the meantime.
		if _, statErr := os.Stat(d.pwmPath); statErr == nil {
			return nil
		}
		return fmt.Errorf("fancontrol: export pwm: %w", err)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(d.pwmPath); err == nil {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := os.Stat(d.pwmPath); err != nil {
		return fmt.Errorf("fancontrol: pwm path not created after export: %w", err)
	}
	return nil
}

func (d *sysfsPWM) setFrequencyHz(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("fancontrol: invalid frequency %d", hz)
	}
	periodNS := uint64(1_000_000_000 / hz)
	if periodNS == 0 {
		periodNS = 1
	}

	// The kernel rejects a period shorter than the current duty, so zero
	// the duty and disable first.
	_ = d.writeBool("enable", false)
	d.enabled = false
	_ = d.writeUint("duty_cycle", 0)

	if err := d.writeUint("period", periodNS); err != nil {
		return fmt.Errorf("fancontrol: set pwm period: %w", err)
	}
	d.periodNS = periodNS

	if err := d.writeBool("enable", true); err != nil {
		return fmt.Errorf("fancontrol: enable pwm: %w", err)
	}
	d.enabled = true
	return nil
}

func (d *sysfsPWM) SetDuty(v int) error {
	if v < 0 || v > d.rng {
		return fmt.Errorf("fancontrol: duty %d outside [0,%d]", v, d.rng)
	}
	duty := d.periodNS * uint64(v) / uint64(d.rng)
	if err := d.writeUint("duty_cycle", duty); err != nil {
		return err
	}
	if !d.enabled {
		if err := d.writeBool("enable", true); err != nil {
			return err
		}
		d.enabled = true
	}
	return nil
}

func (d *sysfsPWM) Close() error {
	err := d.SetDuty(0)
	_ = d.writeBool("enable", false)
	d.enabled = false
	return err
}

func (d *sysfsPWM) writeUint(name string, v uint64) error {
	return writeSysfs(filepath.Join(d.pwmPath, name), strconv.FormatUint(v, 10))
}

func (d *sysfsPWM) writeBool(name string, v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	return writeSysfs(filepath.Join(d.pwmPath, name), val)
}

func writeSysfs(path string, value string) error {
	// O_WRONLY without O_TRUNC/O_CREATE: some sysfs attributes reject
	// truncation. Right after export udev may still be fixing permissions,
	// so EACCES/ENOENT are retried for a short while.
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := writeOnce(path, value)
		if err == nil {
			return nil
		}
		if time.Now().Before(deadline) && isRetryableSysfsErr(err) {
			time.Sleep(25 * time.Millisecond)
			continue
		}
		return err
	}
}

func writeOnce(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	_, werr := f.WriteString(value)
	cerr := f.Close()
	return errors.Join(werr, cerr)
}

func isRetryableSysfsErr(err error) bool {
	return errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) || errors.Is(err, unix.ENOENT)
}

func readInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, fmt.Errorf("%s: empty", path)
	}
	return strconv.Atoi(s)
}
