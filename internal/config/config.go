package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"pifan/internal/fancontrol"
	"pifan/internal/thermal"
)

type Config struct {
	Sensor  SensorConfig  `yaml:"sensor"`
	Fan     FanConfig     `yaml:"fan"`
	Control ControlConfig `yaml:"control"`
	Web     WebConfig     `yaml:"web"`
	Log     LogConfig     `yaml:"log"`
}

type SensorConfig struct {
	// Kind is "sysfs" or "hwmon".
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
	// ReadWidth limits how many characters of the sysfs value are parsed;
	// 0 parses the whole line.
	ReadWidth int `yaml:"read_width"`
	// Key selects the hwmon sensor, e.g. "cpu_thermal".
	Key         string `yaml:"key"`
	MaxFailures int    `yaml:"max_failures"`
}

type FanConfig struct {
	Backend     string        `yaml:"backend"`
	Pin         int           `yaml:"pin"`
	FrequencyHz int           `yaml:"frequency_hz"`
	StartupTest bool          `yaml:"startup_test"`
	StartupFull time.Duration `yaml:"startup_full"`
	StartupMin  time.Duration `yaml:"startup_min"`
}

type ControlConfig struct {
	Interval     time.Duration `yaml:"interval"`
	Target       int           `yaml:"target"`
	HystUp       int           `yaml:"hyst_up"`
	HystDown     int           `yaml:"hyst_down"`
	MainScale    int           `yaml:"main_scale"`
	CorrScale    int           `yaml:"corr_scale"`
	MinSpeed     int           `yaml:"min_speed"`
	MaxSpeed     int           `yaml:"max_speed"`
	Range        int           `yaml:"range"`
	HistoryDepth int           `yaml:"history_depth"`
}

type WebConfig struct {
	// Listen is the status server address; empty disables it.
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	BufferLines int    `yaml:"buffer_lines"`
}

// Default returns the configuration used for keys missing from the file.
func Default() Config {
	p := fancontrol.DefaultParams()
	return Config{
		Sensor: SensorConfig{
			Kind:        "sysfs",
			Path:        thermal.DefaultSysfsPath,
			ReadWidth:   thermal.DefaultReadWidth,
			MaxFailures: 5,
		},
		Fan: FanConfig{
			Backend:     fancontrol.BackendSysfs,
			Pin:         18,
			StartupFull: 5 * time.Second,
			StartupMin:  10 * time.Second,
		},
		Control: ControlConfig{
			Interval:     1 * time.Second,
			Target:       int(p.Target),
			HystUp:       p.HystUp,
			HystDown:     p.HystDown,
			MainScale:    p.MainScale,
			CorrScale:    p.CorrScale,
			MinSpeed:     p.MinSpeed,
			MaxSpeed:     p.MaxSpeed,
			Range:        p.Range,
			HistoryDepth: p.HistoryDepth,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "text",
			BufferLines: 2000,
		},
	}
}

// Params converts the control section to controller tunables.
func (c ControlConfig) Params() fancontrol.Params {
	return fancontrol.Params{
		Target:       thermal.Temperature(c.Target),
		HystUp:       c.HystUp,
		HystDown:     c.HystDown,
		MainScale:    c.MainScale,
		CorrScale:    c.CorrScale,
		MinSpeed:     c.MinSpeed,
		MaxSpeed:     c.MaxSpeed,
		Range:        c.Range,
		HistoryDepth: c.HistoryDepth,
	}
}

// FanService builds the control service configuration.
func (c Config) FanService() fancontrol.Config {
	return fancontrol.Config{
		Driver: fancontrol.DriverConfig{
			Backend:     c.Fan.Backend,
			Pin:         c.Fan.Pin,
			FrequencyHz: c.Fan.FrequencyHz,
			Range:       c.Control.Range,
		},
		Params:            c.Control.Params(),
		UpdateInterval:    c.Control.Interval,
		MaxSensorFailures: c.Sensor.MaxFailures,
		StartupTest:       c.Fan.StartupTest,
		StartupFull:       c.Fan.StartupFull,
		StartupMin:        c.Fan.StartupMin,
	}
}

// Source builds the configured temperature source.
func (c SensorConfig) Source() thermal.Source {
	if c.Kind == "hwmon" {
		return thermal.NewHwmonSource(c.Key)
	}
	return thermal.NewSysfsSource(c.Path, c.ReadWidth)
}

// Load reads path on top of Default and validates the result. Unknown keys
// are rejected.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}

	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate normalizes cfg in place and returns the first problem
// found.
func DefaultAndValidate(cfg *Config) error {
	cfg.Sensor.Kind = strings.ToLower(strings.TrimSpace(cfg.Sensor.Kind))
	cfg.Fan.Backend = strings.ToLower(strings.TrimSpace(cfg.Fan.Backend))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	cfg.Web.Listen = strings.TrimSpace(cfg.Web.Listen)

	switch cfg.Sensor.Kind {
	case "sysfs":
		if strings.TrimSpace(cfg.Sensor.Path) == "" {
			return fmt.Errorf("sensor.path is required when sensor.kind is 'sysfs'")
		}
	case "hwmon":
		if strings.TrimSpace(cfg.Sensor.Key) == "" {
			return fmt.Errorf("sensor.key is required when sensor.kind is 'hwmon'")
		}
	default:
		return fmt.Errorf("sensor.kind must be 'sysfs' or 'hwmon'")
	}
	if cfg.Sensor.ReadWidth < 0 {
		return fmt.Errorf("sensor.read_width must be >= 0")
	}
	if cfg.Sensor.MaxFailures < 1 {
		return fmt.Errorf("sensor.max_failures must be >= 1")
	}

	if !contains(fancontrol.Backends, cfg.Fan.Backend) {
		return fmt.Errorf("fan.backend must be one of %s", strings.Join(fancontrol.Backends, ", "))
	}
	if cfg.Fan.Backend != fancontrol.BackendLog && cfg.Fan.Pin <= 0 {
		return fmt.Errorf("fan.pin must be > 0")
	}
	if cfg.Fan.FrequencyHz < 0 {
		return fmt.Errorf("fan.frequency_hz must be >= 0")
	}
	if cfg.Fan.FrequencyHz == 0 {
		cfg.Fan.FrequencyHz = fancontrol.DefaultFrequencyHz(cfg.Control.Range)
	}
	if cfg.Fan.StartupTest && (cfg.Fan.StartupFull <= 0 || cfg.Fan.StartupMin <= 0) {
		return fmt.Errorf("fan.startup_full and fan.startup_min must be > 0 when fan.startup_test is true")
	}

	if cfg.Control.Interval <= 0 {
		return fmt.Errorf("control.interval must be > 0")
	}
	if err := cfg.Control.Params().Validate(); err != nil {
		return fmt.Errorf("control: %w", err)
	}

	if cfg.Web.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Web.Listen); err != nil {
			return fmt.Errorf("web.listen must be host:port: %v", err)
		}
	}

	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level %q is not a valid level", cfg.Log.Level)
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("log.format must be 'text' or 'json'")
	}
	if cfg.Log.BufferLines < 0 {
		return fmt.Errorf("log.buffer_lines must be >= 0")
	}
	return nil
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
