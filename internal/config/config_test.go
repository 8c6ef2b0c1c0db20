package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pifan/internal/fancontrol"
	"pifan/internal/thermal"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pifan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, want, err.Error())
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "sysfs", cfg.Sensor.Kind)
	assert.Equal(t, thermal.DefaultSysfsPath, cfg.Sensor.Path)
	assert.Equal(t, 5, cfg.Sensor.ReadWidth)
	assert.Equal(t, 5, cfg.Sensor.MaxFailures)
	assert.Equal(t, "sysfs", cfg.Fan.Backend)
	assert.Equal(t, 18, cfg.Fan.Pin)
	assert.Equal(t, 93, cfg.Fan.FrequencyHz)
	assert.Equal(t, time.Second, cfg.Control.Interval)
	assert.Equal(t, fancontrol.DefaultParams(), cfg.Control.Params())
	assert.Empty(t, cfg.Web.Listen)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_OverridesKeepOtherDefaults(t *testing.T) {
	body := "" +
		"sensor:\n  read_width: 0\n" +
		"fan:\n  backend: RPIO\n  frequency_hz: 25000\n" +
		"control:\n  interval: 2s\n  target: 60\n  hyst_up: 0\n"
	cfg, err := Load(writeTempConfig(t, body))
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Sensor.ReadWidth)
	assert.Equal(t, "rpio", cfg.Fan.Backend)
	assert.Equal(t, 25000, cfg.Fan.FrequencyHz)
	assert.Equal(t, 2*time.Second, cfg.Control.Interval)

	p := cfg.Control.Params()
	assert.Equal(t, thermal.Temperature(60), p.Target)
	assert.Equal(t, 0, p.HystUp)
	assert.Equal(t, 5, p.HystDown)
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"SensorKind", "sensor:\n  kind: i2c\n", "sensor.kind must be 'sysfs' or 'hwmon'"},
		{"SysfsPath", "sensor:\n  path: ''\n", "sensor.path is required when sensor.kind is 'sysfs'"},
		{"HwmonKey", "sensor:\n  kind: hwmon\n", "sensor.key is required when sensor.kind is 'hwmon'"},
		{"ReadWidth", "sensor:\n  read_width: -1\n", "sensor.read_width must be >= 0"},
		{"MaxFailures", "sensor:\n  max_failures: 0\n", "sensor.max_failures must be >= 1"},
		{"Backend", "fan:\n  backend: i2c\n", "fan.backend must be one of sysfs, rpio, periph, gpio, log"},
		{"Pin", "fan:\n  pin: 0\n", "fan.pin must be > 0"},
		{"Frequency", "fan:\n  frequency_hz: -1\n", "fan.frequency_hz must be >= 0"},
		{"StartupDurations", "fan:\n  startup_test: true\n  startup_min: 0s\n", "fan.startup_full and fan.startup_min must be > 0 when fan.startup_test is true"},
		{"Interval", "control:\n  interval: 0s\n", "control.interval must be > 0"},
		{"MinOverMax", "control:\n  min_speed: 150\n  max_speed: 100\n", "control: fancontrol: min speed 150 exceeds max speed 100"},
		{"MaxOverRange", "control:\n  range: 100\n", "control: fancontrol: max speed 200 exceeds range 100"},
		{"Depth", "control:\n  history_depth: 0\n", "control: fancontrol: history depth must be >= 1, got 0"},
		{"Listen", "web:\n  listen: localhost\n", "web.listen must be host:port: address localhost: missing port in address"},
		{"LogLevel", "log:\n  level: loud\n", "log.level \"loud\" is not a valid level"},
		{"LogFormat", "log:\n  format: xml\n", "log.format must be 'text' or 'json'"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.body))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_LogBackendNeedsNoPin(t *testing.T) {
	_, err := Load(writeTempConfig(t, "fan:\n  backend: log\n  pin: 0\n"))
	require.NoError(t, err)
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	_, err := Load(writeTempConfig(t, "control:\n  target: 50\n  kp: 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field kp not found in type config.ControlConfig")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFanService(t *testing.T) {
	cfg := Default()
	cfg.Fan.StartupTest = true
	require.NoError(t, DefaultAndValidate(&cfg))

	fc := cfg.FanService()
	assert.Equal(t, "sysfs", fc.Driver.Backend)
	assert.Equal(t, 18, fc.Driver.Pin)
	assert.Equal(t, 200, fc.Driver.Range)
	assert.Equal(t, 93, fc.Driver.FrequencyHz)
	assert.Equal(t, time.Second, fc.UpdateInterval)
	assert.Equal(t, 5, fc.MaxSensorFailures)
	assert.True(t, fc.StartupTest)
}

func TestSensorSource(t *testing.T) {
	_, ok := SensorConfig{Kind: "hwmon", Key: "cpu_thermal"}.Source().(*thermal.HwmonSource)
	assert.True(t, ok)

	src, ok := Default().Sensor.Source().(*thermal.SysfsSource)
	require.True(t, ok)
	assert.Equal(t, thermal.DefaultSysfsPath, src.Path)
	assert.Equal(t, 5, src.Width)
}
