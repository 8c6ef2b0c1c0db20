//go:build linux

package fancontrol

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakePWMTree(t *testing.T, npwm string, exported ...string) string {
	t.Helper()
	dir := t.TempDir()
	base := filepath.Join(dir, "pwm")
	require.NoError(t, os.MkdirAll(base, 0o755))

	// Real pwmchips live elsewhere and are symlinked into /sys/class/pwm.
	realChip := filepath.Join(dir, "realchip0")
	require.NoError(t, os.MkdirAll(realChip, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(realChip, "npwm"), []byte(npwm), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(realChip, "export"), nil, 0o644))
	for _, ch := range exported {
		p := filepath.Join(realChip, ch)
		require.NoError(t, os.MkdirAll(p, 0o755))
		for _, attr := range []string{"period", "duty_cycle", "enable"} {
			require.NoError(t, os.WriteFile(filepath.Join(p, attr), nil, 0o644))
		}
	}
	require.NoError(t, os.Symlink(realChip, filepath.Join(base, "pwmchip0")))

	old := pwmSysfsBase
	pwmSysfsBase = base
	t.Cleanup(func() { pwmSysfsBase = old })
	return filepath.Join(base, "pwmchip0")
}

func stubPi5(t *testing.T, v bool) {
	t.Helper()
	old := isPi5Fn
	isPi5Fn = func() bool { return v }
	t.Cleanup(func() { isPi5Fn = old })
}

func readAttr(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestFindPWMChip_AcceptsSymlinkedPWMChip(t *testing.T) {
	link := fakePWMTree(t, "2\n")

	chipPath, err := findPWMChip(0)
	require.NoError(t, err)
	assert.Equal(t, link, chipPath)

	_, err = findPWMChip(2)
	require.Error(t, err)
}

func TestPWMChannelForPin(t *testing.T) {
	cases := []struct {
		pin  int
		pi5  bool
		want int
	}{
		{18, false, 0},
		{12, false, 0},
		{19, false, 1},
		{18, true, 2},
		{19, true, 3},
		{12, true, 0},
	}
	for _, tc := range cases {
		got, err := pwmChannelForPin(tc.pin, tc.pi5)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "pin %d pi5=%v", tc.pin, tc.pi5)
	}

	_, err := pwmChannelForPin(17, false)
	require.EqualError(t, err, "fancontrol: gpio 17 has no hardware pwm channel")
}

func TestSysfsPWM_SetDutyScalesPeriod(t *testing.T) {
	chip := fakePWMTree(t, "2\n", "pwm0")
	stubPi5(t, false)

	act, err := openSysfsPWM(DriverConfig{Pin: 18, FrequencyHz: 100, Range: 200})
	require.NoError(t, err)

	pwm := filepath.Join(chip, "pwm0")
	assert.Equal(t, "10000000", readAttr(t, filepath.Join(pwm, "period")))
	assert.Equal(t, "1", readAttr(t, filepath.Join(pwm, "enable")))

	require.NoError(t, act.SetDuty(100))
	assert.Equal(t, "5000000", readAttr(t, filepath.Join(pwm, "duty_cycle")))

	require.Error(t, act.SetDuty(201))
	require.Error(t, act.SetDuty(-1))
}
