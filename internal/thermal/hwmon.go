package thermal

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/host"
)

const hwmonReadTimeout = 2 * time.Second

var sensorsTemperaturesFn = host.SensorsTemperaturesWithContext

// HwmonSource reads one sensor from the host's hwmon/ACPI temperature list.
type HwmonSource struct {
	Key string
}

func NewHwmonSource(key string) *HwmonSource {
	return &HwmonSource{Key: key}
}

func (s *HwmonSource) Read() (Temperature, error) {
	ctx, cancel := context.WithTimeout(context.Background(), hwmonReadTimeout)
	defer cancel()

	// gopsutil returns partial results together with a warnings error, so
	// look for the key before giving up on err.
	stats, err := sensorsTemperaturesFn(ctx)
	for _, st := range stats {
		if st.SensorKey == s.Key {
			return Normalize(int(st.Temperature * 1000)), nil
		}
	}
	if err != nil {
		return 0, fmt.Errorf("thermal: hwmon sensors: %w", err)
	}
	return 0, fmt.Errorf("thermal: hwmon sensor %q not found", s.Key)
}
