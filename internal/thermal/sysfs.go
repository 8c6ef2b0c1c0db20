package thermal

import (
	"bytes"
	"fmt"
	"os"
)

// DefaultReadWidth matches the 5 character window the sensor has always been
// read with. Readings of 100 °C and above do not fit in it.
const DefaultReadWidth = 5

// SysfsSource reads a millidegree value from a text file such as
// /sys/class/thermal/thermal_zone0/temp.
type SysfsSource struct {
	Path string
	// Width limits how many leading characters of the first line are
	// parsed. Zero parses the whole line.
	Width int
}

// NewSysfsSource returns a source for path, defaulting to thermal_zone0.
func NewSysfsSource(path string, width int) *SysfsSource {
	if path == "" {
		path = DefaultSysfsPath
	}
	if width < 0 {
		width = 0
	}
	return &SysfsSource{Path: path, Width: width}
}

func (s *SysfsSource) Read() (Temperature, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return 0, fmt.Errorf("thermal: read %s: %w", s.Path, err)
	}
	milli, err := parseMilli(firstLine(b, s.Width))
	if err != nil {
		return 0, fmt.Errorf("thermal: parse %s: %w", s.Path, err)
	}
	return Normalize(milli), nil
}

// firstLine returns at most width bytes of b, stopping after the first
// newline.
func firstLine(b []byte, width int) string {
	if width > 0 && len(b) > width {
		b = b[:width]
	}
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[:i+1]
	}
	return string(b)
}
