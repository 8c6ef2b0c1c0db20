package fancontrol

import "pifan/internal/thermal"

// history is a fixed-size ring of the most recent samples. It is always
// full: construction fills every slot with the first reading.
type history struct {
	samples []thermal.Temperature
	next    int
}

func newHistory(depth int, fill thermal.Temperature) *history {
	h := &history{samples: make([]thermal.Temperature, depth)}
	for i := range h.samples {
		h.samples[i] = fill
	}
	return h
}

func (h *history) push(t thermal.Temperature) {
	h.samples[h.next] = t
	h.next = (h.next + 1) % len(h.samples)
}

// average floors toward negative infinity, matching a right shift when the
// depth is a power of two.
func (h *history) average() thermal.Temperature {
	sum := 0
	for _, s := range h.samples {
		sum += int(s)
	}
	return thermal.Temperature(floorDiv(sum, len(h.samples)))
}

func (h *history) snapshot() []thermal.Temperature {
	return append([]thermal.Temperature(nil), h.samples...)
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
