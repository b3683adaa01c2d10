package presence

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Filter smooths raw samples with a bounded sliding window. The output is
// the median of the valid samples currently in the window; the median rather
// than the mean so a single specular glint cannot drag the estimate across a
// threshold.
type Filter struct {
	size   int
	window []Sample
}

// NewFilter returns a Filter holding the last size samples. Size must be at
// least 1.
func NewFilter(size int) *Filter {
	if size < 1 {
		size = 1
	}
	return &Filter{size: size}
}

// Push adds a sample to the window and returns the smoothed distance in mm.
// ok is false when every sample in the window is invalid; callers must not
// classify on an unknown reading.
func (f *Filter) Push(s Sample) (mm float64, ok bool) {
	f.window = append(f.window, s)
	if len(f.window) > f.size {
		f.window = f.window[1:]
	}
	return f.Value()
}

// Value returns the current smoothed distance without consuming a sample.
func (f *Filter) Value() (mm float64, ok bool) {
	valid := make([]float64, 0, len(f.window))
	for _, s := range f.window {
		if s.Valid {
			valid = append(valid, float64(s.Millimeters))
		}
	}
	if len(valid) == 0 {
		return 0, false
	}
	sort.Float64s(valid)
	return stat.Quantile(0.5, stat.Empirical, valid, nil), true
}

// Reset empties the window.
func (f *Filter) Reset() {
	f.window = f.window[:0]
}
