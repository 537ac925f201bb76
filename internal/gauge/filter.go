// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gauge

// FilterParams shape the input filter in front of the needle.
type FilterParams struct {
	DeadBand    float64 `yaml:"dead_band"`    // inputs below collapse to 0
	EnterMoving float64 `yaml:"enter_moving"` // latch on at or above
	ExitMoving  float64 `yaml:"exit_moving"`  // latch off at or below
	Window      int     `yaml:"window"`       // moving average length
	MaxRate     float64 `yaml:"max_rate"`     // max output change per update
}

// DefaultFilterParams returns the speedometer tuning.
func DefaultFilterParams() FilterParams {
	return FilterParams{
		DeadBand:    2.0,
		EnterMoving: 3.0,
		ExitMoving:  1.5,
		Window:      5,
		MaxRate:     15.0,
	}
}

// SpeedFilter applies dead-band, hysteresis, moving average and rate
// limiting, in that order.
type SpeedFilter struct {
	p      FilterParams
	moving bool
	buf    []float64
	idx    int
	out    float64
}

// NewSpeedFilter returns a filter at rest. A window below 1 is treated as 1.
func NewSpeedFilter(p FilterParams) *SpeedFilter {
	if p.Window < 1 {
		p.Window = 1
	}
	return &SpeedFilter{p: p, buf: make([]float64, p.Window)}
}

// Update feeds one raw sample and returns the filtered value.
func (f *SpeedFilter) Update(raw float64) float64 {
	v := raw
	if v < f.p.DeadBand {
		v = 0
	}

	if f.moving {
		if v <= f.p.ExitMoving {
			f.moving = false
		}
	} else if v >= f.p.EnterMoving {
		f.moving = true
	}
	if !f.moving {
		v = 0
	}

	f.buf[f.idx] = v
	f.idx = (f.idx + 1) % len(f.buf)
	var sum float64
	for _, s := range f.buf {
		sum += s
	}
	avg := sum / float64(len(f.buf))

	delta := avg - f.out
	if delta > f.p.MaxRate {
		delta = f.p.MaxRate
	} else if delta < -f.p.MaxRate {
		delta = -f.p.MaxRate
	}
	f.out += delta
	return f.out
}

// Value returns the last filtered output.
func (f *SpeedFilter) Value() float64 { return f.out }

// Reset returns the filter to rest.
func (f *SpeedFilter) Reset() {
	for i := range f.buf {
		f.buf[i] = 0
	}
	f.idx, f.out, f.moving = 0, 0, false
}
