// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gauge

import (
	"errors"
	"fmt"
)

// ErrInvalidTable is returned for calibration tables that are empty or not
// strictly increasing in both value and step.
var ErrInvalidTable = errors.New("gauge: invalid calibration table")

// Point pairs a gauge reading with the actuator step that shows it.
type Point struct {
	Value float64 `yaml:"value"`
	Step  int     `yaml:"step"`
}

// CalibrationTable maps readings to step positions by linear interpolation.
// It is immutable once built.
type CalibrationTable struct {
	points []Point
}

// NewCalibrationTable validates and copies points.
func NewCalibrationTable(points []Point) (*CalibrationTable, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no points", ErrInvalidTable)
	}
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		if cur.Value <= prev.Value || cur.Step <= prev.Step {
			return nil, fmt.Errorf("%w: point %d (%g,%d) does not increase over (%g,%d)",
				ErrInvalidTable, i, cur.Value, cur.Step, prev.Value, prev.Step)
		}
	}
	return &CalibrationTable{points: append([]Point(nil), points...)}, nil
}

// StepFor returns the step position for v. Readings at or below the first
// point map to 0, readings above the last point clamp to its step, and
// interpolated fractions are truncated.
func (t *CalibrationTable) StepFor(v float64) int {
	if v <= t.points[0].Value {
		return 0
	}
	for i := 1; i < len(t.points); i++ {
		hi := t.points[i]
		if v > hi.Value {
			continue
		}
		lo := t.points[i-1]
		frac := (v - lo.Value) / (hi.Value - lo.Value)
		return lo.Step + int(frac*float64(hi.Step-lo.Step))
	}
	return t.points[len(t.points)-1].Step
}

// Points returns a copy of the table.
func (t *CalibrationTable) Points() []Point {
	return append([]Point(nil), t.points...)
}

// MaxValue is the reading of the last point.
func (t *CalibrationTable) MaxValue() float64 {
	return t.points[len(t.points)-1].Value
}
