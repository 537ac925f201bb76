// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package odometer

import "fmt"

// TripMode selects what the lower display shows and which numbered trip
// accumulates distance.
type TripMode int

const (
	Partial TripMode = iota
	Trip1
	Trip2
	Trip3
	Speed
	Time

	modeCount = iota
)

var modeNames = [modeCount]string{"Partial", "Trip1", "Trip2", "Trip3", "Speed", "Time"}

// String returns the mode name as shown in logs and telemetry.
func (m TripMode) String() string {
	if m < 0 || int(m) >= modeCount {
		return "Unknown"
	}
	return modeNames[m]
}

// Next cycles to the following mode, wrapping after Time.
func (m TripMode) Next() TripMode {
	return TripMode((int(m) + 1) % modeCount)
}

// HasCounter reports whether the mode is backed by a distance counter.
func (m TripMode) HasCounter() bool {
	switch m {
	case Partial, Trip1, Trip2, Trip3:
		return true
	case Speed, Time:
		return false
	}
	return false
}

// ParseTripMode accepts the names returned by String, case-sensitive, plus
// the short display prefixes "T1".."T3".
func ParseTripMode(s string) (TripMode, error) {
	switch s {
	case "T1":
		return Trip1, nil
	case "T2":
		return Trip2, nil
	case "T3":
		return Trip3, nil
	}
	for i, n := range modeNames {
		if n == s {
			return TripMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown trip mode %q", s)
}

// MarshalText lets modes appear by name in JSON payloads.
func (m TripMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *TripMode) UnmarshalText(b []byte) error {
	v, err := ParseTripMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
