// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"errors"
	"time"
)

// ErrNoFix is returned by a FixSource that has not decoded any position yet.
var ErrNoFix = errors.New("gps: no fix available")

// Fix is the merged receiver state consumed once per control tick.
type Fix struct {
	Latitude       float64   `json:"lat"`        // decimal degrees
	Longitude      float64   `json:"lon"`        // decimal degrees
	Altitude       float64   `json:"alt_m"`      // meters above MSL
	SpeedKmh       float64   `json:"speed_kmh"`  // speed over ground
	Course         float64   `json:"course_deg"` // course over ground
	SatellitesUsed int       `json:"sats"`
	HDOP           float64   `json:"hdop"`
	ValidFix       bool      `json:"valid"`
	TimeValid      bool      `json:"time_valid"` // Hour/Minute/Second hold receiver UTC
	Hour           int       `json:"hour"`
	Minute         int       `json:"minute"`
	Second         int       `json:"second"`
	Time           time.Time `json:"time"` // full UTC timestamp once a date has been seen
}

// Equal reports whether f and o describe the same receiver report. The
// timestamps are compared as instants.
func (f Fix) Equal(o Fix) bool {
	return f.Latitude == o.Latitude &&
		f.Longitude == o.Longitude &&
		f.Altitude == o.Altitude &&
		f.SpeedKmh == o.SpeedKmh &&
		f.Course == o.Course &&
		f.SatellitesUsed == o.SatellitesUsed &&
		f.HDOP == o.HDOP &&
		f.ValidFix == o.ValidFix &&
		f.TimeValid == o.TimeValid &&
		f.Hour == o.Hour &&
		f.Minute == o.Minute &&
		f.Second == o.Second &&
		f.Time.Equal(o.Time)
}

// FixSource hands out the latest fix without blocking.
type FixSource interface {
	Poll() (Fix, error)
}
