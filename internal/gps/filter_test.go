// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/gauge_cluster/internal/odometer"
)

// about 50 m of latitude
const fiftyMeters = 0.00045

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func goodFix(lat, lon float64) Fix {
	return Fix{
		Latitude:       lat,
		Longitude:      lon,
		SpeedKmh:       180,
		SatellitesUsed: 8,
		HDOP:           0.9,
		ValidFix:       true,
	}
}

func newFilterAndLedger() (*Filter, *odometer.Ledger) {
	clk := &stepClock{t: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)}
	l := odometer.NewLedger(odometer.DefaultThresholds())
	l.Load(1000, 10)
	return NewFilter(DefaultParams(), clk.now), l
}

func TestHaversine(t *testing.T) {
	assert.InDelta(t, 111.195, Haversine(0, 0, 0, 1), 0.01)
	assert.InDelta(t, 0.05, Haversine(48, 11, 48+fiftyMeters, 11), 0.001)
	assert.Zero(t, Haversine(48, 11, 48, 11))
}

func TestFilterGates(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Fix)
		want   Rejection
	}{
		{"no lock", func(f *Fix) { f.ValidFix = false }, RejectNoFix},
		{"three satellites", func(f *Fix) { f.SatellitesUsed = 3 }, RejectSatellites},
		{"poor hdop", func(f *Fix) { f.HDOP = 5.1 }, RejectHDOP},
		{"nearly stationary", func(f *Fix) { f.SpeedKmh = 1.9 }, RejectSpeed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, l := newFilterAndLedger()
			require.Zero(t, f.Accumulate(goodFix(48, 11), l, odometer.Partial))

			fix := goodFix(48+fiftyMeters, 11)
			tc.mutate(&fix)
			assert.Zero(t, f.Accumulate(fix, l, odometer.Partial))
			assert.Equal(t, tc.want, f.LastRejection())
			assert.Equal(t, 1000.0, l.Total.Current)

			lat, _, ok := f.Reference()
			require.True(t, ok)
			assert.Equal(t, 48.0, lat)
		})
	}
}

func TestFilterBoundaryValuesPass(t *testing.T) {
	f, l := newFilterAndLedger()
	fix := goodFix(48, 11)
	fix.SatellitesUsed = 4
	fix.HDOP = 5.0
	fix.SpeedKmh = 2.0
	f.Accumulate(fix, l, odometer.Partial)
	assert.Equal(t, Accepted, f.LastRejection())
}

func TestFirstFixSeedsReference(t *testing.T) {
	f, l := newFilterAndLedger()

	_, _, ok := f.Reference()
	require.False(t, ok)

	assert.Zero(t, f.Accumulate(goodFix(48, 11), l, odometer.Partial))
	assert.Equal(t, Accepted, f.LastRejection())
	lat, lon, ok := f.Reference()
	require.True(t, ok)
	assert.Equal(t, 48.0, lat)
	assert.Equal(t, 11.0, lon)
	assert.Equal(t, 1000.0, l.Total.Current)
}

func TestFiftyMetersAccumulates(t *testing.T) {
	f, l := newFilterAndLedger()
	f.Accumulate(goodFix(48, 11), l, odometer.Trip1)

	d := f.Accumulate(goodFix(48+fiftyMeters, 11), l, odometer.Trip1)
	assert.InDelta(t, 0.05, d, 0.001)
	assert.InDelta(t, 1000.05, l.Total.Current, 0.001)
	assert.InDelta(t, 10.05, l.Partial.Current, 0.001)
	assert.InDelta(t, 0.05, l.Trips[0].Current, 0.001)
	assert.True(t, l.DataChanged)
}

func TestJumpRejectedKeepsReference(t *testing.T) {
	f, l := newFilterAndLedger()
	f.Accumulate(goodFix(48, 11), l, odometer.Partial)

	// roughly 22 km north
	assert.Zero(t, f.Accumulate(goodFix(48.2, 11), l, odometer.Partial))
	assert.Equal(t, RejectJump, f.LastRejection())
	lat, _, _ := f.Reference()
	assert.Equal(t, 48.0, lat)

	// the next sane fix is measured from the old reference
	d := f.Accumulate(goodFix(48+fiftyMeters, 11), l, odometer.Partial)
	assert.InDelta(t, 0.05, d, 0.001)
	assert.Equal(t, Accepted, f.LastRejection())
}

func TestNoiseFloorAdvancesReference(t *testing.T) {
	f, l := newFilterAndLedger()
	f.Accumulate(goodFix(48, 11), l, odometer.Partial)

	// about 3 m
	d := f.Accumulate(goodFix(48.000027, 11), l, odometer.Partial)
	assert.Zero(t, d)
	assert.Equal(t, Accepted, f.LastRejection())
	assert.Equal(t, 1000.0, l.Total.Current)

	lat, _, _ := f.Reference()
	assert.Equal(t, 48.000027, lat)
}

func TestInconsistentSpeedStillAccepted(t *testing.T) {
	f, l := newFilterAndLedger()
	f.Accumulate(goodFix(48, 11), l, odometer.Partial)

	fix := goodFix(48+fiftyMeters, 11)
	fix.SpeedKmh = 20 // computed is ~180 km/h
	d := f.Accumulate(fix, l, odometer.Partial)
	assert.InDelta(t, 0.05, d, 0.001)
}

func TestRejectionString(t *testing.T) {
	assert.Equal(t, "jump", RejectJump.String())
	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "unknown", Rejection(99).String())
}
