// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/relabs-tech/gauge_cluster/internal/odometer"
)

// Params are the accuracy gates applied to every fix.
type Params struct {
	MinSatellites  int
	MaxHDOP        float64
	MinSpeedKmh    float64
	MaxJumpKm      float64 // larger hops are treated as glitches
	ConsistencyKmh float64 // warn when computed and reported speed differ by more
	NoiseFloorKm   float64 // accepted hops below this count as zero
}

// DefaultParams returns the gates used on the road.
func DefaultParams() Params {
	return Params{
		MinSatellites:  4,
		MaxHDOP:        5.0,
		MinSpeedKmh:    2.0,
		MaxJumpKm:      10.0,
		ConsistencyKmh: 20.0,
		NoiseFloorKm:   0.005,
	}
}

// consistency warnings are only raised above this computed speed
const consistencyMinKmh = 5.0

// Rejection says why the last fix contributed no distance.
type Rejection int

const (
	Accepted Rejection = iota
	RejectNoFix
	RejectSatellites
	RejectHDOP
	RejectSpeed
	RejectJump
)

func (r Rejection) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RejectNoFix:
		return "no_fix"
	case RejectSatellites:
		return "satellites"
	case RejectHDOP:
		return "hdop"
	case RejectSpeed:
		return "speed"
	case RejectJump:
		return "jump"
	}
	return "unknown"
}

// Filter turns a stream of fixes into trusted distance increments. The
// reference position only moves on accepted fixes.
type Filter struct {
	p   Params
	now func() time.Time

	seeded  bool
	refLat  float64
	refLon  float64
	refTime time.Time
	last    Rejection
}

// NewFilter builds a filter. now defaults to time.Now.
func NewFilter(p Params, now func() time.Time) *Filter {
	if now == nil {
		now = time.Now
	}
	return &Filter{p: p, now: now}
}

// Accumulate gates fix and, when accepted, feeds the resulting distance into
// ledger. It returns the accepted distance in kilometers.
func (f *Filter) Accumulate(fix Fix, ledger *odometer.Ledger, active odometer.TripMode) float64 {
	if r := f.gate(fix); r != Accepted {
		f.last = r
		return 0
	}

	now := f.now()
	if !f.seeded {
		f.moveReference(fix, now)
		f.seeded = true
		f.last = Accepted
		log.Info().Float64("lat", fix.Latitude).Float64("lon", fix.Longitude).Msg("gps: first usable fix, reference seeded")
		ledger.OnDistance(0, active)
		return 0
	}

	dist := Haversine(f.refLat, f.refLon, fix.Latitude, fix.Longitude)
	if dist > f.p.MaxJumpKm {
		f.last = RejectJump
		log.Warn().Float64("jump_km", dist).Msg("gps: unrealistic jump, fix dropped")
		return 0
	}

	if hours := now.Sub(f.refTime).Hours(); hours > 0 {
		calc := dist / hours
		if calc > consistencyMinKmh && math.Abs(calc-fix.SpeedKmh) > f.p.ConsistencyKmh {
			log.Warn().
				Float64("calculated_kmh", calc).
				Float64("reported_kmh", fix.SpeedKmh).
				Msg("gps: speed inconsistency")
		}
	}

	f.moveReference(fix, now)
	f.last = Accepted
	if dist < f.p.NoiseFloorKm {
		dist = 0
	}
	ledger.OnDistance(dist, active)
	return dist
}

func (f *Filter) gate(fix Fix) Rejection {
	switch {
	case !fix.ValidFix:
		return RejectNoFix
	case fix.SatellitesUsed < f.p.MinSatellites:
		log.Debug().Int("sats", fix.SatellitesUsed).Msg("gps: insufficient satellites")
		return RejectSatellites
	case fix.HDOP > f.p.MaxHDOP:
		log.Debug().Float64("hdop", fix.HDOP).Msg("gps: poor accuracy")
		return RejectHDOP
	case fix.SpeedKmh < f.p.MinSpeedKmh:
		log.Debug().Float64("speed_kmh", fix.SpeedKmh).Msg("gps: speed too low for distance")
		return RejectSpeed
	}
	return Accepted
}

func (f *Filter) moveReference(fix Fix, now time.Time) {
	f.refLat, f.refLon, f.refTime = fix.Latitude, fix.Longitude, now
}

// LastRejection reports the outcome of the most recent Accumulate call.
func (f *Filter) LastRejection() Rejection { return f.last }

// Reference returns the last accepted position.
func (f *Filter) Reference() (lat, lon float64, ok bool) {
	return f.refLat, f.refLon, f.seeded
}
