// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package odometer tracks total, partial and numbered trip distances and
// decides when the displays need redrawing and when the totals are worth
// persisting.
package odometer

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// Thresholds tune the ledger's display and persistence decisions.
// Distances are in kilometers.
type Thresholds struct {
	TripUpdate      float64       // redraw the trip display after this much distance
	TotalUpdate     float64       // redraw the total display after this much distance
	MinChange       float64       // drift from the saved value that marks data as changed
	MaxTrip         float64       // Trip1-3 wrap at this value
	MinSaveInterval time.Duration // minimum spacing between saves
}

// DefaultThresholds returns the values the cluster ships with.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TripUpdate:      0.1,
		TotalUpdate:     1.0,
		MinChange:       0.01,
		MaxTrip:         1000.0,
		MinSaveInterval: 3 * time.Second,
	}
}

// Counter holds the three views of one persisted distance.
type Counter struct {
	Current   float64 // running value
	Last      float64 // value most recently pushed to the display
	LastSaved float64 // value most recently committed to storage
}

func (c *Counter) zero() { *c = Counter{} }

// Saver persists the total and partial distances.
type Saver interface {
	Save(total, partial float64) error
}

// Ledger owns every distance counter. It is not safe for concurrent use;
// the control loop is its only owner.
type Ledger struct {
	Total   Counter
	Partial Counter
	Trips   [3]Counter // Trip1, Trip2, Trip3

	// DataChanged is set once any counter drifts from its saved value and
	// cleared only by a successful save.
	DataChanged bool

	th          Thresholds
	tripRedraw  bool
	totalRedraw bool
	lastSave    time.Time
}

// NewLedger returns an empty ledger.
func NewLedger(th Thresholds) *Ledger {
	return &Ledger{th: th}
}

// Load seeds total and partial from storage. Trip counters are not
// persisted and start at zero.
func (l *Ledger) Load(total, partial float64) {
	l.Total = Counter{Current: total, Last: total, LastSaved: total}
	l.Partial = Counter{Current: partial, Last: partial, LastSaved: partial}
	for i := range l.Trips {
		l.Trips[i].zero()
	}
	l.DataChanged = false
}

// counter maps a mode onto its counter; Speed and Time have none.
func (l *Ledger) counter(m TripMode) *Counter {
	switch m {
	case Partial:
		return &l.Partial
	case Trip1:
		return &l.Trips[0]
	case Trip2:
		return &l.Trips[1]
	case Trip3:
		return &l.Trips[2]
	case Speed, Time:
		return nil
	}
	return nil
}

// Value returns the current distance of a trip counter, 0 for Speed/Time.
func (l *Ledger) Value(m TripMode) float64 {
	if c := l.counter(m); c != nil {
		return c.Current
	}
	return 0
}

// OnDistance adds an accepted distance increment. Total and Partial always
// accumulate; a numbered trip only when it is the active mode.
func (l *Ledger) OnDistance(delta float64, active TripMode) {
	l.Total.Current += delta
	l.Partial.Current += delta
	switch active {
	case Trip1, Trip2, Trip3:
		l.counter(active).Current += delta
	case Partial, Speed, Time:
	}

	if l.driftedFromSaved() {
		l.DataChanged = true
	}

	if c := l.counter(active); c != nil && c.Current >= c.Last+l.th.TripUpdate {
		c.Last = c.Current
		l.tripRedraw = true
	}
	if l.Total.Current >= l.Total.Last+l.th.TotalUpdate {
		l.Total.Last = math.Floor(l.Total.Current)
		l.totalRedraw = true
	}
}

func (l *Ledger) driftedFromSaved() bool {
	all := [...]*Counter{&l.Total, &l.Partial, &l.Trips[0], &l.Trips[1], &l.Trips[2]}
	for _, c := range all {
		if math.Abs(c.Current-c.LastSaved) > l.th.MinChange {
			return true
		}
	}
	return false
}

// CheckLimits wraps trip counters that reached MaxTrip. Trip2 and Trip3 go
// through the full reset path. Trip1 only has its running value zeroed and
// keeps its display and saved snapshots; see DESIGN.md.
func (l *Ledger) CheckLimits() {
	if l.Trips[0].Current >= l.th.MaxTrip {
		l.Trips[0].Current = 0
		log.Warn().Float64("limit_km", l.th.MaxTrip).Msg("odometer: Trip1 wrapped (running value only)")
	}
	for _, m := range [...]TripMode{Trip2, Trip3} {
		if l.counter(m).Current >= l.th.MaxTrip {
			l.Reset(m)
			l.tripRedraw = true
			log.Info().Stringer("trip", m).Float64("limit_km", l.th.MaxTrip).Msg("odometer: trip auto-reset")
		}
	}
}

// Reset zeroes every view of the named counter. Speed and Time are no-ops.
func (l *Ledger) Reset(m TripMode) {
	c := l.counter(m)
	if c == nil {
		return
	}
	c.zero()
	l.DataChanged = true
}

// CurrentDisplay formats the running value of a trip counter for the lower
// display. Speed and Time have no distance and return "".
func (l *Ledger) CurrentDisplay(m TripMode) string {
	switch m {
	case Partial:
		return fmt.Sprintf("%.1f", l.Partial.Current)
	case Trip1:
		return fmt.Sprintf("T1 %.1f", l.Trips[0].Current)
	case Trip2:
		return fmt.Sprintf("T2 %.1f", l.Trips[1].Current)
	case Trip3:
		return fmt.Sprintf("T3 %.1f", l.Trips[2].Current)
	case Speed, Time:
		return ""
	}
	return ""
}

// TotalDisplay formats the displayed total as whole kilometers.
func (l *Ledger) TotalDisplay() string {
	return fmt.Sprintf("%d", int64(l.Total.Last))
}

// MarkRedraw forces the next refresh to redraw the given halves.
func (l *Ledger) MarkRedraw(trip, total bool) {
	l.tripRedraw = l.tripRedraw || trip
	l.totalRedraw = l.totalRedraw || total
}

// TakeRedraw returns and clears the pending redraw flags.
func (l *Ledger) TakeRedraw() (trip, total bool) {
	trip, total = l.tripRedraw, l.totalRedraw
	l.tripRedraw, l.totalRedraw = false, false
	return trip, total
}

// SaveIfDue persists total and partial when data changed and the minimum
// save interval has elapsed. A failed save also restarts the interval so
// the next attempt waits for the next natural trigger.
func (l *Ledger) SaveIfDue(s Saver, now time.Time) (bool, error) {
	if !l.DataChanged || now.Sub(l.lastSave) <= l.th.MinSaveInterval {
		return false, nil
	}
	l.lastSave = now
	if err := s.Save(l.Total.Current, l.Partial.Current); err != nil {
		return false, fmt.Errorf("save odometer: %w", err)
	}
	l.commit()
	return true, nil
}

// Flush saves pending changes regardless of the save interval. Used on an
// orderly shutdown.
func (l *Ledger) Flush(s Saver, now time.Time) error {
	if !l.DataChanged {
		return nil
	}
	l.lastSave = now
	if err := s.Save(l.Total.Current, l.Partial.Current); err != nil {
		return fmt.Errorf("flush odometer: %w", err)
	}
	l.commit()
	return nil
}

// SetTotal overrides the total distance and saves immediately. The saved
// view follows only once the save succeeds.
func (l *Ledger) SetTotal(s Saver, km float64) error {
	log.Info().Float64("from_km", l.Total.Current).Float64("to_km", km).Msg("odometer: setting total")

	l.Total.Current, l.Total.Last = km, km
	l.DataChanged = true
	l.totalRedraw = true
	if err := s.Save(l.Total.Current, l.Partial.Current); err != nil {
		return fmt.Errorf("save new total: %w", err)
	}
	l.commit()
	return nil
}

func (l *Ledger) commit() {
	l.Total.LastSaved = l.Total.Current
	l.Partial.LastSaved = l.Partial.Current
	for i := range l.Trips {
		l.Trips[i].LastSaved = l.Trips[i].Current
	}
	l.DataChanged = false
}

// Snapshot is a serialisable view of the ledger.
type Snapshot struct {
	TotalKm     float64 `json:"total_km"`
	PartialKm   float64 `json:"partial_km"`
	Trip1Km     float64 `json:"trip1_km"`
	Trip2Km     float64 `json:"trip2_km"`
	Trip3Km     float64 `json:"trip3_km"`
	DataChanged bool    `json:"data_changed"`
}

// Snapshot copies the current values.
func (l *Ledger) Snapshot() Snapshot {
	return Snapshot{
		TotalKm:     l.Total.Current,
		PartialKm:   l.Partial.Current,
		Trip1Km:     l.Trips[0].Current,
		Trip2Km:     l.Trips[1].Current,
		Trip3Km:     l.Trips[2].Current,
		DataChanged: l.DataChanged,
	}
}
