// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package app wires the cluster components into runnable programs: the
// control loop, its telemetry and metrics, and the MQTT console and web
// subscribers.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/relabs-tech/gauge_cluster/internal/button"
	"github.com/relabs-tech/gauge_cluster/internal/gauge"
	"github.com/relabs-tech/gauge_cluster/internal/gps"
	"github.com/relabs-tech/gauge_cluster/internal/odometer"
)

// TextDisplay shows one short line of text.
type TextDisplay interface {
	DrawString(s string) error
}

// Watchdog must be fed at least once per tick.
type Watchdog interface {
	Feed() error
}

// Store persists the odometer and counts its writes.
type Store interface {
	odometer.Saver
	WriteCount() uint32
}

// Needle consumes one speed reading per tick.
type Needle interface {
	Drive(raw float64)
	Position() int
}

// Publisher ships a status snapshot off the device.
type Publisher interface {
	PublishStatus(s Status) error
}

// Options tune the control loop.
type Options struct {
	DisplayInterval   time.Duration
	TelemetryInterval time.Duration
	StatusInterval    time.Duration
	MaxSpeedKmh       float64
	TestSpeedStep     float64 // km/h added per tick in test mode
	UTCOffsetHours    int
	Filter            gps.Params
	Buttons           button.Thresholds
	CommandBuffer     int
}

// DefaultOptions returns the stock loop tuning.
func DefaultOptions() Options {
	return Options{
		DisplayInterval:   100 * time.Millisecond,
		TelemetryInterval: time.Second,
		StatusInterval:    2 * time.Second,
		MaxSpeedKmh:       240,
		TestSpeedStep:     0.1,
		UTCOffsetHours:    -3,
		Filter:            gps.DefaultParams(),
		Buttons:           button.DefaultThresholds(),
		CommandBuffer:     16,
	}
}

// Deps are the collaborators of a Cluster. Watchdog, Publisher and Metrics
// may be nil.
type Deps struct {
	Source    gps.FixSource
	Ledger    *odometer.Ledger
	Store     Store
	Needle    Needle
	Button    gauge.LimitInput
	Upper     TextDisplay // total
	Lower     TextDisplay // trip, speed or time
	Watchdog  Watchdog
	Publisher Publisher
	Metrics   *Metrics
}

// Status is the telemetry snapshot published by the cluster.
type Status struct {
	Odometer   odometer.Snapshot `json:"odometer"`
	Mode       odometer.TripMode `json:"mode"`
	SpeedKmh   float64           `json:"speed_kmh"`
	Fix        gps.Fix           `json:"fix"`
	Rejection  string            `json:"rejection"`
	NeedleStep int               `json:"needle_step"`
	WriteCount uint32            `json:"write_count"`
	TestMode   bool              `json:"test_mode"`
	Uptime     time.Duration     `json:"uptime_ns"`
	Time       time.Time         `json:"time"`
}

// Cluster is the single owner of the ledger, filter, needle and store. All
// of its state is touched only from the goroutine calling Tick or Run.
type Cluster struct {
	opts     Options
	d        Deps
	filter   *gps.Filter
	buttons  *button.Classifier
	commands chan Command

	tickNow time.Time
	started time.Time

	mode       odometer.TripMode
	fix        gps.Fix
	polled     bool
	speed      float64
	infoScreen bool
	testMode   bool
	testStep   float64

	lastDisplay   time.Time
	lastTelemetry time.Time
	lastStatus    time.Time
	upperText     string
	lowerText     string
}

// NewCluster builds a cluster in Partial mode.
func NewCluster(d Deps, opts Options) *Cluster {
	if opts.CommandBuffer <= 0 {
		opts.CommandBuffer = 1
	}
	c := &Cluster{
		opts:     opts,
		d:        d,
		buttons:  button.New(opts.Buttons),
		commands: make(chan Command, opts.CommandBuffer),
		mode:     odometer.Partial,
		testStep: opts.TestSpeedStep,
	}
	c.filter = gps.NewFilter(opts.Filter, func() time.Time { return c.tickNow })
	return c
}

// Submit queues a command for the next tick. It never blocks and reports
// false when the queue is full.
func (c *Cluster) Submit(cmd Command) bool {
	select {
	case c.commands <- cmd:
		return true
	default:
		log.Warn().Str("cmd", cmd.Kind).Msg("cluster: command queue full, dropped")
		return false
	}
}

// Mode returns the active display mode.
func (c *Cluster) Mode() odometer.TripMode { return c.mode }

// Speed returns the speed last sent to the needle.
func (c *Cluster) Speed() float64 { return c.speed }

// TestMode reports whether the simulated speed drives the needle.
func (c *Cluster) TestMode() bool { return c.testMode }

// Run ticks the loop every interval until ctx is done, then flushes any
// unsaved distance.
func (c *Cluster) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("cluster: control loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("cluster: stopping, flushing odometer")
			return c.d.Ledger.Flush(c.d.Store, time.Now())
		case now := <-ticker.C:
			c.Tick(now)
		}
	}
}

// Tick runs one pass of the control loop. It never blocks.
func (c *Cluster) Tick(now time.Time) {
	c.tickNow = now
	if c.started.IsZero() {
		c.started = now
	}

	if c.d.Watchdog != nil {
		if err := c.d.Watchdog.Feed(); err != nil {
			log.Warn().Err(err).Msg("cluster: watchdog feed failed")
		}
	}

	c.drainCommands()
	c.updateFix()
	c.d.Ledger.CheckLimits()
	c.save(now)
	c.driveNeedle()
	c.handleButton(c.buttons.Sample(c.d.Button.IsPressed(), now))

	if now.Sub(c.lastDisplay) >= c.opts.DisplayInterval {
		c.lastDisplay = now
		c.refreshDisplays(now)
	}
	if c.d.Publisher != nil && now.Sub(c.lastTelemetry) >= c.opts.TelemetryInterval {
		c.lastTelemetry = now
		if err := c.d.Publisher.PublishStatus(c.Status()); err != nil {
			log.Debug().Err(err).Msg("cluster: telemetry publish failed")
		}
	}
	if now.Sub(c.lastStatus) >= c.opts.StatusInterval {
		c.lastStatus = now
		c.logStatus()
	}
	c.d.Metrics.observeTick(c)
}

func (c *Cluster) drainCommands() {
	for {
		select {
		case cmd := <-c.commands:
			if err := c.apply(cmd); err != nil {
				log.Warn().Err(err).Str("cmd", cmd.Kind).Msg("cluster: command rejected")
				c.d.Metrics.command(cmd.Kind, false)
				continue
			}
			c.d.Metrics.command(cmd.Kind, true)
		default:
			return
		}
	}
}

// updateFix consumes the latest fix. Each distinct fix is accumulated once.
func (c *Cluster) updateFix() {
	fix, err := c.d.Source.Poll()
	if err != nil {
		if !errors.Is(err, gps.ErrNoFix) {
			log.Debug().Err(err).Msg("cluster: fix poll failed")
		}
		fix = gps.Fix{}
	}
	if fix.ValidFix != c.fix.ValidFix {
		log.Info().Bool("valid", fix.ValidFix).Int("sats", fix.SatellitesUsed).Msg("cluster: fix validity changed")
		c.d.Ledger.MarkRedraw(true, true)
	}
	if c.polled && fix.Equal(c.fix) {
		return
	}
	c.fix, c.polled = fix, true

	delta := c.filter.Accumulate(fix, c.d.Ledger, c.mode)
	c.d.Metrics.observeFix(fix, c.filter.LastRejection(), delta)
}

func (c *Cluster) save(now time.Time) {
	saved, err := c.d.Ledger.SaveIfDue(c.d.Store, now)
	switch {
	case err != nil:
		log.Error().Err(err).Msg("cluster: odometer save failed, will retry")
		c.d.Metrics.saveResult(false)
	case saved:
		log.Debug().Uint32("writes", c.d.Store.WriteCount()).Msg("cluster: odometer saved")
		c.d.Metrics.saveResult(true)
	}
}

func (c *Cluster) driveNeedle() {
	var v float64
	switch {
	case c.testMode:
		c.stepTestSpeed()
		v = c.speed
	case c.fix.ValidFix:
		v = c.fix.SpeedKmh
	}
	c.speed = clamp(v, 0, c.opts.MaxSpeedKmh)
	c.d.Needle.Drive(c.speed)
}

// stepTestSpeed ramps the simulated speed between 0 and MaxSpeedKmh.
func (c *Cluster) stepTestSpeed() {
	c.speed += c.testStep
	if c.speed <= 0 || c.speed >= c.opts.MaxSpeedKmh {
		c.testStep = -c.testStep
	}
}

func (c *Cluster) handleButton(ev button.Event) {
	switch ev {
	case button.Short:
		c.mode = c.mode.Next()
		c.infoScreen = false
		c.d.Ledger.MarkRedraw(true, false)
		log.Info().Stringer("mode", c.mode).Msg("cluster: mode changed")
	case button.Hold:
		c.d.Ledger.Reset(c.mode)
		c.d.Ledger.MarkRedraw(true, false)
		log.Info().Stringer("mode", c.mode).Msg("cluster: trip reset from button")
	case button.LongHold:
		c.infoScreen = !c.infoScreen
		c.d.Ledger.MarkRedraw(true, true)
		log.Info().Bool("on", c.infoScreen).Msg("cluster: GPS info screen toggled")
	case button.VeryLong:
		c.setTestMode(!c.testMode)
	case button.None:
	}
}

func (c *Cluster) setTestMode(on bool) {
	c.testMode = on
	c.testStep = c.opts.TestSpeedStep
	if !on {
		c.speed = 0
	}
	c.d.Ledger.MarkRedraw(true, true)
	log.Warn().Bool("on", on).Msg("cluster: simulated speed test mode")
}

func (c *Cluster) refreshDisplays(now time.Time) {
	tripRedraw, totalRedraw := c.d.Ledger.TakeRedraw()
	upper, lower := c.frame(now)

	if totalRedraw || upper != c.upperText {
		if err := c.d.Upper.DrawString(upper); err != nil {
			log.Warn().Err(err).Msg("cluster: upper display write failed")
		} else {
			c.upperText = upper
		}
	}
	if tripRedraw || lower != c.lowerText {
		if err := c.d.Lower.DrawString(lower); err != nil {
			log.Warn().Err(err).Msg("cluster: lower display write failed")
		} else {
			c.lowerText = lower
		}
	}
}

// frame computes the text for the upper and lower displays.
func (c *Cluster) frame(now time.Time) (upper, lower string) {
	f := c.fix
	if c.infoScreen {
		return fmt.Sprintf("SAT%d", f.SatellitesUsed), fmt.Sprintf("HDOP %.1f", f.HDOP)
	}
	if !f.ValidFix && !c.testMode {
		switch {
		case f.SatellitesUsed == 0:
			return "GPS", "SEARCH"
		case f.SatellitesUsed < c.opts.Filter.MinSatellites:
			return fmt.Sprintf("SAT%d", f.SatellitesUsed), "WAIT"
		default:
			return fmt.Sprintf("SAT%d", f.SatellitesUsed), "CALC"
		}
	}

	upper = c.d.Ledger.TotalDisplay()
	switch c.mode {
	case odometer.Speed:
		lower = fmt.Sprintf("%d", int(c.speed))
	case odometer.Time:
		lower = c.clock(now)
	case odometer.Partial, odometer.Trip1, odometer.Trip2, odometer.Trip3:
		lower = c.d.Ledger.CurrentDisplay(c.mode)
	}
	return upper, lower
}

// clock shows local time from the receiver, or uptime without one.
func (c *Cluster) clock(now time.Time) string {
	if c.fix.TimeValid {
		h, m := LocalClock(c.fix.Hour, c.fix.Minute, c.opts.UTCOffsetHours)
		return fmt.Sprintf("%02d:%02d", h, m)
	}
	up := now.Sub(c.started)
	return fmt.Sprintf("%02d:%02d", int(up.Hours())%24, int(up.Minutes())%60)
}

// LocalClock shifts a UTC hour and minute by offset hours, wrapping at
// midnight.
func LocalClock(hour, minute, offset int) (int, int) {
	const day = 24 * 60
	total := ((hour+offset)*60 + minute) % day
	if total < 0 {
		total += day
	}
	return total / 60, total % 60
}

func (c *Cluster) logStatus() {
	f := c.fix
	ev := log.Info()
	if !f.ValidFix {
		ev = log.Debug()
	}
	ev.Bool("valid", f.ValidFix).
		Int("sats", f.SatellitesUsed).
		Float64("hdop", f.HDOP).
		Float64("speed_kmh", c.speed).
		Str("utc", gps.FormatClock(f)).
		Stringer("mode", c.mode).
		Str("rejection", c.filter.LastRejection().String()).
		Float64("total_km", c.d.Ledger.Total.Current).
		Msg("cluster: GPS status")
}

// Status snapshots the loop state for telemetry.
func (c *Cluster) Status() Status {
	return Status{
		Odometer:   c.d.Ledger.Snapshot(),
		Mode:       c.mode,
		SpeedKmh:   c.speed,
		Fix:        c.fix,
		Rejection:  c.filter.LastRejection().String(),
		NeedleStep: c.d.Needle.Position(),
		WriteCount: c.d.Store.WriteCount(),
		TestMode:   c.testMode,
		Uptime:     c.tickNow.Sub(c.started),
		Time:       c.tickNow,
	}
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
