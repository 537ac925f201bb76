// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package gauge drives a stepper-motor needle from a live reading: it
// filters the input, maps it to a calibrated step, takes up gear backlash on
// reversals and ramps the motor speed by the distance still to travel.
package gauge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrHomingFailed is returned when the limit switch is not found within the
// configured number of steps.
var ErrHomingFailed = errors.New("gauge: homing failed")

// Actuator moves the needle one step at a time.
type Actuator interface {
	Step(dir int)
	SetSpeed(rpm uint32)
	Stop()
}

// LimitInput is a polled switch.
type LimitInput interface {
	IsPressed() bool
}

// Tier selects RPM when more than Above steps remain to the target.
type Tier struct {
	Above int    `yaml:"above"`
	RPM   uint32 `yaml:"rpm"`
}

// Config holds the mechanical parameters of one gauge.
type Config struct {
	StepsPerRev    int
	BacklashSteps  int
	Tiers          []Tier // checked in order, first match wins
	FinestRPM      uint32
	HomeRPM        uint32
	HomeOffset     int
	MaxHomingSteps int
	Filter         FilterParams
}

// DefaultConfig matches a 28BYJ-48 geared stepper behind a speedometer face.
func DefaultConfig() Config {
	return Config{
		StepsPerRev:   2038,
		BacklashSteps: 8,
		Tiers: []Tier{
			{Above: 100, RPM: 4},
			{Above: 50, RPM: 3},
			{Above: 10, RPM: 2},
		},
		FinestRPM:      1,
		HomeRPM:        5,
		MaxHomingSteps: 2 * 2038,
		Filter:         DefaultFilterParams(),
	}
}

// Option customises a Controller.
type Option func(*Controller)

// WithClock replaces time.Now for step pacing.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithSleep replaces the wait used between steps outside Drive.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Controller) { c.sleep = sleep }
}

// Controller owns the needle position. It is driven from a single goroutine.
type Controller struct {
	act    Actuator
	limit  LimitInput
	table  *CalibrationTable
	cfg    Config
	filter *SpeedFilter
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error

	pos      int // steps from home
	target   int
	lastDir  int
	comp     int // backlash steps still to take
	compDir  int
	rpm      uint32
	lastStep time.Time
	parked   bool // coils released on target
}

// NewController wires a controller. The needle position is undefined until
// Home succeeds.
func NewController(act Actuator, limit LimitInput, table *CalibrationTable, cfg Config, opts ...Option) *Controller {
	if cfg.FinestRPM == 0 {
		cfg.FinestRPM = 1
	}
	if cfg.StepsPerRev <= 0 {
		cfg.StepsPerRev = DefaultConfig().StepsPerRev
	}
	c := &Controller{
		act:    act,
		limit:  limit,
		table:  table,
		cfg:    cfg,
		filter: NewSpeedFilter(cfg.Filter),
		now:    time.Now,
		sleep:  sleepCtx,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Drive feeds one raw reading and takes at most one step toward its
// calibrated position. It never blocks.
func (c *Controller) Drive(raw float64) {
	v := c.filter.Update(raw)

	if c.comp == 0 {
		c.target = c.table.StepFor(v)
		diff := c.target - c.pos
		if diff == 0 {
			if !c.parked {
				c.act.Stop()
				c.parked = true
			}
			return
		}
		dir := sign(diff)
		if c.lastDir != 0 && dir != c.lastDir && c.cfg.BacklashSteps > 0 {
			c.comp = c.cfg.BacklashSteps
			c.compDir = dir
			log.Trace().Int("dir", dir).Int("steps", c.comp).Msg("gauge: reversing, taking up backlash")
		}
		c.lastDir = dir
	}

	rpm := c.cfg.FinestRPM
	if c.comp == 0 {
		rpm = c.tierFor(abs(c.target - c.pos))
	}
	c.setSpeed(rpm)

	now := c.now()
	if now.Sub(c.lastStep) < c.stepInterval(rpm) {
		return
	}
	if c.comp > 0 {
		c.act.Step(c.compDir)
		c.comp--
	} else {
		dir := sign(c.target - c.pos)
		c.act.Step(dir)
		c.pos += dir
	}
	c.lastStep = now
	c.parked = false
}

func (c *Controller) tierFor(remaining int) uint32 {
	for _, t := range c.cfg.Tiers {
		if remaining > t.Above {
			return t.RPM
		}
	}
	return c.cfg.FinestRPM
}

func (c *Controller) setSpeed(rpm uint32) {
	if rpm == c.rpm {
		return
	}
	c.act.SetSpeed(rpm)
	c.rpm = rpm
}

func (c *Controller) stepInterval(rpm uint32) time.Duration {
	if rpm == 0 {
		rpm = c.cfg.FinestRPM
	}
	return time.Minute / time.Duration(c.cfg.StepsPerRev*int(rpm))
}

// Home finds the mechanical zero: forward while the limit switch is
// asserted, back until it asserts again, then the configured offset. The
// resulting position is step 0.
func (c *Controller) Home(ctx context.Context) error {
	c.setSpeed(c.cfg.HomeRPM)

	steps := 0
	for c.limit.IsPressed() {
		if err := c.homingStep(ctx, 1, &steps); err != nil {
			return err
		}
	}
	for !c.limit.IsPressed() {
		if err := c.homingStep(ctx, -1, &steps); err != nil {
			return err
		}
	}
	if err := c.move(ctx, c.cfg.HomeOffset); err != nil {
		return err
	}
	c.act.Stop()
	c.parked = true

	c.pos, c.target, c.lastDir, c.comp = 0, 0, 0, 0
	c.filter.Reset()
	c.setSpeed(c.cfg.FinestRPM)
	log.Info().Int("steps", steps).Int("offset", c.cfg.HomeOffset).Msg("gauge: homed")
	return nil
}

func (c *Controller) homingStep(ctx context.Context, dir int, steps *int) error {
	if *steps >= c.cfg.MaxHomingSteps {
		c.act.Stop()
		return fmt.Errorf("%w: limit switch not found after %d steps", ErrHomingFailed, *steps)
	}
	if err := c.sleep(ctx, c.stepInterval(c.rpm)); err != nil {
		c.act.Stop()
		return err
	}
	c.act.Step(dir)
	*steps++
	return nil
}

// move takes n steps (negative for reverse), pacing at the current speed.
func (c *Controller) move(ctx context.Context, n int) error {
	dir := sign(n)
	for i := 0; i < abs(n); i++ {
		if err := c.sleep(ctx, c.stepInterval(c.rpm)); err != nil {
			c.act.Stop()
			return err
		}
		c.act.Step(dir)
		c.parked = false
	}
	return nil
}

// Sweep visits every calibration point at rpm, pausing on each, then homes.
func (c *Controller) Sweep(ctx context.Context, rpm uint32, pause time.Duration) error {
	c.setSpeed(rpm)
	for _, p := range c.table.Points() {
		if err := c.move(ctx, p.Step-c.pos); err != nil {
			return err
		}
		c.pos = p.Step
		log.Info().Float64("value", p.Value).Int("step", p.Step).Msg("gauge: sweep point")
		if err := c.sleep(ctx, pause); err != nil {
			return err
		}
	}
	return c.Home(ctx)
}

// Jog moves the needle by steps for manual alignment.
func (c *Controller) Jog(ctx context.Context, steps int) error {
	if err := c.move(ctx, steps); err != nil {
		return err
	}
	c.pos += steps
	return nil
}

// Position returns the needle position in steps from home.
func (c *Controller) Position() int { return c.pos }

// Target returns the step position the needle is heading to.
func (c *Controller) Target() int { return c.target }

// Compensating reports whether backlash is being taken up.
func (c *Controller) Compensating() bool { return c.comp > 0 }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
