// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gauge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMotor tracks the physical shaft position, independent of what the
// controller believes.
type fakeMotor struct {
	phys   int
	steps  []int
	speeds []uint32
	stops  int
}

func (m *fakeMotor) Step(dir int) {
	m.phys += dir
	m.steps = append(m.steps, dir)
}

func (m *fakeMotor) SetSpeed(rpm uint32) { m.speeds = append(m.speeds, rpm) }
func (m *fakeMotor) Stop()               { m.stops++ }

type fakeLimit struct {
	m       *fakeMotor
	pressed func(phys int) bool
}

func (l fakeLimit) IsPressed() bool { return l.pressed(l.m.phys) }

type manualClock struct{ t time.Time }

func (c *manualClock) now() time.Time { return c.t }

// tickingClock advances a second on every read so every Drive is due.
func tickingClock() func() time.Time {
	t := time.Unix(1_700_000_000, 0)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// passthrough makes the filter output equal its input.
var passthrough = FilterParams{DeadBand: 0, EnterMoving: 0, ExitMoving: -1, Window: 1, MaxRate: 1e9}

func linearTable(t *testing.T) *CalibrationTable {
	t.Helper()
	tbl, err := NewCalibrationTable([]Point{{0, 0}, {100, 1000}})
	require.NoError(t, err)
	return tbl
}

func newTestController(t *testing.T, opts ...Option) (*Controller, *fakeMotor) {
	t.Helper()
	m := &fakeMotor{}
	cfg := DefaultConfig()
	cfg.Filter = passthrough
	cfg.MaxHomingSteps = 50
	lim := fakeLimit{m: m, pressed: func(int) bool { return false }}
	opts = append([]Option{WithClock(tickingClock()), WithSleep(noSleep)}, opts...)
	return NewController(m, lim, linearTable(t), cfg, opts...), m
}

func drive(c *Controller, v float64, n int) {
	for i := 0; i < n; i++ {
		c.Drive(v)
	}
}

func TestCalibrationInterpolation(t *testing.T) {
	tbl, err := NewCalibrationTable([]Point{{60, 392}, {70, 458}})
	require.NoError(t, err)

	assert.Equal(t, 425, tbl.StepFor(65))
	assert.Equal(t, 0, tbl.StepFor(60))
	assert.Equal(t, 0, tbl.StepFor(10))
	assert.Equal(t, 458, tbl.StepFor(70))
	assert.Equal(t, 458, tbl.StepFor(300))
	assert.Equal(t, 398, tbl.StepFor(61)) // 392 + 6.6 truncated
}

func TestDefaultTableIsMonotone(t *testing.T) {
	_, tbl, err := DefaultProfile().Build()
	require.NoError(t, err)

	prev := tbl.StepFor(0)
	for v := 0.0; v <= 260; v += 0.25 {
		s := tbl.StepFor(v)
		require.GreaterOrEqual(t, s, prev, "value %v", v)
		prev = s
	}
	assert.Equal(t, 1687, tbl.StepFor(240))
	assert.Equal(t, 240.0, tbl.MaxValue())
}

func TestCalibrationTableValidation(t *testing.T) {
	cases := map[string][]Point{
		"empty":            nil,
		"value not rising": {{0, 0}, {10, 5}, {10, 9}},
		"step not rising":  {{0, 0}, {10, 5}, {20, 5}},
		"value decreasing": {{10, 0}, {5, 10}},
	}
	for name, pts := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewCalibrationTable(pts)
			require.ErrorIs(t, err, ErrInvalidTable)
		})
	}
}

func TestSpeedFilterRampAndRateLimit(t *testing.T) {
	f := NewSpeedFilter(DefaultFilterParams())

	var got []float64
	for i := 0; i < 7; i++ {
		got = append(got, f.Update(100))
	}
	assert.Equal(t, []float64{15, 30, 45, 60, 75, 90, 100}, got)
}

func TestSpeedFilterDeadBandAndHysteresis(t *testing.T) {
	p := DefaultFilterParams()
	p.Window = 1
	p.MaxRate = 1000
	f := NewSpeedFilter(p)

	assert.Zero(t, f.Update(1.9), "dead band")
	assert.Zero(t, f.Update(2.5), "below enter threshold")
	assert.Equal(t, 3.0, f.Update(3.0))
	assert.Equal(t, 2.5, f.Update(2.5), "latched while above exit")
	assert.Zero(t, f.Update(1.9))
	assert.Zero(t, f.Update(2.5), "latch released")
}

func TestSpeedFilterBounds(t *testing.T) {
	p := DefaultFilterParams()
	f := NewSpeedFilter(p)

	// deterministic noisy input between -20 and 280
	x := uint32(12345)
	prev := 0.0
	for i := 0; i < 2000; i++ {
		x = x*1664525 + 1013904223
		raw := float64(x%300) - 20
		out := f.Update(raw)
		require.GreaterOrEqual(t, out, 0.0)
		require.LessOrEqual(t, out, 280.0)
		require.LessOrEqual(t, out-prev, p.MaxRate+1e-9)
		require.GreaterOrEqual(t, out-prev, -p.MaxRate-1e-9)
		prev = out
	}

	f.Reset()
	assert.Zero(t, f.Value())
}

func TestDriveOneStepPerTickWithSpeedTiers(t *testing.T) {
	c, m := newTestController(t)

	drive(c, 5, 10)
	assert.Equal(t, 50, c.Target())
	assert.Equal(t, 10, c.Position())
	assert.Len(t, m.steps, 10)

	drive(c, 5, 100)
	assert.Equal(t, 50, c.Position())
	assert.Len(t, m.steps, 50, "no steps once on target")
	for _, s := range m.steps {
		assert.Equal(t, 1, s)
	}
	assert.Equal(t, []uint32{2, 1}, m.speeds)
}

func TestDriveReleasesCoilsOncePerPark(t *testing.T) {
	c, m := newTestController(t)

	drive(c, 1, 10)
	require.Equal(t, 10, c.Position())
	assert.Zero(t, m.stops, "moving toward target")

	drive(c, 1, 5)
	assert.Equal(t, 1, m.stops, "released on target, not every tick")

	drive(c, 2, 10)
	require.Equal(t, 20, c.Position())
	assert.Equal(t, 1, m.stops)
	c.Drive(2)
	assert.Equal(t, 2, m.stops)
}

func TestDriveFastTierFarFromTarget(t *testing.T) {
	c, m := newTestController(t)

	c.Drive(50) // 500 steps away
	assert.Equal(t, []uint32{4}, m.speeds)
}

func TestBacklashCompensationOnReversal(t *testing.T) {
	c, m := newTestController(t)
	drive(c, 1, 10)
	require.Equal(t, 10, c.Position())
	m.steps = nil

	c.Drive(0.5) // target 5, reversal
	assert.True(t, c.Compensating())
	assert.Equal(t, 10, c.Position(), "compensation does not move the needle position")

	// target is frozen while compensating
	drive(c, 0.9, 7)
	assert.Equal(t, 5, c.Target())
	assert.False(t, c.Compensating())
	assert.Equal(t, 10, c.Position())
	assert.Len(t, m.steps, 8)
	for _, s := range m.steps {
		assert.Equal(t, -1, s)
	}
	assert.Equal(t, uint32(1), m.speeds[len(m.speeds)-1])

	drive(c, 0.5, 5)
	assert.Equal(t, 5, c.Position())
	assert.Len(t, m.steps, 13)
}

func TestNoCompensationWithoutPriorMovement(t *testing.T) {
	c, m := newTestController(t)
	c.Drive(1)
	assert.False(t, c.Compensating())
	assert.Equal(t, []int{1}, m.steps)
}

func TestDrivePacing(t *testing.T) {
	clk := &manualClock{t: time.Unix(1_700_000_000, 0)}
	c, m := newTestController(t, WithClock(clk.now))

	c.Drive(1) // rpm 1: 60s / 2038 per step
	c.Drive(1)
	assert.Len(t, m.steps, 1)

	clk.t = clk.t.Add(29 * time.Millisecond)
	c.Drive(1)
	assert.Len(t, m.steps, 1)

	clk.t = clk.t.Add(time.Millisecond)
	c.Drive(1)
	assert.Len(t, m.steps, 2)
}

func TestHome(t *testing.T) {
	m := &fakeMotor{}
	cfg := DefaultConfig()
	cfg.Filter = passthrough
	cfg.HomeOffset = 4
	lim := fakeLimit{m: m, pressed: func(p int) bool { return p >= 0 && p <= 2 }}
	c := NewController(m, lim, linearTable(t), cfg, WithClock(tickingClock()), WithSleep(noSleep))

	require.NoError(t, c.Home(context.Background()))

	assert.Equal(t, []int{1, 1, 1, -1, 1, 1, 1, 1}, m.steps)
	assert.Equal(t, 6, m.phys)
	assert.Equal(t, 0, c.Position())
	assert.Equal(t, 1, m.stops)
	assert.Equal(t, []uint32{5, 1}, m.speeds)
}

func TestHomeGivesUp(t *testing.T) {
	c, m := newTestController(t)

	err := c.Home(context.Background())
	require.ErrorIs(t, err, ErrHomingFailed)
	assert.Len(t, m.steps, 50)
	assert.Equal(t, 1, m.stops)
}

func TestHomeHonoursContext(t *testing.T) {
	c, _ := newTestController(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, c.Home(ctx), context.Canceled)
}

func TestSweepVisitsEveryPointThenHomes(t *testing.T) {
	m := &fakeMotor{}
	cfg := DefaultConfig()
	cfg.Filter = passthrough
	cfg.MaxHomingSteps = 1000
	lim := fakeLimit{m: m, pressed: func(p int) bool { return p <= 0 }}
	tbl, err := NewCalibrationTable([]Point{{0, 0}, {10, 100}, {20, 250}})
	require.NoError(t, err)

	var visited []int
	const pause = 2 * time.Second
	sleep := func(ctx context.Context, d time.Duration) error {
		if d == pause {
			visited = append(visited, m.phys)
		}
		return ctx.Err()
	}
	c := NewController(m, lim, tbl, cfg, WithSleep(sleep))

	require.NoError(t, c.Sweep(context.Background(), 3, pause))
	assert.Equal(t, []int{0, 100, 250}, visited)
	assert.Equal(t, 0, m.phys)
	assert.Equal(t, 0, c.Position())
	assert.Equal(t, uint32(3), m.speeds[0])
}

func TestJog(t *testing.T) {
	c, m := newTestController(t)

	require.NoError(t, c.Jog(context.Background(), 5))
	require.NoError(t, c.Jog(context.Background(), -2))
	assert.Equal(t, 3, c.Position())
	assert.Equal(t, 3, m.phys)
}

func TestParseProfileKeepsDefaults(t *testing.T) {
	p, err := ParseProfile([]byte(`
name: tacho
backlash_steps: 12
table:
  - {value: 0, step: 0}
  - {value: 8000, step: 1600}
`))
	require.NoError(t, err)
	assert.Equal(t, "tacho", p.Name)
	assert.Equal(t, 12, p.BacklashSteps)
	assert.Equal(t, 2038, p.StepsPerRev)

	cfg, tbl, err := p.Build()
	require.NoError(t, err)
	assert.Equal(t, 800, tbl.StepFor(4000))
	assert.Equal(t, 12, cfg.BacklashSteps)
	assert.Equal(t, DefaultConfig().Tiers, cfg.Tiers)
}

func TestLoadProfileErrors(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("table:\n  - {value: 5, step: 10}\n  - {value: 1, step: 20}\n"), 0o644))
	p, err := LoadProfile(path)
	require.NoError(t, err)
	_, _, err = p.Build()
	require.ErrorIs(t, err, ErrInvalidTable)

	_, err = ParseProfile([]byte("table: [oops"))
	assert.Error(t, err)
}

func TestSaveProfileRoundTrip(t *testing.T) {
	p := DefaultProfile()
	p.Name = "bench"
	p.Table = []Point{{0, 0}, {60, 390}, {120, 801}}
	path := filepath.Join(t.TempDir(), "bench.yaml")
	require.NoError(t, SaveProfile(path, p))

	got, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}
