// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package hw

import (
	"math/bits"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/gauge_cluster/internal/gauge"
)

func coilPinsForTest() ([]*gpiotest.Pin, []gpio.PinOut) {
	var raw []*gpiotest.Pin
	var outs []gpio.PinOut
	for _, n := range []string{"IN1", "IN2", "IN3", "IN4"} {
		p := &gpiotest.Pin{N: n, L: gpio.High}
		raw = append(raw, p)
		outs = append(outs, p)
	}
	return raw, outs
}

func levels(pins []*gpiotest.Pin) uint8 {
	var v uint8
	for i, p := range pins {
		if p.Read() == gpio.High {
			v |= 1 << i
		}
	}
	return v
}

func TestCoilStepperSequence(t *testing.T) {
	raw, outs := coilPinsForTest()
	s, err := NewCoilStepper(outs)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), levels(raw), "coils released on start")

	s.Step(1)
	assert.Equal(t, uint8(0b0110), levels(raw))
	s.Step(1)
	assert.Equal(t, uint8(0b1100), levels(raw))
	s.Step(-1)
	s.Step(-1)
	assert.Equal(t, uint8(0b0011), levels(raw))
	s.Step(-1) // wraps backwards
	assert.Equal(t, uint8(0b1001), levels(raw))

	s.Stop()
	assert.Equal(t, uint8(0), levels(raw))
}

func TestCoilStepperTakesFullSteps(t *testing.T) {
	raw, outs := coilPinsForTest()
	s, err := NewCoilStepper(outs)
	require.NoError(t, err)

	s.Step(1)
	first := levels(raw)
	period := 0
	for i := 1; i <= 16; i++ {
		s.Step(1)
		pattern := levels(raw)
		assert.Equal(t, 2, bits.OnesCount8(pattern), "two coils per phase")
		if pattern == first {
			period = i
			break
		}
	}
	assert.Equal(t, 4, period, "one electrical cycle is four full steps")

	// profiles count full steps of the 28BYJ-48 output shaft
	p := gauge.DefaultProfile()
	assert.Equal(t, 2038, p.StepsPerRev)
	assert.Equal(t, 1687, p.Table[len(p.Table)-1].Step)
}

func TestCoilStepperNeedsFourPins(t *testing.T) {
	_, outs := coilPinsForTest()
	_, err := NewCoilStepper(outs[:3])
	assert.Error(t, err)
}

func TestSwitchActiveLow(t *testing.T) {
	p := &gpiotest.Pin{N: "GPIO27"}
	sw, err := NewSwitch(p)
	require.NoError(t, err)

	p.Lock()
	p.L = gpio.High
	p.Unlock()
	assert.False(t, sw.IsPressed())

	p.Lock()
	p.L = gpio.Low
	p.Unlock()
	assert.True(t, sw.IsPressed())
}

func TestAddrBusRewritesAddress(t *testing.T) {
	rec := &i2ctest.Record{}
	b := addrBus{Bus: rec, addr: 0x3D}

	require.NoError(t, b.Tx(0x3C, []byte{0x00, 0xAF}, nil))
	require.Len(t, rec.Ops, 1)
	assert.Equal(t, uint16(0x3D), rec.Ops[0].Addr)
}

func litBounds(img *image1bit.VerticalLSB) (minX, maxX, count int) {
	b := img.Bounds()
	minX, maxX = b.Dx(), -1
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if img.BitAt(x, y) == image1bit.On {
				count++
				minX = min(minX, x)
				maxX = max(maxX, x)
			}
		}
	}
	return minX, maxX, count
}

func TestRenderLineCentres(t *testing.T) {
	img := RenderLine("T1 12.3", 128, 64, 2)
	minX, maxX, n := litBounds(img)
	require.Positive(t, n)

	left, right := minX, 127-maxX
	assert.InDelta(t, left, right, 8, "text roughly centred")

	one := RenderLine("T1 12.3", 128, 64, 1)
	_, _, n1 := litBounds(one)
	assert.Equal(t, 4*n1, n, "scale 2 quadruples lit pixels")
}

func TestRenderLineEmptyAndClipped(t *testing.T) {
	_, _, n := litBounds(RenderLine("", 128, 64, 3))
	assert.Zero(t, n)

	// far wider than the panel; must not panic
	img := RenderLine("0123456789012345678901234567890123456789", 128, 64, 4)
	assert.Equal(t, 128, img.Bounds().Dx())
}

func TestWatchdogFeedAndMagicClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchdog")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	w, err := OpenWatchdog(path)
	require.NoError(t, err)
	require.NoError(t, w.Feed())
	require.NoError(t, w.Feed())
	require.NoError(t, w.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 'V'}, got)
}

func TestOpenWatchdogMissing(t *testing.T) {
	_, err := OpenWatchdog(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
