// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package hw

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio"
)

const coilPins = 4

// fullStep energises two adjacent coils of a unipolar stepper (28BYJ-48 on
// a ULN2003 board) per phase. One Step is one full step, the unit gauge
// profiles count in (2038 per output revolution).
var fullStep = [4]uint8{
	0b0011,
	0b0110,
	0b1100,
	0b1001,
}

// CoilStepper drives the coils directly from GPIO. Pacing is the caller's
// job; Step changes the phase immediately.
type CoilStepper struct {
	pins  [coilPins]gpio.PinOut
	phase int
	rpm   uint32
}

// NewCoilStepper takes IN1..IN4 in order and de-energises them.
func NewCoilStepper(pins []gpio.PinOut) (*CoilStepper, error) {
	if len(pins) != coilPins {
		return nil, fmt.Errorf("hw: stepper needs %d pins, got %d", coilPins, len(pins))
	}
	s := &CoilStepper{}
	copy(s.pins[:], pins)
	for _, p := range s.pins {
		if err := p.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("hw: stepper pin %s: %w", p, err)
		}
	}
	return s, nil
}

// OpenCoilStepper resolves the pins by name.
func OpenCoilStepper(names []string) (*CoilStepper, error) {
	pins := make([]gpio.PinOut, 0, len(names))
	for _, n := range names {
		p, err := Pin(n)
		if err != nil {
			return nil, err
		}
		pins = append(pins, p)
	}
	return NewCoilStepper(pins)
}

// Step advances one full step; dir > 0 is clockwise seen from the face.
func (s *CoilStepper) Step(dir int) {
	switch {
	case dir > 0:
		s.phase = (s.phase + 1) % len(fullStep)
	case dir < 0:
		s.phase = (s.phase + len(fullStep) - 1) % len(fullStep)
	default:
		return
	}
	s.apply(fullStep[s.phase])
}

// SetSpeed records the requested speed for logging; the controller paces steps.
func (s *CoilStepper) SetSpeed(rpm uint32) {
	if rpm != s.rpm {
		log.Trace().Uint32("rpm", rpm).Msg("stepper: speed")
	}
	s.rpm = rpm
}

// Stop releases all coils so the motor does not heat while parked.
func (s *CoilStepper) Stop() { s.apply(0) }

func (s *CoilStepper) apply(v uint8) {
	for i, p := range s.pins {
		l := gpio.Low
		if v&(1<<i) != 0 {
			l = gpio.High
		}
		if err := p.Out(l); err != nil {
			log.Error().Err(err).Str("pin", p.String()).Msg("stepper: write failed")
		}
	}
}
