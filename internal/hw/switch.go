// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package hw

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
)

// Switch is a polled contact wired to ground with the internal pull-up on,
// so a closed contact reads Low.
type Switch struct {
	pin gpio.PinIn
}

// NewSwitch configures pin as a pulled-up input.
func NewSwitch(pin gpio.PinIn) (*Switch, error) {
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("hw: switch %s: %w", pin, err)
	}
	return &Switch{pin: pin}, nil
}

// OpenSwitch resolves the pin by name.
func OpenSwitch(name string) (*Switch, error) {
	p, err := Pin(name)
	if err != nil {
		return nil, err
	}
	return NewSwitch(p)
}

// IsPressed reports whether the contact is closed.
func (s *Switch) IsPressed() bool {
	return s.pin.Read() == gpio.Low
}
