// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package button classifies presses of a single polled push button by how
// long it was held.
package button

import "time"

// Event is the action a completed (or very long) press maps to.
type Event int

const (
	None Event = iota
	Short      // < 1 s: cycle display mode
	Hold       // 3-5 s: reset the active trip
	LongHold   // 5-10 s: toggle the GPS info screen
	VeryLong   // >= 10 s, fires while still held: toggle test mode
)

func (e Event) String() string {
	switch e {
	case None:
		return "none"
	case Short:
		return "short"
	case Hold:
		return "hold"
	case LongHold:
		return "long_hold"
	case VeryLong:
		return "very_long"
	}
	return "unknown"
}

// Thresholds are the press duration boundaries.
type Thresholds struct {
	Short    time.Duration
	Hold     time.Duration
	LongHold time.Duration
	VeryLong time.Duration
}

// DefaultThresholds returns 1 s, 3 s, 5 s and 10 s.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Short:    time.Second,
		Hold:     3 * time.Second,
		LongHold: 5 * time.Second,
		VeryLong: 10 * time.Second,
	}
}

// Classifier turns successive samples into events. Presses between Short
// and Hold are ignored.
type Classifier struct {
	th      Thresholds
	down    bool
	start   time.Time
	tripped bool // VeryLong already fired for this press
}

// New returns a classifier with the button released.
func New(th Thresholds) *Classifier {
	return &Classifier{th: th}
}

// Sample feeds the button state at now and returns at most one event.
func (c *Classifier) Sample(pressed bool, now time.Time) Event {
	if pressed {
		if !c.down {
			c.down, c.start, c.tripped = true, now, false
			return None
		}
		if !c.tripped && now.Sub(c.start) >= c.th.VeryLong {
			c.tripped = true
			return VeryLong
		}
		return None
	}

	if !c.down {
		return None
	}
	held := now.Sub(c.start)
	tripped := c.tripped
	c.down, c.tripped = false, false
	if tripped {
		return None
	}

	switch {
	case held < c.th.Short:
		return Short
	case held >= c.th.LongHold:
		return LongHold
	case held >= c.th.Hold:
		return Hold
	}
	return None
}

// Held reports how long the button has been down, or 0.
func (c *Classifier) Held(now time.Time) time.Duration {
	if !c.down {
		return 0
	}
	return now.Sub(c.start)
}
