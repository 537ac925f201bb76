// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/relabs-tech/gauge_cluster/internal/odometer"
)

// Command kinds accepted over MQTT and the web relay.
const (
	CmdSelect   = "select"    // Mode, or the next mode when empty
	CmdReset    = "reset"     // Mode, or the active mode when empty
	CmdSetTotal = "set_total" // Km
	CmdTestMode = "test_mode" // On
)

// ErrUnknownCommand is returned for a Kind the cluster does not handle.
var ErrUnknownCommand = errors.New("app: unknown command")

// Command is a remote request to the control loop.
type Command struct {
	Kind string  `json:"cmd"`
	Mode string  `json:"mode,omitempty"`
	Km   float64 `json:"km,omitempty"`
	On   bool    `json:"on,omitempty"`
}

// ParseCommand decodes and sanity-checks a JSON command.
func ParseCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	switch cmd.Kind {
	case CmdSelect, CmdReset, CmdTestMode:
	case CmdSetTotal:
		if cmd.Km < 0 {
			return Command{}, fmt.Errorf("set_total: negative distance %v", cmd.Km)
		}
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Kind)
	}
	if cmd.Mode != "" {
		if _, err := odometer.ParseTripMode(cmd.Mode); err != nil {
			return Command{}, err
		}
	}
	return cmd, nil
}

func (c *Cluster) modeOr(name string, fallback odometer.TripMode) (odometer.TripMode, error) {
	if name == "" {
		return fallback, nil
	}
	return odometer.ParseTripMode(name)
}

// apply executes one command on the loop goroutine.
func (c *Cluster) apply(cmd Command) error {
	switch cmd.Kind {
	case CmdSelect:
		m, err := c.modeOr(cmd.Mode, c.mode.Next())
		if err != nil {
			return err
		}
		c.mode = m
		c.infoScreen = false
		c.d.Ledger.MarkRedraw(true, false)
		log.Info().Stringer("mode", m).Msg("cluster: mode selected remotely")
	case CmdReset:
		m, err := c.modeOr(cmd.Mode, c.mode)
		if err != nil {
			return err
		}
		c.d.Ledger.Reset(m)
		c.d.Ledger.MarkRedraw(true, false)
		log.Info().Stringer("mode", m).Msg("cluster: trip reset remotely")
	case CmdSetTotal:
		if cmd.Km < 0 {
			return fmt.Errorf("set_total: negative distance %v", cmd.Km)
		}
		return c.d.Ledger.SetTotal(c.d.Store, cmd.Km)
	case CmdTestMode:
		if cmd.On != c.testMode {
			c.setTestMode(cmd.On)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Kind)
	}
	return nil
}
