// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"fmt"
	"io"

	serial "github.com/jacobsa/go-serial/serial"
	"github.com/rs/zerolog/log"
)

// OpenSerial opens the receiver UART in 8N1 mode.
// Adjust the port to your wiring: /dev/serial0, /dev/ttyAMA0, /dev/ttyUSB0.
func OpenSerial(port string, baud uint) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:              port,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	rw, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("gps: open %s: %w", port, err)
	}
	log.Info().Str("port", port).Uint("baud", baud).Msg("gps: serial port opened")
	return rw, nil
}
