// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package hw

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// Watchdog keeps the kernel watchdog device alive. Any write counts as a
// keepalive; writing 'V' before close disarms it.
type Watchdog struct {
	f *os.File
}

// OpenWatchdog arms the watchdog at path, usually /dev/watchdog.
func OpenWatchdog(path string) (*Watchdog, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("hw: open watchdog %s: %w", path, err)
	}
	log.Info().Str("device", path).Msg("watchdog: armed")
	return &Watchdog{f: f}, nil
}

// Feed sends a keepalive.
func (w *Watchdog) Feed() error {
	if _, err := w.f.Write([]byte{0}); err != nil {
		return fmt.Errorf("hw: feed watchdog: %w", err)
	}
	return nil
}

// Close disarms the watchdog and closes the device.
func (w *Watchdog) Close() error {
	if _, err := w.f.Write([]byte("V")); err != nil {
		log.Warn().Err(err).Msg("watchdog: magic close failed, a reset may follow")
	}
	return w.f.Close()
}
