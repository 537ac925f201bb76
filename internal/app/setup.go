// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"io/fs"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/relabs-tech/gauge_cluster/internal/config"
	"github.com/relabs-tech/gauge_cluster/internal/logging"
)

// Setup loads the global configuration and configures logging. A missing
// file at config.DefaultPath falls back to the built-in defaults; any
// other path must exist.
func Setup(configPath string) error {
	path := configPath
	if path == config.DefaultPath {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	if err := config.InitGlobal(path); err != nil {
		return err
	}
	cfg := config.Get()
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}
	if path == "" {
		log.Warn().Str("path", configPath).Msg("config: file not found, using built-in defaults")
	} else {
		log.Info().Str("path", path).Msg("config: loaded")
	}
	return nil
}
