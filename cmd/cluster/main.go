// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"

	"github.com/rs/zerolog/log"

	"github.com/relabs-tech/gauge_cluster/internal/app"
	"github.com/relabs-tech/gauge_cluster/internal/config"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	flag.Parse()

	if err := app.Setup(*configPath); err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	log.Info().Msg("starting gauge cluster")

	if err := app.RunCluster(); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}
