// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

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

	store, closer, err := app.OpenStore(config.Get())
	if err != nil {
		log.Fatal().Err(err).Msg("open storage")
	}
	defer closer.Close()

	if err := app.RunStorageTool(store, flag.Args(), os.Stdout); err != nil {
		if errors.Is(err, app.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		log.Error().Err(err).Msg("storage tool failed")
		os.Exit(1)
	}
}
