// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/gauge_calibration/main.go
//
// Bench calibration for the stepper needle.
//
// Modes:
//
//	home   find the mechanical zero and stop
//	sweep  visit every calibration point, pausing on each, then home
//	jog    move the needle from the console and mark points; the marks are
//	       written as a new YAML profile with -out
//
// Run:
//
//	sudo ./gauge_calibration -mode jog -out speedometer.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/relabs-tech/gauge_cluster/internal/app"
	"github.com/relabs-tech/gauge_cluster/internal/config"
	"github.com/relabs-tech/gauge_cluster/internal/gauge"
	"github.com/relabs-tech/gauge_cluster/internal/hw"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	mode := flag.String("mode", "jog", "home, sweep or jog")
	rpm := flag.Uint("rpm", 3, "Sweep speed in RPM")
	pause := flag.Duration("pause", 2*time.Second, "Pause on each sweep point")
	out := flag.String("out", "", "Write marked points as a YAML profile (jog mode)")
	flag.Parse()

	if err := app.Setup(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	cfg := config.Get()

	if err := hw.Init(); err != nil {
		log.Fatal().Err(err).Msg("periph init failed")
	}
	needle, stepper, err := app.OpenGauge(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("gauge init failed")
	}
	defer stepper.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("=== Gauge calibration ===")
	fmt.Println("Homing...")
	if err := needle.Home(ctx); err != nil {
		log.Fatal().Err(err).Msg("homing failed")
	}

	switch *mode {
	case "home":
		fmt.Println("Needle at home.")
	case "sweep":
		fmt.Printf("Sweeping every calibration point at %d RPM\n", *rpm)
		if err := needle.Sweep(ctx, uint32(*rpm), *pause); err != nil {
			log.Fatal().Err(err).Msg("sweep failed")
		}
	case "jog":
		marks, err := app.RunJogSession(ctx, os.Stdin, os.Stdout, needle)
		if err != nil {
			log.Fatal().Err(err).Msg("jog failed")
		}
		if *out != "" && len(marks) > 0 {
			saveMarks(cfg, *out, marks)
		}
	default:
		fmt.Fprintf(os.Stderr, "ERROR: unknown mode %q\n", *mode)
		os.Exit(2)
	}
}

func saveMarks(cfg *config.Config, path string, marks []gauge.Point) {
	base, err := app.LoadGaugeProfile(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("load base profile")
	}
	p, err := app.ProfileFromMarks(base, marks)
	if err != nil {
		log.Fatal().Err(err).Msg("marked points do not form a valid table")
	}
	if err := gauge.SaveProfile(path, p); err != nil {
		log.Fatal().Err(err).Msg("save profile")
	}
	fmt.Printf("Saved %d points to %s\n", len(p.Table), path)
}
