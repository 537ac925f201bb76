// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/relabs-tech/gauge_cluster/internal/config"
	"github.com/relabs-tech/gauge_cluster/internal/gauge"
	"github.com/relabs-tech/gauge_cluster/internal/gps"
	"github.com/relabs-tech/gauge_cluster/internal/hw"
	"github.com/relabs-tech/gauge_cluster/internal/odometer"
	"github.com/relabs-tech/gauge_cluster/internal/storage"
)

// OpenStore opens the odometer record pool described by cfg. The returned
// closer releases the backing image.
func OpenStore(cfg *config.Config) (*storage.RecordStore, io.Closer, error) {
	dev, err := storage.OpenFile(cfg.StoragePath, cfg.StorageOffset, cfg.StorageSectorSize, cfg.StoragePoolSectors)
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.NewRecordStore(dev, 0, cfg.StoragePoolSectors)
	if err != nil {
		dev.Close()
		return nil, nil, err
	}
	return store, dev, nil
}

// LoadGaugeProfile returns the configured profile, or the built-in
// speedometer when none is set.
func LoadGaugeProfile(cfg *config.Config) (gauge.Profile, error) {
	if cfg.GaugeProfile == "" {
		return gauge.DefaultProfile(), nil
	}
	return gauge.LoadProfile(cfg.GaugeProfile)
}

// OpenGauge builds the needle controller on the configured stepper and
// limit switch. The caller must Stop the returned stepper.
func OpenGauge(cfg *config.Config) (*gauge.Controller, *hw.CoilStepper, error) {
	profile, err := LoadGaugeProfile(cfg)
	if err != nil {
		return nil, nil, err
	}
	gcfg, table, err := profile.Build()
	if err != nil {
		return nil, nil, err
	}
	stepper, err := hw.OpenCoilStepper(cfg.StepperPins)
	if err != nil {
		return nil, nil, err
	}
	limit, err := hw.OpenSwitch(cfg.LimitPin)
	if err != nil {
		stepper.Stop()
		return nil, nil, err
	}
	log.Info().Str("profile", profile.Name).Float64("max", table.MaxValue()).Msg("gauge: profile loaded")
	return gauge.NewController(stepper, limit, table, gcfg), stepper, nil
}

// RunCluster runs the instrument cluster until SIGINT or SIGTERM.
func RunCluster() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("cluster: config not initialized")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- storage and odometer ----
	store, storeCloser, err := OpenStore(cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer storeCloser.Close()

	th := odometer.DefaultThresholds()
	th.MinSaveInterval = config.Ms(cfg.SaveInterval)
	ledger := odometer.NewLedger(th)
	if total, partial, ok := store.Read(); ok {
		ledger.Load(total, partial)
		log.Info().
			Str("total_km", humanize.CommafWithDigits(total, 1)).
			Float64("partial_km", partial).
			Str("writes", humanize.Comma(int64(store.WriteCount()))).
			Msg("cluster: odometer restored")
	} else {
		log.Warn().Msg("cluster: no valid odometer record, starting from zero")
	}

	// ---- hardware ----
	if err := hw.Init(); err != nil {
		return err
	}
	needle, stepper, err := OpenGauge(cfg)
	if err != nil {
		return fmt.Errorf("open gauge: %w", err)
	}
	defer stepper.Stop()
	if err := needle.Home(ctx); err != nil {
		log.Error().Err(err).Msg("cluster: homing failed, needle position is unreliable")
	}

	btn, err := hw.OpenSwitch(cfg.ButtonPin)
	if err != nil {
		return fmt.Errorf("open button: %w", err)
	}
	upper, err := hw.OpenOLED(cfg.DisplayI2CBus, cfg.DisplayTotalI2CAddr, cfg.DisplayFontScale)
	if err != nil {
		return fmt.Errorf("open total display: %w", err)
	}
	defer upper.Close()
	lower, err := hw.OpenOLED(cfg.DisplayI2CBus, cfg.DisplayTripI2CAddr, cfg.DisplayFontScale)
	if err != nil {
		return fmt.Errorf("open trip display: %w", err)
	}
	defer lower.Close()

	// ---- GPS ----
	port, err := gps.OpenSerial(cfg.GPSSerialPort, cfg.GPSBaudRate)
	if err != nil {
		return err
	}
	defer port.Close()
	source := gps.NewNMEASource()
	go func() {
		if err := source.Run(ctx, port); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("gps: reader stopped")
		}
	}()

	deps := Deps{
		Source: source,
		Ledger: ledger,
		Store:  store,
		Needle: needle,
		Button: btn,
		Upper:  upper,
		Lower:  lower,
	}

	if cfg.WatchdogDevice != "" {
		wd, err := hw.OpenWatchdog(cfg.WatchdogDevice)
		if err != nil {
			return err
		}
		defer wd.Close()
		deps.Watchdog = wd
	}

	// ---- metrics ----
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		deps.Metrics = NewMetrics(reg)
		go func() {
			if err := ServeMetrics(ctx, cfg.MetricsAddr, reg); err != nil {
				log.Error().Err(err).Msg("metrics: server stopped")
			}
		}()
	}

	// ---- telemetry ----
	var telemetry *Telemetry
	if cfg.MQTTEnabled {
		client, err := ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDCluster)
		if err != nil {
			log.Warn().Err(err).Msg("cluster: running without MQTT telemetry")
		} else {
			defer client.Disconnect(250)
			telemetry = NewTelemetry(client, cfg)
			deps.Publisher = telemetry
		}
	}

	opts := DefaultOptions()
	opts.DisplayInterval = config.Ms(cfg.DisplayUpdateInterval)
	opts.TelemetryInterval = config.Ms(cfg.TelemetryInterval)
	opts.StatusInterval = config.Ms(cfg.GPSStatusInterval)
	opts.MaxSpeedKmh = cfg.MaxSpeedKmh
	opts.UTCOffsetHours = cfg.UTCOffsetHours

	cluster := NewCluster(deps, opts)
	if telemetry != nil {
		if err := telemetry.SubscribeCommands(cluster.Submit); err != nil {
			log.Warn().Err(err).Msg("cluster: remote commands unavailable")
		}
	}

	return cluster.Run(ctx, config.Ms(cfg.LoopInterval))
}
