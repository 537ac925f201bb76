// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/relabs-tech/gauge_cluster/internal/config"
	"github.com/relabs-tech/gauge_cluster/internal/gps"
)

// fixStats is what the producer source exposes besides Poll.
type fixStats interface {
	gps.FixSource
	Stats() (sentences, parseErrors uint64)
}

// publishFixes publishes the latest fix on topic every interval until ctx
// is done. Fixes are skipped until the receiver reports something.
func publishFixes(ctx context.Context, src fixStats, client mqttClient, topic string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		fix, err := src.Poll()
		if err != nil {
			if !errors.Is(err, gps.ErrNoFix) {
				log.Warn().Err(err).Msg("gps producer: poll failed")
			}
			continue
		}
		payload, err := json.Marshal(fix)
		if err != nil {
			log.Warn().Err(err).Msg("gps producer: JSON marshal error")
			continue
		}
		token := client.Publish(topic, 0, true, payload)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Warn().Err(err).Msg("gps producer: publish error")
			continue
		}

		sentences, bad := src.Stats()
		log.Debug().
			Bool("valid", fix.ValidFix).
			Int("sats", fix.SatellitesUsed).
			Str("utc", gps.FormatClock(fix)).
			Str("sentences", humanize.Comma(int64(sentences))).
			Uint64("parse_errors", bad).
			Msg("gps producer: published fix")
	}
}

// RunGPSProducer reads the GPS receiver on its own and publishes fixes to
// the GPS topic, for checking the antenna and wiring without the cluster.
func RunGPSProducer() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("gps producer: config not initialized")
	}

	client, err := ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDCluster+"-gps")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	port, err := gps.OpenSerial(cfg.GPSSerialPort, cfg.GPSBaudRate)
	if err != nil {
		return err
	}
	defer port.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src := gps.NewNMEASource()
	go publishFixes(ctx, src, client, cfg.TopicGPS, config.Ms(cfg.TelemetryInterval))

	errCh := make(chan error, 1)
	go func() { errCh <- src.Run(ctx, port) }()

	select {
	case <-ctx.Done():
		log.Info().Msg("gps producer: shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}
