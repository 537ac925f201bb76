// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/relabs-tech/gauge_cluster/internal/config"
	"github.com/relabs-tech/gauge_cluster/internal/gps"
)

// RunConsoleMQTT prints cluster telemetry until interrupted.
func RunConsoleMQTT() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("console: config not initialized")
	}

	client, err := ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	subs := map[string]mqtt.MessageHandler{
		cfg.TopicOdometer: func(_ mqtt.Client, msg mqtt.Message) {
			var s Status
			if err := json.Unmarshal(msg.Payload(), &s); err != nil {
				log.Warn().Err(err).Msg("console: status unmarshal error")
				return
			}
			fmt.Println(formatStatus(s))
		},
		cfg.TopicGPS: func(_ mqtt.Client, msg mqtt.Message) {
			var f gps.Fix
			if err := json.Unmarshal(msg.Payload(), &f); err != nil {
				log.Warn().Err(err).Msg("console: gps unmarshal error")
				return
			}
			fmt.Println(formatFix(f, time.Now()))
		},
	}
	for topic, handler := range subs {
		token := client.Subscribe(topic, 0, handler)
		token.Wait()
		if err := token.Error(); err != nil {
			return fmt.Errorf("console: subscribe %s: %w", topic, err)
		}
		log.Info().Str("topic", topic).Msg("console: subscribed")
	}

	// Wait for Ctrl+C
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("console: shutting down")
	return nil
}

func formatStatus(s Status) string {
	o := s.Odometer
	line := fmt.Sprintf(
		"[ODO ] total=%s km partial=%.1f T1=%.1f T2=%.1f T3=%.1f mode=%s speed=%3.0fkm/h needle=%d writes=%s",
		humanize.CommafWithDigits(o.TotalKm, 1), o.PartialKm, o.Trip1Km, o.Trip2Km, o.Trip3Km,
		s.Mode, s.SpeedKmh, s.NeedleStep, humanize.Comma(int64(s.WriteCount)),
	)
	if o.DataChanged {
		line += " unsaved"
	}
	if s.TestMode {
		line += " TEST"
	}
	return line
}

func formatFix(f gps.Fix, now time.Time) string {
	age := "never"
	if !f.Time.IsZero() {
		age = humanize.RelTime(f.Time, now, "ago", "from now")
	}
	return fmt.Sprintf(
		"[GPS ] utc=%s lat=%.6f lon=%.6f alt=%.0fm speed=%.1fkm/h course=%.1f° sats=%d hdop=%.1f valid=%t fix=%s",
		gps.FormatClock(f), f.Latitude, f.Longitude, f.Altitude, f.SpeedKmh, f.Course,
		f.SatellitesUsed, f.HDOP, f.ValidFix, age,
	)
}
