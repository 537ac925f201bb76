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
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/relabs-tech/gauge_cluster/internal/config"
	"github.com/relabs-tech/gauge_cluster/internal/gps"
	"github.com/relabs-tech/gauge_cluster/internal/hw"
	"github.com/relabs-tech/gauge_cluster/internal/odometer"
)

// mirror holds the latest status received over MQTT.
type mirror struct {
	mu     sync.RWMutex
	status Status
	have   bool
}

func (m *mirror) set(s Status) {
	m.mu.Lock()
	m.status, m.have = s, true
	m.mu.Unlock()
}

func (m *mirror) get() (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.have
}

// mirrorText renders one content kind of a status for a small display.
func mirrorText(content string, s Status, have bool) string {
	if !have {
		return "WAIT"
	}
	o := s.Odometer
	switch content {
	case "total":
		return fmt.Sprintf("%d", int64(o.TotalKm))
	case "trip":
		switch s.Mode {
		case odometer.Trip1:
			return fmt.Sprintf("T1 %.1f", o.Trip1Km)
		case odometer.Trip2:
			return fmt.Sprintf("T2 %.1f", o.Trip2Km)
		case odometer.Trip3:
			return fmt.Sprintf("T3 %.1f", o.Trip3Km)
		case odometer.Partial, odometer.Speed, odometer.Time:
		}
		return fmt.Sprintf("%.1f", o.PartialKm)
	case "speed":
		return fmt.Sprintf("%d", int(s.SpeedKmh))
	case "gps":
		if !s.Fix.ValidFix {
			return "NOFIX"
		}
		return fmt.Sprintf("SAT%d", s.Fix.SatellitesUsed)
	case "clock":
		return gps.FormatClock(s.Fix)
	}
	return "?"
}

// RunDisplay mirrors cluster telemetry on a pair of OLEDs, for a second
// display fed over MQTT.
func RunDisplay() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("display: config not initialized")
	}

	upper, err := hw.OpenOLED(cfg.DisplayI2CBus, cfg.DisplayTotalI2CAddr, cfg.DisplayFontScale)
	if err != nil {
		return err
	}
	defer upper.Close()
	lower, err := hw.OpenOLED(cfg.DisplayI2CBus, cfg.DisplayTripI2CAddr, cfg.DisplayFontScale)
	if err != nil {
		return err
	}
	defer lower.Close()

	client, err := ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	data := &mirror{}
	token := client.Subscribe(cfg.TopicOdometer, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s Status
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Warn().Err(err).Msg("display: status unmarshal error")
			return
		}
		data.set(s)
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("display: subscribe %s: %w", cfg.TopicOdometer, err)
	}
	log.Info().
		Str("upper", cfg.MirrorUpperContent).
		Str("lower", cfg.MirrorLowerContent).
		Msg("display: mirroring cluster status")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(config.Ms(cfg.DisplayUpdateInterval))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		s, have := data.get()
		if err := upper.DrawString(mirrorText(cfg.MirrorUpperContent, s, have)); err != nil {
			log.Warn().Err(err).Msg("display: error updating upper display")
		}
		if err := lower.DrawString(mirrorText(cfg.MirrorLowerContent, s, have)); err != nil {
			log.Warn().Err(err).Msg("display: error updating lower display")
		}
	}
}
