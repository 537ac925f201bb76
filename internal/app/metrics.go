// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/relabs-tech/gauge_cluster/internal/gps"
)

// Metrics exports the control loop state. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	totalKm    prometheus.Gauge
	partialKm  prometheus.Gauge
	speedKmh   prometheus.Gauge
	satellites prometheus.Gauge
	hdop       prometheus.Gauge
	fixValid   prometheus.Gauge
	needleStep prometheus.Gauge
	writeCount prometheus.Gauge
	testMode   prometheus.Gauge

	acceptedKm prometheus.Counter
	ticks      prometheus.Counter
	fixes      *prometheus.CounterVec // by filter outcome
	saves      *prometheus.CounterVec // by result
	commands   *prometheus.CounterVec // by kind and result
}

// NewMetrics creates the cluster collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "cluster", Name: name, Help: help})
	}
	m := &Metrics{
		totalKm:    gauge("odometer_total_km", "Total distance in kilometers."),
		partialKm:  gauge("odometer_partial_km", "Partial distance in kilometers."),
		speedKmh:   gauge("speed_kmh", "Speed sent to the needle."),
		satellites: gauge("gps_satellites", "Satellites used in the last fix."),
		hdop:       gauge("gps_hdop", "Horizontal dilution of precision of the last fix."),
		fixValid:   gauge("gps_fix_valid", "1 when the receiver reports a valid fix."),
		needleStep: gauge("needle_step", "Needle position in steps from home."),
		writeCount: gauge("storage_writes", "Sequence number of the latest stored record."),
		testMode:   gauge("test_mode", "1 while the simulated speed drives the needle."),
		acceptedKm: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cluster",
			Name:      "gps_accepted_km_total",
			Help:      "Distance accepted by the fix filter.",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cluster",
			Name:      "loop_ticks_total",
			Help:      "Control loop iterations.",
		}),
		fixes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cluster",
			Name:      "gps_fixes_total",
			Help:      "Fixes seen by the filter, by outcome.",
		}, []string{"outcome"}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cluster",
			Name:      "storage_saves_total",
			Help:      "Odometer save attempts, by result.",
		}, []string{"ok"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cluster",
			Name:      "commands_total",
			Help:      "Remote commands, by kind and result.",
		}, []string{"cmd", "ok"}),
	}
	reg.MustRegister(
		m.totalKm, m.partialKm, m.speedKmh, m.satellites, m.hdop, m.fixValid,
		m.needleStep, m.writeCount, m.testMode,
		m.acceptedKm, m.ticks, m.fixes, m.saves, m.commands,
	)
	return m
}

func (m *Metrics) observeFix(f gps.Fix, r gps.Rejection, km float64) {
	if m == nil {
		return
	}
	m.satellites.Set(float64(f.SatellitesUsed))
	m.hdop.Set(f.HDOP)
	m.fixValid.Set(boolGauge(f.ValidFix))
	m.fixes.WithLabelValues(r.String()).Inc()
	m.acceptedKm.Add(km)
}

func (m *Metrics) saveResult(ok bool) {
	if m == nil {
		return
	}
	m.saves.WithLabelValues(strconv.FormatBool(ok)).Inc()
}

func (m *Metrics) command(kind string, ok bool) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(kind, strconv.FormatBool(ok)).Inc()
}

func (m *Metrics) observeTick(c *Cluster) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.totalKm.Set(c.d.Ledger.Total.Current)
	m.partialKm.Set(c.d.Ledger.Partial.Current)
	m.speedKmh.Set(c.speed)
	m.needleStep.Set(float64(c.d.Needle.Position()))
	m.writeCount.Set(float64(c.d.Store.WriteCount()))
	m.testMode.Set(boolGauge(c.testMode))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ServeMetrics exposes g on addr at /metrics until ctx is done.
func ServeMetrics(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics: listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
