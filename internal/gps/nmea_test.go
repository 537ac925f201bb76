// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ggaFix   = "$GPGGA,123519.00,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*69"
	ggaNoFix = "$GPGGA,123520.00,4807.038,N,01131.000,E,0,00,99.9,545.4,M,46.9,M,,*5A"
	rmcValid = "$GPRMC,123519.00,A,4807.038,N,01131.000,E,022.4,084.4,150326,003.1,W*48"
	rmcVoid  = "$GPRMC,123521.00,V,4807.038,N,01131.000,E,000.0,000.0,150326,003.1,W*58"
	gsa3D    = "$GPGSA,A,3,22,19,18,27,14,03,,,,,,,3.1,2.0,2.4*36"
	gsaNone  = "$GPGSA,A,1,,,,,,,,,,,,,99.9,99.9,99.9*09"
	vtg      = "$GPVTG,054.7,T,034.4,M,005.5,N,010.2,K*48"
)

func TestPollBeforeAnySentence(t *testing.T) {
	s := NewNMEASource()
	_, err := s.Poll()
	require.ErrorIs(t, err, ErrNoFix)
}

func TestMergeGGAAndRMC(t *testing.T) {
	s := NewNMEASource()
	require.NoError(t, s.HandleLine(ggaFix))
	require.NoError(t, s.HandleLine(rmcValid+"\r\n"))

	fix, err := s.Poll()
	require.NoError(t, err)
	assert.True(t, fix.ValidFix)
	assert.Equal(t, 8, fix.SatellitesUsed)
	assert.InDelta(t, 0.9, fix.HDOP, 1e-9)
	assert.InDelta(t, 545.4, fix.Altitude, 1e-9)
	assert.InDelta(t, 48.1173, fix.Latitude, 1e-4)
	assert.InDelta(t, 11.5167, fix.Longitude, 1e-4)
	assert.InDelta(t, 22.4*1.852, fix.SpeedKmh, 1e-9)
	assert.InDelta(t, 84.4, fix.Course, 1e-9)
	assert.True(t, fix.TimeValid)
	assert.Equal(t, 12, fix.Hour)
	assert.Equal(t, 35, fix.Minute)
	assert.Equal(t, 19, fix.Second)
	assert.Equal(t, time.Date(2026, 3, 15, 12, 35, 19, 0, time.UTC), fix.Time)
	assert.Equal(t, "12:35:19", FormatClock(fix))
}

func TestLostFixClearsValidity(t *testing.T) {
	for _, line := range []string{ggaNoFix, rmcVoid, gsaNone} {
		t.Run(line[3:6], func(t *testing.T) {
			s := NewNMEASource()
			require.NoError(t, s.HandleLine(ggaFix))
			require.NoError(t, s.HandleLine(line))

			fix, err := s.Poll()
			require.NoError(t, err)
			assert.False(t, fix.ValidFix)
		})
	}
}

func TestGSAAndVTGRefineFix(t *testing.T) {
	s := NewNMEASource()
	require.NoError(t, s.HandleLine(ggaFix))
	require.NoError(t, s.HandleLine(gsa3D))
	require.NoError(t, s.HandleLine(vtg))

	fix, err := s.Poll()
	require.NoError(t, err)
	assert.True(t, fix.ValidFix)
	assert.InDelta(t, 2.0, fix.HDOP, 1e-9)
	assert.InDelta(t, 10.2, fix.SpeedKmh, 1e-9)
	assert.InDelta(t, 54.7, fix.Course, 1e-9)
}

func TestHandleLineIgnoresNoiseAndCountsErrors(t *testing.T) {
	s := NewNMEASource()
	assert.NoError(t, s.HandleLine(""))
	assert.NoError(t, s.HandleLine("garbage"))
	assert.Error(t, s.HandleLine("$GPGGA,123519.00,4807.038,N*00"))

	n, bad := s.Stats()
	assert.Equal(t, uint64(0), n)
	assert.Equal(t, uint64(1), bad)
}

func TestRunConsumesReader(t *testing.T) {
	s := NewNMEASource()
	in := strings.NewReader(ggaFix + "\r\n" + rmcValid + "\r\n")

	err := s.Run(context.Background(), in)
	require.Error(t, err) // EOF once the input is drained

	n, _ := s.Stats()
	assert.Equal(t, uint64(2), n)
	fix, err := s.Poll()
	require.NoError(t, err)
	assert.True(t, fix.ValidFix)
}

func TestFormatClockWithoutTime(t *testing.T) {
	assert.Equal(t, "--:--:--", FormatClock(Fix{}))
}
