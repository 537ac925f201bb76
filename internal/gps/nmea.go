// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	"github.com/rs/zerolog/log"
)

const knotsToKmh = 1.852

// NMEASource merges GGA, RMC, GSA and VTG sentences into a single Fix.
// Lines are fed by Run (or HandleLine in tests); Poll never blocks.
type NMEASource struct {
	mu   sync.Mutex
	fix  Fix
	seen bool

	sentences   atomic.Uint64
	parseErrors atomic.Uint64
}

// NewNMEASource returns an empty source; Poll fails with ErrNoFix until the
// first position sentence arrives.
func NewNMEASource() *NMEASource {
	return &NMEASource{}
}

// Run reads sentences from r until ctx is cancelled or r fails. Closing the
// underlying port unblocks a pending read.
func (s *NMEASource) Run(ctx context.Context, r io.Reader) error {
	reader := bufio.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("gps: read: %w", err)
		}
		if err := s.HandleLine(line); err != nil {
			log.Trace().Err(err).Str("line", strings.TrimSpace(line)).Msg("gps: NMEA parse error")
		}
	}
}

// HandleLine decodes one sentence and merges it into the current fix.
// Blank lines and non-sentences are ignored.
func (s *NMEASource) HandleLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		return nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		s.parseErrors.Add(1)
		return err
	}
	s.sentences.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch sentence.DataType() {
	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		s.fix.ValidFix = m.FixQuality != nmea.Invalid && m.FixQuality != ""
		s.fix.SatellitesUsed = int(m.NumSatellites)
		s.fix.HDOP = m.HDOP
		s.fix.Altitude = m.Altitude
		if s.fix.ValidFix {
			s.fix.Latitude = m.Latitude
			s.fix.Longitude = m.Longitude
		}
		s.setTime(m.Time)
		s.seen = true

	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		if m.Validity != nmea.ValidRMC {
			s.fix.ValidFix = false
		} else {
			s.fix.Latitude = m.Latitude
			s.fix.Longitude = m.Longitude
			s.fix.SpeedKmh = m.Speed * knotsToKmh
			s.fix.Course = m.Course
		}
		s.setTime(m.Time)
		if m.Date.Valid && m.Time.Valid {
			s.fix.Time = time.Date(2000+m.Date.YY, time.Month(m.Date.MM), m.Date.DD,
				m.Time.Hour, m.Time.Minute, m.Time.Second, m.Time.Millisecond*int(time.Millisecond), time.UTC)
		}
		s.seen = true

	case nmea.TypeGSA:
		m := sentence.(nmea.GSA)
		if m.HDOP > 0 {
			s.fix.HDOP = m.HDOP
		}
		if m.FixType == nmea.FixNone {
			s.fix.ValidFix = false
		}

	case nmea.TypeVTG:
		m := sentence.(nmea.VTG)
		s.fix.SpeedKmh = m.GroundSpeedKPH
		if m.TrueTrack != 0 {
			s.fix.Course = m.TrueTrack
		}
	}
	return nil
}

func (s *NMEASource) setTime(t nmea.Time) {
	if !t.Valid {
		return
	}
	s.fix.TimeValid = true
	s.fix.Hour, s.fix.Minute, s.fix.Second = t.Hour, t.Minute, t.Second
}

// Poll returns a copy of the merged fix.
func (s *NMEASource) Poll() (Fix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seen {
		return Fix{}, ErrNoFix
	}
	return s.fix, nil
}

// Stats returns the number of decoded sentences and parse failures.
func (s *NMEASource) Stats() (sentences, parseErrors uint64) {
	return s.sentences.Load(), s.parseErrors.Load()
}

// FormatClock renders the receiver time of f as HH:MM:SS, or "--:--:--".
func FormatClock(f Fix) string {
	if !f.TimeValid {
		return "--:--:--"
	}
	return fmt.Sprintf("%02d:%02d:%02d", f.Hour, f.Minute, f.Second)
}
