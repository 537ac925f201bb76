// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package storage persists a pair of float64 counters on raw erase-before-write
// memory, rotating writes across a pool of sectors so that no single sector
// wears out and an interrupted write always leaves the previous record intact.
package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrVerify is returned by Save when the read-back of the freshly written
// sector does not carry the expected magic and sequence.
var ErrVerify = errors.New("storage: write verification failed")

// RecordStore keeps the latest (value1, value2) pair in a wear-leveled pool.
type RecordStore struct {
	mu    sync.Mutex
	dev   BlockStore
	first int // first sector of the pool on dev
	pool  int // number of sectors in the pool

	// newest sequence as of the last scan or save; valid while known
	seq   uint32
	known bool
}

// NewRecordStore builds a store over pool sectors of dev starting at first.
func NewRecordStore(dev BlockStore, first, pool int) (*RecordStore, error) {
	if pool < 2 {
		return nil, fmt.Errorf("storage: pool needs at least 2 sectors, got %d", pool)
	}
	if first < 0 || first+pool > dev.SectorCount() {
		return nil, fmt.Errorf("storage: pool [%d,%d) does not fit device with %d sectors",
			first, first+pool, dev.SectorCount())
	}
	if dev.SectorSize() < RecordSize {
		return nil, fmt.Errorf("storage: sector size %d smaller than record size %d",
			dev.SectorSize(), RecordSize)
	}
	return &RecordStore{dev: dev, first: first, pool: pool}, nil
}

// PoolSize returns the number of sectors writes rotate through.
func (s *RecordStore) PoolSize() int { return s.pool }

// Read returns the values of the newest valid record. ok is false when the
// pool holds no valid record, which callers treat as "use defaults".
func (s *RecordStore) Read() (v1, v2 float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, seq := s.latest()
	s.seq, s.known = seq, true
	if slot < 0 {
		return 0, 0, false
	}
	buf := make([]byte, RecordSize)
	if err := s.dev.Read(s.first+slot, buf); err != nil || !valid(buf) {
		return 0, 0, false
	}
	r := decode(buf)
	return r.Value1, r.Value2, true
}

// Save writes (v1, v2) into the sector after the current latest one.
// The previous latest sector is not touched. A failed save is not retried.
func (s *RecordStore) Save(v1, v2 float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, seq := s.latest()
	next := (slot + 1) % s.pool // slot -1 (blank pool) starts at 0
	seq++

	rec := record{Magic: Magic, Sequence: seq, Value1: v1, Value2: v2}
	data := rec.encode()
	sector := s.first + next

	// Erase and program back to back while holding the store lock. Until
	// the read-back confirms the record the cached count is stale.
	s.known = false
	if err := s.dev.Erase(sector); err != nil {
		return fmt.Errorf("storage: erase slot %d: %w", next, err)
	}
	if err := s.dev.Program(sector, data); err != nil {
		return fmt.Errorf("storage: program slot %d: %w", next, err)
	}

	buf := make([]byte, RecordSize)
	if err := s.dev.Read(sector, buf); err != nil {
		return fmt.Errorf("storage: verify slot %d: %w", next, err)
	}
	got := decode(buf)
	if got.Magic != Magic || got.Sequence != seq {
		return fmt.Errorf("%w: slot %d magic=0x%08X seq=%d", ErrVerify, next, got.Magic, got.Sequence)
	}

	s.seq, s.known = seq, true
	log.Debug().Int("slot", next).Uint32("seq", seq).Msg("storage: record saved")
	return nil
}

// EraseAll blanks every sector of the pool.
func (s *RecordStore) EraseAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.known = false
	for i := 0; i < s.pool; i++ {
		if err := s.dev.Erase(s.first + i); err != nil {
			return fmt.Errorf("storage: erase slot %d: %w", i, err)
		}
	}
	s.seq, s.known = 0, true
	return nil
}

// WriteCount returns the sequence number of the newest record, i.e. the
// number of successful saves since the pool was last erased. The pool is
// scanned only when nothing has been read or saved yet.
func (s *RecordStore) WriteCount() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.known {
		_, s.seq = s.latest()
		s.known = true
	}
	return s.seq
}

// latest scans the pool and returns the slot holding the highest valid
// sequence, or -1 and 0 when the pool is blank.
func (s *RecordStore) latest() (slot int, seq uint32) {
	slot = -1
	buf := make([]byte, RecordSize)
	for i := 0; i < s.pool; i++ {
		if err := s.dev.Read(s.first+i, buf); err != nil {
			log.Warn().Err(err).Int("slot", i).Msg("storage: read failed, treating slot as blank")
			continue
		}
		r := decode(buf)
		if r.Magic != Magic {
			continue
		}
		if r.Checksum != checksum(buf) {
			log.Debug().Int("slot", i).Uint32("seq", r.Sequence).Msg("storage: checksum mismatch")
			continue
		}
		if r.Sequence > seq {
			seq = r.Sequence
			slot = i
		}
	}
	return slot, seq
}
