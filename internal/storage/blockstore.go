// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package storage

import (
	"fmt"
	"sync"
)

// ErasedByte is the value every byte of a sector reads back as after an erase.
const ErasedByte = 0xFF

// BlockStore is a sector-granular, erase-before-write storage device.
// Program can only clear bits; writing over data that was not erased
// first yields the bitwise AND of old and new contents.
type BlockStore interface {
	SectorSize() int
	SectorCount() int
	Erase(sector int) error
	Program(sector int, data []byte) error
	Read(sector int, buf []byte) error
}

// MemBlockStore is an in-memory BlockStore used for tests and dry runs.
// It behaves like NOR flash: Erase sets every byte to 0xFF and Program ANDs.
type MemBlockStore struct {
	mu         sync.Mutex
	sectorSize int
	sectors    [][]byte

	// FailProgram makes every Program call a silent no-op, modelling a
	// program step that did not take. Erase still succeeds.
	FailProgram bool
}

// NewMemBlockStore returns a blank device of count sectors.
func NewMemBlockStore(sectorSize, count int) *MemBlockStore {
	m := &MemBlockStore{sectorSize: sectorSize, sectors: make([][]byte, count)}
	for i := range m.sectors {
		m.sectors[i] = make([]byte, sectorSize)
		fill(m.sectors[i], ErasedByte)
	}
	return m
}

func (m *MemBlockStore) SectorSize() int  { return m.sectorSize }
func (m *MemBlockStore) SectorCount() int { return len(m.sectors) }

func (m *MemBlockStore) Erase(sector int) error {
	if err := m.check(sector, 0); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fill(m.sectors[sector], ErasedByte)
	return nil
}

func (m *MemBlockStore) Program(sector int, data []byte) error {
	if err := m.check(sector, len(data)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailProgram {
		return nil
	}
	dst := m.sectors[sector]
	for i, b := range data {
		dst[i] &= b
	}
	return nil
}

func (m *MemBlockStore) Read(sector int, buf []byte) error {
	if err := m.check(sector, len(buf)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy(buf, m.sectors[sector])
	return nil
}

// Poke overwrites a single byte without flash semantics. Tests use it to
// simulate a torn or corrupted write.
func (m *MemBlockStore) Poke(sector, offset int, b byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sectors[sector][offset] = b
}

// Peek returns a copy of a sector's raw contents.
func (m *MemBlockStore) Peek(sector int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, m.sectorSize)
	copy(out, m.sectors[sector])
	return out
}

func (m *MemBlockStore) check(sector, n int) error {
	if sector < 0 || sector >= len(m.sectors) {
		return fmt.Errorf("sector %d out of range [0,%d)", sector, len(m.sectors))
	}
	if n > m.sectorSize {
		return fmt.Errorf("%d bytes exceed sector size %d", n, m.sectorSize)
	}
	return nil
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
