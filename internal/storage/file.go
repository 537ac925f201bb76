// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package storage

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// FileBlockStore exposes a raw device node (e.g. an MTD partition) or a
// pre-sized image file as a BlockStore. The region starts at offset and
// spans count sectors. Flash semantics are emulated in software so an
// image file behaves like the real part.
type FileBlockStore struct {
	mu         sync.Mutex
	f          *os.File
	offset     int64
	sectorSize int
	count      int
}

// OpenFile opens path as a block device. An image that is shorter than
// the region is extended with erased bytes.
func OpenFile(path string, offset int64, sectorSize, count int) (*FileBlockStore, error) {
	if sectorSize <= 0 || count <= 0 {
		return nil, fmt.Errorf("invalid geometry: %d sectors of %d bytes", count, sectorSize)
	}
	if offset%int64(sectorSize) != 0 {
		// Align down to a sector boundary.
		offset = (offset / int64(sectorSize)) * int64(sectorSize)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open block store %s: %w", path, err)
	}

	s := &FileBlockStore{f: f, offset: offset, sectorSize: sectorSize, count: count}
	if err := s.ensureSize(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *FileBlockStore) ensureSize() error {
	fi, err := s.f.Stat()
	if err != nil {
		return fmt.Errorf("stat block store: %w", err)
	}
	// Device nodes report size 0; leave them alone.
	if !fi.Mode().IsRegular() {
		return nil
	}
	end := s.offset + int64(s.sectorSize*s.count)
	if fi.Size() >= end {
		return nil
	}
	blank := make([]byte, s.sectorSize)
	fill(blank, ErasedByte)
	for pos := fi.Size(); pos < end; {
		n := int64(len(blank))
		if end-pos < n {
			n = end - pos
		}
		if _, err := s.f.WriteAt(blank[:n], pos); err != nil {
			return fmt.Errorf("extend block store: %w", err)
		}
		pos += n
	}
	return s.f.Sync()
}

func (s *FileBlockStore) SectorSize() int  { return s.sectorSize }
func (s *FileBlockStore) SectorCount() int { return s.count }

func (s *FileBlockStore) Erase(sector int) error {
	if err := s.check(sector, 0); err != nil {
		return err
	}
	blank := make([]byte, s.sectorSize)
	fill(blank, ErasedByte)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.WriteAt(blank, s.addr(sector)); err != nil {
		return fmt.Errorf("erase sector %d: %w", sector, err)
	}
	return s.f.Sync()
}

func (s *FileBlockStore) Program(sector int, data []byte) error {
	if err := s.check(sector, len(data)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := make([]byte, len(data))
	if _, err := s.f.ReadAt(cur, s.addr(sector)); err != nil && err != io.EOF {
		return fmt.Errorf("program sector %d: %w", sector, err)
	}
	for i := range cur {
		cur[i] &= data[i]
	}
	if _, err := s.f.WriteAt(cur, s.addr(sector)); err != nil {
		return fmt.Errorf("program sector %d: %w", sector, err)
	}
	return s.f.Sync()
}

func (s *FileBlockStore) Read(sector int, buf []byte) error {
	if err := s.check(sector, len(buf)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.ReadAt(buf, s.addr(sector)); err != nil {
		return fmt.Errorf("read sector %d: %w", sector, err)
	}
	return nil
}

// Close releases the underlying file.
func (s *FileBlockStore) Close() error {
	return s.f.Close()
}

func (s *FileBlockStore) addr(sector int) int64 {
	return s.offset + int64(sector)*int64(s.sectorSize)
}

func (s *FileBlockStore) check(sector, n int) error {
	if sector < 0 || sector >= s.count {
		return fmt.Errorf("sector %d out of range [0,%d)", sector, s.count)
	}
	if n > s.sectorSize {
		return fmt.Errorf("%d bytes exceed sector size %d", n, s.sectorSize)
	}
	return nil
}
