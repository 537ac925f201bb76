// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package storage

import (
	"encoding/binary"
	"math"
)

// Magic marks a sector holding a written record.
const Magic uint32 = 0xAA55AA55

// RecordSize is the on-media size of a record, padding included.
const RecordSize = 32

// Field offsets within an encoded record.
const (
	offMagic    = 0
	offSequence = 4
	offChecksum = 8
	offValue1   = 12
	offValue2   = 20
	offPadding  = 28
)

// record is the persisted unit. All fields are little-endian.
type record struct {
	Magic    uint32
	Sequence uint32
	Checksum uint32
	Value1   float64
	Value2   float64
}

func (r record) encode() []byte {
	b := make([]byte, RecordSize)
	binary.LittleEndian.PutUint32(b[offMagic:], r.Magic)
	binary.LittleEndian.PutUint32(b[offSequence:], r.Sequence)
	binary.LittleEndian.PutUint64(b[offValue1:], math.Float64bits(r.Value1))
	binary.LittleEndian.PutUint64(b[offValue2:], math.Float64bits(r.Value2))
	// padding stays zero
	binary.LittleEndian.PutUint32(b[offChecksum:], checksum(b))
	return b
}

func decode(b []byte) record {
	return record{
		Magic:    binary.LittleEndian.Uint32(b[offMagic:]),
		Sequence: binary.LittleEndian.Uint32(b[offSequence:]),
		Checksum: binary.LittleEndian.Uint32(b[offChecksum:]),
		Value1:   math.Float64frombits(binary.LittleEndian.Uint64(b[offValue1:])),
		Value2:   math.Float64frombits(binary.LittleEndian.Uint64(b[offValue2:])),
	}
}

// checksum sums every byte of the encoded record except the checksum field.
func checksum(b []byte) uint32 {
	var sum uint32
	for i := 0; i < RecordSize; i++ {
		if i >= offChecksum && i < offChecksum+4 {
			continue
		}
		sum += uint32(b[i])
	}
	return sum
}

// valid reports whether the raw bytes hold an intact record.
func valid(b []byte) bool {
	r := decode(b)
	return r.Magic == Magic && r.Checksum == checksum(b)
}
