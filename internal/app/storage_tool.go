// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
)

// StoreAdmin is the maintenance surface of the record store.
type StoreAdmin interface {
	Read() (total, partial float64, ok bool)
	Save(total, partial float64) error
	EraseAll() error
	WriteCount() uint32
	PoolSize() int
}

// ErrUsage is returned for a malformed storage tool invocation.
var ErrUsage = errors.New("usage: storage_tool read | writes | erase | set <total_km> [partial_km]")

// RunStorageTool executes one maintenance command against s.
func RunStorageTool(s StoreAdmin, args []string, out io.Writer) error {
	if len(args) == 0 {
		return ErrUsage
	}
	switch args[0] {
	case "read":
		total, partial, ok := s.Read()
		if !ok {
			fmt.Fprintln(out, "no valid record")
			return nil
		}
		fmt.Fprintf(out, "total:   %s km\npartial: %.2f km\nwrites:  %s\n",
			humanize.CommafWithDigits(total, 2), partial, humanize.Comma(int64(s.WriteCount())))

	case "writes":
		writes := s.WriteCount()
		fmt.Fprintf(out, "%s writes over %d sectors (~%s erases per sector)\n",
			humanize.Comma(int64(writes)), s.PoolSize(), humanize.Comma(int64(writes)/int64(s.PoolSize())))

	case "erase":
		if err := s.EraseAll(); err != nil {
			return err
		}
		fmt.Fprintf(out, "erased %d sectors\n", s.PoolSize())

	case "set":
		if len(args) < 2 || len(args) > 3 {
			return ErrUsage
		}
		total, err := parseKm(args[1])
		if err != nil {
			return err
		}
		_, partial, _ := s.Read()
		if len(args) == 3 {
			if partial, err = parseKm(args[2]); err != nil {
				return err
			}
		}
		if err := s.Save(total, partial); err != nil {
			return err
		}
		fmt.Fprintf(out, "saved total=%.2f partial=%.2f\n", total, partial)

	default:
		return ErrUsage
	}
	return nil
}

func parseKm(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid distance %q", s)
	}
	return v, nil
}
