// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/relabs-tech/gauge_cluster/internal/gauge"
)

// Jogger is the part of the needle controller the bench tool drives.
type Jogger interface {
	Home(ctx context.Context) error
	Jog(ctx context.Context, steps int) error
	Position() int
}

// RunJogSession moves the needle interactively. Each input line is one of:
//
//	<n>        jog n steps (negative for reverse)
//	0          re-home
//	m <value>  record the current position as the step for value
//
// Anything else ends the session. The recorded points are returned in input
// order.
func RunJogSession(ctx context.Context, in io.Reader, out io.Writer, g Jogger) ([]gauge.Point, error) {
	var marks []gauge.Point
	sc := bufio.NewScanner(in)

	fmt.Fprintln(out, "jog: steps (+/-), 0 = home, m <value> = mark, anything else quits")
	for {
		fmt.Fprintf(out, "[%d] > ", g.Position())
		if !sc.Scan() {
			return marks, sc.Err()
		}
		line := strings.TrimSpace(sc.Text())

		if rest, ok := strings.CutPrefix(line, "m "); ok {
			v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
			if err != nil {
				fmt.Fprintf(out, "bad value %q\n", rest)
				continue
			}
			marks = append(marks, gauge.Point{Value: v, Step: g.Position()})
			fmt.Fprintf(out, "marked %g at step %d\n", v, g.Position())
			continue
		}

		n, err := strconv.Atoi(line)
		if err != nil {
			return marks, nil
		}
		if n == 0 {
			err = g.Home(ctx)
		} else {
			err = g.Jog(ctx, n)
		}
		if err != nil {
			return marks, err
		}
	}
}

// ProfileFromMarks replaces base's table with the marked points, adding the
// (0, 0) origin when it is missing.
func ProfileFromMarks(base gauge.Profile, marks []gauge.Point) (gauge.Profile, error) {
	table := make([]gauge.Point, 0, len(marks)+1)
	if len(marks) == 0 || marks[0].Value > 0 {
		table = append(table, gauge.Point{Value: 0, Step: 0})
	}
	table = append(table, marks...)
	if _, err := gauge.NewCalibrationTable(table); err != nil {
		return gauge.Profile{}, err
	}
	base.Table = table
	return base, nil
}
