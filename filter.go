// Copyright (C) The Embmatrix Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package embmatrix

import (
	"bufio"
	"encoding/gob"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
)

type filter struct {
	ColumnMarker  string
	StrictTernary bool
}

func (f *filter) Flags(flags *flag.FlagSet) {
	flags.StringVar(&f.ColumnMarker, "column-marker", "ENS", "keep only feature columns whose name contains `substring` (empty matches all)")
	flags.BoolVar(&f.StrictTernary, "strict-ternary", true, "drop columns that never take value 1 or never take value 2, in addition to zero-sum columns (false drops only constant columns)")
}

// Apply returns matrix restricted to marker-matching columns, with
// degenerate columns removed. The input is not modified.
func (f *filter) Apply(matrix *Matrix) *Matrix {
	out := matrix.selectColumns(f.ColumnMarker)
	if len(out.ColumnNames) == 0 {
		log.Warnf("0 of %d columns contain marker %q", len(matrix.ColumnNames), f.ColumnMarker)
		return out
	}
	selected := len(out.ColumnNames)
	if f.StrictTernary {
		// Three ordered passes. The second and third drop any
		// column that never takes value 1 or never takes value
		// 2, not just constant columns, so variable binary-only
		// columns like {0,1} are dropped too.
		out = out.dropColumnsWhere(func(c columnValues) bool { return c.sum == 0 })
		out = out.dropColumnsWhere(func(c columnValues) bool { return c.count[1] == 0 })
		out = out.dropColumnsWhere(func(c columnValues) bool { return c.count[2] == 0 })
	} else {
		out = out.dropColumnsWhere(func(c columnValues) bool { return c.constant })
	}
	log.Printf("filtering done, %d of %d marker columns kept", len(out.ColumnNames), selected)
	if len(out.ColumnNames) == 0 {
		log.Warn("0 columns survived degeneracy filtering")
	}
	return out
}

// selectColumns keeps columns whose name contains marker, preserving
// column order. An empty marker matches every column.
func (m *Matrix) selectColumns(marker string) *Matrix {
	var keep []int
	for col, name := range m.ColumnNames {
		if strings.Contains(name, marker) {
			keep = append(keep, col)
		}
	}
	return m.keepColumns(keep)
}

// columnValues summarizes one column's values across all rows.
type columnValues struct {
	sum      int
	count    [3]int // occurrences of 0, 1, 2; other values only affect sum
	constant bool
}

// dropColumnsWhere removes every column whose value summary satisfies
// degenerate.
func (m *Matrix) dropColumnsWhere(degenerate func(columnValues) bool) *Matrix {
	var keep []int
	for col := range m.ColumnNames {
		c := columnValues{constant: true}
		for i, row := range m.Rows {
			v := row.Values[col]
			c.sum += int(v)
			if v >= 0 && v <= 2 {
				c.count[v]++
			}
			if i > 0 && v != m.Rows[0].Values[col] {
				c.constant = false
			}
		}
		if !degenerate(c) {
			keep = append(keep, col)
		}
	}
	if len(keep) == len(m.ColumnNames) {
		return m
	}
	return m.keepColumns(keep)
}

type filtercmd struct {
	filter
}

func (cmd *filtercmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	inputFilename := flags.String("i", "-", "input `file`")
	outputFilename := flags.String("o", "-", "output `file`")
	cmd.filter.Flags(flags)
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	lvl, err := log.ParseLevel(*loglevel)
	if err != nil {
		return 2
	}
	log.SetLevel(lvl)

	var infile io.ReadCloser
	if *inputFilename == "-" {
		infile = io.NopCloser(stdin)
	} else {
		infile, err = os.Open(*inputFilename)
		if err != nil {
			return 1
		}
		defer infile.Close()
	}
	log.Print("reading")
	matrix, err := ReadMatrix(infile, strings.HasSuffix(*inputFilename, ".gz"))
	if err != nil {
		return 1
	}
	err = infile.Close()
	if err != nil {
		return 1
	}
	log.Printf("reading done, %d samples, %d columns", len(matrix.Rows), len(matrix.ColumnNames))

	log.Print("filtering")
	matrix = cmd.filter.Apply(matrix)

	var outfile io.WriteCloser
	if *outputFilename == "-" {
		outfile = nopCloser{stdout}
	} else {
		outfile, err = os.OpenFile(*outputFilename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0777)
		if err != nil {
			return 1
		}
		defer outfile.Close()
	}
	bufw := bufio.NewWriter(outfile)
	var w io.Writer = bufw
	var gzw *pgzip.Writer
	if strings.HasSuffix(*outputFilename, ".gz") {
		gzw = pgzip.NewWriter(bufw)
		w = gzw
	}
	log.Print("writing")
	err = gob.NewEncoder(w).Encode(matrix.Entry())
	if err != nil {
		return 1
	}
	if gzw != nil {
		err = gzw.Close()
		if err != nil {
			return 1
		}
	}
	err = bufw.Flush()
	if err != nil {
		return 1
	}
	err = outfile.Close()
	if err != nil {
		return 1
	}
	log.Print("writing done")
	return 0
}
