// Copyright (C) The Embmatrix Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package embmatrix

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
)

type importer struct {
	inputDir    string
	outputFile  string
	stripSuffix string
}

func (cmd *importer) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&cmd.inputDir, "input-dir", "./in", "input `directory` of per-sample feature tables")
	flags.StringVar(&cmd.outputFile, "o", "-", "output `file`")
	flags.StringVar(&cmd.stripSuffix, "strip-suffix", ".bed", "`suffix` to strip from sample identifiers")
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if flags.NArg() > 0 {
		err = fmt.Errorf("errant command line arguments after parsed flags: %v", flags.Args())
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

	infiles, err := listTableFiles(cmd.inputDir)
	if err != nil {
		return 1
	}
	if len(infiles) == 0 {
		err = fmt.Errorf("no input files found in %s", cmd.inputDir)
		return 1
	}

	var matrix *Matrix
	for _, infile := range infiles {
		log.Printf("reading %s", infile)
		var t *Matrix
		t, err = readFeatureTable(infile, cmd.stripSuffix)
		if err != nil {
			return 1
		}
		if matrix == nil {
			matrix = t
			continue
		}
		err = sameColumns(matrix.ColumnNames, t.ColumnNames, infile)
		if err != nil {
			return 1
		}
		matrix.Rows = append(matrix.Rows, t.Rows...)
	}
	log.Printf("reading done, %d samples, %d columns", len(matrix.Rows), len(matrix.ColumnNames))

	var output io.WriteCloser
	if cmd.outputFile == "-" {
		output = nopCloser{stdout}
	} else {
		output, err = os.OpenFile(cmd.outputFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0777)
		if err != nil {
			return 1
		}
		defer output.Close()
	}
	bufw := bufio.NewWriter(output)
	var w io.Writer = bufw
	var gzw *pgzip.Writer
	if strings.HasSuffix(cmd.outputFile, ".gz") {
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
	err = output.Close()
	if err != nil {
		return 1
	}
	log.Print("writing done")
	return 0
}

// readFeatureTable reads one delimited per-sample feature table. The
// first header field is the index-name slot and is ignored; the
// first field of each data row is the sample identifier, with
// stripSuffix removed if present. All remaining cells must parse as
// integers (float text is truncated, like astype(int)).
func readFeatureTable(fnm string, stripSuffix string) (*Matrix, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	buf, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	delim := tableDelim(fnm)
	var ret *Matrix
	lineNum := 0
	for _, line := range bytes.Split(buf, []byte{'\n'}) {
		lineNum++
		if len(line) == 0 {
			continue
		}
		split := strings.Split(strings.TrimSuffix(string(line), "\r"), delim)
		if ret == nil {
			// header row
			ret = &Matrix{ColumnNames: split[1:]}
			continue
		}
		if len(split) != len(ret.ColumnNames)+1 {
			return nil, fmt.Errorf("%s line %d: %d fields, expected %d", fnm, lineNum, len(split), len(ret.ColumnNames)+1)
		}
		row := SampleRow{
			Name:   strings.TrimSuffix(split[0], stripSuffix),
			Values: make([]int16, len(split)-1),
		}
		for i, s := range split[1:] {
			v, err := parseIndicator(s)
			if err != nil {
				return nil, fmt.Errorf("%s line %d column %q: cannot parse %q as integer", fnm, lineNum, ret.ColumnNames[i], s)
			}
			row.Values[i] = v
		}
		ret.Rows = append(ret.Rows, row)
	}
	if ret == nil {
		return nil, fmt.Errorf("%s: no header row found", fnm)
	}
	return ret, nil
}

func parseIndicator(s string) (int16, error) {
	if v, err := strconv.Atoi(s); err == nil {
		return int16(v), nil
	}
	// astype(int) semantics: accept float text, truncate toward zero
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int16(f), nil
}

func sameColumns(a, b []string, fnm string) error {
	if len(a) != len(b) {
		return fmt.Errorf("%s: %d columns, expected %d", fnm, len(b), len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			return fmt.Errorf("%s: column %d is %q, expected %q", fnm, i, b[i], a[i])
		}
	}
	return nil
}
