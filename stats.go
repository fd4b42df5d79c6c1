// Copyright (C) The Embmatrix Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package embmatrix

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

type statscmd struct {
	columnMarker string
}

func (cmd *statscmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	inputFilename := flags.String("i", "-", "input matrix `file`")
	outputFilename := flags.String("o", "-", "output `file`")
	flags.StringVar(&cmd.columnMarker, "column-marker", "ENS", "count columns whose name contains `substring`")
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

	var input io.ReadCloser
	if *inputFilename == "-" {
		input = io.NopCloser(stdin)
	} else {
		input, err = os.Open(*inputFilename)
		if err != nil {
			return 1
		}
		defer input.Close()
	}
	matrix, err := ReadMatrix(input, strings.HasSuffix(*inputFilename, ".gz"))
	if err != nil {
		return 1
	}
	err = input.Close()
	if err != nil {
		return 1
	}

	var output io.WriteCloser
	if *outputFilename == "-" {
		output = nopCloser{stdout}
	} else {
		output, err = os.OpenFile(*outputFilename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0777)
		if err != nil {
			return 1
		}
		defer output.Close()
	}
	bufw := bufio.NewWriter(output)
	err = cmd.doStats(matrix, bufw)
	if err != nil {
		return 1
	}
	err = bufw.Flush()
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	return 0
}

func (cmd *statscmd) doStats(matrix *Matrix, output io.Writer) error {
	var ret struct {
		Samples         int
		Columns         int
		MarkerColumns   int
		ValueCounts     map[int16]int64
		ZeroSumColumns  int
		ColumnsNeverOne int
		ColumnsNeverTwo int
	}

	ret.Samples = len(matrix.Rows)
	ret.Columns = len(matrix.ColumnNames)
	ret.ValueCounts = map[int16]int64{}
	for col, name := range matrix.ColumnNames {
		if strings.Contains(name, cmd.columnMarker) {
			ret.MarkerColumns++
		}
		sum := 0
		sawOne := false
		sawTwo := false
		for _, row := range matrix.Rows {
			v := row.Values[col]
			ret.ValueCounts[v]++
			sum += int(v)
			sawOne = sawOne || v == 1
			sawTwo = sawTwo || v == 2
		}
		if sum == 0 {
			ret.ZeroSumColumns++
		}
		if !sawOne {
			ret.ColumnsNeverOne++
		}
		if !sawTwo {
			ret.ColumnsNeverTwo++
		}
	}

	return json.NewEncoder(output).Encode(ret)
}
