// Copyright (C) The Embmatrix Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package embmatrix

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strings"

	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
)

type exportNumpy struct {
	filter
}

func (cmd *exportNumpy) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	outputDir := flags.String("output-dir", ".", "output `directory` for matrix.npy, columns.csv, samples.csv")
	onehot := flags.Bool("one-hot", false, "recode indicator values as one-hot columns")
	applyFilter := flags.Bool("filter", false, "apply column filtering before exporting")
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
	if *applyFilter {
		matrix = cmd.filter.Apply(matrix)
	}

	out, rows, cols := rows2array(matrix)
	names := matrix.ColumnNames
	if *onehot {
		out, names, cols = recodeOnehot(out, names, cols)
	}

	npyFilename := *outputDir + "/matrix.npy"
	log.Infof("writing %d×%d matrix to %s", rows, cols, npyFilename)
	var f *os.File
	f, err = os.Create(npyFilename)
	if err != nil {
		return 1
	}
	defer f.Close()
	bufw := bufio.NewWriter(f)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return 1
	}
	npw.Shape = []int{rows, cols}
	err = npw.WriteInt16(out)
	if err != nil {
		return 1
	}
	err = bufw.Flush()
	if err != nil {
		return 1
	}
	err = f.Close()
	if err != nil {
		return 1
	}

	err = writeLabelFile(*outputDir+"/columns.csv", "Index,Column", names)
	if err != nil {
		return 1
	}
	sampleIDs := make([]string, len(matrix.Rows))
	for i, row := range matrix.Rows {
		sampleIDs[i] = row.Name
	}
	err = writeLabelFile(*outputDir+"/samples.csv", "Index,SampleID", sampleIDs)
	if err != nil {
		return 1
	}
	return 0
}

// rows2array packs the matrix values into a flat row-major array for
// numpy output.
func rows2array(matrix *Matrix) (data []int16, rows, cols int) {
	rows = len(matrix.Rows)
	cols = len(matrix.ColumnNames)
	data = make([]int16, rows*cols)
	for row, sample := range matrix.Rows {
		copy(data[row*cols:(row+1)*cols], sample.Values)
	}
	return
}

// recodeOnehot expands each column into one output column per
// observed value v in 1..max(column), set to 1 where the input cell
// equals v. Constant-zero columns expand to zero output columns.
func recodeOnehot(in []int16, names []string, incols int) ([]int16, []string, int) {
	if incols == 0 {
		return nil, nil, 0
	}
	rows := len(in) / incols
	maxvalue := make([]int16, incols)
	for row := 0; row < rows; row++ {
		for col := 0; col < incols; col++ {
			if v := in[row*incols+col]; maxvalue[col] < v {
				maxvalue[col] = v
			}
		}
	}
	outcol := make([]int, incols)
	outcols := 0
	var outnames []string
	for incol, v := range maxvalue {
		outcol[incol] = outcols
		outcols += int(v)
		for i := int16(1); i <= v; i++ {
			outnames = append(outnames, fmt.Sprintf("%s=%d", names[incol], i))
		}
	}
	out := make([]int16, rows*outcols)
	for row := 0; row < rows; row++ {
		for col := 0; col < incols; col++ {
			if v := in[row*incols+col]; v > 0 {
				out[row*outcols+outcol[col]+int(v)-1] = 1
			}
		}
	}
	return out, outnames, outcols
}

func writeLabelFile(fnm, header string, labels []string) error {
	log.Infof("writing %s", fnm)
	f, err := os.Create(fnm)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, header)
	if err != nil {
		return err
	}
	for i, label := range labels {
		_, err = fmt.Fprintf(f, "%d,%s\n", i, csvField(label))
		if err != nil {
			return fmt.Errorf("write %s: %w", fnm, err)
		}
	}
	err = f.Close()
	if err != nil {
		return fmt.Errorf("close %s: %w", fnm, err)
	}
	return nil
}
