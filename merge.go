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
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// mergedMatrix is the inner join of the sample map and a filtered
// feature matrix, with the derived ASD label in the final column.
type mergedMatrix struct {
	MetaColumns    []string
	FeatureColumns []string
	Rows           []mergedRow
	roleCol        int
}

type mergedRow struct {
	Meta   []string
	Values []int16
	ASD    int16
}

// mergeSamples inner-joins the sample map (left) against the feature
// matrix on repository identifier == sample name. Rows without a
// match on either side are dropped. A repository identifier matching
// several feature rows expands into one merged row per match.
func mergeSamples(sm *sampleMap, matrix *Matrix) *mergedMatrix {
	index := map[string][]int{}
	for i, row := range matrix.Rows {
		index[row.Name] = append(index[row.Name], i)
	}
	out := &mergedMatrix{
		MetaColumns:    sm.ColumnNames,
		FeatureColumns: matrix.ColumnNames,
		roleCol:        sm.roleCol,
	}
	for i := range sm.Rows {
		matches := index[sm.Key(i)]
		if len(matches) > 1 {
			log.Warnf("repository identifier %q matches %d samples, expanding", sm.Key(i), len(matches))
		}
		for _, j := range matches {
			row := mergedRow{Meta: sm.Rows[i], Values: matrix.Rows[j].Values}
			if isProband(sm.Role(i)) {
				row.ASD = 1
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// subset returns the rows whose Role is either element of the pair,
// preserving row order and all columns.
func (m *mergedMatrix) subset(role1, role2 string) *mergedMatrix {
	out := &mergedMatrix{
		MetaColumns:    m.MetaColumns,
		FeatureColumns: m.FeatureColumns,
		roleCol:        m.roleCol,
	}
	for _, row := range m.Rows {
		if role := row.Meta[m.roleCol]; role == role1 || role == role2 {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

func (m *mergedMatrix) WriteCSV(w io.Writer) error {
	header := make([]string, 0, len(m.MetaColumns)+len(m.FeatureColumns)+1)
	for _, name := range m.MetaColumns {
		header = append(header, csvField(name))
	}
	for _, name := range m.FeatureColumns {
		header = append(header, csvField(name))
	}
	header = append(header, "ASD")
	_, err := fmt.Fprintln(w, strings.Join(header, ","))
	if err != nil {
		return err
	}
	for _, row := range m.Rows {
		fields := make([]string, 0, len(header))
		for _, cell := range row.Meta {
			fields = append(fields, csvField(cell))
		}
		for _, v := range row.Values {
			fields = append(fields, strconv.Itoa(int(v)))
		}
		fields = append(fields, strconv.Itoa(int(row.ASD)))
		_, err = fmt.Fprintln(w, strings.Join(fields, ","))
		if err != nil {
			return err
		}
	}
	return nil
}

// csvField quotes a cell whose text would otherwise break column
// alignment, e.g. a metadata value containing a comma when the
// identifier map came from a .tsv file.
func csvField(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func fullMatrixFilename(date string) string {
	return fmt.Sprintf("full_embedding_matrix_%s.csv", date)
}

func subsetMatrixFilename(role1, role2, date string) string {
	return fmt.Sprintf("embedding_matrix_%s_%s_%s.csv", role1, role2, date)
}

func parseRolePairs(s string) ([][2]string, error) {
	if s == "" {
		return nil, nil
	}
	var pairs [][2]string
	for _, p := range strings.Split(s, ",") {
		halves := strings.Split(p, ":")
		if len(halves) != 2 || halves[0] == "" || halves[1] == "" {
			return nil, fmt.Errorf("cannot parse role pair %q (want role1:role2)", p)
		}
		pairs = append(pairs, [2]string{halves[0], halves[1]})
	}
	return pairs, nil
}

type merger struct {
	filter
	inputFilename   string
	samplesFilename string
	outputDir       string
	compoundColumn  string
	keyColumn       string
	rolePairs       string
	runDate         string
}

func (cmd *merger) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

func (cmd *merger) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	flags.StringVar(&cmd.inputFilename, "i", "-", "input matrix `file` (from 'embmatrix import' or 'embmatrix filter')")
	flags.StringVar(&cmd.samplesFilename, "samples", "", "identifier map `file` with compound and repository identifier columns")
	flags.StringVar(&cmd.outputDir, "output-dir", ".", "output `directory`")
	flags.StringVar(&cmd.compoundColumn, "compound-column", "identifier", "`name` of the compound <family>.<role> identifier column")
	flags.StringVar(&cmd.keyColumn, "key-column", "repository_id", "`name` of the repository identifier column (join key)")
	flags.StringVar(&cmd.rolePairs, "pairs", "fa:mo,p1:s1", "role `pairs` to extract, e.g. fa:mo,p1:s1")
	flags.StringVar(&cmd.runDate, "run-date", "", "`date` (YYYY-MM-DD) to embed in output filenames (default today)")
	cmd.filter.Flags(flags)
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return err
	} else if flags.NArg() > 0 {
		return fmt.Errorf("errant command line arguments after parsed flags: %v", flags.Args())
	}
	if cmd.samplesFilename == "" {
		return fmt.Errorf("-samples argument is required")
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	lvl, err := log.ParseLevel(*loglevel)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)

	pairs, err := parseRolePairs(cmd.rolePairs)
	if err != nil {
		return err
	}
	date := time.Now()
	if cmd.runDate != "" {
		date, err = time.Parse("2006-01-02", cmd.runDate)
		if err != nil {
			return fmt.Errorf("-run-date: %w", err)
		}
	}

	var infile io.ReadCloser
	if cmd.inputFilename == "-" {
		infile = io.NopCloser(stdin)
	} else {
		infile, err = os.Open(cmd.inputFilename)
		if err != nil {
			return err
		}
		defer infile.Close()
	}
	log.Print("reading matrix")
	matrix, err := ReadMatrix(infile, strings.HasSuffix(cmd.inputFilename, ".gz"))
	if err != nil {
		return err
	}
	err = infile.Close()
	if err != nil {
		return err
	}
	log.Printf("reading done, %d samples, %d columns", len(matrix.Rows), len(matrix.ColumnNames))

	log.Print("filtering")
	matrix = cmd.filter.Apply(matrix)

	log.Printf("reading identifier map %s", cmd.samplesFilename)
	sm, err := loadSampleMap(cmd.samplesFilename, cmd.compoundColumn, cmd.keyColumn)
	if err != nil {
		return err
	}
	log.Printf("identifier map has %d rows", len(sm.Rows))

	log.Print("merging")
	merged := mergeSamples(sm, matrix)
	if len(merged.Rows) == 0 {
		log.Warn("0 rows survived the join")
	}
	log.Printf("merging done, %d rows", len(merged.Rows))

	fnmDate := date.Format("2006_01_02")
	err = cmd.writeMatrix(merged, fullMatrixFilename(fnmDate))
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		sub := merged.subset(pair[0], pair[1])
		if len(sub.Rows) == 0 {
			log.Warnf("role pair %s/%s matches no rows", pair[0], pair[1])
		}
		err = cmd.writeMatrix(sub, subsetMatrixFilename(pair[0], pair[1], fnmDate))
		if err != nil {
			return err
		}
	}
	return nil
}

func (cmd *merger) writeMatrix(m *mergedMatrix, fnm string) error {
	path := cmd.outputDir + "/" + fnm
	log.Infof("writing %d rows to %s", len(m.Rows), path)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	bufw := bufio.NewWriter(f)
	err = m.WriteCSV(bufw)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	err = bufw.Flush()
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	err = f.Close()
	if err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
