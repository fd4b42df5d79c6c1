// Copyright (C) The Embmatrix Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package embmatrix

import (
	"bytes"
	"os"

	"github.com/kshedden/gonpy"
	"gopkg.in/check.v1"
)

type exportNumpySuite struct{}

var _ = check.Suite(&exportNumpySuite{})

func (s *exportNumpySuite) TestExportNumpy(c *check.C) {
	tmpdir := c.MkDir()
	err := os.Mkdir(tmpdir+"/in", 0777)
	c.Assert(err, check.IsNil)
	err = os.WriteFile(tmpdir+"/in/batch1.csv", []byte(`,ENSG01,ENSG02,ENSG03
SSC001.bed,0,0,1
SSC002.bed,0,1,2
SSC003.bed,0,2,1
SSC004.bed,0,0,2
`), 0644)
	c.Assert(err, check.IsNil)

	exited := (&importer{}).RunCommand("import", []string{
		"-input-dir", tmpdir + "/in",
		"-o", tmpdir + "/matrix.gob",
	}, &bytes.Buffer{}, os.Stderr, os.Stderr)
	c.Assert(exited, check.Equals, 0)

	exited = (&exportNumpy{}).RunCommand("export-numpy", []string{
		"-i", tmpdir + "/matrix.gob",
		"-output-dir", tmpdir,
		"-filter",
		"-loglevel", "info",
	}, &bytes.Buffer{}, os.Stderr, os.Stderr)
	c.Assert(exited, check.Equals, 0)

	f, err := os.Open(tmpdir + "/matrix.npy")
	c.Assert(err, check.IsNil)
	defer f.Close()
	npy, err := gonpy.NewReader(f)
	c.Assert(err, check.IsNil)
	c.Check(npy.Shape, check.DeepEquals, []int{4, 2})
	values, err := npy.GetInt16()
	c.Assert(err, check.IsNil)
	c.Check(values, check.DeepEquals, []int16{0, 1, 1, 2, 2, 1, 0, 2})

	columns, err := os.ReadFile(tmpdir + "/columns.csv")
	c.Assert(err, check.IsNil)
	c.Check(string(columns), check.Equals, "Index,Column\n0,ENSG02\n1,ENSG03\n")

	samples, err := os.ReadFile(tmpdir + "/samples.csv")
	c.Assert(err, check.IsNil)
	c.Check(string(samples), check.Equals, "Index,SampleID\n0,SSC001\n1,SSC002\n2,SSC003\n3,SSC004\n")
}

// Filtering can leave a matrix with zero columns; exporting it, with
// or without one-hot recoding, is valid and must not crash.
func (s *exportNumpySuite) TestExportNumpyNoSurvivingColumns(c *check.C) {
	tmpdir := c.MkDir()
	err := os.Mkdir(tmpdir+"/in", 0777)
	c.Assert(err, check.IsNil)
	err = os.WriteFile(tmpdir+"/in/batch1.csv", []byte(",pos\nSSC001.bed,1\nSSC002.bed,2\n"), 0644)
	c.Assert(err, check.IsNil)

	exited := (&importer{}).RunCommand("import", []string{
		"-input-dir", tmpdir + "/in",
		"-o", tmpdir + "/matrix.gob",
	}, &bytes.Buffer{}, os.Stderr, os.Stderr)
	c.Assert(exited, check.Equals, 0)

	exited = (&exportNumpy{}).RunCommand("export-numpy", []string{
		"-i", tmpdir + "/matrix.gob",
		"-output-dir", tmpdir,
		"-filter",
		"-one-hot",
	}, &bytes.Buffer{}, os.Stderr, os.Stderr)
	c.Assert(exited, check.Equals, 0)

	_, err = os.Stat(tmpdir + "/matrix.npy")
	c.Check(err, check.IsNil)
	columns, err := os.ReadFile(tmpdir + "/columns.csv")
	c.Assert(err, check.IsNil)
	c.Check(string(columns), check.Equals, "Index,Column\n")
	samples, err := os.ReadFile(tmpdir + "/samples.csv")
	c.Assert(err, check.IsNil)
	c.Check(string(samples), check.Equals, "Index,SampleID\n0,SSC001\n1,SSC002\n")
}

func (s *exportNumpySuite) TestOnehotZeroColumns(c *check.C) {
	matrix := &Matrix{
		Rows: []SampleRow{
			{Name: "SSC001"},
			{Name: "SSC002"},
		},
	}
	data, rows, cols := rows2array(matrix)
	c.Check(rows, check.Equals, 2)
	c.Check(cols, check.Equals, 0)
	out, names, outcols := recodeOnehot(data, nil, cols)
	c.Check(out, check.HasLen, 0)
	c.Check(names, check.HasLen, 0)
	c.Check(outcols, check.Equals, 0)
}

func (s *exportNumpySuite) TestOnehot(c *check.C) {
	for _, trial := range []struct {
		incols   int
		in       []int16
		outcols  int
		out      []int16
		outnames []string
	}{
		{2, []int16{1, 1, 1, 1}, 2, []int16{1, 1, 1, 1}, []string{"a=1", "b=1"}},
		{2, []int16{1, 1, 1, 2}, 3, []int16{1, 1, 0, 1, 0, 1}, []string{"a=1", "b=1", "b=2"}},
		{
			// 2nd column => 3 one-hot columns
			// 4th column => 0 one-hot columns
			4, []int16{
				1, 1, 0, 0,
				1, 2, 1, 0,
				1, 3, 0, 0,
			}, 5, []int16{
				1, 1, 0, 0, 0,
				1, 0, 1, 0, 1,
				1, 0, 0, 1, 0,
			}, []string{"a=1", "b=1", "b=2", "b=3", "c=1"},
		},
	} {
		names := []string{"a", "b", "c", "d"}[:trial.incols]
		out, outnames, outcols := recodeOnehot(trial.in, names, trial.incols)
		c.Check(out, check.DeepEquals, trial.out)
		c.Check(outnames, check.DeepEquals, trial.outnames)
		c.Check(outcols, check.Equals, trial.outcols)
	}
}
