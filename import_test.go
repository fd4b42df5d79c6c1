// Copyright (C) The Embmatrix Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package embmatrix

import (
	"bytes"
	"os"

	"gopkg.in/check.v1"
)

type importSuite struct{}

var _ = check.Suite(&importSuite{})

func (s *importSuite) TestReadFeatureTable(c *check.C) {
	fnm := c.MkDir() + "/batch1.csv"
	err := os.WriteFile(fnm, []byte(`,ENSG01,ENSG02
SSC001.bed,0,1
SSC002.bed,2,1.0
`), 0644)
	c.Assert(err, check.IsNil)
	t, err := readFeatureTable(fnm, ".bed")
	c.Assert(err, check.IsNil)
	c.Check(t.ColumnNames, check.DeepEquals, []string{"ENSG01", "ENSG02"})
	c.Check(t.Rows, check.DeepEquals, []SampleRow{
		{Name: "SSC001", Values: []int16{0, 1}},
		{Name: "SSC002", Values: []int16{2, 1}},
	})
}

func (s *importSuite) TestReadFeatureTableBadCell(c *check.C) {
	fnm := c.MkDir() + "/batch1.csv"
	err := os.WriteFile(fnm, []byte(",ENSG01\nSSC001.bed,maybe\n"), 0644)
	c.Assert(err, check.IsNil)
	_, err = readFeatureTable(fnm, ".bed")
	c.Check(err, check.ErrorMatches, `.*line 2 column "ENSG01": cannot parse "maybe" as integer`)
}

func (s *importSuite) TestReadFeatureTableShortRow(c *check.C) {
	fnm := c.MkDir() + "/batch1.csv"
	err := os.WriteFile(fnm, []byte(",ENSG01,ENSG02\nSSC001.bed,1\n"), 0644)
	c.Assert(err, check.IsNil)
	_, err = readFeatureTable(fnm, ".bed")
	c.Check(err, check.ErrorMatches, `.*line 2: 2 fields, expected 3`)
}

func (s *importSuite) TestParseIndicator(c *check.C) {
	for in, want := range map[string]int16{
		"0":   0,
		"1":   1,
		"2":   2,
		"1.0": 1,
		"2.9": 2, // astype(int) truncates
	} {
		got, err := parseIndicator(in)
		c.Check(err, check.IsNil)
		c.Check(got, check.Equals, want, check.Commentf("input %q", in))
	}
	_, err := parseIndicator("")
	c.Check(err, check.NotNil)
	_, err = parseIndicator("two")
	c.Check(err, check.NotNil)
}

func (s *importSuite) TestTableDelim(c *check.C) {
	for fnm, want := range map[string]string{
		"map.csv":       ",",
		"map.tsv":       "\t",
		"map.tsv.gz":    "\t",
		"map.csv.gz":    ",",
		"batch.tsv.csv": ",", // only the real extension counts
	} {
		c.Check(tableDelim(fnm), check.Equals, want, check.Commentf("filename %q", fnm))
	}
}

func (s *importSuite) TestImportConcatenatesRows(c *check.C) {
	tmpdir := c.MkDir()
	err := os.WriteFile(tmpdir+"/batch1.csv", []byte(",ENSG01,ENSG02\nSSC001.bed,0,1\nSSC002.bed,1,2\n"), 0644)
	c.Assert(err, check.IsNil)
	err = os.WriteFile(tmpdir+"/batch2.csv", []byte(",ENSG01,ENSG02\nSSC003.bed,2,0\nSSC004.bed,1,1\nSSC005.bed,0,0\n"), 0644)
	c.Assert(err, check.IsNil)
	err = os.WriteFile(tmpdir+"/readme.txt", []byte("not a table\n"), 0644)
	c.Assert(err, check.IsNil)

	var stdout bytes.Buffer
	exited := (&importer{}).RunCommand("import", []string{"-input-dir", tmpdir, "-o", "-"}, &bytes.Buffer{}, &stdout, os.Stderr)
	c.Assert(exited, check.Equals, 0)

	matrix, err := ReadMatrix(&stdout, false)
	c.Assert(err, check.IsNil)
	c.Check(matrix.ColumnNames, check.DeepEquals, []string{"ENSG01", "ENSG02"})
	c.Check(matrix.Rows, check.HasLen, 5)
	c.Check(matrix.Rows[0].Name, check.Equals, "SSC001")
	c.Check(matrix.Rows[4].Name, check.Equals, "SSC005")
}

func (s *importSuite) TestImportColumnMismatch(c *check.C) {
	tmpdir := c.MkDir()
	err := os.WriteFile(tmpdir+"/batch1.csv", []byte(",ENSG01\nSSC001.bed,0\n"), 0644)
	c.Assert(err, check.IsNil)
	err = os.WriteFile(tmpdir+"/batch2.csv", []byte(",ENSG02\nSSC002.bed,1\n"), 0644)
	c.Assert(err, check.IsNil)

	var stderr bytes.Buffer
	exited := (&importer{}).RunCommand("import", []string{"-input-dir", tmpdir}, &bytes.Buffer{}, &bytes.Buffer{}, &stderr)
	c.Check(exited, check.Equals, 1)
	c.Check(stderr.String(), check.Matches, `(?ms).*column 0 is "ENSG02", expected "ENSG01".*`)
}

func (s *importSuite) TestImportEmptyDir(c *check.C) {
	tmpdir := c.MkDir()
	var stderr bytes.Buffer
	exited := (&importer{}).RunCommand("import", []string{"-input-dir", tmpdir}, &bytes.Buffer{}, &bytes.Buffer{}, &stderr)
	c.Check(exited, check.Equals, 1)
	c.Check(stderr.String(), check.Matches, `(?ms)no input files found in .*`)
}
