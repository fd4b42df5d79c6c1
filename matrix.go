// Copyright (C) The Embmatrix Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package embmatrix

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/klauspost/pgzip"
)

// SampleRow holds one sample's feature indicators, in the same order
// as the matrix column names.
type SampleRow struct {
	Name   string
	Values []int16
}

// MatrixEntry is the gob-encoded unit written by `import` and
// `filter` and read back by downstream commands. A stream of entries
// concatenates into one matrix; ColumnNames may be empty on entries
// after the first.
type MatrixEntry struct {
	ColumnNames []string
	Rows        []SampleRow
}

// Matrix is a feature table: rows are samples, columns are features,
// cells are small integer indicators (0, 1, or 2 in practice).
type Matrix struct {
	ColumnNames []string
	Rows        []SampleRow
}

func (m *Matrix) Entry() MatrixEntry {
	return MatrixEntry{ColumnNames: m.ColumnNames, Rows: m.Rows}
}

// DecodeMatrix decodes a stream of MatrixEntry from rdr (gunzipping
// first if gz is true) and passes each entry to cb.
func DecodeMatrix(rdr io.Reader, gz bool, cb func(*MatrixEntry) error) error {
	if gz {
		gzrdr, err := pgzip.NewReader(bufio.NewReaderSize(rdr, 1<<20))
		if err != nil {
			return err
		}
		defer gzrdr.Close()
		rdr = gzrdr
	}
	dec := gob.NewDecoder(bufio.NewReader(rdr))
	for {
		var ent MatrixEntry
		err := dec.Decode(&ent)
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		err = cb(&ent)
		if err != nil {
			return err
		}
	}
}

// ReadMatrix reads an entire MatrixEntry stream into one Matrix.
func ReadMatrix(rdr io.Reader, gz bool) (*Matrix, error) {
	var ret *Matrix
	err := DecodeMatrix(rdr, gz, func(ent *MatrixEntry) error {
		if ret == nil {
			ret = &Matrix{ColumnNames: ent.ColumnNames}
		} else if len(ent.ColumnNames) > 0 && len(ret.ColumnNames) > 0 && len(ent.ColumnNames) != len(ret.ColumnNames) {
			return fmt.Errorf("entry has %d column names, expected %d", len(ent.ColumnNames), len(ret.ColumnNames))
		}
		for _, row := range ent.Rows {
			if len(row.Values) != len(ret.ColumnNames) {
				return fmt.Errorf("sample %q has %d values, expected %d", row.Name, len(row.Values), len(ret.ColumnNames))
			}
		}
		ret.Rows = append(ret.Rows, ent.Rows...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, fmt.Errorf("no matrix entries found in input")
	}
	return ret, nil
}

// keepColumns returns a new matrix containing the columns at the
// given indexes, in the given order. Row names are shared, value
// slices are copied.
func (m *Matrix) keepColumns(keep []int) *Matrix {
	out := &Matrix{ColumnNames: make([]string, len(keep)), Rows: make([]SampleRow, len(m.Rows))}
	for i, col := range keep {
		out.ColumnNames[i] = m.ColumnNames[col]
	}
	for i, row := range m.Rows {
		values := make([]int16, len(keep))
		for j, col := range keep {
			values[j] = row.Values[col]
		}
		out.Rows[i] = SampleRow{Name: row.Name, Values: values}
	}
	return out
}
