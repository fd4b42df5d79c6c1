// Copyright (C) The Embmatrix Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package embmatrix

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// sampleMap is the pedigree/role metadata table. All cells are kept
// as strings; a Role column (the second dot-delimited segment of the
// compound identifier, e.g. "fa", "mo", "p1", "s1") is appended on
// load.
type sampleMap struct {
	ColumnNames []string
	Rows        [][]string
	keyCol      int // repository identifier, the join key
	roleCol     int // derived Role column
}

func (sm *sampleMap) Role(row int) string {
	return sm.Rows[row][sm.roleCol]
}

func (sm *sampleMap) Key(row int) string {
	return sm.Rows[row][sm.keyCol]
}

// isProband reports whether a role code denotes a proband ("p1",
// "p2", ...). Probands get ASD label 1, everyone else 0.
func isProband(role string) bool {
	return len(role) > 0 && role[0] == 'p'
}

// loadSampleMap reads the identifier-map table, derives the Role
// column from compoundCol, and records keyCol as the join key.
func loadSampleMap(fnm, compoundCol, keyCol string) (*sampleMap, error) {
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
	var ret *sampleMap
	compoundIdx := -1
	lineNum := 0
	for _, line := range bytes.Split(buf, []byte{'\n'}) {
		lineNum++
		if len(line) == 0 {
			continue
		}
		split := strings.Split(strings.TrimSuffix(string(line), "\r"), delim)
		if ret == nil {
			// header row
			ret = &sampleMap{
				ColumnNames: append(split, "Role"),
				keyCol:      -1,
				roleCol:     len(split),
			}
			for col, name := range split {
				if name == compoundCol {
					compoundIdx = col
				}
				if name == keyCol {
					ret.keyCol = col
				}
			}
			if compoundIdx < 0 {
				return nil, fmt.Errorf("%s: no column named %q in header row %q", fnm, compoundCol, line)
			}
			if ret.keyCol < 0 {
				return nil, fmt.Errorf("%s: no column named %q in header row %q", fnm, keyCol, line)
			}
			continue
		}
		if len(split) != len(ret.ColumnNames)-1 {
			return nil, fmt.Errorf("%s line %d: %d fields, expected %d", fnm, lineNum, len(split), len(ret.ColumnNames)-1)
		}
		segments := strings.Split(split[compoundIdx], ".")
		if len(segments) < 2 {
			return nil, fmt.Errorf("%s line %d: identifier %q has no dot-delimited role segment", fnm, lineNum, split[compoundIdx])
		}
		ret.Rows = append(ret.Rows, append(split, segments[1]))
	}
	if ret == nil {
		return nil, fmt.Errorf("%s: no header row found", fnm)
	}
	return ret, nil
}
