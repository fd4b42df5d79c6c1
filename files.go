// Copyright (C) The Embmatrix Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package embmatrix

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/klauspost/pgzip"
)

var tableFilenameRe = regexp.MustCompile(`\.(csv|tsv)(\.gz)?$`)

// listTableFiles returns the sorted paths of all delimited table
// files (.csv/.tsv, optionally gzipped) in dir.
func listTableFiles(dir string) ([]string, error) {
	d, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	names, err := d.Readdirnames(0)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	var files []string
	for _, name := range names {
		if tableFilenameRe.MatchString(name) {
			files = append(files, dir+"/"+name)
		}
	}
	return files, nil
}

// tableDelim returns the field delimiter implied by a table
// filename: tab for .tsv (optionally gzipped), comma otherwise.
func tableDelim(fnm string) string {
	if strings.HasSuffix(strings.TrimSuffix(fnm, ".gz"), ".tsv") {
		return "\t"
	}
	return ","
}

// zopen returns a reader for the given file, transparently
// decompressing the input if fnm ends with ".gz".
func zopen(fnm string) (io.ReadCloser, error) {
	f, err := os.Open(fnm)
	if err != nil || !strings.HasSuffix(fnm, ".gz") {
		return f, err
	}
	rdr, err := pgzip.NewReader(bufio.NewReaderSize(f, 1<<20))
	if err != nil {
		f.Close()
		return nil, err
	}
	return gzipr{rdr, f}, nil
}

// gzipr wraps a ReadCloser and a Closer, presenting a single Close()
// method that closes both wrapped objects.
type gzipr struct {
	io.ReadCloser
	io.Closer
}

func (gr gzipr) Close() error {
	e1 := gr.ReadCloser.Close()
	e2 := gr.Closer.Close()
	if e1 != nil {
		return e1
	}
	return e2
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
