// Copyright (C) The Embmatrix Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"github.com/famgenomics/embmatrix"
)

func main() {
	embmatrix.Main()
}
