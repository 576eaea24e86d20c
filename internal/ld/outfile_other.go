// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package ld

import "os"

// WriteImage writes the finished image to path.
func WriteImage(path string, image []byte) error {
	return os.WriteFile(path, image, 0o755)
}
