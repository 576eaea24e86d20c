// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package ld

import (
	"os"

	"golang.org/x/sys/unix"
)

// WriteImage writes the finished image to path through a shared
// mapping, the way the apply phase expects its output buffer to
// behave: plain stores, no write syscall per section.
func WriteImage(path string, image []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	defer f.Close()

	if len(image) == 0 {
		return nil
	}
	if err := f.Truncate(int64(len(image))); err != nil {
		return err
	}
	m, err := unix.Mmap(int(f.Fd()), 0, len(image), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		// Some filesystems refuse shared mappings; fall back
		// to a plain write.
		_, werr := f.WriteAt(image, 0)
		return werr
	}
	copy(m, image)
	if err := unix.Msync(m, unix.MS_SYNC); err != nil {
		unix.Munmap(m)
		return err
	}
	return unix.Munmap(m)
}
