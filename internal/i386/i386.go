// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package i386 is the i386 back-end of the linker. It materializes
// the final bytes of the output: it scans input relocations to decide
// which symbols need GOT, PLT or TLS slots, writes the PLT, patches
// relocation sites, and rewrites GOT-indirect and TLS instruction
// sequences in place where the stronger form is not needed.
package i386

import (
	"github.com/chenyang8094/ld386/internal/arch"
	"github.com/chenyang8094/ld386/internal/ld"
)

// Backend returns the i386 hooks for the machine-independent linker.
func Backend() *ld.Backend {
	return &ld.Backend{
		Arch:               arch.I386,
		ScanRelocs:         scanRelocs,
		ApplyRelocAlloc:    applyRelocAlloc,
		ApplyRelocNonAlloc: applyRelocNonAlloc,
		WritePltHeader:     writePltHeader,
		WritePltEntry:      writePltEntry,
		WritePltGotEntry:   writePltGotEntry,
	}
}
