// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package i386

import (
	"debug/elf"
	"encoding/binary"

	"github.com/chenyang8094/ld386/internal/ld"
)

// applyRelocNonAlloc patches debug and other non-loaded sections.
// Their consumers read the fields as plain addresses, so PC-relative
// types store S+A with no PC delta, and references into discarded
// COMDAT groups are tombstoned rather than left pointing at reused
// address space. These sections are never scanned, so GOT-slot and
// TLS-model relocations cannot appear here; PLT32 is resolved like
// PC32 (S+A), and TLS_LDO_32 as an offset from the TLS block start.
func applyRelocNonAlloc(ctx *ld.Context, isec *ld.InputSection) {
	b := isec.Out
	rels := isec.Sec.Relocs

	for i := range rels {
		r := &rels[i]
		if r.Type == elf.R_386_NONE {
			continue
		}
		sym := isec.Symbol(r)
		if sym.File == nil {
			if !sym.Weak {
				ctx.ReportUndefined(sym, isec)
			}
			continue
		}

		loc := b[r.Off:]
		S := sym.Addr(ctx)
		A := readAddend(loc, r.Type)
		GOT := ctx.GotAddr

		switch r.Type {
		case elf.R_386_8:
			val := int64(S) + int64(A)
			ctx.CheckRange(isec, sym, r.Type, val, 0, 1<<8)
			loc[0] = byte(val)
		case elf.R_386_16:
			val := int64(S) + int64(A)
			ctx.CheckRange(isec, sym, r.Type, val, 0, 1<<16)
			binary.LittleEndian.PutUint16(loc, uint16(val))
		case elf.R_386_PC8:
			val := int64(S) + int64(A)
			ctx.CheckRange(isec, sym, r.Type, val, -(1 << 7), 1<<7)
			loc[0] = byte(val)
		case elf.R_386_PC16:
			val := int64(S) + int64(A)
			ctx.CheckRange(isec, sym, r.Type, val, -(1 << 15), 1<<15)
			binary.LittleEndian.PutUint16(loc, uint16(val))
		case elf.R_386_32:
			if tomb, ok := isec.Tombstone(sym); ok {
				binary.LittleEndian.PutUint32(loc, tomb)
			} else {
				binary.LittleEndian.PutUint32(loc, S+uint32(A))
			}
		case elf.R_386_PC32, elf.R_386_PLT32:
			binary.LittleEndian.PutUint32(loc, S+uint32(A))
		case elf.R_386_GOTOFF:
			binary.LittleEndian.PutUint32(loc, S+uint32(A)-GOT)
		case elf.R_386_GOTPC:
			P := isec.OutAddr + r.Off
			binary.LittleEndian.PutUint32(loc, GOT+uint32(A)-P)
		case elf.R_386_SIZE32:
			binary.LittleEndian.PutUint32(loc, sym.Size+uint32(A))
		case elf.R_386_TLS_LDO_32:
			if tomb, ok := isec.Tombstone(sym); ok {
				binary.LittleEndian.PutUint32(loc, tomb)
			} else {
				binary.LittleEndian.PutUint32(loc, S+uint32(A)-ctx.TLSBegin)
			}
		default:
			ctx.Fatalf("%s: %s: relocation type %v is not allowed in a non-allocatable section",
				isec.File.Name(), isec.Name(), r.Type)
		}
	}
}
