// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package i386

import (
	"debug/elf"
	"encoding/binary"

	"github.com/chenyang8094/ld386/internal/ld"
)

// applyRelocAlloc patches the relocation sites of one allocatable
// section in the output buffer. Addresses are final; allocation has
// already assigned every slot the scanner requested. Runs with one
// goroutine per section; each section owns a disjoint slice of the
// output and a pre-reserved .rel.dyn range.
func applyRelocAlloc(ctx *ld.Context, isec *ld.InputSection) {
	if isec.Name() == ".eh_frame" {
		applyEhFrameRelocs(ctx, isec)
		return
	}

	b := isec.Out
	rels := isec.Sec.Relocs
	dynoff := isec.RelDynOff

	for i := 0; i < len(rels); i++ {
		r := &rels[i]
		if r.Type == elf.R_386_NONE {
			continue
		}
		sym := isec.Symbol(r)
		if sym.File == nil {
			// Diagnosed during scan; leave the bytes alone.
			continue
		}

		loc := b[r.Off:]
		S := sym.Addr(ctx)
		A := readAddend(loc, r.Type)
		P := isec.OutAddr + r.Off
		G := uint32(sym.GotIdx) * 4
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
			val := int64(S) + int64(A) - int64(P)
			ctx.CheckRange(isec, sym, r.Type, val, -(1 << 7), 1<<7)
			loc[0] = byte(val)
		case elf.R_386_PC16:
			val := int64(S) + int64(A) - int64(P)
			ctx.CheckRange(isec, sym, r.Type, val, -(1 << 15), 1<<15)
			binary.LittleEndian.PutUint16(loc, uint16(val))
		case elf.R_386_32:
			ld.ApplyDynAbsRel(ctx, isec, sym, loc, S, uint32(A), P, &dynoff)
		case elf.R_386_PC32, elf.R_386_PLT32:
			binary.LittleEndian.PutUint32(loc, S+uint32(A)-P)
		case elf.R_386_GOT32:
			binary.LittleEndian.PutUint32(loc, G+uint32(A))
		case elf.R_386_GOT32X:
			if sym.HasGot() {
				binary.LittleEndian.PutUint32(loc, G+uint32(A))
			} else {
				relaxGotLoad(b, r.Off)
				binary.LittleEndian.PutUint32(loc, S+uint32(A)-GOT)
			}
		case elf.R_386_GOTOFF:
			binary.LittleEndian.PutUint32(loc, S+uint32(A)-GOT)
		case elf.R_386_GOTPC:
			binary.LittleEndian.PutUint32(loc, GOT+uint32(A)-P)
		case elf.R_386_TLS_GOTIE:
			binary.LittleEndian.PutUint32(loc, sym.GotTpAddr(ctx)+uint32(A)-GOT)
		case elf.R_386_TLS_LE:
			binary.LittleEndian.PutUint32(loc, S+uint32(A)-ctx.TpAddr)
		case elf.R_386_TLS_IE:
			binary.LittleEndian.PutUint32(loc, sym.GotTpAddr(ctx)+uint32(A))
		case elf.R_386_TLS_GD:
			if sym.HasTLSGd() {
				binary.LittleEndian.PutUint32(loc, sym.TLSGdAddr(ctx)+uint32(A)-GOT)
			} else {
				relaxTLSGdToLE(b, r.Off, rels[i+1].Type, ctx.TpAddr-S-uint32(A))
				i++
			}
		case elf.R_386_TLS_LDM:
			if ctx.TLSLdIdx != -1 {
				binary.LittleEndian.PutUint32(loc, ctx.TLSLdAddr()+uint32(A)-GOT)
			} else {
				relaxTLSLdToLE(b, r.Off, rels[i+1].Type, ctx.TLSSize())
				i++
			}
		case elf.R_386_TLS_LDO_32:
			binary.LittleEndian.PutUint32(loc, S+uint32(A)-ctx.TLSBegin)
		case elf.R_386_SIZE32:
			binary.LittleEndian.PutUint32(loc, sym.Size+uint32(A))
		case elf.R_386_TLS_GOTDESC:
			if sym.HasTLSDesc() {
				binary.LittleEndian.PutUint32(loc, sym.TLSDescAddr(ctx)+uint32(A)-GOT)
			} else {
				relaxTLSDescToLE(b, r.Off)
				binary.LittleEndian.PutUint32(loc, S+uint32(A)-ctx.TpAddr)
			}
		case elf.R_386_TLS_DESC_CALL:
			if !sym.HasTLSDesc() {
				relaxTLSDescCall(b, r.Off)
			}
		default:
			ctx.Fatalf("%s: %s: unexpected relocation type %v after scan",
				isec.File.Name(), isec.Name(), r.Type)
		}
	}
}

// applyEhFrameRelocs patches .eh_frame, which admits only the
// relocation types its unwinder-facing encodings can express.
func applyEhFrameRelocs(ctx *ld.Context, isec *ld.InputSection) {
	b := isec.Out
	for i := range isec.Sec.Relocs {
		r := &isec.Sec.Relocs[i]
		sym := isec.Symbol(r)
		if sym.File == nil {
			continue
		}
		loc := b[r.Off:]
		switch r.Type {
		case elf.R_386_NONE:
		case elf.R_386_32:
			binary.LittleEndian.PutUint32(loc, sym.Addr(ctx)+uint32(readAddend(loc, r.Type)))
		case elf.R_386_PC32:
			P := isec.OutAddr + r.Off
			binary.LittleEndian.PutUint32(loc, sym.Addr(ctx)+uint32(readAddend(loc, r.Type))-P)
		default:
			ctx.Fatalf("%s: unsupported relocation type %v in .eh_frame",
				isec.File.Name(), r.Type)
		}
	}
}
