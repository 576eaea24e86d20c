// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package i386

import (
	"debug/elf"

	"github.com/chenyang8094/ld386/internal/ld"
	"github.com/chenyang8094/ld386/internal/obj"
)

// scanRelocs walks one allocatable section's relocations and records,
// per referenced symbol, which link-time resources it needs. It runs
// with one goroutine per section; the only shared writes are atomic
// bit-unions on symbol flag words and the context's TLS-LD bit, plus
// the per-section dynamic-relocation count.
//
// Ordering within the section matters: TLS_GD and TLS_LDM inspect
// their paired follower relocation and, when relaxed away, consume it.
func scanRelocs(ctx *ld.Context, isec *ld.InputSection) {
	rels := isec.Sec.Relocs
	for i := 0; i < len(rels); i++ {
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
		if sym.IFunc {
			// Indirect functions always route through
			// GOT+PLT: their address is the resolver's
			// answer, not the symbol's.
			sym.SetFlags(ld.NeedsGot | ld.NeedsPlt)
		}

		switch r.Type {
		case elf.R_386_8, elf.R_386_16:
			ld.ScanAbsRel(ctx, isec, sym, r.Type)
		case elf.R_386_32:
			ld.ScanDynAbsRel(ctx, isec, sym, r.Type)
		case elf.R_386_PC8, elf.R_386_PC16, elf.R_386_PC32:
			ld.ScanPCRel(ctx, isec, sym, r.Type)
		case elf.R_386_GOT32, elf.R_386_GOTPC:
			sym.SetFlags(ld.NeedsGot)
		case elf.R_386_GOT32X:
			// A register-load through the GOT of a locally
			// resolving symbol can become a lea and skip
			// the GOT slot entirely.
			if !(ctx.Relax && !sym.Imported && sym.IsRelative() &&
				isGotLoad(isec.Sec.Content, r.Off)) {
				sym.SetFlags(ld.NeedsGot)
			}
		case elf.R_386_PLT32:
			if sym.Imported {
				sym.SetFlags(ld.NeedsPlt)
			}
		case elf.R_386_TLS_LE, elf.R_386_TLS_IE, elf.R_386_TLS_GOTIE:
			sym.SetFlags(ld.NeedsGotTp)
		case elf.R_386_TLS_GD:
			checkTLSPair(ctx, isec, rels, i)
			if canRelaxTLSGd(ctx, sym) {
				i++
			} else {
				sym.SetFlags(ld.NeedsTLSGd)
			}
		case elf.R_386_TLS_LDM:
			checkTLSPair(ctx, isec, rels, i)
			if canRelaxTLSLd(ctx) {
				i++
			} else {
				ctx.SetNeedsTLSLD()
			}
		case elf.R_386_TLS_GOTDESC:
			if !canRelaxTLSDesc(ctx, sym) {
				sym.SetFlags(ld.NeedsTLSDesc)
			}
		case elf.R_386_GOTOFF, elf.R_386_TLS_LDO_32, elf.R_386_SIZE32,
			elf.R_386_TLS_DESC_CALL:
			// Resolved purely against addresses known at
			// link time; nothing to request.
		default:
			ctx.Fatalf("%s: %s: unknown relocation type %v",
				isec.File.Name(), isec.Name(), r.Type)
		}
	}
}

// checkTLSPair verifies that a TLS_GD or TLS_LDM relocation has its
// mandatory follower, the relocation of the __tls_get_addr call.
func checkTLSPair(ctx *ld.Context, isec *ld.InputSection, rels []obj.Reloc, i int) {
	if i+1 >= len(rels) || !pairedTLSFollower(rels[i+1].Type) {
		ctx.Fatalf("%s: %s: %v must be followed by PLT32, PC32, GOT32 or GOT32X",
			isec.File.Name(), isec.Name(), rels[i].Type)
	}
}
