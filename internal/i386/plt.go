// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package i386

import (
	"encoding/binary"

	"github.com/chenyang8094/ld386/internal/ld"
)

// The PLT comes in two flavors. Position-independent code enters the
// PLT with %ebx pointing at .got, so entries address their .got.plt
// slot relative to %ebx; position-dependent code uses absolute
// addresses. Dynamic linkers parse these stubs, so the byte sequences
// are fixed.

// writePltHeader writes the first PLT entry, which pushes the
// resolver's bookkeeping slot and tail-jumps into the dynamic linker
// through .got.plt[2].
func writePltHeader(ctx *ld.Context, buf []byte) {
	if ctx.Pic {
		insn := []byte{
			0xf3, 0x0f, 0x1e, 0xfb, // endbr32
			0x51,                   // push %ecx
			0x8d, 0x8b, 0, 0, 0, 0, // lea GOTPLT+4(%ebx), %ecx
			0xff, 0x31, // push (%ecx)
			0xff, 0x61, 0x04, // jmp *4(%ecx)
		}
		copy(buf, insn)
		binary.LittleEndian.PutUint32(buf[7:], ctx.GotPltAddr-ctx.GotAddr+4)
		return
	}
	insn := []byte{
		0xf3, 0x0f, 0x1e, 0xfb, // endbr32
		0x51,          // push %ecx
		0xb9, 0, 0, 0, 0, // mov $GOTPLT+4, %ecx
		0xff, 0x31, // push (%ecx)
		0xff, 0x61, 0x04, // jmp *4(%ecx)
		0xcc, // (padding)
	}
	copy(buf, insn)
	binary.LittleEndian.PutUint32(buf[6:], ctx.GotPltAddr+4)
}

// writePltEntry writes one lazy PLT entry. The mov immediate is the
// byte offset of the symbol's JUMP_SLOT relocation in .rel.plt, which
// the resolver stub in the header pushes for the dynamic linker.
func writePltEntry(ctx *ld.Context, buf []byte, sym *ld.Symbol) {
	relOff := uint32(sym.PltIdx) * uint32(ctx.Arch.RelSize)
	if ctx.Pic {
		insn := []byte{
			0xf3, 0x0f, 0x1e, 0xfb, // endbr32
			0xb9, 0, 0, 0, 0, // mov $reloc_offset, %ecx
			0xff, 0xa3, 0, 0, 0, 0, // jmp *foo@GOT(%ebx)
			0xcc, // (padding)
		}
		copy(buf, insn)
		binary.LittleEndian.PutUint32(buf[5:], relOff)
		binary.LittleEndian.PutUint32(buf[11:], sym.GotPltAddr(ctx)-ctx.GotAddr)
		return
	}
	insn := []byte{
		0xf3, 0x0f, 0x1e, 0xfb, // endbr32
		0xb9, 0, 0, 0, 0, // mov $reloc_offset, %ecx
		0xff, 0x25, 0, 0, 0, 0, // jmp *foo@GOT
		0xcc, // (padding)
	}
	copy(buf, insn)
	binary.LittleEndian.PutUint32(buf[5:], relOff)
	binary.LittleEndian.PutUint32(buf[11:], sym.GotPltAddr(ctx))
}

// writePltGotEntry writes a non-lazy trampoline for a symbol that has
// a GOT slot but no .rel.plt relocation.
func writePltGotEntry(ctx *ld.Context, buf []byte, sym *ld.Symbol) {
	if ctx.Pic {
		insn := []byte{
			0xf3, 0x0f, 0x1e, 0xfb, // endbr32
			0xff, 0xa3, 0, 0, 0, 0, // jmp *foo@GOT(%ebx)
			0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc, // (padding)
		}
		copy(buf, insn)
		binary.LittleEndian.PutUint32(buf[6:], sym.GotAddr(ctx)-ctx.GotAddr)
		return
	}
	insn := []byte{
		0xf3, 0x0f, 0x1e, 0xfb, // endbr32
		0xff, 0x25, 0, 0, 0, 0, // jmp *foo@GOT
		0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc, // (padding)
	}
	copy(buf, insn)
	binary.LittleEndian.PutUint32(buf[6:], sym.GotAddr(ctx))
}
