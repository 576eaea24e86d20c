// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package i386

import (
	"debug/elf"
	"encoding/binary"

	"github.com/chenyang8094/ld386/internal/ld"
)

// Relaxations rewrite the instruction stream in place. Every window
// starts before the relocation site, because the opcode bytes precede
// the immediate field the relocation targets. Each emitted sequence
// is exactly as long as the code it replaces.

// isGotLoad reports whether the two bytes before the relocated field
// at b[off] encode `mov imm(%reg1), %reg2`. Only that shape may be
// rewritten to a lea; any other prefix keeps its GOT slot.
func isGotLoad(b []byte, off uint32) bool {
	return off >= 2 && b[off-2] == 0x8b
}

// relaxGotLoad rewrites `mov foo@GOT(%reg1), %reg2` to
// `lea foo@GOTOFF(%reg1), %reg2`. Only the opcode changes; the modrm
// byte keeps the same registers.
func relaxGotLoad(b []byte, off uint32) {
	b[off-2] = 0x8d
}

// pairedTLSFollower reports whether typ may trail a TLS_GD or TLS_LDM
// relocation as the call's own relocation.
func pairedTLSFollower(typ elf.R_386) bool {
	switch typ {
	case elf.R_386_PLT32, elf.R_386_PC32, elf.R_386_GOT32, elf.R_386_GOT32X:
		return true
	}
	return false
}

// followerIsIndirect distinguishes the two code shapes the compiler
// emits for __tls_get_addr: a direct call (PLT32/PC32 follower) and a
// GOT-indirect call (GOT32/GOT32X follower). The shapes place the
// leading lea differently, so the rewrite windows differ.
func followerIsIndirect(typ elf.R_386) bool {
	return typ == elf.R_386_GOT32 || typ == elf.R_386_GOT32X
}

// relaxTLSGdToLE rewrites a general-dynamic `lea x@tlsgd(,%ebx,1),%eax;
// call ___tls_get_addr@plt` pair into local-exec
// `mov %gs:0, %eax; sub $(tp-x), %eax`. val is tp_addr - S - A.
func relaxTLSGdToLE(b []byte, off uint32, follower elf.R_386, val uint32) {
	insn := []byte{
		0x65, 0xa1, 0, 0, 0, 0, // mov %gs:0, %eax
		0x81, 0xe8, 0, 0, 0, 0, // sub $val, %eax
	}
	start := off - 3
	if followerIsIndirect(follower) {
		start = off - 2
	}
	copy(b[start:], insn)
	binary.LittleEndian.PutUint32(b[start+8:], val)
}

// relaxTLSLdToLE rewrites a local-dynamic `lea x@tlsldm(%ebx),%eax;
// call ___tls_get_addr@plt` pair into local-exec
// `xor %eax,%eax; mov %gs:(%eax),%eax; sub $tls_size,%eax`. val is
// tp_addr - tls_begin. The GOT-indirect shape is one byte longer and
// takes a trailing nop.
func relaxTLSLdToLE(b []byte, off uint32, follower elf.R_386, val uint32) {
	insn := []byte{
		0x31, 0xc0, // xor %eax, %eax
		0x65, 0x8b, 0x00, // mov %gs:(%eax), %eax
		0x81, 0xe8, 0, 0, 0, 0, // sub $val, %eax
	}
	start := off - 2
	copy(b[start:], insn)
	binary.LittleEndian.PutUint32(b[start+7:], val)
	if followerIsIndirect(follower) {
		b[start+11] = 0x90
	}
}

// relaxTLSDescToLE rewrites `lea x@tlsdesc(%ebx), %eax` to
// `lea x@ntpoff, %eax`. The caller writes the displacement at b[off].
func relaxTLSDescToLE(b []byte, off uint32) {
	b[off-2] = 0x8d
	b[off-1] = 0x05
}

// relaxTLSDescCall replaces the two-byte `call *(%eax)` of a relaxed
// descriptor sequence with a two-byte nop.
func relaxTLSDescCall(b []byte, off uint32) {
	b[off] = 0x66
	b[off+1] = 0x90
}

// Relaxation policies. Downgrading a TLS model to local-exec is only
// sound when the output is position-dependent and the symbol resolves
// locally.

func canRelaxTLSGd(ctx *ld.Context, sym *ld.Symbol) bool {
	return ctx.Relax && !ctx.Pic && !sym.Imported
}

func canRelaxTLSLd(ctx *ld.Context) bool {
	return ctx.Relax && !ctx.Pic
}

func canRelaxTLSDesc(ctx *ld.Context, sym *ld.Symbol) bool {
	return ctx.Relax && !ctx.Pic && !sym.Imported
}
