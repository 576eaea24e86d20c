// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package i386

import (
	"bytes"
	"debug/elf"
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

func TestGotLoadPredicate(t *testing.T) {
	// mov 0x0(%ebx), %eax with the immediate field at offset 2.
	code := []byte{0x8b, 0x83, 0, 0, 0, 0}
	if !isGotLoad(code, 2) {
		t.Error("mov not recognized as relaxable")
	}
	// The predicate is exactly loc[-2] == 0x8b.
	code[0] = 0x03 // add
	if isGotLoad(code, 2) {
		t.Error("add recognized as relaxable")
	}
	if isGotLoad(code, 1) {
		t.Error("out-of-window offset recognized as relaxable")
	}
}

func TestRelaxGotLoad(t *testing.T) {
	code := []byte{0x8b, 0x83, 0x2c, 0, 0, 0}
	relaxGotLoad(code, 2)
	want := []byte{0x8d, 0x83, 0x2c, 0, 0, 0}
	if !bytes.Equal(code, want) {
		t.Errorf("relaxed bytes = %x, want %x", code, want)
	}
	inst, err := x86asm.Decode(code, 32)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if inst.Op != x86asm.LEA {
		t.Errorf("relaxed op = %v, want LEA", inst.Op)
	}
}

// General-dynamic to local-exec with a direct __tls_get_addr call:
// the 12-byte window starts three bytes before the relocated field.
func TestRelaxTLSGdToLEDirect(t *testing.T) {
	// lea x@tlsgd(,%ebx,1),%eax; call ___tls_get_addr@plt
	code := []byte{
		0x8d, 0x04, 0x1d, 0, 0, 0, 0, // lea (field at 3)
		0xe8, 0, 0, 0, 0, // call (field at 8)
	}
	relaxTLSGdToLE(code, 3, elf.R_386_PLT32, 0x1000-0x20)
	want := []byte{
		0x65, 0xa1, 0, 0, 0, 0, // mov %gs:0, %eax
		0x81, 0xe8, 0xe0, 0x0f, 0, 0, // sub $0xfe0, %eax
	}
	if !bytes.Equal(code, want) {
		t.Errorf("relaxed bytes = %x, want %x", code, want)
	}

	inst, err := x86asm.Decode(code, 32)
	if err != nil {
		t.Fatalf("decode mov: %v", err)
	}
	if inst.Op != x86asm.MOV || inst.Len != 6 {
		t.Errorf("first insn = %v len %d, want MOV len 6", inst.Op, inst.Len)
	}
	inst, err = x86asm.Decode(code[6:], 32)
	if err != nil {
		t.Fatalf("decode sub: %v", err)
	}
	if inst.Op != x86asm.SUB {
		t.Errorf("second insn = %v, want SUB", inst.Op)
	}
	if imm, ok := inst.Args[1].(x86asm.Imm); !ok || imm != 0xfe0 {
		t.Errorf("sub immediate = %v, want 0xfe0", inst.Args[1])
	}
}

// The GOT-indirect call shape starts the window one byte later and
// puts the immediate at field+6.
func TestRelaxTLSGdToLEIndirect(t *testing.T) {
	code := []byte{
		0x8d, 0x83, 0, 0, 0, 0, // lea x@tlsgd(%ebx),%eax (field at 2)
		0xff, 0x93, 0, 0, 0, 0, // call *f@GOT(%ebx)
	}
	relaxTLSGdToLE(code, 2, elf.R_386_GOT32X, 0x20)
	want := []byte{
		0x65, 0xa1, 0, 0, 0, 0,
		0x81, 0xe8, 0x20, 0, 0, 0,
	}
	if !bytes.Equal(code, want) {
		t.Errorf("relaxed bytes = %x, want %x", code, want)
	}
}

func TestRelaxTLSLdToLE(t *testing.T) {
	direct := []byte{
		0x8d, 0x83, 0, 0, 0, 0, // lea x@tlsldm(%ebx),%eax (field at 2)
		0xe8, 0, 0, 0, 0, // call
	}
	relaxTLSLdToLE(direct, 2, elf.R_386_PLT32, 0x40)
	want := []byte{
		0x31, 0xc0, // xor %eax,%eax
		0x65, 0x8b, 0x00, // mov %gs:(%eax),%eax
		0x81, 0xe8, 0x40, 0, 0, 0, // sub $0x40,%eax
	}
	if !bytes.Equal(direct, want) {
		t.Errorf("direct: relaxed bytes = %x, want %x", direct, want)
	}

	indirect := make([]byte, 12)
	copy(indirect, []byte{0x8d, 0x83})
	relaxTLSLdToLE(indirect, 2, elf.R_386_GOT32, 0x40)
	if indirect[11] != 0x90 {
		t.Errorf("indirect: missing trailing nop: % x", indirect)
	}
}

func TestRelaxTLSDesc(t *testing.T) {
	code := []byte{0x8d, 0x83, 0, 0, 0, 0} // lea x@tlsdesc(%ebx),%eax
	relaxTLSDescToLE(code, 2)
	if code[0] != 0x8d || code[1] != 0x05 {
		t.Errorf("relaxed opcode = % x, want 8d 05", code[:2])
	}

	call := []byte{0xff, 0x10} // call *(%eax)
	relaxTLSDescCall(call, 0)
	if call[0] != 0x66 || call[1] != 0x90 {
		t.Errorf("relaxed call = % x, want 66 90", call)
	}
	inst, err := x86asm.Decode(call, 32)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if inst.Op != x86asm.NOP || inst.Len != 2 {
		t.Errorf("relaxed call decodes as %v len %d, want 2-byte NOP", inst.Op, inst.Len)
	}
}
