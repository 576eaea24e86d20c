// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// writeTestObj emits a minimal ELF32 REL object: one .text section
// with one relocation of type relType against a global function "foo".
func writeTestObj(t *testing.T, relType elf.R_386) string {
	t.Helper()
	le := binary.LittleEndian

	text := []byte{0x90, 0x90, 0xfc, 0xff, 0xff, 0xff, 0x90, 0x90}

	var rel [8]byte
	le.PutUint32(rel[0:], 2)                        // r_offset
	le.PutUint32(rel[4:], 1<<8|uint32(relType)&0xff) // sym 1

	symtab := make([]byte, 32)
	le.PutUint32(symtab[16:], 1) // st_name "foo"
	le.PutUint32(symtab[24:], 4) // st_size
	symtab[28] = byte(elf.STB_GLOBAL)<<4 | byte(elf.STT_FUNC)
	le.PutUint16(symtab[30:], 1) // st_shndx .text

	strtab := []byte("\x00foo\x00")
	shstrtab := []byte("\x00.text\x00.rel.text\x00.symtab\x00.strtab\x00.shstrtab\x00")

	// File layout: ehdr, section bodies, section headers.
	bodies := [][]byte{text, rel[:], symtab, strtab, shstrtab}
	offs := make([]uint32, len(bodies))
	off := uint32(52)
	for i, b := range bodies {
		off = (off + 3) &^ 3
		offs[i] = off
		off += uint32(len(b))
	}
	shoff := (off + 3) &^ 3

	type shdr struct {
		name, typ, flags, addr, off, size, link, info, align, entsize uint32
	}
	shdrs := []shdr{
		{},
		{1, uint32(elf.SHT_PROGBITS), uint32(elf.SHF_ALLOC | elf.SHF_EXECINSTR), 0, offs[0], uint32(len(text)), 0, 0, 16, 0},
		{7, uint32(elf.SHT_REL), 0, 0, offs[1], 8, 3, 1, 4, 8},
		{17, uint32(elf.SHT_SYMTAB), 0, 0, offs[2], 32, 4, 1, 4, 16},
		{25, uint32(elf.SHT_STRTAB), 0, 0, offs[3], uint32(len(strtab)), 0, 0, 1, 0},
		{33, uint32(elf.SHT_STRTAB), 0, 0, offs[4], uint32(len(shstrtab)), 0, 0, 1, 0},
	}

	buf := make([]byte, shoff+uint32(len(shdrs))*40)
	copy(buf, []byte{0x7f, 'E', 'L', 'F',
		byte(elf.ELFCLASS32), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT)})
	le.PutUint16(buf[16:], uint16(elf.ET_REL))
	le.PutUint16(buf[18:], uint16(elf.EM_386))
	le.PutUint32(buf[20:], 1)
	le.PutUint32(buf[32:], shoff)
	le.PutUint16(buf[40:], 52)
	le.PutUint16(buf[46:], 40)
	le.PutUint16(buf[48:], uint16(len(shdrs)))
	le.PutUint16(buf[50:], 5)
	for i, b := range bodies {
		copy(buf[offs[i]:], b)
	}
	for i, h := range shdrs {
		b := buf[shoff+uint32(i)*40:]
		le.PutUint32(b[0:], h.name)
		le.PutUint32(b[4:], h.typ)
		le.PutUint32(b[8:], h.flags)
		le.PutUint32(b[12:], h.addr)
		le.PutUint32(b[16:], h.off)
		le.PutUint32(b[20:], h.size)
		le.PutUint32(b[24:], h.link)
		le.PutUint32(b[28:], h.info)
		le.PutUint32(b[32:], h.align)
		le.PutUint32(b[36:], h.entsize)
	}

	path := filepath.Join(t.TempDir(), "test.o")
	if err := os.WriteFile(path, buf, 0o666); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpen(t *testing.T) {
	f, err := Open(writeTestObj(t, elf.R_386_PC32))
	if err != nil {
		t.Fatal(err)
	}

	if len(f.Syms) != 2 {
		t.Fatalf("got %d symbols, want 2 (incl. null)", len(f.Syms))
	}
	foo := &f.Syms[1]
	if foo.Name != "foo" || !foo.Defined() || foo.Type != elf.STT_FUNC || foo.Size != 4 {
		t.Errorf("symbol 1 = %+v", foo)
	}

	var text *Section
	for _, sec := range f.Sections {
		if sec != nil && sec.Name == ".text" {
			text = sec
		}
	}
	if text == nil {
		t.Fatal("no .text section")
	}
	if !text.Alloc() || text.Size != 8 {
		t.Errorf(".text = %+v", text)
	}
	if len(text.Relocs) != 1 {
		t.Fatalf("got %d relocations, want 1", len(text.Relocs))
	}
	r := text.Relocs[0]
	if r.Off != 2 || r.Type != elf.R_386_PC32 || r.Sym != 1 {
		t.Errorf("relocation = %+v", r)
	}
	// The implicit addend is readable in place.
	if got := int32(binary.LittleEndian.Uint32(text.Content[r.Off:])); got != -4 {
		t.Errorf("in-place addend = %d, want -4", got)
	}
}

func TestOpenRejectsUnknownReloc(t *testing.T) {
	// R_386_COPY never appears in relocatable objects.
	if _, err := Open(writeTestObj(t, elf.R_386_COPY)); err == nil {
		t.Error("object with an output-only relocation type loaded")
	}
}

func TestRelocWidths(t *testing.T) {
	if w := RelocWidth(elf.R_386_PC8); w != 1 {
		t.Errorf("PC8 width = %d", w)
	}
	if w := RelocWidth(elf.R_386_16); w != 2 {
		t.Errorf("_16 width = %d", w)
	}
	if w := RelocWidth(elf.R_386_TLS_GD); w != 4 {
		t.Errorf("TLS_GD width = %d", w)
	}
	if !RelocPCRel(elf.R_386_GOTPC) || RelocPCRel(elf.R_386_GOT32) {
		t.Error("PC-relative classification wrong")
	}
}
