// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ld

import (
	"debug/elf"
	"encoding/binary"
)

// Program header slots: two PT_LOADs, an optional PT_TLS, and
// PT_GNU_STACK. Unused slots are written as PT_NULL so the count can
// be fixed before layout runs.
const phdrCount = 4

// writeElf fills in the ELF header and program headers at the front
// of the image and appends the section header table with a minimal
// .symtab/.strtab/.shstrtab. Returns the complete file image.
func (p *Program) writeElf(buf []byte) []byte {
	ctx := p.Ctx
	l := &p.layout
	le := binary.LittleEndian

	// Program headers.
	ph := buf[ehdrSize:]
	phoff := 0
	phdr := func(typ elf.ProgType, flags elf.ProgFlag, off, vaddr, filesz, memsz, align uint32) {
		b := ph[phoff:]
		le.PutUint32(b[0:], uint32(typ))
		le.PutUint32(b[4:], off)
		le.PutUint32(b[8:], vaddr)
		le.PutUint32(b[12:], vaddr)
		le.PutUint32(b[16:], filesz)
		le.PutUint32(b[20:], memsz)
		le.PutUint32(b[24:], uint32(flags))
		le.PutUint32(b[28:], align)
		phoff += phdrSize
	}
	page := uint32(ctx.Arch.PageSize)
	phdr(elf.PT_LOAD, elf.PF_R|elf.PF_X, 0, l.textAddr, l.textSize, l.textSize, page)
	phdr(elf.PT_LOAD, elf.PF_R|elf.PF_W, l.dataOff, l.dataAddr, l.dataFileSz, l.dataMemSz, page)
	if l.hasTLS {
		phdr(elf.PT_TLS, elf.PF_R, l.tlsAddr-ctx.ImageBase, l.tlsAddr, l.tlsFileSz, l.tlsMemSz, l.tlsAlign)
	} else {
		phdr(elf.PT_NULL, 0, 0, 0, 0, 0, 0)
	}
	phdr(elf.PT_GNU_STACK, elf.PF_R|elf.PF_W, 0, 0, 0, 0, 0)

	// String and symbol tables for every named, defined symbol in
	// p.Syms, locals included. All entries get global binding.
	strtab := []byte{0}
	addStr := func(s string) uint32 {
		off := uint32(len(strtab))
		strtab = append(strtab, s...)
		strtab = append(strtab, 0)
		return off
	}
	symtab := make([]byte, symSize) // null symbol
	sym := func(name string, value, size uint32, info byte, shndx uint16) {
		b := make([]byte, symSize)
		le.PutUint32(b[0:], addStr(name))
		le.PutUint32(b[4:], value)
		le.PutUint32(b[8:], size)
		b[12] = info
		le.PutUint16(b[14:], shndx)
		symtab = append(symtab, b...)
	}
	for _, s := range p.Syms {
		if s.File == nil || s.Name == "" {
			continue
		}
		info := byte(elf.STB_GLOBAL)<<4 | byte(elf.STT_NOTYPE)
		switch {
		case s.Func:
			info = byte(elf.STB_GLOBAL)<<4 | byte(elf.STT_FUNC)
		case s.TLS:
			info = byte(elf.STB_GLOBAL)<<4 | byte(elf.STT_TLS)
		}
		shndx := uint16(elf.SHN_ABS)
		if !s.Absolute {
			shndx = p.shndxFor(s)
		}
		value := s.Value
		if s.TLS {
			// Symbol values in the TLS template are
			// template-relative.
			value -= ctx.TLSBegin
		}
		sym(s.Name, value, s.Size, info, shndx)
	}

	// Section header string table.
	shstr := []byte{0}
	addShStr := func(s string) uint32 {
		off := uint32(len(shstr))
		shstr = append(shstr, s...)
		shstr = append(shstr, 0)
		return off
	}

	out := buf
	align4 := func() {
		for len(out)%4 != 0 {
			out = append(out, 0)
		}
	}
	align4()
	symtabOff := uint32(len(out))
	out = append(out, symtab...)
	strtabOff := uint32(len(out))
	out = append(out, strtab...)

	// Section header table: null, output sections, symtab,
	// strtab, shstrtab.
	type sh struct {
		name, typ, flags, addr, off, size, link, info, align, entsize uint32
	}
	var shdrs []sh
	shdrs = append(shdrs, sh{})
	for _, osec := range l.outsecs {
		shdrs = append(shdrs, sh{
			name:  addShStr(osec.Name),
			typ:   uint32(osec.Type),
			flags: uint32(osec.Flags),
			addr:  osec.Addr,
			off:   osec.Off,
			size:  osec.Size,
			align: max32(osec.Addralign, 1),
		})
	}
	symtabIdx := len(shdrs)
	shdrs = append(shdrs, sh{name: addShStr(".symtab"), typ: uint32(elf.SHT_SYMTAB),
		off: symtabOff, size: uint32(len(symtab)),
		link: uint32(symtabIdx + 1), info: 1, align: 4, entsize: symSize})
	shdrs = append(shdrs, sh{name: addShStr(".strtab"), typ: uint32(elf.SHT_STRTAB),
		off: strtabOff, size: uint32(len(strtab)), align: 1})
	shstrndx := len(shdrs)
	shshstr := sh{name: addShStr(".shstrtab"), typ: uint32(elf.SHT_STRTAB), align: 1}

	shstrOff := uint32(len(out))
	shshstr.off = shstrOff
	shshstr.size = uint32(len(shstr))
	shdrs = append(shdrs, shshstr)
	out = append(out, shstr...)

	align4()
	shoff := uint32(len(out))
	for _, h := range shdrs {
		b := make([]byte, shdrSize)
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
		out = append(out, b...)
	}

	// ELF header.
	etype := elf.ET_EXEC
	if ctx.Pic {
		etype = elf.ET_DYN
	}
	hdr := out[:ehdrSize]
	copy(hdr, []byte{0x7f, 'E', 'L', 'F',
		byte(elf.ELFCLASS32), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT)})
	le.PutUint16(hdr[16:], uint16(etype))
	le.PutUint16(hdr[18:], uint16(elf.EM_386))
	le.PutUint32(hdr[20:], uint32(elf.EV_CURRENT))
	le.PutUint32(hdr[24:], l.entry)
	le.PutUint32(hdr[28:], ehdrSize) // e_phoff
	le.PutUint32(hdr[32:], shoff)
	le.PutUint16(hdr[40:], ehdrSize)
	le.PutUint16(hdr[42:], phdrSize)
	le.PutUint16(hdr[44:], phdrCount)
	le.PutUint16(hdr[46:], shdrSize)
	le.PutUint16(hdr[48:], uint16(len(shdrs)))
	le.PutUint16(hdr[50:], uint16(shstrndx))
	return out
}

// shndxFor maps a symbol to its output section's header index.
func (p *Program) shndxFor(s *Symbol) uint16 {
	var addr uint32
	if s.Sec != nil {
		addr = s.Sec.OutAddr
	} else {
		addr = s.Value
	}
	for i, osec := range p.layout.outsecs {
		if osec.Flags&elf.SHF_ALLOC != 0 && addr >= osec.Addr && addr < osec.Addr+max32(osec.Size, 1) {
			return uint16(i + 1)
		}
	}
	return uint16(elf.SHN_ABS)
}
