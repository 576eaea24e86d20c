// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ld

import (
	"debug/elf"
	"encoding/binary"
	"strings"
)

// An OutputSection collects input sections under one name in the
// output image. Synthetic sections (.plt, .got, ...) have no members.
type OutputSection struct {
	Name      string
	Type      elf.SectionType
	Flags     elf.SectionFlag
	Addr      uint32
	Off       uint32
	Size      uint32
	Addralign uint32
	Members   []*InputSection
}

type layout struct {
	outsecs []*OutputSection

	plt, pltgot, got, gotplt, reldyn *OutputSection

	// Two loadable segments: text (R+X, starts at the ELF
	// header) and data (R+W).
	textAddr, textSize uint32
	dataAddr, dataOff, dataFileSz, dataMemSz uint32

	hasTLS                        bool
	tlsAddr, tlsFileSz, tlsMemSz  uint32
	tlsAlign                      uint32

	fileSize uint32
	entry    uint32
}

// outputName maps an input section name to its output section. The
// usual compiler conventions: per-function and per-datum sections
// fold into their parent.
func outputName(name string) string {
	for _, prefix := range []string{
		".text", ".rodata", ".tdata", ".tbss", ".data", ".bss",
		".init_array", ".fini_array",
	} {
		if name == prefix || strings.HasPrefix(name, prefix+".") {
			return prefix
		}
	}
	return name
}

const (
	ehdrSize = 52
	phdrSize = 32
	shdrSize = 40
	symSize  = 16
)

// doLayout assigns every input and synthetic section an output
// address and file offset and freezes the context's address fields.
// File offsets track virtual addresses (off = addr - ImageBase) for
// everything with file content, so both loadable segments map with
// congruent offsets.
func (p *Program) doLayout() {
	ctx := p.Ctx
	l := &p.layout

	// Group allocatable input sections.
	index := make(map[string]*OutputSection)
	var text, ro, rw, bss []*OutputSection
	for _, isec := range p.Sections {
		sec := isec.Sec
		if !sec.Alloc() || isec.Discarded {
			continue
		}
		name := outputName(sec.Name)
		osec := index[name]
		if osec == nil {
			osec = &OutputSection{Name: name, Type: sec.Type, Flags: sec.Flags, Addralign: 1}
			index[name] = osec
			switch {
			case sec.Flags&elf.SHF_EXECINSTR != 0:
				text = append(text, osec)
			case sec.Type == elf.SHT_NOBITS:
				bss = append(bss, osec)
			case sec.Flags&elf.SHF_WRITE != 0:
				rw = append(rw, osec)
			default:
				ro = append(ro, osec)
			}
		}
		osec.Members = append(osec.Members, isec)
		if sec.Addralign > osec.Addralign {
			osec.Addralign = sec.Addralign
		}
	}

	// Synthetic sections, sized from allocation.
	l.plt = &OutputSection{Name: ".plt", Type: elf.SHT_PROGBITS,
		Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Addralign: 16}
	if len(p.pltSyms) > 0 {
		l.plt.Size = uint32(ctx.Arch.PltHdrSize + len(p.pltSyms)*ctx.Arch.PltSize)
	}
	l.pltgot = &OutputSection{Name: ".plt.got", Type: elf.SHT_PROGBITS,
		Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Addralign: 16,
		Size: uint32(len(p.pltGotSyms) * ctx.Arch.PltGotSize)}
	l.reldyn = &OutputSection{Name: ".rel.dyn", Type: elf.SHT_REL,
		Flags: elf.SHF_ALLOC, Addralign: 4,
		Size: uint32(p.numDynrel * ctx.Arch.RelSize)}
	l.got = &OutputSection{Name: ".got", Type: elf.SHT_PROGBITS,
		Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Addralign: 4,
		Size: uint32(p.gotSlots * ctx.Arch.PtrSize)}
	l.gotplt = &OutputSection{Name: ".got.plt", Type: elf.SHT_PROGBITS,
		Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Addralign: 4}
	if len(p.pltSyms) > 0 {
		l.gotplt.Size = uint32(p.gotPltSlots * ctx.Arch.PtrSize)
	}

	// Text segment: headers, code, read-only data, dynamic
	// relocation table.
	var order []*OutputSection
	order = append(order, text...)
	order = append(order, l.plt, l.pltgot)
	order = append(order, ro...)
	order = append(order, l.reldyn)

	page := uint32(ctx.Arch.PageSize)
	addr := ctx.ImageBase + ehdrSize + phdrCount*phdrSize
	for _, osec := range order {
		addr = place(osec, addr, ctx.ImageBase)
	}
	l.textAddr = ctx.ImageBase
	l.textSize = addr - ctx.ImageBase

	// Data segment on a fresh page. TLS template first, so
	// .tdata/.tbss stay contiguous; .tbss overlays the following
	// sections (it occupies tp-relative space, not address space).
	addr = alignTo(addr, page)
	l.dataAddr = addr
	l.dataOff = addr - ctx.ImageBase
	var rwOrder []*OutputSection
	rwOrder = append(rwOrder, rw...)
	rwOrder = append(rwOrder, l.got, l.gotplt)

	if tdata := index[".tdata"]; tdata != nil {
		addr = place(tdata, addr, ctx.ImageBase)
		l.hasTLS = true
		l.tlsAddr = tdata.Addr
		l.tlsFileSz = tdata.Size
		l.tlsAlign = tdata.Addralign
	}
	if tbss := index[".tbss"]; tbss != nil {
		placeNobitsOverlay(tbss, addr)
		if !l.hasTLS {
			l.hasTLS = true
			l.tlsAddr = addr
		}
		if tbss.Addralign > l.tlsAlign {
			l.tlsAlign = tbss.Addralign
		}
	}
	if l.hasTLS {
		if l.tlsAlign == 0 {
			l.tlsAlign = uint32(ctx.Arch.PtrSize)
		}
		end := l.tlsAddr + l.tlsFileSz
		if tbss := index[".tbss"]; tbss != nil {
			end = tbss.Addr + tbss.Size
		}
		l.tlsMemSz = end - l.tlsAddr
		ctx.TLSBegin = l.tlsAddr
		ctx.TpAddr = alignTo(l.tlsAddr+l.tlsMemSz, l.tlsAlign)
	}

	for _, osec := range rwOrder {
		if osec.Name == ".tdata" || osec.Name == ".tbss" {
			continue
		}
		addr = place(osec, addr, ctx.ImageBase)
	}
	l.dataFileSz = addr - l.dataAddr

	// NOBITS at the end of the data segment: address space only.
	for _, osec := range bss {
		if osec.Name == ".tbss" {
			continue
		}
		addr = alignTo(addr, osec.Addralign)
		osec.Addr = addr
		osec.Off = l.dataOff + l.dataFileSz
		for _, isec := range osec.Members {
			addr = alignTo(addr, max32(isec.Sec.Addralign, 1))
			isec.OutAddr = addr
			addr += isec.Sec.Size
		}
		osec.Size = addr - osec.Addr
	}
	addr = p.placeCommons(addr, index, &bss)
	l.dataMemSz = addr - l.dataAddr

	l.fileSize = l.dataOff + l.dataFileSz

	// Non-allocatable sections (debug info and friends) follow
	// the loadable image in the file, with no address.
	off := l.fileSize
	for _, isec := range p.Sections {
		sec := isec.Sec
		if sec.Alloc() || isec.Discarded || sec.Type == elf.SHT_NOBITS {
			continue
		}
		name := outputName(sec.Name)
		osec := index[name]
		if osec == nil {
			osec = &OutputSection{Name: name, Type: sec.Type, Flags: sec.Flags, Addralign: 1}
			index[name] = osec
			l.outsecs = append(l.outsecs, osec)
		}
		off = alignTo(off, max32(sec.Addralign, 1))
		if osec.Size == 0 {
			osec.Off = off
		}
		isec.OutOff = off
		osec.Members = append(osec.Members, isec)
		off += sec.Size
		osec.Size = off - osec.Off
	}
	l.fileSize = off

	// Final section order for the section header table.
	var secs []*OutputSection
	secs = append(secs, order...)
	if tdata := index[".tdata"]; tdata != nil {
		secs = append(secs, tdata)
	}
	if tbss := index[".tbss"]; tbss != nil {
		secs = append(secs, tbss)
	}
	for _, osec := range rwOrder {
		if osec.Name != ".tdata" && osec.Name != ".tbss" {
			secs = append(secs, osec)
		}
	}
	for _, osec := range bss {
		if osec.Name != ".tbss" {
			secs = append(secs, osec)
		}
	}
	secs = append(secs, l.outsecs...)
	l.outsecs = secs

	ctx.GotAddr = l.got.Addr
	ctx.GotPltAddr = l.gotplt.Addr
	ctx.PltAddr = l.plt.Addr
	ctx.PltGotAddr = l.pltgot.Addr

	// With addresses frozen, resolve symbol values.
	p.finalizeSymbols()
}

// place assigns osec and its members consecutive addresses starting
// at addr, keeping file offsets in lockstep with addresses.
func place(osec *OutputSection, addr, base uint32) uint32 {
	addr = alignTo(addr, max32(osec.Addralign, 1))
	osec.Addr = addr
	osec.Off = addr - base
	for _, isec := range osec.Members {
		addr = alignTo(addr, max32(isec.Sec.Addralign, 1))
		isec.OutAddr = addr
		isec.OutOff = addr - base
		addr += isec.Sec.Size
	}
	if len(osec.Members) > 0 {
		osec.Size = addr - osec.Addr
	} else {
		addr += osec.Size
	}
	return addr
}

// placeNobitsOverlay assigns .tbss addresses without consuming
// address space: its range only exists as thread-pointer offsets.
func placeNobitsOverlay(osec *OutputSection, addr uint32) {
	addr = alignTo(addr, max32(osec.Addralign, 1))
	osec.Addr = addr
	for _, isec := range osec.Members {
		addr = alignTo(addr, max32(isec.Sec.Addralign, 1))
		isec.OutAddr = addr
		addr += isec.Sec.Size
	}
	osec.Size = addr - osec.Addr
}

// placeCommons gives SHN_COMMON symbols space at the end of .bss.
func (p *Program) placeCommons(addr uint32, index map[string]*OutputSection, bss *[]*OutputSection) uint32 {
	var commons []*Symbol
	for _, s := range p.Syms {
		if s.Common {
			commons = append(commons, s)
		}
	}
	if len(commons) == 0 {
		return addr
	}
	osec := index[".bss"]
	if osec == nil {
		osec = &OutputSection{Name: ".bss", Type: elf.SHT_NOBITS,
			Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Addralign: 1, Addr: addr,
			Off: p.layout.dataOff + p.layout.dataFileSz}
		index[".bss"] = osec
		*bss = append(*bss, osec)
	}
	for _, s := range commons {
		align := max32(s.Value, 1) // for commons, st_value is the alignment
		addr = alignTo(addr, align)
		s.Value = addr
		s.Common = false
		addr += s.Size
	}
	osec.Size = addr - osec.Addr
	return addr
}

// finalizeSymbols turns section-relative values into virtual
// addresses. Commons were already finalized by placeCommons.
func (p *Program) finalizeSymbols() {
	for _, s := range p.Syms {
		if s.Sec != nil {
			s.Value += s.Sec.OutAddr
		}
	}
	if p.Entry != nil {
		p.layout.entry = p.Entry.Addr(p.Ctx)
	} else {
		p.layout.entry = p.Ctx.ImageBase
	}
}

// materialize allocates the output image, copies section content,
// fills the GOT, writes the PLT, runs the parallel apply phase, and
// appends the symbol and section tables.
func (p *Program) materialize() {
	ctx := p.Ctx
	l := &p.layout

	buf := make([]byte, l.fileSize)
	ctx.Buf = buf

	for _, isec := range p.Sections {
		sec := isec.Sec
		if isec.Discarded || sec.Type == elf.SHT_NOBITS || sec.Content == nil {
			continue
		}
		isec.Out = buf[isec.OutOff : isec.OutOff+sec.Size]
		copy(isec.Out, sec.Content)
	}

	ctx.RelDyn = &RelDyn{Addr: l.reldyn.Addr, Buf: buf[l.reldyn.Off : l.reldyn.Off+l.reldyn.Size]}

	p.fillGot(buf)
	p.writePlt(buf)
	p.applyPhase()
	p.Image = p.writeElf(buf)
}

// fillGot writes the GOT and .got.plt images and the load-time
// relocations for slots whose values are not known until then. The
// dynamic-relocation cursor mirrors allocate's count.
func (p *Program) fillGot(buf []byte) {
	ctx := p.Ctx
	l := &p.layout
	got := buf[l.got.Off : l.got.Off+l.got.Size]
	dynoff := uint32(0)

	put := func(idx int32, val uint32) {
		binary.LittleEndian.PutUint32(got[uint32(idx)*4:], val)
	}

	for _, s := range p.Syms {
		if s.GotIdx != -1 {
			switch {
			case s.IFunc:
				// The resolver's answer replaces the
				// slot at startup.
				put(s.GotIdx, s.Value)
				ctx.RelDyn.Set(dynoff, s.GotAddr(ctx), elf.R_386_IRELATIVE, 0)
				dynoff += uint32(ctx.Arch.RelSize)
			case gotNeedsDynrel(ctx, s):
				put(s.GotIdx, s.Value)
				ctx.RelDyn.Set(dynoff, s.GotAddr(ctx), elf.R_386_RELATIVE, 0)
				dynoff += uint32(ctx.Arch.RelSize)
			default:
				put(s.GotIdx, s.Addr(ctx))
			}
		}
		if s.GotTpIdx != -1 {
			if gotTpNeedsDynrel(s) {
				put(s.GotTpIdx, 0)
				ctx.RelDyn.Set(dynoff, s.GotTpAddr(ctx), elf.R_386_TLS_TPOFF, uint32(s.DynsymIdx))
				dynoff += uint32(ctx.Arch.RelSize)
			} else {
				put(s.GotTpIdx, s.Value-ctx.TpAddr)
			}
		}
		if s.TLSGdIdx != -1 {
			// Module id and offset from the template start.
			// A statically linked program is module 1.
			put(s.TLSGdIdx, 1)
			put(s.TLSGdIdx+1, s.Value-ctx.TLSBegin)
		}
		if s.TLSDescIdx != -1 {
			put(s.TLSDescIdx, 0)
			put(s.TLSDescIdx+1, s.Value-ctx.TpAddr)
		}
	}
	if ctx.TLSLdIdx != -1 {
		put(ctx.TLSLdIdx, 1)
		put(ctx.TLSLdIdx+1, 0)
	}

	if len(p.pltSyms) > 0 {
		gotplt := buf[l.gotplt.Off : l.gotplt.Off+l.gotplt.Size]
		// Slots 0..2 stay zero for the dynamic linker. A
		// statically resolved entry holds the target itself.
		for _, s := range p.pltSyms {
			binary.LittleEndian.PutUint32(gotplt[uint32(s.GotPltIdx)*4:], s.Value)
		}
	}
}

// writePlt emits the PLT header and entries through the back-end.
func (p *Program) writePlt(buf []byte) {
	ctx := p.Ctx
	l := &p.layout
	if len(p.pltSyms) > 0 {
		plt := buf[l.plt.Off : l.plt.Off+l.plt.Size]
		p.Backend.WritePltHeader(ctx, plt[:ctx.Arch.PltHdrSize])
		for _, s := range p.pltSyms {
			off := ctx.Arch.PltHdrSize + int(s.PltIdx)*ctx.Arch.PltSize
			p.Backend.WritePltEntry(ctx, plt[off:off+ctx.Arch.PltSize], s)
		}
	}
	for _, s := range p.pltGotSyms {
		off := l.pltgot.Off + uint32(s.PltGotIdx)*uint32(ctx.Arch.PltGotSize)
		p.Backend.WritePltGotEntry(ctx, buf[off:off+uint32(ctx.Arch.PltGotSize)], s)
	}
}

func alignTo(v, align uint32) uint32 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
