// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ld

import (
	"debug/elf"
	"encoding/binary"

	"github.com/chenyang8094/ld386/internal/obj"
)

// An ObjectFile is one input object together with its link-time
// symbol bindings.
type ObjectFile struct {
	Obj *obj.File

	// Syms maps the object's symbol-table indexes to resolved
	// symbols. Locals get private Symbols; globals share the
	// resolution table's.
	Syms []*Symbol

	// Sections parallels Obj.Sections; nil entries mirror the
	// loader's.
	Sections []*InputSection
}

func (f *ObjectFile) Name() string { return f.Obj.Name }

// An InputSection is one section of an input object placed in the
// output. The scan and apply phases each run with one goroutine per
// InputSection; all mutable state here is owned by that goroutine.
type InputSection struct {
	File *ObjectFile
	Sec  *obj.Section

	// OutAddr is the section's output virtual address (P_base).
	OutAddr uint32

	// OutOff is the section's output file offset.
	OutOff uint32

	// Out is the section's slice of the output buffer. The apply
	// phase patches relocation sites in it.
	Out []byte

	// Discarded marks sections dropped from the output (COMDAT
	// group losers). References to their symbols from debug
	// sections are tombstoned.
	Discarded bool

	// NumDynrel is the number of dynamic relocations this
	// section's relocations will emit, counted during scan.
	NumDynrel int32

	// RelDynOff is the byte offset into .rel.dyn reserved for
	// this section, assigned by allocation. The apply phase
	// writes at RelDynOff without contention.
	RelDynOff uint32
}

func (isec *InputSection) Name() string { return isec.Sec.Name }

// AddDynrel counts one dynamic relocation during scan.
func (isec *InputSection) AddDynrel() { isec.NumDynrel++ }

// Symbol returns the resolved symbol for relocation r.
func (isec *InputSection) Symbol(r *obj.Reloc) *Symbol {
	return isec.File.Syms[r.Sym]
}

// Tombstone returns the value to store for a debug-section reference
// to a symbol whose section was discarded, and whether tombstoning
// applies. .debug_loc and .debug_ranges use -1 because 0 terminates
// their lists.
func (isec *InputSection) Tombstone(sym *Symbol) (uint32, bool) {
	if sym.Sec == nil || !sym.Sec.Discarded {
		return 0, false
	}
	switch isec.Sec.Name {
	case ".debug_loc", ".debug_ranges":
		return ^uint32(0), true
	}
	return 0, true
}

// RelDyn is the .rel.dyn output section. Slots are reserved per input
// section during allocation, so parallel appliers write disjoint
// ranges.
type RelDyn struct {
	Addr uint32
	Buf  []byte
}

// Set writes one Elf32_Rel record at byte offset off.
func (r *RelDyn) Set(off uint32, roffset uint32, typ elf.R_386, dynsym uint32) {
	binary.LittleEndian.PutUint32(r.Buf[off:], roffset)
	binary.LittleEndian.PutUint32(r.Buf[off+4:], dynsym<<8|uint32(typ)&0xff)
}
