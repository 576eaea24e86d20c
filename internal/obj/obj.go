// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package obj loads relocatable ELF32 object files for linking.
//
// The loader reads little-endian REL-style objects (the i386 psABI
// form: addends live in the relocated fields, not in the relocation
// records) and exposes sections with their raw content and decoded
// relocation lists. Everything downstream of this package operates on
// these in-memory forms; the debug/elf file is not retained.
package obj

import (
	"debug/elf"
	"fmt"
)

// A File is one loaded relocatable object.
type File struct {
	// Name is the path the object was loaded from, used in
	// diagnostics.
	Name string

	// Sections holds the object's sections, indexed by ELF
	// section number. Entries may be nil for section kinds the
	// linker never consumes (relocation sections, symbol tables,
	// string tables).
	Sections []*Section

	// Syms holds the object's symbol table, indexed by ELF symbol
	// number. Entry 0 is the null symbol.
	Syms []Sym
}

// A Section is a loadable or debug section of an input object.
type Section struct {
	Name      string
	Type      elf.SectionType
	Flags     elf.SectionFlag
	Addralign uint32

	// Content is a private, writable copy of the section's bytes.
	// Layout copies it into the output image, and relocation
	// application patches that copy. Nil for SHT_NOBITS.
	Content []byte

	// Size is the section size. Equal to len(Content) except for
	// SHT_NOBITS.
	Size uint32

	// Relocs lists the relocations that apply to this section, in
	// file order. File order matters: TLS_GD and TLS_LDM consume
	// a paired follower.
	Relocs []Reloc
}

// A Reloc is one decoded REL-form relocation. The addend is implicit
// in the bytes the relocation targets.
type Reloc struct {
	// Off is the offset of the relocated field within the section.
	Off uint32

	// Type is the i386 psABI relocation type.
	Type elf.R_386

	// Sym is the index of the referenced symbol in the file's
	// symbol table.
	Sym int
}

// A Sym is one entry of an input object's symbol table.
type Sym struct {
	Name  string
	Value uint32
	Size  uint32

	// Shndx is the defining section index, or one of the reserved
	// values (SHN_UNDEF, SHN_ABS, SHN_COMMON).
	Shndx elf.SectionIndex

	Bind elf.SymBind
	Type elf.SymType
}

// Defined reports whether the symbol has a definition in its file.
func (s *Sym) Defined() bool {
	return s.Shndx != elf.SHN_UNDEF
}

// Local reports whether the symbol's name is only meaningful within
// its own object.
func (s *Sym) Local() bool {
	return s.Bind == elf.STB_LOCAL
}

// Alloc reports whether the section occupies memory at run time.
func (s *Section) Alloc() bool {
	return s.Flags&elf.SHF_ALLOC != 0
}

// TLS reports whether the section is part of the TLS template.
func (s *Section) TLS() bool {
	return s.Flags&elf.SHF_TLS != 0
}

func (f *File) String() string {
	return f.Name
}

// checkRelocBounds verifies that every relocation's field lies within
// its section. A violation means the object is malformed; catching it
// here keeps the appliers free of bounds checks.
func checkRelocBounds(f *File) error {
	for _, sec := range f.Sections {
		if sec == nil {
			continue
		}
		for _, r := range sec.Relocs {
			w := uint32(RelocWidth(r.Type))
			if uint64(r.Off)+uint64(w) > uint64(sec.Size) {
				return fmt.Errorf("%s: %s: relocation offset %#x+%d outside section (size %#x)",
					f.Name, sec.Name, r.Off, w, sec.Size)
			}
			if r.Sym >= len(f.Syms) {
				return fmt.Errorf("%s: %s: relocation symbol index %d out of range",
					f.Name, sec.Name, r.Sym)
			}
		}
	}
	return nil
}
