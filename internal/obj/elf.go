// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
)

// Open loads the relocatable ELF32 object at path.
func Open(path string) (*File, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	elfF, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if elfF.Machine != elf.EM_386 || elfF.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("%s: not an ELF32 i386 object (machine %v, class %v)",
			path, elfF.Machine, elfF.Class)
	}
	if elfF.Type != elf.ET_REL {
		return nil, fmt.Errorf("%s: not a relocatable object (type %v)", path, elfF.Type)
	}
	if elfF.ByteOrder != binary.LittleEndian {
		return nil, fmt.Errorf("%s: not little-endian", path)
	}

	f := &File{Name: path, Sections: make([]*Section, len(elfF.Sections))}

	// debug/elf's symbol list starts at ELF index 1; re-insert the
	// null symbol so our indexes match the relocation records.
	elfSyms, err := elfF.Symbols()
	if err != nil && err != elf.ErrNoSymbols {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.Syms = make([]Sym, len(elfSyms)+1)
	for i, es := range elfSyms {
		f.Syms[i+1] = Sym{
			Name:  es.Name,
			Value: uint32(es.Value),
			Size:  uint32(es.Size),
			Shndx: es.Section,
			Bind:  elf.ST_BIND(es.Info),
			Type:  elf.ST_TYPE(es.Info),
		}
	}

	// Materialize section content. Relocation, symbol-table and
	// string-table sections are consumed below and not retained.
	for i, es := range elfF.Sections {
		switch es.Type {
		case elf.SHT_NULL, elf.SHT_REL, elf.SHT_RELA, elf.SHT_SYMTAB, elf.SHT_STRTAB:
			continue
		}
		sec := &Section{
			Name:      es.Name,
			Type:      es.Type,
			Flags:     es.Flags,
			Addralign: uint32(es.Addralign),
			Size:      uint32(es.Size),
		}
		if es.Type != elf.SHT_NOBITS {
			data, err := es.Data()
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", path, es.Name, err)
			}
			sec.Content = data
		}
		f.Sections[i] = sec
	}

	// Attach decoded relocations to their target sections. i386 is
	// a REL architecture; RELA input is rejected.
	for _, es := range elfF.Sections {
		switch es.Type {
		case elf.SHT_RELA:
			return nil, fmt.Errorf("%s: %s: RELA relocations are not used on i386", path, es.Name)
		case elf.SHT_REL:
		default:
			continue
		}
		if int(es.Info) >= len(f.Sections) || f.Sections[es.Info] == nil {
			// Relocations against a section we dropped
			// (e.g. against another relocation section).
			continue
		}
		data, err := es.Data()
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", path, es.Name, err)
		}
		target := f.Sections[es.Info]
		target.Relocs, err = decodeRels(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", path, es.Name, err)
		}
	}

	if err := checkRelocBounds(f); err != nil {
		return nil, err
	}
	return f, nil
}

// decodeRels decodes an array of Elf32_Rel records.
func decodeRels(data []byte) ([]Reloc, error) {
	const relSize = 8
	if len(data)%relSize != 0 {
		return nil, fmt.Errorf("relocation section size %d not a multiple of %d", len(data), relSize)
	}
	d := &decoder{order: binary.LittleEndian, data: data}
	rels := make([]Reloc, 0, len(data)/relSize)
	for d.Remaining() >= relSize {
		off := d.Uint32()
		info := d.Uint32()
		typ := elf.R_386(elf.R_TYPE32(info))
		if !KnownReloc(typ) {
			return nil, fmt.Errorf("unknown relocation type %v", typ)
		}
		rels = append(rels, Reloc{Off: off, Type: typ, Sym: int(elf.R_SYM32(info))})
	}
	return rels, nil
}
