// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import "debug/elf"

// relocInfo describes the field a relocation type patches.
type relocInfo struct {
	// size is the width in bytes of the relocated field.
	size byte

	// pcrel marks PC-relative types: the runtime address of the
	// field is subtracted when the relocation is applied.
	pcrel bool

	// dyn marks types that may have to be deferred to a dynamic
	// relocation when the target is not known until load time.
	dyn bool
}

// elfRelocTypes covers the i386 psABI relocation set this linker
// accepts in input objects. Types absent from the table (COPY,
// GLOB_DAT, JMP_SLOT, RELATIVE, ...) only appear in linker output and
// are rejected on input.
var elfRelocTypes = map[elf.R_386]relocInfo{
	elf.R_386_NONE:          {0, false, false},
	elf.R_386_8:             {1, false, false},
	elf.R_386_16:            {2, false, false},
	elf.R_386_32:            {4, false, true},
	elf.R_386_PC8:           {1, true, false},
	elf.R_386_PC16:          {2, true, false},
	elf.R_386_PC32:          {4, true, false},
	elf.R_386_GOT32:         {4, false, false},
	elf.R_386_GOT32X:        {4, false, false},
	elf.R_386_PLT32:         {4, true, false},
	elf.R_386_GOTOFF:        {4, false, false},
	elf.R_386_GOTPC:         {4, true, false},
	elf.R_386_SIZE32:        {4, false, false},
	elf.R_386_TLS_LE:        {4, false, false},
	elf.R_386_TLS_IE:        {4, false, true},
	elf.R_386_TLS_GOTIE:     {4, false, false},
	elf.R_386_TLS_GD:        {4, false, false},
	elf.R_386_TLS_LDM:       {4, false, false},
	elf.R_386_TLS_LDO_32:    {4, false, false},
	elf.R_386_TLS_GOTDESC:   {4, false, false},
	elf.R_386_TLS_DESC_CALL: {0, false, false},
}

// RelocWidth returns the width in bytes of the field patched by typ,
// or 0 for types that patch nothing.
func RelocWidth(typ elf.R_386) byte {
	return elfRelocTypes[typ].size
}

// RelocPCRel reports whether typ is PC-relative.
func RelocPCRel(typ elf.R_386) bool {
	return elfRelocTypes[typ].pcrel
}

// KnownReloc reports whether typ is one of the input relocation types
// this linker understands.
func KnownReloc(typ elf.R_386) bool {
	_, ok := elfRelocTypes[typ]
	return ok
}
