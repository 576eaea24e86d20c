// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package i386

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// readAddend reads the implicit addend stored in the relocated field.
// i386 objects use REL relocations, so the addend is whatever the
// compiler left in the field, sign-extended for the narrow types.
func readAddend(loc []byte, typ elf.R_386) int32 {
	switch typ {
	case elf.R_386_NONE, elf.R_386_TLS_DESC_CALL:
		return 0
	case elf.R_386_8, elf.R_386_PC8:
		return int32(int8(loc[0]))
	case elf.R_386_16, elf.R_386_PC16:
		return int32(int16(binary.LittleEndian.Uint16(loc)))
	case elf.R_386_32, elf.R_386_PC32, elf.R_386_GOT32, elf.R_386_GOT32X,
		elf.R_386_PLT32, elf.R_386_GOTOFF, elf.R_386_GOTPC, elf.R_386_SIZE32,
		elf.R_386_TLS_LE, elf.R_386_TLS_IE, elf.R_386_TLS_GOTIE,
		elf.R_386_TLS_GD, elf.R_386_TLS_LDM, elf.R_386_TLS_LDO_32,
		elf.R_386_TLS_GOTDESC:
		return int32(binary.LittleEndian.Uint32(loc))
	}
	panic(fmt.Sprintf("readAddend: unknown relocation type %v", typ))
}

// writeAddend writes the low bits of val at loc using the field width
// implied by typ. Values are truncated modulo the field size; range
// checking is the applier's job.
func writeAddend(loc []byte, val uint32, typ elf.R_386) {
	switch typ {
	case elf.R_386_NONE, elf.R_386_TLS_DESC_CALL:
	case elf.R_386_8, elf.R_386_PC8:
		loc[0] = byte(val)
	case elf.R_386_16, elf.R_386_PC16:
		binary.LittleEndian.PutUint16(loc, uint16(val))
	case elf.R_386_32, elf.R_386_PC32, elf.R_386_GOT32, elf.R_386_GOT32X,
		elf.R_386_PLT32, elf.R_386_GOTOFF, elf.R_386_GOTPC, elf.R_386_SIZE32,
		elf.R_386_TLS_LE, elf.R_386_TLS_IE, elf.R_386_TLS_GOTIE,
		elf.R_386_TLS_GD, elf.R_386_TLS_LDM, elf.R_386_TLS_LDO_32,
		elf.R_386_TLS_GOTDESC:
		binary.LittleEndian.PutUint32(loc, val)
	default:
		panic(fmt.Sprintf("writeAddend: unknown relocation type %v", typ))
	}
}
