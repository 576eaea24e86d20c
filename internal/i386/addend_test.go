// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package i386

import (
	"debug/elf"
	"testing"
)

var relocWidths = map[elf.R_386]int{
	elf.R_386_NONE:          0,
	elf.R_386_8:             1,
	elf.R_386_PC8:           1,
	elf.R_386_16:            2,
	elf.R_386_PC16:          2,
	elf.R_386_32:            4,
	elf.R_386_PC32:          4,
	elf.R_386_GOT32:         4,
	elf.R_386_GOT32X:        4,
	elf.R_386_PLT32:         4,
	elf.R_386_GOTOFF:        4,
	elf.R_386_GOTPC:         4,
	elf.R_386_SIZE32:        4,
	elf.R_386_TLS_LE:        4,
	elf.R_386_TLS_IE:        4,
	elf.R_386_TLS_GOTIE:     4,
	elf.R_386_TLS_GD:        4,
	elf.R_386_TLS_LDM:       4,
	elf.R_386_TLS_LDO_32:    4,
	elf.R_386_TLS_GOTDESC:   4,
	elf.R_386_TLS_DESC_CALL: 0,
}

// writeAddend must write exactly the field width, little-endian,
// truncating the value modulo the field size, and touch nothing else.
func TestWriteAddendWidths(t *testing.T) {
	const val = 0xa1b2c3d4
	want := []byte{0xd4, 0xc3, 0xb2, 0xa1}
	for typ, w := range relocWidths {
		buf := []byte{0xee, 0xee, 0xee, 0xee, 0xee, 0xee}
		writeAddend(buf, val, typ)
		for i := 0; i < 6; i++ {
			if i < w {
				if buf[i] != want[i] {
					t.Errorf("%v: byte %d = %#x, want %#x", typ, i, buf[i], want[i])
				}
			} else if buf[i] != 0xee {
				t.Errorf("%v: byte %d clobbered (width %d)", typ, i, w)
			}
		}
	}
}

func TestReadAddendSignExtension(t *testing.T) {
	check := func(typ elf.R_386, buf []byte, want int32) {
		t.Helper()
		if got := readAddend(buf, typ); got != want {
			t.Errorf("%v: addend = %d, want %d", typ, got, want)
		}
	}
	check(elf.R_386_8, []byte{0xfc}, -4)
	check(elf.R_386_PC8, []byte{0x7f}, 127)
	check(elf.R_386_16, []byte{0xfe, 0xff}, -2)
	check(elf.R_386_PC32, []byte{0xfc, 0xff, 0xff, 0xff}, -4)
	check(elf.R_386_32, []byte{0x78, 0x56, 0x34, 0x12}, 0x12345678)
	check(elf.R_386_TLS_DESC_CALL, nil, 0)
}

func TestWriteAddendRoundTrip(t *testing.T) {
	for _, val := range []int32{0, 1, -1, 0x7fffffff, -0x80000000, 0x1234} {
		buf := make([]byte, 4)
		writeAddend(buf, uint32(val), elf.R_386_32)
		if got := readAddend(buf, elf.R_386_32); got != val {
			t.Errorf("round trip %d -> %d", val, got)
		}
	}
}
