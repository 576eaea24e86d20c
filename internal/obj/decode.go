// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import "encoding/binary"

// decoder is a cursor over the raw bytes of an ELF32 structure array
// (relocation records, symbol records). All i386 objects are
// little-endian.
type decoder struct {
	order binary.ByteOrder
	data  []byte
	pos   uint64
}

func (d *decoder) Bytes(n uint64) []byte {
	v := d.data[d.pos : d.pos+n]
	d.pos += n
	return v
}

func (d *decoder) Uint8() uint8 {
	v := d.data[d.pos]
	d.pos++
	return v
}

func (d *decoder) Uint16() uint16 {
	v := d.order.Uint16(d.data[d.pos:])
	d.pos += 2
	return v
}

func (d *decoder) Uint32() uint32 {
	v := d.order.Uint32(d.data[d.pos:])
	d.pos += 4
	return v
}

func (d *decoder) Int32() int32 {
	return int32(d.Uint32())
}

// Remaining returns the number of undecoded bytes.
func (d *decoder) Remaining() uint64 {
	return uint64(len(d.data)) - d.pos
}
