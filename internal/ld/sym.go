// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ld

import "sync/atomic"

// Symbol requirement flags, OR'd into Symbol.flags by the relocation
// scanner. Scanning runs with one goroutine per section; bit-union is
// commutative and idempotent, so relaxed atomic OR is all the
// synchronization the scan phase needs (a barrier between phases
// provides the happens-before).
const (
	NeedsGot uint32 = 1 << iota
	NeedsPlt
	NeedsGotTp
	NeedsTLSGd
	NeedsTLSDesc
	NeedsCopyrel
	NeedsCanonicalPlt

	// flagUndefReported dedups undefined-symbol diagnostics.
	flagUndefReported
)

// A Symbol is a resolved global or local symbol. Symbols are created
// by resolution, laid out by allocation, and read-only during the
// apply phase except for the atomic flag word.
type Symbol struct {
	Name string

	// File is the resolving object, or nil if no input defines
	// the symbol.
	File *ObjectFile

	// Sec is the defining input section, nil for absolute and
	// common symbols.
	Sec *InputSection

	// Value is the resolved virtual address S. TLS symbols also
	// hold a virtual address inside the TLS template; offsets from
	// TLSBegin or TpAddr are computed where they are needed.
	Value uint32

	// Size is the symbol's st_size.
	Size uint32

	// Imported marks symbols that must be resolved by the dynamic
	// linker at load time.
	Imported bool

	// Absolute marks SHN_ABS symbols, whose value does not move
	// with the image.
	Absolute bool

	// Func marks STT_FUNC symbols.
	Func bool

	// IFunc marks STT_GNU_IFUNC symbols.
	IFunc bool

	// Weak marks STB_WEAK symbols; undefined weaks resolve to 0
	// without a diagnostic.
	Weak bool

	// TLS marks STT_TLS symbols.
	TLS bool

	// Slot indexes assigned by the allocation phase, -1 if the
	// symbol has no slot of that kind. GOT-family indexes count
	// words from the start of .got; GotPltIdx counts words from
	// the start of .got.plt (the first three are reserved for the
	// dynamic linker); PltIdx counts PLT entries after the header.
	GotIdx, GotPltIdx, PltIdx, PltGotIdx, GotTpIdx, TLSGdIdx, TLSDescIdx int32

	// DynsymIdx is the symbol's index in .dynsym, or -1.
	DynsymIdx int32

	// Common marks SHN_COMMON symbols; layout gives them space in
	// .bss. For commons, Value initially holds the required
	// alignment, as ELF defines.
	Common bool

	flags atomic.Uint32
}

// NewSymbol returns an unresolved symbol with no allocated slots.
func NewSymbol(name string) *Symbol {
	s := &Symbol{Name: name}
	s.GotIdx = -1
	s.GotPltIdx = -1
	s.PltIdx = -1
	s.PltGotIdx = -1
	s.GotTpIdx = -1
	s.TLSGdIdx = -1
	s.TLSDescIdx = -1
	s.DynsymIdx = -1
	return s
}

// Flags returns the current requirement flags.
func (s *Symbol) Flags() uint32 {
	return s.flags.Load()
}

// SetFlags ORs f into the symbol's flag word.
func (s *Symbol) SetFlags(f uint32) {
	atomicOr(&s.flags, f)
}

// setFlagOnce ORs f in and reports whether this call was the first to
// set it.
func (s *Symbol) setFlagOnce(f uint32) bool {
	return atomicOr(&s.flags, f)&f == 0
}

// atomicOr ORs f into *addr and returns the value prior to the
// operation. Equivalent to atomic.Uint32.Or (added in Go 1.23).
func atomicOr(addr *atomic.Uint32, f uint32) uint32 {
	for {
		old := addr.Load()
		if addr.CompareAndSwap(old, old|f) {
			return old
		}
	}
}

// IsRelative reports whether the symbol resolves statically and moves
// with the image: defined here, not imported, not absolute.
func (s *Symbol) IsRelative() bool {
	return !s.Imported && !s.Absolute
}

func (s *Symbol) HasGot() bool     { return s.GotIdx != -1 }
func (s *Symbol) HasPlt() bool     { return s.PltIdx != -1 }
func (s *Symbol) HasGotTp() bool   { return s.GotTpIdx != -1 }
func (s *Symbol) HasTLSGd() bool   { return s.TLSGdIdx != -1 }
func (s *Symbol) HasTLSDesc() bool { return s.TLSDescIdx != -1 }

// Addr returns the address to use for references to the symbol.
// Imported functions and ifuncs resolve to their PLT entry; everything
// else resolves to the symbol's own address.
func (s *Symbol) Addr(ctx *Context) uint32 {
	if (s.PltIdx != -1 || s.PltGotIdx != -1) && (s.Imported || s.IFunc) {
		return s.PltAddr(ctx)
	}
	return s.Value
}

// PltAddr returns the address of the symbol's PLT entry: a lazy entry
// after the PLT header, or a non-lazy .plt.got trampoline.
func (s *Symbol) PltAddr(ctx *Context) uint32 {
	if s.PltIdx != -1 {
		return ctx.PltAddr + uint32(ctx.Arch.PltHdrSize) + uint32(s.PltIdx)*uint32(ctx.Arch.PltSize)
	}
	return ctx.PltGotAddr + uint32(s.PltGotIdx)*uint32(ctx.Arch.PltGotSize)
}

// GotAddr returns the address of the symbol's plain GOT slot.
func (s *Symbol) GotAddr(ctx *Context) uint32 {
	return ctx.GotAddr + uint32(s.GotIdx)*wordSize
}

// GotPltAddr returns the address of the symbol's .got.plt slot.
func (s *Symbol) GotPltAddr(ctx *Context) uint32 {
	return ctx.GotPltAddr + uint32(s.GotPltIdx)*wordSize
}

// GotTpAddr returns the address of the symbol's GOT slot holding its
// tp-relative offset (TLS initial-exec).
func (s *Symbol) GotTpAddr(ctx *Context) uint32 {
	return ctx.GotAddr + uint32(s.GotTpIdx)*wordSize
}

// TLSGdAddr returns the address of the symbol's two-word TLS
// general-dynamic (module id, offset) GOT pair.
func (s *Symbol) TLSGdAddr(ctx *Context) uint32 {
	return ctx.GotAddr + uint32(s.TLSGdIdx)*wordSize
}

// TLSDescAddr returns the address of the symbol's two-word TLS
// descriptor GOT pair.
func (s *Symbol) TLSDescAddr(ctx *Context) uint32 {
	return ctx.GotAddr + uint32(s.TLSDescIdx)*wordSize
}

const wordSize = 4
