// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ld

import (
	"debug/elf"
	"encoding/binary"
)

// The scanner classifies each absolute or PC-relative relocation by
// (output kind, symbol kind) and looks the decision up in a table.
// The applier replays the same lookup, so scan-time dynamic-relocation
// counts always match apply-time emission.

type scanAction uint8

const (
	actNone scanAction = iota
	actError
	actCopyrel // mark the symbol NeedsCopyrel; allocation does not act on it
	actPlt     // refer to the symbol's PLT entry
	actCplt    // claim the address: canonical PLT
	actDynrel  // emit a symbolic dynamic relocation
	actBaserel // emit a base-relative (RELATIVE) dynamic relocation
)

type symKind uint8

const (
	kindAbs symKind = iota
	kindLocal
	kindImportedData
	kindImportedFunc
)

func classify(sym *Symbol) symKind {
	switch {
	case sym.Absolute:
		return kindAbs
	case !sym.Imported:
		return kindLocal
	case sym.Func:
		return kindImportedFunc
	}
	return kindImportedData
}

// Rows: position-dependent, position-independent.
// Columns: absolute, local, imported data, imported function.

var absRelTable = [2][4]scanAction{
	{actNone, actNone, actCopyrel, actCplt},
	{actNone, actError, actError, actError},
}

var dynAbsRelTable = [2][4]scanAction{
	{actNone, actNone, actCopyrel, actCplt},
	{actNone, actBaserel, actDynrel, actDynrel},
}

var pcRelTable = [2][4]scanAction{
	{actNone, actNone, actCopyrel, actCplt},
	{actError, actNone, actCopyrel, actPlt},
}

func lookup(table *[2][4]scanAction, ctx *Context, sym *Symbol) scanAction {
	row := 0
	if ctx.Pic {
		row = 1
	}
	return table[row][classify(sym)]
}

func (ctx *Context) scanAction(act scanAction, isec *InputSection, sym *Symbol, typ elf.R_386) {
	switch act {
	case actNone:
	case actError:
		ctx.Errorf("%s: %s: relocation %v against %s can not be used in position-independent output; recompile with -fPIC",
			isec.File.Name(), isec.Name(), typ, sym.Name)
	case actCopyrel:
		sym.SetFlags(NeedsCopyrel)
	case actPlt:
		sym.SetFlags(NeedsPlt)
	case actCplt:
		sym.SetFlags(NeedsPlt | NeedsCanonicalPlt)
	case actDynrel, actBaserel:
		isec.AddDynrel()
	}
}

// ScanAbsRel handles narrow absolute relocations (_8, _16), which can
// never be expressed as dynamic relocations.
func ScanAbsRel(ctx *Context, isec *InputSection, sym *Symbol, typ elf.R_386) {
	ctx.scanAction(lookup(&absRelTable, ctx, sym), isec, sym, typ)
}

// ScanDynAbsRel handles word-size absolute relocations (_32), which
// may be deferred to load time.
func ScanDynAbsRel(ctx *Context, isec *InputSection, sym *Symbol, typ elf.R_386) {
	ctx.scanAction(lookup(&dynAbsRelTable, ctx, sym), isec, sym, typ)
}

// ScanPCRel handles PC-relative relocations (PC8, PC16, PC32).
func ScanPCRel(ctx *Context, isec *InputSection, sym *Symbol, typ elf.R_386) {
	ctx.scanAction(lookup(&pcRelTable, ctx, sym), isec, sym, typ)
}

// ApplyDynAbsRel finalizes a word-size absolute relocation site at
// loc, replaying the scanner's decision. P is the site's runtime
// address; *dynoff is the section's cursor into its reserved .rel.dyn
// range and advances by one record per emitted dynamic relocation.
//
// Addends travel in the relocated field (REL-style output), so a
// RELATIVE relocation stores S+A in place for the dynamic linker to
// rebase, and a symbolic relocation stores just A.
func ApplyDynAbsRel(ctx *Context, isec *InputSection, sym *Symbol, loc []byte, S, A, P uint32, dynoff *uint32) {
	switch lookup(&dynAbsRelTable, ctx, sym) {
	case actBaserel:
		binary.LittleEndian.PutUint32(loc, S+A)
		ctx.RelDyn.Set(*dynoff, P, elf.R_386_RELATIVE, 0)
		*dynoff += uint32(ctx.Arch.RelSize)
	case actDynrel:
		binary.LittleEndian.PutUint32(loc, A)
		ctx.RelDyn.Set(*dynoff, P, elf.R_386_32, uint32(sym.DynsymIdx))
		*dynoff += uint32(ctx.Arch.RelSize)
	default:
		binary.LittleEndian.PutUint32(loc, S+A)
	}
}
