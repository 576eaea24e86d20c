// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package i386

import (
	"debug/elf"
	"testing"

	"github.com/chenyang8094/ld386/internal/arch"
	"github.com/chenyang8094/ld386/internal/ld"
	"github.com/chenyang8094/ld386/internal/obj"
)

// testSection builds a one-section object whose relocations all
// reference syms[1] unless the relocation says otherwise.
func testSection(content []byte, rels []obj.Reloc, syms ...*ld.Symbol) *ld.InputSection {
	f := &ld.ObjectFile{Obj: &obj.File{Name: "a.o"}}
	null := ld.NewSymbol("")
	null.Weak = true
	f.Syms = append([]*ld.Symbol{null}, syms...)
	for _, s := range syms {
		if s.File == nil && !s.Imported {
			s.File = f
		}
	}
	sec := &obj.Section{
		Name:    ".text",
		Type:    elf.SHT_PROGBITS,
		Flags:   elf.SHF_ALLOC | elf.SHF_EXECINSTR,
		Content: content,
		Size:    uint32(len(content)),
		Relocs:  rels,
	}
	return &ld.InputSection{File: f, Sec: sec}
}

func scanCtx() *ld.Context {
	ctx := ld.NewContext(arch.I386)
	ctx.Relax = true
	return ctx
}

func TestScanSetsFlags(t *testing.T) {
	cases := []struct {
		typ  elf.R_386
		want uint32
	}{
		{elf.R_386_GOT32, ld.NeedsGot},
		{elf.R_386_GOTPC, ld.NeedsGot},
		{elf.R_386_TLS_LE, ld.NeedsGotTp},
		{elf.R_386_TLS_IE, ld.NeedsGotTp},
		{elf.R_386_TLS_GOTIE, ld.NeedsGotTp},
		{elf.R_386_GOTOFF, 0},
		{elf.R_386_SIZE32, 0},
		{elf.R_386_TLS_LDO_32, 0},
		{elf.R_386_PC32, 0},
	}
	for _, c := range cases {
		sym := ld.NewSymbol("x")
		isec := testSection(make([]byte, 16), []obj.Reloc{{Off: 4, Type: c.typ, Sym: 1}}, sym)
		ctx := scanCtx()
		scanRelocs(ctx, isec)
		if got := sym.Flags(); got != c.want {
			t.Errorf("%v: flags = %#x, want %#x", c.typ, got, c.want)
		}
	}
}

func TestScanPlt32(t *testing.T) {
	local := ld.NewSymbol("f")
	isec := testSection(make([]byte, 16), []obj.Reloc{{Off: 4, Type: elf.R_386_PLT32, Sym: 1}}, local)
	scanRelocs(scanCtx(), isec)
	if local.Flags()&ld.NeedsPlt != 0 {
		t.Error("local call got a PLT entry")
	}

	imp := ld.NewSymbol("g")
	imp.Imported = true
	imp.File = &ld.ObjectFile{}
	isec = testSection(make([]byte, 16), []obj.Reloc{{Off: 4, Type: elf.R_386_PLT32, Sym: 1}}, imp)
	scanRelocs(scanCtx(), isec)
	if imp.Flags()&ld.NeedsPlt == 0 {
		t.Error("imported call did not get a PLT entry")
	}
}

// A relaxable GOT32X load must not claim a GOT slot; anything without
// the mov prefix must.
func TestScanGot32XRelax(t *testing.T) {
	content := []byte{0, 0, 0x8b, 0x83, 0, 0, 0, 0}
	sym := ld.NewSymbol("v")
	isec := testSection(content, []obj.Reloc{{Off: 4, Type: elf.R_386_GOT32X, Sym: 1}}, sym)
	scanRelocs(scanCtx(), isec)
	if sym.Flags()&ld.NeedsGot != 0 {
		t.Error("relaxable load claimed a GOT slot")
	}

	content = []byte{0, 0, 0x03, 0x83, 0, 0, 0, 0} // add, not mov
	sym = ld.NewSymbol("v")
	isec = testSection(content, []obj.Reloc{{Off: 4, Type: elf.R_386_GOT32X, Sym: 1}}, sym)
	scanRelocs(scanCtx(), isec)
	if sym.Flags()&ld.NeedsGot == 0 {
		t.Error("unrelaxable load skipped its GOT slot")
	}

	// With relaxation off the slot is unconditional.
	sym = ld.NewSymbol("v")
	content = []byte{0, 0, 0x8b, 0x83, 0, 0, 0, 0}
	isec = testSection(content, []obj.Reloc{{Off: 4, Type: elf.R_386_GOT32X, Sym: 1}}, sym)
	ctx := scanCtx()
	ctx.Relax = false
	scanRelocs(ctx, isec)
	if sym.Flags()&ld.NeedsGot == 0 {
		t.Error("relax=false skipped the GOT slot")
	}
}

func TestScanTLSGdPairing(t *testing.T) {
	sym := ld.NewSymbol("t")
	sym.TLS = true
	helper := ld.NewSymbol("___tls_get_addr")

	// Relaxable pair: neither symbol requests anything.
	isec := testSection(make([]byte, 16), []obj.Reloc{
		{Off: 3, Type: elf.R_386_TLS_GD, Sym: 1},
		{Off: 8, Type: elf.R_386_PLT32, Sym: 2},
	}, sym, helper)
	scanRelocs(scanCtx(), isec)
	if sym.Flags() != 0 || helper.Flags() != 0 {
		t.Errorf("relaxed pair set flags %#x/%#x", sym.Flags(), helper.Flags())
	}

	// Position-independent output keeps the general-dynamic slot.
	sym = ld.NewSymbol("t")
	sym.TLS = true
	helper = ld.NewSymbol("___tls_get_addr")
	isec = testSection(make([]byte, 16), []obj.Reloc{
		{Off: 3, Type: elf.R_386_TLS_GD, Sym: 1},
		{Off: 8, Type: elf.R_386_PLT32, Sym: 2},
	}, sym, helper)
	ctx := scanCtx()
	ctx.Pic = true
	scanRelocs(ctx, isec)
	if sym.Flags()&ld.NeedsTLSGd == 0 {
		t.Error("pic scan did not request a TLSGD slot")
	}

	// A missing follower is a structural violation.
	sym = ld.NewSymbol("t")
	isec = testSection(make([]byte, 16), []obj.Reloc{
		{Off: 3, Type: elf.R_386_TLS_GD, Sym: 1},
	}, sym)
	mustFatal(t, func() { scanRelocs(scanCtx(), isec) })

	// So is a follower of the wrong type.
	sym = ld.NewSymbol("t")
	isec = testSection(make([]byte, 16), []obj.Reloc{
		{Off: 3, Type: elf.R_386_TLS_LDM, Sym: 1},
		{Off: 8, Type: elf.R_386_32, Sym: 1},
	}, sym)
	mustFatal(t, func() { scanRelocs(scanCtx(), isec) })
}

func TestScanTLSLdm(t *testing.T) {
	sym := ld.NewSymbol("t")
	rels := []obj.Reloc{
		{Off: 2, Type: elf.R_386_TLS_LDM, Sym: 1},
		{Off: 7, Type: elf.R_386_PLT32, Sym: 1},
	}
	ctx := scanCtx()
	scanRelocs(ctx, testSection(make([]byte, 16), rels, sym))
	if ctx.NeedsTLSLD() {
		t.Error("relaxed local-dynamic still requested a module-id slot")
	}

	ctx = scanCtx()
	ctx.Pic = true
	sym = ld.NewSymbol("t")
	scanRelocs(ctx, testSection(make([]byte, 16), rels, sym))
	if !ctx.NeedsTLSLD() {
		t.Error("pic local-dynamic did not request a module-id slot")
	}
}

func TestScanIFunc(t *testing.T) {
	sym := ld.NewSymbol("resolver")
	sym.IFunc = true
	sym.Func = true
	isec := testSection(make([]byte, 16), []obj.Reloc{{Off: 4, Type: elf.R_386_PC32, Sym: 1}}, sym)
	scanRelocs(scanCtx(), isec)
	if f := sym.Flags(); f&(ld.NeedsGot|ld.NeedsPlt) != ld.NeedsGot|ld.NeedsPlt {
		t.Errorf("ifunc flags = %#x, want GOT|PLT", f)
	}
}

// Scanning is an idempotent bit-union: a second pass over the same
// section must not change any symbol flag. The per-section dynrel
// count is not idempotent; it grows by the same amount each pass.
func TestScanIdempotent(t *testing.T) {
	sym := ld.NewSymbol("x")
	rels := []obj.Reloc{
		{Off: 4, Type: elf.R_386_GOT32, Sym: 1},
		{Off: 8, Type: elf.R_386_TLS_IE, Sym: 1},
	}
	isec := testSection(make([]byte, 16), rels, sym)
	ctx := scanCtx()
	scanRelocs(ctx, isec)
	first := sym.Flags()
	dynrels := isec.NumDynrel
	scanRelocs(ctx, isec)
	if sym.Flags() != first {
		t.Errorf("flags changed on rescan: %#x -> %#x", first, sym.Flags())
	}
	if isec.NumDynrel != 2*dynrels {
		// Dynrel counts are per-pass; the driver scans once.
		t.Errorf("dynrel count = %d after two passes of %d", isec.NumDynrel, dynrels)
	}
}

func TestScanUndefinedDedup(t *testing.T) {
	und := ld.NewSymbol("missing")
	f := &ld.ObjectFile{Obj: &obj.File{Name: "a.o"}}
	null := ld.NewSymbol("")
	null.Weak = true
	f.Syms = []*ld.Symbol{null, und}
	sec := &obj.Section{Name: ".text", Flags: elf.SHF_ALLOC, Size: 16, Content: make([]byte, 16),
		Relocs: []obj.Reloc{
			{Off: 0, Type: elf.R_386_32, Sym: 1},
			{Off: 4, Type: elf.R_386_PC32, Sym: 1},
			{Off: 8, Type: elf.R_386_GOT32, Sym: 1},
		}}
	isec := &ld.InputSection{File: f, Sec: sec}
	ctx := scanCtx()
	scanRelocs(ctx, isec)
	if n := ctx.NErrors(); n != 1 {
		t.Errorf("undefined symbol reported %d times, want 1", n)
	}

	weak := ld.NewSymbol("maybe")
	weak.Weak = true
	isec = testSection(make([]byte, 16), []obj.Reloc{{Off: 0, Type: elf.R_386_32, Sym: 1}}, weak)
	isec.File.Syms[1].File = nil
	ctx = scanCtx()
	scanRelocs(ctx, isec)
	if n := ctx.NErrors(); n != 0 {
		t.Errorf("undefined weak symbol reported %d times, want 0", n)
	}
}

func mustFatal(t *testing.T, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Error("expected a fatal link error")
		}
	}()
	f()
}
