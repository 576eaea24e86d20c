// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symtab resolves symbols across input objects and provides
// fast name and address lookup over the result.
package symtab

import (
	"debug/elf"
	"sort"

	"github.com/chenyang8094/ld386/internal/ld"
	"github.com/chenyang8094/ld386/internal/obj"
)

// sttGNUIFunc is STT_GNU_IFUNC, the GNU extension symbol type (10)
// marking indirect functions. debug/elf does not define it.
const sttGNUIFunc = elf.SymType(10)

// Table is the global symbol table. Globals with the same name from
// different objects resolve to one Symbol.
type Table struct {
	name  map[string]*ld.Symbol
	order []*ld.Symbol // creation order, for deterministic allocation
	addr  []*ld.Symbol // set by Freeze
}

func NewTable() *Table {
	return &Table{name: make(map[string]*ld.Symbol)}
}

// Lookup returns the global symbol with the given name, creating an
// undefined placeholder on first use.
func (t *Table) Lookup(name string) *ld.Symbol {
	if s, ok := t.name[name]; ok {
		return s
	}
	s := ld.NewSymbol(name)
	t.name[name] = s
	t.order = append(t.order, s)
	return s
}

// Get returns the global symbol with the given name, or nil.
func (t *Table) Get(name string) *ld.Symbol {
	return t.name[name]
}

// Syms returns all global symbols in creation order. The caller must
// not modify the returned slice.
func (t *Table) Syms() []*ld.Symbol {
	return t.order
}

// Resolve binds the objects' symbol tables against the global table:
// locals get private symbols, globals share table entries, and a
// definition claims its entry unless a strong definition already did.
// Duplicate strong definitions are diagnostics, not fatal.
func Resolve(ctx *ld.Context, t *Table, objs []*obj.File) []*ld.ObjectFile {
	files := make([]*ld.ObjectFile, len(objs))
	for i, o := range objs {
		f := &ld.ObjectFile{Obj: o}
		f.Sections = make([]*ld.InputSection, len(o.Sections))
		for j, sec := range o.Sections {
			if sec != nil {
				f.Sections[j] = &ld.InputSection{File: f, Sec: sec}
			}
		}
		f.Syms = make([]*ld.Symbol, len(o.Syms))
		files[i] = f
	}

	for i, o := range objs {
		f := files[i]
		for j := range o.Syms {
			os := &o.Syms[j]
			if j == 0 {
				// The null symbol. Weak suppresses
				// undefined diagnostics for it.
				s := ld.NewSymbol("")
				s.Weak = true
				f.Syms[j] = s
				continue
			}
			if os.Local() {
				s := ld.NewSymbol(os.Name)
				bind(f, s, os)
				f.Syms[j] = s
				continue
			}
			s := t.Lookup(os.Name)
			f.Syms[j] = s
			if !os.Defined() {
				if os.Bind == elf.STB_WEAK && s.File == nil {
					s.Weak = true
				}
				continue
			}
			switch {
			case s.File == nil:
				bind(f, s, os)
			case s.Weak && os.Bind != elf.STB_WEAK:
				// A strong definition displaces a weak one.
				bind(f, s, os)
			case os.Bind == elf.STB_WEAK:
				// Keep the existing definition.
			default:
				ctx.Errorf("duplicate symbol: %s: defined in both %s and %s",
					os.Name, s.File.Name(), f.Name())
			}
		}
	}
	return files
}

// bind records a definition: the owning file and section, the
// pre-layout value, and the symbol kind bits the scanner consults.
func bind(f *ld.ObjectFile, s *ld.Symbol, os *obj.Sym) {
	s.File = f
	s.Value = os.Value
	s.Size = os.Size
	s.Weak = os.Bind == elf.STB_WEAK
	s.Func = os.Type == elf.STT_FUNC
	s.TLS = os.Type == elf.STT_TLS
	s.IFunc = os.Type == sttGNUIFunc
	switch os.Shndx {
	case elf.SHN_ABS:
		s.Absolute = true
	case elf.SHN_COMMON:
		s.Common = true
	default:
		if int(os.Shndx) < len(f.Sections) {
			s.Sec = f.Sections[os.Shndx]
		}
	}
}

// Freeze sorts defined symbols by address for Addr lookups. Call
// after layout has assigned final values.
func (t *Table) Freeze() {
	t.addr = t.addr[:0]
	for _, s := range t.order {
		if s.File != nil && !s.Absolute {
			t.addr = append(t.addr, s)
		}
	}
	sort.Slice(t.addr, func(i, j int) bool {
		if t.addr[i].Value != t.addr[j].Value {
			return t.addr[i].Value < t.addr[j].Value
		}
		return t.addr[i].Name < t.addr[j].Name
	})
}

// Addr returns the defined symbol containing addr.
func (t *Table) Addr(addr uint32) (*ld.Symbol, bool) {
	i := sort.Search(len(t.addr), func(i int) bool {
		return addr < t.addr[i].Value
	}) - 1
	if i < 0 {
		return nil, false
	}
	s := t.addr[i]
	if s.Size != 0 && addr >= s.Value+s.Size {
		return nil, false
	}
	return s, true
}
