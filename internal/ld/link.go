// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ld

import (
	"debug/elf"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/chenyang8094/ld386/internal/arch"
)

// Backend is the function table a machine back-end plugs into the
// linker. The split mirrors the phases: ScanRelocs runs before
// allocation, everything else after layout has frozen addresses.
type Backend struct {
	Arch *arch.Arch

	ScanRelocs         func(*Context, *InputSection)
	ApplyRelocAlloc    func(*Context, *InputSection)
	ApplyRelocNonAlloc func(*Context, *InputSection)

	WritePltHeader   func(*Context, []byte)
	WritePltEntry    func(*Context, []byte, *Symbol)
	WritePltGotEntry func(*Context, []byte, *Symbol)
}

// A Program is one link in progress: the context, the inputs, and the
// state the phases hand to each other.
type Program struct {
	Ctx     *Context
	Backend *Backend
	Files   []*ObjectFile

	// Syms lists every resolved symbol in creation order, which
	// makes slot allocation deterministic across runs.
	Syms []*Symbol

	// Entry is the program entry symbol, or nil.
	Entry *Symbol

	// Image is the finished output, set by Link on success.
	Image []byte

	// Sections lists the live input sections in input order.
	Sections []*InputSection

	// Slot allocation results.
	pltSyms    []*Symbol // lazy PLT entries, by PltIdx
	pltGotSyms []*Symbol // non-lazy trampolines, by PltGotIdx
	gotSlots   int       // .got size in words
	gotPltSlots int      // .got.plt size in words (incl. 3 reserved)
	gotDynrels int       // dynamic relocations emitted for GOT slots
	numDynrel  int       // total dynamic relocation records

	layout layout
}

// Link runs the whole pipeline: scan, allocate, layout, materialize.
// It returns the accumulated diagnostics as an error if any were
// recorded; a structural violation aborts immediately.
func (p *Program) Link() (err error) {
	defer func() {
		if r := recover(); r != nil {
			fe, ok := r.(fatalError)
			if !ok {
				panic(r)
			}
			err = fe
		}
	}()

	p.scanPhase()
	p.allocate()
	p.doLayout()
	p.materialize()

	if n := p.Ctx.NErrors(); n > 0 {
		return fmt.Errorf("%s\nlink failed with %d error(s)",
			strings.Join(p.Ctx.Diagnostics(), "\n"), n)
	}
	return nil
}

// scanPhase scans every allocatable section's relocations, one
// goroutine per section. Symbol flag words absorb the results via
// atomic OR; a barrier (errgroup Wait) separates scan from
// allocation.
func (p *Program) scanPhase() {
	p.parallel(func(isec *InputSection) {
		if isec.Sec.Alloc() && !isec.Discarded {
			p.Backend.ScanRelocs(p.Ctx, isec)
		}
	})
}

// applyPhase patches the relocation sites of every section; the PLT
// has already been written by writePlt. Sections own
// disjoint output slices and pre-reserved .rel.dyn ranges, so the
// goroutines share nothing mutable but the diagnostics list.
func (p *Program) applyPhase() {
	p.parallel(func(isec *InputSection) {
		if isec.Discarded || isec.Sec.Type == elf.SHT_NOBITS {
			return
		}
		if isec.Sec.Alloc() {
			p.Backend.ApplyRelocAlloc(p.Ctx, isec)
		} else if len(isec.Sec.Relocs) > 0 {
			p.Backend.ApplyRelocNonAlloc(p.Ctx, isec)
		}
	})
}

// parallel runs fn over every input section, capped at GOMAXPROCS
// workers. A Fatalf inside a worker surfaces as a fatalError panic on
// the caller.
func (p *Program) parallel(fn func(*InputSection)) {
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, isec := range p.Sections {
		isec := isec
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					fe, ok := r.(fatalError)
					if !ok {
						panic(r)
					}
					err = fe
				}
			}()
			fn(isec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		panic(fatalError{err.Error()})
	}
}
