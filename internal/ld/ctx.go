// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ld holds the machine-independent half of the linker: the
// link context, resolved symbols, section layout, the parallel
// scan/apply phase driver, and ELF output writing. The
// machine-dependent half plugs in through the Backend function table.
package ld

import (
	"debug/elf"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/chenyang8094/ld386/internal/arch"
)

// Context is the process-wide linker state. It is created by the
// driver, mutated through resolution, scan and allocation, and frozen
// before the apply phase. During the parallel phases the only mutable
// parts are the per-symbol atomic flag words, the needsTLSLD bit, and
// the diagnostics list.
type Context struct {
	Arch *arch.Arch

	// Pic is true when the output is loadable at any address (PIE
	// or shared object). It selects PLT encodings and the
	// absolute-relocation policies.
	Pic bool

	// Relax enables in-place instruction relaxations.
	Relax bool

	// ImageBase is the link-time base address of the output.
	ImageBase uint32

	// Section base addresses, fixed by layout before apply.
	GotAddr, GotPltAddr, PltAddr, PltGotAddr uint32

	// TpAddr is the run-time thread pointer; TLSBegin is the
	// start of the TLS template. Both are zero when the output
	// has no TLS segment.
	TpAddr, TLSBegin uint32

	// Buf is the whole output image. Input sections and synthetic
	// sections are disjoint slices of it.
	Buf []byte

	// RelDyn receives dynamic relocations at offsets reserved
	// during allocation from the counts taken during scan.
	RelDyn *RelDyn

	// TLSLdIdx is the GOT index of the two-word slot holding the
	// TLS local-dynamic module id, or -1.
	TLSLdIdx int32

	needsTLSLD atomic.Bool

	mu    sync.Mutex
	diags []string
}

func NewContext(a *arch.Arch) *Context {
	return &Context{Arch: a, TLSLdIdx: -1}
}

// SetNeedsTLSLD records that some section uses the TLS local-dynamic
// model without relaxation. Callable concurrently from the scan phase.
func (ctx *Context) SetNeedsTLSLD() {
	ctx.needsTLSLD.Store(true)
}

// NeedsTLSLD reports whether a TLS local-dynamic GOT slot is required.
func (ctx *Context) NeedsTLSLD() bool {
	return ctx.needsTLSLD.Load()
}

// TLSLdAddr returns the address of the local-dynamic module-id slot.
func (ctx *Context) TLSLdAddr() uint32 {
	return ctx.GotAddr + uint32(ctx.TLSLdIdx)*wordSize
}

// TLSSize returns the size of the TLS block as seen from the thread
// pointer.
func (ctx *Context) TLSSize() uint32 {
	return ctx.TpAddr - ctx.TLSBegin
}

// Errorf records a non-fatal link diagnostic. The link continues so
// that independent problems surface in one run; the driver fails if
// any diagnostic was recorded.
func (ctx *Context) Errorf(format string, args ...interface{}) {
	ctx.mu.Lock()
	ctx.diags = append(ctx.diags, fmt.Sprintf(format, args...))
	ctx.mu.Unlock()
}

// NErrors returns the number of diagnostics recorded so far.
func (ctx *Context) NErrors() int {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return len(ctx.diags)
}

// Diagnostics returns the recorded diagnostics, sorted for
// deterministic output across parallel runs.
func (ctx *Context) Diagnostics() []string {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	out := append([]string(nil), ctx.diags...)
	sort.Strings(out)
	return out
}

// fatalError unwinds a doomed link. Only Link recovers it.
type fatalError struct {
	msg string
}

func (e fatalError) Error() string { return e.msg }

// Fatalf reports a structural violation that makes continuing
// pointless (missing paired relocation, unsupported relocation in
// .eh_frame, unknown relocation after a successful scan) and
// terminates the link.
func (ctx *Context) Fatalf(format string, args ...interface{}) {
	panic(fatalError{fmt.Sprintf(format, args...)})
}

// CheckRange verifies that a narrow relocation's value fits its
// field, recording a diagnostic if not. The caller stores the
// truncated value either way; the link fails at exit.
func (ctx *Context) CheckRange(isec *InputSection, sym *Symbol, typ elf.R_386, val, lo, hi int64) {
	if val < lo || hi <= val {
		ctx.Errorf("%s: %s: relocation %v against %s out of range: %d is not in [%d, %d)",
			isec.File.Name(), isec.Name(), typ, sym.Name, val, lo, hi)
	}
}

// ReportUndefined records an undefined-symbol diagnostic once per
// symbol, however many relocations reference it.
func (ctx *Context) ReportUndefined(sym *Symbol, sec *InputSection) {
	if sym.setFlagOnce(flagUndefReported) {
		ctx.Errorf("%s: undefined symbol: %s", sec.File.Name(), sym.Name)
	}
}
