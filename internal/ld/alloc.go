// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ld

// The allocation phase is single-threaded: it turns the flag bits the
// scanner accumulated into concrete slot indexes and sizes, walking
// symbols in creation order so repeated links produce identical
// layouts.

// gotNeedsDynrel reports whether a symbol's plain GOT slot must be
// fixed up at load time. Mirrored by the GOT fill.
func gotNeedsDynrel(ctx *Context, s *Symbol) bool {
	return s.IFunc || (ctx.Pic && s.IsRelative())
}

// gotTpNeedsDynrel reports whether a GOTTP slot's tp-relative value
// is unknown until load time.
func gotTpNeedsDynrel(s *Symbol) bool {
	return s.Imported
}

func (p *Program) allocate() {
	ctx := p.Ctx

	// .got.plt[0..2] belong to the dynamic linker.
	p.gotPltSlots = 3
	got := 0

	for _, s := range p.Syms {
		f := s.Flags()
		if f&NeedsPlt != 0 {
			if f&NeedsGot != 0 {
				// The GOT slot already holds the final
				// address; a non-lazy trampoline is
				// enough.
				s.PltGotIdx = int32(len(p.pltGotSyms))
				p.pltGotSyms = append(p.pltGotSyms, s)
			} else {
				s.PltIdx = int32(len(p.pltSyms))
				p.pltSyms = append(p.pltSyms, s)
				s.GotPltIdx = int32(p.gotPltSlots)
				p.gotPltSlots++
			}
		}
		if f&NeedsGot != 0 {
			s.GotIdx = int32(got)
			got++
			if gotNeedsDynrel(ctx, s) {
				p.gotDynrels++
			}
		}
		if f&NeedsGotTp != 0 {
			s.GotTpIdx = int32(got)
			got++
			if gotTpNeedsDynrel(s) {
				p.gotDynrels++
			}
		}
		if f&NeedsTLSGd != 0 {
			// Module id, offset.
			s.TLSGdIdx = int32(got)
			got += 2
		}
		if f&NeedsTLSDesc != 0 {
			// Resolver, argument.
			s.TLSDescIdx = int32(got)
			got += 2
		}
	}
	if ctx.NeedsTLSLD() {
		ctx.TLSLdIdx = int32(got)
		got += 2
	}
	p.gotSlots = got

	// Reserve .rel.dyn ranges: GOT-side records first, then each
	// section's records in section order, so the parallel apply
	// phase writes at fixed offsets.
	off := uint32(p.gotDynrels) * uint32(ctx.Arch.RelSize)
	for _, isec := range p.Sections {
		isec.RelDynOff = off
		off += uint32(isec.NumDynrel) * uint32(ctx.Arch.RelSize)
	}
	p.numDynrel = int(off) / ctx.Arch.RelSize
}
