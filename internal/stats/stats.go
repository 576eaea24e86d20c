// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stats summarizes a finished link: how relocations are
// distributed over input sections and how full the synthesized
// tables are.
package stats

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aclements/go-moremath/stats"

	"github.com/chenyang8094/ld386/internal/ld"
)

type Report struct {
	Sections   int
	Relocs     int
	RelocDist  stats.Sample
	GotSlots   int
	PltEntries int
	PltGot     int
	TLSSlots   int
}

// Collect gathers link statistics after allocation has run.
func Collect(sections []*ld.InputSection, syms []*ld.Symbol) *Report {
	r := &Report{}
	for _, isec := range sections {
		r.Sections++
		n := len(isec.Sec.Relocs)
		r.Relocs += n
		r.RelocDist.Xs = append(r.RelocDist.Xs, float64(n))
	}
	for _, s := range syms {
		if s.GotIdx != -1 {
			r.GotSlots++
		}
		if s.GotTpIdx != -1 {
			r.GotSlots++
			r.TLSSlots++
		}
		if s.TLSGdIdx != -1 {
			r.GotSlots += 2
			r.TLSSlots += 2
		}
		if s.TLSDescIdx != -1 {
			r.GotSlots += 2
			r.TLSSlots += 2
		}
		if s.PltIdx != -1 {
			r.PltEntries++
		}
		if s.PltGotIdx != -1 {
			r.PltGot++
		}
	}
	sort.Float64s(r.RelocDist.Xs)
	r.RelocDist.Sorted = true
	return r
}

// Format renders the report for the -stats flag.
func (r *Report) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "sections: %d, relocations: %d\n", r.Sections, r.Relocs)
	if len(r.RelocDist.Xs) > 0 {
		fmt.Fprintf(&b, "relocations per section: mean %.1f, median %.0f, p95 %.0f, max %.0f\n",
			r.RelocDist.Mean(), r.RelocDist.Quantile(0.5),
			r.RelocDist.Quantile(0.95), r.RelocDist.Quantile(1))
	}
	fmt.Fprintf(&b, "got slots: %d (tls %d), plt entries: %d, pltgot entries: %d\n",
		r.GotSlots, r.TLSSlots, r.PltEntries, r.PltGot)
	return b.String()
}
