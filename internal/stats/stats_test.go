// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats

import (
	"strings"
	"testing"

	"github.com/chenyang8094/ld386/internal/ld"
	"github.com/chenyang8094/ld386/internal/obj"
)

func TestCollect(t *testing.T) {
	mkSec := func(nrelocs int) *ld.InputSection {
		return &ld.InputSection{Sec: &obj.Section{Relocs: make([]obj.Reloc, nrelocs)}}
	}
	sections := []*ld.InputSection{mkSec(0), mkSec(4), mkSec(8)}

	got := ld.NewSymbol("g")
	got.GotIdx = 0
	plt := ld.NewSymbol("p")
	plt.PltIdx = 0
	tls := ld.NewSymbol("t")
	tls.TLSGdIdx = 1

	r := Collect(sections, []*ld.Symbol{got, plt, tls})
	if r.Sections != 3 || r.Relocs != 12 {
		t.Errorf("sections/relocs = %d/%d, want 3/12", r.Sections, r.Relocs)
	}
	if r.GotSlots != 3 || r.PltEntries != 1 || r.TLSSlots != 2 {
		t.Errorf("slots = %d got, %d plt, %d tls", r.GotSlots, r.PltEntries, r.TLSSlots)
	}
	if m := r.RelocDist.Mean(); m != 4 {
		t.Errorf("mean relocations = %v, want 4", m)
	}

	out := r.Format()
	for _, want := range []string{"sections: 3", "relocations: 12", "plt entries: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
