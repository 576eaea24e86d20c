// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// ld386 links relocatable ELF32 i386 objects into a static
// executable.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/xyproto/env/v2"

	"github.com/chenyang8094/ld386/internal/i386"
	"github.com/chenyang8094/ld386/internal/ld"
	"github.com/chenyang8094/ld386/internal/obj"
	"github.com/chenyang8094/ld386/internal/stats"
	"github.com/chenyang8094/ld386/internal/symtab"
)

var (
	flagOut   = flag.String("o", "a.out", "write output to `file`")
	flagPic   = flag.Bool("pic", false, "produce a position-independent executable")
	flagRelax = flag.Bool("relax", true, "relax GOT and TLS access sequences")
	flagEntry = flag.String("e", "_start", "entry point `symbol`")
	flagTtext = flag.Uint("Ttext", 0x08048000, "base `address` of the image")
	flagStats = flag.Bool("stats", env.Bool("LD386_STATS"), "print link statistics")

	verbose = env.Bool("LD386_VERBOSE")
)

func main() {
	log.SetPrefix("ld386: ")
	log.SetFlags(0)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] object...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	be := i386.Backend()
	ctx := ld.NewContext(be.Arch)
	ctx.Pic = *flagPic
	ctx.Relax = *flagRelax
	ctx.ImageBase = uint32(*flagTtext)

	var objs []*obj.File
	for _, path := range flag.Args() {
		f, err := obj.Open(path)
		if err != nil {
			log.Fatal(err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "loaded %s: %d sections, %d symbols\n",
				f.Name, len(f.Sections), len(f.Syms))
		}
		objs = append(objs, f)
	}

	tab := symtab.NewTable()
	files := symtab.Resolve(ctx, tab, objs)

	p := &ld.Program{Ctx: ctx, Backend: be, Files: files}
	for _, f := range files {
		for _, isec := range f.Sections {
			if isec != nil {
				p.Sections = append(p.Sections, isec)
			}
		}
	}
	p.Syms = collectSyms(files, tab)
	p.Entry = tab.Get(*flagEntry)
	if p.Entry == nil || p.Entry.File == nil {
		log.Printf("warning: entry symbol %s not defined; using image base", *flagEntry)
		p.Entry = nil
	}

	if err := p.Link(); err != nil {
		log.Fatal(err)
	}
	tab.Freeze()

	if *flagStats {
		fmt.Print(stats.Collect(p.Sections, p.Syms).Format())
	}
	if verbose {
		if s, ok := tab.Addr(ctx.ImageBase); ok {
			fmt.Fprintf(os.Stderr, "first symbol: %s\n", s.Name)
		}
	}

	if err := ld.WriteImage(*flagOut, p.Image); err != nil {
		log.Fatal(err)
	}
}

// collectSyms builds the deterministic allocation order: for each file
// in turn, the symbols that file defines (its locals and the globals
// it won), then the remaining global table entries in creation order.
func collectSyms(files []*ld.ObjectFile, tab *symtab.Table) []*ld.Symbol {
	var syms []*ld.Symbol
	seen := make(map[*ld.Symbol]bool)
	for _, f := range files {
		for _, s := range f.Syms {
			if s != nil && !seen[s] && s.File == f {
				seen[s] = true
				syms = append(syms, s)
			}
		}
	}
	for _, s := range tab.Syms() {
		if !seen[s] {
			seen[s] = true
			syms = append(syms, s)
		}
	}
	return syms
}
