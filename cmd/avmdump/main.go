// Command avmdump builds a fixture program's runtime image without
// running it, then dumps whichever of its introspection surfaces were
// asked for: compiled-code disassembly, or a
// github.com/google/pprof profile of dyncomp invocation counts. It never
// runs the image's entry point — only the build-time passes.
//
// Grounded on asm/main.go's shape (a flag-driven, single-subject,
// single-file tool: parse flags, build one artifact, dump it) adapted
// from "assemble one file to an object" to "assemble one fixture to an
// image and inspect it".
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"avm/internal/addrstore"
	"avm/internal/config"
	"avm/internal/fixtures"
	"avm/internal/image"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("avmdump: ")

	cfg := config.Default()
	progName := flag.String("prog", "recursive-factorial", "fixture program to build (see -list)")
	list := flag.Bool("list", false, "list available fixture programs and exit")
	showAsm := flag.Bool("asm", false, "dump disassembly of every recorded code range ($main and each trampoline stub)")
	showPprof := flag.String("pprof", "", "write a pprof profile of dyncomp invocation counts to this path")
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if *list {
		for _, p := range fixtures.All() {
			fmt.Printf("%s\n", p.Name)
		}
		return
	}

	prog, ok := lookupProgram(*progName)
	if !ok {
		log.Fatalf("unknown -prog %q (see -list)", *progName)
	}

	img, err := image.Build(prog.Build(), cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer img.Close()

	if !*showAsm && *showPprof == "" {
		*showAsm = true // a bare invocation still shows something
	}

	if *showAsm {
		fmt.Print(addrstore.Disassemble(img.AddrStore))
	}

	if *showPprof != "" {
		if err := writeProfile(img, *showPprof); err != nil {
			log.Fatalf("%v", err)
		}
	}
}

func writeProfile(img *image.Program, path string) error {
	prof := addrstore.ExportProfile(img.AddrStore, img.InvocationCounts())
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return prof.Write(f)
}

func lookupProgram(name string) (fixtures.Program, bool) {
	for _, p := range fixtures.All() {
		if p.Name == name {
			return p, true
		}
	}
	return fixtures.Program{}, false
}

