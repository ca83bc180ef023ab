// Command avm assembles and runs a whole-program runtime image (spec.md
// §6's "Runtime entry"). Lexing and parsing are out of scope for this
// module (spec.md §1): the program it runs is selected by name from
// internal/fixtures, which stands in for "an external parser" that has
// already produced an AST.
//
// Grounded on link/main.go's shape (parse flags, hand off to one
// driving call, exit with whatever status that call reports) adapted
// from "assemble an object file" to "assemble and run a compiled
// image".
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"avm/internal/config"
	"avm/internal/fixtures"
	"avm/internal/image"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("avm: ")

	cfg := config.Default()
	progName := flag.String("prog", "recursive-factorial", "fixture program to run (see -list)")
	list := flag.Bool("list", false, "list available fixture programs and exit")
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

	// os.Exit below never runs deferred calls, so close explicitly
	// rather than defer (the `exit` built-in, bridgeExit, exits the
	// process directly from inside a running image and bypasses this
	// entirely either way).
	code := img.Run()
	img.Close()
	os.Exit(int(code))
}

func lookupProgram(name string) (fixtures.Program, bool) {
	for _, p := range fixtures.All() {
		if p.Name == name {
			return p, true
		}
	}
	return fixtures.Program{}, false
}
