package addrstore

import (
	"fmt"
	"reflect"
	"strings"
	"unsafe"

	"golang.org/x/arch/x86/x86asm"

	"avm/internal/symtab"
)

// bytesAt views n bytes of RWX memory starting at addr, for disassembly
// purposes only.
func bytesAt(addr uintptr, n int) []byte {
	var s []byte
	hdr := (*reflect.SliceHeader)(unsafe.Pointer(&s))
	hdr.Data = addr
	hdr.Len = n
	hdr.Cap = n
	return s
}

// Disassemble renders every entry in s as annotated assembly text, in the
// style of avmdump's "-asm" dump surface (the in-scope half of spec.md
// §6's dump options: disassembly annotation, not AST/CFG dumps from a
// parser stage this module doesn't have). Each entry's header line carries
// its content fingerprint (avm/internal/symtab.Fingerprint) alongside its
// name, per SPEC_FULL.md §2's domain-stack binding for
// golang.org/x/crypto/blake2b.
func Disassemble(s *Store) string {
	var sb strings.Builder
	for _, e := range s.All() {
		code := bytesAt(e.Start, int(e.End-e.Start))
		fmt.Fprintf(&sb, "%s %s %x:\n", e.Kind, e.Name, symtab.Fingerprint(code))
		disassembleInstructions(&sb, e.Start, code)
	}
	return sb.String()
}

// DisassembleFunction renders the just-compiled body of one symbol, for
// config.Options.DebugAsm's "log disassembly of each compiled function"
// (SPEC_FULL.md §1).
func DisassembleFunction(name string, start uintptr, code []byte) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %x:\n", name, symtab.Fingerprint(code))
	disassembleInstructions(&sb, start, code)
	return sb.String()
}

func disassembleInstructions(sb *strings.Builder, start uintptr, code []byte) {
	off := 0
	for off < len(code) {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil || inst.Len == 0 {
			fmt.Fprintf(sb, "  %#x\t(bad)\n", start+uintptr(off))
			break
		}
		fmt.Fprintf(sb, "  %#x\t%s\n", start+uintptr(off), x86asm.GNUSyntax(inst, uint64(start+uintptr(off)), nil))
		off += inst.Len
	}
}
