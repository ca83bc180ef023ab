package image

import "unsafe"

func uintptrOf(mem []byte) uintptr {
	if len(mem) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&mem[0]))
}

// callEntry jumps into compiled code at entry with R15/GP preloaded from
// gp (internal/compiler/frame.go's global-pointer convention, spec.md
// §4.7), and returns whatever entry left in RAX. entry is a zero-argument,
// System-V-like callable per spec.md §6's "Runtime entry": every other
// callable in the image is reached from inside entry's own call tree
// (trampolines, method dispatch), never from here again.
//
// This is the one place outside internal/emit where this module needs a
// specific machine register set from Go, which plain Go cannot express -
// matching how the rest of the toolchain's own runtime reaches for .s
// files (e.g. runtime's rt0_go) whenever a call boundary has to land in a
// register the Go compiler does not expose a name for.
func callEntry(entry, gp uintptr) int64
