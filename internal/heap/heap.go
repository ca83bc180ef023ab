// Package heap implements the two-semispace heap (spec.md §4.9): bump
// pointer allocation within the active semispace, with a recorded root
// frame pointer so that a future stop-and-copy collector could walk the
// stack using the stack map (spec.md §3). Grounded on
// original_source/src/heap.c/.h.
package heap

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Heap owns two equal semispaces, allocated from one fixed anonymous
// mapping rounded up to a whole number of pages.
type Heap struct {
	mem        []byte // backs both semispaces, mem[:half] and mem[half:]
	half       int
	active     int // 0 or 1: which half is current
	bump       int // next free offset within the active half
	rootFrame  uintptr
	collections int
}

const pageSize = 4096

// New allocates a heap whose two semispaces together occupy at least
// totalSize bytes (rounded up to a whole number of pages).
func New(totalSize int) (*Heap, error) {
	n := (totalSize + pageSize - 1) &^ (pageSize - 1)
	if n < pageSize*2 {
		n = pageSize * 2
	}
	mem, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("heap: mmap %d bytes: %w", n, err)
	}
	return &Heap{mem: mem, half: n / 2}, nil
}

// SetRootFrame records the current frame pointer at the moment execution
// enters user code, per spec.md §4.9: this is the root a future
// stop-and-copy collector would walk the stack down from.
func (h *Heap) SetRootFrame(fp uintptr) { h.rootFrame = fp }

func (h *Heap) RootFrame() uintptr { return h.rootFrame }

func (h *Heap) activeBase() uintptr {
	return uintptrOf(h.mem) + uintptr(h.active*h.half)
}

// Allocate reserves size bytes for an object whose class pointer field is
// preset to classPtr (spec.md §4.9 step: "write the class pointer into
// the first word"). On insufficient space it invokes onOOM (the caller's
// out-of-memory handler, given the caller's frame pointer as the root)
// and retries exactly once, per spec.md.
func (h *Heap) Allocate(size int64, classPtr uintptr, callerFP uintptr, onOOM func()) (uintptr, error) {
	obj, ok := h.tryAllocate(size, classPtr)
	if ok {
		return obj, nil
	}
	h.SetRootFrame(callerFP)
	if onOOM != nil {
		onOOM()
	}
	h.collections++
	obj, ok = h.tryAllocate(size, classPtr)
	if !ok {
		return 0, fmt.Errorf("heap: out of memory after collection (requested %d bytes)", size)
	}
	return obj, nil
}

func (h *Heap) tryAllocate(size int64, classPtr uintptr) (uintptr, bool) {
	n := int(size)
	if h.bump+n > h.half {
		return 0, false
	}
	addr := h.activeBase() + uintptr(h.bump)
	h.bump += n
	setWord(addr, uint64(classPtr))
	return addr, true
}

// Flip switches the active semispace and resets the bump pointer,
// mirroring the moment a stop-and-copy collector would hand control back
// after evacuating the live set (the evacuation itself is out of scope:
// spec.md's Open Questions leave the optimisation/GC passes unspecified).
func (h *Heap) Flip() {
	h.active ^= 1
	h.bump = 0
}

func (h *Heap) Collections() int { return h.collections }

// Close releases the mapping backing both semispaces.
func (h *Heap) Close() error {
	if h.mem == nil {
		return nil
	}
	err := unix.Munmap(h.mem)
	h.mem = nil
	return err
}
