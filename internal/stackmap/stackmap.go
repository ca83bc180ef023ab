// Package stackmap implements the stack-map registry (spec.md §3): a
// mapping from call-site return addresses to bit-vectors describing which
// stack slots hold object references at that point, for a future
// stop-and-copy collector to consult while walking frames from
// heap.Heap.RootFrame() down to the live stack pointer. Grounded on
// original_source/src/stackmap.c/.h.
package stackmap

// BitVector marks which of a frame's stack slots (0-indexed from the
// frame pointer) hold references.
type BitVector []bool

func (b BitVector) IsRef(slot int) bool {
	return slot < len(b) && b[slot]
}

// Registry maps call-site return addresses to their BitVector.
type Registry struct {
	byAddr map[uintptr]BitVector
}

func NewRegistry() *Registry {
	return &Registry{byAddr: map[uintptr]BitVector{}}
}

// Record associates a return address with the reference bit-vector in
// effect at that call site.
func (r *Registry) Record(retAddr uintptr, bv BitVector) {
	r.byAddr[retAddr] = bv
}

// Lookup finds the bit-vector for a return address, if any was recorded
// (a call to a built-in operator that needs no stack map leaves none).
func (r *Registry) Lookup(retAddr uintptr) (BitVector, bool) {
	bv, ok := r.byAddr[retAddr]
	return bv, ok
}

// Count is the number of call sites with a recorded map.
func (r *Registry) Count() int { return len(r.byAddr) }
