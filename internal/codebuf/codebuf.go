// Package codebuf implements the executable-code buffer allocator
// (spec.md §4.1): a process-wide pool of RWX memory pages, subdivided into
// variable-length buffers, threaded with a free list.
//
// Grounded on original_source/src/assembler-buffer.c's buffer-header /
// free-list-via-header-reuse design, and on the mmap-then-mprotect idiom
// used by other_examples/33950481_launix-de-memcp__scm-jit.go.go.
package codebuf

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const pageSize = 4096

// minGrowthBytes is the smallest pool growth the spec allows: "at least
// max(expected, 64 * page_size)".
const minGrowthBytes = 64 * pageSize

// region is one mmap'd RWX mapping owned by the Pool. A Pool may grow
// across several of these as demand exceeds the initial allocation.
type region struct {
	mem []byte
}

// freeSpan is one entry in the free list: an unused byte range within some
// region, described purely by addresses so the list can be threaded
// through the unused memory itself (mirroring the header-reuse trick in
// the original), without the Go GC needing to track these as pointers.
type freeSpan struct {
	regionIdx int
	off, size int
}

// Pool owns all RWX memory backing Buffers. Not safe for concurrent use
// (spec.md §5: the whole system is single-threaded).
type Pool struct {
	regions []region
	free    []freeSpan
}

// NewPool creates a pool, eagerly reserving an initial RWX mapping of at
// least initialHint bytes (config.Options.CodePoolInitial) so the first
// round of trampoline/function allocations doesn't immediately force a
// grow. A non-positive hint defers acquisition to the first New, as
// spec.md §4.1 describes for the zero-configuration case.
func NewPool(initialHint int) *Pool {
	p := &Pool{}
	if initialHint > 0 {
		p.grow(initialHint)
	}
	return p
}

// Buffer is a handle to a variable-length, growable region within the
// pool's RWX memory. The zero Buffer is not valid; obtain one from
// Pool.New.
type Buffer struct {
	pool      *Pool
	regionIdx int
	off       int // byte offset of this buffer's payload within its region
	cap       int
	used      int
}

// grow adds a fresh RWX mapping of at least n bytes (rounded up to a whole
// number of pages) to the pool and returns its region index.
func (p *Pool) grow(n int) int {
	if n < minGrowthBytes {
		n = minGrowthBytes
	}
	n = (n + pageSize - 1) &^ (pageSize - 1)
	mem, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		// Out-of-memory aborts the process (spec.md §4.1 Failure).
		panic(fmt.Sprintf("codebuf: mmap %d bytes: %v", n, err))
	}
	p.regions = append(p.regions, region{mem: mem})
	idx := len(p.regions) - 1
	p.free = append(p.free, freeSpan{regionIdx: idx, off: 0, size: n})
	return idx
}

// takeFree finds the first free span with size >= want, removes it from
// the free list and returns it (splitting off any remainder back into the
// free list).
func (p *Pool) takeFree(want int) (freeSpan, bool) {
	for i, f := range p.free {
		if f.size >= want {
			p.free = append(p.free[:i], p.free[i+1:]...)
			if f.size > want {
				p.free = append(p.free, freeSpan{regionIdx: f.regionIdx, off: f.off + want, size: f.size - want})
			}
			return freeSpan{regionIdx: f.regionIdx, off: f.off, size: want}, true
		}
	}
	return freeSpan{}, false
}

// New returns an empty buffer with at least `expected` bytes of capacity.
func (p *Pool) New(expected int) *Buffer {
	if expected <= 0 {
		expected = 16
	}
	span, ok := p.takeFree(expected)
	if !ok {
		idx := p.grow(expected)
		span, ok = p.takeFree(expected)
		if !ok {
			// The fresh region is exactly the rounded-up size and nothing
			// else could have consumed it between grow and takeFree
			// (single-threaded), so this is unreachable outside a bug.
			panic("codebuf: grow did not yield a usable span")
		}
		_ = idx
	}
	return &Buffer{pool: p, regionIdx: span.regionIdx, off: span.off, cap: span.size}
}

// Entrypoint returns a pointer to the first emitted byte.
func (b *Buffer) Entrypoint() uintptr {
	mem := b.pool.regions[b.regionIdx].mem
	return uintptrOf(mem[b.off:])
}

// Bytes exposes the buffer's used prefix, for disassembly/annotation.
func (b *Buffer) Bytes() []byte {
	mem := b.pool.regions[b.regionIdx].mem
	return mem[b.off : b.off+b.used]
}

// Cap and Used report the buffer's current capacity and in-use length.
func (b *Buffer) Cap() int  { return b.cap }
func (b *Buffer) Used() int { return b.used }

// Alloc appends n bytes, growing (and relocating) the buffer if its
// current capacity is insufficient, and returns a slice over the newly
// appended region. The slice is only valid until the next Alloc on this
// Buffer, since a growth copies the in-use prefix into a new span and
// frees the old one.
func (b *Buffer) Alloc(n int) []byte {
	if b.used+n > b.cap {
		b.growTo(b.used + n)
	}
	mem := b.pool.regions[b.regionIdx].mem
	start := b.off + b.used
	b.used += n
	return mem[start : start+n]
}

func (b *Buffer) growTo(need int) {
	newCap := b.cap * 2
	if newCap < need {
		newCap = need
	}
	span, ok := b.pool.takeFree(newCap)
	if !ok {
		b.pool.grow(newCap)
		span, ok = b.pool.takeFree(newCap)
		if !ok {
			panic("codebuf: grow did not yield a usable span")
		}
	}
	oldMem := b.pool.regions[b.regionIdx].mem[b.off : b.off+b.used]
	newMem := b.pool.regions[span.regionIdx].mem[span.off : span.off+span.size]
	copy(newMem, oldMem)
	b.pool.freeRaw(b.regionIdx, b.off, b.cap)
	b.regionIdx, b.off, b.cap = span.regionIdx, span.off, span.size
}

// freeListHeaderSize is the minimum span size worth keeping in the free
// list (spec.md §4.1 Terminate: "if the tail is at least one free-list
// header plus a few bytes"). A Go freeSpan carries no in-band header, but
// we still decline to track spans too small to ever satisfy a future
// request economically.
const freeListHeaderSize = 16

// Terminate trims the buffer to its used size (rounded up to pointer
// alignment, 8 bytes) and returns any sufficiently large tail to the free
// list.
func (b *Buffer) Terminate() {
	trimmed := (b.used + 7) &^ 7
	if trimmed > b.cap {
		trimmed = b.cap
	}
	tail := b.cap - trimmed
	if tail >= freeListHeaderSize {
		b.pool.freeRaw(b.regionIdx, b.off+trimmed, tail)
	}
	b.cap = trimmed
}

// Free prepends the whole buffer to the free list.
func (b *Buffer) Free() {
	b.pool.freeRaw(b.regionIdx, b.off, b.cap)
	b.cap, b.used = 0, 0
}

func (p *Pool) freeRaw(regionIdx, off, size int) {
	if size <= 0 {
		return
	}
	p.free = append([]freeSpan{{regionIdx: regionIdx, off: off, size: size}}, p.free...)
}

// FromEntrypoint recovers the Buffer whose payload starts at ptr. Kept for
// interface parity with spec.md §4.1; since Go Buffers are ordinary
// pointers this just requires the caller to have kept the *Buffer handle,
// so this is a thin identity helper for call sites that only have the
// entrypoint address to hand (e.g. when invoked from a trampoline patch).
func FromEntrypoint(all []*Buffer, ptr uintptr) (*Buffer, bool) {
	for _, b := range all {
		if b.Entrypoint() == ptr {
			return b, true
		}
	}
	return nil, false
}

// Close releases every RWX mapping the pool holds. Called once, at image
// teardown (spec.md §5).
func (p *Pool) Close() error {
	var firstErr error
	for _, r := range p.regions {
		if err := unix.Munmap(r.mem); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.regions = nil
	p.free = nil
	return firstErr
}
