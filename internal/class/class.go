// Package class implements the class descriptor: a fixed open-addressed
// hash table from selector id to (kind, offset), plus a vtable of method
// entry points (spec.md §3, §4.4).
package class

import (
	"fmt"

	"avm/internal/symtab"
)

// MemberKind distinguishes what a descriptor slot names.
type MemberKind int

const (
	Empty MemberKind = iota
	IntField
	ObjField
	Method
)

// slot is one hash-table entry. A zero-value slot (Kind == Empty) marks a
// miss during probing.
type slot struct {
	selector int
	offset   int
	kind     MemberKind
	nparams  int // for Method: declared parameter count, receiver excluded
}

// Descriptor is one class's runtime layout: the member hash table plus the
// vtable appended after it, matching the object-model contract that
// generated code relies on (spec.md §3's "Class descriptor").
type Descriptor struct {
	Name    string
	Sym     *symtab.Symbol
	mask    int // table_mask: table has mask+1 slots
	table   []slot
	Vtable  []symtab.CodeEntry // method entry points, indexed by declared vtable offset
	NFields int
	// FieldBitmap marks, for every field offset [0, NFields), whether that
	// field holds an object reference (for GC).
	FieldBitmap []bool
}

// tableSize computes 4 * 2^ceil(log2(members)), a power of two, per
// spec.md §3.
func tableSize(members int) int {
	if members <= 0 {
		members = 1
	}
	size := 1
	for size < members {
		size <<= 1
	}
	return size * 4
}

// New allocates a descriptor sized for nMembers selectors (fields +
// methods) and nVtableSlots vtable entries.
func New(name string, sym *symtab.Symbol, nMembers, nFields, nVtableSlots int) *Descriptor {
	size := tableSize(nMembers)
	return &Descriptor{
		Name:        name,
		Sym:         sym,
		mask:        size - 1,
		table:       make([]slot, size),
		Vtable:      make([]symtab.CodeEntry, nVtableSlots),
		NFields:     nFields,
		FieldBitmap: make([]bool, nFields),
	}
}

// probe returns the index of the slot selector would occupy, per the
// linear-probing scheme shared by install and Lookup.
func (d *Descriptor) probe(selector int) int {
	i := selector & d.mask
	for {
		if d.table[i].kind == Empty || d.table[i].selector == selector {
			return i
		}
		i = (i + 1) & d.mask
	}
}

// InstallField records a field member at the given selector and offset.
func (d *Descriptor) InstallField(selector, offset int, isObj bool) {
	kind := IntField
	if isObj {
		kind = ObjField
		if offset >= 0 && offset < len(d.FieldBitmap) {
			d.FieldBitmap[offset] = true
		}
	}
	i := d.probe(selector)
	d.table[i] = slot{selector: selector, offset: offset, kind: kind}
}

// InstallMethod records a method member at the given selector, installs
// its (initially trampoline) entry point into the vtable at vtableOffset,
// and returns that offset for convenience.
func (d *Descriptor) InstallMethod(selector, vtableOffset, nparams int, entry symtab.CodeEntry) int {
	i := d.probe(selector)
	d.table[i] = slot{selector: selector, offset: vtableOffset, kind: Method, nparams: nparams}
	d.Vtable[vtableOffset] = entry
	return vtableOffset
}

// PatchMethod updates the vtable slot for an already-installed method,
// e.g. once the dynamic compiler has produced its real body (spec.md
// §4.8 step 6).
func (d *Descriptor) PatchMethod(vtableOffset int, entry symtab.CodeEntry) {
	d.Vtable[vtableOffset] = entry
}

// lookupSlot probes for selector and returns the occupied slot, if any.
func (d *Descriptor) lookupSlot(selector int) (s slot, ok bool) {
	start := selector & d.mask
	i := start
	for {
		s = d.table[i]
		if s.kind == Empty {
			return slot{}, false
		}
		if s.selector == selector {
			return s, true
		}
		i = (i + 1) & d.mask
		if i == start {
			return slot{}, false
		}
	}
}

// Lookup probes for selector, matching the algorithm generated code
// must reproduce at runtime (spec.md §4.4 "Member lookup at runtime").
// ok is false on a miss.
func (d *Descriptor) Lookup(selector int) (kind MemberKind, offset int, ok bool) {
	s, found := d.lookupSlot(selector)
	if !found {
		return Empty, 0, false
	}
	return s.kind, s.offset, true
}

// Dispatch resolves a method call: Lookup must find a Method slot, whose
// offset indexes Vtable.
func (d *Descriptor) Dispatch(selector int) (entry symtab.CodeEntry, nparams int, err error) {
	s, ok := d.lookupSlot(selector)
	if !ok || s.kind != Method {
		return 0, 0, fmt.Errorf("class %s: no method for selector %d", d.Name, selector)
	}
	return d.Vtable[s.offset], s.nparams, nil
}
