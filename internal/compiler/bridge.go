// Package compiler implements the baseline compiler (spec.md §4.7): a
// single-pass recursive translation of one typed function/method/
// constructor body into amd64 machine code emitted through
// internal/emit, using the frame layout and calling convention described
// there. Grounded on original_source/src/compiler.c.
package compiler

import (
	"bytes"
	"fmt"
	"os"
	"reflect"
	"unsafe"

	"avm/internal/class"
	"avm/internal/diag"
	"avm/internal/heap"
	"avm/internal/object"
	"avm/internal/symtab"
)

// Runtime is the handful of operations generated code cannot reduce to
// plain address arithmetic: heap allocation, class-member lookup
// (spec.md §4.4's hash probe), object equality, and reporting a runtime
// failure. Every bridge method below takes no arguments and returns
// nothing; the values it needs are written into its own Box fields by
// the emitted code immediately before the call (an absolute-address
// store, the same trick already used for baking codebuf/heap addresses
// as load-immediates), and any result is written back into Box for the
// emitted code to load afterwards.
//
// This "mailbox" avoids needing a real calling-convention bridge between
// the hand-rolled System-V-like convention internal/emit targets and
// Go's own internal register ABI. It works because generated code never
// switches stack or OS thread: it runs inline on the same goroutine that
// entered the runtime image, so the goroutine-pointer register (R14 in
// Go's ABI) is left exactly as Go last set it — and R14 is callee-saved
// in this package's own convention (internal/emit.CalleeSaved), so
// nothing the baseline compiler emits ever writes to it. A zero-argument,
// zero-return Go function can therefore be entered directly through its
// code pointer, with CallAbs, exactly like any other callable — as long
// as that function value is a genuine top-level function, never a bound
// method with a captured receiver (see activeRuntime below for why).
type Runtime struct {
	Heap     *heap.Heap
	Classes  map[*symtab.Symbol]*class.Descriptor
	Reporter *diag.Reporter

	// The built-in boxed-scalar/array descriptors, needed by
	// bridgeObjectEquality (value comparison vs. pointer identity) and by
	// every array literal's allocate call.
	BoxedIntDesc  *class.Descriptor
	BoxedRealDesc *class.Descriptor
	StringDesc    *class.Descriptor
	ArrayDesc     *class.Descriptor

	Box Mailbox
}

// activeRuntime is the Runtime belonging to the single compiled image
// currently executing (spec.md §5: the whole system is single-threaded,
// one image runs at a time). Activate records it here so the bridge
// entry points below can be genuine top-level Go functions instead of
// bound methods.
//
// This matters because a bound method value (rt.bridgeAllocate, say)
// is a closure: reflect.Value.Pointer() on it returns the address of an
// auto-generated "-fm" wrapper that expects the closure's own funcval
// in a context register, and uses that to recover the receiver before
// tail-calling the real method — see the explicit caveat on
// reflect.Value.Pointer's doc comment ("the returned pointer is an
// underlying code pointer, but not necessarily enough to identify a
// single function uniquely"). Nothing this package emits ever sets up
// that context register, so jumping to a bound method's code pointer
// via CallAbs would read its receiver from whatever happens to be
// sitting there — not rt. A plain top-level function has no such
// wrapper: its code pointer is its real entry point, and it can recover
// rt on its own, from this package-level variable, with no register
// handoff required.
var activeRuntime *Runtime

// Activate records rt as the Runtime the package-level bridge functions
// below operate on. Must be called once Runtime's boxed built-in
// descriptors are installed and before any generated code can reach a
// bridge entry point.
func (rt *Runtime) Activate() {
	activeRuntime = rt
}

// Mailbox holds the argument/result cells every bridge call reads and
// writes. Field addresses are obtained via BoxAddr and baked into
// generated code as load-immediates, exactly like any other fixed
// runtime address. Every field is a full machine word (int64/uintptr),
// even the ones that only ever hold a small tag, so that generated code's
// uniform 8-byte StoreMem/LoadMem never spills into a neighbouring field
// — unlike Go's own field accesses in the bridge methods below, a raw
// store through this package's emitter has no notion of a 4-byte field.
type Mailbox struct {
	Size         int64
	ClassPtr     uintptr
	Selector     int64
	LHS, RHS     uintptr
	Result       uintptr
	ResultKind   int64
	ResultOffset int64
	FailKind     int64
	FailLine     int64

	// CompileSymID/RetSlotAddr are the dynamic-compile-function's own
	// argument cells (spec.md §4.8): the symbol id to compile, and the
	// address of the stack slot the generic compiler entry's own `ret`
	// will consume, for internal/trampoline to overwrite with the newly
	// compiled body's entry point.
	CompileSymID int64
	RetSlotAddr  uintptr
}

// BoxAddr returns the absolute address of one named Mailbox field, for
// the compiler to bake in as a load-immediate target.
func (rt *Runtime) BoxAddr(field string) uintptr {
	v := reflect.ValueOf(&rt.Box).Elem().FieldByName(field)
	if !v.IsValid() {
		diag.Abort("compiler: no such mailbox field %q", field)
	}
	return v.UnsafeAddr()
}

// codePtr returns the native entry point of a Go function value. Every
// use of it in this package passes a plain top-level function, never a
// bound method — see activeRuntime's doc comment for why that
// distinction is load-bearing here.
func codePtr(fn interface{}) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

// CodePtr exposes codePtr to internal/trampoline, whose generic compiler
// entry stub calls the dynamic-compile-function the same way every other
// bridge function is called: a top-level Go function entered directly
// through its code pointer (spec.md §4.8). Like every bridge entry
// point, the function passed here must not be a bound method.
func CodePtr(fn interface{}) uintptr { return codePtr(fn) }

func (rt *Runtime) AllocateEntry() uintptr       { return codePtr(bridgeAllocate) }
func (rt *Runtime) LookupEntry() uintptr         { return codePtr(bridgeLookup) }
func (rt *Runtime) DispatchEntry() uintptr       { return codePtr(bridgeDispatch) }
func (rt *Runtime) ObjectEqualityEntry() uintptr { return codePtr(bridgeObjectEquality) }
func (rt *Runtime) TrapEntry() uintptr           { return codePtr(bridgeTrap) }
func (rt *Runtime) PrintIntEntry() uintptr       { return codePtr(bridgePrintInt) }
func (rt *Runtime) PrintObjEntry() uintptr       { return codePtr(bridgePrintObj) }
func (rt *Runtime) ExitEntry() uintptr           { return codePtr(bridgeExit) }

// descriptorFromAddr reconstructs the typed descriptor pointer from the
// raw address generated code carries around in an object's class-pointer
// word (itself produced by descriptorAddr, below) — a round trip through
// unsafe.Pointer, valid because the address always originates from a live
// *class.Descriptor this same process allocated and keeps reachable via
// Runtime.Classes.
func descriptorFromAddr(addr uintptr) *class.Descriptor {
	return (*class.Descriptor)(unsafe.Pointer(addr))
}

// descriptorAddr is the inverse of descriptorFromAddr: the stable address
// baked into a newly allocated object's class-pointer word.
func descriptorAddr(d *class.Descriptor) uintptr {
	return uintptr(unsafe.Pointer(d))
}

// bridgeAllocate services the `allocate(class-id)` built-in (spec.md
// §4.7): the class descriptor's address is already in Box.ClassPtr (a
// compile-time constant, baked by the compiler — allocate only ever
// appears inside a class's own synthesised constructor, compiled after
// the dynamic-compile driver has already created that class's descriptor,
// spec.md §4.8 step 1), Box.Size is the object's byte size.
func bridgeAllocate() {
	rt := activeRuntime
	obj, err := rt.Heap.Allocate(rt.Box.Size, rt.Box.ClassPtr, rt.Heap.RootFrame(), nil)
	if err != nil {
		rt.Reporter.Errorf(diag.MemoryExhausted, 0, "%v", err)
		diag.Abort("heap allocation failed: %v", err)
	}
	rt.Box.Result = obj
}

// bridgeLookup services plain member access (spec.md §4.4's "member
// lookup at runtime"): Box.ClassPtr is the receiver's class-pointer word,
// read from the object at runtime (not known at compile time in
// general); Box.Selector is the compile-time-known selector id.
func bridgeLookup() {
	rt := activeRuntime
	desc := descriptorFromAddr(rt.Box.ClassPtr)
	kind, offset, ok := desc.Lookup(int(rt.Box.Selector))
	if !ok {
		rt.trap(diag.RuntimeFailure, "no member for selector")
		return
	}
	rt.Box.ResultKind = int64(kind)
	rt.Box.ResultOffset = int64(offset)
}

// bridgeDispatch services method calls (spec.md §4.7 "Method call").
func bridgeDispatch() {
	rt := activeRuntime
	desc := descriptorFromAddr(rt.Box.ClassPtr)
	entry, _, err := desc.Dispatch(int(rt.Box.Selector))
	if err != nil {
		rt.trap(diag.RuntimeFailure, err.Error())
		return
	}
	rt.Box.Result = uintptr(entry)
}

// bridgeObjectEquality services `==` once both operands have been
// promoted to OBJ (spec.md §4.7's "equality" emission template): compare
// identity first, then unbox-and-compare for the scalar built-in
// classes, matching original_source's `object_equality` helper.
func bridgeObjectEquality() {
	rt := activeRuntime
	lhs, rhs := rt.Box.LHS, rt.Box.RHS
	var eq bool
	switch {
	case lhs == 0 && rhs == 0:
		eq = true
	case lhs == 0 || rhs == 0:
		eq = false
	case lhs == rhs:
		eq = true
	default:
		eq = rt.scalarEquals(lhs, rhs)
	}
	if eq {
		rt.Box.Result = 1
	} else {
		rt.Box.Result = 0
	}
}

// scalarEquals handles the value-equality cases object_equality in
// original_source distinguishes from plain pointer identity: two boxed
// ints/reals with the same value, or two strings with the same bytes,
// compare equal even when they are distinct heap objects.
func (rt *Runtime) scalarEquals(lhs, rhs uintptr) bool {
	lc, rc := object.ClassPtr(lhs), object.ClassPtr(rhs)
	if lc != rc {
		return false
	}
	switch lc {
	case descriptorAddr(rt.BoxedIntDesc):
		return object.IntValue(lhs) == object.IntValue(rhs)
	case descriptorAddr(rt.BoxedRealDesc):
		return object.RealValue(lhs) == object.RealValue(rhs)
	case descriptorAddr(rt.StringDesc):
		return bytes.Equal(object.StringBytes(lhs), object.StringBytes(rhs))
	default:
		return false
	}
}

func (rt *Runtime) trap(kind diag.Kind, msg string) {
	rt.Reporter.Errorf(kind, int(rt.Box.FailLine), "%s", msg)
	diag.Abort("runtime failure: %s", msg)
}

// bridgeTrap reports whatever failure the emitted code staged into
// Box.FailKind/Box.FailLine (an out-of-bounds index, a failed `is`-guard
// on a convert, a failed assert) and aborts, mirroring the rest of the
// pipeline's "diagnose then stop" policy — unlike name/type analysis,
// spec.md §4.9 gives the running program no way to recover from one of
// these. An assertion failure gets its own message, per SPEC_FULL.md §4's
// `assertion failed at line %d` (original_source's debugger.c/av-dump.c
// convention); every other fail kind keeps the generic message.
func bridgeTrap() {
	rt := activeRuntime
	kind := diag.Kind(int(rt.Box.FailKind))
	line := int(rt.Box.FailLine)
	if kind == diag.AssertionFailure {
		rt.trap(kind, fmt.Sprintf("assertion failed at line %d", line))
		return
	}
	rt.trap(kind, "runtime check failed")
}

// bridgePrintInt services `print` applied to a raw INT-typed expression
// (spec.md §4.7): the value itself, never boxed, sits in Box.Size.
func bridgePrintInt() {
	fmt.Println(activeRuntime.Box.Size)
}

// bridgePrintObj services `print` applied to an OBJ-typed expression:
// Box.Result is the object pointer, formatted according to its dynamic
// class (a string prints its bytes, a boxed int/real its value, anything
// else a generic class-name placeholder), matching original_source's
// print_value dispatch.
func bridgePrintObj() {
	rt := activeRuntime
	obj := rt.Box.Result
	if obj == 0 {
		fmt.Println("null")
		return
	}
	switch object.ClassPtr(obj) {
	case descriptorAddr(rt.BoxedIntDesc):
		fmt.Println(object.IntValue(obj))
	case descriptorAddr(rt.BoxedRealDesc):
		fmt.Println(object.RealValue(obj))
	case descriptorAddr(rt.StringDesc):
		fmt.Println(string(object.StringBytes(obj)))
	default:
		fmt.Println(descriptorFromAddr(object.ClassPtr(obj)).Name)
	}
}

// bridgeExit services `exit`: Box.Size carries the process exit code.
func bridgeExit() {
	os.Exit(int(activeRuntime.Box.Size))
}
