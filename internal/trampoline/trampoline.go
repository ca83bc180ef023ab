// Package trampoline implements the self-patching trampoline and generic
// compiler-entry mechanism spec.md §4.8 calls "the system's distinguishing
// feature": every callable's call sites target a fixed trampoline address,
// assigned once at image build time, long before any function body exists.
// The first call through a trampoline runs the baseline compiler on demand
// and patches the trampoline in place to jump straight into the compiled
// body, so every later call skips the compiler entirely.
//
// Grounded on original_source/src/dyncomp.c's trampoline-stub-plus-generic-
// entry design, expressed the way internal/compiler's own "mailbox" bridge
// (bridge.go) already crosses from generated machine code into Go: a
// zero-argument top-level Go function entered directly through its code
// pointer, recovering whatever context it needs (here, the Manager) from
// a package-level binding rather than a closure.
package trampoline

import (
	"log"
	"unsafe"

	"avm/internal/addrstore"
	"avm/internal/ast"
	"avm/internal/class"
	"avm/internal/codebuf"
	"avm/internal/compiler"
	"avm/internal/config"
	"avm/internal/emit"
	"avm/internal/symtab"
)

// Program is the whole-program view the dynamic compiler needs beyond a
// single function body: resolving a symbol id back to its defining node,
// and instantiating a class's descriptor the first time any instance of it
// is built. internal/image supplies the concrete implementation, since it
// is the package that owns the whole parsed-and-resolved program tree.
type Program interface {
	// FuncBody returns the FunDef/MethodDef node a FuncSym was declared
	// with (spec.md §4.8 "look up the function/method/constructor AST
	// node for that symbol").
	FuncBody(sym *symtab.Symbol) *ast.Node
	// Descriptor returns classSym's descriptor, instantiating it (and
	// every declared method's vtable slot, initially its trampoline
	// address) the first time it is needed (spec.md §4.8 step 1).
	Descriptor(classSym *symtab.Symbol) *class.Descriptor
	// Symbol resolves a previously-interned id back to its *symtab.Symbol,
	// across whichever of the user/built-in tables owns it.
	Symbol(id int32) *symtab.Symbol
}

// Manager owns the generic compiler-entry stub and every per-callable
// trampoline. A Manager is only ever touched from the single goroutine
// running the compiled image (spec.md §5: the whole system is
// single-threaded), so it keeps no locks.
type Manager struct {
	pool *codebuf.Pool
	cc   *compiler.Compiler
	rt   *compiler.Runtime
	prog Program
	cfg  config.Options

	genericEntry uintptr
	stubs        map[int32]*codebuf.Buffer // symbol id -> its trampoline buffer
	invocations  map[string]int64          // symbol name -> dyncomp invocation count
}

// activeManager is the Manager belonging to the single compiled image
// currently executing (spec.md §5: single-threaded, one image at a
// time). The generic compiler-entry stub must call the dynamic-compile-
// function through a genuine top-level function's code pointer, never a
// bound method's — a bound method value is a closure, and
// reflect.Value.Pointer() on one returns the address of a "-fm" wrapper
// that expects its own funcval in a context register to recover the
// receiver, which nothing this package's generated stubs ever sets up
// (the same hazard internal/compiler's Runtime.Activate works around
// for its own bridge entries). dynamicCompileEntry, below, recovers the
// Manager from this package-level binding instead.
var activeManager *Manager

// New builds the generic compiler-entry stub and returns a Manager ready to
// hand out per-callable trampolines via EntryFor.
func New(pool *codebuf.Pool, cc *compiler.Compiler, rt *compiler.Runtime, prog Program, cfg config.Options) *Manager {
	m := &Manager{pool: pool, cc: cc, rt: rt, prog: prog, cfg: cfg, stubs: map[int32]*codebuf.Buffer{}, invocations: map[string]int64{}}
	activeManager = m
	m.genericEntry = m.emitGenericEntry()
	return m
}

// dynamicCompileEntry is the top-level function the generic compiler
// entry stub actually enters through its code pointer; see activeManager.
func dynamicCompileEntry() {
	activeManager.dynamicCompile()
}

// InvocationCounts returns how many times dynamicCompile actually ran for
// each symbol name seen so far — every name here was compiled at least
// once; a declared-but-never-called symbol (spec.md §4.8's "dead
// functions never compiled") simply has no entry. Exposed as
// addrstore.InvocationCounts for avmdump's -pprof dump.
func (m *Manager) InvocationCounts() addrstore.InvocationCounts {
	out := make(addrstore.InvocationCounts, len(m.invocations))
	for name, n := range m.invocations {
		out[name] = n
	}
	return out
}

// trampolineStubBytes is the byte length of the as-first-emitted, not-yet-
// patched trampoline stub: MovImm64+LoadAbs+CallAbs+Ret = 10+10+3+1. The
// patched form (LoadAbs+JmpAbs = 10+3) must fit within it, since
// codebuf.Buffer.Terminate reclaims everything past the buffer's used
// length back to the pool's free list.
const trampolineStubBytes = 24

// EntryFor returns sym's trampoline entry point, allocating and emitting a
// fresh stub the first time sym is asked for. Every callable symbol needs
// one assigned before any function body is compiled (spec.md §4.8): plain
// calls bake this address into generated code as a constant and never
// revisit it, relying entirely on the trampoline patching itself in place.
func (m *Manager) EntryFor(sym *symtab.Symbol) uintptr {
	if buf, ok := m.stubs[sym.ID]; ok {
		return buf.Entrypoint()
	}
	buf := m.pool.New(trampolineStubBytes)
	e := emit.New(buf)
	e.MovImm64(emit.RV, int64(sym.ID))
	e.LoadAbs(emit.Scratch, m.genericEntry)
	e.CallAbs(emit.Scratch)
	// Never reached in practice: the generic entry's own `ret` lands
	// directly in the compiled body (see emitGenericEntry), bypassing
	// this instruction. Kept so the stub is a well-formed instruction
	// stream rather than falling off the end.
	e.Ret()
	buf.Terminate()
	m.stubs[sym.ID] = buf
	return buf.Entrypoint()
}

// emitGenericEntry builds the one shared stub every trampoline calls into
// on its first invocation (spec.md §4.8 "generic compiler entry"):
//
//  1. save every argument register, so they survive the Go call below
//     untouched;
//  2. compute the address of this stub's own return-address slot — the
//     word a per-callable trampoline's CallAbs pushed, sitting just above
//     the six words just saved — and pass it, with the symbol id still in
//     RV, to the dynamic-compile-function;
//  3. call the dynamic-compile-function;
//  4. reload the argument registers;
//  5. return.
//
// Because step 3 overwrites that exact return-address slot with the
// newly compiled body's entry point, the `ret` in step 5 does not return
// to the per-callable trampoline at all: it jumps straight into the
// compiled body, with the original caller's own return address — one
// stack slot further down, never touched by any of this — left in place
// as that body's own return address, exactly as if the original caller
// had called it directly.
func (m *Manager) emitGenericEntry() uintptr {
	buf := m.pool.New(128)
	e := emit.New(buf)

	for i := 0; i < 6; i++ {
		e.Push(emit.Arg(i))
	}

	// [SP+48]: six 8-byte saves below it, this stub's own return address
	// (pushed by the trampoline's CallAbs) sits there.
	e.MovRegReg(emit.Scratch, emit.SP)
	e.MovImm64(emit.R10, 48)
	e.Add(emit.Scratch, emit.R10)

	e.LoadAbs(emit.R10, m.rt.BoxAddr("CompileSymID"))
	e.StoreMem(emit.R10, 0, emit.RV)
	e.LoadAbs(emit.R10, m.rt.BoxAddr("RetSlotAddr"))
	e.StoreMem(emit.R10, 0, emit.Scratch)

	e.LoadAbs(emit.Scratch, compiler.CodePtr(dynamicCompileEntry))
	e.CallAbs(emit.Scratch)

	for i := 5; i >= 0; i-- {
		e.Pop(emit.Arg(i))
	}
	e.Ret()

	buf.Terminate()
	return buf.Entrypoint()
}

// dynamicCompile is the dynamic-compile-function itself (spec.md §4.8):
// compile the requested symbol's body, record its entry point, patch the
// in-flight call's return-address slot, patch the trampoline buffer for
// every future call, and for a method, patch its class's vtable slot.
func (m *Manager) dynamicCompile() {
	id := int32(m.rt.Box.CompileSymID)
	retSlotAddr := m.rt.Box.RetSlotAddr

	sym := m.prog.Symbol(id)
	if sym == nil {
		log.Fatalf("avm: internal error: trampoline: unknown symbol id %d", id)
	}
	m.invocations[sym.Name]++

	if sym.HasFlag(symtab.Constructor) && sym.Parent != nil {
		// First construction of this class: instantiate its descriptor
		// and populate every method's vtable slot with its own
		// trampoline address (spec.md §4.8 step 1), before the
		// constructor body itself (which may well allocate instances
		// and dispatch methods on them) is compiled.
		m.prog.Descriptor(sym.Parent)
	}

	fn := m.prog.FuncBody(sym)
	if fn == nil {
		log.Fatalf("avm: internal error: trampoline: no body for %s", sym)
	}

	if m.cfg.DebugDyncomp {
		log.Printf("avm: dyncomp: compiling %s", sym)
	}

	buf := m.cc.CompileFunction(sym, fn)
	entry := buf.Entrypoint()

	if m.cfg.DebugAsm {
		log.Print(addrstore.DisassembleFunction(sym.Name, entry, buf.Bytes()))
	}

	sym.Code = symtab.CodeEntry(entry)
	sym.Flags |= symtab.Compiled

	*(*uintptr)(unsafe.Pointer(retSlotAddr)) = entry

	m.patch(sym, entry)

	if sym.HasFlag(symtab.Member) && sym.Parent != nil {
		desc := m.prog.Descriptor(sym.Parent)
		desc.PatchMethod(sym.Offset, symtab.CodeEntry(entry))
	}
}

// patch overwrites sym's trampoline stub in place so every subsequent call
// jumps straight to entry, skipping the compiler (spec.md §4.8 step 5).
// The stub's own backing memory never moves once allocated (the RWX pool
// never relocates a Terminate'd buffer), so this is a plain in-place byte
// overwrite — the same self-modifying-code trick the rest of this package
// already relies on. The replacement bytes are produced by emitting into a
// disposable scratch buffer (to reuse the emitter's own encoding instead of
// hand-rolling opcodes here), then copied into the live stub's memory.
func (m *Manager) patch(sym *symtab.Symbol, entry uintptr) {
	buf, ok := m.stubs[sym.ID]
	if !ok {
		// Nothing ever targeted this symbol's trampoline yet (e.g. a
		// constructor compiled ahead of its first call via class
		// instantiation) — still needs a stub for any later call site
		// that does bake its address in, so allocate one now and patch
		// it immediately.
		m.EntryFor(sym)
		buf = m.stubs[sym.ID]
	}
	before := symtab.Fingerprint(buf.Bytes())

	scratch := m.pool.New(16)
	e := emit.New(scratch)
	e.LoadAbs(emit.Scratch, entry)
	e.JmpAbs(emit.Scratch)
	patched := append([]byte(nil), scratch.Bytes()...)
	scratch.Free()
	copy(buf.Bytes(), patched)

	// sym.Fingerprint, a debug content hash (avm/internal/symtab), lets
	// avmdump and tests confirm this patch actually changed the stub's
	// bytes instead of silently no-opping.
	sym.Fingerprint = symtab.Fingerprint(buf.Bytes())
	if m.cfg.DebugDyncomp {
		log.Printf("avm: dyncomp: patched trampoline for %s: %x -> %x", sym.Name, before, sym.Fingerprint)
	}
}
