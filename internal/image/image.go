// Package image assembles every other package in this module into one
// runtime image (spec.md §2, §3's "Runtime image"): it drives the
// pipeline (name analysis -> type analysis -> definite-assignment ->
// heap/pool/trampoline setup -> baseline compile of the top-level entry
// point), owns the whole-program symbol/AST bookkeeping that
// internal/trampoline needs to compile callables on demand, and tears
// everything down afterwards.
//
// Grounded on original_source/src/atl.c (the original's top-level driver)
// and the teacher's link/main.go (architecture dispatch, then a single
// ld.Main call) and go/internal/base's command/error-sink bookkeeping,
// adapted from "assemble and link an object file" to "assemble and run a
// compiled image".
package image

import (
	"fmt"

	"avm/internal/addrstore"
	"avm/internal/ast"
	"avm/internal/class"
	"avm/internal/codebuf"
	"avm/internal/compiler"
	"avm/internal/config"
	"avm/internal/dataflow"
	"avm/internal/diag"
	"avm/internal/heap"
	"avm/internal/nameres"
	"avm/internal/stackmap"
	"avm/internal/symtab"
	"avm/internal/trampoline"
	"avm/internal/typ"
	"avm/internal/typecheck"
)

// Program is the assembled runtime image: every process-wide table and
// resource spec.md §5 lists, plus the bookkeeping internal/trampoline's
// Program interface needs to compile a callable on demand.
type Program struct {
	Users     *symtab.Table
	Builtins  *symtab.Builtins
	Selectors *symtab.SelectorTable
	Reporter  *diag.Reporter
	Config    config.Options

	Pool        *codebuf.Pool
	Heap        *heap.Heap
	StackMaps   *stackmap.Registry
	AddrStore   *addrstore.Store
	Runtime     *compiler.Runtime
	Compiler    *compiler.Compiler
	Trampolines *trampoline.Manager

	// AST is the whole, name-resolved-and-typed program (top-level
	// Children include every FunDef, ClassDef and synthesised
	// constructor FunDef typecheck.Checker.Run appended).
	AST *ast.Node

	staticMem []byte  // global-variable storage, addressed GP-relative
	entry     uintptr // $main's compiled entry point, set by Build

	descriptors map[*symtab.Symbol]*class.Descriptor
	classNodes  map[*symtab.Symbol]*ast.Node
	funcBodies  map[*symtab.Symbol]*ast.Node
}

// Build runs the whole pipeline over program (already produced by an
// external parser, per spec.md §1/§6) and returns an assembled,
// ready-to-run image, or an error if any semantic pass reported a
// diagnostic (spec.md §7: "a non-zero error count blocks progression").
func Build(program *ast.Node, cfg config.Options) (*Program, error) {
	users := symtab.NewUserTable()
	builtins := symtab.NewBuiltins()
	selectors := symtab.NewSelectorTable()
	reporter := &diag.Reporter{}

	nameres.New(users, builtins, selectors, reporter).Run(program)
	if reporter.Count() > 0 {
		return nil, reportErr("name", reporter)
	}

	typecheck.New(users, builtins, selectors, reporter, cfg).Run(program)
	if reporter.Count() > 0 {
		return nil, reportErr("type", reporter)
	}

	dataflow.Check(program, reporter)
	if reporter.Count() > 0 {
		return nil, reportErr("definite-assignment", reporter)
	}

	h, err := heap.New(cfg.HeapSize)
	if err != nil {
		return nil, err
	}
	pool := codebuf.NewPool(cfg.CodePoolInitial)
	maps := stackmap.NewRegistry()
	addrs := addrstore.New()

	rt := &compiler.Runtime{
		Heap:     h,
		Classes:  map[*symtab.Symbol]*class.Descriptor{},
		Reporter: reporter,
	}
	// Built-in boxed-scalar/string/array descriptors are installed
	// statically (spec.md §4.4): none of them exposes members through the
	// selector-hash probe (their layout is fixed and read directly by
	// internal/object), so each gets an empty member table.
	rt.BoxedIntDesc = class.New("int", builtins.BoxedInt, 0, 1, 0)
	rt.BoxedRealDesc = class.New("real", builtins.BoxedReal, 0, 1, 0)
	rt.StringDesc = class.New("string", builtins.String, 0, 0, 0)
	rt.ArrayDesc = class.New("array", builtins.Array, 0, 0, 0)
	// Every bridge entry point generated code can call is a top-level Go
	// function that recovers its Runtime from this package-level binding
	// (see compiler.Runtime.Activate's doc comment) rather than a bound
	// method closure, so it must be set before any trampoline can be
	// entered.
	rt.Activate()

	cc := compiler.New(pool, rt, maps, cfg, builtins, selectors)

	p := &Program{
		Users: users, Builtins: builtins, Selectors: selectors, Reporter: reporter, Config: cfg,
		Pool: pool, Heap: h, StackMaps: maps, AddrStore: addrs, Runtime: rt, Compiler: cc,
		AST:         program,
		descriptors: map[*symtab.Symbol]*class.Descriptor{},
		classNodes:  map[*symtab.Symbol]*ast.Node{},
		funcBodies:  map[*symtab.Symbol]*ast.Node{},
	}
	p.indexCallables(program)

	p.Trampolines = trampoline.New(pool, cc, rt, p, cfg)

	// Every callable symbol is bound to a trampoline before any body is
	// compiled (spec.md §4.8): a plain/constructor call site bakes this
	// address in as a call-time constant and never revisits it.
	for sym := range p.funcBodies {
		sym.Trampoline = symtab.CodeEntry(p.Trampolines.EntryFor(sym))
		p.AddrStore.Record(uintptr(sym.Trampoline), uintptr(sym.Trampoline)+trampolineRecordSpan, addrstore.Trampoline, sym.Name)
	}

	globals := program.Sym.LocalCount // repurposed to hold NextGlobal, see nameres.Analyzer.topSym
	if globals < 1 {
		globals = 1
	}
	p.staticMem = make([]byte, 8*globals)

	mainBody := filterDecls(program.Children)
	buf := cc.CompileTop(&ast.Node{Sym: program.Sym, Children: mainBody, TempSlot: -1})
	p.entry = buf.Entrypoint()
	p.AddrStore.Record(p.entry, p.entry+uintptr(buf.Used()), addrstore.Function, "$main")

	return p, nil
}

// trampolineRecordSpan is a nominal span recorded for addrstore entries
// keyed off a stub's start address alone (the exact stub length is an
// internal/trampoline implementation detail this package does not need).
const trampolineRecordSpan = 24

func reportErr(pass string, r *diag.Reporter) error {
	diags := r.Diagnostics()
	return fmt.Errorf("avm: %d %s error(s), first: %s", len(diags), pass, diags[0])
}

// filterDecls drops FunDef/ClassDef nodes from a top-level statement
// list: those are compiled lazily, on first call, through their
// trampoline (spec.md §4.8), never inlined into $main's own body.
func filterDecls(stmts []*ast.Node) []*ast.Node {
	out := make([]*ast.Node, 0, len(stmts))
	for _, n := range stmts {
		if n.Kind == ast.FunDef || n.Kind == ast.ClassDef {
			continue
		}
		out = append(out, n)
	}
	return out
}

// indexCallables walks program's top-level declarations once, building
// the symbol-to-body and class-to-declaration maps internal/trampoline's
// Program interface is implemented against.
func (p *Program) indexCallables(program *ast.Node) {
	for _, n := range program.Children {
		switch n.Kind {
		case ast.FunDef:
			if n.Sym != nil {
				p.funcBodies[n.Sym] = n
			}
		case ast.ClassDef:
			if n.Sym != nil {
				p.classNodes[n.Sym] = n
			}
			for _, member := range n.Children {
				if member.Kind == ast.MethodDef && member.Sym != nil {
					p.funcBodies[member.Sym] = member
				}
			}
		}
	}
}

// FuncBody implements trampoline.Program.
func (p *Program) FuncBody(sym *symtab.Symbol) *ast.Node {
	return p.funcBodies[sym]
}

// Symbol implements trampoline.Program: resolve a previously-interned id
// back to its *symtab.Symbol, across whichever of the user/built-in
// tables owns it (negative ids are built-in, spec.md §3).
func (p *Program) Symbol(id int32) *symtab.Symbol {
	if id < 0 {
		if s, ok := p.Builtins.Table.Lookup(id); ok {
			return s
		}
		return nil
	}
	s, _ := p.Users.Lookup(id)
	return s
}

// Descriptor implements trampoline.Program: instantiate classSym's
// descriptor the first time any instance of it is needed (spec.md §4.8
// step 1, §4.4's class construction), installing every declared field
// and method (each method's vtable slot initially pointing at its own
// trampoline, per spec.md §4.4: "initially pointing to the method's
// trampoline").
func (p *Program) Descriptor(classSym *symtab.Symbol) *class.Descriptor {
	if d, ok := p.descriptors[classSym]; ok {
		return d
	}
	node, ok := p.classNodes[classSym]
	if !ok {
		diag.Abort("image: no class declaration for %s", classSym)
	}

	nMembers := classSym.FieldCount + classSym.MethodCount
	d := class.New(classSym.Name, classSym, nMembers, classSym.FieldCount, classSym.MethodCount)

	methodIdx := 0
	for _, member := range node.Children {
		switch member.Kind {
		case ast.FieldDecl:
			sym := member.Sym
			if sym == nil {
				continue
			}
			d.InstallField(sym.SelectorID, sym.Offset, sym.Type != typ.INT)
		case ast.MethodDef:
			sym := member.Sym
			if sym == nil {
				continue
			}
			sym.Offset = methodIdx
			entry := p.Trampolines.EntryFor(sym)
			d.InstallMethod(sym.SelectorID, methodIdx, len(member.ParamNames), symtab.CodeEntry(entry))
			methodIdx++
		}
	}

	p.descriptors[classSym] = d
	p.Runtime.Classes[classSym] = d
	return d
}

// Run invokes the compiled top-level entry point directly (spec.md §6:
// "the image exposes one zero-argument function pointer for the main
// entry point... Its call convention is the host C ABI"), returning
// whatever is left in the return-value register.
//
// Generated code addresses every global variable GP-relative
// (internal/compiler/frame.go's globalDisp); since R15/GP is never
// otherwise written by anything this module emits, it only needs setting
// once here, before the very first instruction of compiled code ever
// runs, and stays valid for the rest of the program's execution, entered
// or re-entered through however many nested trampolines and method
// dispatches.
func (p *Program) Run() int64 {
	gp := uintptrOf(p.staticMem)
	// No stop-and-copy collector walks the stack in this build (spec.md's
	// Open Question on the optional data-flow/GC passes). The value
	// recorded as RootFrame here is the static-memory base address, not a
	// machine frame pointer.
	p.Heap.SetRootFrame(gp)
	return callEntry(p.entry, gp)
}

// InvocationCounts exposes how many times each symbol's body was
// actually dynamically compiled, for avmdump's -pprof dump (spec.md
// §4.8's "dead functions never compiled" made visible).
func (p *Program) InvocationCounts() addrstore.InvocationCounts {
	return p.Trampolines.InvocationCounts()
}

// Close releases every resource the image owns (spec.md §5: "All code
// buffers tied to the image are explicitly freed by the image
// destructor").
func (p *Program) Close() error {
	var firstErr error
	if err := p.Pool.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := p.Heap.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
