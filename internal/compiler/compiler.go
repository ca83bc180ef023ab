package compiler

import (
	"avm/internal/ast"
	"avm/internal/codebuf"
	"avm/internal/config"
	"avm/internal/diag"
	"avm/internal/emit"
	"avm/internal/object"
	"avm/internal/stackmap"
	"avm/internal/symtab"
)

// Compiler owns the resources a single-function compilation borrows:
// the RWX pool bodies are emitted into, the runtime bridge, the stack-map
// registry (held here; no call site records a stack map in it), and the
// configured options (bounds checks, array element storage type).
type Compiler struct {
	Pool      *codebuf.Pool
	Runtime   *Runtime
	StackMaps *stackmap.Registry
	Config    config.Options
	Builtins  *symtab.Builtins
	Selectors *symtab.SelectorTable

	strings map[string]uintptr // interned string-literal objects, by source text
}

func New(pool *codebuf.Pool, rt *Runtime, maps *stackmap.Registry, cfg config.Options, builtins *symtab.Builtins, selectors *symtab.SelectorTable) *Compiler {
	return &Compiler{Pool: pool, Runtime: rt, StackMaps: maps, Config: cfg, Builtins: builtins, Selectors: selectors, strings: map[string]uintptr{}}
}

// internString eagerly allocates a heap-resident String object for s the
// first time it is seen by any compiled function, and returns its stable
// address thereafter — this runs at compile time, as a plain Go call into
// the same heap generated code allocates from, not through the mailbox
// bridge (spec.md §4.7's string literal handling needs no runtime support
// at all once the object exists).
func (c *Compiler) internString(s string) uintptr {
	if addr, ok := c.strings[s]; ok {
		return addr
	}
	size := object.StringSize(int64(len(s)))
	obj, err := c.Runtime.Heap.Allocate(size, descriptorAddr(c.Runtime.StringDesc), c.Runtime.Heap.RootFrame(), nil)
	if err != nil {
		diag.Abort("compiler: failed to intern string literal: %v", err)
	}
	object.SetStringBytes(obj, []byte(s))
	c.strings[s] = obj
	return obj
}

// CompileFunction translates one function, method or (synthesised)
// constructor body into a fresh native code buffer (spec.md §4.7). fn is
// the FunDef/MethodDef node; sym is its symbol (already carrying
// LocalCount/TempCount/SelfSlot from name analysis, and ParamTypes from
// type analysis).
func (c *Compiler) CompileFunction(sym *symtab.Symbol, fn *ast.Node) *codebuf.Buffer {
	buf := c.Pool.New(512)
	e := emit.New(buf)

	hasSelf := sym.SelfSlot >= 0
	nParams := len(fn.ParamSyms)
	words := frameWords(sym, nParams)
	frameBytes := align16(int32(words) * 8)

	ctx := &Context{e: e, rt: c.Runtime, cc: c, sym: sym, hasSelf: hasSelf, nParams: nParams}

	// Prologue: callee saves the frame pointer on entry (spec.md §4.7's
	// calling convention).
	e.Push(emit.FP)
	e.MovRegReg(emit.FP, emit.SP)
	if frameBytes > 0 {
		e.SubSP(frameBytes)
	}

	argIdx := 0
	if hasSelf {
		e.StoreMem(emit.FP, ctx.selfDisp(), emit.Arg(argIdx))
		argIdx++
	}
	for i := range fn.ParamSyms {
		if argIdx < 6 {
			e.StoreMem(emit.FP, ctx.paramDisp(i), emit.Arg(argIdx))
		} else {
			// An incoming overflow argument sits in the caller's frame,
			// at [FP+16+...]: 8 for the return address the call pushed,
			// 8 for the saved FP we just pushed ourselves.
			off := int32(16 + (argIdx-6)*8)
			e.LoadMem(emit.Scratch, emit.FP, off)
			e.StoreMem(emit.FP, ctx.paramDisp(i), emit.Scratch)
		}
		argIdx++
	}

	body := fn.Children[len(fn.Children)-1]
	ctx.stmt(body)

	// Fallthrough epilogue, for a body that never executes an explicit
	// return statement (every `return` below emits its own, identical,
	// restore-and-ret sequence inline, since there is no shared epilogue
	// label to jump to).
	c.emitReturn(ctx)

	buf.Terminate()
	return buf
}

// CompileTop compiles the top-level program body as one function-like
// entry under program.Sym ("$main"), for cmd/avm's driver.
func (c *Compiler) CompileTop(program *ast.Node) *codebuf.Buffer {
	fn := &ast.Node{Kind: ast.FunDef, Sym: program.Sym, Children: []*ast.Node{{Kind: ast.Block, Children: program.Children, TempSlot: -1}}, TempSlot: -1}
	return c.CompileFunction(program.Sym, fn)
}

// emitReturn restores the frame and returns, leaving whatever is
// currently in RV as the result.
func (c *Compiler) emitReturn(ctx *Context) {
	ctx.e.MovRegReg(emit.SP, emit.FP)
	ctx.e.Pop(emit.FP)
	ctx.e.Ret()
}

// stmt emits code for one statement. Every control construct restores
// ctx.stackDepth to its entry value along every path, so that call-site
// alignment bookkeeping stays correct across nested blocks.
func (ctx *Context) stmt(n *ast.Node) {
	switch n.Kind {
	case ast.Block:
		for _, s := range n.Children {
			ctx.stmt(s)
		}

	case ast.VarDecl:
		rhs := n.Children[0]
		if rhs == nil {
			return // declare-without-initializer: no code to emit
		}
		ctx.expr(rhs, emit.RV)
		base, disp := ctx.addrOfSym(n.Sym)
		ctx.e.StoreMem(base, disp, emit.RV)

	case ast.Assign:
		lhs, rhs := n.Children[0], n.Children[1]
		ctx.expr(rhs, emit.RV)
		ctx.e.Push(emit.RV)
		ctx.pushDepth()

		base, disp := ctx.addressOf(lhs)

		ctx.e.Pop(emit.RV)
		ctx.popDepth()
		ctx.e.StoreMem(base, disp, emit.RV)

	case ast.If:
		cond, then := n.Children[0], n.Children[1]
		var els *ast.Node
		if len(n.Children) > 2 {
			els = n.Children[2]
		}
		ctx.expr(cond, emit.RV)
		elseLbl := ctx.branchIfZero()
		ctx.stmt(then)
		endLbl := ctx.e.Jmp()
		ctx.e.Resolve(&elseLbl, ctx.e.Here())
		if els != nil {
			ctx.stmt(els)
		}
		ctx.e.Resolve(&endLbl, ctx.e.Here())

	case ast.While:
		cond, body := n.Children[0], n.Children[1]
		top := ctx.e.Here()
		ctx.expr(cond, emit.RV)
		exitLbl := ctx.branchIfZero()

		savedCont, savedBreak := ctx.continueLabels, ctx.breakLabels
		ctx.continueLabels, ctx.breakLabels = nil, nil

		ctx.stmt(body)
		back := ctx.e.Jmp()
		ctx.e.Resolve(&back, top)

		for _, lbl := range ctx.continueLabels {
			l := lbl
			ctx.e.Resolve(&l, top)
		}
		ctx.e.Resolve(&exitLbl, ctx.e.Here())
		for _, lbl := range ctx.breakLabels {
			l := lbl
			ctx.e.Resolve(&l, ctx.e.Here())
		}
		ctx.continueLabels, ctx.breakLabels = savedCont, savedBreak

	case ast.Break:
		lbl := ctx.e.Jmp()
		ctx.breakLabels = append(ctx.breakLabels, lbl)

	case ast.Continue:
		lbl := ctx.e.Jmp()
		ctx.continueLabels = append(ctx.continueLabels, lbl)

	case ast.Return:
		if len(n.Children) > 0 && n.Children[0] != nil {
			ctx.expr(n.Children[0], emit.RV)
		}
		ctx.cc.emitReturn(ctx)

	default:
		// Expression statement: evaluated for effect, result discarded.
		ctx.expr(n, emit.RV)
	}
}

// branchIfZero emits `cmp RV, 0; je <label>` and returns the
// not-yet-resolved label.
func (ctx *Context) branchIfZero() emit.Label {
	ctx.e.MovImm64(emit.Scratch, 0)
	ctx.e.Cmp(emit.RV, emit.Scratch)
	return ctx.e.Jcc(emit.Eq)
}
