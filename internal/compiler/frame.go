package compiler

import (
	"avm/internal/ast"
	"avm/internal/emit"
	"avm/internal/symtab"
)

// Context is the compilation context threaded through one function's
// translation (spec.md §4.7): frame layout, the loop label lists, and the
// running stack_depth used to keep the stack 16-byte aligned at call
// boundaries.
type Context struct {
	e   *emit.Emitter
	rt  *Runtime
	cc  *Compiler
	sym *symtab.Symbol

	hasSelf bool
	nParams int

	stackDepth  int
	pendingFree int // bytes reserved by the in-flight prepareArgs call

	continueLabels []emit.Label
	breakLabels    []emit.Label
}

// align16 rounds n up to the next multiple of 16.
func align16(n int32) int32 { return (n + 15) &^ 15 }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// frameWords is the number of 8-byte slots the prologue reserves below
// the saved frame pointer for self, parameters and locals (temporaries
// use the real machine stack via push/pop, never a pre-numbered slot, so
// the compiler never reads a node's TempSlot).
func frameWords(sym *symtab.Symbol, nParams int) int {
	return boolInt(sym.SelfSlot >= 0) + nParams + sym.LocalCount
}

// slotDisp returns the FP-relative displacement of the 0-indexed slot.
func slotDisp(slot int) int32 { return -8 * int32(slot+1) }

func (c *Context) selfDisp() int32 { return slotDisp(0) }

func (c *Context) paramDisp(i int) int32 {
	base := 0
	if c.hasSelf {
		base = 1
	}
	return slotDisp(base + i)
}

func (c *Context) localDisp(offset int) int32 {
	base := c.nParams
	if c.hasSelf {
		base++
	}
	return slotDisp(base + offset)
}

// globalDisp is the GP-relative displacement of a global slot (spec.md
// §4.7's "global-pointer-relative for statics").
func globalDisp(offset int) int32 { return 8 * int32(offset) }

// addrOf computes the (base register, displacement) pair addressing the
// storage a Resolved/Self node refers to — everything except Member
// field access, which has no compile-time-fixed offset (spec.md §4.4:
// member offsets are only known through the receiver's own class
// descriptor, looked up at runtime via bridgeLookup).
func (c *Context) addrOf(n *ast.Node) (emit.Reg, int32) {
	if n.Kind == ast.Self {
		return emit.FP, c.selfDisp()
	}
	return c.addrOfSym(n.Sym)
}

// addrOfSym is the Resolved-node case of addrOf, factored out so
// VarDecl's target (named on the declaration node itself, not through a
// Resolved child) can reuse it directly.
func (c *Context) addrOfSym(sym *symtab.Symbol) (emit.Reg, int32) {
	switch {
	case sym.HasFlag(symtab.Global):
		return emit.GP, globalDisp(sym.Offset)
	case sym.HasFlag(symtab.Param):
		return emit.FP, c.paramDisp(sym.Offset)
	default:
		return emit.FP, c.localDisp(sym.Offset)
	}
}

func (c *Context) pushDepth() { c.stackDepth++ }
func (c *Context) popDepth()  { c.stackDepth-- }
