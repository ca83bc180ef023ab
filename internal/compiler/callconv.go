package compiler

import (
	"avm/internal/ast"
	"avm/internal/emit"
)

// isSimple classifies an actual argument per spec.md §4.7's argument
// preparation algorithm step 1: a value literal, null, or identifier
// needs no scratch register to evaluate, so it can be loaded directly
// into its destination without risking clobbering an already-computed
// sibling argument.
func isSimple(n *ast.Node) bool {
	switch n.Kind {
	case ast.Int, ast.String, ast.Null, ast.Resolved, ast.Self:
		return true
	default:
		return false
	}
}

// prepareArgs implements spec.md §4.7's seven-step argument preparation
// algorithm and leaves every argument in its register (args 0-5) or
// overflow stack slot (args 6+), ready for the call that follows.
//
// The reserved stack area is laid out, lowest address first, as: the
// overflow slots for args 6..N-1 in ascending order (so they already sit
// where the callee expects them, at [SP+0], [SP+8], ... when the call
// executes), then one spill slot per non-trivial argument among args
// 0-5 except the last non-trivial argument overall (which needs none,
// per the algorithm: nothing is evaluated after it that could clobber
// its register), then an alignment filler if needed.
func (c *Context) prepareArgs(args []*ast.Node) {
	n := len(args)
	overflow := n - 6
	if overflow < 0 {
		overflow = 0
	}

	lastNonTrivial := -1
	for i, a := range args {
		if !isSimple(a) {
			lastNonTrivial = i
		}
	}

	// Assign a spill slot (SP-relative, in 8-byte units from the base of
	// the reserved area) to every non-trivial, register-bound argument
	// except the last non-trivial one overall.
	spillSlot := make([]int, n)
	nextSpill := overflow
	for i, a := range args {
		spillSlot[i] = -1
		if i >= 6 || isSimple(a) || i == lastNonTrivial {
			continue
		}
		spillSlot[i] = nextSpill
		nextSpill++
	}

	totalSlots := nextSpill
	if (totalSlots*8)%16 != 0 {
		totalSlots++ // alignment filler
	}

	if totalSlots > 0 {
		c.e.SubSP(int32(totalSlots * 8))
		for i := 0; i < totalSlots; i++ {
			c.pushDepth()
		}
	}

	overflowSlotDisp := func(i int) int32 { return int32((i - 6) * 8) }
	spillSlotDisp := func(slot int) int32 { return int32(slot * 8) }

	// Step 4: evaluate non-trivial arguments in source order.
	for i, a := range args {
		if isSimple(a) {
			continue
		}
		c.expr(a, emit.RV)
		switch {
		case i == lastNonTrivial && i < 6:
			// No spill slot: goes straight to its argument register once
			// every remaining (simple) argument has also been placed —
			// safe because nothing evaluated after this point can
			// clobber it (it is, by definition, the last non-trivial
			// evaluation, and every simple argument loads its value
			// directly with no sub-evaluation of its own).
			c.e.MovRegReg(emit.Arg(i), emit.RV)
		case i >= 6:
			c.e.StoreMem(emit.SP, overflowSlotDisp(i), emit.RV)
		default:
			c.e.StoreMem(emit.SP, spillSlotDisp(spillSlot[i]), emit.RV)
		}
	}

	// Step 5: evaluate simple arguments directly into their destination.
	for i, a := range args {
		if !isSimple(a) {
			continue
		}
		if i < 6 {
			c.expr(a, emit.Arg(i))
		} else {
			c.expr(a, emit.RV)
			c.e.StoreMem(emit.SP, overflowSlotDisp(i), emit.RV)
		}
	}

	// Step 6: reload spilled non-trivial arguments into their registers.
	for i := range args {
		if spillSlot[i] >= 0 {
			c.e.LoadMem(emit.Arg(i), emit.SP, spillSlotDisp(spillSlot[i]))
		}
	}

	c.pendingFree = totalSlots * 8
}

// freeArgs releases the stack area prepareArgs reserved, once the call
// has returned (step 7's "free the stack frame").
func (c *Context) freeArgs() {
	if c.pendingFree > 0 {
		c.e.AddSP(int32(c.pendingFree))
		for i := 0; i < c.pendingFree/8; i++ {
			c.popDepth()
		}
	}
	c.pendingFree = 0
}
