package dataflow

import (
	"avm/internal/ast"
	"avm/internal/diag"
	"avm/internal/symtab"
)

// bitset is a fixed-size bit vector indexed by local-variable offset,
// grounded on original_source/src/bitvector.c's word-array representation.
type bitset []uint64

func newBitset(n int) bitset {
	return make(bitset, (n+63)/64)
}

func (b bitset) clone() bitset {
	out := make(bitset, len(b))
	copy(out, b)
	return out
}

func (b bitset) set(i int) bitset {
	out := b.clone()
	out[i/64] |= 1 << uint(i%64)
	return out
}

func (b bitset) isSet(i int) bool {
	if i/64 >= len(b) {
		return false
	}
	return b[i/64]&(1<<uint(i%64)) != 0
}

// and computes the set-intersection join definite-assignment uses at
// merge points: a variable is definitely assigned only if it is assigned
// on every incoming path (original_source's `join` via bitvector_and).
func and(a, b bitset) bitset {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make(bitset, n)
	for i := range out {
		var av, bv uint64
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		out[i] = av & bv
	}
	return out
}

// subsetEq reports whether every bit set in a is also set in b.
func subsetEq(a, b bitset) bool {
	for i, av := range a {
		var bv uint64
		if i < len(b) {
			bv = b[i]
		}
		if av&^bv != 0 {
			return false
		}
	}
	return true
}

// isLocalVar reports whether n is a plain local-variable reference (not a
// parameter, not a field), returning its frame offset.
func isLocalVar(n *ast.Node) (int, bool) {
	if n == nil || n.Kind != ast.Resolved || n.Sym == nil {
		return 0, false
	}
	sym := n.Sym
	if sym.Kind != symtab.VarSym || sym.HasFlag(symtab.Param) || sym.HasFlag(symtab.Member) {
		return 0, false
	}
	return sym.Offset, true
}

func definiteAssignmentPass(localCount int) Pass {
	return Pass{
		Name:    "definite-assignments",
		Forward: true,
		Init:    func(g *Graph) Fact { return newBitset(localCount) },
		Join: func(a, b Fact) Fact {
			return and(a.(bitset), b.(bitset))
		},
		LessEq: func(lhs, rhs Fact) bool {
			return subsetEq(rhs.(bitset), lhs.(bitset))
		},
		Transfer: func(n *Node, in Fact) Fact {
			fact := in.(bitset)
			if n.AST == nil {
				return fact
			}
			switch n.AST.Kind {
			case ast.VarDecl:
				if n.AST.Sym != nil && len(n.AST.Children) > 0 && n.AST.Children[0] != nil {
					fact = fact.set(n.AST.Sym.Offset)
				}
			case ast.Assign:
				if off, ok := isLocalVar(n.AST.Children[0]); ok {
					fact = fact.set(off)
				}
			}
			return fact
		},
	}
}

// Check runs definite-assignment analysis over every function-like body
// reachable from program (top level, each FunDef, each method, and the
// synthesised constructor once typecheck has produced it) and reports a
// NameError for every local read that is not guaranteed assigned on all
// paths reaching it (original_source/src/data-flow-definite-assignments.c's
// recursive_check_definite_assignment).
func Check(program *ast.Node, reporter *diag.Reporter) {
	// The top level is itself a statement list under program.Sym ("$main"),
	// the same shape Build expects for a function body.
	checkFuncLikeBody(program, program.Sym, reporter)
	for _, n := range program.Children {
		checkBody(n, reporter)
	}
}

func checkBody(n *ast.Node, reporter *diag.Reporter) {
	switch n.Kind {
	case ast.FunDef:
		checkFuncLike(n, reporter)
	case ast.ClassDef:
		for _, member := range n.Children {
			if member.Kind == ast.MethodDef {
				checkFuncLike(member, reporter)
			}
		}
	}
}

func checkFuncLike(n *ast.Node, reporter *diag.Reporter) {
	if n.Sym == nil {
		return
	}
	body := n.Children[len(n.Children)-1]
	checkFuncLikeBody(body, n.Sym, reporter)
}

func checkFuncLikeBody(body *ast.Node, sym *symtab.Symbol, reporter *diag.Reporter) {
	if sym == nil {
		return
	}
	g := Build(body)
	res := Run(definiteAssignmentPass(sym.LocalCount), g)

	reported := newBitset(sym.LocalCount)
	for _, node := range g.Nodes {
		if node.AST == nil {
			continue
		}
		in := res.In[node].(bitset)
		switch node.AST.Kind {
		case ast.VarDecl:
			recursiveCheck(node.AST.Children[0], in, &reported, reporter)
		case ast.Assign:
			if _, ok := isLocalVar(node.AST.Children[0]); !ok {
				recursiveCheck(node.AST.Children[0], in, &reported, reporter)
			}
			recursiveCheck(node.AST.Children[1], in, &reported, reporter)
		case ast.If, ast.While:
			// Only the condition belongs to this node; the branches and the
			// loop body are CFG nodes of their own.
			recursiveCheck(node.AST.Children[0], in, &reported, reporter)
		default:
			recursiveCheck(node.AST, in, &reported, reporter)
		}
	}
}

func recursiveCheck(n *ast.Node, assigned bitset, reported *bitset, reporter *diag.Reporter) {
	if n == nil {
		return
	}
	// FunDef/ClassDef/MethodDef bodies are checked independently, each
	// against its own local-offset numbering; never descend into one from
	// an enclosing scope's walk.
	switch n.Kind {
	case ast.FunDef, ast.ClassDef, ast.MethodDef:
		return
	}
	if off, ok := isLocalVar(n); ok && !assigned.isSet(off) && !(*reported).isSet(off) {
		reporter.Errorf(diag.NameError, n.Line, "variable %q may be uninitialised", n.Sym.Name)
		*reported = reported.set(off)
	}
	for _, c := range n.Children {
		recursiveCheck(c, assigned, reported, reporter)
	}
}
