// Package dataflow implements control-flow graph construction and a
// generic fixpoint data-flow framework (spec.md's SPEC_FULL.md §4), plus
// the definite-assignment analysis built on top of it. Grounded on
// original_source/src/control-flow-graph.c/.h and data-flow.c/.h.
package dataflow

import "avm/internal/ast"

// Node is one control-flow-graph node. Most Nodes wrap exactly one
// statement-level AST node; Block nodes never get their own Node (all of
// a Block's statements appear directly on the graph, matching
// control_flow_graph_subnodes' "-1 for BLOCK: all children are on the
// graph" contract). A nil AST marks a synthetic node: the function's
// Exit sentinel, or a no-op placeholder for an empty statement list.
type Node struct {
	AST  *ast.Node
	Succ []*Node
	Pred []*Node
}

// Graph is one function/method/constructor body's control-flow graph.
type Graph struct {
	Entry *Node
	Exit  *Node // sentinel; every Return edges here, as does falling off the end
	Nodes []*Node
}

func connect(from, to *Node) {
	from.Succ = append(from.Succ, to)
	to.Pred = append(to.Pred, from)
}

// loopCtx threads the enclosing loop's break/continue targets down
// through nested statement construction.
type loopCtx struct {
	continueTarget *Node
	breaks         []*Node
}

type builder struct {
	exit  *Node
	nodes []*Node
}

func (b *builder) newNode(n *ast.Node) *Node {
	node := &Node{AST: n}
	b.nodes = append(b.nodes, node)
	return node
}

// Build constructs the control-flow graph for one function-like body:
// body is the top-level Block node of a FunDef/MethodDef, or the
// synthesised statement list of a constructor.
func Build(body *ast.Node) *Graph {
	b := &builder{}
	b.exit = &Node{}
	b.nodes = append(b.nodes, b.exit)
	entry, outs := b.seq(body.Children, nil)
	for _, o := range outs {
		connect(o, b.exit)
	}
	return &Graph{Entry: entry, Exit: b.exit, Nodes: b.nodes}
}

// seq builds the CFG for a straight-line list of statements (a Block's
// Children), threading lc down for any nested break/continue. It always
// returns a non-nil entry, synthesising a no-op node for an empty list
// so callers never need to special-case a nil entry.
func (b *builder) seq(stmts []*ast.Node, lc *loopCtx) (*Node, []*Node) {
	if len(stmts) == 0 {
		noop := b.newNode(nil)
		return noop, []*Node{noop}
	}
	var entry *Node
	var pending []*Node
	for _, s := range stmts {
		sEntry, sOuts := b.stmt(s, lc)
		if entry == nil {
			entry = sEntry
		} else {
			for _, p := range pending {
				connect(p, sEntry)
			}
		}
		pending = sOuts
	}
	return entry, pending
}

// stmt builds the CFG fragment for one statement, returning its entry
// node and the set of "dangling" successor edges the caller must wire to
// whatever follows (empty if the statement never falls through, e.g.
// Return/Break/unconditional-loop-without-break).
func (b *builder) stmt(n *ast.Node, lc *loopCtx) (*Node, []*Node) {
	switch n.Kind {
	case ast.Block:
		return b.seq(n.Children, lc)

	case ast.If:
		cond := b.newNode(n)
		thenOuts := b.attach(cond, n.Children[1], lc)
		var elseOuts []*Node
		if len(n.Children) > 2 && n.Children[2] != nil {
			elseOuts = b.attach(cond, n.Children[2], lc)
		} else {
			elseOuts = []*Node{cond}
		}
		return cond, append(thenOuts, elseOuts...)

	case ast.While:
		cond := b.newNode(n)
		childLC := &loopCtx{continueTarget: cond}
		bodyOuts := b.attach(cond, n.Children[1], childLC)
		for _, o := range bodyOuts {
			connect(o, cond)
		}
		outs := append([]*Node{cond}, childLC.breaks...)
		return cond, outs

	case ast.Break:
		node := b.newNode(n)
		if lc != nil {
			lc.breaks = append(lc.breaks, node)
		}
		return node, nil

	case ast.Continue:
		node := b.newNode(n)
		if lc != nil {
			connect(node, lc.continueTarget)
		}
		return node, nil

	case ast.Return:
		node := b.newNode(n)
		connect(node, b.exit)
		return node, nil

	default: // VarDecl, Assign, or a bare expression statement
		node := b.newNode(n)
		return node, []*Node{node}
	}
}

// attach builds stmtNode's sub-statement and wires from into it,
// returning the sub-statement's dangling outs.
func (b *builder) attach(from *Node, stmtNode *ast.Node, lc *loopCtx) []*Node {
	entry, outs := b.stmt(stmtNode, lc)
	connect(from, entry)
	return outs
}
