package dataflow

// Fact is one data-flow analysis's per-node lattice value. Concrete
// analyses define their own representation (definite-assignment uses a
// bitset, see definite.go) and type-assert it back out of the generic Fact
// interface.
type Fact interface{}

// Pass mirrors original_source/src/data-flow.h's data_flow_analysis_t:
// a named, directional analysis defined purely by its init/join/transfer/
// lessEq functions, run generically by Run over any Graph.
type Pass struct {
	Name    string
	Forward bool

	Init     func(g *Graph) Fact
	Transfer func(n *Node, in Fact) Fact
	Join     func(a, b Fact) Fact
	// LessEq reports whether rhs carries at least as much information as
	// lhs — the fixpoint framework stops re-queuing a node's successors
	// once its new fact and its previous one are LessEq each other in both
	// directions (no further information gained).
	LessEq func(lhs, rhs Fact) bool
}

// Result holds the fixpoint In/Out facts for every node of one Run.
type Result struct {
	In  map[*Node]Fact
	Out map[*Node]Fact
}

// Run iterates p to a fixpoint over g using a worklist algorithm. Forward
// analyses flow Entry->Exit (In = join of predecessors' Out); backward
// analyses flow Exit->Entry (In = join of successors' Out, read as "Out"
// in the backward sense) — definite-assignment, the only analysis wired
// in so far, is forward.
func Run(p Pass, g *Graph) Result {
	in := map[*Node]Fact{}
	out := map[*Node]Fact{}

	preds := func(n *Node) []*Node { return n.Pred }
	succs := func(n *Node) []*Node { return n.Succ }
	if !p.Forward {
		preds, succs = succs, preds
	}

	worklist := append([]*Node{}, g.Nodes...)
	for len(worklist) > 0 {
		n := worklist[0]
		worklist = worklist[1:]

		var merged Fact
		for _, pr := range preds(n) {
			po, ok := out[pr]
			if !ok {
				continue // not visited yet: contributes nothing to the join
			}
			if merged == nil {
				merged = po
			} else {
				merged = p.Join(merged, po)
			}
		}
		if merged == nil {
			merged = p.Init(g)
		}
		in[n] = merged

		newOut := p.Transfer(n, merged)
		if prev, ok := out[n]; !ok || !p.LessEq(newOut, prev) || !p.LessEq(prev, newOut) {
			out[n] = newOut
			worklist = append(worklist, succs(n)...)
		}
	}
	return Result{In: in, Out: out}
}
