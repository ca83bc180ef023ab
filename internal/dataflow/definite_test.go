package dataflow

import (
	"testing"

	"avm/internal/ast"
	"avm/internal/diag"
	"avm/internal/symtab"
	"avm/internal/typ"
)

// localRef builds a Resolved reference to a local variable symbol.
func localRef(line int, sym *symtab.Symbol) *ast.Node {
	return &ast.Node{Kind: ast.Resolved, Line: line, Name: sym.Name, Sym: sym, Type: typ.INT, TempSlot: -1}
}

func assignStmt(line int, sym *symtab.Symbol, rhs *ast.Node) *ast.Node {
	lhs := localRef(line, sym)
	lhs.SetLValue()
	return ast.New(ast.Assign, line, lhs, rhs)
}

// readStmt wraps a read of sym in a statement-level expression, so it
// shows up as a CFG node distinct from the declaration/assignment that
// would otherwise shadow it.
func readStmt(line int, sym *symtab.Symbol) *ast.Node {
	return ast.New(ast.Not, line, localRef(line, sym))
}

func runCheck(t *testing.T, body []*ast.Node, localCount int) []diag.Diagnostic {
	t.Helper()
	reporter := &diag.Reporter{}
	fnSym := &symtab.Symbol{Name: "f", Kind: symtab.FuncSym, LocalCount: localCount, SelfSlot: -1}
	block := &ast.Node{Kind: ast.Block, Children: body, TempSlot: -1}
	fn := &ast.Node{Kind: ast.FunDef, Name: "f", Sym: fnSym, Children: []*ast.Node{block}, TempSlot: -1}
	Check(&ast.Node{Kind: ast.Program, Sym: &symtab.Symbol{Name: "$main", Kind: symtab.FuncSym, SelfSlot: -1}, Children: []*ast.Node{fn}}, reporter)
	return reporter.Diagnostics()
}

func TestDefiniteAssignment_UninitialisedRead(t *testing.T) {
	x := &symtab.Symbol{Name: "x", Kind: symtab.VarSym, Offset: 0}
	decl := &ast.Node{Kind: ast.VarDecl, Name: "x", Sym: x, Type: typ.INT, Children: []*ast.Node{nil}, TempSlot: -1}
	body := []*ast.Node{decl, readStmt(2, x)}

	diags := runCheck(t, body, 1)
	if len(diags) != 1 {
		t.Fatalf("want 1 diagnostic, got %d: %v", len(diags), diags)
	}
}

func TestDefiniteAssignment_AssignedBeforeRead(t *testing.T) {
	x := &symtab.Symbol{Name: "x", Kind: symtab.VarSym, Offset: 0}
	decl := &ast.Node{Kind: ast.VarDecl, Name: "x", Sym: x, Type: typ.INT, Children: []*ast.Node{nil}, TempSlot: -1}
	body := []*ast.Node{decl, assignStmt(2, x, ast.NewInt(2, 1, false)), readStmt(3, x)}

	diags := runCheck(t, body, 1)
	if len(diags) != 0 {
		t.Fatalf("want no diagnostics, got %v", diags)
	}
}

func TestDefiniteAssignment_BothBranchesAssign(t *testing.T) {
	x := &symtab.Symbol{Name: "x", Kind: symtab.VarSym, Offset: 0}
	decl := &ast.Node{Kind: ast.VarDecl, Name: "x", Sym: x, Type: typ.INT, Children: []*ast.Node{nil}, TempSlot: -1}
	thenBlk := &ast.Node{Kind: ast.Block, Children: []*ast.Node{assignStmt(3, x, ast.NewInt(3, 1, false))}, TempSlot: -1}
	elseBlk := &ast.Node{Kind: ast.Block, Children: []*ast.Node{assignStmt(4, x, ast.NewInt(4, 2, false))}, TempSlot: -1}
	ifStmt := ast.New(ast.If, 2, ast.NewInt(2, 1, false), thenBlk, elseBlk)
	body := []*ast.Node{decl, ifStmt, readStmt(5, x)}

	diags := runCheck(t, body, 1)
	if len(diags) != 0 {
		t.Fatalf("want no diagnostics (both branches assign x), got %v", diags)
	}
}

func TestDefiniteAssignment_OnlyOneBranchAssigns(t *testing.T) {
	x := &symtab.Symbol{Name: "x", Kind: symtab.VarSym, Offset: 0}
	decl := &ast.Node{Kind: ast.VarDecl, Name: "x", Sym: x, Type: typ.INT, Children: []*ast.Node{nil}, TempSlot: -1}
	thenBlk := &ast.Node{Kind: ast.Block, Children: []*ast.Node{assignStmt(3, x, ast.NewInt(3, 1, false))}, TempSlot: -1}
	ifStmt := ast.New(ast.If, 2, ast.NewInt(2, 1, false), thenBlk, nil)
	body := []*ast.Node{decl, ifStmt, readStmt(5, x)}

	diags := runCheck(t, body, 1)
	if len(diags) != 1 {
		t.Fatalf("want 1 diagnostic (else path leaves x unassigned), got %d: %v", len(diags), diags)
	}
}
