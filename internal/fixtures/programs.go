// Package fixtures hand-builds the AST trees spec.md §8's end-to-end
// table describes as source text. Lexing and parsing are out of scope
// for this module (spec.md §1, internal/ast's package doc), so these
// functions stand in for "an external parser" the rest of the pipeline
// expects to have already run: each one returns the same tree a parser
// would have produced for the corresponding source line.
//
// Every node is built directly with internal/ast's exported fields and
// constructors, following the exact shapes internal/nameres and
// internal/typecheck expect from an unresolved tree (confirmed against
// their own node-handling switches): FunApp.Children holds actual
// arguments only, never a receiver; MethodApp/Member put the receiver in
// Children[0]; Allocate and IsInstance carry their class/type name in
// Name, not Sym.
package fixtures

import (
	"avm/internal/ast"
)

// Program is one named, runnable fixture plus the stdout spec.md §8
// says running it must produce.
type Program struct {
	Name     string
	Expected string
	Build    func() *ast.Node
}

// All returns every spec.md §8 end-to-end scenario, in table order.
func All() []Program {
	return []Program{
		{"print-literal-sum", "7\n", PrintLiteralSum},
		{"while-loop-count", "0\n1\n2\n", WhileLoopCount},
		{"recursive-factorial", "120\n", RecursiveFactorial},
		{"class-field-access", "17\n", ClassFieldAccess},
		{"method-call", "3\n", MethodCall},
		{"array-subscript-assign", "7\n2\n", ArraySubscriptAssign},
		{"is-int-check", "1\n", IsIntCheck},
	}
}

func top(stmts ...*ast.Node) *ast.Node {
	return &ast.Node{Kind: ast.Program, Children: stmts, TempSlot: -1}
}

func ident(line int, name string) *ast.Node { return ast.NewIdent(line, name) }

// call builds a FunApp node: used both for plain/constructor calls and
// for the three built-in callables (print/assert/exit), which resolve
// through internal/symtab.Builtins.Lookup by the same Name field rather
// than through any distinct node kind.
func call(line int, name string, args ...*ast.Node) *ast.Node {
	return &ast.Node{Kind: ast.FunApp, Line: line, Name: name, Children: args, TempSlot: -1}
}

func member(line int, recv *ast.Node, name string) *ast.Node {
	return &ast.Node{Kind: ast.Member, Line: line, Name: name, Children: []*ast.Node{recv}, TempSlot: -1}
}

func methodCall(line int, recv *ast.Node, name string, args ...*ast.Node) *ast.Node {
	children := append([]*ast.Node{recv}, args...)
	return &ast.Node{Kind: ast.MethodApp, Line: line, Name: name, Children: children, TempSlot: -1}
}

func arraySub(line int, recv, index *ast.Node) *ast.Node {
	return &ast.Node{Kind: ast.ArraySub, Line: line, Children: []*ast.Node{recv, index}, TempSlot: -1}
}

func isInstance(line int, operand *ast.Node, typeName string) *ast.Node {
	return &ast.Node{Kind: ast.IsInstance, Line: line, Name: typeName, Children: []*ast.Node{operand}, TempSlot: -1}
}

// PrintLiteralSum builds `print(3+4);` (spec.md §8 row 1).
func PrintLiteralSum() *ast.Node {
	sum := ast.NewBinOp(1, ast.OpAdd, ast.NewInt(1, 3, false), ast.NewInt(1, 4, false))
	return top(call(1, "print", sum))
}

// WhileLoopCount builds
// `{ int x = 0; while (x < 3) { print(x); x := x + 1; } }`
// (spec.md §8 row 2).
func WhileLoopCount() *ast.Node {
	decl := ast.NewVarDecl(1, "x", ast.INT, ast.NewInt(1, 0, false))
	cond := ast.NewBinOp(1, ast.OpLt, ident(1, "x"), ast.NewInt(1, 3, false))
	body := &ast.Node{Kind: ast.Block, Line: 1, TempSlot: -1, Children: []*ast.Node{
		call(1, "print", ident(1, "x")),
		&ast.Node{Kind: ast.Assign, Line: 1, TempSlot: -1, Children: []*ast.Node{
			ident(1, "x"),
			ast.NewBinOp(1, ast.OpAdd, ident(1, "x"), ast.NewInt(1, 1, false)),
		}},
	}}
	loop := &ast.Node{Kind: ast.While, Line: 1, TempSlot: -1, Children: []*ast.Node{cond, body}}
	block := &ast.Node{Kind: ast.Block, Line: 1, TempSlot: -1, Children: []*ast.Node{decl, loop}}
	return top(block)
}

// RecursiveFactorial builds
// `int fact(int a) { if (a == 0) return 1; return a * fact(a-1); } print(fact(5));`
// (spec.md §8 row 3).
func RecursiveFactorial() *ast.Node {
	a := ident(1, "a")
	ifZero := &ast.Node{Kind: ast.If, Line: 1, TempSlot: -1, Children: []*ast.Node{
		ast.NewBinOp(1, ast.OpEq, ident(1, "a"), ast.NewInt(1, 0, false)),
		&ast.Node{Kind: ast.Return, Line: 1, TempSlot: -1, Children: []*ast.Node{ast.NewInt(1, 1, false)}},
	}}
	recurse := call(1, "fact", ast.NewBinOp(1, ast.OpSub, ident(1, "a"), ast.NewInt(1, 1, false)))
	ret := &ast.Node{Kind: ast.Return, Line: 1, TempSlot: -1, Children: []*ast.Node{
		ast.NewBinOp(1, ast.OpMul, a, recurse),
	}}
	body := &ast.Node{Kind: ast.Block, Line: 1, TempSlot: -1, Children: []*ast.Node{ifZero, ret}}
	fn := ast.NewFunDef(1, "fact", []string{"a"}, []ast.Type{ast.INT}, ast.INT, body)
	return top(fn, call(1, "print", call(1, "fact", ast.NewInt(1, 5, false))))
}

// ClassFieldAccess builds
// `class C() { int x = 17; } obj a = C(); print(a.x);`
// (spec.md §8 row 4).
func ClassFieldAccess() *ast.Node {
	field := ast.NewFieldDecl(1, "x", ast.INT, ast.NewInt(1, 17, false))
	class := ast.NewClassDef(1, "C", nil, nil, field)
	decl := ast.NewVarDecl(1, "a", ast.OBJ, call(1, "C"))
	return top(class, decl, call(1, "print", member(1, ident(1, "a"), "x")))
}

// MethodCall builds
// `class C() { obj p(obj x) { print(x+2); } } obj a = C(); a.p(1);`
// (spec.md §8 row 5).
func MethodCall() *ast.Node {
	printCall := call(1, "print", ast.NewBinOp(1, ast.OpAdd, ident(1, "x"), ast.NewInt(1, 2, false)))
	methodBody := &ast.Node{Kind: ast.Block, Line: 1, TempSlot: -1, Children: []*ast.Node{printCall}}
	method := ast.NewMethodDef(1, "p", []string{"x"}, []ast.Type{ast.OBJ}, ast.OBJ, methodBody)
	class := ast.NewClassDef(1, "C", nil, nil, method)
	decl := ast.NewVarDecl(1, "a", ast.OBJ, call(1, "C"))
	invoke := methodCall(1, ident(1, "a"), "p", ast.NewInt(1, 1, false))
	return top(class, decl, invoke)
}

// ArraySubscriptAssign builds
// `obj a = [1,7]; print(a[1]); a[1] := 2; print(a[1]);`
// (spec.md §8 row 6).
func ArraySubscriptAssign() *ast.Node {
	lit := &ast.Node{Kind: ast.ArrayLit, Line: 1, TempSlot: -1, Children: []*ast.Node{
		ast.NewInt(1, 1, false), ast.NewInt(1, 7, false),
	}}
	decl := ast.NewVarDecl(1, "a", ast.OBJ, lit)
	printFirst := call(1, "print", arraySub(1, ident(1, "a"), ast.NewInt(1, 1, false)))
	assign := &ast.Node{Kind: ast.Assign, Line: 1, TempSlot: -1, Children: []*ast.Node{
		arraySub(1, ident(1, "a"), ast.NewInt(1, 1, false)),
		ast.NewInt(1, 2, false),
	}}
	printSecond := call(1, "print", arraySub(1, ident(1, "a"), ast.NewInt(1, 1, false)))
	return top(decl, printFirst, assign, printSecond)
}

// IsIntCheck builds
// `if (1 is int) print(1); if ("x" is int) print(2);`
// (spec.md §8 row 7).
func IsIntCheck() *ast.Node {
	first := &ast.Node{Kind: ast.If, Line: 1, TempSlot: -1, Children: []*ast.Node{
		isInstance(1, ast.NewInt(1, 1, false), "int"),
		call(1, "print", ast.NewInt(1, 1, false)),
	}}
	second := &ast.Node{Kind: ast.If, Line: 1, TempSlot: -1, Children: []*ast.Node{
		isInstance(1, ast.NewString(1, "x"), "int"),
		call(1, "print", ast.NewInt(1, 2, false)),
	}}
	return top(first, second)
}
