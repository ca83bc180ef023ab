// Package ast defines the abstract syntax tree consumed by the rest of the
// pipeline. Lexing and parsing are out of scope for this module (spec.md
// §1); a Node tree here is either produced by an external parser or, for
// tests, built directly by Go code acting as that parser.
package ast

import (
	"avm/internal/symtab"
	"avm/internal/typ"
)

// Kind tags every Node. Value nodes (Int, Real, String, Ident, Builtin)
// carry their payload in the Node's value fields; every other Kind is a
// generic node whose meaning is determined by its fixed-size Children
// array, mirroring the source language's node allocation discipline.
type Kind int

const (
	Int Kind = iota
	Real
	String
	Ident // unresolved name reference; rewritten to Resolved by name analysis
	Resolved
	Builtin // reference to a built-in operator/function symbol
	Self

	Block
	VarDecl
	Assign
	BinOp
	Not
	If
	While
	Break
	Continue
	FunApp
	MethodApp
	FunDef
	ClassDef
	FieldDecl
	MethodDef
	Return
	ArrayLit
	ArraySub
	Allocate
	NewInstance // FunApp whose callee resolved to a class symbol, rewritten by type analysis
	Member      // plain (non-call) member access, e.g. `self.x` or `a.x`
	Null
	IsInstance
	Program
)

func (k Kind) String() string {
	names := [...]string{
		"Int", "Real", "String", "Ident", "Resolved", "Builtin", "Self",
		"Block", "VarDecl", "Assign", "BinOp", "Not", "If", "While", "Break",
		"Continue", "FunApp", "MethodApp", "FunDef", "ClassDef", "FieldDecl",
		"MethodDef", "Return", "ArrayLit", "ArraySub", "Allocate", "NewInstance",
		"Member", "Null", "IsInstance", "Program",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Kind(?)"
}

// Type is the static type assigned by type analysis. VAR is reserved and
// currently treated identically to OBJ (spec.md Open Question).
type Type = typ.Type

const (
	Unknown = typ.Unknown
	INT     = typ.INT
	OBJ     = typ.OBJ
	VAR     = typ.VAR
)

// Flag bits attached to every Node.
type Flags uint16

const (
	FlagLValue Flags = 1 << iota
	FlagDecl
	FlagHexLiteral
)

// BinOp / FunApp operator codes. These double as the built-in operator ids
// of spec.md §6 when Kind == Builtin or the node represents a call to a
// built-in.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpEq
	OpLe
	OpLt
	OpNot
	OpConvert
	OpAllocate
	OpSelf
	OpPrint
	OpAssert
	OpExit
)

// Node is the single generic tree node. Which fields are meaningful
// depends on Kind; Children holds the fixed-arity sub-expressions
// (e.g. [receiver, index] for ArraySub, [cond, then, else] for If).
type Node struct {
	Kind     Kind
	Line     int
	Flags    Flags
	Type     Type
	Children []*Node

	// value-node payload
	IntValue int64
	RealValue float64
	StrValue  string
	Name      string // identifier / member / class name text, pre-resolution
	Op        Op

	// filled in by name analysis / type analysis
	Sym      *symtab.Symbol
	TempSlot int // -1 if this expression needs no scratch slot

	// ParamNames holds the declared parameter names for FunDef, MethodDef
	// and ClassDef (constructor parameters) nodes, before resolution.
	ParamNames []string
	// ParamTypes holds the declared formal type of each ParamNames entry.
	ParamTypes []Type
	// ParamSyms holds the per-parameter storage symbol created by name
	// analysis, in ParamNames order, so type analysis can assign each
	// one's Type without re-walking scopes.
	ParamSyms []*symtab.Symbol

	// HasSize marks an ArrayLit node as carrying an explicit size
	// expression as Children[0], with the literal elements following.
	HasSize bool
}

// New allocates a generic node with the given children.
func New(kind Kind, line int, children ...*Node) *Node {
	return &Node{Kind: kind, Line: line, Children: children, TempSlot: -1}
}

// NewInt allocates an integer literal value node.
func NewInt(line int, v int64, hex bool) *Node {
	n := &Node{Kind: Int, Line: line, IntValue: v, Type: INT, TempSlot: -1}
	if hex {
		n.Flags |= FlagHexLiteral
	}
	return n
}

// NewString allocates a string literal value node.
func NewString(line int, s string) *Node {
	return &Node{Kind: String, Line: line, StrValue: s, Type: OBJ, TempSlot: -1}
}

// NewIdent allocates an unresolved identifier reference.
func NewIdent(line int, name string) *Node {
	return &Node{Kind: Ident, Line: line, Name: name, TempSlot: -1}
}

// NewBinOp allocates a binary built-in operator application.
func NewBinOp(line int, op Op, lhs, rhs *Node) *Node {
	return &Node{Kind: BinOp, Line: line, Op: op, Children: []*Node{lhs, rhs}, TempSlot: -1}
}

// NewFunDef allocates a function definition: params/paramTypes are the
// declared parameter name and type lists, body is the single Block child.
func NewFunDef(line int, name string, params []string, paramTypes []Type, retType Type, body *Node) *Node {
	return &Node{Kind: FunDef, Line: line, Name: name, ParamNames: params, ParamTypes: paramTypes, Type: retType, Children: []*Node{body}, TempSlot: -1}
}

// NewMethodDef allocates a method definition within a ClassDef's Children.
func NewMethodDef(line int, name string, params []string, paramTypes []Type, retType Type, body *Node) *Node {
	return &Node{Kind: MethodDef, Line: line, Name: name, ParamNames: params, ParamTypes: paramTypes, Type: retType, Children: []*Node{body}, TempSlot: -1}
}

// NewClassDef allocates a class definition; members is the list of
// FieldDecl/MethodDef/other-statement nodes making up the class body.
func NewClassDef(line int, name string, ctorParams []string, ctorParamTypes []Type, members ...*Node) *Node {
	return &Node{Kind: ClassDef, Line: line, Name: name, ParamNames: ctorParams, ParamTypes: ctorParamTypes, Children: members, TempSlot: -1}
}

// NewFieldDecl allocates a field declaration/initializer within a class body.
func NewFieldDecl(line int, name string, declType Type, init *Node) *Node {
	return &Node{Kind: FieldDecl, Line: line, Name: name, Type: declType, Children: []*Node{init}, TempSlot: -1}
}

// NewVarDecl allocates a local variable declaration.
func NewVarDecl(line int, name string, declType Type, init *Node) *Node {
	return &Node{Kind: VarDecl, Line: line, Name: name, Type: declType, Children: []*Node{init}, TempSlot: -1}
}

// NewConvert allocates an implicit conversion wrapper: spec.md §4.6's
// "FUNAPP(__convert_builtin, [child]) tagged with the target type".
func NewConvert(line int, target Type, convertSym *symtab.Symbol, child *Node) *Node {
	return &Node{Kind: FunApp, Line: line, Name: "__convert_builtin", Op: OpConvert, Sym: convertSym, Type: target, Children: []*Node{child}, TempSlot: -1}
}

func (n *Node) IsLValue() bool { return n.Flags&FlagLValue != 0 }
func (n *Node) SetLValue()     { n.Flags |= FlagLValue }

// Walk recursively visits every node below n (n included) in depth-first,
// pre-order, left-to-right order, matching the evaluation order mandated
// by §5 for binary operators and actual arguments.
func Walk(n *Node, visit func(*Node)) {
	if n == nil {
		return
	}
	visit(n)
	for _, c := range n.Children {
		Walk(c, visit)
	}
}
