// Package typecheck implements type analysis (spec.md §4.6): a second pass
// over the name-resolved AST that assigns a static type to every
// expression, synthesises implicit `__convert_builtin` wrappers wherever a
// static type mismatch is not itself a float, rewrites method calls into
// METHODAPP form, synthesises one constructor function per class, and
// rejects floating-point literals and operands outright. Grounded on
// original_source/src/type-analysis.c.
package typecheck

import (
	"avm/internal/ast"
	"avm/internal/config"
	"avm/internal/diag"
	"avm/internal/symtab"
	"avm/internal/typ"
)

// methodParamType / methodReturnType are the canonical ABI types every
// override of a virtually-dispatched method must agree on, since a call
// site never statically knows which class's override will run. Matches
// original_source/src/builtins.c's method_call_param_type/
// method_call_return_type globals, which this module does not make
// configurable (the original exposes them as globals only so that a
// future extension could; no compiler flag ever varies them).
const (
	methodParamType  = typ.OBJ
	methodReturnType = typ.OBJ
)

// Checker runs type analysis over a whole, already name-resolved program.
type Checker struct {
	Users     *symtab.Table
	Builtins  *symtab.Builtins
	Selectors *symtab.SelectorTable
	Reporter  *diag.Reporter
	Config    config.Options

	// curReturnType is the declared return type of the function/method/
	// constructor currently being checked, or typ.Unknown at top level
	// (where `return` is illegal, mirroring original_source's
	// `function == NULL` check).
	curReturnType typ.Type
	// curCanonicalReturn is methodReturnType while checking a method
	// body, and typ.Unknown everywhere else (plain functions and the
	// constructor have no virtual-dispatch ABI boundary to cross).
	curCanonicalReturn typ.Type

	ctors []*ast.Node
}

func New(users *symtab.Table, builtins *symtab.Builtins, selectors *symtab.SelectorTable, reporter *diag.Reporter, cfg config.Options) *Checker {
	return &Checker{Users: users, Builtins: builtins, Selectors: selectors, Reporter: reporter, Config: cfg}
}

func (c *Checker) arrayElemType() typ.Type {
	if c.Config.ArrayElemTypeInt {
		return typ.INT
	}
	return typ.OBJ
}

// Run type-checks every top-level declaration and statement in program,
// appends each synthesised constructor to program's own Children (spec.md
// §4.6: "added to the list of callables"), and returns them separately
// too for callers that want them without re-scanning.
func (c *Checker) Run(program *ast.Node) []*ast.Node {
	for _, n := range program.Children {
		c.predeclare(n)
	}
	for i, n := range program.Children {
		program.Children[i] = c.topLevelStmt(n)
	}
	program.Children = append(program.Children, c.ctors...)
	return c.ctors
}

// predeclare assigns declared types from the AST onto the symbols name
// analysis already created, before any body or call site is checked, so
// that mutually recursive functions/classes resolve correctly regardless
// of declaration order (mirroring name analysis's own two-sub-pass
// discipline, but flattened across the whole program instead of a single
// block, since functions and classes only ever appear at top level).
func (c *Checker) predeclare(n *ast.Node) {
	switch n.Kind {
	case ast.FunDef:
		sym := n.Sym
		if sym == nil {
			return
		}
		sym.Type = n.Type
		sym.ParamTypes = append([]typ.Type{}, n.ParamTypes...)
		for i, psym := range n.ParamSyms {
			if i < len(n.ParamTypes) {
				psym.Type = n.ParamTypes[i]
			}
		}
	case ast.ClassDef:
		sym := n.Sym
		if sym == nil {
			return
		}
		sym.Type = typ.OBJ
		sym.ParamTypes = make([]typ.Type, len(n.ParamSyms))
		for i := range sym.ParamTypes {
			if i < len(n.ParamTypes) {
				sym.ParamTypes[i] = n.ParamTypes[i]
			} else {
				sym.ParamTypes[i] = typ.OBJ
			}
		}
		for i, psym := range n.ParamSyms {
			psym.Type = sym.ParamTypes[i]
		}
		for _, member := range n.Children {
			switch member.Kind {
			case ast.FieldDecl:
				if member.Sym != nil {
					member.Sym.Type = member.Type
				}
			case ast.MethodDef:
				msym := member.Sym
				if msym == nil {
					continue
				}
				msym.Type = member.Type
				msym.ParamTypes = append([]typ.Type{}, member.ParamTypes...)
				for i, psym := range member.ParamSyms {
					if i < len(member.ParamTypes) {
						psym.Type = member.ParamTypes[i]
					}
				}
			}
		}
	}
}

func (c *Checker) topLevelStmt(n *ast.Node) *ast.Node {
	switch n.Kind {
	case ast.FunDef:
		c.checkFunc(n)
		return n
	case ast.ClassDef:
		c.checkClass(n)
		return n
	default:
		return c.stmt(n)
	}
}

func (c *Checker) checkFunc(n *ast.Node) {
	sym := n.Sym
	if sym == nil {
		return
	}
	prevRet, prevCanon := c.curReturnType, c.curCanonicalReturn
	c.curReturnType = n.Type
	c.curCanonicalReturn = typ.Unknown
	last := len(n.Children) - 1
	n.Children[last] = c.stmt(n.Children[last])
	c.curReturnType, c.curCanonicalReturn = prevRet, prevCanon
}

func (c *Checker) checkClass(n *ast.Node) {
	classSym := n.Sym
	if classSym == nil {
		return
	}
	for i, member := range n.Children {
		switch member.Kind {
		case ast.FieldDecl:
			member.Children[0] = c.expr(member.Children[0])
			member.Children[0] = c.coerce(member.Children[0], member.Type)
		case ast.MethodDef:
			c.checkMethod(member, classSym)
		default:
			n.Children[i] = c.stmt(member)
		}
	}
	c.synthesizeConstructor(n, classSym)
}

// checkMethod type-checks a method body under the canonical-ABI return
// type, then prepends one unpacking assignment per formal whose declared
// type differs from methodParamType (spec.md §4.6: "each formal of
// non-canonical type is unpacked at entry").
func (c *Checker) checkMethod(n *ast.Node, classSym *symtab.Symbol) {
	sym := n.Sym
	if sym == nil {
		return
	}
	prevRet, prevCanon := c.curReturnType, c.curCanonicalReturn
	c.curReturnType = n.Type
	c.curCanonicalReturn = methodReturnType

	var prologue []*ast.Node
	for i, pname := range n.ParamNames {
		if i >= len(n.ParamTypes) {
			continue
		}
		declType := n.ParamTypes[i]
		if declType == methodParamType {
			continue
		}
		psym := n.ParamSyms[i]
		rawRead := &ast.Node{Kind: ast.Resolved, Line: n.Line, Name: pname, Sym: psym, Type: methodParamType, TempSlot: -1}
		converted := c.coerce(rawRead, declType)
		target := &ast.Node{Kind: ast.Resolved, Line: n.Line, Name: pname, Sym: psym, Type: declType, TempSlot: -1}
		target.SetLValue()
		prologue = append(prologue, ast.New(ast.Assign, n.Line, target, converted))
	}

	last := len(n.Children) - 1
	body := c.stmt(n.Children[last])
	if len(prologue) > 0 {
		body = &ast.Node{Kind: ast.Block, Line: n.Line, Children: append(prologue, body), TempSlot: -1}
	}
	n.Children[last] = body

	c.curReturnType, c.curCanonicalReturn = prevRet, prevCanon
}

// synthesizeConstructor builds the function body spec.md §4.6 prescribes:
// `self := ALLOCATE(class-id); <field initialisers with implicit self.>;
// <other class-body statements>; return self.`
func (c *Checker) synthesizeConstructor(n *ast.Node, classSym *symtab.Symbol) {
	line := n.Line
	self := func() *ast.Node {
		return &ast.Node{Kind: ast.Self, Line: line, Sym: classSym, Type: typ.OBJ, TempSlot: -1}
	}

	allocate := ast.New(ast.Allocate, line)
	allocate.Sym = classSym
	allocate.Type = typ.OBJ
	selfTarget := self()
	selfTarget.SetLValue()
	body := []*ast.Node{ast.New(ast.Assign, line, selfTarget, allocate)}

	for _, member := range n.Children {
		switch member.Kind {
		case ast.FieldDecl:
			fieldRef := &ast.Node{Kind: ast.Member, Line: member.Line, Name: member.Name, Sym: member.Sym, Type: member.Type, TempSlot: -1, Children: []*ast.Node{self()}}
			fieldRef.SetLValue()
			body = append(body, ast.New(ast.Assign, member.Line, fieldRef, member.Children[0]))
		case ast.MethodDef:
			// methods are compiled separately; not part of the constructor body
		default:
			body = append(body, member)
		}
	}
	body = append(body, ast.New(ast.Return, line, self()))

	ctorSym := c.Users.Define(classSym.Name, symtab.FuncSym)
	ctorSym.Parent = classSym
	ctorSym.Flags |= symtab.Constructor
	ctorSym.Type = typ.OBJ
	ctorSym.ParamTypes = classSym.ParamTypes
	ctorSym.LocalCount = classSym.LocalCount
	ctorSym.TempCount = classSym.TempCount
	ctorSym.SelfSlot = classSym.SelfSlot
	classSym.Ctor = ctorSym

	ctorBody := &ast.Node{Kind: ast.Block, Line: line, Children: body, TempSlot: -1}
	ctorNode := ast.NewFunDef(line, classSym.Name, n.ParamNames, classSym.ParamTypes, typ.OBJ, ctorBody)
	ctorNode.Sym = ctorSym
	ctorNode.ParamSyms = n.ParamSyms

	c.ctors = append(c.ctors, ctorNode)
}

// coerce wraps n in an implicit conversion to target when its type
// differs, per spec.md testable property 2. A bare (just-resolved but
// not yet typed) node adopts target directly instead of being wrapped.
func (c *Checker) coerce(n *ast.Node, target typ.Type) *ast.Node {
	if n == nil {
		return nil
	}
	if n.Kind == ast.Real {
		c.Reporter.Errorf(diag.TypeError, n.Line, "floating point numbers are not supported")
		n.Type = target
		return n
	}
	if n.Type == typ.Unknown {
		if target == typ.Unknown {
			target = typ.OBJ
		}
		n.Type = target
		return n
	}
	if target == typ.Unknown || n.Type.Canonical() == target.Canonical() {
		return n
	}
	return ast.NewConvert(n.Line, target, c.Builtins.Convert, n)
}
