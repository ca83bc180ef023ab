// Package nameres implements name analysis (spec.md §4.5): a single
// recursive pass building lexical scopes, resolving identifiers to
// symbols, and assigning storage offsets for globals, locals and
// parameters. Temporaries get no slots here: no expression claims one, so
// every symbol's TempCount stays 0. Grounded on
// original_source/src/name-analysis.c.
package nameres

import (
	"avm/internal/ast"
	"avm/internal/diag"
	"avm/internal/symtab"
)

// Analyzer runs name analysis over a whole program.
type Analyzer struct {
	Users      *symtab.Table
	Builtins   *symtab.Builtins
	Selectors  *symtab.SelectorTable
	Reporter   *diag.Reporter
	NextGlobal int

	// topSym is $main's own symbol, set by Run. A VarDecl resolves while
	// s.fn.sym == topSym for every statement reachable from the top level
	// without crossing into a function/method/constructor body — including
	// ones nested inside top-level if/while blocks, since those share
	// $main's funcScope (block only opens a fresh funcScope for an actual
	// function, method or constructor). Such declarations get a global
	// slot instead of a frame-local one: a function declared alongside one
	// (e.g. inside the same top-level if-block) can still resolve it by
	// name through the lexical scope chain, but has no frame pointer back
	// into $main's call, so its storage must be process-lifetime-stable
	// rather than a reused per-block frame slot.
	topSym *symtab.Symbol

	// ctorParamsOf remembers, per class symbol, which names are
	// constructor parameters, so a method body that references one by
	// name gets the specific "constructor parameter captured" error
	// instead of a generic undefined-identifier error.
	ctorParamsOf map[*symtab.Symbol]map[string]bool

	// inFunction is true whenever the current scope is nested inside a
	// function body (not a method, not top level), for the "nested
	// function inside a function: error" rule.
	inFunction bool
}

func New(users *symtab.Table, builtins *symtab.Builtins, selectors *symtab.SelectorTable, reporter *diag.Reporter) *Analyzer {
	return &Analyzer{
		Users:        users,
		Builtins:     builtins,
		Selectors:    selectors,
		Reporter:     reporter,
		ctorParamsOf: map[*symtab.Symbol]map[string]bool{},
	}
}

// Run resolves names in program (a top-level Block/Program node) against
// a fresh global scope.
func (a *Analyzer) Run(program *ast.Node) {
	topSym := a.Users.Define("$main", symtab.FuncSym)
	topSym.Flags |= symtab.Hidden
	program.Sym = topSym
	a.topSym = topSym

	global := newScope(nil)
	global.fn = &funcScope{sym: topSym}
	a.block(program, global, true)

	// Every top-level VarDecl now lands in the global slot space rather
	// than $main's own frame (see topSym doc comment), so the count that
	// sizes $main's "local" storage for later passes (dataflow's bitset,
	// the compiler's static-memory area) is NextGlobal, not maxLocal.
	topSym.LocalCount = a.NextGlobal
	topSym.TempCount = global.fn.maxTemp
}

// block implements spec.md §4.5's two-sub-pass discipline. Function and
// class declarations found here get name bindings like any other
// forward-visible declaration (both passes behave the same either way);
// topLevel only affects whether this block is allowed to contain class
// declarations at all — nested classes are always an error.
func (a *Analyzer) block(n *ast.Node, parent *scope, topLevel bool) {
	s := newScope(parent)
	mark := s.fn.saveLocals()
	defer s.fn.restoreLocals(mark)

	// Pass 1: bind top-level function and class declarations so mutual
	// recursion works.
	for _, stmt := range n.Children {
		switch stmt.Kind {
		case ast.FunDef:
			a.declareFunc(stmt, s, topLevel)
		case ast.ClassDef:
			if !topLevel {
				a.Reporter.Errorf(diag.NameError, stmt.Line, "nested class %q is not allowed", stmt.Name)
			}
			a.declareClass(stmt, s)
		}
	}

	// Pass 2: left-to-right, var-decl bindings shadow as they're reached.
	for _, stmt := range n.Children {
		switch stmt.Kind {
		case ast.FunDef:
			a.analyzeFuncBody(stmt, s)
		case ast.ClassDef:
			a.analyzeClassBody(stmt, s)
		default:
			a.stmt(stmt, s)
		}
	}
}

func (a *Analyzer) declareFunc(n *ast.Node, s *scope, topLevel bool) {
	if _, dup := s.names[n.Name]; dup {
		a.Reporter.Errorf(diag.NameError, n.Line, "duplicate definition of %q", n.Name)
		return
	}
	sym := a.Users.Define(n.Name, symtab.FuncSym)
	s.bind(n.Name, sym)
	n.Sym = sym
}

func (a *Analyzer) analyzeFuncBody(n *ast.Node, outer *scope) {
	sym := n.Sym
	if sym == nil {
		return // a duplicate definition already reported
	}
	wasInFunction := a.inFunction
	if wasInFunction {
		a.Reporter.Errorf(diag.NameError, n.Line, "nested function %q is not allowed", n.Name)
	}
	a.inFunction = true
	defer func() { a.inFunction = wasInFunction }()

	fnScope := newScope(outer)
	fnScope.fn = &funcScope{sym: sym}
	a.bindParams(n, fnScope, sym)

	body := n.Children[len(n.Children)-1]
	a.block(body, fnScope, false)
	sym.LocalCount = fnScope.fn.maxLocal
	sym.TempCount = fnScope.fn.maxTemp
}

func (a *Analyzer) bindParams(n *ast.Node, fnScope *scope, sym *symtab.Symbol) {
	n.ParamSyms = make([]*symtab.Symbol, len(n.ParamNames))
	for i, pname := range n.ParamNames {
		psym := &symtab.Symbol{ID: sym.ID, Name: pname, Kind: symtab.VarSym, Offset: i, Flags: symtab.Param, SelfSlot: -1}
		fnScope.bind(pname, psym)
		n.ParamSyms[i] = psym
	}
}

func (a *Analyzer) declareClass(n *ast.Node, s *scope) {
	if _, dup := s.names[n.Name]; dup {
		a.Reporter.Errorf(diag.NameError, n.Line, "duplicate definition of %q", n.Name)
		return
	}
	sym := a.Users.Define(n.Name, symtab.ClassSym)
	s.bind(n.Name, sym)
	n.Sym = sym

	params := map[string]bool{}
	for _, p := range n.ParamNames {
		params[p] = true
	}
	a.ctorParamsOf[sym] = params

	// Methods are themselves forward-visible within the class (a method
	// may call a sibling method declared later), pre-bound here.
	for _, member := range n.Children {
		if member.Kind == ast.MethodDef {
			msym := a.Users.Define(n.Name+"."+member.Name, symtab.FuncSym)
			msym.Parent = sym
			msym.Flags |= symtab.Member
			msym.SelectorID = a.Selectors.Selector(member.Name).SelectorID
			member.Sym = msym
		}
	}
}

func (a *Analyzer) analyzeClassBody(n *ast.Node, outer *scope) {
	classSym := n.Sym
	if classSym == nil {
		return
	}

	ctorScope := newScope(outer)
	ctorScope.fn = &funcScope{sym: classSym, class: classSym, ctorParams: a.ctorParamsOf[classSym]}
	classSym.SelfSlot = ctorScope.fn.allocLocal()
	n.ParamSyms = make([]*symtab.Symbol, len(n.ParamNames))
	for i, pname := range n.ParamNames {
		psym := &symtab.Symbol{ID: classSym.ID, Name: pname, Kind: symtab.VarSym, Offset: i, Flags: symtab.Param, SelfSlot: -1}
		ctorScope.bind(pname, psym)
		n.ParamSyms[i] = psym
	}

	wasInFunction := a.inFunction
	a.inFunction = true // class-body statements run in the synthesised constructor, itself function-like

	fieldOffset := 0
	methodCount := 0
	for _, member := range n.Children {
		switch member.Kind {
		case ast.FieldDecl:
			a.expr(member.Children[0], ctorScope)
			sym := &symtab.Symbol{Name: member.Name, Kind: symtab.VarSym, Offset: fieldOffset, Flags: symtab.Member, Parent: classSym}
			sym.SelectorID = a.Selectors.Selector(member.Name).SelectorID
			member.Sym = sym
			fieldOffset++
			// Later field initializers and trailing class-body statements
			// may refer to an earlier field by bare name (the synthesised
			// constructor runs them all in the same implicit-self scope);
			// method bodies never see this binding, since they are
			// resolved against `outer`, not `ctorScope`.
			ctorScope.bind(member.Name, sym)
		case ast.MethodDef:
			methodCount++
			a.analyzeMethodBody(member, outer, classSym)
		default:
			a.stmt(member, ctorScope)
		}
	}
	classSym.FieldCount = fieldOffset
	classSym.MethodCount = methodCount
	classSym.LocalCount = ctorScope.fn.maxLocal
	classSym.TempCount = ctorScope.fn.maxTemp
	a.inFunction = wasInFunction
}

// stmt resolves one statement within scope s.
func (a *Analyzer) stmt(n *ast.Node, s *scope) {
	switch n.Kind {
	case ast.Block:
		a.block(n, s, false)
	case ast.VarDecl:
		// The rhs is analysed *before* the new binding is added, so
		// `int x = x;` resolves the rhs x against an outer scope, never
		// the declaration being introduced (spec.md §4.5).
		a.expr(n.Children[0], s)
		var sym *symtab.Symbol
		if s.fn != nil && s.fn.sym == a.topSym {
			offset := a.NextGlobal
			a.NextGlobal++
			sym = &symtab.Symbol{Name: n.Name, Kind: symtab.VarSym, Offset: offset, Flags: symtab.Global, SelfSlot: -1}
		} else {
			offset := s.fn.allocLocal()
			sym = &symtab.Symbol{Name: n.Name, Kind: symtab.VarSym, Offset: offset, SelfSlot: -1}
		}
		s.bind(n.Name, sym)
		n.Sym = sym
	case ast.Assign:
		rhs, lhs := n.Children[1], n.Children[0]
		a.expr(rhs, s)
		a.expr(lhs, s)
		lhs.SetLValue()
	case ast.If:
		a.expr(n.Children[0], s)
		a.stmt(n.Children[1], s)
		if len(n.Children) > 2 && n.Children[2] != nil {
			a.stmt(n.Children[2], s)
		}
	case ast.While:
		a.expr(n.Children[0], s)
		loopScope := newScope(s)
		loopScope.inLoop = true
		a.stmt(n.Children[1], loopScope)
	case ast.Break, ast.Continue:
		if !s.inLoop {
			a.Reporter.Errorf(diag.NameError, n.Line, "%v statement not within a loop", n.Kind)
		}
	case ast.Return:
		if len(n.Children) > 0 && n.Children[0] != nil {
			a.expr(n.Children[0], s)
		}
	default:
		a.expr(n, s)
	}
}

// expr resolves an expression node, recursing into its children
// left-to-right (the evaluation order required by spec.md §5).
func (a *Analyzer) expr(n *ast.Node, s *scope) {
	if n == nil {
		return
	}
	switch n.Kind {
	case ast.Ident:
		if sym, ok := a.lookupName(n.Name, s, n.Line); ok {
			n.Kind = ast.Resolved
			n.Sym = sym
		}
	case ast.FunApp:
		if sym, ok := a.lookupName(n.Name, s, n.Line); ok {
			n.Sym = sym
		}
		for _, c := range n.Children {
			a.expr(c, s)
		}
	case ast.MethodApp, ast.Member:
		// The receiver is a normal expression; the member/method name is
		// looked up in the selector table, never the lexical environment
		// (spec.md §4.5's "member access" rule).
		a.expr(n.Children[0], s)
		a.Selectors.Selector(n.Name)
		for _, c := range n.Children[1:] {
			a.expr(c, s)
		}
	case ast.Self:
		if s.fn != nil && s.fn.sym != nil {
			n.Sym = s.fn.sym
		} else {
			a.Reporter.Errorf(diag.NameError, n.Line, "'self' used outside a method or constructor")
		}
	case ast.Allocate:
		if sym, ok := s.lookup(n.Name); ok && sym.Kind == symtab.ClassSym {
			n.Sym = sym
		} else {
			a.Reporter.Errorf(diag.NameError, n.Line, "undefined class %q", n.Name)
		}
	case ast.ArraySub:
		a.expr(n.Children[0], s)
		a.expr(n.Children[1], s)
	case ast.IsInstance:
		a.expr(n.Children[0], s)
		switch n.Name {
		case "int", "obj", "var":
			// primitive-type keyword, resolved structurally by type
			// analysis; no symbol lookup.
		default:
			if sym, ok := s.lookup(n.Name); ok && sym.Kind == symtab.ClassSym {
				n.Sym = sym
			} else {
				a.Reporter.Errorf(diag.NameError, n.Line, "undefined type %q", n.Name)
			}
		}
	default:
		for _, c := range n.Children {
			a.expr(c, s)
		}
	}
}

// lookupName resolves name, and special-cases a constructor-parameter
// capture from within a method body (spec.md §4.5).
func (a *Analyzer) lookupName(name string, s *scope, line int) (*symtab.Symbol, bool) {
	if sym, ok := s.lookup(name); ok {
		return sym, true
	}
	if a.Builtins != nil {
		if sym, ok := a.Builtins.Lookup(name); ok {
			return sym, true
		}
	}
	if s.fn != nil && s.fn.sym != nil && s.fn.ctorParams[name] {
		a.Reporter.Errorf(diag.NameError, line, "method %q cannot reference constructor parameter %q of the enclosing class", s.fn.sym.Name, name)
		return nil, false
	}
	a.Reporter.Errorf(diag.NameError, line, "undefined identifier %q", name)
	return nil, false
}

func (a *Analyzer) analyzeMethodBody(n *ast.Node, outer *scope, classSym *symtab.Symbol) {
	sym := n.Sym
	if sym == nil {
		return
	}
	methodScope := newScope(outer)
	methodScope.fn = &funcScope{sym: sym, class: classSym, ctorParams: a.ctorParamsOf[classSym]}
	sym.SelfSlot = methodScope.fn.allocLocal()
	a.bindParams(n, methodScope, sym)

	body := n.Children[len(n.Children)-1]
	a.block(body, methodScope, false)
	sym.LocalCount = methodScope.fn.maxLocal
	sym.TempCount = methodScope.fn.maxTemp
}
