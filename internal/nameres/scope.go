package nameres

import "avm/internal/symtab"

// scope is one lexical scope: a chain of name->symbol bindings plus the
// bookkeeping name analysis threads through it (storage class, loop
// nesting, enclosing function/class).
type scope struct {
	parent *scope
	names  map[string]*symtab.Symbol

	// storage: where a new local binding's offset comes from. Global
	// offsets come from Analyzer.NextGlobal, shared by the whole program;
	// locals/temps reset per function and are restored across sibling
	// blocks so they may reuse offsets (spec.md §4.5).
	fn *funcScope

	inLoop bool
}

// funcScope is the per-function (or per-constructor/method) storage
// state, shared by every nested block scope belonging to one function
// body.
type funcScope struct {
	sym *symtab.Symbol

	nextLocal int
	maxLocal  int
	nextTemp  int
	maxTemp   int

	// ctorParams, if this function is a method, is the receiver class's
	// constructor-parameter scope, used to reject references from a method
	// body to a constructor parameter (spec.md §4.5).
	ctorParams map[string]bool

	// class is set while analysing a method body, for the "nested function
	// inside a function: error; nested method inside a class: permitted"
	// rule, and so member lookups inside the body know their receiver class.
	class *symtab.Symbol
}

func newScope(parent *scope) *scope {
	s := &scope{parent: parent, names: map[string]*symtab.Symbol{}}
	if parent != nil {
		s.fn = parent.fn
		s.inLoop = parent.inLoop
	}
	return s
}

func (s *scope) lookup(name string) (*symtab.Symbol, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if sym, ok := cur.names[name]; ok {
			return sym, true
		}
	}
	return nil, false
}

// bind installs name in this scope only (shadowing any outer binding),
// per the var-decl shadowing rule in spec.md §4.5.
func (s *scope) bind(name string, sym *symtab.Symbol) {
	s.names[name] = sym
}

func (fs *funcScope) allocLocal() int {
	off := fs.nextLocal
	fs.nextLocal++
	if fs.nextLocal > fs.maxLocal {
		fs.maxLocal = fs.nextLocal
	}
	return off
}

func (fs *funcScope) allocTemp() int {
	off := fs.nextTemp
	fs.nextTemp++
	if fs.nextTemp > fs.maxTemp {
		fs.maxTemp = fs.nextTemp
	}
	return off
}

// saveLocals/restoreLocals bracket a block so that sibling blocks reuse
// the same local-variable offsets (spec.md §4.5: "a per-block scope
// discipline so that sibling blocks may reuse offsets").
func (fs *funcScope) saveLocals() int        { return fs.nextLocal }
func (fs *funcScope) restoreLocals(mark int) { fs.nextLocal = mark }
