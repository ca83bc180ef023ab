package symtab

// Builtin operator/class ids (spec.md §6: "prescribed ids that generated
// code compiles against"). Negative, small, stable across a process
// lifetime; built-ins never appear in the user table.
const (
	OpAdd     int32 = -1
	OpSub     int32 = -2
	OpMul     int32 = -3
	OpDiv     int32 = -4
	OpEq      int32 = -5
	OpLe      int32 = -6
	OpLt      int32 = -7
	OpNot     int32 = -8
	OpConvert int32 = -9
	OpAllocate int32 = -10
	OpSelf    int32 = -11

	FnPrint  int32 = -12
	FnAssert int32 = -13
	FnExit   int32 = -14 // supplemented: original_source's `exit` builtin

	ClassBoxedInt  int32 = -20
	ClassBoxedReal int32 = -21
	ClassString    int32 = -22
	ClassArray     int32 = -23
)

// Builtins holds the two tables any pass needs alongside the per-program
// user table: the built-in symbol table itself, plus direct handles to
// the handful of built-ins every later pass looks up by name rather than
// by walking the table.
type Builtins struct {
	Table *Table

	Convert *Symbol // OpConvert, used by typecheck to synthesise CONVERT wrappers
	Print   *Symbol
	Assert  *Symbol
	Exit    *Symbol

	BoxedInt  *Symbol
	BoxedReal *Symbol
	String    *Symbol
	Array     *Symbol
}

// NewBuiltins installs every prescribed built-in at its fixed id (spec.md
// §6). Operators are HIDDEN (never resolved by bare identifier lookup;
// the baseline compiler recognises them structurally); print/assert/exit
// are ordinary callables, resolved like any user function.
func NewBuiltins() *Builtins {
	t := NewBuiltinTable()
	b := &Builtins{Table: t}

	def := func(id int32, name string, kind Kind, flags Flag) *Symbol {
		sym := t.DefineAt(id, name, kind)
		sym.Flags |= Builtin | flags
		return sym
	}

	def(OpAdd, "__add", FuncSym, Hidden)
	def(OpSub, "__sub", FuncSym, Hidden)
	def(OpMul, "__mul", FuncSym, Hidden)
	def(OpDiv, "__div", FuncSym, Hidden)
	def(OpEq, "__eq", FuncSym, Hidden)
	def(OpLe, "__le", FuncSym, Hidden)
	def(OpLt, "__lt", FuncSym, Hidden)
	def(OpNot, "__not", FuncSym, Hidden)
	b.Convert = def(OpConvert, "__convert_builtin", FuncSym, Hidden)
	def(OpAllocate, "__allocate", FuncSym, Hidden)
	def(OpSelf, "__self", FuncSym, Hidden)

	b.Print = def(FnPrint, "print", FuncSym, 0)
	b.Assert = def(FnAssert, "assert", FuncSym, 0)
	b.Exit = def(FnExit, "exit", FuncSym, 0)

	b.BoxedInt = def(ClassBoxedInt, "int", ClassSym, Hidden)
	b.BoxedReal = def(ClassBoxedReal, "real", ClassSym, Hidden)
	b.String = def(ClassString, "string", ClassSym, Hidden)
	b.Array = def(ClassArray, "array", ClassSym, Hidden)

	return b
}

// Lookup finds a built-in by name among the non-hidden callables (print,
// assert, exit) — the ones a user program can reference by bare
// identifier. Operators and built-in classes are never looked up this
// way; they are recognised structurally by AST kind (BinOp/Not/Allocate)
// or by the `is` keyword grammar.
func (b *Builtins) Lookup(name string) (*Symbol, bool) {
	switch name {
	case "print":
		return b.Print, true
	case "assert":
		return b.Assert, true
	case "exit":
		return b.Exit, true
	}
	return nil, false
}
