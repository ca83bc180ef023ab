// Package symtab implements the symbol table (spec.md §3, §4.3): interned
// identifiers, separate user/built-in id spaces, selector interning, and
// the per-symbol metadata consumed by every later pass.
package symtab

import (
	"fmt"

	"avm/internal/typ"
)

// Kind classifies what a Symbol names.
type Kind int

const (
	VarSym Kind = iota
	FuncSym
	ClassSym
	SelectorSym
)

// Flag bits, matching spec.md §3.
type Flag uint8

const (
	Hidden Flag = 1 << iota
	Builtin
	Member
	Param
	Constructor
	Compiled
	// Global marks a VarSym declared anywhere within the top-level
	// program body (at any if/while nesting depth, but not inside a
	// function/method/constructor), addressed relative to the runtime
	// image's static-memory area (spec.md §3/§7's global-pointer
	// register) instead of a reusable frame-relative local slot. A
	// function declared alongside such a variable can still resolve it
	// lexically (name analysis's scope chain sees it), but has no frame
	// pointer back into $main's call — so every variable $main's own
	// body can expose to a nested declaration must live somewhere
	// address-stable for the whole process lifetime, not a reused
	// per-block frame slot.
	Global
)

// CodeEntry is the address of compiled native code, or of a trampoline
// stub. It is an opaque integer (a code-buffer-relative or absolute
// address, depending on how internal/codebuf hands it out) so this package
// need not depend on internal/codebuf.
type CodeEntry uintptr

// Symbol is one entry: a variable, function (including constructor),
// class, or selector.
type Symbol struct {
	ID   int32 // positive for user symbols, negative for built-ins, 0 reserved
	Name string
	Kind Kind

	Type       typ.Type // INT / OBJ / VAR
	Parent     *Symbol  // enclosing class, for members
	ParamTypes []typ.Type
	FieldCount  int // declared fields, for ClassSym (object layout size)
	MethodCount int // declared methods, for ClassSym (vtable size)
	LocalCount int // stack-frame locals, for FuncSym
	TempCount  int // max temporaries needed, for FuncSym

	SelectorID int // 0 if not a member
	Offset     int // meaning depends on Kind (global slot / frame slot / field offset / vtable slot)

	// SelfSlot is the frame-local slot holding the implicit receiver, for
	// a method's own FuncSym or (standing in for the not-yet-synthesised
	// constructor) a class's ClassSym. -1 if this symbol has no receiver.
	SelfSlot int
	// Ctor is the synthesised constructor function, set on a ClassSym
	// once type analysis has generated it (spec.md §4.6).
	Ctor *Symbol

	Code       CodeEntry // compiled native entry, once COMPILED
	Trampoline CodeEntry // trampoline stub entry, assigned at image build time

	Flags Flag

	Fingerprint [16]byte // debug content hash of the patched trampoline stub, see Fingerprint
}

func (s *Symbol) HasFlag(f Flag) bool { return s.Flags&f != 0 }

func (s *Symbol) String() string {
	return fmt.Sprintf("%s#%d", s.Name, s.ID)
}

// Table is one id space (user or built-in) plus its string interner
// (selectors live in a separate SelectorTable). Two resolutions of the same lexical name in the same
// scope must yield the same *Symbol — callers guarantee this by always
// going through Table.Intern before allocating a new Symbol for a name.
type Table struct {
	builtin bool
	next    int32 // next id to hand out; built-in tables count up and negate
	byID    map[int32]*Symbol
	strings map[string]string // string interning: text -> canonical storage
}

// NewUserTable creates the table used for program-defined symbols (positive
// ids, 1-based).
func NewUserTable() *Table {
	return &Table{next: 1, byID: map[int32]*Symbol{}, strings: map[string]string{}}
}

// NewBuiltinTable creates the table used for built-in symbols (negative
// ids, 1-based, i.e. -1, -2, ...).
func NewBuiltinTable() *Table {
	return &Table{builtin: true, next: 1, byID: map[int32]*Symbol{}, strings: map[string]string{}}
}

// Intern returns the canonical storage for s: repeated interning of equal
// text returns the identical string header, so that subsequent `==`
// comparisons between interned strings are equivalent to pointer equality
// on the underlying data (spec.md §4.3, testable property 7). Go string
// comparison is always by value, but two Go strings produced from the same
// interned entry share the same backing array, which is what matters for
// any later code that takes address-of / unsafe.Pointer of the bytes.
func (t *Table) Intern(s string) string {
	if canon, ok := t.strings[s]; ok {
		return canon
	}
	t.strings[s] = s
	return s
}

// Define allocates and installs a new symbol with a fresh id.
func (t *Table) Define(name string, kind Kind) *Symbol {
	name = t.Intern(name)
	id := t.next
	t.next++
	symID := id
	if t.builtin {
		symID = -id
	}
	sym := &Symbol{ID: symID, Name: name, Kind: kind, SelfSlot: -1}
	t.byID[symID] = sym
	return sym
}

// DefineAt installs a built-in symbol at a prescribed id (spec.md §4.3:
// "built-ins may be added at prescribed ids during initialisation").
func (t *Table) DefineAt(id int32, name string, kind Kind) *Symbol {
	name = t.Intern(name)
	sym := &Symbol{ID: id, Name: name, Kind: kind, Flags: Builtin, SelfSlot: -1}
	t.byID[id] = sym
	if t.builtin && -id >= t.next {
		t.next = -id + 1
	}
	return sym
}

// Lookup finds a symbol by id.
func (t *Table) Lookup(id int32) (*Symbol, bool) {
	s, ok := t.byID[id]
	return s, ok
}

func (t *Table) All() []*Symbol {
	out := make([]*Symbol, 0, len(t.byID))
	for _, s := range t.byID {
		out = append(out, s)
	}
	return out
}

// SelectorTable interns member names into selector symbols. Selector ids
// are dense, program-global, and start at 1 (spec.md §3).
type SelectorTable struct {
	byName map[string]*Symbol
	next   int
}

func NewSelectorTable() *SelectorTable {
	return &SelectorTable{byName: map[string]*Symbol{}, next: 1}
}

// Selector returns the canonical selector symbol for name, creating it (at
// the next dense id) if this is the first time the member name is seen.
func (st *SelectorTable) Selector(name string) *Symbol {
	if sym, ok := st.byName[name]; ok {
		return sym
	}
	id := st.next
	st.next++
	sym := &Symbol{ID: int32(id), Name: name, Kind: SelectorSym, SelectorID: id}
	st.byName[name] = sym
	return sym
}

// Count returns the number of distinct selectors interned so far (the
// program-global dense upper bound).
func (st *SelectorTable) Count() int { return st.next - 1 }
