// Package typ holds the small static-type vocabulary shared by the AST and
// the symbol table, kept separate from both so that neither has to import
// the other just to talk about types.
package typ

// Type is the static type of an expression or declared storage slot.
// VAR is reserved and currently treated identically to OBJ (spec.md Open
// Question: "the intended semantics of the VAR AST type flag is unclear").
type Type int

const (
	Unknown Type = iota
	INT
	OBJ
	VAR
)

func (t Type) String() string {
	switch t {
	case INT:
		return "int"
	case OBJ:
		return "obj"
	case VAR:
		return "var"
	default:
		return "?"
	}
}

// Canonical reports the type used for storage/ABI purposes: VAR decays to
// OBJ everywhere except the declared-type slot itself.
func (t Type) Canonical() Type {
	if t == VAR {
		return OBJ
	}
	return t
}
