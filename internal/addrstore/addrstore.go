// Package addrstore implements the instruction-address store (spec.md §3):
// a global mapping from native code address ranges to (kind, name) pairs,
// used purely for disassembly annotation. Grounded on
// original_source/src/address-store.c/.h.
package addrstore

import "sort"

// Kind classifies what a recorded range names.
type Kind int

const (
	Function Kind = iota
	Method
	Constructor
	Trampoline
	CompilerEntry
	Builtin
)

func (k Kind) String() string {
	switch k {
	case Function:
		return "function"
	case Method:
		return "method"
	case Constructor:
		return "constructor"
	case Trampoline:
		return "trampoline"
	case CompilerEntry:
		return "compiler-entry"
	case Builtin:
		return "builtin"
	default:
		return "?"
	}
}

// Entry is one recorded native code range.
type Entry struct {
	Start, End uintptr
	Kind       Kind
	Name       string
}

// Store is the process-wide address-to-name registry. Entries are kept
// sorted by Start so Lookup can binary search.
type Store struct {
	entries []Entry
	sorted  bool
}

func New() *Store { return &Store{} }

// Record appends an entry for [start, end); entries recorded earlier are
// kept as they are.
func (s *Store) Record(start, end uintptr, kind Kind, name string) {
	s.entries = append(s.entries, Entry{Start: start, End: end, Kind: kind, Name: name})
	s.sorted = false
}

func (s *Store) ensureSorted() {
	if s.sorted {
		return
	}
	sort.Slice(s.entries, func(i, j int) bool { return s.entries[i].Start < s.entries[j].Start })
	s.sorted = true
}

// Lookup finds the entry whose range contains addr, for disassembly
// annotation.
func (s *Store) Lookup(addr uintptr) (Entry, bool) {
	s.ensureSorted()
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].Start > addr })
	if i == 0 {
		return Entry{}, false
	}
	e := s.entries[i-1]
	if addr >= e.Start && addr < e.End {
		return e, true
	}
	return Entry{}, false
}

// All returns every recorded entry, sorted by address, for dumps.
func (s *Store) All() []Entry {
	s.ensureSorted()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
