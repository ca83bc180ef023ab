// Package config holds the compiler-options struct (spec.md §6's `-f`
// surface, minus the CLI binary itself, which stays out of scope). Styled
// after compile/internal/gc/go.go's DebugFlags in the teacher.
package config

// Options controls optional behaviour of the compilation-and-execution
// pipeline. Every boolean field's zero value is its default; Default also
// fills in the heap and code-pool sizes.
type Options struct {
	// NoBoundsCheck disables runtime array bounds checks (spec.md §6 `-f`).
	NoBoundsCheck bool
	// ArrayElemTypeInt sets the configured array-element type to INT
	// instead of OBJ (spec.md §4.6's "configured array-storage type").
	ArrayElemTypeInt bool
	// DebugDyncomp logs every dynamic-compiler invocation.
	DebugDyncomp bool
	// DebugAsm logs every function's disassembly as it is compiled.
	DebugAsm bool

	// HeapSize is the total size, in bytes, of both semispaces combined.
	HeapSize int
	// CodePoolInitial is the initial RWX pool size hint, in bytes.
	CodePoolInitial int
}

// Default returns the configuration used when no flags are given.
func Default() Options {
	return Options{
		HeapSize:        16 << 20,
		CodePoolInitial: 1 << 20,
	}
}

// RegisterFlags wires Options into a *flag.FlagSet, matching the style of
// the teacher's per-subcommand flag registration (e.g. asm/main.go's
// package-level flag.Bool calls collected under flags.Parse()).
func (o *Options) RegisterFlags(fs FlagSet) {
	fs.BoolVar(&o.NoBoundsCheck, "fno-bounds-check", false, "disable runtime array bounds checks")
	fs.BoolVar(&o.ArrayElemTypeInt, "farray-int", false, "configure array element storage as int")
	fs.BoolVar(&o.DebugDyncomp, "fdebug-dyncomp", false, "log dynamic-compiler invocations")
	fs.BoolVar(&o.DebugAsm, "fdebug-asm", false, "log disassembly of each compiled function")
	fs.IntVar(&o.HeapSize, "heap-size", o.HeapSize, "total heap size in bytes (both semispaces)")
	fs.IntVar(&o.CodePoolInitial, "code-pool", o.CodePoolInitial, "initial RWX code pool size in bytes")
}

// FlagSet is the subset of *flag.FlagSet that RegisterFlags needs, so this
// package does not itself import "flag" (only cmd/avm, the actual CLI
// surface, does).
type FlagSet interface {
	BoolVar(p *bool, name string, value bool, usage string)
	IntVar(p *int, name string, value int, usage string)
}
