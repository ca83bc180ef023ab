package addrstore

import (
	"time"

	"github.com/google/pprof/profile"
)

// InvocationCounts lets the caller (internal/trampoline) attach per-symbol
// dyncomp-invocation counts to the exported profile, so avmdump -pprof
// doubles as a view of how many callables were ever actually compiled
// (spec.md §4.8's "dead functions never compiled" property, made visible).
type InvocationCounts map[string]int64

// ExportProfile renders the address store as a github.com/google/pprof
// Profile: one Location per recorded range, one Function per distinct
// name, and (when counts is non-nil) a "compilations" sample type giving
// each function's invocation count. This is a debug/introspection aid
// (SPEC_FULL.md §2), not part of the compilation-correctness surface.
func ExportProfile(s *Store, counts InvocationCounts) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "compilations", Unit: "count"}},
		TimeNanos:  time.Now().UnixNano(),
	}

	funcByName := map[string]*profile.Function{}
	nextFuncID := uint64(1)
	nextLocID := uint64(1)

	funcFor := func(name string) *profile.Function {
		if f, ok := funcByName[name]; ok {
			return f
		}
		f := &profile.Function{ID: nextFuncID, Name: name}
		nextFuncID++
		funcByName[name] = f
		p.Function = append(p.Function, f)
		return f
	}

	for _, e := range s.All() {
		fn := funcFor(e.Name)
		loc := &profile.Location{
			ID:      nextLocID,
			Address: uint64(e.Start),
			Line:    []profile.Line{{Function: fn}},
		}
		nextLocID++
		p.Location = append(p.Location, loc)

		var value int64
		if counts != nil {
			value = counts[e.Name]
		}
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{value},
			Label:    map[string][]string{"kind": {e.Kind.String()}},
		})
	}
	return p
}
