package image_test

import (
	"io"
	"os"
	"testing"

	"avm/internal/class"
	"avm/internal/config"
	"avm/internal/fixtures"
	"avm/internal/image"
)

// captureStdout runs fn with os.Stdout redirected to a pipe (the only
// place this package's bridge.go, in internal/compiler, writes program
// output), and returns whatever was written.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	saved := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = saved }()

	done := make(chan string, 1)
	go func() {
		b, _ := io.ReadAll(r)
		done <- string(b)
	}()

	fn()

	w.Close()
	out := <-done
	return out
}

// TestEndToEnd runs every spec.md §8 scenario through the full pipeline
// (name analysis, type analysis, definite-assignment, baseline compile,
// dynamic compile via trampolines) and checks its stdout.
func TestEndToEnd(t *testing.T) {
	for _, p := range fixtures.All() {
		p := p
		t.Run(p.Name, func(t *testing.T) {
			cfg := config.Default()
			img, err := image.Build(p.Build(), cfg)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			defer img.Close()

			out := captureStdout(t, func() { img.Run() })
			if out != p.Expected {
				t.Fatalf("output = %q, want %q", out, p.Expected)
			}
		})
	}
}

// TestDescriptorAssignsVtableOffsets checks that method vtable offsets
// (assigned by internal/image's Descriptor, not by name or type analysis)
// come out dense and in declaration order: class C's only method p sits
// at offset 0.
func TestDescriptorAssignsVtableOffsets(t *testing.T) {
	cfg := config.Default()
	img, err := image.Build(fixtures.MethodCall(), cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer img.Close()

	// Classes only gets an entry once its constructor is actually
	// dyncompiled (spec.md §4.8 step 1), which only happens on a call to
	// it — so the program must actually run first.
	captureStdout(t, func() { img.Run() })

	found := false
	for sym, d := range img.Runtime.Classes {
		if sym.Name != "C" {
			continue
		}
		found = true
		if d.Name != "C" {
			t.Fatalf("descriptor name = %q, want C", d.Name)
		}
		kind, off, ok := d.Lookup(img.Selectors.Selector("p").SelectorID)
		if !ok || kind != class.Method || off != 0 {
			t.Fatalf("method p: kind=%v offset=%d ok=%v, want a Method at vtable offset 0", kind, off, ok)
		}
	}
	if !found {
		t.Fatalf("no descriptor registered for class C")
	}
}
