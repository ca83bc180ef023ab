package emit

import (
	"testing"

	"golang.org/x/arch/x86/x86asm"

	"avm/internal/codebuf"
)

// decode disassembles the single instruction starting at off within b's
// used bytes, for the round-trip property in spec.md §8:
// "Emit-and-disassemble: ... recovered operands equal the input."
func decode(t *testing.T, b *codebuf.Buffer, off int) x86asm.Inst {
	t.Helper()
	inst, err := x86asm.Decode(b.Bytes()[off:], 64)
	if err != nil {
		t.Fatalf("decode at %d: %v", off, err)
	}
	return inst
}

func TestMovImm64RoundTrip(t *testing.T) {
	pool := codebuf.NewPool(0)
	buf := pool.New(32)
	e := New(buf)
	e.MovImm64(RDI, 0x1122334455)

	inst := decode(t, buf, 0)
	if inst.Op != x86asm.MOV {
		t.Fatalf("want MOV, got %v", inst.Op)
	}
	imm, ok := inst.Args[1].(x86asm.Imm)
	if !ok || int64(imm) != 0x1122334455 {
		t.Fatalf("want immediate 0x1122334455, got %#v", inst.Args[1])
	}
	reg, ok := inst.Args[0].(x86asm.Reg)
	if !ok || reg != x86asm.RDI {
		t.Fatalf("want RDI, got %#v", inst.Args[0])
	}
}

func TestAddRegRegRoundTrip(t *testing.T) {
	pool := codebuf.NewPool(0)
	buf := pool.New(32)
	e := New(buf)
	e.Add(RAX, RBX)

	inst := decode(t, buf, 0)
	if inst.Op != x86asm.ADD {
		t.Fatalf("want ADD, got %v", inst.Op)
	}
	dst, ok := inst.Args[0].(x86asm.Reg)
	if !ok || dst != x86asm.RAX {
		t.Fatalf("want RAX destination, got %#v", inst.Args[0])
	}
	src, ok := inst.Args[1].(x86asm.Reg)
	if !ok || src != x86asm.RBX {
		t.Fatalf("want RBX source, got %#v", inst.Args[1])
	}
}

func TestRetRoundTrip(t *testing.T) {
	pool := codebuf.NewPool(0)
	buf := pool.New(8)
	e := New(buf)
	e.Ret()
	inst := decode(t, buf, 0)
	if inst.Op != x86asm.RET {
		t.Fatalf("want RET, got %v", inst.Op)
	}
}

func TestJmpLabelResolution(t *testing.T) {
	pool := codebuf.NewPool(0)
	buf := pool.New(64)
	e := New(buf)

	lbl := e.Jmp()
	// pad a few bytes so target != fallthrough, proving the displacement
	// is computed relative to the instruction after the jump.
	e.Ret()
	e.Ret()
	target := e.Here()
	e.Resolve(&lbl, target)

	inst := decode(t, buf, 0)
	if inst.Op != x86asm.JMP {
		t.Fatalf("want JMP, got %v", inst.Op)
	}
	rel, ok := inst.Args[0].(x86asm.Rel)
	if !ok {
		t.Fatalf("want Rel operand, got %#v", inst.Args[0])
	}
	gotTarget := buf.Entrypoint() + uintptr(inst.Len) + uintptr(rel)
	if gotTarget != target {
		t.Fatalf("label resolved to wrong address: got %#x want %#x", gotTarget, target)
	}
}

func TestPushPopRoundTrip(t *testing.T) {
	pool := codebuf.NewPool(0)
	buf := pool.New(16)
	e := New(buf)
	e.Push(R12)
	e.Pop(R12)

	inst := decode(t, buf, 0)
	if inst.Op != x86asm.PUSH {
		t.Fatalf("want PUSH, got %v", inst.Op)
	}
	reg, ok := inst.Args[0].(x86asm.Reg)
	if !ok || reg != x86asm.R12 {
		t.Fatalf("want R12, got %#v", inst.Args[0])
	}

	inst = decode(t, buf, inst.Len)
	if inst.Op != x86asm.POP {
		t.Fatalf("want POP, got %v", inst.Op)
	}
	reg, ok = inst.Args[0].(x86asm.Reg)
	if !ok || reg != x86asm.R12 {
		t.Fatalf("want R12, got %#v", inst.Args[0])
	}
}
