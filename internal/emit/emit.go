package emit

import (
	"avm/internal/codebuf"
)

// Cond is a compare-to-flag condition code, used by both Jcc and Setcc.
type Cond uint8

const (
	Eq Cond = 0x4 // je/sete
	Ne Cond = 0x5
	Lt Cond = 0xc // jl/setl (signed less-than)
	Le Cond = 0xe // jle/setle (signed less-or-equal)
)

// Label is a handle to an unresolved relative displacement, carrying the
// absolute address of the 4-byte slot to patch and the absolute address
// of the instruction following it (spec.md §4.2). It must be resolved
// exactly once, via Emitter.Resolve, before the buffer is executed.
//
// Grounded in spirit on labelResolutionPend from
// other_examples/fe000123_..._amd64-machine.go.go, simplified to a single
// struct since this emitter resolves eagerly rather than batching.
type Label struct {
	slotAddr uintptr
	nextAddr uintptr
	resolved bool
}

// Emitter writes instructions into one codebuf.Buffer.
type Emitter struct {
	buf *codebuf.Buffer
}

func New(buf *codebuf.Buffer) *Emitter {
	return &Emitter{buf: buf}
}

func (e *Emitter) Buffer() *codebuf.Buffer { return e.buf }

// Here returns the address the next emitted byte will land at.
func (e *Emitter) Here() uintptr {
	return e.buf.Entrypoint() + uintptr(e.buf.Used())
}

// --- data movement ---

// MovImm64 loads a 64-bit immediate into dst.
func (e *Emitter) MovImm64(dst Reg, v int64) {
	b := make([]byte, 0, 2+8)
	b = append(b, rex(true, false, false, dst.ext()))
	b = append(b, 0xB8+dst.num())
	b = appendImm64(b, v)
	e.commit(b)
}

// MovRegReg copies src into dst.
func (e *Emitter) MovRegReg(dst, src Reg) {
	e.emit3(0x89, src, dst) // MOV r/m64, r64 with r/m=dst(reg-direct), reg=src
}

// LoadMem loads *(base+disp) into dst.
func (e *Emitter) LoadMem(dst, base Reg, disp int32) {
	b := appendRegMem(nil, 0x8B, dst, base, disp)
	e.commit(b)
}

// StoreMem stores src into *(base+disp).
func (e *Emitter) StoreMem(base Reg, disp int32, src Reg) {
	b := appendRegMem(nil, 0x89, src, base, disp)
	e.commit(b)
}

// LoadAbs materialises an absolute 64-bit address into dst: a
// load-immediate of the address, since the RWX pool and heap semispaces
// are never moved once allocated (spec.md §9's RWX/label-patching note),
// so the address is a stable constant at emission time.
func (e *Emitter) LoadAbs(dst Reg, addr uintptr) {
	e.MovImm64(dst, int64(addr))
}

// --- arithmetic / compare ---

func (e *Emitter) Add(dst, src Reg) { e.emit3(0x01, src, dst) }
func (e *Emitter) Sub(dst, src Reg) { e.emit3(0x29, src, dst) }

// Mul multiplies dst by src (IMUL r64, r/m64, opcode 0F AF /r, reg=dst).
func (e *Emitter) Mul(dst, src Reg) {
	b := make([]byte, 0, 4)
	b = append(b, rex(true, dst.ext(), false, src.ext()))
	b = append(b, 0x0F, 0xAF)
	b = append(b, modrm(3, dst.num(), src.num()))
	e.commit(b)
}

// Div computes signed RAX/divisor -> quotient in RAX, remainder in RDX.
// Callers must have RAX/RDX set up (CQO sign-extension then IDIV).
func (e *Emitter) Div(divisor Reg) {
	// CQO: sign-extend RAX into RDX:RAX.
	e.commit([]byte{rex(true, false, false, false), 0x99})
	b := make([]byte, 0, 3)
	b = append(b, rex(true, false, false, divisor.ext()))
	b = append(b, 0xF7)
	b = append(b, modrm(3, 7, divisor.num()))
	e.commit(b)
}

// Cmp compares a against b (sets flags for a later Jcc/Setcc).
func (e *Emitter) Cmp(a, b Reg) { e.emit3(0x39, b, a) }

// Setcc writes 0/1 into the low byte of dst according to cond, then
// zero-extends the rest of dst (spec.md's not/compare built-ins need a
// full 0/1 machine word, not just a byte).
func (e *Emitter) Setcc(dst Reg, cond Cond) {
	b := make([]byte, 0, 4)
	b = append(b, rex(false, false, false, dst.ext()))
	b = append(b, 0x0F, 0x90+byte(cond))
	b = append(b, modrm(3, 0, dst.num()))
	e.commit(b)
	e.zeroExtendByte(dst)
}

func (e *Emitter) zeroExtendByte(r Reg) {
	b := make([]byte, 0, 4)
	b = append(b, rex(true, r.ext(), false, r.ext()))
	b = append(b, 0x0F, 0xB6)
	b = append(b, modrm(3, r.num(), r.num()))
	e.commit(b)
}

// Not computes the logical not of src (0 -> 1, nonzero -> 0) into dst.
func (e *Emitter) Not(dst, src Reg) {
	e.commit([]byte{rex(true, false, false, src.ext()), 0x83, modrm(3, 7, src.num()), 0x00}) // cmp src, 0
	e.Setcc(dst, Eq)
}

func (e *Emitter) emit3(opcode byte, reg, rm Reg) {
	b := appendRegReg(nil, opcode, reg, rm)
	e.commit(b)
}

// --- stack ---

func (e *Emitter) Push(r Reg) {
	b := make([]byte, 0, 2)
	if r.ext() {
		b = append(b, rex(false, false, false, true))
	}
	b = append(b, 0x50+r.num())
	e.commit(b)
}

func (e *Emitter) Pop(r Reg) {
	b := make([]byte, 0, 2)
	if r.ext() {
		b = append(b, rex(false, false, false, true))
	}
	b = append(b, 0x58+r.num())
	e.commit(b)
}

// SubSP/AddSP adjust the stack pointer by an immediate, for frame
// allocation/deallocation.
func (e *Emitter) SubSP(n int32) { e.aluImmSP(5, n) }
func (e *Emitter) AddSP(n int32) { e.aluImmSP(0, n) }

func (e *Emitter) aluImmSP(modrmReg byte, n int32) {
	b := []byte{rex(true, false, false, false), 0x81, modrm(3, modrmReg, uint8(SP))}
	b = appendImm32(b, n)
	e.commit(b)
}

// --- control flow ---

// Jcc / Jmp emit a near (rel32) conditional/unconditional
// jump and return a Label over its displacement slot.
func (e *Emitter) Jcc(cond Cond) Label {
	b := []byte{0x0F, 0x80 + byte(cond)}
	return e.emitRel32(b)
}

func (e *Emitter) Jmp() Label {
	return e.emitRel32([]byte{0xE9})
}

// CallRel reserves a call whose target will be resolved like a jump
// label (used for calls to not-yet-compiled callables reached via their
// trampoline, whose address is already known at emission time in this
// design, so CallAbs is the common case; CallRel exists for completeness
// with the spec's "call" instruction category).
func (e *Emitter) CallRel() Label {
	return e.emitRel32([]byte{0xE8})
}

// CallAbs calls through a register holding an absolute address (the
// callee's current code pointer, initially its trampoline, spec.md
// §4.7 "Function call").
func (e *Emitter) CallAbs(target Reg) {
	b := []byte{}
	if target.ext() {
		b = append(b, rex(false, false, false, true))
	}
	b = append(b, 0xFF, modrm(3, 2, target.num()))
	e.commit(b)
}

func (e *Emitter) Ret() {
	e.commit([]byte{0xC3})
}

// JmpAbs jumps unconditionally through a register holding an absolute
// address (FF /4), the indirect-jump counterpart to CallAbs's FF /2 —
// used by internal/trampoline to patch a trampoline stub in place once
// its target has been compiled (spec.md §4.8 step 5): a tail jump, no
// return address pushed.
func (e *Emitter) JmpAbs(target Reg) {
	b := []byte{}
	if target.ext() {
		b = append(b, rex(false, false, false, true))
	}
	b = append(b, 0xFF, modrm(3, 4, target.num()))
	e.commit(b)
}

func (e *Emitter) emitRel32(prefix []byte) Label {
	b := append(append([]byte{}, prefix...), 0, 0, 0, 0)
	start := e.Here()
	e.commit(b)
	slot := start + uintptr(len(prefix))
	next := start + uintptr(len(b))
	return Label{slotAddr: slot, nextAddr: next}
}

// Resolve patches a previously-emitted Label so that its relative
// displacement points at target. May be called before or after the
// branch that produced the label is itself emitted (the slot address is
// already fixed), but must be called exactly once (spec.md §4.2).
func (e *Emitter) Resolve(l *Label, target uintptr) {
	if l.resolved {
		diagPanic("label resolved twice")
	}
	l.resolved = true
	disp := int32(int64(target) - int64(l.nextAddr))
	patchRel32(l.slotAddr, disp)
}

func diagPanic(msg string) { panic("emit: " + msg) }

// commit copies pre-built bytes into the buffer via Alloc, so that buffer
// growth/relocation is always funnelled through codebuf.Buffer.Alloc.
func (e *Emitter) commit(b []byte) {
	dst := e.buf.Alloc(len(b))
	copy(dst, b)
}
