package emit

import "encoding/binary"

// rex builds a REX prefix byte. w selects the 64-bit operand size; r/x/b
// extend the reg/index/rm fields into registers 8-15.
func rex(w, r, x, b bool) byte {
	var v byte = 0x40
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x {
		v |= 0x02
	}
	if b {
		v |= 0x01
	}
	return v
}

// modrm builds a ModR/M byte for mod/reg/rm fields (reg and rm already
// reduced to their 3-bit encodings by the caller).
func modrm(mod, reg, rm byte) byte {
	return mod<<6 | (reg&7)<<3 | (rm & 7)
}

// appendRegReg appends `opcode`, then a ModR/M byte selecting a
// register-direct operand, to dst: REX.W + opcode + ModRM(11, reg, rm).
// This is the shape shared by ADD/SUB/CMP/MOV/IMUL r64, r64.
func appendRegReg(dst []byte, opcode byte, reg, rm Reg) []byte {
	dst = append(dst, rex(true, reg.ext(), false, rm.ext()))
	dst = append(dst, opcode)
	dst = append(dst, modrm(3, reg.num(), rm.num()))
	return dst
}

// appendRegMem appends an instruction whose memory operand is
// [base+disp32] (always the 32-bit-displacement ModRM form, so every
// encoding of a given mnemonic has the same length, matching spec.md
// §4.2's "worst-case instruction length" discipline).
func appendRegMem(dst []byte, opcode byte, reg, base Reg, disp int32) []byte {
	dst = append(dst, rex(true, reg.ext(), false, base.ext()))
	dst = append(dst, opcode)
	if base.num() == 4 { // rsp/r12 require a SIB byte
		dst = append(dst, modrm(2, reg.num(), 4))
		dst = append(dst, 0x24) // SIB: scale=0, index=none(100), base=rsp
	} else {
		dst = append(dst, modrm(2, reg.num(), base.num()))
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(disp))
	dst = append(dst, buf[:]...)
	return dst
}

func appendImm32(dst []byte, v int32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	return append(dst, buf[:]...)
}

func appendImm64(dst []byte, v int64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	return append(dst, buf[:]...)
}
