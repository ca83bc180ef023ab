package symtab

import "golang.org/x/crypto/blake2b"

// Fingerprint computes a short content hash of a range of machine code.
// It has no bearing on correctness: avmdump shows it beside each
// disassembled range, and the hash of a trampoline stub taken after
// patching (spec.md §4.8 step 5) is stored on the symbol, so a patch that
// left the stub's bytes unchanged can be spotted without a byte-by-byte
// diff. This is not a cross-invocation
// cache key — incremental recompilation across invocations stays a
// Non-goal (spec.md §1).
func Fingerprint(code []byte) [16]byte {
	full := blake2b.Sum256(code)
	var short [16]byte
	copy(short[:], full[:16])
	return short
}
