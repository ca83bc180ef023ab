package emit

import (
	"encoding/binary"
	"reflect"
	"unsafe"
)

// patchRel32 writes disp as a little-endian int32 at the given address
// within an RWX buffer. This is the one place the emitter writes through
// a raw address rather than via codebuf.Buffer.Alloc: label targets are
// frequently only known after later code (the "then" branch, the loop
// body) has already been emitted, so the slot must be patched in place.
func patchRel32(addr uintptr, disp int32) {
	var slice []byte
	hdr := (*reflect.SliceHeader)(unsafe.Pointer(&slice))
	hdr.Data = addr
	hdr.Len = 4
	hdr.Cap = 4
	binary.LittleEndian.PutUint32(slice, uint32(disp))
}
