package heap

import (
	"encoding/binary"
	"reflect"
	"unsafe"
)

func uintptrOf(mem []byte) uintptr {
	if len(mem) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&mem[0]))
}

func setWord(addr uintptr, v uint64) {
	var s []byte
	hdr := (*reflect.SliceHeader)(unsafe.Pointer(&s))
	hdr.Data = addr
	hdr.Len = 8
	hdr.Cap = 8
	binary.LittleEndian.PutUint64(s, v)
}
