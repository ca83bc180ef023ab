package codebuf

import "unsafe"

// uintptrOf returns the address of the first byte of mem. Generated code
// only ever receives addresses as uintptr values (to call through, to
// patch into a trampoline's jump target, to record in the address store),
// never as live Go pointers, so converting once here and treating the
// result as an opaque integer from that point on is safe: the underlying
// mmap'd memory is never moved or collected by the Go runtime.
func uintptrOf(mem []byte) uintptr {
	if len(mem) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&mem[0]))
}
