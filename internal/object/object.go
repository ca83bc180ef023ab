// Package object defines the built-in object layouts (spec.md §3): every
// heap object's first machine word is a pointer to its class descriptor;
// the remaining words are fields. Grounded on
// original_source/src/object.c/.h.
package object

import (
	"encoding/binary"
	"reflect"
	"unsafe"
)

// WordSize is the machine word size generated code assumes throughout
// (field offsets, array element strides, class-pointer slot).
const WordSize = 8

// ClassPtrOffset is always field 0.
const ClassPtrOffset = 0

// Boxed int / real: one field holding the scalar.
const ScalarFieldOffset = WordSize

// Array: field[0] = length (int), field[1..length] = object references.
const (
	ArrayLenOffset  = WordSize
	ArrayDataOffset = WordSize * 2
)

// String: field[0] = length (int), raw bytes follow, zero-terminated,
// padded to an 8-byte boundary.
const (
	StringLenOffset  = WordSize
	StringDataOffset = WordSize * 2
)

// bytesAt returns a slice view over n bytes at addr, for the handful of
// helpers in this package that need to read/write object memory directly
// (the bulk of object field access happens from JIT-compiled code, not
// from Go).
func bytesAt(addr uintptr, n int) []byte {
	var s []byte
	hdr := (*reflect.SliceHeader)(unsafe.Pointer(&s))
	hdr.Data = addr
	hdr.Len = n
	hdr.Cap = n
	return s
}

// ClassPtr reads the class-descriptor pointer stored in an object's first
// word.
func ClassPtr(obj uintptr) uintptr {
	return uintptr(binary.LittleEndian.Uint64(bytesAt(obj, WordSize)))
}

func SetClassPtr(obj uintptr, class uintptr) {
	binary.LittleEndian.PutUint64(bytesAt(obj, WordSize), uint64(class))
}

// IntValue / SetIntValue access a boxed int's scalar field.
func IntValue(obj uintptr) int64 {
	return int64(binary.LittleEndian.Uint64(bytesAt(obj+ScalarFieldOffset, WordSize)))
}

func SetIntValue(obj uintptr, v int64) {
	binary.LittleEndian.PutUint64(bytesAt(obj+ScalarFieldOffset, WordSize), uint64(v))
}

// RealValue / SetRealValue access a boxed real's scalar field. Floats are
// rejected at type-check time (spec.md §4.6), so these exist only for the
// object-layout contract's completeness, not for live use by the pipeline.
func RealValue(obj uintptr) float64 {
	bits := binary.LittleEndian.Uint64(bytesAt(obj+ScalarFieldOffset, WordSize))
	return *(*float64)(unsafe.Pointer(&bits))
}

func SetRealValue(obj uintptr, v float64) {
	bits := *(*uint64)(unsafe.Pointer(&v))
	binary.LittleEndian.PutUint64(bytesAt(obj+ScalarFieldOffset, WordSize), bits)
}

// ArrayLen / ArrayElem access an array's length and reference elements.
func ArrayLen(obj uintptr) int64 {
	return int64(binary.LittleEndian.Uint64(bytesAt(obj+ArrayLenOffset, WordSize)))
}

func SetArrayLen(obj uintptr, n int64) {
	binary.LittleEndian.PutUint64(bytesAt(obj+ArrayLenOffset, WordSize), uint64(n))
}

func ArrayElemAddr(obj uintptr, index int64) uintptr {
	return obj + ArrayDataOffset + uintptr(index)*WordSize
}

func ArrayElem(obj uintptr, index int64) uintptr {
	return uintptr(binary.LittleEndian.Uint64(bytesAt(ArrayElemAddr(obj, index), WordSize)))
}

func SetArrayElem(obj uintptr, index int64, v uintptr) {
	binary.LittleEndian.PutUint64(bytesAt(ArrayElemAddr(obj, index), WordSize), uint64(v))
}

// ArraySize returns the total object size (class ptr + length + len*8
// rounded per WordSize) for n reference elements.
func ArraySize(n int64) int64 {
	return int64(ArrayDataOffset) + n*WordSize
}

// StringLen / StringBytes access a string object's length-prefixed,
// zero-terminated, 8-byte-padded payload.
func StringLen(obj uintptr) int64 {
	return int64(binary.LittleEndian.Uint64(bytesAt(obj+StringLenOffset, WordSize)))
}

func StringBytes(obj uintptr) []byte {
	n := StringLen(obj)
	return bytesAt(obj+StringDataOffset, int(n))
}

func SetStringLen(obj uintptr, n int64) {
	binary.LittleEndian.PutUint64(bytesAt(obj+StringLenOffset, WordSize), uint64(n))
}

// SetStringBytes writes payload into a string object's data area (already
// sized via StringSize) and zero-terminates it, for the compiler's
// string-literal interning at compile time.
func SetStringBytes(obj uintptr, payload []byte) {
	SetStringLen(obj, int64(len(payload)))
	dst := bytesAt(obj+StringDataOffset, len(payload)+1)
	copy(dst, payload)
	dst[len(payload)] = 0
}

// StringSize returns the total object size for a string of n bytes:
// header + bytes + zero terminator, rounded up to an 8-byte boundary.
func StringSize(n int64) int64 {
	payload := n + 1 // zero terminator
	padded := (payload + WordSize - 1) &^ (WordSize - 1)
	return int64(StringDataOffset) + padded
}

// UserObjectSize returns the total object size for a user class instance
// with the given number of fields.
func UserObjectSize(nFields int) int64 {
	return int64(ClassPtrOffset) + WordSize + int64(nFields)*WordSize
}

func FieldAddr(obj uintptr, offset int) uintptr {
	return obj + WordSize + uintptr(offset)*WordSize
}

func FieldInt(obj uintptr, offset int) int64 {
	return int64(binary.LittleEndian.Uint64(bytesAt(FieldAddr(obj, offset), WordSize)))
}

func SetFieldInt(obj uintptr, offset int, v int64) {
	binary.LittleEndian.PutUint64(bytesAt(FieldAddr(obj, offset), WordSize), uint64(v))
}

func FieldObj(obj uintptr, offset int) uintptr {
	return uintptr(binary.LittleEndian.Uint64(bytesAt(FieldAddr(obj, offset), WordSize)))
}

func SetFieldObj(obj uintptr, offset int, v uintptr) {
	binary.LittleEndian.PutUint64(bytesAt(FieldAddr(obj, offset), WordSize), uint64(v))
}
