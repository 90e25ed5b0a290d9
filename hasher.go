package omap

import (
	"math/bits"
	"unsafe"
)

type hashFunc func(unsafe.Pointer, uintptr) uintptr
type equalFunc func(unsafe.Pointer, unsafe.Pointer) bool

// defaultHasher returns the hash function for K and the equality function
// for V, plus a flag reporting whether K is an integer type.
//
// Integer keys skip the built-in hasher entirely: their identity is already
// a usable hash, and the table index calculation (see h1) compensates for
// the lack of mixing.
func defaultHasher[K comparable, V any]() (keyHash hashFunc, valEqual equalFunc, intKey bool) {
	keyHash, valEqual = defaultHasherUsingBuiltIn[K, V]()

	switch any(*new(K)).(type) {
	case uint, int, uintptr:
		return func(value unsafe.Pointer, seed uintptr) uintptr {
			return *(*uintptr)(value)
		}, valEqual, true

	case uint64, int64:
		if bits.UintSize == 32 {
			return func(value unsafe.Pointer, seed uintptr) uintptr {
				v := *(*uint64)(value)
				return uintptr(v) ^ uintptr(v>>32)
			}, valEqual, true
		}

		return func(value unsafe.Pointer, seed uintptr) uintptr {
			return uintptr(*(*uint64)(value))
		}, valEqual, true

	case uint32, int32:
		return func(value unsafe.Pointer, seed uintptr) uintptr {
			return uintptr(*(*uint32)(value))
		}, valEqual, true

	case uint16, int16:
		return func(value unsafe.Pointer, seed uintptr) uintptr {
			return uintptr(*(*uint16)(value))
		}, valEqual, true

	case uint8, int8:
		return func(value unsafe.Pointer, seed uintptr) uintptr {
			return uintptr(*(*uint8)(value))
		}, valEqual, true

	default:
		return keyHash, valEqual, false
	}
}

// defaultHasherUsingBuiltIn obtains Go's built-in hash and equality
// functions for the specified types through the runtime's map type
// descriptor.
//
// Notes:
//   - This implementation relies on Go's internal type representation
//   - It should be verified for compatibility with each Go version upgrade
func defaultHasherUsingBuiltIn[K comparable, V any]() (keyHash hashFunc, valEqual equalFunc) {
	var m map[K]V
	mapType := iTypeOf(m).MapType()
	return mapType.Hasher, mapType.Elem.Equal
}

type iTFlag uint8
type iKind uint8
type iNameOff int32

// iTypeOff is the offset to a type from moduledata.types.
type iTypeOff int32

// iType mirrors the runtime's type descriptor layout.
type iType struct {
	Size_       uintptr
	PtrBytes    uintptr
	Hash        uint32
	TFlag       iTFlag
	Align_      uint8
	FieldAlign_ uint8
	Kind_       iKind
	// function for comparing objects of this type
	// (ptr to object A, ptr to object B) -> ==?
	Equal     func(unsafe.Pointer, unsafe.Pointer) bool
	GCData    *byte
	Str       iNameOff
	PtrToThis iTypeOff
}

func (t *iType) MapType() *iMapType {
	return (*iMapType)(unsafe.Pointer(t))
}

type iMapType struct {
	iType
	Key   *iType
	Elem  *iType
	Group *iType
	// function for hashing keys (ptr to key, seed) -> hash
	Hasher func(unsafe.Pointer, uintptr) uintptr
}

func iTypeOf(a any) *iType {
	eface := *(*iEmptyInterface)(unsafe.Pointer(&a))
	// Types are either static or heap-allocated but always reachable,
	// so there is no need to let them escape.
	return (*iType)(noescape(unsafe.Pointer(eface.Type)))
}

type iEmptyInterface struct {
	Type *iType
	Data unsafe.Pointer
}

// noescape hides a pointer from escape analysis.  noescape is
// the identity function but escape analysis doesn't think the
// output depends on the input.  noescape is inlined and currently
// compiles down to zero instructions.
// USE CAREFULLY!
//
// nolint:all
//
//go:nosplit
func noescape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
