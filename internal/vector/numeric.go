package vector

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Numeric is the set of element types the numeric codecs accept. Unlike the
// teacher's raw unsafe.Pointer float32<->uint32 reinterpret-cast (safe only
// because it never crosses architectures within one mmap'd file), every
// conversion here goes through encoding/binary and math.Float*bits so the
// on-disk byte order is little-endian regardless of host architecture
// (spec §6 "All integers little-endian").
type Numeric interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// numericLayout is built once per codec instantiation via a type switch on
// the zero value, giving per-type encode/decode closures without
// reflection on the hot path.
type numericLayout[T Numeric] struct {
	size   int
	encode func(dst []byte, v T)
	decode func(src []byte) T
}

func newNumericLayout[T Numeric]() numericLayout[T] {
	var zero T
	switch any(zero).(type) {
	case int8, uint8:
		return numericLayout[T]{
			size: 1,
			encode: func(dst []byte, v T) { dst[0] = byte(toUint64(v)) },
			decode: func(src []byte) T { return fromUint64[T](uint64(src[0])) },
		}
	case int16, uint16:
		return numericLayout[T]{
			size:   2,
			encode: func(dst []byte, v T) { binary.LittleEndian.PutUint16(dst, uint16(toUint64(v))) },
			decode: func(src []byte) T { return fromUint64[T](uint64(binary.LittleEndian.Uint16(src))) },
		}
	case int32, uint32:
		return numericLayout[T]{
			size:   4,
			encode: func(dst []byte, v T) { binary.LittleEndian.PutUint32(dst, uint32(toUint64(v))) },
			decode: func(src []byte) T { return fromUint64[T](uint64(binary.LittleEndian.Uint32(src))) },
		}
	case int64, uint64:
		return numericLayout[T]{
			size:   8,
			encode: func(dst []byte, v T) { binary.LittleEndian.PutUint64(dst, toUint64(v)) },
			decode: func(src []byte) T { return fromUint64[T](binary.LittleEndian.Uint64(src)) },
		}
	case float32:
		return numericLayout[T]{
			size: 4,
			encode: func(dst []byte, v T) {
				binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(any(v).(float32))))
			},
			decode: func(src []byte) T {
				f := math.Float32frombits(binary.LittleEndian.Uint32(src))
				return any(f).(T)
			},
		}
	case float64:
		return numericLayout[T]{
			size: 8,
			encode: func(dst []byte, v T) {
				binary.LittleEndian.PutUint64(dst, math.Float64bits(float64(any(v).(float64))))
			},
			decode: func(src []byte) T {
				f := math.Float64frombits(binary.LittleEndian.Uint64(src))
				return any(f).(T)
			},
		}
	default:
		panic(fmt.Sprintf("vector: unsupported numeric element type %T", zero))
	}
}

// toUint64/fromUint64 bridge the generic integer kinds through a single
// uint64 path; safe because the encode closures above only ever call with
// the byte width matching T's underlying kind.
func toUint64[T Numeric](v T) uint64 {
	switch x := any(v).(type) {
	case int8:
		return uint64(uint8(x))
	case int16:
		return uint64(uint16(x))
	case int32:
		return uint64(uint32(x))
	case int64:
		return uint64(x)
	case uint8:
		return uint64(x)
	case uint16:
		return uint64(x)
	case uint32:
		return uint64(x)
	case uint64:
		return x
	}
	panic("vector: toUint64 on non-integer type")
}

func fromUint64[T Numeric](v uint64) T {
	var zero T
	switch any(zero).(type) {
	case int8:
		return any(int8(uint8(v))).(T)
	case int16:
		return any(int16(uint16(v))).(T)
	case int32:
		return any(int32(uint32(v))).(T)
	case int64:
		return any(int64(v)).(T)
	case uint8:
		return any(uint8(v)).(T)
	case uint16:
		return any(uint16(v)).(T)
	case uint32:
		return any(uint32(v)).(T)
	case uint64:
		return any(v).(T)
	}
	panic("vector: fromUint64 on non-integer type")
}
