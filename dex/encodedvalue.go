package dex

import (
	"math"

	"dexvm/bincursor"
)

// ValueKind tags the shape of a decoded EncodedValue.
type ValueKind byte

const (
	KindInt ValueKind = iota
	KindLong
	KindChar
	KindFloat
	KindDouble
	KindString
	KindType
	KindBoolean
	KindNull
	KindMethodHandle
	KindField
	KindEnum
	KindMethod
	KindArray
	KindAnnotation
)

// EncodedValue is the decoded form of the DEX encoded_value format used by
// static field initializers and annotation values.
type EncodedValue struct {
	Kind ValueKind
	I    int64  // Int, Long, Char (as code point), Boolean (0/1), pool index (Field/Enum/Method/MethodHandle)
	F32  float32
	F64  float64
	Str  string // String (resolved), Type (descriptor), or the resolved name for Field/Enum/Method
	Arr  []EncodedValue
	Anno *EncodedAnnotation
}

// EncodedAnnotation is the decoded form of encoded_annotation: a type and a
// set of name/value element pairs, the payload of a VALUE_ANNOTATION
// encoded_value.
type EncodedAnnotation struct {
	TypeIdx  uint32
	Elements []AnnotationElement
}

// AnnotationElement is one name/value pair inside an EncodedAnnotation.
type AnnotationElement struct {
	Name  string
	Value EncodedValue
}

const (
	valueByte         = 0x00
	valueShort        = 0x02
	valueChar         = 0x03
	valueInt          = 0x04
	valueLong         = 0x06
	valueFloat        = 0x10
	valueDouble       = 0x11
	valueMethodHandle = 0x16
	valueString       = 0x17
	valueType         = 0x18
	valueField        = 0x19
	valueMethod       = 0x1a
	valueEnum         = 0x1b
	valueArray        = 0x1c
	valueAnnotation   = 0x1d
	valueNull         = 0x1e
	valueBoolean      = 0x1f
)

// signExtend sign-extends the low `size` bytes of a little-endian buffer,
// read as an int64.
func signExtend(bytes []byte) int64 {
	var v int64
	for i := len(bytes) - 1; i >= 0; i-- {
		v = (v << 8) | int64(bytes[i])
	}
	shift := 64 - 8*len(bytes)
	return (v << shift) >> shift
}

func zeroExtend(bytes []byte) uint64 {
	var v uint64
	for i := len(bytes) - 1; i >= 0; i-- {
		v = (v << 8) | uint64(bytes[i])
	}
	return v
}

// leftPad right-aligns the payload bytes into a width-byte buffer, the way
// float/double encoded values are stored with their low-order zero bytes
// omitted.
func leftPad(bytes []byte, width int) []byte {
	out := make([]byte, width)
	copy(out[width-len(bytes):], bytes)
	return out
}

// DecodeEncodedValue decodes one encoded_value starting at pos. The leading
// byte splits into a 5-bit type and a 3-bit size-1 (actual payload length in
// bytes, or for VALUE_BOOLEAN the boolean value itself). container is used
// to resolve string/type/field/method indices. VALUE_ARRAY and
// VALUE_ANNOTATION ignore the size bits entirely and recurse into their own
// ULEB128-prefixed element lists. Tags this format doesn't define (reserved
// or future VALUE_* codes) decode as KindNull with no payload consumed
// beyond the tag byte (permissive, per spec).
func DecodeEncodedValue(data []byte, pos int, container *Container) (EncodedValue, int) {
	tag := data[pos]
	pos++
	kindTag := tag & 0x1f
	argSize := int(tag>>5) + 1

	switch kindTag {
	case valueByte:
		v := int64(int8(data[pos]))
		pos++
		return EncodedValue{Kind: KindInt, I: v}, pos
	case valueShort:
		payload := data[pos : pos+argSize]
		pos += argSize
		return EncodedValue{Kind: KindInt, I: signExtend(payload)}, pos
	case valueChar:
		payload := data[pos : pos+argSize]
		pos += argSize
		return EncodedValue{Kind: KindChar, I: int64(zeroExtend(payload))}, pos
	case valueInt:
		payload := data[pos : pos+argSize]
		pos += argSize
		return EncodedValue{Kind: KindInt, I: signExtend(payload)}, pos
	case valueLong:
		payload := data[pos : pos+argSize]
		pos += argSize
		return EncodedValue{Kind: KindLong, I: signExtend(payload)}, pos
	case valueFloat:
		payload := leftPad(data[pos:pos+argSize], 4)
		pos += argSize
		bits := bincursor.U32(payload, 0)
		return EncodedValue{Kind: KindFloat, F32: math.Float32frombits(bits)}, pos
	case valueDouble:
		payload := leftPad(data[pos:pos+argSize], 8)
		pos += argSize
		bits := bincursor.U64(payload, 0)
		return EncodedValue{Kind: KindDouble, F64: math.Float64frombits(bits)}, pos
	case valueString:
		payload := data[pos : pos+argSize]
		pos += argSize
		idx := uint32(zeroExtend(payload))
		s := ""
		if container != nil {
			if resolved, err := container.String(idx); err == nil {
				s = resolved
			}
		}
		return EncodedValue{Kind: KindString, Str: s}, pos
	case valueType:
		payload := data[pos : pos+argSize]
		pos += argSize
		idx := uint32(zeroExtend(payload))
		s := ""
		if container != nil {
			if resolved, err := container.TypeString(idx); err == nil {
				s = resolved
			}
		}
		return EncodedValue{Kind: KindType, Str: s}, pos
	case valueMethodHandle:
		payload := data[pos : pos+argSize]
		pos += argSize
		idx := uint32(zeroExtend(payload))
		return EncodedValue{Kind: KindMethodHandle, I: int64(idx)}, pos
	case valueField, valueEnum:
		payload := data[pos : pos+argSize]
		pos += argSize
		idx := uint32(zeroExtend(payload))
		name := ""
		if container != nil {
			if resolved, err := container.FieldName(idx); err == nil {
				name = resolved
			}
		}
		kind := KindField
		if kindTag == valueEnum {
			kind = KindEnum
		}
		return EncodedValue{Kind: kind, I: int64(idx), Str: name}, pos
	case valueMethod:
		payload := data[pos : pos+argSize]
		pos += argSize
		idx := uint32(zeroExtend(payload))
		name := ""
		if container != nil {
			if resolved, err := container.MethodName(idx); err == nil {
				name = resolved
			}
		}
		return EncodedValue{Kind: KindMethod, I: int64(idx), Str: name}, pos
	case valueArray:
		arr, newPos := DecodeEncodedArray(data, pos, container)
		return EncodedValue{Kind: KindArray, Arr: arr}, newPos
	case valueAnnotation:
		anno, newPos := decodeEncodedAnnotation(data, pos, container)
		return EncodedValue{Kind: KindAnnotation, Anno: &anno}, newPos
	case valueNull:
		return EncodedValue{Kind: KindNull}, pos
	case valueBoolean:
		v := int64(0)
		if tag>>5 != 0 {
			v = 1
		}
		return EncodedValue{Kind: KindBoolean, I: v}, pos
	default:
		// Permissive: unknown tags decode as Null without consuming the
		// (already-read) payload.
		return EncodedValue{Kind: KindNull}, pos
	}
}

// DecodeEncodedArray decodes a ULEB128 element count followed by that many
// encoded values.
func DecodeEncodedArray(data []byte, pos int, container *Container) ([]EncodedValue, int) {
	count, pos := bincursor.Uleb128(data, pos)
	out := make([]EncodedValue, 0, count)
	for i := uint32(0); i < count; i++ {
		var v EncodedValue
		v, pos = DecodeEncodedValue(data, pos, container)
		out = append(out, v)
	}
	return out, pos
}

// decodeEncodedAnnotation decodes an encoded_annotation: a type_idx followed
// by a ULEB128 element count and that many name_idx/encoded_value pairs.
func decodeEncodedAnnotation(data []byte, pos int, container *Container) (EncodedAnnotation, int) {
	typeIdx, pos := bincursor.Uleb128(data, pos)
	count, pos := bincursor.Uleb128(data, pos)

	elems := make([]AnnotationElement, 0, count)
	for i := uint32(0); i < count; i++ {
		var nameIdx uint32
		nameIdx, pos = bincursor.Uleb128(data, pos)
		name := ""
		if container != nil {
			if resolved, err := container.String(nameIdx); err == nil {
				name = resolved
			}
		}
		var v EncodedValue
		v, pos = DecodeEncodedValue(data, pos, container)
		elems = append(elems, AnnotationElement{Name: name, Value: v})
	}
	return EncodedAnnotation{TypeIdx: typeIdx, Elements: elems}, pos
}
