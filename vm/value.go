// Package vm implements the register-machine executor that runs decoded DEX
// methods: a tagged value type, a heap of allocated objects, call frames
// sized to a method's declared register count, and the per-instruction
// dispatch loop.
package vm

import "fmt"

// Kind tags the shape of a Value. The DEX instruction set itself is mostly
// untyped (registers hold raw 32/64-bit patterns); this interpreter keeps an
// explicit tag so native-method bridging and tracing can describe values
// without guessing.
type Kind byte

const (
	KindNull Kind = iota
	KindInt
	KindLong
	KindChar
	KindFloat
	KindDouble
	KindBool
	KindString       // resolved string constant
	KindTypeDesc     // type descriptor, e.g. from const-class
	KindFieldName    // field name, used as an internal bridging value
	KindMethodName   // method name, ditto
	KindProtoDesc    // method prototype descriptor
	KindMethodHandle // method handle pool index
	KindArray
	KindAnnotation
	KindObject // heap reference
	KindHost   // opaque value supplied by the embedding host
	KindVoid
)

// Value is the tagged union every register and heap field slot holds.
type Value struct {
	Kind   Kind
	I      int64
	F32    float32
	F64    float64
	Str    string
	Array  []Value
	Object ObjectID
	Host   any
}

// Null is the zero Value every register starts as.
var Null = Value{Kind: KindNull}

// Void is returned by methods whose return type is V.
var Void = Value{Kind: KindVoid}

func Int(v int32) Value   { return Value{Kind: KindInt, I: int64(v)} }
func Long(v int64) Value  { return Value{Kind: KindLong, I: v} }
func Char(v uint16) Value { return Value{Kind: KindChar, I: int64(v)} }
func Bool(v bool) Value {
	i := int64(0)
	if v {
		i = 1
	}
	return Value{Kind: KindBool, I: i}
}
func Float(v float32) Value      { return Value{Kind: KindFloat, F32: v} }
func Double(v float64) Value     { return Value{Kind: KindDouble, F64: v} }
func String(v string) Value      { return Value{Kind: KindString, Str: v} }
func TypeDesc(v string) Value    { return Value{Kind: KindTypeDesc, Str: v} }
func Object_(id ObjectID) Value  { return Value{Kind: KindObject, Object: id} }
func Host(v any) Value           { return Value{Kind: KindHost, Host: v} }

// Truthy coerces an int-like Value to bool the way if-eqz and friends treat
// a register: zero is false, anything else is true. Non-numeric kinds are
// truthy unless they're Null.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNull:
		return false
	case KindInt, KindLong, KindChar, KindBool:
		return v.I != 0
	default:
		return true
	}
}

// Equal implements the structural equality used by areEqual: two Values are
// equal if their kind and payload match (arrays element by element), except
// objects, which are equal only when they reference the same heap id.
// Annotation and Host values never compare equal.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNull, KindVoid:
		return true
	case KindInt, KindLong, KindChar, KindBool:
		return v.I == other.I
	case KindFloat:
		return v.F32 == other.F32
	case KindDouble:
		return v.F64 == other.F64
	case KindString, KindTypeDesc, KindFieldName, KindMethodName, KindProtoDesc:
		return v.Str == other.Str
	case KindMethodHandle:
		return v.I == other.I
	case KindArray:
		if len(v.Array) != len(other.Array) {
			return false
		}
		for i := range v.Array {
			if !v.Array[i].Equal(other.Array[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return v.Object == other.Object
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindVoid:
		return "void"
	case KindInt:
		return fmt.Sprintf("int(%d)", v.I)
	case KindLong:
		return fmt.Sprintf("long(%d)", v.I)
	case KindChar:
		return fmt.Sprintf("char(%d)", v.I)
	case KindBool:
		return fmt.Sprintf("bool(%t)", v.I != 0)
	case KindFloat:
		return fmt.Sprintf("float(%v)", v.F32)
	case KindDouble:
		return fmt.Sprintf("double(%v)", v.F64)
	case KindString:
		return fmt.Sprintf("string(%q)", v.Str)
	case KindTypeDesc:
		return fmt.Sprintf("type(%s)", v.Str)
	case KindObject:
		return fmt.Sprintf("object(%d)", v.Object)
	case KindHost:
		return "host(...)"
	default:
		return fmt.Sprintf("value(kind=%d)", v.Kind)
	}
}
