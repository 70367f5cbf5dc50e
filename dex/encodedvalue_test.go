package dex

import "testing"

func TestDecodeEncodedValueByte(t *testing.T) {
	// tag: type=0x00 (byte), size-1=0 -> 1 payload byte
	data := []byte{0x00, 0xFF}
	v, pos := DecodeEncodedValue(data, 0, nil)
	if v.Kind != KindInt || v.I != -1 {
		t.Fatalf("got %+v, want Int(-1)", v)
	}
	if pos != 2 {
		t.Fatalf("got pos %d, want 2", pos)
	}
}

func TestDecodeEncodedValueBoolean(t *testing.T) {
	// type=0x1f (boolean), arg bit set -> true, no payload bytes
	data := []byte{0x1f | (1 << 5)}
	v, pos := DecodeEncodedValue(data, 0, nil)
	if v.Kind != KindBoolean || v.I != 1 {
		t.Fatalf("got %+v, want Boolean(true)", v)
	}
	if pos != 1 {
		t.Fatalf("got pos %d, want 1", pos)
	}
}

func TestDecodeEncodedValueUnknownTagIsPermissive(t *testing.T) {
	data := []byte{0x01} // reserved, not a defined VALUE_* tag
	v, pos := DecodeEncodedValue(data, 0, nil)
	if v.Kind != KindNull {
		t.Fatalf("got %+v, want Null", v)
	}
	if pos != 1 {
		t.Fatalf("got pos %d, want 1 (tag byte only)", pos)
	}
}

func TestDecodeEncodedValueMethodHandle(t *testing.T) {
	// type=0x16 (method handle), size-1=0 -> 1 payload byte, idx=7
	data := []byte{0x16, 0x07}
	v, pos := DecodeEncodedValue(data, 0, nil)
	if v.Kind != KindMethodHandle || v.I != 7 {
		t.Fatalf("got %+v, want MethodHandle(7)", v)
	}
	if pos != 2 {
		t.Fatalf("got pos %d, want 2", pos)
	}
}

func TestDecodeEncodedValueFieldAndEnum(t *testing.T) {
	data := []byte{0x19, 0x03} // VALUE_FIELD, idx=3
	v, _ := DecodeEncodedValue(data, 0, nil)
	if v.Kind != KindField || v.I != 3 {
		t.Fatalf("got %+v, want Field(3)", v)
	}

	data = []byte{0x1b, 0x04} // VALUE_ENUM, idx=4
	v, _ = DecodeEncodedValue(data, 0, nil)
	if v.Kind != KindEnum || v.I != 4 {
		t.Fatalf("got %+v, want Enum(4)", v)
	}
}

func TestDecodeEncodedValueMethod(t *testing.T) {
	data := []byte{0x1a, 0x02} // VALUE_METHOD, idx=2
	v, pos := DecodeEncodedValue(data, 0, nil)
	if v.Kind != KindMethod || v.I != 2 {
		t.Fatalf("got %+v, want Method(2)", v)
	}
	if pos != 2 {
		t.Fatalf("got pos %d, want 2", pos)
	}
}

func TestDecodeEncodedValueArray(t *testing.T) {
	// VALUE_ARRAY wrapping the same [5, -2, true] array as
	// TestDecodeEncodedArrayRoundTrip.
	data := []byte{
		0x1c,
		0x03,            // count = 3
		0x00, 0x05,      // byte 5
		0x00, 0xFE,      // byte -2
		0x1f | (1 << 5), // boolean true
	}
	v, pos := DecodeEncodedValue(data, 0, nil)
	if v.Kind != KindArray || len(v.Arr) != 3 {
		t.Fatalf("got %+v, want Array of 3", v)
	}
	if v.Arr[0].I != 5 || v.Arr[1].I != -2 || v.Arr[2].I != 1 {
		t.Fatalf("got %+v", v.Arr)
	}
	if pos != len(data) {
		t.Fatalf("got pos %d, want %d", pos, len(data))
	}
}

func TestDecodeEncodedValueAnnotation(t *testing.T) {
	// VALUE_ANNOTATION: type_idx=0, one element named by string idx 0,
	// whose value is Int(9).
	data := []byte{
		0x1d,
		0x00,       // type_idx = 0
		0x01,       // element count = 1
		0x00,       // name_idx = 0
		0x00, 0x09, // byte 9
	}
	v, pos := DecodeEncodedValue(data, 0, nil)
	if v.Kind != KindAnnotation || v.Anno == nil {
		t.Fatalf("got %+v, want Annotation", v)
	}
	if len(v.Anno.Elements) != 1 || v.Anno.Elements[0].Value.I != 9 {
		t.Fatalf("got %+v", v.Anno)
	}
	if pos != len(data) {
		t.Fatalf("got pos %d, want %d", pos, len(data))
	}
}

func TestDecodeEncodedArrayRoundTrip(t *testing.T) {
	// [Int(5), Int(-2), Boolean(true)]
	data := []byte{
		0x03,             // count = 3
		0x00, 0x05,       // byte 5
		0x00, 0xFE,       // byte -2
		0x1f | (1 << 5),  // boolean true
	}
	values, pos := DecodeEncodedArray(data, 0, nil)
	if pos != len(data) {
		t.Fatalf("got pos %d, want %d", pos, len(data))
	}
	if len(values) != 3 {
		t.Fatalf("got %d values, want 3", len(values))
	}
	if values[0].I != 5 || values[1].I != -2 || values[2].I != 1 {
		t.Fatalf("got %+v", values)
	}
}

func TestDecodeEncodedValueInt(t *testing.T) {
	// type=0x04 (int), size-1=3 -> 4 payload bytes, little endian -1
	data := []byte{0x04 | (3 << 5), 0xFF, 0xFF, 0xFF, 0xFF}
	v, pos := DecodeEncodedValue(data, 0, nil)
	if v.Kind != KindInt || v.I != -1 {
		t.Fatalf("got %+v, want Int(-1)", v)
	}
	if pos != 5 {
		t.Fatalf("got pos %d, want 5", pos)
	}
}
