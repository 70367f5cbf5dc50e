// Package bincursor implements the low-level byte-cursor reads that every
// DEX table decoder is built on: unsigned LEB128 and fixed-width
// little-endian integers over a plain byte slice.
package bincursor

import "encoding/binary"

// Cursor is a read-only position into a byte buffer. It carries no error
// state of its own; callers combine it with the buffer to decide whether a
// read ran off the end.
type Cursor struct {
	Data []byte
	Pos  int
}

// New wraps data at the given starting position.
func New(data []byte, pos int) *Cursor {
	return &Cursor{Data: data, Pos: pos}
}

// Uleb128 reads an unsigned LEB128 value: 7 bits per byte, low byte first,
// continuation bit in bit 7, terminating on the first byte with that bit
// clear. Returns the decoded value and the position just past it.
func Uleb128(data []byte, pos int) (uint32, int) {
	var result uint32
	shift := uint(0)
	for {
		b := data[pos]
		pos++
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return result, pos
}

// Uleb128p1 reads a ULEB128p1 value (stored as value+1; 0xFFFFFFFF means -1),
// used by DEX for optional indices such as a method's debug-info parameter
// names list size.
func Uleb128p1(data []byte, pos int) (int64, int) {
	v, next := Uleb128(data, pos)
	return int64(v) - 1, next
}

// Sleb128 reads a signed LEB128 value.
func Sleb128(data []byte, pos int) (int32, int) {
	var result int32
	shift := uint(0)
	var b byte
	for {
		b = data[pos]
		pos++
		result |= int32(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 32 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, pos
}

// widen reads up to n bytes starting at pos, zero-padding on the high side
// if the read would run past the end of data. This tolerance is deliberate:
// the instruction decoder's narrow literal forms (e.g. const/16, const/high16)
// rely on it rather than bounds-checking every call site.
func widen(data []byte, pos, n int) [8]byte {
	var buf [8]byte
	for i := 0; i < n; i++ {
		if pos+i < len(data) {
			buf[i] = data[pos+i]
		}
	}
	return buf
}

// U16 reads a little-endian uint16 at pos, zero-padding past the buffer end.
func U16(data []byte, pos int) uint16 {
	buf := widen(data, pos, 2)
	return binary.LittleEndian.Uint16(buf[:2])
}

// I16 reads a little-endian int16 at pos, zero-padding past the buffer end.
func I16(data []byte, pos int) int16 {
	return int16(U16(data, pos))
}

// U32 reads a little-endian uint32 at pos, zero-padding past the buffer end.
func U32(data []byte, pos int) uint32 {
	buf := widen(data, pos, 4)
	return binary.LittleEndian.Uint32(buf[:4])
}

// I32 reads a little-endian int32 at pos, zero-padding past the buffer end.
func I32(data []byte, pos int) int32 {
	return int32(U32(data, pos))
}

// U64 reads a little-endian uint64 at pos, zero-padding past the buffer end.
func U64(data []byte, pos int) uint64 {
	buf := widen(data, pos, 8)
	return binary.LittleEndian.Uint64(buf[:8])
}

// I64 reads a little-endian int64 at pos, zero-padding past the buffer end.
func I64(data []byte, pos int) int64 {
	return int64(U64(data, pos))
}
