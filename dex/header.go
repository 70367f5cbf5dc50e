// Package dex decodes the on-disk DEX container format: the fixed header,
// the five constant-pool ID tables, the class_defs table, and the
// variable-length data section (strings, code items, class data, encoded
// arrays, parameter lists) that those tables point into.
package dex

import (
	"errors"
	"fmt"

	"dexvm/bincursor"
)

// HeaderSize is the fixed on-disk size of a DEX header.
const HeaderSize = 112

// ErrMalformedHeader is returned when the buffer is shorter than HeaderSize.
var ErrMalformedHeader = errors.New("dex: malformed header")

// Header is the fixed-layout DEX header record. All offsets are absolute
// file offsets except where noted. Magic/endian validation is the caller's
// responsibility (see ValidateMagic); DecodeHeader itself decodes fields
// unconditionally once the length check passes.
type Header struct {
	Magic      [8]byte
	Checksum   uint32
	Signature  [20]byte
	FileSize   uint32
	HeaderSize uint32
	EndianTag  uint32
	LinkSize   uint32
	LinkOff    uint32

	StringIDsSize uint32
	StringIDsOff  uint32
	TypeIDsSize   uint32
	TypeIDsOff    uint32
	ProtoIDsSize  uint32
	ProtoIDsOff   uint32
	FieldIDsSize  uint32
	FieldIDsOff   uint32
	MethodIDsSize uint32
	MethodIDsOff  uint32
	ClassDefsSize uint32
	ClassDefsOff  uint32

	DataSize uint32
	DataOff  uint32

	MapOff uint32
}

// NoIndex is the sentinel denoting "absent" for superclass_idx and
// source_file_idx in a class_def.
const NoIndex uint32 = 0xFFFFFFFF

// expectedMagicPrefix is the fixed, non-version portion of a DEX magic.
var expectedMagicPrefix = [4]byte{'d', 'e', 'x', '\n'}

// DecodeHeader reads the header fields in fixed order. Fails with
// ErrMalformedHeader if the buffer is shorter than HeaderSize; otherwise the
// record is emitted unconditionally. Magic/endian checks are left to
// ValidateMagic, called separately by the installer.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: have %d bytes, need %d", ErrMalformedHeader, len(data), HeaderSize)
	}

	var h Header
	copy(h.Magic[:], data[0:8])
	h.Checksum = bincursor.U32(data, 8)
	copy(h.Signature[:], data[12:32])
	h.FileSize = bincursor.U32(data, 32)
	h.HeaderSize = bincursor.U32(data, 36)
	h.EndianTag = bincursor.U32(data, 40)
	h.LinkSize = bincursor.U32(data, 44)
	h.LinkOff = bincursor.U32(data, 48)
	h.MapOff = bincursor.U32(data, 52)
	h.StringIDsSize = bincursor.U32(data, 56)
	h.StringIDsOff = bincursor.U32(data, 60)
	h.TypeIDsSize = bincursor.U32(data, 64)
	h.TypeIDsOff = bincursor.U32(data, 68)
	h.ProtoIDsSize = bincursor.U32(data, 72)
	h.ProtoIDsOff = bincursor.U32(data, 76)
	h.FieldIDsSize = bincursor.U32(data, 80)
	h.FieldIDsOff = bincursor.U32(data, 84)
	h.MethodIDsSize = bincursor.U32(data, 88)
	h.MethodIDsOff = bincursor.U32(data, 92)
	h.ClassDefsSize = bincursor.U32(data, 96)
	h.ClassDefsOff = bincursor.U32(data, 100)
	h.DataSize = bincursor.U32(data, 104)
	h.DataOff = bincursor.U32(data, 108)

	return h, nil
}

// ValidateMagic checks the fixed "dex\n" prefix and that bytes 4..7 are
// three ASCII digits followed by a NUL.
func ValidateMagic(h Header) error {
	if [4]byte(h.Magic[:4]) != expectedMagicPrefix {
		return fmt.Errorf("%w: bad magic prefix %q", ErrMalformedHeader, h.Magic[:4])
	}
	if h.Magic[7] != 0 {
		return fmt.Errorf("%w: bad magic terminator", ErrMalformedHeader)
	}
	for _, d := range h.Magic[4:7] {
		if d < '0' || d > '9' {
			return fmt.Errorf("%w: bad version digits %q", ErrMalformedHeader, h.Magic[4:7])
		}
	}
	return nil
}

// Version returns the three ASCII version digits from the magic, e.g. "038".
func (h Header) Version() string {
	return string(h.Magic[4:7])
}
