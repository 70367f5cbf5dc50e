package dex

import (
	"errors"
	"fmt"

	"dexvm/bincursor"
)

// ErrMalformedTable is returned when a declared table count exceeds the
// remaining bytes in the buffer.
var ErrMalformedTable = errors.New("dex: malformed table")

// ProtoIDItem is a (shorty, return type, parameters) method prototype.
type ProtoIDItem struct {
	ShortyIdx     uint32
	ReturnTypeIdx uint32
	ParametersOff uint32
}

// FieldIDItem names a field by owning class, declared type, and name.
type FieldIDItem struct {
	ClassIdx uint16
	TypeIdx  uint16
	NameIdx  uint32
}

// MethodIDItem names a method by owning class, prototype, and name.
type MethodIDItem struct {
	ClassIdx uint16
	ProtoIdx uint16
	NameIdx  uint32
}

// ClassDefItem is one entry of the class_defs table.
type ClassDefItem struct {
	ClassIdx        uint32
	AccessFlags     uint32
	SuperclassIdx   uint32
	InterfacesOff   uint32
	SourceFileIdx   uint32
	AnnotationsOff  uint32
	ClassDataOff    uint32
	StaticValuesOff uint32
}

func checkTableBounds(data []byte, off, size, stride int) error {
	need := off + size*stride
	if size < 0 || off < 0 || need > len(data) {
		return fmt.Errorf("%w: table at %#x size %d stride %d exceeds buffer length %d", ErrMalformedTable, off, size, stride, len(data))
	}
	return nil
}

// DecodeStringIDs reads the string_ids table: a contiguous array of
// absolute file offsets, one per string payload.
func DecodeStringIDs(data []byte, h Header) ([]uint32, error) {
	if err := checkTableBounds(data, int(h.StringIDsOff), int(h.StringIDsSize), 4); err != nil {
		return nil, err
	}
	out := make([]uint32, h.StringIDsSize)
	for i := range out {
		out[i] = bincursor.U32(data, int(h.StringIDsOff)+4*i)
	}
	return out, nil
}

// DecodeTypeIDs reads the type_ids table: a contiguous array of
// string_ids indices.
func DecodeTypeIDs(data []byte, h Header) ([]uint32, error) {
	if err := checkTableBounds(data, int(h.TypeIDsOff), int(h.TypeIDsSize), 4); err != nil {
		return nil, err
	}
	out := make([]uint32, h.TypeIDsSize)
	for i := range out {
		out[i] = bincursor.U32(data, int(h.TypeIDsOff)+4*i)
	}
	return out, nil
}

// DecodeProtoIDs reads the proto_ids table.
func DecodeProtoIDs(data []byte, h Header) ([]ProtoIDItem, error) {
	const stride = 12
	if err := checkTableBounds(data, int(h.ProtoIDsOff), int(h.ProtoIDsSize), stride); err != nil {
		return nil, err
	}
	out := make([]ProtoIDItem, h.ProtoIDsSize)
	for i := range out {
		base := int(h.ProtoIDsOff) + stride*i
		out[i] = ProtoIDItem{
			ShortyIdx:     bincursor.U32(data, base),
			ReturnTypeIdx: bincursor.U32(data, base+4),
			ParametersOff: bincursor.U32(data, base+8),
		}
	}
	return out, nil
}

// DecodeFieldIDs reads the field_ids table.
func DecodeFieldIDs(data []byte, h Header) ([]FieldIDItem, error) {
	const stride = 8
	if err := checkTableBounds(data, int(h.FieldIDsOff), int(h.FieldIDsSize), stride); err != nil {
		return nil, err
	}
	out := make([]FieldIDItem, h.FieldIDsSize)
	for i := range out {
		base := int(h.FieldIDsOff) + stride*i
		out[i] = FieldIDItem{
			ClassIdx: bincursor.U16(data, base),
			TypeIdx:  bincursor.U16(data, base+2),
			NameIdx:  bincursor.U32(data, base+4),
		}
	}
	return out, nil
}

// DecodeMethodIDs reads the method_ids table.
func DecodeMethodIDs(data []byte, h Header) ([]MethodIDItem, error) {
	const stride = 8
	if err := checkTableBounds(data, int(h.MethodIDsOff), int(h.MethodIDsSize), stride); err != nil {
		return nil, err
	}
	out := make([]MethodIDItem, h.MethodIDsSize)
	for i := range out {
		base := int(h.MethodIDsOff) + stride*i
		out[i] = MethodIDItem{
			ClassIdx: bincursor.U16(data, base),
			ProtoIdx: bincursor.U16(data, base+2),
			NameIdx:  bincursor.U32(data, base+4),
		}
	}
	return out, nil
}

// DecodeClassDefs reads the class_defs table.
func DecodeClassDefs(data []byte, h Header) ([]ClassDefItem, error) {
	const stride = 32
	if err := checkTableBounds(data, int(h.ClassDefsOff), int(h.ClassDefsSize), stride); err != nil {
		return nil, err
	}
	out := make([]ClassDefItem, h.ClassDefsSize)
	for i := range out {
		base := int(h.ClassDefsOff) + stride*i
		out[i] = ClassDefItem{
			ClassIdx:        bincursor.U32(data, base),
			AccessFlags:     bincursor.U32(data, base+4),
			SuperclassIdx:   bincursor.U32(data, base+8),
			InterfacesOff:   bincursor.U32(data, base+12),
			SourceFileIdx:   bincursor.U32(data, base+16),
			AnnotationsOff:  bincursor.U32(data, base+20),
			ClassDataOff:    bincursor.U32(data, base+24),
			StaticValuesOff: bincursor.U32(data, base+28),
		}
	}
	return out, nil
}

// Container holds every decoded constant-pool table and the string payload
// cache needed to resolve them to text. It is the shared read-only context
// every other decoder in this package closes over.
type Container struct {
	Header    Header
	StringIDs []uint32
	TypeIDs   []uint32
	ProtoIDs  []ProtoIDItem
	FieldIDs  []FieldIDItem
	MethodIDs []MethodIDItem
	ClassDefs []ClassDefItem

	Data []byte // full file buffer, for data-section decoders

	strings []string // lazily decoded, same cardinality as StringIDs
}

// String resolves a string_ids index to its decoded text, decoding and
// caching it on first use.
func (c *Container) String(idx uint32) (string, error) {
	if int(idx) >= len(c.StringIDs) {
		return "", fmt.Errorf("%w: string index %d out of range (%d strings)", ErrMalformedTable, idx, len(c.StringIDs))
	}
	if c.strings == nil {
		c.strings = make([]string, len(c.StringIDs))
	}
	if c.strings[idx] != "" {
		return c.strings[idx], nil
	}
	s, err := DecodeMUTF8String(c.Data, c.StringIDs[idx], c.Header.DataOff)
	if err != nil {
		return "", err
	}
	c.strings[idx] = s
	return s, nil
}

// TypeString resolves a type_ids index to its descriptor string.
func (c *Container) TypeString(idx uint32) (string, error) {
	if int(idx) >= len(c.TypeIDs) {
		return "", fmt.Errorf("%w: type index %d out of range (%d types)", ErrMalformedTable, idx, len(c.TypeIDs))
	}
	return c.String(c.TypeIDs[idx])
}

// MethodName resolves a method_ids index to its unqualified name.
func (c *Container) MethodName(idx uint32) (string, error) {
	if int(idx) >= len(c.MethodIDs) {
		return "", fmt.Errorf("%w: method index %d out of range", ErrMalformedTable, idx)
	}
	return c.String(c.MethodIDs[idx].NameIdx)
}

// MethodClass resolves a method_ids index to its owning class descriptor.
func (c *Container) MethodClass(idx uint32) (string, error) {
	if int(idx) >= len(c.MethodIDs) {
		return "", fmt.Errorf("%w: method index %d out of range", ErrMalformedTable, idx)
	}
	return c.TypeString(uint32(c.MethodIDs[idx].ClassIdx))
}

// FieldName resolves a field_ids index to its unqualified name.
func (c *Container) FieldName(idx uint32) (string, error) {
	if int(idx) >= len(c.FieldIDs) {
		return "", fmt.Errorf("%w: field index %d out of range", ErrMalformedTable, idx)
	}
	return c.String(c.FieldIDs[idx].NameIdx)
}

// FieldType resolves a field_ids index to its declared type descriptor.
func (c *Container) FieldType(idx uint32) (string, error) {
	if int(idx) >= len(c.FieldIDs) {
		return "", fmt.Errorf("%w: field index %d out of range", ErrMalformedTable, idx)
	}
	return c.TypeString(uint32(c.FieldIDs[idx].TypeIdx))
}
