package dex

import "dexvm/bincursor"

// EncodedField is one static or instance field entry inside a class_data_item.
// FieldIdx is already the reconstructed absolute field_ids index (the raw
// encoding stores it as a delta from the previous entry in the same list).
type EncodedField struct {
	FieldIdx    uint32
	AccessFlags uint32
}

// EncodedMethod is one direct or virtual method entry inside a
// class_data_item. MethodIdx is the reconstructed absolute method_ids index.
// CodeOff is zero for abstract/native methods, which carry no code_item.
type EncodedMethod struct {
	MethodIdx   uint32
	AccessFlags uint32
	CodeOff     uint32
}

// ClassData is the decoded class_data_item: the field and method tables for
// one class_def entry.
type ClassData struct {
	StaticFields    []EncodedField
	InstanceFields  []EncodedField
	DirectMethods   []EncodedMethod
	VirtualMethods  []EncodedMethod
}

// decodeFieldList decodes `count` encoded_field entries starting at pos,
// reconstructing each absolute field index from the running delta sum.
func decodeFieldList(data []byte, pos int, count uint32) ([]EncodedField, int) {
	out := make([]EncodedField, 0, count)
	var runningIdx uint32
	for i := uint32(0); i < count; i++ {
		var diff, flags uint32
		diff, pos = bincursor.Uleb128(data, pos)
		flags, pos = bincursor.Uleb128(data, pos)
		runningIdx += diff
		out = append(out, EncodedField{FieldIdx: runningIdx, AccessFlags: flags})
	}
	return out, pos
}

// decodeMethodList decodes `count` encoded_method entries starting at pos,
// reconstructing each absolute method index from the running delta sum.
func decodeMethodList(data []byte, pos int, count uint32) ([]EncodedMethod, int) {
	out := make([]EncodedMethod, 0, count)
	var runningIdx uint32
	for i := uint32(0); i < count; i++ {
		var diff, flags, codeOff uint32
		diff, pos = bincursor.Uleb128(data, pos)
		flags, pos = bincursor.Uleb128(data, pos)
		codeOff, pos = bincursor.Uleb128(data, pos)
		runningIdx += diff
		out = append(out, EncodedMethod{MethodIdx: runningIdx, AccessFlags: flags, CodeOff: codeOff})
	}
	return out, pos
}

// DecodeClassData decodes the class_data_item at the given absolute file
// offset. A zero offset means the class declares no fields or methods
// (interfaces and marker classes commonly have class_data_off == 0); callers
// should check that separately since ULEB128 decoding at offset 0 would
// otherwise silently read the header.
func DecodeClassData(data []byte, off uint32) ClassData {
	pos := int(off)
	var staticCount, instanceCount, directCount, virtualCount uint32
	staticCount, pos = bincursor.Uleb128(data, pos)
	instanceCount, pos = bincursor.Uleb128(data, pos)
	directCount, pos = bincursor.Uleb128(data, pos)
	virtualCount, pos = bincursor.Uleb128(data, pos)

	var cd ClassData
	cd.StaticFields, pos = decodeFieldList(data, pos, staticCount)
	cd.InstanceFields, pos = decodeFieldList(data, pos, instanceCount)
	cd.DirectMethods, pos = decodeMethodList(data, pos, directCount)
	cd.VirtualMethods, _ = decodeMethodList(data, pos, virtualCount)
	return cd
}

// CodeItem is the decoded code_item for one non-abstract, non-native method:
// its register/parameter/outgoing-argument counts and its decoded
// instruction stream. Exception handler tables (try_item/encoded_catch_handler)
// are not parsed: nothing in this interpreter's executor walks them.
type CodeItem struct {
	RegistersSize uint16
	InsSize       uint16
	OutsSize      uint16
	TriesSize     uint16
	InsnsSize     uint32
	Instructions  []Instruction
}

// DecodeCodeItem decodes the code_item at the given absolute file offset.
func DecodeCodeItem(data []byte, off uint32) CodeItem {
	pos := int(off)
	ci := CodeItem{
		RegistersSize: bincursor.U16(data, pos),
		InsSize:       bincursor.U16(data, pos+2),
		OutsSize:      bincursor.U16(data, pos+4),
		TriesSize:     bincursor.U16(data, pos+6),
	}
	// debug_info_off (u32 at pos+8) is intentionally skipped: parameter and
	// local-variable debug tables carry no information the executor needs.
	ci.InsnsSize = bincursor.U32(data, pos+12)
	insnsStart := pos + 16
	insnsEnd := insnsStart + int(ci.InsnsSize)*2
	var raw []byte
	if insnsEnd <= len(data) {
		raw = data[insnsStart:insnsEnd]
	} else if insnsStart < len(data) {
		raw = data[insnsStart:]
	}
	ci.Instructions = DecodeInstructions(raw)
	return ci
}

// IndexAtOffset finds the instruction starting at the given code-unit
// offset, the form every branch target and the initial pc==0 entry point
// are expressed in.
func (ci CodeItem) IndexAtOffset(offset int) (int, bool) {
	for i, instr := range ci.Instructions {
		if instr.CodeUnitOffset == offset {
			return i, true
		}
	}
	return 0, false
}
