package dex

import "dexvm/bincursor"

// Field is a decoded static or instance field declaration.
type Field struct {
	Name        string
	Type        string
	AccessFlags uint32
}

// Method is a decoded method declaration. Code is nil for abstract and
// native methods, which declare no code_item.
type Method struct {
	Name        string
	ClassDesc   string
	ReturnType  string
	ParamTypes  []string
	AccessFlags uint32
	Direct      bool // true for direct_methods (static/private/constructor), false for virtual_methods
	Code        *CodeItem
}

// Signature returns the name:(params)return form used throughout the
// executor and host bridge to look methods up by shape rather than by
// method_ids index.
func (m Method) Signature() string {
	s := m.Name + ":("
	for _, p := range m.ParamTypes {
		s += p
	}
	s += ")" + m.ReturnType
	return s
}

// Class is a decoded class_def entry with its fields and methods resolved
// to names and descriptors rather than left as raw pool indices.
type Class struct {
	Descriptor     string
	SuperclassDesc string
	AccessFlags    uint32
	SourceFile     string
	StaticFields   []Field
	InstanceFields []Field
	DirectMethods  []Method
	VirtualMethods []Method
	StaticValues   []EncodedValue
}

// DecodeTypeListIndices reads a type_list: a uint32 size followed by that many
// uint16 type_ids indices. A zero offset means no list (e.g. a method that
// takes no parameters, or a class with no declared interfaces).
func DecodeTypeListIndices(data []byte, off uint32) []uint32 {
	if off == 0 {
		return nil
	}
	pos := int(off)
	size := bincursor.U32(data, pos)
	pos += 4
	out := make([]uint32, size)
	for i := range out {
		out[i] = uint32(bincursor.U16(data, pos))
		pos += 2
	}
	return out
}

func (c *Container) resolveField(idx uint32) Field {
	name, _ := c.FieldName(idx)
	typ, _ := c.FieldType(idx)
	return Field{Name: name, Type: typ}
}

func (c *Container) resolveMethod(em EncodedMethod, direct bool) Method {
	name, _ := c.MethodName(em.MethodIdx)
	classDesc, _ := c.MethodClass(em.MethodIdx)
	m := Method{
		Name:        name,
		ClassDesc:   classDesc,
		AccessFlags: em.AccessFlags,
		Direct:      direct,
	}
	if int(em.MethodIdx) < len(c.MethodIDs) {
		protoIdx := c.MethodIDs[em.MethodIdx].ProtoIdx
		if int(protoIdx) < len(c.ProtoIDs) {
			proto := c.ProtoIDs[protoIdx]
			m.ReturnType, _ = c.TypeString(proto.ReturnTypeIdx)
			for _, typeIdx := range DecodeTypeListIndices(c.Data, proto.ParametersOff) {
				pt, _ := c.TypeString(typeIdx)
				m.ParamTypes = append(m.ParamTypes, pt)
			}
		}
	}
	if em.CodeOff != 0 {
		code := DecodeCodeItem(c.Data, em.CodeOff)
		m.Code = &code
	}
	return m
}

func (c *Container) resolveClass(cd ClassDefItem) Class {
	descriptor, _ := c.TypeString(cd.ClassIdx)
	class := Class{
		Descriptor:  descriptor,
		AccessFlags: cd.AccessFlags,
	}
	if cd.SuperclassIdx != NoIndex {
		class.SuperclassDesc, _ = c.TypeString(cd.SuperclassIdx)
	}
	if cd.SourceFileIdx != NoIndex {
		class.SourceFile, _ = c.String(cd.SourceFileIdx)
	}

	if cd.ClassDataOff != 0 {
		data := DecodeClassData(c.Data, cd.ClassDataOff)
		for _, f := range data.StaticFields {
			class.StaticFields = append(class.StaticFields, c.resolveField(f.FieldIdx))
		}
		for _, f := range data.InstanceFields {
			class.InstanceFields = append(class.InstanceFields, c.resolveField(f.FieldIdx))
		}
		for _, m := range data.DirectMethods {
			class.DirectMethods = append(class.DirectMethods, c.resolveMethod(m, true))
		}
		for _, m := range data.VirtualMethods {
			class.VirtualMethods = append(class.VirtualMethods, c.resolveMethod(m, false))
		}
	}

	if cd.StaticValuesOff != 0 {
		class.StaticValues, _ = DecodeEncodedArray(c.Data, int(cd.StaticValuesOff), c)
	}

	return class
}

// Parse decodes a complete DEX file: the header, every constant-pool table,
// and every class_def entry with its fields, methods, and instruction
// streams resolved. It is the single entry point every caller (the class
// store, the host bridge, the CLI) uses to turn raw bytes into a usable
// in-memory form.
func Parse(raw []byte) (*Container, []Class, error) {
	header, err := DecodeHeader(raw)
	if err != nil {
		return nil, nil, err
	}
	if err := ValidateMagic(header); err != nil {
		return nil, nil, err
	}

	stringIDs, err := DecodeStringIDs(raw, header)
	if err != nil {
		return nil, nil, err
	}
	typeIDs, err := DecodeTypeIDs(raw, header)
	if err != nil {
		return nil, nil, err
	}
	protoIDs, err := DecodeProtoIDs(raw, header)
	if err != nil {
		return nil, nil, err
	}
	fieldIDs, err := DecodeFieldIDs(raw, header)
	if err != nil {
		return nil, nil, err
	}
	methodIDs, err := DecodeMethodIDs(raw, header)
	if err != nil {
		return nil, nil, err
	}
	classDefs, err := DecodeClassDefs(raw, header)
	if err != nil {
		return nil, nil, err
	}

	container := &Container{
		Header:    header,
		StringIDs: stringIDs,
		TypeIDs:   typeIDs,
		ProtoIDs:  protoIDs,
		FieldIDs:  fieldIDs,
		MethodIDs: methodIDs,
		ClassDefs: classDefs,
		Data:      raw,
	}

	classes := make([]Class, 0, len(classDefs))
	for _, cd := range classDefs {
		classes = append(classes, container.resolveClass(cd))
	}

	return container, classes, nil
}
