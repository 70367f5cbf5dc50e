package vm

import (
	"errors"
	"io"
	"testing"

	"dexvm/dex"
)

type fakeLoader struct {
	classes map[string]*dex.Class
}

func (f *fakeLoader) Load(descriptor string) (*dex.Class, error) {
	c, ok := f.classes[descriptor]
	if !ok {
		return nil, ErrMissingClass
	}
	return c, nil
}

func methodWithCode(name string, registers uint16, insns []byte) dex.Method {
	return dex.Method{
		Name:       name,
		ReturnType: "I",
		Code: &dex.CodeItem{
			RegistersSize: registers,
			Instructions:  dex.DecodeInstructions(insns),
		},
	}
}

func TestExecutorConst4AndReturn(t *testing.T) {
	// const/4 v0, #-1 ; return v0
	insns := []byte{0x12, 0xF0, 0x0F, 0x00}
	method := methodWithCode("run", 2, insns)
	class := &dex.Class{Descriptor: "LMain;", DirectMethods: []dex.Method{method}}
	loader := &fakeLoader{classes: map[string]*dex.Class{"LMain;": class}}

	exec := NewExecutor(&dex.Container{}, loader, io.Discard)
	result, err := exec.Call("LMain;", "run", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Kind != KindInt || result.I != -1 {
		t.Fatalf("got %+v, want Int(-1)", result)
	}
}

func TestExecutorNewInstanceAndFieldRoundTrip(t *testing.T) {
	// new-instance v0, type@0 ; const/4 v1, #5 ; iput v1, v0, field@0 ;
	// iget v2, v0, field@0 ; return v2
	insns := []byte{
		0x22, 0x00, 0x00, 0x00, // new-instance v0, type@0
		0x12, 0x51, // const/4 v1, #5
		0x59, 0x01, 0x00, 0x00, // iput v1, v0, field@0
		0x52, 0x02, 0x00, 0x00, // iget v2, v0, field@0
		0x0f, 0x02, // return v2
	}
	method := methodWithCode("run", 3, insns)
	class := &dex.Class{Descriptor: "LMain;", DirectMethods: []dex.Method{method}}
	loader := &fakeLoader{classes: map[string]*dex.Class{"LMain;": class}}

	exec := NewExecutor(&dex.Container{}, loader, io.Discard)
	result, err := exec.Call("LMain;", "run", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Kind != KindInt || result.I != 5 {
		t.Fatalf("got %+v, want Int(5)", result)
	}
}

// stringTable packs strs into a data section usable as a Container's Data
// with DataOff left at its zero value, returning the absolute (== relative)
// offset of each entry for a StringIDs table. The advisory UTF-16 length
// prefix DecodeMUTF8String reads is never used to bound the read, so a
// single raw length byte is enough.
func stringTable(strs ...string) (data []byte, offsets []uint32) {
	for _, s := range strs {
		offsets = append(offsets, uint32(len(data)))
		data = append(data, byte(len(s)))
		data = append(data, s...)
		data = append(data, 0x00)
	}
	return data, offsets
}

func TestExecutorInvokeStaticCheckNotNullParameterFails(t *testing.T) {
	data, strs := stringTable("checkNotNullParameter", "value")
	container := &dex.Container{
		StringIDs: strs,
		MethodIDs: []dex.MethodIDItem{{NameIdx: 0}},
		Data:      data,
	}

	// const-string v0, "value" ; invoke-static {v2, v0}, checkNotNullParameter
	// (v1 is where PlantSelf puts the self sentinel at 3+ registers; v2 is
	// left untouched at Null, the value checkNotNullParameter should reject)
	insns := []byte{
		0x1a, 0x00, 0x01, 0x00,
		0x71, 0x20, 0x00, 0x00, 0x02, 0x00,
	}
	method := methodWithCode("run", 3, insns)
	class := &dex.Class{Descriptor: "LMain;", DirectMethods: []dex.Method{method}}
	loader := &fakeLoader{classes: map[string]*dex.Class{"LMain;": class}}

	exec := NewExecutor(container, loader, io.Discard)
	_, err := exec.Call("LMain;", "run", nil)
	if !errors.Is(err, ErrAssertionFailed) {
		t.Fatalf("got err %v, want ErrAssertionFailed", err)
	}
}

func TestExecutorInvokeStaticAreEqual(t *testing.T) {
	data, strs := stringTable("areEqual")
	container := &dex.Container{
		StringIDs: strs,
		MethodIDs: []dex.MethodIDItem{{NameIdx: 0}},
		Data:      data,
	}

	// const/4 v0, #5 ; const/4 v1, #5 ; invoke-static {v0, v1}, areEqual ;
	// move-result v2 ; return v2
	insns := []byte{
		0x12, 0x50,
		0x12, 0x51,
		0x71, 0x20, 0x00, 0x00, 0x10, 0x00,
		0x0a, 0x02,
		0x0f, 0x02,
	}
	method := methodWithCode("run", 3, insns)
	class := &dex.Class{Descriptor: "LMain;", DirectMethods: []dex.Method{method}}
	loader := &fakeLoader{classes: map[string]*dex.Class{"LMain;": class}}

	exec := NewExecutor(container, loader, io.Discard)
	result, err := exec.Call("LMain;", "run", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Kind != KindBool || result.I != 1 {
		t.Fatalf("got %+v, want Bool(true)", result)
	}
}

func TestExecutorInvokeDirectDiscardsResult(t *testing.T) {
	data, strs := stringTable("LMain;", "secret")
	container := &dex.Container{
		StringIDs: strs,
		TypeIDs:   []uint32{0}, // type idx0 -> StringIDs[0] ("LMain;")
		MethodIDs: []dex.MethodIDItem{{ClassIdx: 0, NameIdx: 1}},
		Data:      data,
	}

	// run: invoke-direct {}, LMain.secret ; const/4 v0, #7 ; return v0
	// (secret's return value is never collected by a move-result)
	runInsns := []byte{
		0x70, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x12, 0x70,
		0x0f, 0x00,
	}
	// secret: const/4 v0, #3 ; return v0
	secretInsns := []byte{
		0x12, 0x30,
		0x0f, 0x00,
	}
	class := &dex.Class{
		Descriptor: "LMain;",
		DirectMethods: []dex.Method{
			methodWithCode("run", 1, runInsns),
			methodWithCode("secret", 1, secretInsns),
		},
	}
	loader := &fakeLoader{classes: map[string]*dex.Class{"LMain;": class}}

	exec := NewExecutor(container, loader, io.Discard)
	result, err := exec.Call("LMain;", "run", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Kind != KindInt || result.I != 7 {
		t.Fatalf("got %+v, want Int(7) (secret's Int(3) must not leak through)", result)
	}
}

func TestExecutorInvokeVirtualSuperclassFallback(t *testing.T) {
	data, strs := stringTable("LMain;", "LBase;", "greet")
	container := &dex.Container{
		StringIDs: strs,
		TypeIDs:   []uint32{0, 1}, // type idx0 -> "LMain;", type idx1 -> "LBase;"
		MethodIDs: []dex.MethodIDItem{{ClassIdx: 0, NameIdx: 2}},
		Data:      data,
	}

	// run: invoke-virtual {}, greet ; move-result v0 ; return v0
	runInsns := []byte{
		0x6e, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x0a, 0x00,
		0x0f, 0x00,
	}
	// greet: const/4 v0, #-7 ; return v0
	greetInsns := []byte{
		0x12, 0x90,
		0x0f, 0x00,
	}
	mainClass := &dex.Class{
		Descriptor:     "LMain;",
		SuperclassDesc: "LBase;",
		DirectMethods:  []dex.Method{methodWithCode("run", 1, runInsns)},
	}
	baseClass := &dex.Class{
		Descriptor:     "LBase;",
		VirtualMethods: []dex.Method{methodWithCode("greet", 1, greetInsns)},
	}
	loader := &fakeLoader{classes: map[string]*dex.Class{"LMain;": mainClass, "LBase;": baseClass}}

	exec := NewExecutor(container, loader, io.Discard)
	result, err := exec.Call("LMain;", "run", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Kind != KindInt || result.I != -7 {
		t.Fatalf("got %+v, want Int(-7) from LBase's greet", result)
	}
}

func TestExecutorInvokeSuperSkipsOwnOverride(t *testing.T) {
	data, strs := stringTable("LMain;", "LBase;", "greet")
	container := &dex.Container{
		StringIDs: strs,
		TypeIDs:   []uint32{0, 1}, // type idx0 -> "LMain;", type idx1 -> "LBase;"
		MethodIDs: []dex.MethodIDItem{{ClassIdx: 0, NameIdx: 2}},
		Data:      data,
	}

	// run: invoke-super {}, greet ; move-result v0 ; return v0
	runInsns := []byte{
		0x6f, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x0a, 0x00,
		0x0f, 0x00,
	}
	// LMain's own greet (const/4 v0, #1), which invoke-super must bypass
	ownGreetInsns := []byte{
		0x12, 0x10,
		0x0f, 0x00,
	}
	// LBase's greet (const/4 v0, #-7), the one invoke-super should actually reach
	baseGreetInsns := []byte{
		0x12, 0x90,
		0x0f, 0x00,
	}
	mainClass := &dex.Class{
		Descriptor:     "LMain;",
		SuperclassDesc: "LBase;",
		DirectMethods:  []dex.Method{methodWithCode("run", 1, runInsns)},
		VirtualMethods: []dex.Method{methodWithCode("greet", 1, ownGreetInsns)},
	}
	baseClass := &dex.Class{
		Descriptor:     "LBase;",
		VirtualMethods: []dex.Method{methodWithCode("greet", 1, baseGreetInsns)},
	}
	loader := &fakeLoader{classes: map[string]*dex.Class{"LMain;": mainClass, "LBase;": baseClass}}

	exec := NewExecutor(container, loader, io.Discard)
	result, err := exec.Call("LMain;", "run", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Kind != KindInt || result.I != -7 {
		t.Fatalf("got %+v, want Int(-7) from LBase's greet, not LMain's own", result)
	}
}

type stubReceiver struct {
	sig    string
	result Value
}

func (s stubReceiver) Signature() string { return s.sig }
func (s stubReceiver) Invoke(heap *Heap, self ObjectID, args []Value) (Value, error) {
	return s.result, nil
}

// TestExecutorInvokeInterfaceHostReceiver exercises invoke-interface dispatch
// to a host-registered receiver: object id 1 holds a field referencing an
// object of the target interface type whose native slot is left empty, and
// the host answers the call instead.
func TestExecutorInvokeInterfaceHostReceiver(t *testing.T) {
	data, strs := stringTable("getUserAgent", "Ljava/lang/String;", "LHost;")
	container := &dex.Container{
		StringIDs: strs,
		// type idx0 -> "Ljava/lang/String;" (return type), type idx1 -> "LHost;"
		TypeIDs:   []uint32{1, 2},
		MethodIDs: []dex.MethodIDItem{{ClassIdx: 1, NameIdx: 0}},
		ProtoIDs:  []dex.ProtoIDItem{{ReturnTypeIdx: 0}},
		Data:      data,
	}

	// new-instance v0, LHost; ; iput v0, v1(self), field@0 ;
	// invoke-interface {}, getUserAgent ; move-result-object v2 ; return v2
	insns := []byte{
		0x22, 0x00, 0x01, 0x00,
		0x59, 0x10, 0x00, 0x00,
		0x72, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x0c, 0x02,
		0x0f, 0x02,
	}
	class := &dex.Class{Descriptor: "LMain;", DirectMethods: []dex.Method{methodWithCode("run", 3, insns)}}
	loader := &fakeLoader{classes: map[string]*dex.Class{"LMain;": class}}

	exec := NewExecutor(container, loader, io.Discard)
	exec.Receivers.Register(stubReceiver{
		sig:    "getUserAgent:()Ljava/lang/String;",
		result: String("Mozilla/5.0"),
	})

	result, err := exec.Call("LMain;", "run", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Kind != KindString || result.Str != "Mozilla/5.0" {
		t.Fatalf("got %+v, want String(\"Mozilla/5.0\") from the host receiver", result)
	}
}

func TestExecutorIfEqzBranchTaken(t *testing.T) {
	// A taken forward if-eqz branch skips the instruction in between:
	// const/4 v0, #0 ; if-eqz v0, +3 (taken) ; const/4 v0, #-7 (skipped) ;
	// return v0
	insns := []byte{
		0x12, 0x00, // const/4 v0, #0
		0x38, 0x00, 0x03, 0x00, // if-eqz v0, +3 (code units)
		0x12, 0x90, // const/4 v0, #-7 (skipped)
		0x0f, 0x00, // return v0
	}
	method := methodWithCode("run", 1, insns)
	class := &dex.Class{Descriptor: "LMain;", DirectMethods: []dex.Method{method}}
	loader := &fakeLoader{classes: map[string]*dex.Class{"LMain;": class}}

	exec := NewExecutor(&dex.Container{}, loader, io.Discard)
	result, err := exec.Call("LMain;", "run", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Kind != KindInt || result.I != 0 {
		t.Fatalf("got %+v, want Int(0) (branch should have been taken)", result)
	}
}
