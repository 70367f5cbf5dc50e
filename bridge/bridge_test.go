package bridge

import (
	"io"
	"testing"

	"dexvm/dex"
	"dexvm/vm"
)

type fakeLoader struct {
	classes map[string]*dex.Class
}

func (f *fakeLoader) Load(descriptor string) (*dex.Class, error) {
	c, ok := f.classes[descriptor]
	if !ok {
		return nil, vm.ErrMissingClass
	}
	return c, nil
}

func methodWithCode(name string, registers uint16, insns []byte) dex.Method {
	return dex.Method{
		Name: name,
		Code: &dex.CodeItem{
			RegistersSize: registers,
			Instructions:  dex.DecodeInstructions(insns),
		},
	}
}

// TestExtensionGetNameUsesSelfSentinel exercises the bug the review flagged:
// <init> must see the context as its sole argument, landing in the
// argument-window register (v2, per Frame.BindArgs) rather than being
// shifted one slot by a spurious extra constructor argument. It also
// confirms ExtensionGetName constructs against heap id 1 (the self
// sentinel) instead of allocating a fresh, never-reused object.
func TestExtensionGetNameUsesSelfSentinel(t *testing.T) {
	data, strs := stringTable("hello")
	container := &dex.Container{
		StringIDs: strs,
		Data:      data,
	}

	// <init>: iput v2, v1(self), field@0
	// (v1 holds the self sentinel via PlantSelf; v2 is where BindArgs lands
	// the sole constructor argument)
	initInsns := []byte{
		0x59, 0x12, 0x00, 0x00,
	}
	// getName: const-string v0, "hello" ; return-object v0
	getNameInsns := []byte{
		0x1a, 0x00, 0x00, 0x00,
		0x11, 0x00,
	}
	class := &dex.Class{
		Descriptor: "LMain;",
		DirectMethods: []dex.Method{
			methodWithCode("<init>", 3, initInsns),
			methodWithCode("getName", 1, getNameInsns),
		},
	}
	loader := &fakeLoader{classes: map[string]*dex.Class{"LMain;": class}}

	b := &Bridge{
		out:      io.Discard,
		mainDesc: "LMain;",
	}
	b.exec = vm.NewExecutor(container, loader, io.Discard)

	name, err := b.ExtensionGetName(HostContext{Data: "sentinel-context"})
	if err != nil {
		t.Fatalf("ExtensionGetName: %v", err)
	}
	if name != "hello" {
		t.Fatalf("got name %q, want %q", name, "hello")
	}

	self := b.exec.Heap.Get(vm.SelfObject)
	if self == nil {
		t.Fatal("self object (heap id 1) was never allocated")
	}
	if self.ClassName != "LMain;" {
		t.Fatalf("self.ClassName = %q, want %q (construction must target heap id 1)", self.ClassName, "LMain;")
	}
	got, ok := self.Fields["field@0"]
	if !ok {
		t.Fatal("field@0 was never set by <init>")
	}
	if got.Kind != vm.KindHost || got.Host != "sentinel-context" {
		t.Fatalf("field@0 = %+v, want Host(%q) (the context must land at v2, not be shifted by a spurious arg)", got, "sentinel-context")
	}
}

// stringTable packs strs into a data section usable as a Container's Data
// with DataOff left at its zero value; the advisory UTF-16 length prefix
// DecodeMUTF8String reads is never used to bound the read, so a single raw
// length byte is enough.
func stringTable(strs ...string) (data []byte, offsets []uint32) {
	for _, s := range strs {
		offsets = append(offsets, uint32(len(data)))
		data = append(data, byte(len(s)))
		data = append(data, s...)
		data = append(data, 0x00)
	}
	return data, offsets
}
