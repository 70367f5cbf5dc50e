package classstore

import (
	"testing"

	"dexvm/dex"
)

func TestSaveLoadClassRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	original := dex.Class{
		Descriptor:     "Lcom/example/Main;",
		SuperclassDesc: "Ljava/lang/Object;",
		AccessFlags:    0x1,
		StaticFields:   []dex.Field{{Name: "count", Type: "I"}},
		DirectMethods: []dex.Method{
			{
				Name:       "<init>",
				ReturnType: "V",
				Code: &dex.CodeItem{
					RegistersSize: 2,
					Instructions:  dex.DecodeInstructions([]byte{0x0e, 0x00}),
				},
			},
		},
	}

	if err := store.SaveClass(original); err != nil {
		t.Fatalf("SaveClass: %v", err)
	}

	reloaded, err := store.LoadClass(original.Descriptor)
	if err != nil {
		t.Fatalf("LoadClass: %v", err)
	}

	if reloaded.Descriptor != original.Descriptor {
		t.Fatalf("got descriptor %q, want %q", reloaded.Descriptor, original.Descriptor)
	}
	if reloaded.SuperclassDesc != original.SuperclassDesc {
		t.Fatalf("got superclass %q, want %q", reloaded.SuperclassDesc, original.SuperclassDesc)
	}
	if len(reloaded.StaticFields) != 1 || reloaded.StaticFields[0].Name != "count" {
		t.Fatalf("got static fields %+v", reloaded.StaticFields)
	}
	if len(reloaded.DirectMethods) != 1 || reloaded.DirectMethods[0].Name != "<init>" {
		t.Fatalf("got direct methods %+v", reloaded.DirectMethods)
	}
	if len(reloaded.DirectMethods[0].Code.Instructions) != 1 {
		t.Fatalf("got %d instructions, want 1", len(reloaded.DirectMethods[0].Code.Instructions))
	}
}

func TestPathForDescriptorStripsTrailingSemicolon(t *testing.T) {
	store := &Store{root: "/tmp/out"}
	got := store.pathForDescriptor("Lcom/example/Main;")
	want := "/tmp/out/Lcom/example/Main"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
