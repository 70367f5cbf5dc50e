package vm

import "strconv"

// ObjectID is a heap reference. Id 0 is reserved and never allocated; id 1
// is reserved for the synthetic self/host object every invocation prelude
// plants before a method body starts, matching the host bridge's contract
// that object 1 is always the running extension's context.
type ObjectID uint32

const (
	NoObject   ObjectID = 0
	SelfObject ObjectID = 1
)

// NativeMethod is a host-provided implementation for a method signature
// that the interpreter cannot or should not run from decoded bytecode (a
// bridge call into the embedding process, for instance). It receives the
// object it was invoked on and the already-evaluated argument registers,
// and returns the method's result.
type NativeMethod func(heap *Heap, self ObjectID, args []Value) (Value, error)

// Object is one heap-allocated instance: a class name, its field slots
// keyed by declared field index (so `field@3` rather than by name, matching
// how iget/iput address fields), and an optional table of native methods
// installed directly on this instance (used for host-receiver objects that
// have no backing DEX class).
type Object struct {
	ClassName string
	Fields    map[string]Value
	Natives   map[string]NativeMethod
}

// fieldKey is the Fields map key for a field addressed by its field_ids
// index, matching the iget/iput operand.
func fieldKey(fieldIdx uint32) string {
	return fieldKeyPrefix + strconv.Itoa(int(fieldIdx))
}

const fieldKeyPrefix = "field@"

// Heap owns every allocated Object, handing out monotonically increasing
// ids starting at 2 (0 is reserved as "no object", 1 is reserved for the
// self/host sentinel planted by the invocation prelude).
type Heap struct {
	objects map[ObjectID]*Object
	nextID  ObjectID
}

// NewHeap creates an empty heap and plants the self/host sentinel at id 1.
func NewHeap() *Heap {
	h := &Heap{
		objects: make(map[ObjectID]*Object),
		nextID:  2,
	}
	h.objects[SelfObject] = &Object{ClassName: "<self>", Fields: make(map[string]Value)}
	return h
}

// Alloc creates a new, empty object of the given class and returns its id.
func (h *Heap) Alloc(className string) ObjectID {
	id := h.nextID
	h.nextID++
	h.objects[id] = &Object{ClassName: className, Fields: make(map[string]Value)}
	return id
}

// Get returns the object for id, or nil if it was never allocated.
func (h *Heap) Get(id ObjectID) *Object {
	return h.objects[id]
}

// Find returns the id of the first allocated object whose class name
// matches. Unused by the host bridge itself (which constructs directly
// against the reserved self id rather than searching for its result), but
// available to callers that need to locate an instance by class without
// already holding its id.
func (h *Heap) Find(className string) (ObjectID, bool) {
	for id, obj := range h.objects {
		if obj.ClassName == className {
			return id, true
		}
	}
	return NoObject, false
}

// SelfFields returns the whole field map of the self object (id 1), or nil
// if it is absent: the fields the invoke-interface native-receiver scan
// walks looking for an object reference whose class matches.
func (h *Heap) SelfFields() map[string]Value {
	self := h.objects[SelfObject]
	if self == nil {
		return nil
	}
	return self.Fields
}
