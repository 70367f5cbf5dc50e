package vm

import "dexvm/dex"

// State tags where a Frame is in its lifecycle.
type State byte

const (
	Running State = iota
	Returning
	Completed
)

// Frame is one activation of a method: its register file, the pending
// result slot a move-result* instruction drains, and its position in the
// method's decoded instruction stream.
//
// Register indexing preserves a deliberate peculiarity of the original
// interpreter this one is modeled on: a callee's incoming arguments are
// copied starting at register index 2, not at the conventional "last N
// registers" DEX convention. This is bug-compatible, not a design choice of
// this package.
type Frame struct {
	ClassDesc string
	Method    *dex.Method

	Registers []Value
	pc        int // index into Method.Code.Instructions, not a code-unit offset

	PendingResult Value
	HasPending    bool

	State State
}

// NewFrame allocates a frame for method, with every register initialized to
// Null and sized to the method's declared register count.
func NewFrame(classDesc string, method *dex.Method) *Frame {
	size := 0
	if method.Code != nil {
		size = int(method.Code.RegistersSize)
	}
	regs := make([]Value, size)
	for i := range regs {
		regs[i] = Null
	}
	return &Frame{ClassDesc: classDesc, Method: method, Registers: regs}
}

// BindArgs copies the caller-evaluated argument values into the callee
// frame's registers, starting at index 2. See the Frame doc comment: this
// is preserved exactly as the original behaves, not the conventional
// high-register convention real DEX callees use.
func (f *Frame) BindArgs(args []Value) {
	for i, a := range args {
		dst := 2 + i
		if dst < len(f.Registers) {
			f.Registers[dst] = a
		}
	}
}

// PlantSelf plants the self/host sentinel (object id 1) at register v0 if
// the frame has fewer than 2 registers, otherwise at v1 — the same
// placement the invocation prelude uses for every method entry.
func (f *Frame) PlantSelf() {
	slot := 1
	if len(f.Registers) < 2 {
		slot = 0
	}
	if slot < len(f.Registers) {
		f.Registers[slot] = Object_(SelfObject)
	}
}

// Reg returns register i, or Null if the index is out of range.
func (f *Frame) Reg(i uint32) Value {
	if int(i) >= len(f.Registers) {
		return Null
	}
	return f.Registers[i]
}

// SetReg writes register i if in range; out-of-range writes are silently
// dropped rather than panicking, matching the tolerant style used
// throughout the decoder.
func (f *Frame) SetReg(i uint32, v Value) {
	if int(i) < len(f.Registers) {
		f.Registers[i] = v
	}
}

func (f *Frame) instructions() []dex.Instruction {
	if f.Method.Code == nil {
		return nil
	}
	return f.Method.Code.Instructions
}

// Current returns the instruction at the frame's current position, and
// whether one exists (false once execution has run off the end).
func (f *Frame) Current() (dex.Instruction, bool) {
	instrs := f.instructions()
	if f.pc < 0 || f.pc >= len(instrs) {
		return dex.Instruction{}, false
	}
	return instrs[f.pc], true
}

// PC returns the frame's current position as an index into its method's
// decoded instruction stream, for callers (the interactive debugger) that
// display it but don't otherwise need to interpret it.
func (f *Frame) PC() int {
	return f.pc
}

// Advance moves to the next instruction in sequence.
func (f *Frame) Advance() {
	f.pc++
}

// Branch moves to the instruction whose code-unit offset matches current +
// offset. If no instruction starts exactly there (a malformed or
// unsupported branch target) pc is left at the next sequential instruction.
func (f *Frame) Branch(offset int32) {
	instrs := f.instructions()
	if f.pc < 0 || f.pc >= len(instrs) {
		return
	}
	target := instrs[f.pc].CodeUnitOffset + int(offset)
	if idx, ok := f.Method.Code.IndexAtOffset(target); ok {
		f.pc = idx
		return
	}
	f.pc++
}
