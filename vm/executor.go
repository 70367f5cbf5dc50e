package vm

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"dexvm/dex"
)

// ClassLoader resolves a type descriptor to its decoded class, the
// abstraction the executor uses to look up superclasses and invocation
// targets without depending on how classes are actually persisted.
type ClassLoader interface {
	Load(descriptor string) (*dex.Class, error)
}

// Fatal errors are assertion violations: conditions the interpreted program
// itself asserts must never happen. Everything else the executor runs into
// (a missing method, an unresolved native call, an unimplemented opcode) is
// logged and treated as returning Null rather than aborting the frame.
var (
	ErrAssertionFailed  = errors.New("vm: assertion failed")
	ErrMissingMethod    = errors.New("vm: missing method")
	ErrMissingClass     = errors.New("vm: missing class")
	ErrNativeUnresolved = errors.New("vm: native call unresolved")
	ErrUnimplementedOp  = errors.New("vm: unimplemented opcode")
)

// Executor runs decoded DEX methods against a shared heap and class loader.
type Executor struct {
	Container *dex.Container
	Loader    ClassLoader
	Heap      *Heap
	Receivers *ReceiverRegistry

	Debug bool
	trace *bufio.Writer
}

// NewExecutor builds an executor over the given container and loader. Trace
// output, when Debug is enabled, is written to out (os.Stderr is the usual
// choice from the CLI).
func NewExecutor(container *dex.Container, loader ClassLoader, out io.Writer) *Executor {
	return &Executor{
		Container: container,
		Loader:    loader,
		Heap:      NewHeap(),
		Receivers: NewReceiverRegistry(),
		trace:     bufio.NewWriter(out),
	}
}

func (e *Executor) tracef(format string, args ...any) {
	if !e.Debug {
		return
	}
	fmt.Fprintf(e.trace, format+"\n", args...)
	e.trace.Flush()
}

// Call finds the first method named methodName on class, searching direct
// then virtual methods by name alone (argument count and signature are not
// compared), and executes it. It is the entry point the host bridge uses to
// invoke extension methods.
func (e *Executor) Call(classDesc, methodName string, args []Value) (Value, error) {
	class, err := e.Loader.Load(classDesc)
	if err != nil {
		return Null, fmt.Errorf("%w: %s: %v", ErrMissingClass, classDesc, err)
	}
	method := findMethodByName(class, methodName)
	if method == nil {
		e.tracef("missing method %s on %s", methodName, classDesc)
		return Null, fmt.Errorf("%w: %s.%s", ErrMissingMethod, classDesc, methodName)
	}
	return e.ExecuteMethod(classDesc, method, args)
}

func findMethodByName(class *dex.Class, name string) *dex.Method {
	for i := range class.DirectMethods {
		if class.DirectMethods[i].Name == name {
			return &class.DirectMethods[i]
		}
	}
	for i := range class.VirtualMethods {
		if class.VirtualMethods[i].Name == name {
			return &class.VirtualMethods[i]
		}
	}
	return nil
}

func findMethodBySignature(class *dex.Class, sig string, direct bool) *dex.Method {
	list := class.VirtualMethods
	if direct {
		list = class.DirectMethods
	}
	for i := range list {
		if list[i].Signature() == sig {
			return &list[i]
		}
	}
	return nil
}

// ExecuteMethod runs one method activation to completion and returns its
// result. Abstract/native methods (Code == nil) return Null immediately.
func (e *Executor) ExecuteMethod(classDesc string, method *dex.Method, args []Value) (Value, error) {
	if method.Code == nil {
		e.tracef("%s.%s has no code (abstract/native)", classDesc, method.Name)
		return Null, nil
	}

	frame := NewFrame(classDesc, method)
	frame.BindArgs(args)

	for {
		instr, ok := frame.Current()
		if !ok {
			frame.State = Completed
			return Null, nil
		}
		if frame.pc == 0 {
			frame.PlantSelf()
		}

		e.tracef("%s.%s pc=%d %s", classDesc, method.Name, frame.pc, instr.Op.Mnemonic())

		result, terminal, err := e.step(frame, instr)
		if err != nil {
			return Null, err
		}
		if terminal {
			return result, nil
		}
	}
}

// NewRunFrame prepares a method activation for step-by-step execution, the
// entry point the interactive debugger uses instead of ExecuteMethod's
// run-to-completion loop.
func (e *Executor) NewRunFrame(classDesc string, method *dex.Method, args []Value) *Frame {
	frame := NewFrame(classDesc, method)
	frame.BindArgs(args)
	return frame
}

// Step executes exactly one instruction against frame. more is false once
// the frame has run off the end of its code; terminal reports whether this
// step produced the method's return value.
func (e *Executor) Step(frame *Frame) (result Value, terminal bool, more bool, err error) {
	instr, has := frame.Current()
	if !has {
		frame.State = Completed
		return Null, false, false, nil
	}
	if frame.pc == 0 {
		frame.PlantSelf()
	}
	result, terminal, err = e.step(frame, instr)
	return result, terminal, true, err
}

// step executes a single instruction against frame. It returns (result,
// true, nil) when the instruction returns from the method, or (_, false,
// nil) to continue, or a non-nil error only for fatal assertion violations.
func (e *Executor) step(frame *Frame, instr dex.Instruction) (Value, bool, error) {
	switch instr.Op.Mnemonic() {
	case "nop":
		frame.Advance()

	case "const/4", "const/16", "const":
		frame.SetReg(instr.A, Int(int32(instr.Lit)))
		frame.Advance()
	case "const/high16":
		frame.SetReg(instr.A, Int(int32(instr.Lit)))
		frame.Advance()
	case "const-wide/16", "const-wide/32", "const-wide":
		frame.SetReg(instr.A, Long(instr.Lit))
		frame.Advance()
	case "const-wide/high16":
		frame.SetReg(instr.A, Long(instr.Lit))
		frame.Advance()

	case "const-string", "const-string/jumbo":
		s, _ := e.Container.String(instr.PoolIdx)
		frame.SetReg(instr.A, String(s))
		frame.Advance()
	case "const-class":
		t, _ := e.Container.TypeString(instr.PoolIdx)
		frame.SetReg(instr.A, TypeDesc(t))
		frame.Advance()

	case "move", "move/from16", "move/16", "move-object", "move-object/from16", "move-object/16",
		"move-wide", "move-wide/from16", "move-wide/16":
		frame.SetReg(instr.A, frame.Reg(instr.B))
		frame.Advance()

	case "move-result", "move-result-wide", "move-result-object":
		if frame.HasPending {
			frame.SetReg(instr.A, frame.PendingResult)
			frame.HasPending = false
		}
		frame.Advance()

	case "move-exception":
		// No try/catch unwinding is modeled; the register is simply left
		// Null since nothing populates a pending exception value.
		frame.Advance()

	case "new-instance":
		desc, _ := e.Container.TypeString(instr.PoolIdx)
		id := e.Heap.Alloc(desc)
		frame.SetReg(instr.A, Object_(id))
		frame.Advance()

	case "check-cast":
		desc, _ := e.Container.TypeString(instr.PoolIdx)
		e.tracef("check-cast v%d -> %s (unchecked)", instr.A, desc)
		frame.Advance()

	case "iget", "iget-wide", "iget-object", "iget-boolean", "iget-byte", "iget-char", "iget-short":
		e.execIGet(frame, instr)
		frame.Advance()
	case "iput", "iput-wide", "iput-object", "iput-boolean", "iput-byte", "iput-char", "iput-short":
		e.execIPut(frame, instr)
		frame.Advance()

	case "sget", "sget-wide", "sget-object", "sget-boolean", "sget-byte", "sget-char", "sget-short",
		"sput", "sput-wide", "sput-object", "sput-boolean", "sput-byte", "sput-char", "sput-short":
		e.tracef("static field access (unimplemented): %s", instr.Op.Mnemonic())
		frame.Advance()

	case "return-void":
		frame.State = Completed
		return Void, true, nil
	case "return", "return-wide", "return-object":
		frame.State = Completed
		return frame.Reg(instr.A), true, nil

	case "goto", "goto/16", "goto/32":
		frame.Branch(instr.Offset)
	case "if-eq", "if-ne", "if-lt", "if-ge", "if-gt", "if-le":
		e.execIfCmp(frame, instr)
	case "if-eqz", "if-nez", "if-ltz", "if-gez", "if-gtz", "if-lez":
		e.execIfZ(frame, instr)

	case "invoke-static":
		return e.execInvokeStatic(frame, instr)
	case "invoke-super":
		return e.execInvokeSuper(frame, instr)
	case "invoke-virtual":
		return e.execInvokeVirtual(frame, instr)
	case "invoke-direct", "invoke-direct/range":
		return e.execInvokeDirect(frame, instr)
	case "invoke-interface", "invoke-interface/range":
		return e.execInvokeInterface(frame, instr)
	case "invoke-virtual/range":
		return e.execInvokeVirtual(frame, instr)
	case "invoke-super/range":
		return e.execInvokeSuper(frame, instr)
	case "invoke-static/range":
		return e.execInvokeStatic(frame, instr)

	default:
		e.tracef("%v: %s", ErrUnimplementedOp, instr.Op.Mnemonic())
		frame.Advance()
	}
	return Null, false, nil
}

func (e *Executor) execIGet(frame *Frame, instr dex.Instruction) {
	objVal := frame.Reg(instr.B)
	obj := e.Heap.Get(objVal.Object)
	if obj == nil {
		frame.SetReg(instr.A, Null)
		return
	}
	key := fieldKey(instr.PoolIdx)
	v, ok := obj.Fields[key]
	if !ok {
		v = Null
	}
	frame.SetReg(instr.A, v)
}

func (e *Executor) execIPut(frame *Frame, instr dex.Instruction) {
	objVal := frame.Reg(instr.B)
	obj := e.Heap.Get(objVal.Object)
	if obj == nil {
		return
	}
	obj.Fields[fieldKey(instr.PoolIdx)] = frame.Reg(instr.A)
}

func (e *Executor) execIfCmp(frame *Frame, instr dex.Instruction) {
	a, b := frame.Reg(instr.A).I, frame.Reg(instr.B).I
	taken := false
	switch instr.Op.Mnemonic() {
	case "if-eq":
		taken = a == b
	case "if-ne":
		taken = a != b
	case "if-lt":
		taken = a < b
	case "if-ge":
		taken = a >= b
	case "if-gt":
		taken = a > b
	case "if-le":
		taken = a <= b
	}
	if taken {
		frame.Branch(instr.Offset)
	} else {
		frame.Advance()
	}
}

func (e *Executor) execIfZ(frame *Frame, instr dex.Instruction) {
	a := frame.Reg(instr.A).I
	taken := false
	switch instr.Op.Mnemonic() {
	case "if-eqz":
		taken = a == 0
	case "if-nez":
		taken = a != 0
	case "if-ltz":
		taken = a < 0
	case "if-gez":
		taken = a >= 0
	case "if-gtz":
		taken = a > 0
	case "if-lez":
		taken = a <= 0
	}
	if taken {
		frame.Branch(instr.Offset)
	} else {
		frame.Advance()
	}
}

func (e *Executor) argValues(frame *Frame, instr dex.Instruction) []Value {
	args := make([]Value, len(instr.Args))
	for i, reg := range instr.Args {
		args[i] = frame.Reg(reg)
	}
	return args
}

// execInvokeStatic hardcodes the two Kotlin runtime intrinsics every
// extension's null-safety and equality checks compile down to.
// checkNotNullParameter raises a fatal assertion violation when its value
// argument is null; areEqual simply computes structural equality.
func (e *Executor) execInvokeStatic(frame *Frame, instr dex.Instruction) (Value, bool, error) {
	name, _ := e.Container.MethodName(instr.PoolIdx)
	args := e.argValues(frame, instr)

	switch name {
	case "checkNotNullParameter":
		if len(args) > 0 && args[0].Kind == KindNull {
			paramName := ""
			if len(args) > 1 {
				paramName = args[1].Str
			}
			return Null, true, fmt.Errorf("%w: parameter %q is null", ErrAssertionFailed, paramName)
		}
		frame.Advance()
		return Null, false, nil
	case "areEqual":
		result := Bool(false)
		if len(args) >= 2 {
			result = Bool(args[0].Equal(args[1]))
		}
		frame.PendingResult = result
		frame.HasPending = true
		frame.Advance()
		return Null, false, nil
	default:
		e.tracef("invoke-static %s (unresolved intrinsic)", name)
		frame.Advance()
		return Null, false, nil
	}
}

func (e *Executor) targetMethod(instr dex.Instruction) (classDesc, name, sig string, direct bool) {
	classDesc, _ = e.Container.MethodClass(instr.PoolIdx)
	name, _ = e.Container.MethodName(instr.PoolIdx)
	return classDesc, name, "", false
}

// execInvokeSuper invokes the named method as declared on the caller's
// direct superclass; classes further up the chain are not searched.
func (e *Executor) execInvokeSuper(frame *Frame, instr dex.Instruction) (Value, bool, error) {
	classDesc, name, _, _ := e.targetMethod(instr)
	args := e.argValues(frame, instr)

	callerClass, err := e.Loader.Load(frame.ClassDesc)
	if err != nil || callerClass.SuperclassDesc == "" {
		e.tracef("invoke-super %s.%s: no superclass for %s", classDesc, name, frame.ClassDesc)
		frame.Advance()
		return Null, false, nil
	}

	result, err := e.invokeByName(callerClass.SuperclassDesc, name, args)
	if err != nil {
		e.tracef("invoke-super %s.%s: %v", classDesc, name, err)
	}
	frame.PendingResult = result
	frame.HasPending = true
	frame.Advance()
	return Null, false, nil
}

// execInvokeVirtual invokes the named method on the receiver's allocated
// class, falling back to the class hierarchy's superclass chain via the
// class loader when the method isn't declared directly on it.
func (e *Executor) execInvokeVirtual(frame *Frame, instr dex.Instruction) (Value, bool, error) {
	_, name, _, _ := e.targetMethod(instr)
	args := e.argValues(frame, instr)

	receiverClass := frame.ClassDesc
	if len(instr.Args) > 0 {
		recv := frame.Reg(instr.Args[0])
		if recv.Kind == KindObject {
			if obj := e.Heap.Get(recv.Object); obj != nil {
				receiverClass = obj.ClassName
			}
		}
	}

	result, err := e.invokeByNameWithFallback(receiverClass, name, args)
	if err != nil {
		e.tracef("invoke-virtual %s.%s: %v", receiverClass, name, err)
	}
	frame.PendingResult = result
	frame.HasPending = true
	frame.Advance()
	return Null, false, nil
}

// invokeByNameWithFallback resolves name on class, walking up the
// superclass chain through the loader when it isn't found directly.
func (e *Executor) invokeByNameWithFallback(classDesc, name string, args []Value) (Value, error) {
	desc := classDesc
	for desc != "" {
		class, err := e.Loader.Load(desc)
		if err != nil {
			return Null, fmt.Errorf("%w: %s", ErrMissingClass, desc)
		}
		if m := findMethodByName(class, name); m != nil {
			return e.ExecuteMethod(desc, m, args)
		}
		desc = class.SuperclassDesc
	}
	return Null, fmt.Errorf("%w: %s.%s", ErrMissingMethod, classDesc, name)
}

func (e *Executor) invokeByName(classDesc, name string, args []Value) (Value, error) {
	class, err := e.Loader.Load(classDesc)
	if err != nil {
		return Null, fmt.Errorf("%w: %s", ErrMissingClass, classDesc)
	}
	m := findMethodByName(class, name)
	if m == nil {
		return Null, fmt.Errorf("%w: %s.%s", ErrMissingMethod, classDesc, name)
	}
	return e.ExecuteMethod(classDesc, m, args)
}

// execInvokeDirect loads and runs the target class's method for any
// non-java.lang.* target. Its return value is discarded at this outer
// level: the original interpreter this one preserves never wires a
// move-result after invoke-direct, so the evaluated result would otherwise
// sit unused in pending-result forever.
func (e *Executor) execInvokeDirect(frame *Frame, instr dex.Instruction) (Value, bool, error) {
	classDesc, name, _, _ := e.targetMethod(instr)
	args := e.argValues(frame, instr)

	if len(classDesc) > 0 && len(classDesc) >= len("Ljava/lang/") && classDesc[:len("Ljava/lang/")] == "Ljava/lang/" {
		e.tracef("invoke-direct %s.%s: java.lang target, not loaded", classDesc, name)
		frame.Advance()
		return Null, false, nil
	}

	_, err := e.invokeByName(classDesc, name, args)
	if err != nil {
		e.tracef("invoke-direct %s.%s: %v", classDesc, name, err)
	}
	frame.Advance()
	return Null, false, nil
}

// execInvokeInterface does not dispatch through the receiver register the
// way invoke-virtual does. Instead it scans every field of the self object
// (heap id 1) for an object reference, tries a host-registered receiver
// for the target signature first, then that object's own inline native
// slot. It does not stop at the first match: every field is scanned, and
// the last successful invocation's result wins. This mirrors a loop with
// no break in the interpreter this one is modeled on.
func (e *Executor) execInvokeInterface(frame *Frame, instr dex.Instruction) (Value, bool, error) {
	_, name, _, _ := e.targetMethod(instr)
	classDesc, _ := e.Container.MethodClass(instr.PoolIdx)
	args := e.argValues(frame, instr)
	sig := name + ":" + "(?)" // signature proto shape resolved below
	if m := e.lookupMethodShape(instr.PoolIdx); m != "" {
		sig = m
	}

	var result Value
	found := false

	self := e.Heap.Get(SelfObject)
	if self != nil {
		for _, fieldVal := range self.Fields {
			if fieldVal.Kind != KindObject {
				continue
			}
			obj := e.Heap.Get(fieldVal.Object)
			if obj == nil || obj.ClassName != classDesc {
				continue
			}
			if recv, ok := e.Receivers.Lookup(sig); ok {
				if v, err := recv.Invoke(e.Heap, fieldVal.Object, args); err == nil {
					result, found = v, true
				} else {
					e.tracef("invoke-interface %s via host receiver: %v", sig, err)
				}
				continue
			}
			if obj.Natives != nil {
				if native, ok := obj.Natives[sig]; ok {
					if v, err := native(e.Heap, fieldVal.Object, args); err == nil {
						result, found = v, true
					} else {
						e.tracef("invoke-interface %s native slot: %v", sig, err)
					}
				}
			}
		}
	}

	if !found {
		e.tracef("%w: %s", ErrNativeUnresolved, sig)
	}
	frame.PendingResult = result
	frame.HasPending = true
	frame.Advance()
	return Null, false, nil
}

// lookupMethodShape rebuilds a method's full signature string (name plus
// parameter/return descriptors) from the method_ids/proto_ids tables so
// host receivers can be probed by shape rather than raw pool index.
func (e *Executor) lookupMethodShape(methodIdx uint32) string {
	if int(methodIdx) >= len(e.Container.MethodIDs) {
		return ""
	}
	name, _ := e.Container.MethodName(methodIdx)
	protoIdx := e.Container.MethodIDs[methodIdx].ProtoIdx
	if int(protoIdx) >= len(e.Container.ProtoIDs) {
		return name + ":()V"
	}
	proto := e.Container.ProtoIDs[protoIdx]
	ret, _ := e.Container.TypeString(proto.ReturnTypeIdx)
	sig := name + ":("
	for _, typeIdx := range dex.DecodeTypeListIndices(e.Container.Data, proto.ParametersOff) {
		t, _ := e.Container.TypeString(typeIdx)
		sig += t
	}
	sig += ")" + ret
	return sig
}
