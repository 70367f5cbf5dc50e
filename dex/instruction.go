package dex

import "dexvm/bincursor"

// Opcode is a single DEX instruction byte.
type Opcode byte

// Format identifies one of the standard DEX instruction encodings. Every
// opcode maps to exactly one format; the format alone determines how many
// 16-bit code units the instruction occupies and how its operand bits are
// laid out. This keeps the decoder a single table lookup instead of ~230
// hand-written cases.
type Format byte

const (
	f10x Format = iota // no operands
	f12x               // 4-bit dst, 4-bit src
	f11n               // 4-bit dst, 4-bit signed literal
	f11x               // 8-bit reg
	f10t               // 8-bit signed branch offset
	f20t               // 16-bit signed branch offset
	f22x               // 8-bit vAA, 16-bit vBBBB
	f21t               // 8-bit vAA, 16-bit signed branch offset
	f21s               // 8-bit vAA, 16-bit signed literal
	f21h               // 8-bit vAA, 16-bit literal placed in the high bits
	f21c               // 8-bit vAA, 16-bit pool index
	f23x               // 8-bit vAA, vBB, vCC
	f22b               // 8-bit vAA, vBB, 8-bit signed literal
	f22t               // 4-bit vA, vB, 16-bit signed branch offset
	f22s               // 4-bit vA, vB, 16-bit signed literal
	f22c               // 4-bit vA, vB, 16-bit pool index
	f32x               // 16-bit vAAAA, vBBBB
	f30t               // 32-bit signed branch offset
	f31i               // 8-bit vAA, 32-bit literal
	f31t               // 8-bit vAA, 32-bit branch offset
	f31c               // 8-bit vAA, 32-bit (jumbo) pool index
	f35c               // inline-arg invoke: argc, pool index, up to 5 regs
	f3rc               // range invoke: argc, pool index, starting reg
	f51l               // 8-bit vAA, 64-bit literal
	f45cc              // inline-arg invoke-polymorphic: adds a proto index
	f4rcc              // range invoke-polymorphic: adds a proto index
	fUnused            // explicitly-unused opcode byte; advances one byte
	fStub              // decoded but not yet emitted (invoke-polymorphic/custom); advances one byte
)

type opcodeInfo struct {
	mnemonic string
	format   Format
}

var opcodeTable [256]opcodeInfo

func set(op Opcode, mnemonic string, format Format) {
	opcodeTable[op] = opcodeInfo{mnemonic: mnemonic, format: format}
}

func setRange(start Opcode, format Format, mnemonics ...string) {
	for i, m := range mnemonics {
		set(start+Opcode(i), m, format)
	}
}

func init() {
	for i := range opcodeTable {
		opcodeTable[i] = opcodeInfo{mnemonic: "?unknown?", format: f10x}
	}

	set(0x00, "nop", f10x)
	set(0x01, "move", f12x)
	set(0x02, "move/from16", f22x)
	set(0x03, "move/16", f32x)
	set(0x04, "move-wide", f12x)
	set(0x05, "move-wide/from16", f22x)
	set(0x06, "move-wide/16", f32x)
	set(0x07, "move-object", f12x)
	set(0x08, "move-object/from16", f22x)
	set(0x09, "move-object/16", f32x)
	set(0x0a, "move-result", f11x)
	set(0x0b, "move-result-wide", f11x)
	set(0x0c, "move-result-object", f11x)
	set(0x0d, "move-exception", f11x)
	set(0x0e, "return-void", f10x)
	set(0x0f, "return", f11x)
	set(0x10, "return-wide", f11x)
	set(0x11, "return-object", f11x)
	set(0x12, "const/4", f11n)
	set(0x13, "const/16", f21s)
	set(0x14, "const", f31i)
	set(0x15, "const/high16", f21h)
	set(0x16, "const-wide/16", f21s)
	set(0x17, "const-wide/32", f31i)
	set(0x18, "const-wide", f51l)
	set(0x19, "const-wide/high16", f21h)
	set(0x1a, "const-string", f21c)
	set(0x1b, "const-string/jumbo", f31c)
	set(0x1c, "const-class", f21c)
	set(0x1d, "monitor-enter", f11x)
	set(0x1e, "monitor-exit", f11x)
	set(0x1f, "check-cast", f21c)
	set(0x20, "instance-of", f22c)
	set(0x21, "array-length", f12x)
	set(0x22, "new-instance", f21c)
	set(0x23, "new-array", f22c)
	set(0x24, "filled-new-array", f35c)
	set(0x25, "filled-new-array/range", f3rc)
	set(0x26, "fill-array-data", f31t)
	set(0x27, "throw", f11x)
	set(0x28, "goto", f10t)
	set(0x29, "goto/16", f20t)
	set(0x2a, "goto/32", f30t)
	set(0x2b, "packed-switch", f31t)
	set(0x2c, "sparse-switch", f31t)

	setRange(0x2d, f23x, "cmpl-float", "cmpg-float", "cmpl-double", "cmpg-double", "cmp-long")

	setRange(0x32, f22t, "if-eq", "if-ne", "if-lt", "if-ge", "if-gt", "if-le")
	setRange(0x38, f21t, "if-eqz", "if-nez", "if-ltz", "if-gez", "if-gtz", "if-lez")

	for op := Opcode(0x3e); op <= 0x43; op++ {
		set(op, "unused", fUnused)
	}

	setRange(0x44, f23x,
		"aget", "aget-wide", "aget-object", "aget-boolean", "aget-byte", "aget-char", "aget-short",
		"aput", "aput-wide", "aput-object", "aput-boolean", "aput-byte", "aput-char", "aput-short")

	setRange(0x52, f22c,
		"iget", "iget-wide", "iget-object", "iget-boolean", "iget-byte", "iget-char", "iget-short",
		"iput", "iput-wide", "iput-object", "iput-boolean", "iput-byte", "iput-char", "iput-short")

	setRange(0x60, f21c,
		"sget", "sget-wide", "sget-object", "sget-boolean", "sget-byte", "sget-char", "sget-short",
		"sput", "sput-wide", "sput-object", "sput-boolean", "sput-byte", "sput-char", "sput-short")

	setRange(0x6e, f35c, "invoke-virtual", "invoke-super", "invoke-direct", "invoke-static", "invoke-interface")

	set(0x73, "unused", fUnused)

	setRange(0x74, f3rc, "invoke-virtual/range", "invoke-super/range", "invoke-direct/range", "invoke-static/range", "invoke-interface/range")

	set(0x79, "unused", fUnused)
	set(0x7a, "unused", fUnused)

	setRange(0x7b, f12x,
		"neg-int", "not-int", "neg-long", "not-long", "neg-float", "neg-double",
		"int-to-long", "int-to-float", "int-to-double", "long-to-int", "long-to-float", "long-to-double",
		"float-to-int", "float-to-long", "float-to-double", "double-to-int", "double-to-long", "double-to-float",
		"int-to-byte", "int-to-char", "int-to-short")

	binops := []string{
		"add-int", "sub-int", "mul-int", "div-int", "rem-int", "and-int", "or-int", "xor-int", "shl-int", "shr-int", "ushr-int",
		"add-long", "sub-long", "mul-long", "div-long", "rem-long", "and-long", "or-long", "xor-long", "shl-long", "shr-long", "ushr-long",
		"add-float", "sub-float", "mul-float", "div-float", "rem-float",
		"add-double", "sub-double", "mul-double", "div-double", "rem-double",
	}
	setRange(0x90, f23x, binops...)
	binops2addr := make([]string, len(binops))
	for i, b := range binops {
		binops2addr[i] = b + "/2addr"
	}
	setRange(0xb0, f12x, binops2addr...)

	setRange(0xd0, f22s, "add-int/lit16", "rsub-int", "mul-int/lit16", "div-int/lit16", "rem-int/lit16", "and-int/lit16", "or-int/lit16", "xor-int/lit16")
	setRange(0xd8, f22b, "add-int/lit8", "rsub-int/lit8", "mul-int/lit8", "div-int/lit8", "rem-int/lit8", "and-int/lit8", "or-int/lit8", "xor-int/lit8", "shl-int/lit8", "shr-int/lit8", "ushr-int/lit8")

	for op := Opcode(0xe3); op <= 0xf9; op++ {
		set(op, "unused", fUnused)
	}

	set(0xfa, "invoke-polymorphic", fStub)
	set(0xfb, "invoke-polymorphic/range", fStub)
	set(0xfc, "invoke-custom", fStub)
	set(0xfd, "invoke-custom/range", f3rc)
	set(0xfe, "const-method-handle", f21c)
	set(0xff, "const-method-type", f21c)
}

// Mnemonic returns the opcode's textual name, or "?unknown?" if the table
// has no real name for it.
func (op Opcode) Mnemonic() string { return opcodeTable[op].mnemonic }

// Instruction is the decoded, tagged form of one DEX bytecode instruction.
// Not every field is meaningful for every opcode; which ones are depends on
// the opcode's Format.
type Instruction struct {
	Op     Opcode
	Format Format
	Units  int // length in 16-bit code units
	CodeUnitOffset int // this instruction's starting position, in 16-bit code units from the start of the method's insns

	A, B, C  uint32 // register operands, meaning dependent on format
	Lit      int64  // literal constant, sign/width preserved as decoded
	Offset   int32  // branch offset, in 16-bit code units
	PoolIdx  uint32 // constant-pool index (string/type/field/method/proto/method-handle)
	ProtoIdx uint32 // extra proto index, 45cc/4rcc only
	Args     []uint32
}

func nibbles(b byte) (hi, lo uint32) {
	return uint32(b >> 4), uint32(b & 0x0f)
}

// DecodeInstructions decodes a raw instruction byte stream (as stored in a
// code item, insns_size*2 bytes) into a sequence of tagged instructions.
func DecodeInstructions(insns []byte) []Instruction {
	var out []Instruction
	i := 0
	for i < len(insns) {
		instr, next := decodeOne(insns, i)
		instr.CodeUnitOffset = i / 2
		if instr.Format != fUnused && instr.Format != fStub {
			out = append(out, instr)
		}
		if next <= i {
			break // defensive: never spin on a zero-length decode
		}
		i = next
	}
	return out
}

func decodeOne(insns []byte, i int) (Instruction, int) {
	op := Opcode(insns[i])
	format := opcodeTable[op].format
	instr := Instruction{Op: op, Format: format}

	switch format {
	case fUnused, fStub:
		// Explicitly-unused opcode bytes, and opcodes that are decoded but
		// not yet emitted, advance a single byte rather than a full code
		// unit: the decoder does not know (and does not need) the real
		// operand width of an instruction it never emits.
		instr.Units = 0
		return instr, i + 1

	case f10x:
		instr.Units = 1
		return instr, i + 2

	case f12x, f11n:
		hi, lo := nibbles(insns[i+1])
		instr.A = lo
		if format == f11n {
			instr.Lit = int64(int8(hi<<4)) >> 4
		} else {
			instr.B = hi
		}
		instr.Units = 1
		return instr, i + 2

	case f11x:
		instr.A = uint32(insns[i+1])
		instr.Units = 1
		return instr, i + 2

	case f10t:
		instr.Offset = int32(int8(insns[i+1]))
		instr.Units = 1
		return instr, i + 2

	case f20t:
		instr.Offset = int32(bincursor.I16(insns, i+2))
		instr.Units = 2
		return instr, i + 4

	case f22x:
		instr.A = uint32(insns[i+1])
		instr.B = uint32(bincursor.U16(insns, i+2))
		instr.Units = 2
		return instr, i + 4

	case f21t:
		instr.A = uint32(insns[i+1])
		instr.Offset = int32(bincursor.I16(insns, i+2))
		instr.Units = 2
		return instr, i + 4

	case f21s:
		instr.A = uint32(insns[i+1])
		instr.Lit = int64(bincursor.I16(insns, i+2))
		instr.Units = 2
		return instr, i + 4

	case f21h:
		instr.A = uint32(insns[i+1])
		raw := int64(bincursor.I16(insns, i+2))
		// const/high16 shifts into the top 16 of 32 bits; const-wide/high16
		// shifts into the top 16 of 64 bits. The decoder stores only the
		// 32-bit form (the raw 16-bit literal shifted left by 16) for both
		// opcodes; the raw literal is Lit >> 16.
		instr.Lit = raw << 16
		instr.Units = 2
		return instr, i + 4

	case f21c:
		instr.A = uint32(insns[i+1])
		instr.PoolIdx = uint32(bincursor.U16(insns, i+2))
		instr.Units = 2
		return instr, i + 4

	case f23x:
		instr.A = uint32(insns[i+1])
		instr.B = uint32(insns[i+2])
		instr.C = uint32(insns[i+3])
		instr.Units = 2
		return instr, i + 4

	case f22b:
		instr.A = uint32(insns[i+1])
		instr.B = uint32(insns[i+2])
		instr.Lit = int64(int8(insns[i+3]))
		instr.Units = 2
		return instr, i + 4

	case f22t:
		hi, lo := nibbles(insns[i+1])
		instr.A = lo
		instr.B = hi
		instr.Offset = int32(bincursor.I16(insns, i+2))
		instr.Units = 2
		return instr, i + 4

	case f22s:
		hi, lo := nibbles(insns[i+1])
		instr.A = lo
		instr.B = hi
		instr.Lit = int64(bincursor.I16(insns, i+2))
		instr.Units = 2
		return instr, i + 4

	case f22c:
		hi, lo := nibbles(insns[i+1])
		instr.A = lo
		instr.B = hi
		instr.PoolIdx = uint32(bincursor.U16(insns, i+2))
		instr.Units = 2
		return instr, i + 4

	case f32x:
		instr.A = uint32(bincursor.U16(insns, i+2))
		instr.B = uint32(bincursor.U16(insns, i+4))
		instr.Units = 3
		return instr, i + 6

	case f30t:
		instr.Offset = bincursor.I32(insns, i+2)
		instr.Units = 3
		return instr, i + 6

	case f31i:
		instr.A = uint32(insns[i+1])
		instr.Lit = int64(bincursor.I32(insns, i+2))
		instr.Units = 3
		return instr, i + 6

	case f31t:
		instr.A = uint32(insns[i+1])
		instr.Offset = bincursor.I32(insns, i+2)
		instr.Units = 3
		return instr, i + 6

	case f31c:
		instr.A = uint32(insns[i+1])
		instr.PoolIdx = bincursor.U32(insns, i+2)
		instr.Units = 3
		return instr, i + 6

	case f35c:
		argc, poolIdx := nibbles2(insns, i)
		instr.PoolIdx = poolIdx
		g, regs := decode35cRegs(insns, i, argc)
		instr.A = g
		instr.Args = regs
		instr.Units = 3
		return instr, i + 6

	case f3rc:
		argc := uint32(insns[i+1])
		instr.PoolIdx = uint32(bincursor.U16(insns, i+2))
		start := uint32(bincursor.U16(insns, i+4))
		instr.Args = make([]uint32, argc)
		for k := uint32(0); k < argc; k++ {
			instr.Args[k] = start + k
		}
		instr.Units = 3
		return instr, i + 6

	case f51l:
		instr.A = uint32(insns[i+1])
		instr.Lit = bincursor.I64(insns, i+2)
		instr.Units = 5
		return instr, i + 10

	case f45cc:
		argc, poolIdx := nibbles2(insns, i)
		g, regs := decode35cRegs(insns, i, argc)
		instr.A = g
		instr.Args = regs
		instr.PoolIdx = poolIdx
		instr.ProtoIdx = uint32(bincursor.U16(insns, i+6))
		instr.Units = 4
		return instr, i + 8

	case f4rcc:
		argc := uint32(insns[i+1])
		instr.PoolIdx = uint32(bincursor.U16(insns, i+2))
		start := uint32(bincursor.U16(insns, i+4))
		instr.Args = make([]uint32, argc)
		for k := uint32(0); k < argc; k++ {
			instr.Args[k] = start + k
		}
		instr.ProtoIdx = uint32(bincursor.U16(insns, i+6))
		instr.Units = 4
		return instr, i + 8

	default:
		instr.Units = 1
		return instr, i + 2
	}
}

// nibbles2 pulls the 4-bit arg count and 16-bit pool index shared by the
// 35c/45cc encodings out of the first two code units.
func nibbles2(insns []byte, i int) (argc, poolIdx uint32) {
	hi, _ := nibbles(insns[i+1])
	argc = hi
	poolIdx = uint32(bincursor.U16(insns, i+2))
	return argc, poolIdx
}

// decode35cRegs decodes the up-to-5 argument registers of the 35c/45cc
// encodings: four 4-bit registers packed into the third code unit, plus a
// fifth 4-bit register in the low nibble of the first code unit's second
// byte.
func decode35cRegs(insns []byte, i int, argc uint32) (g uint32, regs []uint32) {
	_, g = nibbles(insns[i+1])
	packed := bincursor.U16(insns, i+4)
	all := [4]uint32{
		uint32(packed & 0xf),
		uint32((packed >> 4) & 0xf),
		uint32((packed >> 8) & 0xf),
		uint32((packed >> 12) & 0xf),
	}
	regs = make([]uint32, 0, argc)
	for k := uint32(0); k < argc && k < 4; k++ {
		regs = append(regs, all[k])
	}
	if argc == 5 {
		regs = append(regs, g)
	}
	return g, regs
}
