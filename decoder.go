package main

import "encoding/binary"

// Op is the decoded operation variant (spec.md §4.3).
type Op byte

const (
	OpInvl Op = iota
	OpHalt
	OpInt
	OpMov
	OpStr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpIdiv
	OpAnd
	OpOr
	OpXor
	OpCmp
	OpTest
	OpPush
	OpPop
	OpRdt
	OpCall
	OpRet
	OpSysinfo
	OpJmp
)

// OperandSource discriminates where a decoded instruction's source data
// comes from.
type OperandSource byte

const (
	SrcNone OperandSource = iota
	SrcImmediate
	SrcReg
	SrcMemDeref
	SrcAddressOf
)

// AddrMode is one of the four memory addressing modes (spec.md §4.3).
type AddrMode byte

const (
	AddrPCRel AddrMode = iota
	AddrSPRel
	AddrBIS
	AddrAddr
)

// MemOperand describes an effective-address computation.
type MemOperand struct {
	BaseID  byte // InvalidID if absent
	IndexID byte // InvalidID if absent
	Scale   byte // 1, 2, 4 or 8
	Disp    int64
	Mode    AddrMode
}

// Instruction is the decoded-instruction IR. It holds register IDs, never
// pointers into the register file, so it stays copyable and valid across a
// decoded-block cache reload (spec.md §9).
type Instruction struct {
	Op              Op
	Cond            Condition
	Reg             byte // the register named by the transfer byte / embedded-opcode form
	OpSrc           OperandSource
	SrcReg          byte
	Imm             uint64
	Mem             MemOperand
	Size            byte // 0..3, meaning 1/2/4/8 bytes
	InstructionSize int
	IsBranchPoint   bool
}

// operandForm selects how the transfer byte following an opcode is shaped.
type operandForm byte

const (
	formNone operandForm = iota
	formRegReg
	formRegImm
	formRegMem
)

// opShape says how an opcode's operands are encoded at all: via a transfer
// byte, via a register ID embedded in the opcode's low nibble, via a single
// literal byte (INT), or not at all (HALT, RET).
type opShape byte

const (
	shapeNone opShape = iota
	shapeTransfer
	shapeEmbeddedReg
	shapeIntLiteral
)

type opcodeEntry struct {
	op    Op
	cond  Condition
	shape opShape
	form  operandForm
}

// Primary and extended opcode tables. Index 0x0F in the primary table is
// reserved as the extension-prefix escape and is never looked up directly.
var primaryTable [256]opcodeEntry
var extendedTable [256]opcodeEntry

const extPrefix = 0x0F

func init() {
	// HALT / RET / branch-points with no operand encoding.
	primaryTable[0x00] = opcodeEntry{op: OpHalt, shape: shapeNone, cond: CondTrue}
	primaryTable[0x01] = opcodeEntry{op: OpRet, shape: shapeNone, cond: CondTrue}

	// INT takes one literal byte naming the trap index.
	primaryTable[0x02] = opcodeEntry{op: OpInt, shape: shapeIntLiteral, cond: CondTrue}

	// MOV: three forms.
	primaryTable[0x10] = opcodeEntry{op: OpMov, shape: shapeTransfer, form: formRegReg, cond: CondTrue}
	primaryTable[0x11] = opcodeEntry{op: OpMov, shape: shapeTransfer, form: formRegImm, cond: CondTrue}
	primaryTable[0x12] = opcodeEntry{op: OpMov, shape: shapeTransfer, form: formRegMem, cond: CondTrue}

	// STR: store register to memory (reg-mem form; the transfer-byte
	// register field names the source register, not a destination).
	primaryTable[0x13] = opcodeEntry{op: OpStr, shape: shapeTransfer, form: formRegMem, cond: CondTrue}

	// Arithmetic / logic, each with reg-reg, reg-imm, reg-mem forms at
	// consecutive opcode values.
	type group struct {
		op   Op
		base byte
	}
	groups := []group{
		{OpAdd, 0x20}, {OpSub, 0x23}, {OpMul, 0x26}, {OpDiv, 0x29}, {OpIdiv, 0x2C},
		{OpAnd, 0x2F}, {OpOr, 0x32}, {OpXor, 0x35}, {OpCmp, 0x38}, {OpTest, 0x3B},
	}
	forms := []operandForm{formRegReg, formRegImm, formRegMem}
	for _, g := range groups {
		for i, f := range forms {
			primaryTable[g.base+byte(i)] = opcodeEntry{op: g.op, shape: shapeTransfer, form: f, cond: CondTrue}
		}
	}

	// PUSH/POP/RDT: register ID embedded in the opcode's low nibble.
	for r := byte(0); r < NumGPR; r++ {
		primaryTable[0x40+r] = opcodeEntry{op: OpPush, shape: shapeEmbeddedReg, cond: CondTrue}
		primaryTable[0x50+r] = opcodeEntry{op: OpPop, shape: shapeEmbeddedReg, cond: CondTrue}
		primaryTable[0x60+r] = opcodeEntry{op: OpRdt, shape: shapeEmbeddedReg, cond: CondTrue}
	}

	// JMP/CALL, unconditional and per-condition, reg-mem (address-of target)
	// and reg-reg (target held in a register) forms.
	jmpConds := []Condition{
		CondTrue, CondZero, CondNotZero, CondCarry, CondNotCarry, CondOverflow,
		CondNotOverflow, CondSign, CondNotSign, CondAbove, CondBelowOrEqual,
		CondGreater, CondLessOrEqual, CondGreaterOrEqual, CondLess,
	}
	jmpBase := byte(0x70)
	for i, c := range jmpConds {
		primaryTable[jmpBase+byte(i)] = opcodeEntry{op: OpJmp, shape: shapeTransfer, form: formRegMem, cond: c}
	}
	primaryTable[0x7F] = opcodeEntry{op: OpJmp, shape: shapeTransfer, form: formRegReg, cond: CondTrue}
	primaryTable[0x80] = opcodeEntry{op: OpCall, shape: shapeTransfer, form: formRegMem, cond: CondTrue}
	primaryTable[0x81] = opcodeEntry{op: OpCall, shape: shapeTransfer, form: formRegReg, cond: CondTrue}

	// Extended table (reached via the 0x0F prefix): SYSINFO plus the
	// STSP/RDSP stack-relative convenience encodings (SPEC_FULL.md
	// Supplemented Features).
	for r := byte(0); r < NumGPR; r++ {
		extendedTable[0x00+r] = opcodeEntry{op: OpSysinfo, shape: shapeEmbeddedReg, cond: CondTrue}
		// STSP/RDSP: the register comes from the transfer byte, so all 16
		// low-nibble values of these opcodes decode the same way.
		// STSP rN, [SP+disp]: store rN to a forced SPRel/no-index address.
		extendedTable[0xE0+r] = opcodeEntry{op: OpStr, shape: shapeTransfer, form: formRegMem, cond: CondTrue}
		// RDSP rN, [SP+disp]: load a forced SPRel/no-index address into rN.
		extendedTable[0xF0+r] = opcodeEntry{op: OpMov, shape: shapeTransfer, form: formRegMem, cond: CondTrue}
	}
}

// isBranchPoint reports whether op may change IP non-sequentially, ending a
// decoded block (spec.md §4.3).
func isBranchPoint(op Op) bool {
	switch op {
	case OpHalt, OpInt, OpRet, OpJmp, OpCall:
		return true
	default:
		return false
	}
}

// Decoder translates bytes read through an instruction block cache into
// Instruction values. It is stateless: all state it touches belongs to the
// cache and the caller-supplied IP.
type Decoder struct {
	icache *BlockCache
}

func NewDecoder(icache *BlockCache) *Decoder {
	return &Decoder{icache: icache}
}

func (d *Decoder) readByte(addr uint64) (byte, error) {
	v, err := d.icache.ReadN(addr, 1)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}

// Decode produces one decoded instruction starting at ip.
func (d *Decoder) Decode(ip uint64) (Instruction, error) {
	cursor := ip
	opByte, err := d.readByte(cursor)
	if err != nil {
		return Instruction{}, err
	}
	cursor++

	table := &primaryTable
	if opByte == extPrefix {
		extByte, err := d.readByte(cursor)
		if err != nil {
			return Instruction{}, err
		}
		cursor++
		opByte = extByte
		table = &extendedTable
	}
	entry := table[opByte]
	if entry.op == OpInvl {
		return Instruction{}, decErr("unknown opcode %#02x", opByte)
	}

	inst := Instruction{Op: entry.op, Cond: entry.cond}

	switch entry.shape {
	case shapeNone:
		// no operand bytes

	case shapeIntLiteral:
		lit, err := d.readByte(cursor)
		if err != nil {
			return Instruction{}, err
		}
		cursor++
		inst.Imm = uint64(lit)
		inst.OpSrc = SrcImmediate

	case shapeEmbeddedReg:
		inst.Reg = opByte & 0x0F

	case shapeTransfer:
		xfer, err := d.readByte(cursor)
		if err != nil {
			return Instruction{}, err
		}
		cursor++
		reg := (xfer >> 4) & 0x0F
		inst.Reg = reg

		switch entry.form {
		case formRegReg:
			inst.OpSrc = SrcReg
			inst.SrcReg = xfer & 0x0F
			inst.Size = 3 // register-register operands are always full width

		case formRegImm:
			sizeCode := (xfer >> 2) & 0x03
			signExt := (xfer>>1)&0x01 != 0
			inst.Size = sizeCode
			n := sizeBytes(sizeCode)
			litBytes := make([]byte, 8)
			for i := 0; i < n; i++ {
				b, err := d.readByte(cursor)
				if err != nil {
					return Instruction{}, err
				}
				cursor++
				litBytes[i] = b
			}
			raw := binary.LittleEndian.Uint64(litBytes)
			if signExt && n < 8 {
				shift := uint(64 - n*8)
				raw = uint64(int64(raw<<shift) >> shift)
			}
			inst.OpSrc = SrcImmediate
			inst.Imm = raw

		case formRegMem:
			modeCode := (xfer >> 2) & 0x03
			sizeCode := xfer & 0x03
			inst.Size = sizeCode
			mode := AddrMode(modeCode)
			mem := MemOperand{BaseID: InvalidID, IndexID: InvalidID, Scale: 1, Mode: mode}

			switch mode {
			case AddrPCRel:
				disp, err := d.readSigned32(&cursor)
				if err != nil {
					return Instruction{}, err
				}
				mem.Disp = disp

			case AddrSPRel:
				packed, err := d.readByte(cursor)
				if err != nil {
					return Instruction{}, err
				}
				cursor++
				mem.BaseID = RegSP
				ireg := (packed >> 4) & 0x0F
				dispWidth := (packed >> 3) & 0x01
				scaleCode := (packed >> 1) & 0x03
				ignore := packed & 0x01
				mem.Scale = 1 << scaleCode
				if ignore == 0 {
					mem.IndexID = ireg
				}
				if dispWidth == 1 {
					d16, err := d.readSigned16(&cursor)
					if err != nil {
						return Instruction{}, err
					}
					mem.Disp = d16
				} else {
					d32, err := d.readSigned32(&cursor)
					if err != nil {
						return Instruction{}, err
					}
					mem.Disp = d32
				}

			case AddrBIS:
				// Same packed-byte layout as SPRel, but the field at bits
				// 7-4 names a base register (not an index). ignore=0 means
				// base only, no index (in SPRel, ignore=0 means an index is
				// present); ignore=1 reads a second byte holding base (high
				// nibble) and index (low nibble).
				packed, err := d.readByte(cursor)
				if err != nil {
					return Instruction{}, err
				}
				cursor++
				regField := (packed >> 4) & 0x0F
				dispWidth := (packed >> 3) & 0x01
				scaleCode := (packed >> 1) & 0x03
				ignore := packed & 0x01
				mem.Scale = 1 << scaleCode
				if ignore == 0 {
					mem.BaseID = regField
				} else {
					altByte, err := d.readByte(cursor)
					if err != nil {
						return Instruction{}, err
					}
					cursor++
					mem.BaseID = (altByte >> 4) & 0x0F
					mem.IndexID = altByte & 0x0F
				}
				if dispWidth == 1 {
					d16, err := d.readSigned16(&cursor)
					if err != nil {
						return Instruction{}, err
					}
					mem.Disp = d16
				} else {
					d32, err := d.readSigned32(&cursor)
					if err != nil {
						return Instruction{}, err
					}
					mem.Disp = d32
				}

			case AddrAddr:
				litBytes := make([]byte, 8)
				for i := 0; i < 8; i++ {
					b, err := d.readByte(cursor)
					if err != nil {
						return Instruction{}, err
					}
					cursor++
					litBytes[i] = b
				}
				mem.Disp = int64(binary.LittleEndian.Uint64(litBytes))
			}

			if table == &extendedTable && (opByte >= 0xE0) {
				// STSP/RDSP: force SPRel addressing with no index
				// register, per the supplemented decoder convenience.
				mem = MemOperand{BaseID: RegSP, IndexID: InvalidID, Scale: 1, Mode: AddrSPRel, Disp: mem.Disp}
			}

			inst.Mem = mem
			if entry.op == OpStr {
				inst.OpSrc = SrcReg
				inst.SrcReg = reg
			} else if entry.op == OpJmp || entry.op == OpCall {
				inst.OpSrc = SrcAddressOf
			} else {
				inst.OpSrc = SrcMemDeref
			}
		}
	}

	inst.InstructionSize = int(cursor - ip)
	inst.IsBranchPoint = isBranchPoint(inst.Op)
	return inst, nil
}

func (d *Decoder) readSigned32(cursor *uint64) (int64, error) {
	buf := make([]byte, 4)
	for i := 0; i < 4; i++ {
		b, err := d.readByte(*cursor)
		if err != nil {
			return 0, err
		}
		*cursor++
		buf[i] = b
	}
	return int64(int32(binary.LittleEndian.Uint32(buf))), nil
}

func (d *Decoder) readSigned16(cursor *uint64) (int64, error) {
	buf := make([]byte, 2)
	for i := 0; i < 2; i++ {
		b, err := d.readByte(*cursor)
		if err != nil {
			return 0, err
		}
		*cursor++
		buf[i] = b
	}
	return int64(int16(binary.LittleEndian.Uint16(buf))), nil
}
