package main

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

// Tunable cache geometry. All three must be powers of two; neither
// BlockCache nor DecodedBlockCache checks this.
const (
	DataCacheLines      = 8
	InstrCacheLines     = 8
	DecodedBlockBuckets = 256
)

// Machine is the execute engine: register file, flags, the two block
// caches, the address bus, the decoder, and the decoded-block cache, bound
// together by the fetch-decode-execute loop (spec.md §4.5). Grounded
// stylistically on the teacher's CPU64.Execute() loop shape (atomic
// external-stop-signal check, tight dispatch switch); the instruction
// semantics themselves are new.
type Machine struct {
	regs   RegisterFile
	flags  Flags
	bus    *AddressBus
	dcache *BlockCache
	icache *BlockCache
	dec    *Decoder
	blocks *DecodedBlockCache
	timer  *Timer

	clock uint64
	halt  bool
	exit  bool

	running atomic.Bool
	out     io.Writer
}

func NewMachine(bus *AddressBus) *Machine {
	icache := NewBlockCache(bus, InstrCacheLines)
	m := &Machine{
		bus:    bus,
		dcache: NewBlockCache(bus, DataCacheLines),
		icache: icache,
		dec:    NewDecoder(icache),
		blocks: NewDecodedBlockCache(DecodedBlockBuckets),
		timer:  NewTimer(),
		out:    os.Stdout,
	}
	return m
}

// SetOutput redirects trap console output (used by tests to capture the
// INT 0x80 register dump without touching stdout).
func (m *Machine) SetOutput(w io.Writer) { m.out = w }

// Reset restores the machine to its post-construction state: registers,
// flags, clock, and run state all clear, caches untouched (a cold restart
// would also want a fresh bus; callers that need that construct a new
// Machine). Grounded on the teacher's CPU64.Reset() structure.
func (m *Machine) Reset() {
	m.regs.Reset()
	m.flags = 0
	m.clock = 0
	m.halt = false
	m.exit = false
	m.timer.Start()
}

func (m *Machine) ClockCount() uint64 { return m.clock }
func (m *Machine) Halted() bool       { return m.halt }

// Run drives the fetch-decode-execute loop until halt, exit, or a fatal
// error, following spec.md §4.5's pseudocode exactly, including the
// IP == saved_ip replay guard.
func (m *Machine) Run() error {
	m.running.Store(true)
	defer m.running.Store(false)

	for !m.exit {
		block := m.blocks.Get(m.regs.ip)
		if len(block.Instrs) == 0 {
			if err := Fill(block, m.dec); err != nil {
				return err
			}
		}
		savedIP := m.regs.ip
		for m.regs.ip == savedIP && !m.halt && !m.exit {
			for _, inst := range block.Instrs {
				m.clock++
				m.regs.ip += uint64(inst.InstructionSize)
				if err := m.dispatch(inst); err != nil {
					return err
				}
				if m.halt || m.exit {
					break
				}
			}
		}
	}
	return nil
}

// Stop requests the run loop halt at the next instruction boundary; safe to
// call from another goroutine.
func (m *Machine) Stop() {
	if m.running.Load() {
		m.exit = true
	}
}

func (m *Machine) dispatch(inst Instruction) error {
	if !m.flags.Satisfied(inst.Cond) {
		return nil
	}
	switch inst.Op {
	case OpHalt:
		m.halt = true
		m.exit = true
		return nil

	case OpInt:
		return m.handleInt(byte(inst.Imm))

	case OpMov:
		v, err := m.resolveSrc(inst)
		if err != nil {
			return err
		}
		m.regs.SetView(inst.Reg, inst.Size, v)
		return nil

	case OpStr:
		v := m.regs.Get(inst.SrcReg)
		addr := m.effectiveAddress(inst.Mem)
		return m.dcache.WriteN(addr, sizeBytes(inst.Size), v)

	case OpAdd, OpSub, OpMul, OpDiv, OpIdiv, OpAnd, OpOr, OpXor, OpCmp, OpTest:
		return m.arith(inst)

	case OpPush:
		v := m.regs.Get(inst.Reg)
		m.regs.sp -= 8
		return m.dcache.WriteN(m.regs.sp, 8, v)

	case OpPop:
		v, err := m.dcache.ReadN(m.regs.sp, 8)
		if err != nil {
			return err
		}
		m.regs.Set(inst.Reg, v)
		m.regs.sp += 8
		return nil

	case OpRdt:
		secs := m.timer.ElapsedSeconds()
		m.regs.Set(inst.Reg, uint64(secs*1e9))
		return nil

	case OpCall:
		target, err := m.resolveTarget(inst)
		if err != nil {
			return err
		}
		ret := m.regs.ip
		m.regs.sp -= 8
		if err := m.dcache.WriteN(m.regs.sp, 8, ret); err != nil {
			return err
		}
		m.regs.ip = target
		return nil

	case OpRet:
		v, err := m.dcache.ReadN(m.regs.sp, 8)
		if err != nil {
			return err
		}
		m.regs.sp += 8
		m.regs.ip = v
		return nil

	case OpJmp:
		target, err := m.resolveTarget(inst)
		if err != nil {
			return err
		}
		m.regs.ip = target
		return nil

	case OpSysinfo:
		// Build-info word: address-space width (64) in the high byte,
		// BlockSize in the low 32 bits (SPEC_FULL.md Supplemented Features).
		word := uint64(64)<<56 | uint64(BlockSize)
		m.regs.Set(inst.Reg, word)
		return nil

	default:
		return decErr("unhandled operation %v", inst.Op)
	}
}

func (m *Machine) resolveSrc(inst Instruction) (uint64, error) {
	switch inst.OpSrc {
	case SrcImmediate:
		return inst.Imm, nil
	case SrcReg:
		return m.regs.Get(inst.SrcReg), nil
	case SrcMemDeref:
		addr := m.effectiveAddress(inst.Mem)
		return m.dcache.ReadN(addr, sizeBytes(inst.Size))
	case SrcAddressOf:
		return m.effectiveAddress(inst.Mem), nil
	default:
		return 0, decErr("instruction has no operand source")
	}
}

// resolveTarget computes a control-transfer target for JMP/CALL, which use
// either a register value or an address-of memory operand as the target.
func (m *Machine) resolveTarget(inst Instruction) (uint64, error) {
	if inst.OpSrc == SrcReg {
		return m.regs.Get(inst.SrcReg), nil
	}
	return m.effectiveAddress(inst.Mem), nil
}

// effectiveAddress implements spec.md §4.5's formula:
// (base*base_scale) + (index*index_scale) + displacement, where the scale
// applies to whichever of base/index is the "index" role; an absent
// register contributes zero.
func (m *Machine) effectiveAddress(mem MemOperand) uint64 {
	switch mem.Mode {
	case AddrPCRel:
		return uint64(int64(m.regs.ip) + mem.Disp)
	case AddrAddr:
		return uint64(mem.Disp)
	default: // AddrSPRel, AddrBIS
		var base, index uint64
		if mem.BaseID != InvalidID {
			base = m.regs.Get(mem.BaseID)
		}
		if mem.IndexID != InvalidID {
			index = m.regs.Get(mem.IndexID)
			return uint64(int64(base+index*uint64(mem.Scale)) + mem.Disp)
		}
		return uint64(int64(base*uint64(mem.Scale)) + mem.Disp)
	}
}

func (m *Machine) arith(inst Instruction) error {
	destVal := m.regs.View(inst.Reg, inst.Size)
	srcVal, err := m.resolveSrc(inst)
	if err != nil {
		return err
	}
	width := sizeBytes(inst.Size)

	switch inst.Op {
	case OpAdd:
		res, f := addFlags(destVal, srcVal, width)
		m.regs.SetView(inst.Reg, inst.Size, res)
		m.flags = f
	case OpSub:
		res, f := subFlags(destVal, srcVal, width)
		m.regs.SetView(inst.Reg, inst.Size, res)
		m.flags = f
	case OpCmp:
		_, f := subFlags(destVal, srcVal, width)
		m.flags = f
	case OpMul:
		res, f := mulFlags(destVal, srcVal, width)
		m.regs.SetView(inst.Reg, inst.Size, res)
		m.flags = f
	case OpDiv:
		if srcVal == 0 {
			return mathErr("division by zero")
		}
		res := maskToSize(destVal, inst.Size) / maskToSize(srcVal, inst.Size)
		m.regs.SetView(inst.Reg, inst.Size, res)
		m.flags = 0
	case OpIdiv:
		if srcVal == 0 {
			return mathErr("division by zero")
		}
		sd := signExtend(destVal, width)
		ss := signExtend(srcVal, width)
		res := uint64(sd / ss)
		m.regs.SetView(inst.Reg, inst.Size, res)
		m.flags = 0
	case OpAnd:
		res := destVal & srcVal
		m.regs.SetView(inst.Reg, inst.Size, res)
		m.flags = bitwiseFlags(res, width)
	case OpOr:
		res := destVal | srcVal
		m.regs.SetView(inst.Reg, inst.Size, res)
		m.flags = bitwiseFlags(res, width)
	case OpXor:
		res := destVal ^ srcVal
		m.regs.SetView(inst.Reg, inst.Size, res)
		m.flags = bitwiseFlags(res, width)
	case OpTest:
		res := destVal & srcVal
		m.flags = bitwiseFlags(res, width)
	}
	return nil
}

func signExtend(v uint64, width int) int64 {
	shift := uint(64 - width*8)
	return int64(v<<shift) >> shift
}

// handleInt services the three debug traps spec.md §4.5 defines.
func (m *Machine) handleInt(idx byte) error {
	switch idx {
	case 0x80:
		m.dumpRegisters()
		m.exit = true
	case 0x81:
		v := m.regs.Get(0) - 1
		m.regs.Set(0, v)
		m.flags.set(FlagZero, v == 0)
	case 0x82:
		fmt.Fprintf(m.out, "debug: ip=%#x clock=%d\n", m.regs.ip, m.clock)
	}
	return nil
}

// dumpRegisters follows the original execute.c's intpt register-dump
// layout, adapted to this module's register set.
func (m *Machine) dumpRegisters() {
	fmt.Fprintf(m.out, "Cycle: %d\n", m.clock)
	for i := 0; i < NumGPR; i++ {
		v := m.regs.Get(byte(i))
		fmt.Fprintf(m.out, "r%-2d = 0x%016x (%d)\n", i, v, int64(v))
	}
	fmt.Fprintf(m.out, "sp  = 0x%016x\n", m.regs.sp)
	fmt.Fprintf(m.out, "ip  = 0x%016x\n", m.regs.ip)
	fmt.Fprintf(m.out, "ZR %d | CR %d | OF %d | SN %d\n",
		b2i(m.flags.has(FlagZero)), b2i(m.flags.has(FlagCarry)),
		b2i(m.flags.has(FlagOverflow)), b2i(m.flags.has(FlagSign)))
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
