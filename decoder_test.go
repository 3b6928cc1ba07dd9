package main

import "testing"

func decoderRig(t *testing.T, program []byte) *Decoder {
	t.Helper()
	bus := NewAddressBus()
	if err := bus.AddDevice(NewRAMDevice(4096)); err != nil {
		t.Fatalf("add device: %v", err)
	}
	block := make([]byte, BlockSize)
	copy(block, program)
	if err := bus.WriteBlock(0, block); err != nil {
		t.Fatalf("write program: %v", err)
	}
	icache := NewBlockCache(bus, 4)
	return NewDecoder(icache)
}

func TestDecoder_Halt(t *testing.T) {
	d := decoderRig(t, []byte{0x00})
	inst, err := d.Decode(0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if inst.Op != OpHalt {
		t.Errorf("op = %v, want OpHalt", inst.Op)
	}
	if inst.InstructionSize != 1 {
		t.Errorf("instruction size = %d, want 1", inst.InstructionSize)
	}
	if !inst.IsBranchPoint {
		t.Errorf("HALT should be a branch point")
	}
}

func TestDecoder_MovRegImm(t *testing.T) {
	xfer := byte(2<<4) | (3 << 2) // dest r2, size code 3 (8 bytes)
	program := []byte{0x11, xfer, 0x05, 0, 0, 0, 0, 0, 0, 0}
	d := decoderRig(t, program)
	inst, err := d.Decode(0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if inst.Op != OpMov || inst.OpSrc != SrcImmediate {
		t.Fatalf("unexpected decode: %+v", inst)
	}
	if inst.Reg != 2 {
		t.Errorf("dest reg = %d, want 2", inst.Reg)
	}
	if inst.Imm != 5 {
		t.Errorf("imm = %d, want 5", inst.Imm)
	}
	if inst.InstructionSize != 10 {
		t.Errorf("instruction size = %d, want 10", inst.InstructionSize)
	}
}

func TestDecoder_UnknownOpcodeIsDecodeError(t *testing.T) {
	// 0xFF has no primary table entry (zero value = OpInvl).
	d := decoderRig(t, []byte{0xFF})
	_, err := d.Decode(0)
	if err == nil {
		t.Fatalf("expected decode_error for unknown opcode")
	}
	if kindOf(err) != DecodeError {
		t.Errorf("error kind = %v, want DecodeError", kindOf(err))
	}
}

func TestDecoder_BISBaseOnly(t *testing.T) {
	// MOV r0, [r5] (BIS, ignore=0: base=r5, no index, scale code 0 =>
	// scale 1, 32-bit displacement=0x10).
	xfer := byte(0<<4) | (2 << 2) | 0 // dest r0, mode=2 (BIS), size=0
	packed := byte(5<<4) | (0 << 3) | (0 << 1) | 0
	program := []byte{0x12, xfer, packed, 0x10, 0, 0, 0}
	d := decoderRig(t, program)
	inst, err := d.Decode(0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if inst.Mem.BaseID != 5 {
		t.Errorf("base = %d, want 5", inst.Mem.BaseID)
	}
	if inst.Mem.IndexID != InvalidID {
		t.Errorf("index = %d, want InvalidID (no second byte)", inst.Mem.IndexID)
	}
	if inst.Mem.Disp != 0x10 {
		t.Errorf("disp = %d, want 0x10", inst.Mem.Disp)
	}
	if inst.InstructionSize != 7 {
		t.Errorf("instruction size = %d, want 7", inst.InstructionSize)
	}
}

func TestDecoder_BISBaseAndIndex(t *testing.T) {
	// MOV r0, [r3 + r7*4] (BIS, ignore=1: second byte supplies base=r3,
	// index=r7; scale code 2 => scale 4; 16-bit displacement=-1).
	xfer := byte(0<<4) | (2 << 2) | 0 // dest r0, mode=2 (BIS), size=0
	packed := byte(0<<4) | (1 << 3) | (2 << 1) | 1
	altByte := byte(3<<4) | 7
	program := []byte{0x12, xfer, packed, altByte, 0xFF, 0xFF}
	d := decoderRig(t, program)
	inst, err := d.Decode(0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if inst.Mem.BaseID != 3 {
		t.Errorf("base = %d, want 3", inst.Mem.BaseID)
	}
	if inst.Mem.IndexID != 7 {
		t.Errorf("index = %d, want 7", inst.Mem.IndexID)
	}
	if inst.Mem.Scale != 4 {
		t.Errorf("scale = %d, want 4", inst.Mem.Scale)
	}
	if inst.Mem.Disp != -1 {
		t.Errorf("disp = %d, want -1", inst.Mem.Disp)
	}
	if inst.InstructionSize != 6 {
		t.Errorf("instruction size = %d, want 6", inst.InstructionSize)
	}
}

func TestDecoder_ExtendedSysinfo(t *testing.T) {
	// 0x0F prefix, extended opcode 0x03 = SYSINFO embedded reg r3.
	d := decoderRig(t, []byte{0x0F, 0x03})
	inst, err := d.Decode(0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if inst.Op != OpSysinfo {
		t.Errorf("op = %v, want OpSysinfo", inst.Op)
	}
	if inst.Reg != 3 {
		t.Errorf("embedded reg = %d, want 3", inst.Reg)
	}
	if inst.InstructionSize != 2 {
		t.Errorf("instruction size = %d, want 2", inst.InstructionSize)
	}
}
