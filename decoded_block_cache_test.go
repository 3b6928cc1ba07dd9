package main

import "testing"

func TestDecodedBlockCache_ReuseAcrossLookups(t *testing.T) {
	c := NewDecodedBlockCache(16)
	a := c.Get(100)
	b := c.Get(100)
	if a != b {
		t.Fatalf("Get should return the same entry for the same start IP")
	}
}

func TestDecodedBlockCache_FillStopsAtBranchPoint(t *testing.T) {
	bus := NewAddressBus()
	if err := bus.AddDevice(NewRAMDevice(4096)); err != nil {
		t.Fatalf("add device: %v", err)
	}
	program := make([]byte, BlockSize)
	copy(program, append(movRegImm64(0, 1), 0x00)) // MOV r0,1 ; HALT
	if err := bus.WriteBlock(0, program); err != nil {
		t.Fatalf("write: %v", err)
	}
	icache := NewBlockCache(bus, 2)
	dec := NewDecoder(icache)
	cache := NewDecodedBlockCache(16)
	block := cache.Get(0)
	if err := Fill(block, dec); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if len(block.Instrs) != 2 {
		t.Fatalf("block has %d instructions, want 2 (MOV, HALT)", len(block.Instrs))
	}
	if !block.Instrs[len(block.Instrs)-1].IsBranchPoint {
		t.Fatalf("block must end on a branch-point instruction")
	}
}

func TestDecodedBlockCache_FillStopsAtMaxBlock(t *testing.T) {
	bus := NewAddressBus()
	if err := bus.AddDevice(NewRAMDevice(4096)); err != nil {
		t.Fatalf("add device: %v", err)
	}
	// A long run of non-branching MOV reg,reg instructions (2 bytes each),
	// no HALT within reach, to force the MAX_BLOCK cap.
	var program []byte
	for i := 0; i < MaxBlock+10; i++ {
		program = append(program, movRegReg(0, 1)...)
	}
	block0 := make([]byte, BlockSize)
	copy(block0, program)
	if err := bus.WriteBlock(0, block0); err != nil {
		t.Fatalf("write block0: %v", err)
	}
	block1 := make([]byte, BlockSize)
	copy(block1, program[BlockSize:])
	if err := bus.WriteBlock(BlockSize, block1); err != nil {
		t.Fatalf("write block1: %v", err)
	}
	icache := NewBlockCache(bus, 2)
	dec := NewDecoder(icache)
	cache := NewDecodedBlockCache(16)
	block := cache.Get(0)
	if err := Fill(block, dec); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if len(block.Instrs) != MaxBlock {
		t.Fatalf("block has %d instructions, want MAX_BLOCK=%d", len(block.Instrs), MaxBlock)
	}
}
