package main

import "sync/atomic"

// MaxDevices bounds the device list, matching the source machine's fixed
// device table size.
const MaxDevices = 30

type deviceEntry struct {
	dev       Device
	baseBlock uint64
	numBlocks uint64
}

// AddressBus owns a sorted, non-overlapping list of devices over a flat
// byte-addressed space and routes block-granular reads/writes/locks to the
// device that owns the target address. The public surface here is
// byte-addressed; device dispatch and range bookkeeping work in BlockSize
// units (DESIGN.md Open Question resolution #3).
//
// sealed mirrors the teacher bus's one-way seal idiom: once Seal is called,
// no more devices may be attached. main.go seals the bus before loading and
// running a program; Machine itself never seals it.
type AddressBus struct {
	devices []deviceEntry
	sealed  atomic.Bool
}

func NewAddressBus() *AddressBus {
	return &AddressBus{devices: make([]deviceEntry, 0, MaxDevices)}
}

// AddDevice appends dev after the current last device's upper bound. Devices
// are never inserted into arbitrary gaps; this keeps the non-overlap
// invariant trivially true by construction.
func (b *AddressBus) AddDevice(dev Device) error {
	if b.sealed.Load() {
		return memErr("address bus is sealed, cannot add device")
	}
	if len(b.devices) >= MaxDevices {
		return memErr("address bus is full (max %d devices)", MaxDevices)
	}
	blocks, err := dev.Init()
	if err != nil {
		return err
	}
	if blocks == 0 {
		return memErr("device reported zero blocks")
	}
	var base uint64
	if n := len(b.devices); n > 0 {
		last := b.devices[n-1]
		base = last.baseBlock + last.numBlocks
	}
	b.devices = append(b.devices, deviceEntry{dev: dev, baseBlock: base, numBlocks: blocks})
	return nil
}

// Seal freezes the device list. Calling AddDevice afterward fails.
func (b *AddressBus) Seal() { b.sealed.Store(true) }

func (b *AddressBus) Destroy() {
	for _, e := range b.devices {
		e.dev.Destroy()
	}
}

// find locates the device whose block range contains blockAddr, and returns
// the entry plus the block offset local to that device.
func (b *AddressBus) find(blockAddr uint64) (*deviceEntry, uint64, error) {
	for i := range b.devices {
		e := &b.devices[i]
		if blockAddr >= e.baseBlock && blockAddr < e.baseBlock+e.numBlocks {
			return e, blockAddr - e.baseBlock, nil
		}
	}
	return nil, 0, memErr("no device owns block address %d", blockAddr)
}

func blockAddrOf(byteAddr uint64) (block uint64, ok bool) {
	if byteAddr%BlockSize != 0 {
		return 0, false
	}
	return byteAddr / BlockSize, true
}

// ReadBlock reads exactly BlockSize bytes starting at the block-aligned
// byte address addr.
func (b *AddressBus) ReadBlock(addr uint64, out []byte) error {
	blk, ok := blockAddrOf(addr)
	if !ok {
		return memErr("address %#x is not block-aligned", addr)
	}
	e, local, err := b.find(blk)
	if err != nil {
		return err
	}
	if local >= e.numBlocks {
		return memErr("block %d crosses device %T upper bound", blk, e.dev)
	}
	return e.dev.ReadBlock(local, out)
}

// WriteBlock writes exactly BlockSize bytes starting at the block-aligned
// byte address addr.
func (b *AddressBus) WriteBlock(addr uint64, in []byte) error {
	blk, ok := blockAddrOf(addr)
	if !ok {
		return memErr("address %#x is not block-aligned", addr)
	}
	e, local, err := b.find(blk)
	if err != nil {
		return err
	}
	if local >= e.numBlocks {
		return memErr("block %d crosses device %T upper bound", blk, e.dev)
	}
	return e.dev.WriteBlock(local, in)
}

// LockBlock returns a zero-copy view of the block at byte address addr,
// along with the device to pass back to UnlockBlock.
func (b *AddressBus) LockBlock(addr uint64) ([]byte, Device, error) {
	blk, ok := blockAddrOf(addr)
	if !ok {
		return nil, nil, memErr("address %#x is not block-aligned", addr)
	}
	e, local, err := b.find(blk)
	if err != nil {
		return nil, nil, err
	}
	block, err := e.dev.LockBlock(local)
	if err != nil {
		return nil, nil, err
	}
	return block, e.dev, nil
}

// UnlockBlock releases a block acquired via LockBlock. The bus does not
// mediate concurrency itself; it is the device's own lock discipline (§5).
func (b *AddressBus) UnlockBlock(addr uint64, dev Device, block []byte) error {
	blk, ok := blockAddrOf(addr)
	if !ok {
		return memErr("address %#x is not block-aligned", addr)
	}
	_, local, err := b.find(blk)
	if err != nil {
		return err
	}
	return dev.UnlockBlock(local, block)
}
