package main

// BlockSize is the unit of bus transfer. It must be at least 64 and a
// multiple of 64.
const BlockSize = 64

// Device is the capability interface every address-bus participant
// implements. The bus dispatches to a device purely through this interface
// (no void*-style casts, per the source's device-variant union).
type Device interface {
	// Init reports how many BlockSize-sized blocks this device occupies,
	// or an error if it refuses to be attached (e.g. a requested size of
	// zero).
	Init() (blocks uint64, err error)
	Destroy()
	ReadBlock(blockOffset uint64, out []byte) error
	WriteBlock(blockOffset uint64, in []byte) error
	// LockBlock returns a direct slice over the block's backing bytes for
	// zero-copy access; UnlockBlock releases it. Callers must pair every
	// lock with an unlock on the same offset.
	LockBlock(blockOffset uint64) ([]byte, error)
	UnlockBlock(blockOffset uint64, block []byte) error
}

// ramDevice is a simple in-memory device: the only device variant this
// core needs to run a program (spec.md's "custom" variant is left to
// external collaborators, per §4.1's capability-hook contract).
type ramDevice struct {
	bytes []byte
}

// NewRAMDevice allocates a RAM device sized to hold sizeBytes, rounded up
// to a whole number of blocks; a size of zero still gets one block.
func NewRAMDevice(sizeBytes uint64) *ramDevice {
	blocks := (sizeBytes + BlockSize - 1) / BlockSize
	if blocks == 0 {
		blocks = 1
	}
	return &ramDevice{bytes: make([]byte, blocks*BlockSize)}
}

func (d *ramDevice) Init() (uint64, error) {
	if len(d.bytes) == 0 {
		return 0, memErr("ram device has zero capacity")
	}
	return uint64(len(d.bytes)) / BlockSize, nil
}

func (d *ramDevice) Destroy() {}

func (d *ramDevice) blockRange(blockOffset uint64) (int, int, error) {
	start := int(blockOffset * BlockSize)
	end := start + BlockSize
	if start < 0 || end > len(d.bytes) {
		return 0, 0, memErr("ram device block %d out of range", blockOffset)
	}
	return start, end, nil
}

func (d *ramDevice) ReadBlock(blockOffset uint64, out []byte) error {
	start, end, err := d.blockRange(blockOffset)
	if err != nil {
		return err
	}
	copy(out, d.bytes[start:end])
	return nil
}

func (d *ramDevice) WriteBlock(blockOffset uint64, in []byte) error {
	start, end, err := d.blockRange(blockOffset)
	if err != nil {
		return err
	}
	copy(d.bytes[start:end], in)
	return nil
}

func (d *ramDevice) LockBlock(blockOffset uint64) ([]byte, error) {
	start, end, err := d.blockRange(blockOffset)
	if err != nil {
		return nil, err
	}
	return d.bytes[start:end], nil
}

func (d *ramDevice) UnlockBlock(blockOffset uint64, block []byte) error {
	return nil
}
