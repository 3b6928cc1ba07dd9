package main

import "os"

// LoadProgram reads the flat binary image at path and writes it into bus
// starting at byte address 0, following spec.md §6's external-interface
// contract (initial IP is 0). Grounded on the original C main.c, which
// reads a fixed-name image and copies it verbatim into the start of RAM.
func LoadProgram(bus *AddressBus, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, memErr("reading program image %q: %v", path, err)
	}
	for off := 0; off < len(data); off += BlockSize {
		end := off + BlockSize
		block := make([]byte, BlockSize)
		if end > len(data) {
			copy(block, data[off:])
		} else {
			copy(block, data[off:end])
		}
		if err := bus.WriteBlock(uint64(off), block); err != nil {
			return 0, err
		}
	}
	return len(data), nil
}
