package main

// Register IDs. GPRs are 0-15; SP and IP are addressed through the same
// 8-bit ID space at two reserved values so operand encodings never need a
// separate "is this SP/IP" tag.
const (
	R0 = 0
	// ... R1-R14 are simply 1-14
	R15       = 15
	RegSP     = 16
	RegIP     = 17
	NumGPR    = 16
	InvalidID = 255
)

// RegisterFile holds the sixteen general-purpose registers plus SP and IP.
// Every GPR is a single 64-bit word; 8/16/32-bit "views" are masks over the
// same storage, not separate fields, per the semantic-view-only model.
type RegisterFile struct {
	gpr [NumGPR]uint64
	sp  uint64
	ip  uint64
}

func (r *RegisterFile) Get(id byte) uint64 {
	switch {
	case id < NumGPR:
		return r.gpr[id]
	case id == RegSP:
		return r.sp
	case id == RegIP:
		return r.ip
	default:
		return 0
	}
}

func (r *RegisterFile) Set(id byte, v uint64) {
	switch {
	case id < NumGPR:
		r.gpr[id] = v
	case id == RegSP:
		r.sp = v
	case id == RegIP:
		r.ip = v
	}
}

// View returns the value of register id masked to the width implied by a
// two-bit size code (0=1 byte, 1=2 bytes, 2=4 bytes, 3=8 bytes).
func (r *RegisterFile) View(id byte, sizeCode byte) uint64 {
	return maskToSize(r.Get(id), sizeCode)
}

// SetView writes v into register id, preserving the untouched high bits of
// the underlying 64-bit storage above the size code's width.
func (r *RegisterFile) SetView(id byte, sizeCode byte, v uint64) {
	width := maskToSize(v, sizeCode)
	full := r.Get(id)
	highMask := ^sizeMask(sizeCode)
	r.Set(id, (full&highMask)|width)
}

func sizeMask(sizeCode byte) uint64 {
	switch sizeCode & 0x3 {
	case 0:
		return 0xFF
	case 1:
		return 0xFFFF
	case 2:
		return 0xFFFFFFFF
	default:
		return ^uint64(0)
	}
}

func maskToSize(v uint64, sizeCode byte) uint64 {
	return v & sizeMask(sizeCode)
}

func sizeBytes(sizeCode byte) int {
	return 1 << (sizeCode & 0x3)
}

func (r *RegisterFile) Reset() {
	for i := range r.gpr {
		r.gpr[i] = 0
	}
	r.sp = 0
	r.ip = 0
}
