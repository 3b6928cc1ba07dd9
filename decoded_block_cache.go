package main

// MaxBlock caps the number of instructions a decoded block may hold before
// it is forcibly ended even without a branch point.
const MaxBlock = 32

// blockEntry is the decoded-block cache's value: a growable, append-only
// vector of decoded instructions representing a straight-line run starting
// at StartIP.
type blockEntry struct {
	StartIP uint64
	Instrs  []Instruction
}

func (b *blockEntry) Full() bool {
	return len(b.Instrs) >= MaxBlock
}

func (b *blockEntry) Ended() bool {
	if len(b.Instrs) == 0 {
		return false
	}
	last := b.Instrs[len(b.Instrs)-1]
	return last.IsBranchPoint || b.Full()
}

// DecodedBlockCache is a hash table keyed by starting IP. Entries are never
// invalidated (self-modifying code is out of scope, DESIGN.md Open Question
// resolution #2): once built, a block's instruction list is append-only and
// is reused for the remainder of the run.
type DecodedBlockCache struct {
	buckets [][]*blockEntry
}

// NewDecodedBlockCache creates a cache with numBuckets buckets, which must
// be a power of two.
func NewDecodedBlockCache(numBuckets int) *DecodedBlockCache {
	if numBuckets < 1 {
		numBuckets = 1
	}
	return &DecodedBlockCache{buckets: make([][]*blockEntry, numBuckets)}
}

func (c *DecodedBlockCache) bucketOf(ip uint64) int {
	return int(ip) & (len(c.buckets) - 1)
}

// Get returns the block entry starting at ip, allocating an empty one if
// none exists yet.
func (c *DecodedBlockCache) Get(ip uint64) *blockEntry {
	idx := c.bucketOf(ip)
	for _, e := range c.buckets[idx] {
		if e.StartIP == ip {
			return e
		}
	}
	e := &blockEntry{StartIP: ip, Instrs: make([]Instruction, 0, 4)}
	c.buckets[idx] = append(c.buckets[idx], e)
	return e
}

// Fill runs decoder starting at block.StartIP until a branch point or the
// MAX_BLOCK cap is reached (spec.md §4.4 fill policy).
func Fill(block *blockEntry, decoder *Decoder) error {
	ip := block.StartIP
	for !block.Ended() {
		inst, err := decoder.Decode(ip)
		if err != nil {
			return err
		}
		block.Instrs = append(block.Instrs, inst)
		ip += uint64(inst.InstructionSize)
		if inst.IsBranchPoint {
			break
		}
	}
	return nil
}
