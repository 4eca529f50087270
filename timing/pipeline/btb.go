package pipeline

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// DefaultBTBIndexBits is the default number of BTB index bits.
const DefaultBTBIndexBits = 4

// instBytes is the instruction size; it is also the directory block size so
// the directory's set index is exactly pc[k+1:2].
const instBytes = 4

// BTBEntry is a snapshot of one valid BTB slot.
type BTBEntry struct {
	Index  int
	Tag    uint32
	PC     uint32
	Target uint32
}

// BTB is a direct-mapped branch target buffer with 2^k entries. The index
// is pc[k+1:2] and the tag is pc[31:k+2].
//
// Valid and tag bits live in a one-way Akita cache directory whose block
// size is one instruction. The directory stores the word-aligned PC as the
// block tag, which carries the same information as the upper PC bits since
// the index bits are implied by the set. Predicted targets are kept in a
// side array indexed by set, like a cache's data store.
type BTB struct {
	indexBits int
	directory *akitacache.DirectoryImpl
	targets   []uint32
}

// NewBTB creates an empty BTB with 2^indexBits entries.
func NewBTB(indexBits int) *BTB {
	numSets := 1 << indexBits

	return &BTB{
		indexBits: indexBits,
		directory: akitacache.NewDirectory(
			numSets,
			1,
			instBytes,
			akitacache.NewLRUVictimFinder(),
		),
		targets: make([]uint32, numSets),
	}
}

// IndexBits returns k.
func (b *BTB) IndexBits() int {
	return b.indexBits
}

// Size returns the number of entries.
func (b *BTB) Size() int {
	return len(b.targets)
}

// Index returns the slot a PC maps to.
func (b *BTB) Index(pc uint32) int {
	return int((pc >> 2) & uint32(len(b.targets)-1))
}

// Tag returns the tag bits of a PC.
func (b *BTB) Tag(pc uint32) uint32 {
	return pc >> (b.indexBits + 2)
}

// Lookup returns the predicted target for pc if its slot is valid and the
// tags match.
func (b *BTB) Lookup(pc uint32) (uint32, bool) {
	block := b.directory.Lookup(0, uint64(pc&^(instBytes-1)))
	if block == nil || !block.IsValid {
		return 0, false
	}
	return b.targets[block.SetID], true
}

// Add installs a prediction for pc, overwriting whatever occupied its slot.
func (b *BTB) Add(pc, target uint32) {
	addr := uint64(pc &^ (instBytes - 1))

	victim := b.directory.FindVictim(addr)
	victim.Tag = addr
	victim.IsValid = true
	victim.IsDirty = false
	b.targets[victim.SetID] = target

	b.directory.Visit(victim)
}

// Remove invalidates the slot pc maps to, whether or not the tags match.
func (b *BTB) Remove(pc uint32) {
	set := b.directory.GetSets()[b.Index(pc)]
	for _, block := range set.Blocks {
		block.IsValid = false
	}
}

// Entries lists every valid slot in index order.
func (b *BTB) Entries() []BTBEntry {
	var entries []BTBEntry
	for _, set := range b.directory.GetSets() {
		for _, block := range set.Blocks {
			if !block.IsValid {
				continue
			}
			pc := uint32(block.Tag)
			entries = append(entries, BTBEntry{
				Index:  block.SetID,
				Tag:    b.Tag(pc),
				PC:     pc,
				Target: b.targets[block.SetID],
			})
		}
	}
	return entries
}

// Reset invalidates every slot.
func (b *BTB) Reset() {
	b.directory.Reset()
	for i := range b.targets {
		b.targets[i] = 0
	}
}
