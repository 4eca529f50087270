// Package cache profiles the locality of instruction and data accesses.
//
// A Probe sits between a pipeline stage and its memory. Every access goes
// straight through to the memory, so timing and results are unchanged, and
// the probe replays it against a set-associative tag directory to count the
// hits and misses a real cache of the configured geometry would see.
package cache

import (
	"errors"
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/yanghyeonseo/ca-pa4/emu"
)

// ErrInvalidConfig is returned for a cache geometry that cannot be built.
var ErrInvalidConfig = errors.New("invalid cache geometry")

// Config holds cache configuration parameters.
type Config struct {
	// Size in bytes
	Size int
	// Associativity (number of ways)
	Associativity int
	// BlockSize in bytes (cache line size)
	BlockSize int
}

// DefaultICacheConfig returns a small instruction cache: 4KB, 2-way, 32B lines.
func DefaultICacheConfig() Config {
	return Config{Size: 4 * 1024, Associativity: 2, BlockSize: 32}
}

// DefaultDCacheConfig returns a small data cache: 4KB, 4-way, 32B lines.
func DefaultDCacheConfig() Config {
	return Config{Size: 4 * 1024, Associativity: 4, BlockSize: 32}
}

// NumSets returns the number of sets.
func (c Config) NumSets() int {
	if c.Associativity <= 0 || c.BlockSize <= 0 {
		return 0
	}
	return c.Size / (c.Associativity * c.BlockSize)
}

// Validate checks that the geometry divides evenly into power-of-two sets
// and blocks.
func (c Config) Validate() error {
	if c.BlockSize < 4 || c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("%w: block size %d", ErrInvalidConfig, c.BlockSize)
	}
	if c.Associativity <= 0 {
		return fmt.Errorf("%w: associativity %d", ErrInvalidConfig, c.Associativity)
	}
	sets := c.NumSets()
	if sets <= 0 || sets&(sets-1) != 0 || sets*c.Associativity*c.BlockSize != c.Size {
		return fmt.Errorf("%w: %d bytes, %d-way, %dB blocks", ErrInvalidConfig,
			c.Size, c.Associativity, c.BlockSize)
	}
	return nil
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// Accesses returns the number of recorded accesses.
func (s Statistics) Accesses() uint64 {
	return s.Reads + s.Writes
}

// HitRate returns the fraction of accesses that hit.
func (s Statistics) HitRate() float64 {
	if s.Accesses() == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Accesses())
}

// Memory is the access contract shared with the pipeline.
type Memory interface {
	Access(enable bool, addr, data uint32, mode emu.AccessMode) (uint32, bool)
}

// Probe forwards accesses to a memory and records them in a tag directory.
type Probe struct {
	name    string
	config  Config
	backing Memory

	directory *akitacache.DirectoryImpl
	stats     Statistics
}

// NewProbe creates a probe named name in front of backing.
func NewProbe(name string, config Config, backing Memory) (*Probe, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Probe{
		name:    name,
		config:  config,
		backing: backing,
		directory: akitacache.NewDirectory(
			config.NumSets(),
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
	}, nil
}

// Name returns the probe's name.
func (p *Probe) Name() string {
	return p.name
}

// Config returns the cache configuration.
func (p *Probe) Config() Config {
	return p.config
}

// Stats returns cache statistics.
func (p *Probe) Stats() Statistics {
	return p.stats
}

// ResetStats clears cache statistics.
func (p *Probe) ResetStats() {
	p.stats = Statistics{}
}

// Access performs the access on the backing memory. Only enabled accesses
// that succeed are recorded; a faulting access never reaches a cache.
func (p *Probe) Access(enable bool, addr, data uint32, mode emu.AccessMode) (uint32, bool) {
	out, ok := p.backing.Access(enable, addr, data, mode)
	if !ok || !enable || mode == emu.AccessNone {
		return out, ok
	}

	p.record(addr, mode != emu.AccessRead)
	return out, ok
}

// record looks the block up, allocating on a miss for both reads and
// writes. Writes mark the block dirty.
func (p *Probe) record(addr uint32, isWrite bool) {
	if isWrite {
		p.stats.Writes++
	} else {
		p.stats.Reads++
	}

	blockAddr := p.blockAddr(addr)

	block := p.directory.Lookup(0, blockAddr)
	if block != nil && block.IsValid {
		p.stats.Hits++
		if isWrite {
			block.IsDirty = true
		}
		p.directory.Visit(block)
		return
	}

	p.stats.Misses++

	victim := p.directory.FindVictim(blockAddr)
	if victim.IsValid {
		p.stats.Evictions++
		if victim.IsDirty {
			p.stats.Writebacks++
		}
	}

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = isWrite
	p.directory.Visit(victim)
}

func (p *Probe) blockAddr(addr uint32) uint64 {
	return uint64(addr) &^ uint64(p.config.BlockSize-1)
}

// Contains reports whether the block holding addr is resident.
func (p *Probe) Contains(addr uint32) bool {
	block := p.directory.Lookup(0, p.blockAddr(addr))
	return block != nil && block.IsValid
}

// Invalidate marks a cache line as invalid.
func (p *Probe) Invalidate(addr uint32) {
	block := p.directory.Lookup(0, p.blockAddr(addr))
	if block != nil && block.IsValid {
		block.IsValid = false
		block.IsDirty = false
	}
}

// Flush counts a writeback for every dirty block and invalidates all blocks.
func (p *Probe) Flush() {
	for _, set := range p.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty {
				p.stats.Writebacks++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
}

// Reset invalidates all cache lines and clears the statistics.
func (p *Probe) Reset() {
	p.directory.Reset()
	p.stats = Statistics{}
}
