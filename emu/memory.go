package emu

import (
	"encoding/binary"
	"fmt"
)

// AccessMode selects what a memory access does.
type AccessMode uint8

// Access modes.
const (
	AccessNone AccessMode = iota
	AccessRead
	AccessWriteByte
	AccessWriteWord
)

func (m AccessMode) String() string {
	switch m {
	case AccessRead:
		return "read"
	case AccessWriteByte:
		return "write-byte"
	case AccessWriteWord:
		return "write-word"
	}
	return "none"
}

// Default memory layout.
const (
	DefaultIMemBase uint32 = 0x80000000
	DefaultIMemSize uint32 = 64 * 1024
	DefaultDMemBase uint32 = 0x80010000
	DefaultDMemSize uint32 = 64 * 1024
)

// Memory is a little-endian byte-addressable region [base, base+size).
type Memory struct {
	base uint32
	data []byte
}

// NewMemory creates a zero-filled memory region.
func NewMemory(base, size uint32) *Memory {
	return &Memory{
		base: base,
		data: make([]byte, size),
	}
}

// Base returns the first address of the region.
func (m *Memory) Base() uint32 {
	return m.base
}

// Size returns the size of the region in bytes.
func (m *Memory) Size() uint32 {
	return uint32(len(m.data))
}

// Contains reports whether n bytes starting at addr lie inside the region.
func (m *Memory) Contains(addr, n uint32) bool {
	if addr < m.base {
		return false
	}
	off := uint64(addr - m.base)
	return off+uint64(n) <= uint64(len(m.data))
}

// Access performs one memory operation. A disabled access always succeeds
// and returns zero. Word accesses must be 4-byte aligned. An access outside
// the region or a misaligned word access fails with ok=false and leaves
// memory untouched.
func (m *Memory) Access(enable bool, addr, data uint32, mode AccessMode) (uint32, bool) {
	if !enable || mode == AccessNone {
		return 0, true
	}

	switch mode {
	case AccessRead:
		if addr%4 != 0 || !m.Contains(addr, 4) {
			return 0, false
		}
		return binary.LittleEndian.Uint32(m.data[addr-m.base:]), true
	case AccessWriteWord:
		if addr%4 != 0 || !m.Contains(addr, 4) {
			return 0, false
		}
		binary.LittleEndian.PutUint32(m.data[addr-m.base:], data)
		return 0, true
	case AccessWriteByte:
		if !m.Contains(addr, 1) {
			return 0, false
		}
		m.data[addr-m.base] = byte(data)
		return 0, true
	}

	return 0, false
}

// Word reads an aligned word without going through the access contract.
func (m *Memory) Word(addr uint32) (uint32, bool) {
	return m.Access(true, addr, 0, AccessRead)
}

// LoadWords copies words into memory starting at addr.
func (m *Memory) LoadWords(addr uint32, words []uint32) error {
	if addr%4 != 0 {
		return fmt.Errorf("unaligned load address 0x%08x", addr)
	}
	if !m.Contains(addr, uint32(len(words))*4) {
		return fmt.Errorf("%d words at 0x%08x do not fit in [0x%08x, 0x%08x)",
			len(words), addr, m.base, uint64(m.base)+uint64(len(m.data)))
	}
	for i, w := range words {
		binary.LittleEndian.PutUint32(m.data[addr-m.base+uint32(i)*4:], w)
	}
	return nil
}

// LoadBytes copies raw bytes into memory starting at addr.
func (m *Memory) LoadBytes(addr uint32, b []byte) error {
	if !m.Contains(addr, uint32(len(b))) {
		return fmt.Errorf("%d bytes at 0x%08x do not fit in [0x%08x, 0x%08x)",
			len(b), addr, m.base, uint64(m.base)+uint64(len(m.data)))
	}
	copy(m.data[addr-m.base:], b)
	return nil
}

// Reset zero-fills the region.
func (m *Memory) Reset() {
	for i := range m.data {
		m.data[i] = 0
	}
}
