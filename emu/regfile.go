// Package emu provides the architectural state of an RV32 machine (register
// file, memories, functional units) and a non-pipelined reference emulator.
package emu

import (
	"fmt"
	"strings"
)

// NumRegs is the number of integer registers.
const NumRegs = 32

// RegFile represents the RV32 integer register file.
// X[0] is hardwired to zero: writes to it are discarded.
type RegFile struct {
	X [NumRegs]uint32
}

// Reg reads a single register. Out-of-range numbers read as zero.
func (r *RegFile) Reg(reg uint8) uint32 {
	if reg == 0 || reg >= NumRegs {
		return 0
	}
	return r.X[reg]
}

// Read reads two registers at once, the way the decode stage's two read
// ports do.
func (r *RegFile) Read(r1, r2 uint8) (uint32, uint32) {
	return r.Reg(r1), r.Reg(r2)
}

// Write writes one register.
func (r *RegFile) Write(rd uint8, value uint32) {
	if rd == 0 || rd >= NumRegs {
		return
	}
	r.X[rd] = value
}

// WritePair commits two registers in one step. The stack pointer is written
// first so that rd wins when both name the same register.
func (r *RegFile) WritePair(rd uint8, value uint32, sp uint8, spValue uint32) {
	r.Write(sp, spValue)
	r.Write(rd, value)
}

// Reset clears every register.
func (r *RegFile) Reset() {
	r.X = [NumRegs]uint32{}
}

// abiNames are the standard RISC-V ABI register names.
var abiNames = [NumRegs]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// RegName returns the ABI name of a register.
func RegName(reg uint8) string {
	if reg >= NumRegs {
		return fmt.Sprintf("x%d", reg)
	}
	return abiNames[reg]
}

// Dump renders the register file four registers per line.
func (r *RegFile) Dump() string {
	var sb strings.Builder
	for i := 0; i < NumRegs; i++ {
		fmt.Fprintf(&sb, "%-4s (x%-2d) = 0x%08x", abiNames[i], i, r.X[i])
		if i%4 == 3 {
			sb.WriteByte('\n')
		} else {
			sb.WriteString("    ")
		}
	}
	return sb.String()
}
