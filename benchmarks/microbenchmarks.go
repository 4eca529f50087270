package benchmarks

import (
	"github.com/yanghyeonseo/ca-pa4/emu"
	"github.com/yanghyeonseo/ca-pa4/insts"
)

// Registers used by the benchmark programs.
const (
	ra  = 1
	t0  = 5
	t1  = 6
	t2  = 7
	a0  = 10
	a1  = 11
	a2  = 12
	a3  = 13
	acc = t0
)

// dataBase is where benchmarks keep their input arrays.
const dataBase = emu.DefaultDMemBase

// GetMicrobenchmarks returns the standard set of microbenchmarks. Each one
// targets a single pipeline behavior.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		arithmeticIndependent(),
		dependencyChain(),
		loadUseChain(),
		branchLoop(),
		callReturn(),
		pushPop(),
		memoryCopy(),
	}
}

// ByName returns the microbenchmark called name.
func ByName(name string) (Benchmark, bool) {
	for _, b := range GetMicrobenchmarks() {
		if b.Name == name {
			return b, true
		}
	}
	return Benchmark{}, false
}

// 1. Arithmetic Independent - no hazards, CPI approaches 1
func arithmeticIndependent() Benchmark {
	var prog []uint32
	for i := 0; i < 4; i++ {
		for rd := uint8(t0); rd < t0+5; rd++ {
			prog = append(prog, insts.ADDI(rd, rd, 1))
		}
	}
	prog = append(prog, insts.EBREAK)

	return Benchmark{
		Name:        "arithmetic_independent",
		Description: "20 ADDIs round-robin over 5 registers - measures ALU throughput",
		Program:     prog,
		ResultReg:   acc,
		Expected:    4,
	}
}

// 2. Dependency Chain - every instruction needs its predecessor's result
func dependencyChain() Benchmark {
	prog := make([]uint32, 0, 21)
	for i := 0; i < 20; i++ {
		prog = append(prog, insts.ADDI(acc, acc, 1))
	}
	prog = append(prog, insts.EBREAK)

	return Benchmark{
		Name:        "dependency_chain",
		Description: "20 dependent ADDIs - measures EX-to-EX forwarding",
		Program:     prog,
		ResultReg:   acc,
		Expected:    20,
	}
}

// 3. Load-Use Chain - each load is consumed by the next instruction
func loadUseChain() Benchmark {
	prog := []uint32{insts.LUI(a0, dataBase)}
	for i := int32(0); i < 8; i++ {
		prog = append(prog,
			insts.LW(a1, a0, 4*i),   // lw a1, 4i(a0)
			insts.ADD(acc, acc, a1), // add t0, t0, a1
		)
	}
	prog = append(prog, insts.EBREAK)

	return Benchmark{
		Name:        "load_use_chain",
		Description: "8 loads each followed by a dependent add - one stall per load",
		Setup:       fillWords(dataBase, 1, 2, 3, 4, 5, 6, 7, 8),
		Program:     prog,
		ResultReg:   acc,
		Expected:    36,
	}
}

// 4. Branch Loop - a counted loop the BTB learns and unlearns
func branchLoop() Benchmark {
	return Benchmark{
		Name:        "branch_loop",
		Description: "10-iteration counted loop - BTB learns the backward branch",
		Program: []uint32{
			insts.ADDI(t1, 0, 10),   // li t1, 10
			insts.ADDI(acc, acc, 2), // loop: addi t0, t0, 2
			insts.ADDI(t1, t1, -1),  // addi t1, t1, -1
			insts.BNE(t1, 0, -8),    // bnez t1, loop
			insts.EBREAK,
		},
		ResultReg: acc,
		Expected:  20,
	}
}

// 5. Call/Return - JAL into a leaf and JALR back
func callReturn() Benchmark {
	return Benchmark{
		Name:        "call_return",
		Description: "3 calls to a leaf function - JAL and JALR redirects",
		Program: []uint32{
			insts.ADDI(acc, 0, 0),   // 0x00: li t0, 0
			insts.JAL(ra, 16),       // 0x04: call f
			insts.JAL(ra, 12),       // 0x08: call f
			insts.JAL(ra, 8),        // 0x0c: call f
			insts.EBREAK,            // 0x10
			insts.ADDI(acc, acc, 3), // 0x14: f: addi t0, t0, 3
			insts.JALR(0, ra, 0),    // 0x18: ret
		},
		ResultReg: acc,
		Expected:  9,
	}
}

// 6. Push/Pop - stack traffic through the SP side channel
func pushPop() Benchmark {
	var prog []uint32
	for v := int32(1); v <= 4; v++ {
		prog = append(prog,
			insts.ADDI(t1, 0, v), // li t1, v
			insts.PUSH(t1),       // push t1
		)
	}
	for i := 0; i < 4; i++ {
		prog = append(prog,
			insts.POP(t2),           // pop t2
			insts.ADD(acc, acc, t2), // add t0, t0, t2
		)
	}
	prog = append(prog, insts.EBREAK)

	return Benchmark{
		Name:        "push_pop",
		Description: "4 pushes then 4 pops - back-to-back SP forwarding",
		Program:     prog,
		ResultReg:   acc,
		Expected:    10,
	}
}

// 7. Memory Copy - load/store loop
func memoryCopy() Benchmark {
	return Benchmark{
		Name:        "memory_copy",
		Description: "copy 8 words in a loop - load-to-store stalls and a learned branch",
		Setup:       fillWords(dataBase, 3, 1, 4, 1, 5, 9, 2, 6),
		Program: []uint32{
			insts.LUI(a0, dataBase), // 0x00: a0 = src
			insts.ADDI(a1, a0, 64),  // 0x04: a1 = dst
			insts.ADDI(a2, 0, 8),    // 0x08: a2 = count
			insts.LW(a3, a0, 0),     // 0x0c: loop: lw a3, 0(a0)
			insts.SW(a3, a1, 0),     // 0x10: sw a3, 0(a1)
			insts.ADD(acc, acc, a3), // 0x14: add t0, t0, a3
			insts.ADDI(a0, a0, 4),   // 0x18
			insts.ADDI(a1, a1, 4),   // 0x1c
			insts.ADDI(a2, a2, -1),  // 0x20
			insts.BNE(a2, 0, -24),   // 0x24: bnez a2, loop
			insts.EBREAK,
		},
		ResultReg: acc,
		Expected:  31,
	}
}

func fillWords(addr uint32, words ...uint32) func(dmem *emu.Memory) error {
	return func(dmem *emu.Memory) error {
		return dmem.LoadWords(addr, words)
	}
}
