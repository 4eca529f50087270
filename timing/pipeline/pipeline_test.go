package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/yanghyeonseo/ca-pa4/emu"
	"github.com/yanghyeonseo/ca-pa4/insts"
	"github.com/yanghyeonseo/ca-pa4/timing/pipeline"
	"github.com/yanghyeonseo/ca-pa4/trace"
)

const (
	base  = emu.DefaultIMemBase
	stack = emu.DefaultDMemBase + 0x100
)

var _ = Describe("Pipeline", func() {
	var (
		regFile *emu.RegFile
		imem    *emu.Memory
		dmem    *emu.Memory
		pipe    *pipeline.Pipeline
	)

	load := func(words ...uint32) {
		Expect(imem.LoadWords(base, words)).To(Succeed())
		pipe.SetPC(base)
	}

	BeforeEach(func() {
		regFile = &emu.RegFile{}
		imem = emu.NewMemory(emu.DefaultIMemBase, emu.DefaultIMemSize)
		dmem = emu.NewMemory(emu.DefaultDMemBase, emu.DefaultDMemSize)
		pipe = pipeline.NewPipeline(regFile, imem, dmem)
	})

	Describe("NewPipeline", func() {
		It("should start with bubbles in every stage", func() {
			regs := pipe.Registers()
			Expect(regs.ID.Inst).To(Equal(insts.Bubble))
			Expect(regs.EX.Inst).To(Equal(insts.Bubble))
			Expect(regs.MM.Inst).To(Equal(insts.Bubble))
			Expect(regs.WB.Inst).To(Equal(insts.Bubble))
			Expect(pipe.BTB().Size()).To(Equal(1 << pipeline.DefaultBTBIndexBits))
		})

		It("should honor the BTB size option", func() {
			pipe = pipeline.NewPipeline(regFile, imem, dmem, pipeline.WithBTBIndexBits(6))
			Expect(pipe.BTB().Size()).To(Equal(64))
		})
	})

	Describe("SetPC / PC", func() {
		It("should set and get PC", func() {
			pipe.SetPC(0x80001000)
			Expect(pipe.PC()).To(Equal(uint32(0x80001000)))
		})
	})

	Context("forwarding", func() {
		It("should forward a dependent chain without stalling", func() {
			load(
				insts.ADDI(1, 0, 5), // addi x1, x0, 5
				insts.ADDI(2, 1, 5), // addi x2, x1, 5
				insts.ADD(3, 1, 2),  // add x3, x1, x2
				insts.EBREAK,
			)

			result := pipe.Run(100)

			Expect(result.Reason).To(Equal(pipeline.ExitBreak))
			Expect(result.PC).To(Equal(base + 12))
			Expect(regFile.Reg(1)).To(Equal(uint32(5)))
			Expect(regFile.Reg(2)).To(Equal(uint32(10)))
			Expect(regFile.Reg(3)).To(Equal(uint32(15)))

			stats := pipe.Stats()
			Expect(stats.Stalls).To(BeZero())
			Expect(stats.Flushes).To(BeZero())
			Expect(stats.Instructions).To(Equal(uint64(4)))
			Expect(stats.Cycles).To(Equal(uint64(8)))
			Expect(stats.ForwardsEX).To(Equal(uint64(2)))
			Expect(stats.ForwardsMM).To(Equal(uint64(1)))
		})

		It("should forward from writeback", func() {
			load(
				insts.ADDI(1, 0, 7),
				insts.NOP,
				insts.NOP,
				insts.ADD(2, 1, 1),
				insts.EBREAK,
			)

			pipe.Run(100)

			Expect(regFile.Reg(2)).To(Equal(uint32(14)))
			Expect(pipe.Stats().ForwardsWB).To(Equal(uint64(2)))
		})

		It("should link jumps through forwarding", func() {
			load(
				insts.JAL(1, 8),     // 0x00
				insts.ADDI(2, 0, 1), // 0x04 skipped
				insts.ADDI(3, 1, 0), // 0x08 x3 = x1
				insts.EBREAK,
			)

			pipe.Run(100)

			Expect(regFile.Reg(1)).To(Equal(base + 4))
			Expect(regFile.Reg(2)).To(BeZero())
			Expect(regFile.Reg(3)).To(Equal(base + 4))
		})
	})

	Context("load-use hazards", func() {
		It("should stall exactly one cycle and read the loaded value", func() {
			regFile.Write(insts.SP, stack)
			load(
				insts.ADDI(5, 0, 42),
				insts.SW(5, insts.SP, 0),
				insts.LW(6, insts.SP, 0),
				insts.ADD(7, 6, 6),
				insts.EBREAK,
			)

			result := pipe.Run(100)

			Expect(result.Reason).To(Equal(pipeline.ExitBreak))
			Expect(regFile.Reg(6)).To(Equal(uint32(42)))
			Expect(regFile.Reg(7)).To(Equal(uint32(84)))
			Expect(pipe.Stats().Stalls).To(Equal(uint64(1)))
			Expect(pipe.Stats().Cycles).To(Equal(uint64(10)))
		})

		It("should not stall when the load result is used two instructions later", func() {
			regFile.Write(insts.SP, stack)
			load(
				insts.ADDI(5, 0, 9),
				insts.SW(5, insts.SP, 0),
				insts.LW(6, insts.SP, 0),
				insts.NOP,
				insts.ADD(7, 6, 6),
				insts.EBREAK,
			)

			pipe.Run(100)

			Expect(regFile.Reg(7)).To(Equal(uint32(18)))
			Expect(pipe.Stats().Stalls).To(BeZero())
		})
	})

	Context("branch prediction", func() {
		It("should flush the wrong path of a cold taken branch", func() {
			load(
				insts.ADDI(1, 0, 1), // 0x00
				insts.BEQ(0, 0, 12), // 0x04 -> 0x10
				insts.ADDI(2, 0, 2), // 0x08 wrong path
				insts.ADDI(3, 0, 3), // 0x0c wrong path
				insts.ADDI(4, 0, 4), // 0x10
				insts.EBREAK,        // 0x14
			)

			result := pipe.Run(100)

			Expect(result.Reason).To(Equal(pipeline.ExitBreak))
			Expect(regFile.Reg(1)).To(Equal(uint32(1)))
			Expect(regFile.Reg(2)).To(BeZero())
			Expect(regFile.Reg(3)).To(BeZero())
			Expect(regFile.Reg(4)).To(Equal(uint32(4)))

			stats := pipe.Stats()
			Expect(stats.Flushes).To(Equal(uint64(1)))
			Expect(stats.BranchMispredictions).To(Equal(uint64(1)))
			Expect(stats.BTBAdds).To(Equal(uint64(1)))
			Expect(pipe.BTB().Entries()).To(Equal([]pipeline.BTBEntry{{
				Index:  1,
				Tag:    pipe.BTB().Tag(base + 4),
				PC:     base + 4,
				Target: base + 0x10,
			}}))
		})

		It("should drop wrong-path stores and pushes", func() {
			regFile.Write(insts.SP, stack)
			load(
				insts.ADDI(5, 0, 99),     // 0x00
				insts.BEQ(0, 0, 12),      // 0x04 -> 0x10
				insts.SW(5, insts.SP, 0), // 0x08 wrong path
				insts.PUSH(5),            // 0x0c wrong path
				insts.EBREAK,             // 0x10
			)

			result := pipe.Run(100)

			Expect(result.Reason).To(Equal(pipeline.ExitBreak))
			Expect(regFile.Reg(5)).To(Equal(uint32(99)))
			Expect(regFile.Reg(insts.SP)).To(Equal(stack))
			for _, addr := range []uint32{stack, stack - 4} {
				word, ok := dmem.Word(addr)
				Expect(ok).To(BeTrue())
				Expect(word).To(BeZero())
			}
			Expect(pipe.Stats().Flushes).To(Equal(uint64(1)))
		})

		It("should ignore a jump in memory's shadow", func() {
			load(
				insts.EBREAK,    // 0x00
				insts.JAL(0, 8), // 0x04 in EX while ebreak is in MM
			)

			result := pipe.Run(100)

			Expect(result.Reason).To(Equal(pipeline.ExitBreak))
			Expect(result.PC).To(Equal(base))

			stats := pipe.Stats()
			Expect(stats.Branches).To(BeZero())
			Expect(stats.Flushes).To(BeZero())
			Expect(stats.BTBAdds).To(BeZero())
			Expect(pipe.BTB().Entries()).To(BeEmpty())
		})

		It("should ignore a jump in writeback's shadow", func() {
			load(
				insts.EBREAK,        // 0x00
				insts.ADDI(1, 0, 1), // 0x04
				insts.JAL(0, 8),     // 0x08 in EX while ebreak is in WB
			)

			pipe.Run(100)

			Expect(regFile.Reg(1)).To(BeZero())

			stats := pipe.Stats()
			Expect(stats.Cycles).To(Equal(uint64(5)))
			Expect(stats.Branches).To(BeZero())
			Expect(stats.Flushes).To(BeZero())
			Expect(stats.BranchMispredictions).To(BeZero())
			Expect(pipe.BTB().Entries()).To(BeEmpty())
		})

		It("should handle back-to-back taken branches", func() {
			load(
				insts.BEQ(0, 0, 8),  // 0x00 -> 0x08
				insts.ADDI(1, 0, 1), // 0x04 wrong path
				insts.BEQ(0, 0, 8),  // 0x08 -> 0x10
				insts.ADDI(2, 0, 2), // 0x0c wrong path
				insts.ADDI(3, 0, 3), // 0x10
				insts.EBREAK,
			)

			pipe.Run(100)

			Expect(regFile.Reg(1)).To(BeZero())
			Expect(regFile.Reg(2)).To(BeZero())
			Expect(regFile.Reg(3)).To(Equal(uint32(3)))
			Expect(pipe.Stats().Flushes).To(Equal(uint64(2)))

			entries := pipe.BTB().Entries()
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].PC).To(Equal(base))
			Expect(entries[0].Target).To(Equal(base + 8))
			Expect(entries[1].PC).To(Equal(base + 8))
			Expect(entries[1].Target).To(Equal(base + 0x10))
		})

		It("should learn a loop and unlearn it on exit", func() {
			load(
				insts.ADDI(1, 0, 3),  // 0x00
				insts.ADDI(1, 1, -1), // 0x04 loop:
				insts.BNE(1, 0, -4),  // 0x08
				insts.ADDI(2, 0, 1),  // 0x0c
				insts.EBREAK,         // 0x10
			)

			result := pipe.Run(200)

			Expect(result.Reason).To(Equal(pipeline.ExitBreak))
			Expect(regFile.Reg(1)).To(BeZero())
			Expect(regFile.Reg(2)).To(Equal(uint32(1)))

			stats := pipe.Stats()
			Expect(stats.Branches).To(Equal(uint64(3)))
			Expect(stats.BranchCorrect).To(Equal(uint64(1)))
			Expect(stats.Flushes).To(Equal(uint64(2)))
			Expect(stats.BTBAdds).To(Equal(uint64(1)))
			Expect(stats.BTBRemoves).To(Equal(uint64(1)))
			Expect(stats.BTBHits).To(Equal(uint64(2)))
			Expect(pipe.BTB().Entries()).To(BeEmpty())
		})

		It("should redirect indirect jumps without training the BTB", func() {
			load(
				insts.AUIPC(5, 0),      // 0x00 x5 = pc
				insts.JALR(1, 5, 0x10), // 0x04 -> 0x10
				insts.ADDI(2, 0, 2),    // 0x08 wrong path
				insts.ADDI(3, 0, 3),    // 0x0c wrong path
				insts.ADDI(4, 0, 4),    // 0x10
				insts.EBREAK,
			)

			pipe.Run(100)

			Expect(regFile.Reg(1)).To(Equal(base + 8))
			Expect(regFile.Reg(2)).To(BeZero())
			Expect(regFile.Reg(3)).To(BeZero())
			Expect(regFile.Reg(4)).To(Equal(uint32(4)))
			Expect(pipe.BTB().Entries()).To(BeEmpty())
		})
	})

	Context("push and pop", func() {
		It("should update only SP on push", func() {
			regFile.Write(insts.SP, stack)
			load(
				insts.ADDI(5, 0, 77),
				insts.PUSH(5),
				insts.EBREAK,
			)

			pipe.Run(100)

			expected := emu.RegFile{}
			expected.Write(insts.SP, stack-4)
			expected.Write(5, 77)
			Expect(regFile.X).To(Equal(expected.X))

			word, ok := dmem.Word(stack - 4)
			Expect(ok).To(BeTrue())
			Expect(word).To(Equal(uint32(77)))
		})

		It("should write rd and SP in the same cycle on pop", func() {
			regFile.Write(insts.SP, stack)
			load(
				insts.ADDI(5, 0, 77),
				insts.PUSH(5),
				insts.POP(6),
				insts.EBREAK,
			)

			var spBefore uint32
			for pipe.Tick() {
				if regFile.Reg(6) == 77 {
					break
				}
				spBefore = regFile.Reg(insts.SP)
			}

			Expect(regFile.Reg(6)).To(Equal(uint32(77)))
			Expect(regFile.Reg(insts.SP)).To(Equal(stack))
			Expect(spBefore).To(Equal(stack - 4))
		})

		It("should forward the stack pointer across consecutive pushes", func() {
			regFile.Write(insts.SP, stack)
			load(
				insts.ADDI(5, 0, 1),
				insts.ADDI(6, 0, 2),
				insts.PUSH(5),
				insts.PUSH(6),
				insts.POP(7),
				insts.POP(8),
				insts.EBREAK,
			)

			pipe.Run(100)

			Expect(regFile.Reg(7)).To(Equal(uint32(2)))
			Expect(regFile.Reg(8)).To(Equal(uint32(1)))
			Expect(regFile.Reg(insts.SP)).To(Equal(stack))
		})
	})

	Context("exceptions", func() {
		It("should stop on a data memory fault without writing back", func() {
			load(
				insts.ADDI(2, 0, 1),
				insts.LW(1, 0, 0), // address 0 is not mapped
				insts.ADDI(3, 0, 3),
				insts.EBREAK,
			)

			result := pipe.Run(100)

			Expect(result.Reason).To(Equal(pipeline.ExitFault))
			Expect(result.Exception).To(Equal(pipeline.ExcDMemError))
			Expect(result.PC).To(Equal(base + 4))
			Expect(regFile.Reg(1)).To(BeZero())
			Expect(regFile.Reg(2)).To(Equal(uint32(1)))
			Expect(regFile.Reg(3)).To(BeZero())
			Expect(pipe.Halted()).To(BeTrue())
			Expect(pipe.Tick()).To(BeFalse())
		})

		It("should stop on an illegal instruction", func() {
			load(
				insts.ADDI(1, 0, 1),
				0xFFFFFFFF,
				insts.ADDI(2, 0, 2),
				insts.EBREAK,
			)

			result := pipe.Run(100)

			Expect(result.Reason).To(Equal(pipeline.ExitFault))
			Expect(result.Exception).To(Equal(pipeline.ExcIllegalInst))
			Expect(result.PC).To(Equal(base + 4))
			Expect(regFile.Reg(1)).To(Equal(uint32(1)))
			Expect(regFile.Reg(2)).To(BeZero())
		})

		It("should stop on an instruction fetch fault", func() {
			pipe.SetPC(0x00001000)

			result := pipe.Run(100)

			Expect(result.Reason).To(Equal(pipeline.ExitFault))
			Expect(result.Exception).To(Equal(pipeline.ExcIMemError))
			Expect(result.PC).To(Equal(uint32(0x00001000)))
			Expect(result.Instructions).To(BeZero())
		})

		It("should report the cycle limit", func() {
			load(
				insts.JAL(0, 0), // spin
			)

			result := pipe.Run(50)

			Expect(result.Reason).To(Equal(pipeline.ExitMaxCycles))
			Expect(result.Cycles).To(Equal(uint64(50)))
			Expect(pipe.Halted()).To(BeFalse())
		})
	})

	Describe("Reset", func() {
		It("should return to the power-on state", func() {
			load(insts.BEQ(0, 0, 8), insts.NOP, insts.EBREAK)
			pipe.Run(100)
			Expect(pipe.Halted()).To(BeTrue())

			pipe.Reset(base)

			Expect(pipe.Halted()).To(BeFalse())
			Expect(pipe.Cycle()).To(BeZero())
			Expect(pipe.Stats()).To(Equal(pipeline.Statistics{}))
			Expect(pipe.BTB().Entries()).To(BeEmpty())
			Expect(pipe.PC()).To(Equal(base))
		})
	})

	Describe("tracing", func() {
		It("should emit one event per stage per cycle", func() {
			rec := &trace.Recorder{}
			pipe = pipeline.NewPipeline(regFile, imem, dmem, pipeline.WithTracer(rec))
			load(insts.ADDI(1, 0, 5), insts.EBREAK)

			result := pipe.Run(100)

			Expect(rec.Events()).To(HaveLen(int(result.Cycles) * 5))

			wb := rec.Filter(trace.StageWB)
			Expect(wb[4].PC).To(Equal(base))
			Expect(wb[4].Info).To(Equal("R[1] <- 0x00000005"))

			ex := rec.Filter(trace.StageEX)
			Expect(ex[2].Info).To(Equal("0x00000005 <- 0x00000000 + 0x00000005"))

			id := rec.Filter(trace.StageID)
			Expect(id[0].Info).To(Equal("-"))
		})
	})

	Describe("cross-check", func() {
		It("should match the reference emulator", func() {
			program := []uint32{
				insts.ADDI(10, 0, 0),  // 0x00 sum = 0
				insts.ADDI(11, 0, 10), // 0x04 i = 10
				insts.ADD(10, 10, 11), // 0x08 loop: sum += i
				insts.PUSH(10),        // 0x0c
				insts.POP(12),         // 0x10
				insts.SW(12, 2, -16),  // 0x14
				insts.LW(13, 2, -16),  // 0x18
				insts.ADD(14, 13, 12), // 0x1c
				insts.ADDI(11, 11, -1),
				insts.BNE(11, 0, -28), // 0x24 -> 0x08
				insts.SLLI(15, 10, 3),
				insts.SRAI(16, 15, 1),
				insts.SLT(17, 16, 15),
				insts.LUI(18, 0x12345000),
				insts.ORI(18, 18, 0x678),
				insts.EBREAK,
			}

			ref := &emu.RegFile{}
			ref.Write(insts.SP, stack)
			refIMem := emu.NewMemory(emu.DefaultIMemBase, emu.DefaultIMemSize)
			refDMem := emu.NewMemory(emu.DefaultDMemBase, emu.DefaultDMemSize)
			Expect(refIMem.LoadWords(base, program)).To(Succeed())
			e := emu.NewEmulator(ref, refIMem, refDMem)
			e.SetPC(base)
			Expect(e.Run().Err).NotTo(HaveOccurred())

			regFile.Write(insts.SP, stack)
			load(program...)
			result := pipe.Run(1000)

			Expect(result.Reason).To(Equal(pipeline.ExitBreak))
			Expect(regFile.X).To(Equal(ref.X))
			Expect(result.Instructions).To(Equal(e.InstructionCount()))
			Expect(regFile.Reg(10)).To(Equal(uint32(55)))
		})
	})
})
