package core_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/yanghyeonseo/ca-pa4/config"
	"github.com/yanghyeonseo/ca-pa4/emu"
	"github.com/yanghyeonseo/ca-pa4/insts"
	"github.com/yanghyeonseo/ca-pa4/loader"
	"github.com/yanghyeonseo/ca-pa4/timing/core"
	"github.com/yanghyeonseo/ca-pa4/timing/pipeline"
	"github.com/yanghyeonseo/ca-pa4/trace"
)

const base = emu.DefaultIMemBase

var _ = Describe("Core", func() {
	var (
		cfg *config.Config
		out *bytes.Buffer
	)

	build := func(words ...uint32) *core.Core {
		c, err := core.New(cfg, core.WithOutput(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Load(loader.FromWords(base, words))).To(Succeed())
		return c
	}

	// 3 instructions, the last an ebreak: 7 cycles.
	simple := []uint32{
		insts.ADDI(1, 0, 5), // addi x1, x0, 5
		insts.ADDI(3, 1, 1), // addi x3, x1, 1
		insts.EBREAK,
	}

	BeforeEach(func() {
		cfg = config.Default()
		out = &bytes.Buffer{}
	})

	It("should reject an invalid configuration", func() {
		cfg.BTBIndexBits = 99
		_, err := core.New(cfg)
		Expect(err).To(MatchError(config.ErrInvalidBTB))
	})

	It("should start with the stack pointer at the end of data memory", func() {
		c := build(simple...)
		Expect(c.RegFile().Reg(insts.SP)).To(Equal(uint32(0x80020000)))
		Expect(c.Entry()).To(Equal(base))
		Expect(c.Pipeline().PC()).To(Equal(base))
		Expect(c.ID().String()).NotTo(BeEmpty())
	})

	It("should run a program to ebreak", func() {
		c := build(simple...)

		res, err := c.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Reason).To(Equal(pipeline.ExitBreak))
		Expect(res.PC).To(Equal(base + 8))
		Expect(res.Cycles).To(Equal(uint64(7)))
		Expect(res.Instructions).To(Equal(uint64(3)))
		Expect(c.RegFile().Reg(3)).To(Equal(uint32(6)))
		Expect(c.Halted()).To(BeTrue())
	})

	It("should push and pop through the initial stack pointer", func() {
		c := build(
			insts.ADDI(1, 0, 42), // addi x1, x0, 42
			insts.PUSH(1),        // push x1
			insts.POP(5),         // pop x5
			insts.EBREAK,
		)

		_, err := c.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(c.RegFile().Reg(5)).To(Equal(uint32(42)))
		Expect(c.RegFile().Reg(insts.SP)).To(Equal(uint32(0x80020000)))

		w, ok := c.DMem().Word(0x8001fffc)
		Expect(ok).To(BeTrue())
		Expect(w).To(Equal(uint32(42)))
	})

	It("should stop at the cycle limit", func() {
		cfg.MaxCycles = 20
		c := build(insts.JAL(0, 0)) // j .

		res, err := c.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Reason).To(Equal(pipeline.ExitMaxCycles))
		Expect(res.Cycles).To(Equal(uint64(20)))
		Expect(core.ExitMessage(res)).To(ContainSubstring("Cycle limit reached at cycle 20"))
	})

	It("should honor a cancelled context", func() {
		c := build(simple...)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res, err := c.Run(ctx)
		Expect(err).To(MatchError(context.Canceled))
		Expect(res.Reason).To(Equal(pipeline.ExitRunning))
		Expect(c.Pipeline().Cycle()).To(BeZero())
	})

	It("should report faults", func() {
		c := build(insts.ADDI(1, 0, 1), 0x00000000)

		res, err := c.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Reason).To(Equal(pipeline.ExitFault))
		Expect(core.ExitMessage(res)).To(Equal("Exception: illegal instruction at 0x80000004"))
	})

	It("should rerun the same program after Reset", func() {
		c := build(simple...)
		first, _ := c.Run(context.Background())

		c.Reset()
		Expect(c.RegFile().Reg(3)).To(BeZero())

		second, err := c.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))
	})

	It("should refuse a program outside memory", func() {
		c, err := core.New(cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Load(loader.FromWords(0x1000, simple))).To(MatchError(loader.ErrSegmentRange))
	})

	Describe("Tracing", func() {
		It("should print nothing per cycle at the default level", func() {
			c := build(simple...)
			_, _ = c.Run(context.Background())
			Expect(out.String()).To(BeEmpty())
		})

		It("should print every stage at level 3", func() {
			cfg.Trace.Level = int(trace.LevelStages)
			c := build(simple...)
			_, _ = c.Run(context.Background())

			Expect(out.String()).To(ContainSubstring("[WB]"))
			Expect(out.String()).To(ContainSubstring("ebreak"))
		})

		It("should dump registers every cycle at level 5", func() {
			cfg.Trace.Level = int(trace.LevelRegsEach)
			c := build(simple...)
			_, _ = c.Run(context.Background())

			Expect(out.String()).To(ContainSubstring("(x1 ) = 0x00000005"))
		})

		It("should dump data memory every cycle at level 6", func() {
			cfg.Trace.Level = int(trace.LevelMemoryEach)
			c := build(insts.ADDI(1, 0, 7), insts.PUSH(1), insts.EBREAK)
			_, _ = c.Run(context.Background())

			Expect(out.String()).To(ContainSubstring("0x8001fffc: 0x00000007"))
		})

		It("should skip cycles before the start cycle", func() {
			cfg.Trace.Level = int(trace.LevelStages)
			cfg.Trace.StartCycle = 1000
			c := build(simple...)
			_, _ = c.Run(context.Background())

			Expect(out.String()).To(BeEmpty())
		})

		It("should write to a trace file", func() {
			path := filepath.Join(GinkgoT().TempDir(), "trace.log")
			cfg.Trace.Level = int(trace.LevelStages)
			cfg.Trace.File = path

			c := build(simple...)
			_, _ = c.Run(context.Background())
			Expect(c.Close()).To(Succeed())

			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("[IF]"))
			Expect(out.String()).To(BeEmpty())
		})

		It("should feed extra sinks", func() {
			rec := &trace.Recorder{}
			c, err := core.New(cfg, core.WithSink(rec))
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Load(loader.FromWords(base, simple))).To(Succeed())

			_, _ = c.Run(context.Background())
			Expect(rec.Events()).To(HaveLen(7 * 5))
		})

		It("should log the run with its id", func() {
			logs := &bytes.Buffer{}
			logger := hclog.New(&hclog.LoggerOptions{Name: "test", Output: logs, Level: hclog.Info})

			c, err := core.New(cfg, core.WithLogger(logger))
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Load(loader.FromWords(base, simple))).To(Succeed())
			_, _ = c.Run(context.Background())

			Expect(logs.String()).To(ContainSubstring("run finished"))
			Expect(logs.String()).To(ContainSubstring("run=" + c.ID().String()))
		})
	})

	Describe("Cache profiling", func() {
		It("should count fetch and data accesses", func() {
			cfg.Cache.Enabled = true
			c := build(insts.ADDI(1, 0, 7), insts.PUSH(1), insts.EBREAK)
			_, _ = c.Run(context.Background())

			s := c.Stats()
			Expect(s.CacheEnabled).To(BeTrue())
			Expect(s.ICache.Reads).To(BeNumerically(">", 0))
			Expect(s.DCache.Writes).To(Equal(uint64(1)))
			Expect(s.DCache.Misses).To(Equal(uint64(1)))
		})

		It("should leave the statistics empty when disabled", func() {
			c := build(simple...)
			_, _ = c.Run(context.Background())
			Expect(c.Stats().CacheEnabled).To(BeFalse())
		})
	})

	Describe("Report", func() {
		run := func(level trace.Level) string {
			cfg.Trace.Level = int(level)
			c := build(simple...)
			res, err := c.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			w := &bytes.Buffer{}
			c.Report(w, res)
			return w.String()
		}

		It("should print nothing at level 0", func() {
			Expect(run(trace.LevelNone)).To(BeEmpty())
		})

		It("should print only registers at level 1", func() {
			s := run(trace.LevelRegs)
			Expect(s).To(ContainSubstring("(x3 ) = 0x00000006"))
			Expect(s).NotTo(ContainSubstring("Execution"))
		})

		It("should print the summary at level 2", func() {
			s := run(trace.LevelSummary)
			Expect(s).To(ContainSubstring("Execution completed by ebreak at 0x80000008"))
			Expect(s).To(ContainSubstring("3 instructions executed in 7 cycles. CPI = 2.333"))
			Expect(s).To(ContainSubstring("Branches: 0"))
		})
	})

	Describe("DumpMemory", func() {
		It("should list only non-zero words", func() {
			m := emu.NewMemory(0x100, 64)
			Expect(m.LoadWords(0x104, []uint32{1})).To(Succeed())
			Expect(m.LoadWords(0x110, []uint32{2})).To(Succeed())

			Expect(core.DumpMemory(m)).To(Equal("0x00000104: 0x00000001    0x00000110: 0x00000002    \n"))
		})
	})
})
