package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/yanghyeonseo/ca-pa4/config"
)

var _ = Describe("Config", func() {
	Describe("Default", func() {
		It("should be valid", func() {
			Expect(config.Default().Validate()).To(Succeed())
		})

		It("should place the stack at the end of dmem", func() {
			cfg := config.Default()
			Expect(cfg.InitialSP()).To(Equal(uint32(0x80020000)))

			cfg.Memory.StackPointer = 0x80018000
			Expect(cfg.InitialSP()).To(Equal(uint32(0x80018000)))
		})
	})

	Describe("Validate", func() {
		var cfg *config.Config

		BeforeEach(func() {
			cfg = config.Default()
		})

		It("should reject an oversized BTB", func() {
			cfg.BTBIndexBits = config.MaxBTBIndexBits + 1
			Expect(cfg.Validate()).To(MatchError(config.ErrInvalidBTB))
		})

		It("should accept a single-entry BTB", func() {
			cfg.BTBIndexBits = 0
			Expect(cfg.Validate()).To(Succeed())
		})

		It("should reject overlapping memories", func() {
			cfg.Memory.DMemBase = cfg.Memory.IMemBase + 0x100
			Expect(cfg.Validate()).To(MatchError(config.ErrInvalidMemory))
		})

		It("should reject unaligned memory sizes", func() {
			cfg.Memory.DMemSize = 6
			Expect(cfg.Validate()).To(MatchError(config.ErrInvalidMemory))
		})

		It("should reject regions past 4 GiB", func() {
			cfg.Memory.DMemBase = 0xFFFF0000
			cfg.Memory.DMemSize = 0x20000
			Expect(cfg.Validate()).To(MatchError(config.ErrInvalidMemory))
		})

		It("should reject unknown trace levels", func() {
			cfg.Trace.Level = 7
			Expect(cfg.Validate()).To(MatchError(config.ErrInvalidTrace))
		})

		It("should check cache geometry only when enabled", func() {
			cfg.Cache.DCache.BlockSize = 24
			Expect(cfg.Validate()).To(Succeed())

			cfg.Cache.Enabled = true
			Expect(cfg.Validate()).To(MatchError(config.ErrInvalidCache))
		})
	})

	Describe("Clone", func() {
		It("should not share state", func() {
			cfg := config.Default()
			clone := cfg.Clone()
			clone.Trace.Level = 6
			clone.Memory.IMemBase = 0

			Expect(cfg.Trace.Level).To(Equal(2))
			Expect(cfg.Memory.IMemBase).To(Equal(uint32(0x80000000)))
		})
	})

	Describe("Load and Save", func() {
		var dir string

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
		})

		It("should round-trip through a YAML file", func() {
			cfg := config.Default()
			cfg.BTBIndexBits = 6
			cfg.Trace.Level = 4
			cfg.Trace.StartCycle = 100
			cfg.Memory.StackPointer = 0x80018000

			path := filepath.Join(dir, "rvpipe.yaml")
			Expect(cfg.Save(path)).To(Succeed())

			loaded, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))
		})

		It("should fill missing keys with defaults", func() {
			path := filepath.Join(dir, "partial.yaml")
			Expect(os.WriteFile(path, []byte("btb_index_bits: 2\ntrace:\n  level: 3\n"), 0644)).To(Succeed())

			loaded, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.BTBIndexBits).To(Equal(2))
			Expect(loaded.Trace.Level).To(Equal(3))
			Expect(loaded.Memory).To(Equal(config.Default().Memory))
		})

		It("should read JSON by extension", func() {
			path := filepath.Join(dir, "rvpipe.json")
			Expect(os.WriteFile(path, []byte(`{"max_cycles": 500}`), 0644)).To(Succeed())

			loaded, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.MaxCycles).To(Equal(uint64(500)))
		})

		It("should apply environment overrides", func() {
			GinkgoT().Setenv("RVPIPE_BTB_INDEX_BITS", "8")
			GinkgoT().Setenv("RVPIPE_TRACE_START_CYCLE", "42")

			loaded, err := config.Load("")
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.BTBIndexBits).To(Equal(8))
			Expect(loaded.Trace.StartCycle).To(Equal(uint64(42)))
		})

		It("should fail on a missing file", func() {
			_, err := config.Load(filepath.Join(dir, "missing.yaml"))
			Expect(err).To(HaveOccurred())
		})

		It("should fail validation of a loaded file", func() {
			path := filepath.Join(dir, "bad.yaml")
			Expect(os.WriteFile(path, []byte("trace:\n  level: 9\n"), 0644)).To(Succeed())

			_, err := config.Load(path)
			Expect(err).To(MatchError(config.ErrInvalidTrace))
		})
	})
})
