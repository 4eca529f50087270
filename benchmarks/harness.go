// Package benchmarks runs RV32 microbenchmarks on the pipelined core and
// checks every run against the reference emulator.
package benchmarks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/yanghyeonseo/ca-pa4/config"
	"github.com/yanghyeonseo/ca-pa4/emu"
	"github.com/yanghyeonseo/ca-pa4/insts"
	"github.com/yanghyeonseo/ca-pa4/loader"
	"github.com/yanghyeonseo/ca-pa4/timing/core"
)

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	// RunID identifies the harness run that produced this result.
	RunID string `json:"run_id"`

	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	SimulatedCycles     uint64  `json:"simulated_cycles"`
	InstructionsRetired uint64  `json:"instructions_retired"`
	CPI                 float64 `json:"cpi"`

	// StallCycles is the number of load-use stall cycles
	StallCycles uint64 `json:"stall_cycles"`

	// PipelineFlushes is the number of mispredictions
	PipelineFlushes uint64 `json:"pipeline_flushes"`

	// Forwards is the number of operands taken from the bypass network
	Forwards uint64 `json:"forwards"`

	// Branch and BTB stats
	Branches              uint64  `json:"branches"`
	BranchCorrect         uint64  `json:"branch_correct"`
	BranchMispredictions  uint64  `json:"branch_mispredictions"`
	BranchAccuracyPercent float64 `json:"branch_accuracy_percent"`
	BTBHits               uint64  `json:"btb_hits"`

	// ICacheHits/Misses (if cache profiling is enabled)
	ICacheHits   uint64 `json:"icache_hits,omitempty"`
	ICacheMisses uint64 `json:"icache_misses,omitempty"`

	// DCacheHits/Misses (if cache profiling is enabled)
	DCacheHits   uint64 `json:"dcache_hits,omitempty"`
	DCacheMisses uint64 `json:"dcache_misses,omitempty"`

	// Exit describes how the run ended.
	Exit string `json:"exit"`

	// Result is the value of the benchmark's result register.
	Result   uint32 `json:"result"`
	Expected uint32 `json:"expected"`

	// ReferenceInstructions is the reference emulator's instruction count.
	ReferenceInstructions uint64 `json:"reference_instructions"`

	// Verified is true if the result matched, and the final register file
	// and instruction count agree with the reference emulator.
	Verified bool   `json:"verified"`
	Mismatch string `json:"mismatch,omitempty"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Setup prepares data memory after the program is loaded.
	Setup func(dmem *emu.Memory) error

	// Program is the RV32 machine code, loaded at the start of imem.
	Program []uint32

	// ResultReg holds the benchmark's answer when it stops.
	ResultReg uint8
	Expected  uint32
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Core is the machine configuration. Trace output is always disabled.
	Core *config.Config

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Logger receives one record per benchmark.
	Logger hclog.Logger

	// Verbose enables detailed output
	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	cfg := config.Default()
	cfg.Cache.Enabled = true

	return HarnessConfig{
		Core:   cfg,
		Output: os.Stdout,
		Logger: hclog.NewNullLogger(),
	}
}

// Harness runs timing benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	runID      uuid.UUID
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(cfg HarnessConfig) *Harness {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.Core == nil {
		cfg.Core = config.Default()
	}

	cfg.Core = cfg.Core.Clone()
	cfg.Core.Trace.Level = 0
	cfg.Core.Trace.File = ""

	return &Harness{
		config: cfg,
		runID:  uuid.New(),
	}
}

// RunID returns the ID stamped on every result of this harness.
func (h *Harness) RunID() uuid.UUID {
	return h.runID
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results. It stops at the first
// benchmark that cannot be set up or is cancelled.
func (h *Harness) RunAll(ctx context.Context) ([]BenchmarkResult, error) {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		result, err := h.runBenchmark(ctx, bench)
		if err != nil {
			return results, fmt.Errorf("benchmark %s: %w", bench.Name, err)
		}

		h.config.Logger.Info("benchmark finished",
			"run", h.runID.String(),
			"name", result.Name,
			"cycles", result.SimulatedCycles,
			"cpi", result.CPI,
			"verified", result.Verified,
		)

		results = append(results, result)
	}

	return results, nil
}

// runBenchmark executes a single benchmark.
func (h *Harness) runBenchmark(ctx context.Context, bench Benchmark) (BenchmarkResult, error) {
	prog := loader.FromWords(h.config.Core.Memory.IMemBase, bench.Program)

	c, err := core.New(h.config.Core, core.WithLogger(h.config.Logger.Named(bench.Name)))
	if err != nil {
		return BenchmarkResult{}, err
	}
	defer func() { _ = c.Close() }()

	if err := c.Load(prog); err != nil {
		return BenchmarkResult{}, err
	}
	if bench.Setup != nil {
		if err := bench.Setup(c.DMem()); err != nil {
			return BenchmarkResult{}, fmt.Errorf("failed to set up data memory: %w", err)
		}
	}

	// Run simulation and measure time
	start := time.Now()
	res, err := c.Run(ctx)
	wallTime := time.Since(start)
	if err != nil {
		return BenchmarkResult{}, err
	}

	// Collect statistics
	stats := c.Stats()
	result := BenchmarkResult{
		RunID:                 h.runID.String(),
		Name:                  bench.Name,
		Description:           bench.Description,
		SimulatedCycles:       stats.Cycles,
		InstructionsRetired:   stats.Instructions,
		CPI:                   stats.CPI(),
		StallCycles:           stats.Stalls,
		PipelineFlushes:       stats.Flushes,
		Forwards:              stats.Forwards(),
		Branches:              stats.Branches,
		BranchCorrect:         stats.BranchCorrect,
		BranchMispredictions:  stats.BranchMispredictions,
		BranchAccuracyPercent: 100 * stats.BranchAccuracy(),
		BTBHits:               stats.BTBHits,
		Exit:                  core.ExitMessage(res),
		Result:                c.RegFile().Reg(bench.ResultReg),
		Expected:              bench.Expected,
		WallTime:              wallTime,
	}

	// Collect cache stats if enabled
	if stats.CacheEnabled {
		result.ICacheHits = stats.ICache.Hits
		result.ICacheMisses = stats.ICache.Misses
		result.DCacheHits = stats.DCache.Hits
		result.DCacheMisses = stats.DCache.Misses
	}

	ref, err := h.reference(bench, prog)
	if err != nil {
		return BenchmarkResult{}, err
	}
	result.ReferenceInstructions = ref.InstructionCount()
	result.Mismatch = compare(&result, c.RegFile(), ref.RegFile())
	result.Verified = result.Mismatch == ""

	return result, nil
}

// reference runs the benchmark on the emulator with the same initial state.
func (h *Harness) reference(bench Benchmark, prog *loader.Program) (*emu.Emulator, error) {
	mem := h.config.Core.Memory
	regFile := &emu.RegFile{}
	imem := emu.NewMemory(mem.IMemBase, mem.IMemSize)
	dmem := emu.NewMemory(mem.DMemBase, mem.DMemSize)

	if err := prog.Install(imem, dmem); err != nil {
		return nil, err
	}
	if bench.Setup != nil {
		if err := bench.Setup(dmem); err != nil {
			return nil, fmt.Errorf("failed to set up data memory: %w", err)
		}
	}
	regFile.Write(insts.SP, h.config.Core.InitialSP())

	e := emu.NewEmulator(regFile, imem, dmem,
		emu.WithMaxInstructions(h.config.Core.MaxCycles))
	e.SetPC(prog.Entry)
	e.Run()

	return e, nil
}

func compare(r *BenchmarkResult, got, want *emu.RegFile) string {
	if r.Result != r.Expected {
		return fmt.Sprintf("result 0x%08x, expected 0x%08x", r.Result, r.Expected)
	}
	for i := uint8(0); i < emu.NumRegs; i++ {
		if got.Reg(i) != want.Reg(i) {
			return fmt.Sprintf("%s = 0x%08x, reference 0x%08x", emu.RegName(i), got.Reg(i), want.Reg(i))
		}
	}
	if r.InstructionsRetired != r.ReferenceInstructions {
		return fmt.Sprintf("%d instructions, reference %d", r.InstructionsRetired, r.ReferenceInstructions)
	}
	return ""
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	w := h.config.Output

	_, _ = fmt.Fprintf(w, "=== Pipeline Benchmark Results (run %s) ===\n", h.runID)
	_, _ = fmt.Fprintln(w, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(w, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(w, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintf(w, "  Exit: %s\n", r.Exit)
		_, _ = fmt.Fprintf(w, "  Verified: %v\n", r.Verified)
		if r.Mismatch != "" {
			_, _ = fmt.Fprintf(w, "  Mismatch: %s\n", r.Mismatch)
		}
		_, _ = fmt.Fprintln(w, "  --- Timing ---")
		_, _ = fmt.Fprintf(w, "  Simulated Cycles:     %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(w, "  Instructions Retired: %d\n", r.InstructionsRetired)
		_, _ = fmt.Fprintf(w, "  CPI:                  %.3f\n", r.CPI)
		_, _ = fmt.Fprintf(w, "  Stall Cycles:         %d\n", r.StallCycles)
		_, _ = fmt.Fprintf(w, "  Pipeline Flushes:     %d\n", r.PipelineFlushes)
		_, _ = fmt.Fprintf(w, "  Forwards:             %d\n", r.Forwards)

		if h.config.Verbose {
			if r.Branches > 0 {
				_, _ = fmt.Fprintln(w, "  --- Branches ---")
				_, _ = fmt.Fprintf(w, "  Resolved:        %d\n", r.Branches)
				_, _ = fmt.Fprintf(w, "  Correct:         %d\n", r.BranchCorrect)
				_, _ = fmt.Fprintf(w, "  Mispredictions:  %d\n", r.BranchMispredictions)
				_, _ = fmt.Fprintf(w, "  Accuracy:        %.1f%%\n", r.BranchAccuracyPercent)
				_, _ = fmt.Fprintf(w, "  BTB Hits:        %d\n", r.BTBHits)
			}

			if r.ICacheHits > 0 || r.ICacheMisses > 0 {
				_, _ = fmt.Fprintln(w, "  --- I-Cache ---")
				_, _ = fmt.Fprintf(w, "  Hits:   %d\n", r.ICacheHits)
				_, _ = fmt.Fprintf(w, "  Misses: %d\n", r.ICacheMisses)
			}

			if r.DCacheHits > 0 || r.DCacheMisses > 0 {
				_, _ = fmt.Fprintln(w, "  --- D-Cache ---")
				_, _ = fmt.Fprintf(w, "  Hits:   %d\n", r.DCacheHits)
				_, _ = fmt.Fprintf(w, "  Misses: %d\n", r.DCacheMisses)
			}

			_, _ = fmt.Fprintf(w, "  Wall Time: %v\n", r.WallTime)
		}
		_, _ = fmt.Fprintln(w, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,cycles,instructions,cpi,stalls,flushes,forwards,branches,mispredictions,icache_hits,icache_misses,dcache_hits,dcache_misses,verified")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%.3f,%d,%d,%d,%d,%d,%d,%d,%d,%d,%v\n",
			r.Name,
			r.SimulatedCycles,
			r.InstructionsRetired,
			r.CPI,
			r.StallCycles,
			r.PipelineFlushes,
			r.Forwards,
			r.Branches,
			r.BranchMispredictions,
			r.ICacheHits,
			r.ICacheMisses,
			r.DCacheHits,
			r.DCacheMisses,
			r.Verified,
		)
	}
}

// PrintJSON outputs benchmark results as an indented JSON array.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	enc := json.NewEncoder(h.config.Output)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}
