// Package core assembles a complete simulated machine around the pipeline:
// register file, instruction and data memory, optional cache probes and the
// trace outputs selected by the configuration.
package core

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/yanghyeonseo/ca-pa4/config"
	"github.com/yanghyeonseo/ca-pa4/emu"
	"github.com/yanghyeonseo/ca-pa4/insts"
	"github.com/yanghyeonseo/ca-pa4/loader"
	"github.com/yanghyeonseo/ca-pa4/timing/cache"
	"github.com/yanghyeonseo/ca-pa4/timing/pipeline"
	"github.com/yanghyeonseo/ca-pa4/trace"
)

// runChunk is how many cycles run between context checks.
const runChunk = 1024

// Stats holds performance statistics for the core.
type Stats struct {
	pipeline.Statistics

	// Cache probe statistics; zero unless profiling is enabled.
	CacheEnabled bool
	ICache       cache.Statistics
	DCache       cache.Statistics
}

// Option is a functional option for configuring the Core.
type Option func(*Core)

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(c *Core) {
		c.logger = logger
	}
}

// WithOutput sets where the text trace and dumps go when no trace file is
// configured. The default is stdout.
func WithOutput(w io.Writer) Option {
	return func(c *Core) {
		c.out = w
	}
}

// WithSink adds a trace sink next to the configured ones.
func WithSink(sink trace.Sink) Option {
	return func(c *Core) {
		c.extraSinks = append(c.extraSinks, sink)
	}
}

// Core represents a cycle-accurate RV32 machine.
type Core struct {
	id     uuid.UUID
	cfg    *config.Config
	logger hclog.Logger

	regFile *emu.RegFile
	imem    *emu.Memory
	dmem    *emu.Memory
	icache  *cache.Probe
	dcache  *cache.Probe
	pipe    *pipeline.Pipeline

	out        io.Writer
	traceFile  io.Closer
	extraSinks []trace.Sink

	entry uint32
}

// New builds a core from cfg. The configuration is copied.
func New(cfg *config.Config, opts ...Option) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Core{
		id:     uuid.New(),
		cfg:    cfg.Clone(),
		logger: hclog.NewNullLogger(),
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("run", c.id.String())

	mem := c.cfg.Memory
	c.regFile = &emu.RegFile{}
	c.imem = emu.NewMemory(mem.IMemBase, mem.IMemSize)
	c.dmem = emu.NewMemory(mem.DMemBase, mem.DMemSize)

	var imem, dmem pipeline.Memory = c.imem, c.dmem
	if c.cfg.Cache.Enabled {
		var err error
		if c.icache, err = cache.NewProbe("icache", cacheConfig(c.cfg.Cache.ICache), c.imem); err != nil {
			return nil, fmt.Errorf("failed to build icache probe: %w", err)
		}
		if c.dcache, err = cache.NewProbe("dcache", cacheConfig(c.cfg.Cache.DCache), c.dmem); err != nil {
			return nil, fmt.Errorf("failed to build dcache probe: %w", err)
		}
		imem, dmem = c.icache, c.dcache
	}

	if c.cfg.Trace.File != "" {
		f := trace.NewRotatingFile(trace.RotatingFileConfig{
			Path:       c.cfg.Trace.File,
			MaxSizeMB:  c.cfg.Trace.MaxSizeMB,
			MaxBackups: c.cfg.Trace.MaxBackups,
			Compress:   c.cfg.Trace.Compress,
		})
		c.out = f
		c.traceFile = f
	}

	c.pipe = pipeline.NewPipeline(c.regFile, imem, dmem,
		pipeline.WithBTBIndexBits(c.cfg.BTBIndexBits),
		pipeline.WithTracer(c.sinks()),
		pipeline.WithLogger(c.logger.Named("pipeline")),
	)

	c.entry = mem.IMemBase
	c.resetState()

	return c, nil
}

func cacheConfig(p config.CacheParams) cache.Config {
	return cache.Config{
		Size:          p.Size,
		Associativity: p.Associativity,
		BlockSize:     p.BlockSize,
	}
}

func (c *Core) sinks() trace.Sink {
	var sinks trace.MultiSink

	level := trace.Level(c.cfg.Trace.Level)
	if level >= trace.LevelStages {
		sinks = append(sinks, trace.NewTextSink(c.out, level, c.cfg.Trace.StartCycle))
	}
	if c.logger.IsTrace() {
		sinks = append(sinks, trace.NewLogSink(c.logger.Named("trace")))
	}
	sinks = append(sinks, c.extraSinks...)

	if len(sinks) == 0 {
		return nil
	}
	return sinks
}

// ID returns the run ID.
func (c *Core) ID() uuid.UUID {
	return c.id
}

// Config returns the core's configuration.
func (c *Core) Config() *config.Config {
	return c.cfg
}

// Pipeline returns the underlying pipeline.
func (c *Core) Pipeline() *pipeline.Pipeline {
	return c.pipe
}

// RegFile returns the register file.
func (c *Core) RegFile() *emu.RegFile {
	return c.regFile
}

// IMem returns instruction memory.
func (c *Core) IMem() *emu.Memory {
	return c.imem
}

// DMem returns data memory.
func (c *Core) DMem() *emu.Memory {
	return c.dmem
}

// Entry returns the address execution starts at.
func (c *Core) Entry() uint32 {
	return c.entry
}

// Load clears memory and registers, installs prog and points fetch at its
// entry.
func (c *Core) Load(prog *loader.Program) error {
	c.imem.Reset()
	c.dmem.Reset()

	if err := prog.Install(c.imem, c.dmem); err != nil {
		return fmt.Errorf("failed to load program: %w", err)
	}

	c.entry = prog.Entry
	c.resetState()

	c.logger.Debug("program loaded",
		"source", prog.Source,
		"entry", hclog.Fmt("0x%08x", prog.Entry),
		"segments", len(prog.Segments),
	)

	return nil
}

// Reset restarts the loaded program without reloading memory.
func (c *Core) Reset() {
	c.resetState()
}

func (c *Core) resetState() {
	c.regFile.Reset()
	c.regFile.Write(insts.SP, c.cfg.InitialSP())
	c.pipe.Reset(c.entry)

	if c.icache != nil {
		c.icache.Reset()
		c.dcache.Reset()
	}
}

// Step runs one cycle. It returns false once the core has halted.
func (c *Core) Step() bool {
	cycle := c.pipe.Cycle()
	running := c.pipe.Tick()
	c.dumpCycle(cycle)
	return running
}

// Halted returns true if an exception reached writeback.
func (c *Core) Halted() bool {
	return c.pipe.Halted()
}

// Run executes until EBREAK, a fault, the configured cycle limit or the
// cancellation of ctx. Cancellation is checked between batches of cycles and
// returns ctx's error with the state reached so far.
func (c *Core) Run(ctx context.Context) (pipeline.Result, error) {
	maxCycles := c.cfg.MaxCycles
	perCycle := trace.Level(c.cfg.Trace.Level) >= trace.LevelRegsEach

	for !c.pipe.Halted() {
		if err := ctx.Err(); err != nil {
			return c.pipe.Result(), err
		}

		n := uint64(runChunk)
		if maxCycles > 0 {
			cycle := c.pipe.Cycle()
			if cycle >= maxCycles {
				res := c.pipe.Result()
				res.Reason = pipeline.ExitMaxCycles
				c.logFinished(res)
				return res, nil
			}
			n = min(n, maxCycles-cycle)
		}

		if perCycle {
			for i := uint64(0); i < n; i++ {
				if !c.Step() {
					break
				}
			}
		} else {
			c.pipe.RunCycles(n)
		}
	}

	res := c.pipe.Result()
	c.logFinished(res)
	return res, nil
}

func (c *Core) logFinished(res pipeline.Result) {
	c.logger.Info("run finished",
		"reason", res.Reason.String(),
		"pc", hclog.Fmt("0x%08x", res.PC),
		"cycles", res.Cycles,
		"instructions", res.Instructions,
	)
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	s := Stats{Statistics: c.pipe.Stats()}
	if c.icache != nil {
		s.CacheEnabled = true
		s.ICache = c.icache.Stats()
		s.DCache = c.dcache.Stats()
	}
	return s
}

// Close releases the trace file, if any.
func (c *Core) Close() error {
	if c.traceFile == nil {
		return nil
	}
	err := c.traceFile.Close()
	c.traceFile = nil
	return err
}
