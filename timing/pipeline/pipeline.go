package pipeline

import (
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/yanghyeonseo/ca-pa4/insts"
	"github.com/yanghyeonseo/ca-pa4/trace"
)

// Statistics holds pipeline performance statistics.
type Statistics struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Instructions is the number of instructions retired without a fault.
	Instructions uint64
	// Stalls is the number of load-use stall cycles.
	Stalls uint64
	// Flushes is the number of mispredictions, each voiding two younger
	// instructions.
	Flushes uint64

	// Branches is the number of control-flow instructions resolved in
	// Execute.
	Branches uint64
	// BranchCorrect is the number of correctly predicted branches.
	BranchCorrect uint64
	// BranchMispredictions is the number of mispredicted branches.
	BranchMispredictions uint64

	// BTBHits counts fetches that followed a BTB prediction.
	BTBHits    uint64
	BTBAdds    uint64
	BTBRemoves uint64

	// Forwarded operands by producing stage.
	ForwardsEX uint64
	ForwardsMM uint64
	ForwardsWB uint64
}

// CPI returns the cycles per instruction.
func (s Statistics) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// BranchAccuracy returns the fraction of correctly predicted branches.
func (s Statistics) BranchAccuracy() float64 {
	if s.Branches == 0 {
		return 0
	}
	return float64(s.BranchCorrect) / float64(s.Branches)
}

// Forwards returns the total number of forwarded operands.
func (s Statistics) Forwards() uint64 {
	return s.ForwardsEX + s.ForwardsMM + s.ForwardsWB
}

// ExitReason tells why a run stopped.
type ExitReason uint8

// Exit reasons.
const (
	ExitRunning ExitReason = iota
	ExitBreak
	ExitFault
	ExitMaxCycles
)

func (r ExitReason) String() string {
	switch r {
	case ExitRunning:
		return "running"
	case ExitBreak:
		return "ebreak"
	case ExitFault:
		return "fault"
	case ExitMaxCycles:
		return "max-cycles"
	}
	return fmt.Sprintf("ExitReason(%d)", uint8(r))
}

// Result summarizes a run.
type Result struct {
	Reason    ExitReason
	Exception Exception

	// PC is the address of the instruction that stopped the run, or the
	// fetch PC when the cycle limit was reached.
	PC uint32

	Cycles       uint64
	Instructions uint64
}

// PipelineOption is a functional option for configuring the Pipeline.
type PipelineOption func(*Pipeline)

// WithBTBIndexBits sets the number of BTB index bits.
func WithBTBIndexBits(k int) PipelineOption {
	return func(p *Pipeline) {
		p.btbIndexBits = k
	}
}

// WithTracer sets the sink that receives one event per stage per cycle.
func WithTracer(sink trace.Sink) PipelineOption {
	return func(p *Pipeline) {
		p.tracer = sink
	}
}

// WithLogger sets the logger for pipeline events.
func WithLogger(logger hclog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// Pipeline implements a 5-stage pipelined RV32 core.
// Stages: Fetch (IF) -> Decode (ID) -> Execute (EX) -> Memory (MM) -> Writeback (WB)
type Pipeline struct {
	regs Registers

	fetch     *FetchStage
	decode    *DecodeStage
	execute   *ExecuteStage
	memory    *MemoryStage
	writeback *WritebackStage

	control *ControlUnit
	btb     *BTB

	btbIndexBits int
	tracer       trace.Sink
	logger       hclog.Logger

	cycle       uint64
	stats       Statistics
	lastSignals Signals

	halted    bool
	exception Exception
	exitPC    uint32
}

// NewPipeline creates a new pipeline over the given state. Every pipeline
// register starts out holding a bubble.
func NewPipeline(regFile RegisterFile, imem, dmem Memory, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		btbIndexBits: DefaultBTBIndexBits,
		logger:       hclog.NewNullLogger(),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.btb = NewBTB(p.btbIndexBits)
	p.control = NewControlUnit()
	p.fetch = NewFetchStage(imem, p.btb)
	p.decode = NewDecodeStage(regFile, p.control)
	p.execute = NewExecuteStage(p.btb)
	p.memory = NewMemoryStage(dmem)
	p.writeback = NewWritebackStage(regFile)
	p.regs = resetRegisters(0)

	return p
}

// PC returns the fetch PC.
func (p *Pipeline) PC() uint32 {
	return p.regs.IF.PC
}

// SetPC sets the fetch PC.
func (p *Pipeline) SetPC(pc uint32) {
	p.regs.IF.PC = pc
}

// Registers returns a snapshot of the pipeline registers.
func (p *Pipeline) Registers() Registers {
	return p.regs
}

// BTB returns the branch target buffer.
func (p *Pipeline) BTB() *BTB {
	return p.btb
}

// Stats returns the pipeline statistics.
func (p *Pipeline) Stats() Statistics {
	return p.stats
}

// Cycle returns the number of cycles simulated.
func (p *Pipeline) Cycle() uint64 {
	return p.cycle
}

// LastSignals returns the control bundle of the most recent cycle.
func (p *Pipeline) LastSignals() Signals {
	return p.lastSignals
}

// Halted returns true if an instruction carrying an exception reached
// writeback.
func (p *Pipeline) Halted() bool {
	return p.halted
}

// Exception returns the exception that halted the pipeline.
func (p *Pipeline) Exception() Exception {
	return p.exception
}

// Tick advances the pipeline by one cycle. It returns false once the
// pipeline has halted.
func (p *Pipeline) Tick() bool {
	if p.halted {
		return false
	}

	// Compute phase, from the back of the pipeline to the front. Decode
	// needs Execute's and Memory's results; Fetch needs the redirect.
	wb := p.writeback.Compute(p.regs.WB)
	mm := p.memory.Compute(p.regs.MM)
	ex := p.execute.Compute(p.regs.EX)
	id := p.decode.Compute(&p.regs, &ex, &mm)
	sig := &id.Signals
	f := p.fetch.Compute(p.regs.IF.PC, sig, &ex)

	p.emit(&f, &id, &ex, &mm, &wb)

	// Commit phase. Each stage writes only its successor's register.
	p.writeback.Commit(&wb)
	p.memory.Commit(&p.regs, &mm)
	update := p.execute.Commit(&p.regs, &ex, sig)
	p.decode.Commit(&p.regs, &id)
	p.fetch.Commit(&p.regs, &f, sig)

	p.account(&f, &id, &ex, &wb, update)
	p.lastSignals = *sig
	p.cycle++

	if !wb.OK {
		p.halt(&wb)
	}

	return !p.halted
}

func (p *Pipeline) halt(wb *WritebackResult) {
	p.halted = true
	p.exception = wb.Exception
	p.exitPC = wb.In.PC

	p.logger.Debug("halted",
		"cycle", p.cycle,
		"pc", hclog.Fmt("0x%08x", wb.In.PC),
		"exception", wb.Exception.String(),
	)
}

func (p *Pipeline) account(
	f *FetchResult,
	id *DecodeResult,
	ex *ExecuteResult,
	wb *WritebackResult,
	update BTBUpdate,
) {
	s := &p.stats
	sig := &id.Signals

	s.Cycles++

	if wb.Retired && !wb.Exception.IsFault() {
		s.Instructions++
	}

	if sig.LoadUse {
		s.Stalls++
		p.logger.Trace("load-use stall", "cycle", p.cycle, "pc", hclog.Fmt("0x%08x", id.In.PC))
	}

	// A branch behind an exception never resolves.
	if !sig.Shadowed {
		p.countBranch(ex, sig)
	}

	if f.PredictedTaken && !sig.IFStall && !sig.IDBubble {
		s.BTBHits++
	}

	switch update {
	case BTBAdd:
		s.BTBAdds++
	case BTBRemove:
		s.BTBRemoves++
	}

	// Forwarding only counts when the decoded instruction moves on.
	if sig.EXBubble || id.Inst == insts.Bubble {
		return
	}
	p.countForward(sig.Op1Src)
	if sig.Row.RS2Oen {
		p.countForward(sig.Rs2Src)
	}
}

func (p *Pipeline) countBranch(ex *ExecuteResult, sig *Signals) {
	s := &p.stats

	if sig.Mispredict {
		s.Flushes++
		p.logger.Trace("mispredict", "cycle", p.cycle, "pc", hclog.Fmt("0x%08x", ex.In.PC))
	}

	if ex.In.IsBubble() || ex.In.BrType == BrN {
		return
	}

	s.Branches++
	if sig.Mispredict {
		s.BranchMispredictions++
	} else {
		s.BranchCorrect++
	}
}

func (p *Pipeline) countForward(src OperandSource) {
	switch src.Stage() {
	case "EX":
		p.stats.ForwardsEX++
	case "MM":
		p.stats.ForwardsMM++
	case "WB":
		p.stats.ForwardsWB++
	}
}

func (p *Pipeline) emit(
	f *FetchResult,
	id *DecodeResult,
	ex *ExecuteResult,
	mm *MemoryResult,
	wb *WritebackResult,
) {
	if p.tracer == nil {
		return
	}

	c := p.cycle
	p.tracer.Record(trace.Event{Cycle: c, Stage: trace.StageIF, PC: f.PC, Inst: f.Inst, Info: f.Info()})
	p.tracer.Record(trace.Event{Cycle: c, Stage: trace.StageID, PC: id.In.PC, Inst: id.In.Inst, Info: id.Info()})
	p.tracer.Record(trace.Event{Cycle: c, Stage: trace.StageEX, PC: ex.In.PC, Inst: ex.In.Inst, Info: ex.Info()})
	p.tracer.Record(trace.Event{Cycle: c, Stage: trace.StageMM, PC: mm.In.PC, Inst: mm.In.Inst, Info: mm.Info()})
	p.tracer.Record(trace.Event{Cycle: c, Stage: trace.StageWB, PC: wb.In.PC, Inst: wb.In.Inst, Info: wb.Info()})
}

// RunCycles runs at most n cycles. It returns false once the pipeline has
// halted.
func (p *Pipeline) RunCycles(n uint64) bool {
	for i := uint64(0); i < n; i++ {
		if !p.Tick() {
			return false
		}
	}
	return !p.halted
}

// Run ticks until an exception reaches writeback or maxCycles cycles have
// run. A maxCycles of 0 means no limit.
func (p *Pipeline) Run(maxCycles uint64) Result {
	for !p.halted {
		if maxCycles > 0 && p.cycle >= maxCycles {
			return p.result(ExitMaxCycles)
		}
		p.Tick()
	}

	if p.exception.IsFault() {
		return p.result(ExitFault)
	}
	return p.result(ExitBreak)
}

// Result reports the current state as a run result.
func (p *Pipeline) Result() Result {
	switch {
	case !p.halted:
		return p.result(ExitRunning)
	case p.exception.IsFault():
		return p.result(ExitFault)
	}
	return p.result(ExitBreak)
}

func (p *Pipeline) result(reason ExitReason) Result {
	r := Result{
		Reason:       reason,
		Exception:    p.exception,
		PC:           p.regs.IF.PC,
		Cycles:       p.stats.Cycles,
		Instructions: p.stats.Instructions,
	}
	if p.halted {
		r.PC = p.exitPC
	}
	return r
}

// Reset returns the pipeline to its power-on state with fetch at pc. The
// register file and memories are not touched.
func (p *Pipeline) Reset(pc uint32) {
	p.regs = resetRegisters(pc)
	p.btb.Reset()
	p.stats = Statistics{}
	p.lastSignals = Signals{}
	p.cycle = 0
	p.halted = false
	p.exception = ExcNone
	p.exitPC = 0
}
