package pipeline

import (
	"fmt"

	"github.com/yanghyeonseo/ca-pa4/emu"
	"github.com/yanghyeonseo/ca-pa4/insts"
)

// Memory is the access contract of both instruction and data memory. A
// disabled access succeeds and returns zero.
type Memory interface {
	Access(enable bool, addr, data uint32, mode emu.AccessMode) (uint32, bool)
}

// RegisterFile is the architectural register file. Writes to x0 are
// ignored.
type RegisterFile interface {
	Read(rs1, rs2 uint8) (uint32, uint32)
	Write(rd uint8, value uint32)
	WritePair(rd uint8, value uint32, sp uint8, spValue uint32)
}

// FetchStage reads instructions and follows BTB predictions.
type FetchStage struct {
	imem Memory
	btb  *BTB
}

// NewFetchStage creates a new fetch stage.
func NewFetchStage(imem Memory, btb *BTB) *FetchStage {
	return &FetchStage{imem: imem, btb: btb}
}

// FetchResult holds the result of the fetch stage.
type FetchResult struct {
	PC        uint32
	Inst      uint32
	Exception Exception
	PCPlus4   uint32

	// PredictedTaken is true on a BTB hit for PC.
	PredictedTaken  bool
	PredictedTarget uint32

	// NextPC is the PC latched at the end of the cycle unless fetch stalls.
	NextPC uint32
}

// Compute fetches at pc and selects the next PC. Redirects from Execute
// take priority over the BTB prediction.
func (s *FetchStage) Compute(pc uint32, sig *Signals, ex *ExecuteResult) FetchResult {
	res := FetchResult{
		PC:      pc,
		PCPlus4: emu.Adder(pc, 4),
	}

	word, ok := s.imem.Access(true, pc, 0, emu.AccessRead)
	if ok {
		res.Inst = word
	} else {
		res.Inst = insts.Bubble
		res.Exception = ExcIMemError
	}

	res.PredictedTarget, res.PredictedTaken = s.btb.Lookup(pc)

	switch sig.Redirect {
	case RedirectJalr:
		res.NextPC = ex.JumpRegTarget
	case RedirectBrJmp:
		res.NextPC = ex.BrJmpTarget
	case RedirectFallthrough:
		res.NextPC = ex.In.PCPlus4
	default:
		if res.PredictedTaken {
			res.NextPC = res.PredictedTarget
		} else {
			res.NextPC = res.PCPlus4
		}
	}

	return res
}

// Commit latches the next PC and the IF/ID register.
func (s *FetchStage) Commit(regs *Registers, res *FetchResult, sig *Signals) {
	if !sig.IFStall {
		regs.IF.PC = res.NextPC
	}

	if sig.IDBubble && sig.IDStall {
		panic("pipeline: decode stage both stalled and bubbled")
	}

	switch {
	case sig.IDBubble:
		regs.ID.PC = res.PC
		regs.ID.Clear()
	case !sig.IDStall:
		regs.ID = IFIDRegister{
			PC:             res.PC,
			Inst:           res.Inst,
			Exception:      res.Exception,
			PCPlus4:        res.PCPlus4,
			PredictedTaken: res.PredictedTaken,
		}
	}
}

// Info describes the fetch for the trace.
func (r *FetchResult) Info() string {
	return fmt.Sprintf("inst=0x%08x, pc_next=0x%08x", r.Inst, r.NextPC)
}

// DecodeStage decodes, reads registers, runs the control unit and resolves
// operands.
type DecodeStage struct {
	regFile RegisterFile
	decoder *insts.Decoder
	control *ControlUnit
}

// NewDecodeStage creates a new decode stage.
func NewDecodeStage(regFile RegisterFile, control *ControlUnit) *DecodeStage {
	return &DecodeStage{
		regFile: regFile,
		decoder: insts.NewDecoder(),
		control: control,
	}
}

// DecodeResult holds the result of the decode stage.
type DecodeResult struct {
	In IFIDRegister

	// Inst is the instruction word passed on, insts.Bubble once voided.
	Inst uint32
	Op   insts.Op

	Rd  uint8
	Rs1 uint8
	Rs2 uint8

	Signals Signals

	Op1Data uint32
	Op2Data uint32
	Rs2Data uint32
	SPData  uint32

	Exception Exception
}

// Compute decodes the latched IF/ID register. It needs this cycle's Execute
// and Memory results for forwarding and branch resolution.
func (s *DecodeStage) Compute(regs *Registers, ex *ExecuteResult, mm *MemoryResult) DecodeResult {
	in := regs.ID
	inst := s.decoder.Decode(in.Inst)

	res := DecodeResult{
		In:   in,
		Inst: in.Inst,
		Op:   inst.Op,
		Rd:   inst.Rd,
		Rs1:  inst.Rs1,
		Rs2:  inst.Rs2,
	}

	if s.control.Classify(inst.Op) != StackNone {
		res.Rs1 = insts.SP
	}

	rf1, rf2 := s.regFile.Read(res.Rs1, res.Rs2)

	res.Signals = s.control.Generate(ControlInput{
		Op:        inst.Op,
		IsBubble:  in.Inst == insts.Bubble,
		Rs1:       res.Rs1,
		Rs2:       res.Rs2,
		Exception: in.Exception,
		Regs:      regs,
		EX:        ex,
		MM:        mm,
	})
	sig := &res.Signals
	res.Exception = sig.Exception

	if sig.Void {
		res.Inst = insts.Bubble
		res.Rd = 0
	}

	imm := immediate(sig.Row.Op2Sel, in.Inst)

	res.Op1Data = s.operand(sig.Op1Src, rf1, in.PC, imm, regs, ex, mm)
	res.Op2Data = s.operand(sig.Op2Src, rf2, in.PC, imm, regs, ex, mm)
	res.Rs2Data = s.operand(sig.Rs2Src, rf2, in.PC, imm, regs, ex, mm)
	res.SPData = res.Op1Data

	return res
}

func (s *DecodeStage) operand(
	src OperandSource,
	rf, pc, imm uint32,
	regs *Registers,
	ex *ExecuteResult,
	mm *MemoryResult,
) uint32 {
	switch src {
	case SrcPC:
		return pc
	case SrcImm:
		return imm
	case SrcEX, SrcEXSP:
		return ex.ALUOut
	case SrcMM:
		return mm.WBData
	case SrcMMPush:
		return mm.In.ALUOut
	case SrcMMPop:
		return mm.In.SPNext
	case SrcWB, SrcWBPush:
		return regs.WB.WBData
	case SrcWBPop:
		return regs.WB.SPNext
	}
	return rf
}

// immediate returns the operand-2 immediate selected by sel.
func immediate(sel Op2Sel, word uint32) uint32 {
	switch sel {
	case Op2IMI:
		return insts.ImmI(word)
	case Op2IMS:
		return insts.ImmS(word)
	case Op2IMB:
		return insts.ImmB(word)
	case Op2IMU:
		return insts.ImmU(word)
	case Op2IMJ:
		return insts.ImmJ(word)
	case Op2IMP:
		return 4
	}
	return 0
}

// Commit latches the ID/EX register unless Execute is bubbled or Decode
// stalls. A stalled decode still hands Execute a bubble.
func (s *DecodeStage) Commit(regs *Registers, res *DecodeResult) {
	sig := &res.Signals

	if sig.EXBubble {
		regs.EX.PC = res.In.PC
		regs.EX.Clear()
		return
	}

	row := &sig.Row
	regs.EX = IDEXRegister{
		PC:             res.In.PC,
		Inst:           res.Inst,
		Exception:      res.Exception,
		Rd:             res.Rd,
		Op1Data:        res.Op1Data,
		Op2Data:        res.Op2Data,
		Rs2Data:        res.Rs2Data,
		BrType:         row.BrType,
		ALUFun:         row.ALUFun,
		WBSel:          row.WBSel,
		RFWen:          row.RFWen,
		MemEn:          row.MemEn,
		MemFcn:         row.MemFcn,
		MemType:        row.MemType,
		PCPlus4:        res.In.PCPlus4,
		Stack:          sig.Stack,
		SPData:         res.SPData,
		PredictedTaken: res.In.PredictedTaken,
	}
}

// Info describes the decode for the trace.
func (r *DecodeResult) Info() string {
	if r.Inst == insts.Bubble {
		return "-"
	}
	return fmt.Sprintf("rd=%d rs1=%d rs2=%d op1=0x%08x op2=0x%08x",
		r.Rd, r.Rs1, r.Rs2, r.Op1Data, r.Op2Data)
}

// ExecuteStage runs the ALU and computes branch targets.
type ExecuteStage struct {
	btb *BTB
}

// NewExecuteStage creates a new execute stage.
func NewExecuteStage(btb *BTB) *ExecuteStage {
	return &ExecuteStage{btb: btb}
}

// ExecuteResult holds the result of the execute stage.
type ExecuteResult struct {
	In IDEXRegister

	ALU2Data      uint32
	ALUOut        uint32
	JumpRegTarget uint32
	BrJmpTarget   uint32
}

// Compute evaluates the latched ID/EX register.
func (s *ExecuteStage) Compute(in IDEXRegister) ExecuteResult {
	res := ExecuteResult{In: in}

	// Conditional branches compare rs1 with rs2; Op2Data holds the offset.
	res.ALU2Data = in.Op2Data
	if in.BrType.IsConditional() {
		res.ALU2Data = in.Rs2Data
	}

	res.ALUOut = emu.ALU(in.ALUFun, in.Op1Data, res.ALU2Data)
	res.JumpRegTarget = res.ALUOut &^ 1
	res.BrJmpTarget = emu.Adder(in.PC, in.Op2Data)

	if in.WBSel == WBPC4 {
		res.ALUOut = in.PCPlus4
	}

	return res
}

// Commit latches the EX/MM register and trains the BTB. Returns the BTB
// update applied, if any.
func (s *ExecuteStage) Commit(regs *Registers, res *ExecuteResult, sig *Signals) BTBUpdate {
	in := &res.In

	regs.MM.PC = in.PC
	regs.MM.Exception = in.Exception

	if sig.MMBubble {
		regs.MM.Clear()
		return BTBNone
	}

	regs.MM = EXMMRegister{
		PC:        in.PC,
		Inst:      in.Inst,
		Exception: in.Exception,
		Rd:        in.Rd,
		ALUOut:    res.ALUOut,
		Rs2Data:   in.Rs2Data,
		WBSel:     in.WBSel,
		RFWen:     in.RFWen,
		MemEn:     in.MemEn,
		MemFcn:    in.MemFcn,
		MemType:   in.MemType,
		Stack:     in.Stack,
		SPData:    in.SPData,
		SPNext:    res.ALUOut,
	}

	if in.IsBubble() || sig.Shadowed {
		return BTBNone
	}

	switch {
	case in.PredictedTaken && sig.PCSel != PCBrJmp:
		s.btb.Remove(in.PC)
		return BTBRemove
	case !in.PredictedTaken && sig.PCSel == PCBrJmp:
		s.btb.Add(in.PC, res.BrJmpTarget)
		return BTBAdd
	}
	return BTBNone
}

// BTBUpdate is the BTB training action taken by Execute in one cycle.
type BTBUpdate uint8

// BTB updates.
const (
	BTBNone BTBUpdate = iota
	BTBAdd
	BTBRemove
)

var aluSymbols = map[emu.ALUFunc]string{
	emu.ALUAdd:  "+",
	emu.ALUSub:  "-",
	emu.ALUAnd:  "&",
	emu.ALUOr:   "|",
	emu.ALUXor:  "^",
	emu.ALUSlt:  "<",
	emu.ALUSltu: "<u",
	emu.ALUSll:  "<<",
	emu.ALUSrl:  ">>",
	emu.ALUSra:  ">>s",
	emu.ALUSeq:  "==",
}

// Info describes the ALU operation for the trace.
func (r *ExecuteResult) Info() string {
	in := &r.In
	if in.IsBubble() {
		return "-"
	}

	switch in.ALUFun {
	case emu.ALUCopy1:
		return fmt.Sprintf("0x%08x <- 0x%08x", r.ALUOut, in.Op1Data)
	case emu.ALUCopy2:
		return fmt.Sprintf("0x%08x <- 0x%08x", r.ALUOut, r.ALU2Data)
	case emu.ALUX:
		return fmt.Sprintf("0x%08x", r.ALUOut)
	}

	return fmt.Sprintf("0x%08x <- 0x%08x %s 0x%08x",
		r.ALUOut, in.Op1Data, aluSymbols[in.ALUFun], r.ALU2Data)
}

// MemoryStage performs data memory accesses.
type MemoryStage struct {
	dmem Memory
}

// NewMemoryStage creates a new memory stage.
func NewMemoryStage(dmem Memory) *MemoryStage {
	return &MemoryStage{dmem: dmem}
}

// MemoryResult holds the result of the memory stage.
type MemoryResult struct {
	In EXMMRegister

	Address uint32
	MemData uint32
	WBData  uint32

	// RFWen is the latched write enable, cleared by a failed access.
	RFWen     bool
	Exception Exception
}

// Compute performs the access of the latched EX/MM register. Memory is
// only touched here, so doing the access in the compute phase is
// equivalent to doing it on commit.
func (s *MemoryStage) Compute(in EXMMRegister) MemoryResult {
	res := MemoryResult{
		In:        in,
		Address:   in.ALUOut,
		RFWen:     in.RFWen,
		Exception: in.Exception,
	}

	// POP reads at the stack pointer before the increment.
	if in.Stack == StackPop {
		res.Address = in.SPData
	}

	data, ok := s.dmem.Access(in.MemEn, res.Address, in.Rs2Data, AccessMode(in.MemFcn, in.MemType))
	if !ok {
		res.Exception |= ExcDMemError
		res.RFWen = false
	}
	res.MemData = data

	if in.WBSel == WBMem {
		res.WBData = data
	} else {
		res.WBData = res.Address
	}

	return res
}

// Commit latches the MM/WB register.
func (s *MemoryStage) Commit(regs *Registers, res *MemoryResult) {
	in := &res.In
	regs.WB = MMWBRegister{
		PC:        in.PC,
		Inst:      in.Inst,
		Exception: res.Exception,
		Rd:        in.Rd,
		RFWen:     res.RFWen,
		WBData:    res.WBData,
		Stack:     in.Stack,
		SPNext:    in.SPNext,
	}
}

// Info describes the access for the trace.
func (r *MemoryResult) Info() string {
	in := &r.In
	if !in.MemEn || in.Inst == insts.Bubble {
		return "-"
	}
	if in.MemFcn == MemWrite {
		return fmt.Sprintf("M[0x%08x] <- 0x%08x", r.Address, in.Rs2Data)
	}
	return fmt.Sprintf("0x%08x <- M[0x%08x]", r.MemData, r.Address)
}

// WritebackStage writes results to the register file.
type WritebackStage struct {
	regFile RegisterFile
}

// NewWritebackStage creates a new writeback stage.
func NewWritebackStage(regFile RegisterFile) *WritebackStage {
	return &WritebackStage{regFile: regFile}
}

// WritebackResult holds the result of the writeback stage.
type WritebackResult struct {
	In MMWBRegister

	// OK is false if the instruction carries any exception.
	OK        bool
	Exception Exception

	// Retired is true if a real instruction left the pipeline.
	Retired bool
}

// Compute inspects the latched MM/WB register.
func (s *WritebackStage) Compute(in MMWBRegister) WritebackResult {
	return WritebackResult{
		In:        in,
		OK:        in.Exception == ExcNone,
		Exception: in.Exception,
		Retired:   in.Inst != insts.Bubble,
	}
}

// Commit updates the register file. A pop writes the loaded value and the
// incremented stack pointer in the same cycle.
func (s *WritebackStage) Commit(res *WritebackResult) {
	in := &res.In
	if !in.RFWen {
		return
	}

	switch in.Stack {
	case StackPush:
		s.regFile.Write(insts.SP, in.WBData)
	case StackPop:
		s.regFile.WritePair(in.Rd, in.WBData, insts.SP, in.SPNext)
	default:
		s.regFile.Write(in.Rd, in.WBData)
	}
}

// Info describes the register write for the trace.
func (r *WritebackResult) Info() string {
	in := &r.In
	if !in.RFWen || in.Inst == insts.Bubble {
		return "-"
	}
	switch in.Stack {
	case StackPush:
		return fmt.Sprintf("R[%d] <- 0x%08x", insts.SP, in.WBData)
	case StackPop:
		return fmt.Sprintf("R[%d] <- 0x%08x, R[%d] <- 0x%08x", in.Rd, in.WBData, insts.SP, in.SPNext)
	}
	return fmt.Sprintf("R[%d] <- 0x%08x", in.Rd, in.WBData)
}
