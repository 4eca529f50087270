package pipeline

import "github.com/yanghyeonseo/ca-pa4/insts"

// PCSel is the resolved outcome of the instruction in Execute.
type PCSel uint8

const (
	// PCPlus4 means straight-line execution.
	PCPlus4 PCSel = iota
	// PCBrJmp means a taken branch or a JAL.
	PCBrJmp
	// PCJalr means an indirect jump.
	PCJalr
)

// Redirect tells Fetch where the next PC comes from.
type Redirect uint8

const (
	// RedirectNone follows Fetch's own BTB prediction (or PC+4).
	RedirectNone Redirect = iota
	// RedirectJalr takes Execute's jump-register target.
	RedirectJalr
	// RedirectBrJmp takes Execute's branch/jump target after a not-taken
	// prediction turned out taken.
	RedirectBrJmp
	// RedirectFallthrough takes the PC after Execute's instruction after a
	// taken prediction turned out not taken.
	RedirectFallthrough
)

// OperandSource names where Decode takes an operand from.
type OperandSource uint8

// Operand sources in forwarding priority order after the non-forwarded ones.
const (
	SrcRegFile OperandSource = iota
	SrcPC
	SrcImm
	SrcEX     // Execute's ALU result
	SrcEXSP   // Execute's ALU result, stack pointer of a push/pop
	SrcMM     // Memory's writeback value
	SrcMMPush // Memory's ALU result, stack pointer of a push
	SrcMMPop  // Memory's incremented stack pointer of a pop
	SrcWB     // Writeback's value
	SrcWBPush // Writeback's value, stack pointer of a push
	SrcWBPop  // Writeback's incremented stack pointer of a pop
)

var srcNames = [...]string{
	SrcRegFile: "rf",
	SrcPC:      "pc",
	SrcImm:     "imm",
	SrcEX:      "ex",
	SrcEXSP:    "ex.sp",
	SrcMM:      "mm",
	SrcMMPush:  "mm.push",
	SrcMMPop:   "mm.pop",
	SrcWB:      "wb",
	SrcWBPush:  "wb.push",
	SrcWBPop:   "wb.pop",
}

func (s OperandSource) String() string {
	if int(s) < len(srcNames) {
		return srcNames[s]
	}
	return "unknown"
}

// Forwarded reports whether the value bypasses the register file.
func (s OperandSource) Forwarded() bool {
	return s >= SrcEX
}

// Stage returns the producing stage of a forwarded value.
func (s OperandSource) Stage() string {
	switch s {
	case SrcEX, SrcEXSP:
		return "EX"
	case SrcMM, SrcMMPush, SrcMMPop:
		return "MM"
	case SrcWB, SrcWBPush, SrcWBPop:
		return "WB"
	}
	return ""
}

// Signals is the control bundle produced once per cycle.
type Signals struct {
	// Row is the static control row of the instruction in Decode.
	Row ControlRow

	// Stack classifies the instruction in Decode for push/pop.
	Stack StackOp

	// Exception is Decode's exception after merging illegal/breakpoint bits.
	Exception Exception

	// Void is set when Decode must replace its instruction by a bubble.
	Void bool

	// Operand sources for the instruction in Decode.
	Op1Src OperandSource
	Op2Src OperandSource
	Rs2Src OperandSource

	// PCSel is the resolved outcome of the instruction in Execute.
	PCSel PCSel

	// RightPredict is true if Execute holds a bubble or its prediction
	// matched PCSel.
	RightPredict bool

	// Redirect is where Fetch takes the next PC from.
	Redirect Redirect

	LoadUse    bool
	Mispredict bool

	// Shadowed is set when an older instruction in Memory or Writeback
	// carries an exception, so the instruction in Execute never completes.
	// It neither trains the BTB nor counts as a resolved branch.
	Shadowed bool

	IFStall  bool
	IDStall  bool
	IDBubble bool
	EXBubble bool
	MMBubble bool
}

// ControlInput is what the control unit inspects each cycle.
type ControlInput struct {
	// Decode-stage instruction.
	Op        insts.Op
	IsBubble  bool
	Rs1       uint8
	Rs2       uint8
	Exception Exception

	// Latched downstream registers.
	Regs *Registers

	// This-cycle results of Execute and Memory.
	EX *ExecuteResult
	MM *MemoryResult
}

// ControlUnit derives the per-cycle control bundle. It holds no state.
type ControlUnit struct{}

// NewControlUnit creates a new control unit.
func NewControlUnit() *ControlUnit {
	return &ControlUnit{}
}

// Classify is the pre-generation pass: it tags push/pop so Decode can force
// the stack pointer as the first source before reading the register file.
func (c *ControlUnit) Classify(op insts.Op) StackOp {
	return stackOpOf(op)
}

// Generate computes the control bundle for the current cycle.
func (c *ControlUnit) Generate(in ControlInput) Signals {
	s := Signals{
		Exception: in.Exception,
		Stack:     c.Classify(in.Op),
	}

	switch {
	case in.IsBubble:
		s.Row = bubbleRow
		s.Stack = StackNone
	case in.Op == insts.OpECALL || in.Op == insts.OpEBREAK:
		s.Exception |= ExcEBreak
		s.Row = ControlFor(in.Op)
	case in.Op == insts.OpIllegal:
		s.Exception |= ExcIllegalInst
		s.Void = true
		s.Row = bubbleRow
	default:
		s.Row = ControlFor(in.Op)
	}

	c.resolveOperands(&s, in)
	c.resolveBranch(&s, in)
	c.detectHazards(&s, in)

	return s
}

func (c *ControlUnit) resolveOperands(s *Signals, in ControlInput) {
	s.Op1Src, s.Op2Src, s.Rs2Src = SrcRegFile, SrcImm, SrcRegFile

	switch {
	case s.Row.Op1Sel == Op1PC:
		s.Op1Src = SrcPC
	case s.Row.RS1Oen:
		s.Op1Src = c.forwardSource(in.Rs1, in)
	}

	if s.Row.Op2Sel == Op2RS2 {
		s.Op2Src = c.forwardSource(in.Rs2, in)
	}

	if s.Row.RS2Oen {
		s.Rs2Src = c.forwardSource(in.Rs2, in)
	}
}

// forwardSource picks the nearest producer of reg. For each stage the
// ordinary destination match is checked before the stack-pointer match of a
// push/pop, because a pop that also names SP as its destination commits the
// loaded value last.
func (c *ControlUnit) forwardSource(reg uint8, in ControlInput) OperandSource {
	ex := &in.Regs.EX
	if ex.RFWen && reg != 0 && ex.Rd == reg {
		return SrcEX
	}
	if ex.RFWen && reg == insts.SP && ex.Stack != StackNone {
		return SrcEXSP
	}

	// A failed data access has already cleared the write enable here.
	mm := &in.Regs.MM
	if in.MM.RFWen && reg != 0 && mm.Rd == reg {
		return SrcMM
	}
	if in.MM.RFWen && reg == insts.SP {
		switch mm.Stack {
		case StackPush:
			return SrcMMPush
		case StackPop:
			return SrcMMPop
		}
	}

	wb := &in.Regs.WB
	if wb.RFWen && reg != 0 && wb.Rd == reg {
		return SrcWB
	}
	if wb.RFWen && reg == insts.SP {
		switch wb.Stack {
		case StackPush:
			return SrcWBPush
		case StackPop:
			return SrcWBPop
		}
	}

	return SrcRegFile
}

func (c *ControlUnit) resolveBranch(s *Signals, in ControlInput) {
	ex := &in.Regs.EX
	s.PCSel = pcSelect(ex.BrType, in.EX.ALUOut)

	if ex.IsBubble() {
		s.RightPredict = true
		s.Redirect = RedirectNone
		return
	}

	s.RightPredict = (s.PCSel == PCBrJmp && ex.PredictedTaken) ||
		(s.PCSel == PCPlus4 && !ex.PredictedTaken)
	s.Mispredict = !s.RightPredict

	switch {
	case s.PCSel == PCJalr:
		s.Redirect = RedirectJalr
	case s.RightPredict:
		s.Redirect = RedirectNone
	case ex.PredictedTaken:
		s.Redirect = RedirectFallthrough
	default:
		s.Redirect = RedirectBrJmp
	}
}

// pcSelect evaluates the branch truth table over the ALU result.
func pcSelect(br BrType, aluOut uint32) PCSel {
	zero := aluOut == 0

	switch br {
	case BrNE, BrGE, BrGEU:
		if zero {
			return PCBrJmp
		}
	case BrEQ, BrLT, BrLTU:
		if !zero {
			return PCBrJmp
		}
	case BrJ:
		return PCBrJmp
	case BrJR:
		return PCJalr
	}
	return PCPlus4
}

func (c *ControlUnit) detectHazards(s *Signals, in ControlInput) {
	ex := &in.Regs.EX

	// The instruction in Decode is voided on a misprediction, so a load-use
	// stall would only hold a dead instruction.
	if !s.Mispredict && ex.MemEn && ex.MemFcn == MemRead && ex.Rd != 0 {
		s.LoadUse = (ex.Rd == in.Rs1 && s.Row.RS1Oen) ||
			(ex.Rd == in.Rs2 && s.Row.RS2Oen)
	}

	s.IFStall = s.LoadUse
	s.IDStall = s.LoadUse
	s.IDBubble = s.Mispredict
	s.EXBubble = s.LoadUse || s.Mispredict

	s.Shadowed = in.MM.Exception != ExcNone || in.Regs.WB.Exception != ExcNone

	exExc := in.EX.In.Exception
	s.MMBubble = (exExc != ExcNone && exExc != ExcEBreak) || in.MM.Exception != ExcNone
}
