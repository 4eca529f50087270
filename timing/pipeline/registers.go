// Package pipeline provides the 5-stage pipelined RV32 core.
//
// Every cycle runs in two phases. In the compute phase each stage reads its
// own latched pipeline register and produces a transient result; the control
// unit runs inside decode. In the commit phase each stage writes its
// successor's register, execute updates the BTB and writeback updates the
// register file. Latched state lives in the *Register types below; values
// that are only visible within one compute phase live in the *Result types
// in stages.go.
package pipeline

import (
	"github.com/yanghyeonseo/ca-pa4/emu"
	"github.com/yanghyeonseo/ca-pa4/insts"
)

// PCRegister is the fetch stage's latched program counter.
type PCRegister struct {
	PC uint32
}

// IFIDRegister holds state between Fetch and Decode stages.
type IFIDRegister struct {
	// PC is the program counter of the fetched instruction.
	PC uint32

	// Inst is the raw instruction word, or insts.Bubble.
	Inst uint32

	// Exception accumulates fault bits raised so far.
	Exception Exception

	// PCPlus4 is PC + 4 computed by the fetch adder.
	PCPlus4 uint32

	// PredictedTaken is true if fetch followed a BTB prediction for PC.
	PredictedTaken bool
}

// Clear turns the register into a bubble while keeping its PC.
func (r *IFIDRegister) Clear() {
	r.Inst = insts.Bubble
	r.Exception = ExcNone
	r.PCPlus4 = 0
	r.PredictedTaken = false
}

// IDEXRegister holds state between Decode and Execute stages.
type IDEXRegister struct {
	PC        uint32
	Inst      uint32
	Exception Exception

	// Rd is the destination register.
	Rd uint8

	// Resolved operands. Op1Data and Op2Data feed the ALU; Rs2Data is the
	// forwarded rs2 value carried for stores and branch comparisons.
	Op1Data uint32
	Op2Data uint32
	Rs2Data uint32

	// Control signals copied from the control row.
	BrType  BrType
	ALUFun  emu.ALUFunc
	WBSel   WBSel
	RFWen   bool
	MemEn   bool
	MemFcn  MemFcn
	MemType MemType

	PCPlus4 uint32

	// Stack tags push/pop. SPData is the stack pointer before adjustment.
	Stack  StackOp
	SPData uint32

	// PredictedTaken is the BTB prediction carried from fetch.
	PredictedTaken bool
}

// Clear turns the register into a bubble while keeping its PC.
func (r *IDEXRegister) Clear() {
	r.Inst = insts.Bubble
	r.Exception = ExcNone
	r.BrType = BrN
	r.RFWen = false
	r.MemEn = false
	r.Stack = StackNone
	r.PredictedTaken = false
}

// IsBubble reports whether the register holds no instruction.
func (r *IDEXRegister) IsBubble() bool {
	return r.Inst == insts.Bubble
}

// EXMMRegister holds state between Execute and Memory stages.
type EXMMRegister struct {
	PC        uint32
	Inst      uint32
	Exception Exception

	Rd      uint8
	ALUOut  uint32
	Rs2Data uint32

	WBSel   WBSel
	RFWen   bool
	MemEn   bool
	MemFcn  MemFcn
	MemType MemType

	// Stack tags push/pop. SPData is the pre-adjustment stack pointer (the
	// address POP reads) and SPNext the adjusted one.
	Stack  StackOp
	SPData uint32
	SPNext uint32
}

// Clear turns the register into a bubble. PC and Exception are kept so an
// exception voided here is still reported.
func (r *EXMMRegister) Clear() {
	r.Inst = insts.Bubble
	r.RFWen = false
	r.MemEn = false
	r.Stack = StackNone
}

// MMWBRegister holds state between Memory and Writeback stages.
type MMWBRegister struct {
	PC        uint32
	Inst      uint32
	Exception Exception

	Rd     uint8
	RFWen  bool
	WBData uint32

	Stack  StackOp
	SPNext uint32
}

// Registers is the complete latched state of the pipeline.
type Registers struct {
	IF PCRegister
	ID IFIDRegister
	EX IDEXRegister
	MM EXMMRegister
	WB MMWBRegister
}

// resetRegisters returns the power-on state: every stage holds a bubble.
func resetRegisters(pc uint32) Registers {
	return Registers{
		IF: PCRegister{PC: pc},
		ID: IFIDRegister{Inst: insts.Bubble},
		EX: IDEXRegister{Inst: insts.Bubble},
		MM: EXMMRegister{Inst: insts.Bubble},
		WB: MMWBRegister{Inst: insts.Bubble},
	}
}
