package pipeline

import (
	"github.com/yanghyeonseo/ca-pa4/emu"
	"github.com/yanghyeonseo/ca-pa4/insts"
)

// BrType classifies how an instruction may redirect the PC.
type BrType uint8

// Branch types.
const (
	BrN   BrType = iota // straight-line
	BrNE                // taken when the SEQ result is zero
	BrEQ                // taken when the SEQ result is non-zero
	BrGE                // taken when the SLT result is zero
	BrGEU               // taken when the SLTU result is zero
	BrLT                // taken when the SLT result is non-zero
	BrLTU               // taken when the SLTU result is non-zero
	BrJ                 // unconditional PC-relative jump
	BrJR                // indirect jump through rs1
)

// IsConditional reports whether the branch compares two registers.
func (b BrType) IsConditional() bool {
	return b >= BrNE && b <= BrLTU
}

// Op1Sel selects the first ALU operand.
type Op1Sel uint8

// Operand 1 selectors.
const (
	Op1X Op1Sel = iota
	Op1RS1
	Op1PC
)

// Op2Sel selects the second ALU operand.
type Op2Sel uint8

// Operand 2 selectors. Op2IMP is the fixed 4-byte stride of PUSH and POP.
const (
	Op2X Op2Sel = iota
	Op2RS2
	Op2IMI
	Op2IMS
	Op2IMB
	Op2IMU
	Op2IMJ
	Op2IMP
)

// WBSel selects the value written back to the register file.
type WBSel uint8

// Writeback selectors.
const (
	WBX WBSel = iota
	WBALU
	WBMem
	WBPC4
)

// MemFcn is the data memory function.
type MemFcn uint8

// Memory functions.
const (
	MemX MemFcn = iota
	MemRead
	MemWrite
)

// MemType is the data memory access width.
type MemType uint8

// Memory access widths.
const (
	MTX MemType = iota
	MTW
	MTB
)

// AccessMode maps a memory function and width onto the memory contract.
func AccessMode(fcn MemFcn, typ MemType) emu.AccessMode {
	switch fcn {
	case MemRead:
		return emu.AccessRead
	case MemWrite:
		if typ == MTB {
			return emu.AccessWriteByte
		}
		return emu.AccessWriteWord
	}
	return emu.AccessNone
}

// StackOp tags instructions of the push/pop extension.
type StackOp uint8

// Stack operations.
const (
	StackNone StackOp = iota
	StackPush
	StackPop
)

// ControlRow is the static control information of one operation.
type ControlRow struct {
	Valid   bool
	BrType  BrType
	Op1Sel  Op1Sel
	Op2Sel  Op2Sel
	RS1Oen  bool
	RS2Oen  bool
	ALUFun  emu.ALUFunc
	WBSel   WBSel
	RFWen   bool
	MemEn   bool
	MemFcn  MemFcn
	MemType MemType
}

// IsLoad reports whether the row reads data memory.
func (r ControlRow) IsLoad() bool {
	return r.MemEn && r.MemFcn == MemRead
}

func aluRow(fn emu.ALUFunc) ControlRow {
	return ControlRow{true, BrN, Op1RS1, Op2RS2, true, true, fn, WBALU, true, false, MemX, MTX}
}

func aluImmRow(fn emu.ALUFunc) ControlRow {
	return ControlRow{true, BrN, Op1RS1, Op2IMI, true, false, fn, WBALU, true, false, MemX, MTX}
}

func branchRow(br BrType, fn emu.ALUFunc) ControlRow {
	return ControlRow{true, br, Op1RS1, Op2IMB, true, true, fn, WBX, false, false, MemX, MTX}
}

// bubbleRow has every enable off.
var bubbleRow = ControlRow{}

// ControlFor returns the control row of an operation. OpIllegal maps to an
// invalid row with every enable off.
func ControlFor(op insts.Op) ControlRow {
	switch op {
	case insts.OpLW:
		return ControlRow{true, BrN, Op1RS1, Op2IMI, true, false, emu.ALUAdd, WBMem, true, true, MemRead, MTW}
	case insts.OpSW:
		return ControlRow{true, BrN, Op1RS1, Op2IMS, true, true, emu.ALUAdd, WBX, false, true, MemWrite, MTW}
	case insts.OpAUIPC:
		return ControlRow{true, BrN, Op1PC, Op2IMU, false, false, emu.ALUAdd, WBALU, true, false, MemX, MTX}
	case insts.OpLUI:
		return ControlRow{true, BrN, Op1X, Op2IMU, false, false, emu.ALUCopy2, WBALU, true, false, MemX, MTX}

	case insts.OpADDI:
		return aluImmRow(emu.ALUAdd)
	case insts.OpSLLI:
		return aluImmRow(emu.ALUSll)
	case insts.OpSLTI:
		return aluImmRow(emu.ALUSlt)
	case insts.OpSLTIU:
		return aluImmRow(emu.ALUSltu)
	case insts.OpXORI:
		return aluImmRow(emu.ALUXor)
	case insts.OpSRLI:
		return aluImmRow(emu.ALUSrl)
	case insts.OpSRAI:
		return aluImmRow(emu.ALUSra)
	case insts.OpORI:
		return aluImmRow(emu.ALUOr)
	case insts.OpANDI:
		return aluImmRow(emu.ALUAnd)

	case insts.OpADD:
		return aluRow(emu.ALUAdd)
	case insts.OpSUB:
		return aluRow(emu.ALUSub)
	case insts.OpSLL:
		return aluRow(emu.ALUSll)
	case insts.OpSLT:
		return aluRow(emu.ALUSlt)
	case insts.OpSLTU:
		return aluRow(emu.ALUSltu)
	case insts.OpXOR:
		return aluRow(emu.ALUXor)
	case insts.OpSRL:
		return aluRow(emu.ALUSrl)
	case insts.OpSRA:
		return aluRow(emu.ALUSra)
	case insts.OpOR:
		return aluRow(emu.ALUOr)
	case insts.OpAND:
		return aluRow(emu.ALUAnd)

	case insts.OpJALR:
		return ControlRow{true, BrJR, Op1RS1, Op2IMI, true, false, emu.ALUAdd, WBPC4, true, false, MemX, MTX}
	case insts.OpJAL:
		return ControlRow{true, BrJ, Op1X, Op2IMJ, false, false, emu.ALUX, WBPC4, true, false, MemX, MTX}

	case insts.OpBEQ:
		return branchRow(BrEQ, emu.ALUSeq)
	case insts.OpBNE:
		return branchRow(BrNE, emu.ALUSeq)
	case insts.OpBLT:
		return branchRow(BrLT, emu.ALUSlt)
	case insts.OpBGE:
		return branchRow(BrGE, emu.ALUSlt)
	case insts.OpBLTU:
		return branchRow(BrLTU, emu.ALUSltu)
	case insts.OpBGEU:
		return branchRow(BrGEU, emu.ALUSltu)

	case insts.OpECALL, insts.OpEBREAK:
		return ControlRow{Valid: true}

	case insts.OpPUSH:
		return ControlRow{true, BrN, Op1RS1, Op2IMP, true, true, emu.ALUSub, WBX, true, true, MemWrite, MTW}
	case insts.OpPOP:
		return ControlRow{true, BrN, Op1RS1, Op2IMP, true, false, emu.ALUAdd, WBMem, true, true, MemRead, MTW}

	case insts.OpIllegal:
		return bubbleRow
	}

	panic("pipeline: no control row for " + op.String())
}

// stackOpOf classifies an operation for the push/pop extension.
func stackOpOf(op insts.Op) StackOp {
	switch op {
	case insts.OpPUSH:
		return StackPush
	case insts.OpPOP:
		return StackPop
	}
	return StackNone
}
