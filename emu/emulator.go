package emu

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/yanghyeonseo/ca-pa4/insts"
)

// Errors reported by Step. They mirror the fault classes of the pipelined
// core so the two can be compared.
var (
	ErrIMemFault       = errors.New("instruction fetch fault")
	ErrDMemFault       = errors.New("data access fault")
	ErrIllegal         = errors.New("illegal instruction")
	ErrMaxInstructions = errors.New("max instructions reached")
)

// RegWrite records one architectural register write.
type RegWrite struct {
	Reg   uint8
	Value uint32
}

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// PC is the address of the executed instruction.
	PC uint32

	// Op is the executed operation.
	Op insts.Op

	// Halted is true if the instruction was ECALL or EBREAK.
	Halted bool

	// Err is set if the instruction faulted. A faulting instruction has no
	// architectural effect.
	Err error
}

// Emulator executes RV32 instructions one at a time with no pipeline. It is
// the reference the cycle-accurate core is checked against.
type Emulator struct {
	regFile *RegFile
	imem    *Memory
	dmem    *Memory
	decoder *insts.Decoder
	logger  hclog.Logger

	pc uint32

	writes           []RegWrite
	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithLogger sets the logger that receives one trace line per instruction.
func WithLogger(logger hclog.Logger) EmulatorOption {
	return func(e *Emulator) {
		e.logger = logger
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// NewEmulator creates an emulator over the given state.
func NewEmulator(regFile *RegFile, imem, dmem *Memory, opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		regFile: regFile,
		imem:    imem,
		dmem:    dmem,
		decoder: insts.NewDecoder(),
		logger:  hclog.NewNullLogger(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// PC returns the address of the next instruction.
func (e *Emulator) PC() uint32 {
	return e.pc
}

// SetPC sets the address of the next instruction.
func (e *Emulator) SetPC(pc uint32) {
	e.pc = pc
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// Writes returns every register write so far, in program order. Writes to
// x0 are not recorded.
func (e *Emulator) Writes() []RegWrite {
	return e.writes
}

// Step executes a single instruction.
func (e *Emulator) Step() StepResult {
	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{PC: e.pc, Err: ErrMaxInstructions}
	}

	result := StepResult{PC: e.pc}

	word, ok := e.imem.Access(true, e.pc, 0, AccessRead)
	if !ok {
		result.Err = fmt.Errorf("%w at 0x%08x", ErrIMemFault, e.pc)
		return result
	}

	inst := e.decoder.Decode(word)
	result.Op = inst.Op

	e.logger.Trace("execute", "pc", hclog.Fmt("0x%08x", e.pc), "inst", inst.String())

	if err := e.execute(inst, &result); err != nil {
		result.Err = err
		return result
	}

	e.instructionCount++
	return result
}

// Run executes instructions until ECALL/EBREAK or a fault.
func (e *Emulator) Run() StepResult {
	for {
		result := e.Step()
		if result.Halted || result.Err != nil {
			return result
		}
	}
}

func (e *Emulator) write(rd uint8, value uint32) {
	if rd == 0 {
		return
	}
	e.regFile.Write(rd, value)
	e.writes = append(e.writes, RegWrite{Reg: rd, Value: value})
}

func (e *Emulator) execute(inst *insts.Instruction, result *StepResult) error {
	pc := e.pc
	next := pc + 4
	rs1 := e.regFile.Reg(inst.Rs1)
	rs2 := e.regFile.Reg(inst.Rs2)
	imm := uint32(inst.Imm)

	switch inst.Op {
	case insts.OpIllegal:
		return fmt.Errorf("%w 0x%08x at 0x%08x", ErrIllegal, inst.Word, pc)

	case insts.OpLUI:
		e.write(inst.Rd, imm)
	case insts.OpAUIPC:
		e.write(inst.Rd, pc+imm)

	case insts.OpJAL:
		e.write(inst.Rd, next)
		next = pc + imm
	case insts.OpJALR:
		target := (rs1 + imm) &^ 1
		e.write(inst.Rd, next)
		next = target

	case insts.OpBEQ, insts.OpBNE, insts.OpBLT, insts.OpBGE, insts.OpBLTU, insts.OpBGEU:
		if branchTaken(inst.Op, rs1, rs2) {
			next = pc + imm
		}

	case insts.OpLW:
		v, ok := e.dmem.Access(true, rs1+imm, 0, AccessRead)
		if !ok {
			return fmt.Errorf("%w: lw 0x%08x at 0x%08x", ErrDMemFault, rs1+imm, pc)
		}
		e.write(inst.Rd, v)
	case insts.OpSW:
		if _, ok := e.dmem.Access(true, rs1+imm, rs2, AccessWriteWord); !ok {
			return fmt.Errorf("%w: sw 0x%08x at 0x%08x", ErrDMemFault, rs1+imm, pc)
		}

	case insts.OpPUSH:
		sp := rs1 - 4
		if _, ok := e.dmem.Access(true, sp, rs2, AccessWriteWord); !ok {
			return fmt.Errorf("%w: push 0x%08x at 0x%08x", ErrDMemFault, sp, pc)
		}
		e.write(insts.SP, sp)
	case insts.OpPOP:
		v, ok := e.dmem.Access(true, rs1, 0, AccessRead)
		if !ok {
			return fmt.Errorf("%w: pop 0x%08x at 0x%08x", ErrDMemFault, rs1, pc)
		}
		e.write(insts.SP, rs1+4)
		e.write(inst.Rd, v)

	case insts.OpECALL, insts.OpEBREAK:
		result.Halted = true

	default:
		e.write(inst.Rd, ALU(aluFuncOf(inst.Op), rs1, operand2(inst, rs2)))
	}

	e.pc = next
	return nil
}

func operand2(inst *insts.Instruction, rs2 uint32) uint32 {
	if inst.Format == insts.FormatR {
		return rs2
	}
	return uint32(inst.Imm)
}

func aluFuncOf(op insts.Op) ALUFunc {
	switch op {
	case insts.OpADD, insts.OpADDI:
		return ALUAdd
	case insts.OpSUB:
		return ALUSub
	case insts.OpAND, insts.OpANDI:
		return ALUAnd
	case insts.OpOR, insts.OpORI:
		return ALUOr
	case insts.OpXOR, insts.OpXORI:
		return ALUXor
	case insts.OpSLT, insts.OpSLTI:
		return ALUSlt
	case insts.OpSLTU, insts.OpSLTIU:
		return ALUSltu
	case insts.OpSLL, insts.OpSLLI:
		return ALUSll
	case insts.OpSRL, insts.OpSRLI:
		return ALUSrl
	case insts.OpSRA, insts.OpSRAI:
		return ALUSra
	}
	return ALUX
}

func branchTaken(op insts.Op, a, b uint32) bool {
	switch op {
	case insts.OpBEQ:
		return a == b
	case insts.OpBNE:
		return a != b
	case insts.OpBLT:
		return int32(a) < int32(b)
	case insts.OpBGE:
		return int32(a) >= int32(b)
	case insts.OpBLTU:
		return a < b
	case insts.OpBGEU:
		return a >= b
	}
	return false
}
