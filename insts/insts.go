// Package insts provides RV32I instruction definitions and decoding.
//
// This package turns 32-bit RISC-V machine words into structured
// instruction representations. It covers:
//   - RV32I integer computation: OP and OP-IMM, LUI, AUIPC
//   - Control transfer: JAL, JALR, BEQ/BNE/BLT/BGE/BLTU/BGEU
//   - Memory: LW, SW
//   - System: ECALL, EBREAK
//   - Stack extension on the custom-0 opcode: PUSH, POP
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(0x00500093) // addi x1, x0, 5
//	fmt.Printf("Op: %v, Rd: %d, Rs1: %d, Imm: %d\n", inst.Op, inst.Rd, inst.Rs1, inst.Imm)
package insts

// Op represents an RV32 operation.
type Op uint8

// Operations. OpIllegal is the zero value so an undecodable word never
// masquerades as a real instruction.
const (
	OpIllegal Op = iota
	OpLUI
	OpAUIPC
	OpJAL
	OpJALR
	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU
	OpLW
	OpSW
	OpADDI
	OpSLTI
	OpSLTIU
	OpXORI
	OpORI
	OpANDI
	OpSLLI
	OpSRLI
	OpSRAI
	OpADD
	OpSUB
	OpSLL
	OpSLT
	OpSLTU
	OpXOR
	OpSRL
	OpSRA
	OpOR
	OpAND
	OpECALL
	OpEBREAK
	OpPUSH
	OpPOP

	numOps
)

// AllOps lists every operation including OpIllegal, in enumeration order.
func AllOps() []Op {
	ops := make([]Op, 0, numOps)
	for op := OpIllegal; op < numOps; op++ {
		ops = append(ops, op)
	}
	return ops
}

var opNames = [numOps]string{
	OpIllegal: "illegal",
	OpLUI:     "lui",
	OpAUIPC:   "auipc",
	OpJAL:     "jal",
	OpJALR:    "jalr",
	OpBEQ:     "beq",
	OpBNE:     "bne",
	OpBLT:     "blt",
	OpBGE:     "bge",
	OpBLTU:    "bltu",
	OpBGEU:    "bgeu",
	OpLW:      "lw",
	OpSW:      "sw",
	OpADDI:    "addi",
	OpSLTI:    "slti",
	OpSLTIU:   "sltiu",
	OpXORI:    "xori",
	OpORI:     "ori",
	OpANDI:    "andi",
	OpSLLI:    "slli",
	OpSRLI:    "srli",
	OpSRAI:    "srai",
	OpADD:     "add",
	OpSUB:     "sub",
	OpSLL:     "sll",
	OpSLT:     "slt",
	OpSLTU:    "sltu",
	OpXOR:     "xor",
	OpSRL:     "srl",
	OpSRA:     "sra",
	OpOR:      "or",
	OpAND:     "and",
	OpECALL:   "ecall",
	OpEBREAK:  "ebreak",
	OpPUSH:    "push",
	OpPOP:     "pop",
}

// String returns the assembler mnemonic of the operation.
func (op Op) String() string {
	if op >= numOps {
		return "unknown"
	}
	return opNames[op]
}

// IsBranch reports whether the operation is a conditional branch.
func (op Op) IsBranch() bool {
	return op >= OpBEQ && op <= OpBGEU
}

// IsStack reports whether the operation belongs to the push/pop extension.
func (op Op) IsStack() bool {
	return op == OpPUSH || op == OpPOP
}

// Format represents an instruction encoding format.
type Format uint8

// Instruction formats.
const (
	FormatUnknown Format = iota
	FormatR
	FormatI
	FormatS
	FormatB
	FormatU
	FormatJ
)

// Major opcodes (bits [6:0]).
const (
	OpcodeLoad   uint32 = 0x03
	OpcodeCustom uint32 = 0x0B
	OpcodeOpImm  uint32 = 0x13
	OpcodeAUIPC  uint32 = 0x17
	OpcodeStore  uint32 = 0x23
	OpcodeOp     uint32 = 0x33
	OpcodeLUI    uint32 = 0x37
	OpcodeBranch uint32 = 0x63
	OpcodeJALR   uint32 = 0x67
	OpcodeJAL    uint32 = 0x6F
	OpcodeSystem uint32 = 0x73
)

// Bubble is the instruction word that stands for "no operation" inside the
// pipeline: xor x0, x0, x0.
const Bubble uint32 = 0x00004033

// SP is the stack pointer register number.
const SP uint8 = 2

// Instruction represents a decoded RV32 instruction.
type Instruction struct {
	Op     Op
	Format Format
	Word   uint32

	// Register operands. Unused fields are zero.
	Rd  uint8
	Rs1 uint8
	Rs2 uint8

	// Imm is the sign-extended immediate selected by the format.
	Imm int32
}
