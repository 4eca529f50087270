package insts

// Encoders build instruction words from fields. Benchmarks, the image
// loader and tests use them to construct programs without an assembler.

// EncodeR encodes an R-type instruction.
func EncodeR(opcode, funct3, funct7 uint32, rd, rs1, rs2 uint8) uint32 {
	return funct7<<25 | uint32(rs2&0x1F)<<20 | uint32(rs1&0x1F)<<15 |
		(funct3&0x7)<<12 | uint32(rd&0x1F)<<7 | (opcode & 0x7F)
}

// EncodeI encodes an I-type instruction. Only the low 12 bits of imm are used.
func EncodeI(opcode, funct3 uint32, rd, rs1 uint8, imm int32) uint32 {
	return (uint32(imm)&0xFFF)<<20 | uint32(rs1&0x1F)<<15 |
		(funct3&0x7)<<12 | uint32(rd&0x1F)<<7 | (opcode & 0x7F)
}

// EncodeS encodes an S-type instruction.
func EncodeS(opcode, funct3 uint32, rs1, rs2 uint8, imm int32) uint32 {
	u := uint32(imm)
	return ((u>>5)&0x7F)<<25 | uint32(rs2&0x1F)<<20 | uint32(rs1&0x1F)<<15 |
		(funct3&0x7)<<12 | (u&0x1F)<<7 | (opcode & 0x7F)
}

// EncodeB encodes a B-type instruction. offset is a byte offset and must be even.
func EncodeB(funct3 uint32, rs1, rs2 uint8, offset int32) uint32 {
	u := uint32(offset)
	return ((u>>12)&0x1)<<31 | ((u>>5)&0x3F)<<25 | uint32(rs2&0x1F)<<20 |
		uint32(rs1&0x1F)<<15 | (funct3&0x7)<<12 | ((u>>1)&0xF)<<8 |
		((u>>11)&0x1)<<7 | OpcodeBranch
}

// EncodeU encodes a U-type instruction. imm holds the upper 20 bits already
// shifted into place.
func EncodeU(opcode uint32, rd uint8, imm uint32) uint32 {
	return (imm & 0xFFFFF000) | uint32(rd&0x1F)<<7 | (opcode & 0x7F)
}

// EncodeJ encodes a JAL instruction with the given byte offset.
func EncodeJ(rd uint8, offset int32) uint32 {
	u := uint32(offset)
	return ((u>>20)&0x1)<<31 | ((u>>1)&0x3FF)<<21 | ((u>>11)&0x1)<<20 |
		((u>>12)&0xFF)<<12 | uint32(rd&0x1F)<<7 | OpcodeJAL
}

// Mnemonic helpers.

func LUI(rd uint8, imm uint32) uint32   { return EncodeU(OpcodeLUI, rd, imm) }
func AUIPC(rd uint8, imm uint32) uint32 { return EncodeU(OpcodeAUIPC, rd, imm) }
func JAL(rd uint8, offset int32) uint32 { return EncodeJ(rd, offset) }

func JALR(rd, rs1 uint8, imm int32) uint32 { return EncodeI(OpcodeJALR, 0x0, rd, rs1, imm) }

func BEQ(rs1, rs2 uint8, offset int32) uint32  { return EncodeB(0x0, rs1, rs2, offset) }
func BNE(rs1, rs2 uint8, offset int32) uint32  { return EncodeB(0x1, rs1, rs2, offset) }
func BLT(rs1, rs2 uint8, offset int32) uint32  { return EncodeB(0x4, rs1, rs2, offset) }
func BGE(rs1, rs2 uint8, offset int32) uint32  { return EncodeB(0x5, rs1, rs2, offset) }
func BLTU(rs1, rs2 uint8, offset int32) uint32 { return EncodeB(0x6, rs1, rs2, offset) }
func BGEU(rs1, rs2 uint8, offset int32) uint32 { return EncodeB(0x7, rs1, rs2, offset) }

func LW(rd, rs1 uint8, imm int32) uint32  { return EncodeI(OpcodeLoad, 0x2, rd, rs1, imm) }
func SW(rs2, rs1 uint8, imm int32) uint32 { return EncodeS(OpcodeStore, 0x2, rs1, rs2, imm) }

func ADDI(rd, rs1 uint8, imm int32) uint32  { return EncodeI(OpcodeOpImm, 0x0, rd, rs1, imm) }
func SLTI(rd, rs1 uint8, imm int32) uint32  { return EncodeI(OpcodeOpImm, 0x2, rd, rs1, imm) }
func SLTIU(rd, rs1 uint8, imm int32) uint32 { return EncodeI(OpcodeOpImm, 0x3, rd, rs1, imm) }
func XORI(rd, rs1 uint8, imm int32) uint32  { return EncodeI(OpcodeOpImm, 0x4, rd, rs1, imm) }
func ORI(rd, rs1 uint8, imm int32) uint32   { return EncodeI(OpcodeOpImm, 0x6, rd, rs1, imm) }
func ANDI(rd, rs1 uint8, imm int32) uint32  { return EncodeI(OpcodeOpImm, 0x7, rd, rs1, imm) }

func SLLI(rd, rs1, shamt uint8) uint32 {
	return EncodeI(OpcodeOpImm, 0x1, rd, rs1, int32(shamt&0x1F))
}

func SRLI(rd, rs1, shamt uint8) uint32 {
	return EncodeI(OpcodeOpImm, 0x5, rd, rs1, int32(shamt&0x1F))
}

func SRAI(rd, rs1, shamt uint8) uint32 {
	return EncodeI(OpcodeOpImm, 0x5, rd, rs1, int32(0x400|uint32(shamt&0x1F)))
}

func ADD(rd, rs1, rs2 uint8) uint32  { return EncodeR(OpcodeOp, 0x0, 0x00, rd, rs1, rs2) }
func SUB(rd, rs1, rs2 uint8) uint32  { return EncodeR(OpcodeOp, 0x0, 0x20, rd, rs1, rs2) }
func SLL(rd, rs1, rs2 uint8) uint32  { return EncodeR(OpcodeOp, 0x1, 0x00, rd, rs1, rs2) }
func SLT(rd, rs1, rs2 uint8) uint32  { return EncodeR(OpcodeOp, 0x2, 0x00, rd, rs1, rs2) }
func SLTU(rd, rs1, rs2 uint8) uint32 { return EncodeR(OpcodeOp, 0x3, 0x00, rd, rs1, rs2) }
func XOR(rd, rs1, rs2 uint8) uint32  { return EncodeR(OpcodeOp, 0x4, 0x00, rd, rs1, rs2) }
func SRL(rd, rs1, rs2 uint8) uint32  { return EncodeR(OpcodeOp, 0x5, 0x00, rd, rs1, rs2) }
func SRA(rd, rs1, rs2 uint8) uint32  { return EncodeR(OpcodeOp, 0x5, 0x20, rd, rs1, rs2) }
func OR(rd, rs1, rs2 uint8) uint32   { return EncodeR(OpcodeOp, 0x6, 0x00, rd, rs1, rs2) }
func AND(rd, rs1, rs2 uint8) uint32  { return EncodeR(OpcodeOp, 0x7, 0x00, rd, rs1, rs2) }

// ECALL and EBREAK are fixed words.
const (
	ECALL  uint32 = 0x00000073
	EBREAK uint32 = 0x00100073
	NOP    uint32 = 0x00000013
)

// PUSH encodes "push rs2": SP -= 4; M[SP] = rs2.
func PUSH(rs2 uint8) uint32 { return EncodeS(OpcodeCustom, 0x0, SP, rs2, 0) }

// POP encodes "pop rd": rd = M[SP]; SP += 4.
func POP(rd uint8) uint32 { return EncodeI(OpcodeCustom, 0x1, rd, SP, 0) }
