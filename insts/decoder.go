package insts

// Field extractors. All of them are total over 32-bit words.

// Opcode returns bits [6:0].
func Opcode(word uint32) uint32 { return word & 0x7F }

// Rd returns the destination register field, bits [11:7].
func Rd(word uint32) uint8 { return uint8((word >> 7) & 0x1F) }

// Rs1 returns the first source register field, bits [19:15].
func Rs1(word uint32) uint8 { return uint8((word >> 15) & 0x1F) }

// Rs2 returns the second source register field, bits [24:20].
func Rs2(word uint32) uint8 { return uint8((word >> 20) & 0x1F) }

// Funct3 returns bits [14:12].
func Funct3(word uint32) uint32 { return (word >> 12) & 0x7 }

// Funct7 returns bits [31:25].
func Funct7(word uint32) uint32 { return word >> 25 }

// ImmI returns the sign-extended I-type immediate.
func ImmI(word uint32) uint32 {
	return uint32(int32(word) >> 20)
}

// ImmS returns the sign-extended S-type immediate.
func ImmS(word uint32) uint32 {
	hi := uint32(int32(word)>>25) << 5
	lo := (word >> 7) & 0x1F
	return hi | lo
}

// ImmB returns the sign-extended B-type immediate. Bit 0 is always zero.
func ImmB(word uint32) uint32 {
	imm := uint32(int32(word)>>31) << 12
	imm |= ((word >> 7) & 0x1) << 11
	imm |= ((word >> 25) & 0x3F) << 5
	imm |= ((word >> 8) & 0xF) << 1
	return imm
}

// ImmU returns the U-type immediate with the low 12 bits cleared.
func ImmU(word uint32) uint32 {
	return word & 0xFFFFF000
}

// ImmJ returns the sign-extended J-type immediate. Bit 0 is always zero.
func ImmJ(word uint32) uint32 {
	imm := uint32(int32(word)>>31) << 20
	imm |= ((word >> 12) & 0xFF) << 12
	imm |= ((word >> 20) & 0x1) << 11
	imm |= ((word >> 21) & 0x3FF) << 1
	return imm
}

// Decoder decodes RV32 machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new RV32 instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit instruction word. Words that do not encode a
// supported operation come back with Op == OpIllegal.
func (d *Decoder) Decode(word uint32) *Instruction {
	inst := &Instruction{
		Op:   DecodeOp(word),
		Word: word,
	}

	inst.Format = formatOf(inst.Op)

	switch inst.Format {
	case FormatR:
		inst.Rd, inst.Rs1, inst.Rs2 = Rd(word), Rs1(word), Rs2(word)
	case FormatI:
		inst.Rd, inst.Rs1 = Rd(word), Rs1(word)
		inst.Imm = int32(ImmI(word))
		if inst.Op == OpSLLI || inst.Op == OpSRLI || inst.Op == OpSRAI {
			inst.Imm &= 0x1F
		}
	case FormatS:
		inst.Rs1, inst.Rs2 = Rs1(word), Rs2(word)
		inst.Imm = int32(ImmS(word))
	case FormatB:
		inst.Rs1, inst.Rs2 = Rs1(word), Rs2(word)
		inst.Imm = int32(ImmB(word))
	case FormatU:
		inst.Rd = Rd(word)
		inst.Imm = int32(ImmU(word))
	case FormatJ:
		inst.Rd = Rd(word)
		inst.Imm = int32(ImmJ(word))
	}

	// The stack extension keeps SP implicit in the encoding.
	switch inst.Op {
	case OpPUSH:
		inst.Rd, inst.Rs1, inst.Rs2 = SP, SP, Rs2(word)
		inst.Imm = 4
	case OpPOP:
		inst.Rd, inst.Rs1, inst.Rs2 = Rd(word), SP, 0
		inst.Imm = 4
	case OpECALL, OpEBREAK:
		inst.Rd, inst.Rs1 = 0, 0
		inst.Imm = 0
	}

	return inst
}

// DecodeOp classifies an instruction word.
func DecodeOp(word uint32) Op {
	f3 := Funct3(word)
	f7 := Funct7(word)

	switch Opcode(word) {
	case OpcodeLUI:
		return OpLUI
	case OpcodeAUIPC:
		return OpAUIPC
	case OpcodeJAL:
		return OpJAL
	case OpcodeJALR:
		if f3 == 0 {
			return OpJALR
		}
	case OpcodeBranch:
		return decodeBranch(f3)
	case OpcodeLoad:
		if f3 == 0x2 {
			return OpLW
		}
	case OpcodeStore:
		if f3 == 0x2 {
			return OpSW
		}
	case OpcodeOpImm:
		return decodeOpImm(f3, f7)
	case OpcodeOp:
		return decodeOp(f3, f7)
	case OpcodeSystem:
		switch word {
		case 0x00000073:
			return OpECALL
		case 0x00100073:
			return OpEBREAK
		}
	case OpcodeCustom:
		switch f3 {
		case 0x0:
			return OpPUSH
		case 0x1:
			return OpPOP
		}
	}

	return OpIllegal
}

func decodeBranch(f3 uint32) Op {
	switch f3 {
	case 0x0:
		return OpBEQ
	case 0x1:
		return OpBNE
	case 0x4:
		return OpBLT
	case 0x5:
		return OpBGE
	case 0x6:
		return OpBLTU
	case 0x7:
		return OpBGEU
	}
	return OpIllegal
}

func decodeOpImm(f3, f7 uint32) Op {
	switch f3 {
	case 0x0:
		return OpADDI
	case 0x2:
		return OpSLTI
	case 0x3:
		return OpSLTIU
	case 0x4:
		return OpXORI
	case 0x6:
		return OpORI
	case 0x7:
		return OpANDI
	case 0x1:
		if f7 == 0x00 {
			return OpSLLI
		}
	case 0x5:
		switch f7 {
		case 0x00:
			return OpSRLI
		case 0x20:
			return OpSRAI
		}
	}
	return OpIllegal
}

func decodeOp(f3, f7 uint32) Op {
	switch f7 {
	case 0x00:
		switch f3 {
		case 0x0:
			return OpADD
		case 0x1:
			return OpSLL
		case 0x2:
			return OpSLT
		case 0x3:
			return OpSLTU
		case 0x4:
			return OpXOR
		case 0x5:
			return OpSRL
		case 0x6:
			return OpOR
		case 0x7:
			return OpAND
		}
	case 0x20:
		switch f3 {
		case 0x0:
			return OpSUB
		case 0x5:
			return OpSRA
		}
	}
	return OpIllegal
}

func formatOf(op Op) Format {
	switch op {
	case OpADD, OpSUB, OpSLL, OpSLT, OpSLTU, OpXOR, OpSRL, OpSRA, OpOR, OpAND:
		return FormatR
	case OpJALR, OpLW, OpADDI, OpSLTI, OpSLTIU, OpXORI, OpORI, OpANDI,
		OpSLLI, OpSRLI, OpSRAI, OpECALL, OpEBREAK, OpPOP:
		return FormatI
	case OpSW, OpPUSH:
		return FormatS
	case OpBEQ, OpBNE, OpBLT, OpBGE, OpBLTU, OpBGEU:
		return FormatB
	case OpLUI, OpAUIPC:
		return FormatU
	case OpJAL:
		return FormatJ
	}
	return FormatUnknown
}
