package insts

import "fmt"

// Disassemble renders an instruction word in assembler syntax. The bubble
// sentinel renders as "bubble" so traces can tell it apart from a real xor.
func Disassemble(word uint32) string {
	if word == Bubble {
		return "bubble"
	}
	return NewDecoder().Decode(word).String()
}

// String renders the decoded instruction in assembler syntax.
func (i *Instruction) String() string {
	switch i.Op {
	case OpIllegal:
		return fmt.Sprintf("illegal 0x%08x", i.Word)
	case OpECALL, OpEBREAK:
		return i.Op.String()
	case OpPUSH:
		return fmt.Sprintf("push x%d", i.Rs2)
	case OpPOP:
		return fmt.Sprintf("pop x%d", i.Rd)
	case OpLW:
		return fmt.Sprintf("lw x%d, %d(x%d)", i.Rd, i.Imm, i.Rs1)
	case OpJALR:
		return fmt.Sprintf("jalr x%d, %d(x%d)", i.Rd, i.Imm, i.Rs1)
	case OpSW:
		return fmt.Sprintf("sw x%d, %d(x%d)", i.Rs2, i.Imm, i.Rs1)
	}

	switch i.Format {
	case FormatR:
		return fmt.Sprintf("%s x%d, x%d, x%d", i.Op, i.Rd, i.Rs1, i.Rs2)
	case FormatI:
		return fmt.Sprintf("%s x%d, x%d, %d", i.Op, i.Rd, i.Rs1, i.Imm)
	case FormatB:
		return fmt.Sprintf("%s x%d, x%d, %d", i.Op, i.Rs1, i.Rs2, i.Imm)
	case FormatU:
		return fmt.Sprintf("%s x%d, 0x%x", i.Op, i.Rd, uint32(i.Imm)>>12)
	case FormatJ:
		return fmt.Sprintf("%s x%d, %d", i.Op, i.Rd, i.Imm)
	}

	return fmt.Sprintf("0x%08x", i.Word)
}
