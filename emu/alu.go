package emu

// ALUFunc selects an ALU operation.
type ALUFunc uint8

// ALU operations. ALUX means "don't care" and produces zero.
const (
	ALUX ALUFunc = iota
	ALUAdd
	ALUSub
	ALUAnd
	ALUOr
	ALUXor
	ALUSlt
	ALUSltu
	ALUSll
	ALUSrl
	ALUSra
	ALUCopy1
	ALUCopy2
	ALUSeq
)

var aluNames = [...]string{
	ALUX:     "x",
	ALUAdd:   "add",
	ALUSub:   "sub",
	ALUAnd:   "and",
	ALUOr:    "or",
	ALUXor:   "xor",
	ALUSlt:   "slt",
	ALUSltu:  "sltu",
	ALUSll:   "sll",
	ALUSrl:   "srl",
	ALUSra:   "sra",
	ALUCopy1: "copy1",
	ALUCopy2: "copy2",
	ALUSeq:   "seq",
}

func (f ALUFunc) String() string {
	if int(f) < len(aluNames) {
		return aluNames[f]
	}
	return "unknown"
}

// ALU computes fn(a, b). Shift amounts use the low five bits of b.
func ALU(fn ALUFunc, a, b uint32) uint32 {
	switch fn {
	case ALUAdd:
		return a + b
	case ALUSub:
		return a - b
	case ALUAnd:
		return a & b
	case ALUOr:
		return a | b
	case ALUXor:
		return a ^ b
	case ALUSlt:
		return boolWord(int32(a) < int32(b))
	case ALUSltu:
		return boolWord(a < b)
	case ALUSll:
		return a << (b & 0x1F)
	case ALUSrl:
		return a >> (b & 0x1F)
	case ALUSra:
		return uint32(int32(a) >> (b & 0x1F))
	case ALUCopy1:
		return a
	case ALUCopy2:
		return b
	case ALUSeq:
		return boolWord(a == b)
	}
	return 0
}

// Adder is the standalone adder used for branch targets.
func Adder(a, b uint32) uint32 {
	return a + b
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
