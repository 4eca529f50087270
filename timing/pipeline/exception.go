package pipeline

import "strings"

// Exception is an accumulating set of fault bits attached to an instruction
// as it travels the pipeline. Bits are merged, never cleared, until the
// instruction is voided or reaches writeback.
type Exception uint8

// Exception bits.
const (
	ExcNone        Exception = 0
	ExcIMemError   Exception = 1 << 0
	ExcDMemError   Exception = 1 << 1
	ExcIllegalInst Exception = 1 << 2
	ExcEBreak      Exception = 1 << 3
)

// Has reports whether every bit of e2 is set in e.
func (e Exception) Has(e2 Exception) bool {
	return e&e2 == e2
}

// IsFault reports whether e carries anything other than a breakpoint.
func (e Exception) IsFault() bool {
	return e&^ExcEBreak != 0
}

func (e Exception) String() string {
	if e == ExcNone {
		return "none"
	}

	var parts []string
	if e.Has(ExcIMemError) {
		parts = append(parts, "imem-error")
	}
	if e.Has(ExcDMemError) {
		parts = append(parts, "dmem-error")
	}
	if e.Has(ExcIllegalInst) {
		parts = append(parts, "illegal-inst")
	}
	if e.Has(ExcEBreak) {
		parts = append(parts, "ebreak")
	}
	return strings.Join(parts, "|")
}
