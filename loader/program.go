package loader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yanghyeonseo/ca-pa4/emu"
)

// Program is a loaded program ready to be installed into memory.
type Program struct {
	// Entry is the address where execution begins.
	Entry uint32
	// Segments contains every loadable segment.
	Segments []Segment
	// Source is the file the program came from, if any.
	Source string
}

// Words returns the instruction words of the executable segments in the
// order they appear.
func (p *Program) Words() []uint32 {
	var words []uint32
	for i := range p.Segments {
		seg := &p.Segments[i]
		if !seg.Executable() {
			continue
		}
		words = append(words, FromSegment(seg)...)
	}
	return words
}

// Install copies every segment into the memory that contains it. Code
// goes to imem when it fits there; anything else goes to whichever region
// holds it. The BSS tail of a segment is zeroed.
func (p *Program) Install(imem, dmem *emu.Memory) error {
	if len(p.Segments) == 0 {
		return ErrEmptyProgram
	}

	for i := range p.Segments {
		seg := &p.Segments[i]

		size := seg.MemSize
		if size < uint32(len(seg.Data)) {
			size = uint32(len(seg.Data))
		}

		mem := regionFor(seg, size, imem, dmem)
		if mem == nil {
			return fmt.Errorf("%w: [0x%08x, 0x%08x)", ErrSegmentRange, seg.Addr, uint64(seg.Addr)+uint64(size))
		}

		if err := mem.LoadBytes(seg.Addr, seg.Data); err != nil {
			return fmt.Errorf("failed to install segment at 0x%08x: %w", seg.Addr, err)
		}

		if bss := size - uint32(len(seg.Data)); bss > 0 {
			if err := mem.LoadBytes(seg.Addr+uint32(len(seg.Data)), make([]byte, bss)); err != nil {
				return fmt.Errorf("failed to clear bss at 0x%08x: %w", seg.Addr, err)
			}
		}
	}

	return nil
}

func regionFor(seg *Segment, size uint32, imem, dmem *emu.Memory) *emu.Memory {
	first, second := dmem, imem
	if seg.Executable() {
		first, second = imem, dmem
	}

	switch {
	case first.Contains(seg.Addr, size):
		return first
	case second.Contains(seg.Addr, size):
		return second
	}
	return nil
}

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// LoadFile loads a program, choosing the format from the file contents and
// extension: ELF by magic number, YAML images by .yaml/.yml, anything else
// as a hex word list placed at base.
func LoadFile(path string, base uint32) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program: %w", err)
	}

	var prog *Program
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case bytes.HasPrefix(data, elfMagic):
		prog, err = ReadELF(bytes.NewReader(data))
	case ext == ".yaml" || ext == ".yml":
		prog, err = ParseImage(data, base)
	default:
		prog, err = ParseHex(bytes.NewReader(data), base)
	}
	if err != nil {
		return nil, err
	}

	prog.Source = path
	return prog, nil
}

// FromWords builds a single executable segment at base.
func FromWords(base uint32, words []uint32) *Program {
	data := make([]byte, 4*len(words))
	for i, w := range words {
		data[4*i] = byte(w)
		data[4*i+1] = byte(w >> 8)
		data[4*i+2] = byte(w >> 16)
		data[4*i+3] = byte(w >> 24)
	}

	return &Program{
		Entry: base,
		Segments: []Segment{{
			Addr:    base,
			Data:    data,
			MemSize: uint32(len(data)),
			Flags:   SegmentFlagExecute | SegmentFlagRead,
		}},
	}
}
