package loader

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Image is the YAML program format:
//
//	entry: 0x80000000
//	segments:
//	  - address: 0x80000000
//	    exec: true
//	    words: [0x00500093, 0x00100073]
//	  - address: 0x80010000
//	    words: [1, 2, 3]
//	    reserve: 64
type Image struct {
	Entry    *uint32        `yaml:"entry,omitempty"`
	Segments []ImageSegment `yaml:"segments"`
}

// ImageSegment is one segment of an Image. Reserve extends the segment
// with zeroed bytes.
type ImageSegment struct {
	Address uint32   `yaml:"address"`
	Exec    bool     `yaml:"exec,omitempty"`
	Words   []uint32 `yaml:"words"`
	Reserve uint32   `yaml:"reserve,omitempty"`
}

// ParseImage decodes a YAML image. Without an explicit entry, execution
// starts at the first executable segment, or at base if there is none.
func ParseImage(data []byte, base uint32) (*Program, error) {
	var img Image
	if err := yaml.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	if len(img.Segments) == 0 {
		return nil, ErrEmptyProgram
	}

	prog := &Program{Entry: base}
	entrySet := false
	if img.Entry != nil {
		prog.Entry = *img.Entry
		entrySet = true
	}

	for i, s := range img.Segments {
		if s.Address%4 != 0 {
			return nil, fmt.Errorf("%w: segment %d address 0x%08x is not word aligned", ErrBadImage, i, s.Address)
		}

		seg := FromWords(s.Address, s.Words).Segments[0]
		seg.MemSize += s.Reserve
		seg.Flags = SegmentFlagRead | SegmentFlagWrite
		if s.Exec {
			seg.Flags = SegmentFlagRead | SegmentFlagExecute
			if !entrySet {
				prog.Entry = s.Address
				entrySet = true
			}
		}

		prog.Segments = append(prog.Segments, seg)
	}

	return prog, nil
}

// MarshalImage renders a program as a YAML image.
func MarshalImage(p *Program) ([]byte, error) {
	entry := p.Entry
	img := Image{Entry: &entry}

	for i := range p.Segments {
		seg := &p.Segments[i]
		if len(seg.Data)%4 != 0 {
			return nil, fmt.Errorf("%w: segment at 0x%08x is not a whole number of words", ErrBadImage, seg.Addr)
		}

		words := FromSegment(seg)
		img.Segments = append(img.Segments, ImageSegment{
			Address: seg.Addr,
			Exec:    seg.Executable(),
			Words:   words,
			Reserve: seg.MemSize - uint32(len(seg.Data)),
		})
	}

	return yaml.Marshal(&img)
}

// FromSegment returns the little-endian words of a segment's data.
func FromSegment(seg *Segment) []uint32 {
	words := make([]uint32, 0, len(seg.Data)/4)
	for off := 0; off+4 <= len(seg.Data); off += 4 {
		d := seg.Data[off:]
		words = append(words, uint32(d[0])|uint32(d[1])<<8|uint32(d[2])<<16|uint32(d[3])<<24)
	}
	return words
}

// ParseHex reads one hexadecimal instruction word per line. "#" starts a
// comment; blank lines are skipped. The words form one executable segment
// at base.
func ParseHex(r io.Reader, base uint32) (*Program, error) {
	var words []uint32

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++

		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		text = strings.TrimPrefix(strings.TrimPrefix(text, "0x"), "0X")
		w, err := strconv.ParseUint(text, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadImage, line, err)
		}
		words = append(words, uint32(w))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read hex program: %w", err)
	}

	if len(words) == 0 {
		return nil, ErrEmptyProgram
	}

	return FromWords(base, words), nil
}
