package loader_test

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/yanghyeonseo/ca-pa4/insts"
	"github.com/yanghyeonseo/ca-pa4/loader"
)

type testSegment struct {
	typ   elf.ProgType
	vaddr uint32
	data  []byte
	memsz uint32
	flags elf.ProgFlag
}

type elfSpec struct {
	machine elf.Machine
	order   binary.ByteOrder
	entry   uint32
	segs    []testSegment
}

const (
	ehdrSize = 52
	phdrSize = 32
)

// buildELF32 lays out an ELF32 header, the program headers and then each
// segment's bytes in order.
func buildELF32(s elfSpec) []byte {
	order := s.order
	if order == nil {
		order = binary.LittleEndian
	}

	dataClass := byte(elf.ELFDATA2LSB)
	if order == binary.BigEndian {
		dataClass = byte(elf.ELFDATA2MSB)
	}

	buf := make([]byte, ehdrSize+phdrSize*len(s.segs))
	copy(buf, []byte{0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS32), dataClass, byte(elf.EV_CURRENT)})
	order.PutUint16(buf[16:], uint16(elf.ET_EXEC))
	order.PutUint16(buf[18:], uint16(s.machine))
	order.PutUint32(buf[20:], uint32(elf.EV_CURRENT))
	order.PutUint32(buf[24:], s.entry)
	order.PutUint32(buf[28:], ehdrSize)
	order.PutUint16(buf[40:], ehdrSize)
	order.PutUint16(buf[42:], phdrSize)
	order.PutUint16(buf[44:], uint16(len(s.segs)))

	offset := uint32(len(buf))
	for i, seg := range s.segs {
		ph := buf[ehdrSize+phdrSize*i:]
		memsz := seg.memsz
		if memsz == 0 {
			memsz = uint32(len(seg.data))
		}
		order.PutUint32(ph[0:], uint32(seg.typ))
		order.PutUint32(ph[4:], offset)
		order.PutUint32(ph[8:], seg.vaddr)
		order.PutUint32(ph[12:], seg.vaddr)
		order.PutUint32(ph[16:], uint32(len(seg.data)))
		order.PutUint32(ph[20:], memsz)
		order.PutUint32(ph[24:], uint32(seg.flags))
		order.PutUint32(ph[28:], 4)
		offset += uint32(len(seg.data))
	}

	for _, seg := range s.segs {
		buf = append(buf, seg.data...)
	}

	return buf
}

func wordBytes(words ...uint32) []byte {
	b := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[4*i:], w)
	}
	return b
}

var _ = Describe("ELF Loader", func() {
	var tempDir string

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
	})

	writeFile := func(name string, data []byte) string {
		path := filepath.Join(tempDir, name)
		Expect(os.WriteFile(path, data, 0o644)).To(Succeed())
		return path
	}

	Context("with a valid RV32 executable", func() {
		var image []byte

		BeforeEach(func() {
			image = buildELF32(elfSpec{
				machine: elf.EM_RISCV,
				entry:   0x80000000,
				segs: []testSegment{
					{
						typ:   elf.PT_LOAD,
						vaddr: 0x80000000,
						data:  wordBytes(insts.ADDI(1, 0, 5), insts.EBREAK),
						flags: elf.PF_R | elf.PF_X,
					},
					{
						typ:   elf.PT_LOAD,
						vaddr: 0x80010000,
						data:  wordBytes(0xdeadbeef),
						memsz: 16,
						flags: elf.PF_R | elf.PF_W,
					},
				},
			})
		})

		It("should read the entry point and segments", func() {
			prog, err := loader.ReadELF(bytes.NewReader(image))
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Entry).To(Equal(uint32(0x80000000)))
			Expect(prog.Segments).To(HaveLen(2))

			text := prog.Segments[0]
			Expect(text.Addr).To(Equal(uint32(0x80000000)))
			Expect(text.Executable()).To(BeTrue())
			Expect(text.Flags & loader.SegmentFlagWrite).To(BeZero())

			data := prog.Segments[1]
			Expect(data.Executable()).To(BeFalse())
			Expect(data.Flags & loader.SegmentFlagWrite).NotTo(BeZero())
			Expect(data.Data).To(HaveLen(4))
			Expect(data.MemSize).To(Equal(uint32(16)))
		})

		It("should list the instruction words", func() {
			prog, err := loader.ReadELF(bytes.NewReader(image))
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Words()).To(Equal([]uint32{insts.ADDI(1, 0, 5), insts.EBREAK}))
		})

		It("should load from a file and record the source", func() {
			path := writeFile("prog.elf", image)

			prog, err := loader.LoadELF(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Source).To(Equal(path))
			Expect(prog.Segments).To(HaveLen(2))
		})

		It("should be detected by LoadFile regardless of extension", func() {
			path := writeFile("prog.bin", image)

			prog, err := loader.LoadFile(path, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Entry).To(Equal(uint32(0x80000000)))
			Expect(prog.Source).To(Equal(path))
		})
	})

	It("should skip non-loadable program headers", func() {
		image := buildELF32(elfSpec{
			machine: elf.EM_RISCV,
			entry:   0x80000000,
			segs: []testSegment{
				{typ: elf.PT_NOTE, vaddr: 0, data: []byte{1, 2, 3, 4}},
				{typ: elf.PT_LOAD, vaddr: 0x80000000, data: wordBytes(insts.EBREAK), flags: elf.PF_R | elf.PF_X},
			},
		})

		prog, err := loader.ReadELF(bytes.NewReader(image))
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Segments).To(HaveLen(1))
	})

	It("should accept a segment with no file contents", func() {
		image := buildELF32(elfSpec{
			machine: elf.EM_RISCV,
			segs: []testSegment{
				{typ: elf.PT_LOAD, vaddr: 0x80010000, memsz: 64, flags: elf.PF_R | elf.PF_W},
			},
		})

		prog, err := loader.ReadELF(bytes.NewReader(image))
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Segments[0].Data).To(BeEmpty())
		Expect(prog.Segments[0].MemSize).To(Equal(uint32(64)))
	})

	It("should reject a non-RISC-V machine", func() {
		image := buildELF32(elfSpec{
			machine: elf.EM_ARM,
			segs: []testSegment{
				{typ: elf.PT_LOAD, vaddr: 0x80000000, data: wordBytes(0), flags: elf.PF_X},
			},
		})

		_, err := loader.ReadELF(bytes.NewReader(image))
		Expect(err).To(MatchError(loader.ErrNotRV32))
	})

	It("should reject a big-endian file", func() {
		image := buildELF32(elfSpec{
			machine: elf.EM_RISCV,
			order:   binary.BigEndian,
			segs: []testSegment{
				{typ: elf.PT_LOAD, vaddr: 0x80000000, data: wordBytes(0), flags: elf.PF_X},
			},
		})

		_, err := loader.ReadELF(bytes.NewReader(image))
		Expect(err).To(MatchError(loader.ErrNotRV32))
	})

	It("should fail on a missing file", func() {
		_, err := loader.LoadELF(filepath.Join(tempDir, "missing.elf"))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("failed to open ELF file"))
	})

	It("should fail on garbage", func() {
		_, err := loader.ReadELF(bytes.NewReader([]byte("not an elf")))
		Expect(err).To(HaveOccurred())
	})
})
