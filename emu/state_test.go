package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/yanghyeonseo/ca-pa4/emu"
)

var _ = Describe("RegFile", func() {
	var rf *emu.RegFile

	BeforeEach(func() {
		rf = &emu.RegFile{}
	})

	It("should discard writes to x0", func() {
		rf.Write(0, 42)
		Expect(rf.Reg(0)).To(Equal(uint32(0)))
	})

	It("should read two registers at once", func() {
		rf.Write(1, 5)
		rf.Write(2, 7)

		v1, v2 := rf.Read(1, 2)
		Expect(v1).To(Equal(uint32(5)))
		Expect(v2).To(Equal(uint32(7)))
	})

	It("should commit both registers of a pair", func() {
		rf.WritePair(5, 0xAA, 2, 0x1004)

		Expect(rf.Reg(5)).To(Equal(uint32(0xAA)))
		Expect(rf.Reg(2)).To(Equal(uint32(0x1004)))
	})

	It("should let the destination win when a pair names one register twice", func() {
		rf.WritePair(2, 0xAA, 2, 0x1004)
		Expect(rf.Reg(2)).To(Equal(uint32(0xAA)))
	})
})

var _ = Describe("Memory", func() {
	var mem *emu.Memory

	BeforeEach(func() {
		mem = emu.NewMemory(0x1000, 0x100)
	})

	It("should succeed with zero on a disabled access", func() {
		v, ok := mem.Access(false, 0xDEAD, 0, emu.AccessRead)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(uint32(0)))
	})

	It("should write and read back a word", func() {
		_, ok := mem.Access(true, 0x1010, 0xCAFEBABE, emu.AccessWriteWord)
		Expect(ok).To(BeTrue())

		v, ok := mem.Access(true, 0x1010, 0, emu.AccessRead)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(uint32(0xCAFEBABE)))
	})

	It("should write a single byte little-endian", func() {
		mem.Access(true, 0x1011, 0x12345678, emu.AccessWriteByte)

		v, _ := mem.Word(0x1010)
		Expect(v).To(Equal(uint32(0x00007800)))
	})

	It("should fail out of range and misaligned word accesses", func() {
		_, ok := mem.Access(true, 0x0FFC, 0, emu.AccessRead)
		Expect(ok).To(BeFalse())

		_, ok = mem.Access(true, 0x1100, 0, emu.AccessRead)
		Expect(ok).To(BeFalse())

		_, ok = mem.Access(true, 0x1002, 1, emu.AccessWriteWord)
		Expect(ok).To(BeFalse())
	})

	It("should reject an image that does not fit", func() {
		err := mem.LoadWords(0x10F8, []uint32{1, 2, 3})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("ALU", func() {
	It("should compute arithmetic and logic", func() {
		Expect(emu.ALU(emu.ALUAdd, 3, 4)).To(Equal(uint32(7)))
		Expect(emu.ALU(emu.ALUSub, 3, 4)).To(Equal(uint32(0xFFFFFFFF)))
		Expect(emu.ALU(emu.ALUXor, 0xF0, 0xFF)).To(Equal(uint32(0x0F)))
		Expect(emu.ALU(emu.ALUX, 3, 4)).To(Equal(uint32(0)))
	})

	It("should distinguish signed and unsigned comparisons", func() {
		Expect(emu.ALU(emu.ALUSlt, 0xFFFFFFFF, 1)).To(Equal(uint32(1)))
		Expect(emu.ALU(emu.ALUSltu, 0xFFFFFFFF, 1)).To(Equal(uint32(0)))
		Expect(emu.ALU(emu.ALUSeq, 9, 9)).To(Equal(uint32(1)))
	})

	It("should mask shift amounts to five bits", func() {
		Expect(emu.ALU(emu.ALUSll, 1, 33)).To(Equal(uint32(2)))
		Expect(emu.ALU(emu.ALUSra, 0x80000000, 4)).To(Equal(uint32(0xF8000000)))
		Expect(emu.ALU(emu.ALUSrl, 0x80000000, 4)).To(Equal(uint32(0x08000000)))
	})
})
