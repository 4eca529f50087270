package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yanghyeonseo/ca-pa4/emu"
	"github.com/yanghyeonseo/ca-pa4/insts"
	"github.com/yanghyeonseo/ca-pa4/trace"
)

func newEmulateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "emulate <program>",
		Short: "Run a program on the non-pipelined reference emulator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := a.loadProgram(args[0])
			if err != nil {
				return err
			}

			mem := a.cfg.Memory
			regFile := &emu.RegFile{}
			imem := emu.NewMemory(mem.IMemBase, mem.IMemSize)
			dmem := emu.NewMemory(mem.DMemBase, mem.DMemSize)
			if err := prog.Install(imem, dmem); err != nil {
				return err
			}
			regFile.Write(insts.SP, a.cfg.InitialSP())

			e := emu.NewEmulator(regFile, imem, dmem,
				emu.WithLogger(a.logger.Named("emu")),
				emu.WithMaxInstructions(a.cfg.MaxCycles),
			)
			e.SetPC(prog.Entry)

			res := e.Run()

			level := trace.Level(a.cfg.Trace.Level)
			if level >= trace.LevelRegs {
				_, _ = fmt.Fprint(a.out, regFile.Dump())
			}
			if level >= trace.LevelSummary {
				_, _ = fmt.Fprintln(a.out, emulationMessage(res))
				_, _ = fmt.Fprintf(a.out, "%d instructions executed\n", e.InstructionCount())
			}

			return nil
		},
	}
}

func emulationMessage(res emu.StepResult) string {
	switch {
	case res.Err == nil:
		return fmt.Sprintf("Execution completed by %s at 0x%08x", res.Op, res.PC)
	case errors.Is(res.Err, emu.ErrMaxInstructions):
		return fmt.Sprintf("Instruction limit reached (pc 0x%08x)", res.PC)
	}
	return fmt.Sprintf("Exception: %v", res.Err)
}
