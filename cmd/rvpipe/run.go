package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		watch      bool
		cpuProfile string
		memProfile string
	)

	cmd := &cobra.Command{
		Use:   "run <program>",
		Short: "Run a program on the pipelined core",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stopCPU, err := startCPUProfile(cpuProfile)
			if err != nil {
				return err
			}
			defer stopCPU()

			if watch {
				err = a.watch(cmd.Context(), args[0], a.runOnce)
			} else {
				err = a.runOnce(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}

			return writeMemProfile(memProfile)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "rerun when the program or config file changes")
	cmd.Flags().StringVar(&cpuProfile, "cpuprofile", "", "write cpu profile to file")
	cmd.Flags().StringVar(&memProfile, "memprofile", "", "write memory profile to file")

	return cmd
}

func (a *app) runOnce(ctx context.Context, path string) error {
	c, err := a.newCore(path)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	res, err := c.Run(ctx)
	if err != nil {
		return err
	}

	c.Report(a.out, res)
	return nil
}

func startCPUProfile(path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create cpu profile: %w", err)
	}

	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to start cpu profile: %w", err)
	}

	return func() {
		pprof.StopCPUProfile()
		_ = f.Close()
	}, nil
}

func writeMemProfile(path string) error {
	if path == "" {
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create memory profile: %w", err)
	}
	defer func() { _ = f.Close() }()

	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("failed to write memory profile: %w", err)
	}

	return nil
}
