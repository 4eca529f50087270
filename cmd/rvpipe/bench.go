package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yanghyeonseo/ca-pa4/benchmarks"
)

func newBenchCmd(a *app) *cobra.Command {
	var (
		names   []string
		format  string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run the microbenchmarks and check them against the emulator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			harness := benchmarks.NewHarness(benchmarks.HarnessConfig{
				Core:    a.cfg,
				Output:  a.out,
				Logger:  a.logger.Named("bench"),
				Verbose: verbose,
			})

			if len(names) == 0 {
				harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())
			}
			for _, name := range names {
				b, ok := benchmarks.ByName(name)
				if !ok {
					return fmt.Errorf("unknown benchmark %q", name)
				}
				harness.AddBenchmark(b)
			}

			results, err := harness.RunAll(cmd.Context())
			if err != nil {
				return err
			}

			switch format {
			case "text":
				harness.PrintResults(results)
			case "csv":
				harness.PrintCSV(results)
			case "json":
				if err := harness.PrintJSON(results); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown format %q", format)
			}

			failed := 0
			for _, r := range results {
				if !r.Verified {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d benchmark(s) failed verification", failed)
			}

			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&names, "name", "n", nil, "benchmarks to run (default all)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, csv or json")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print branch and cache detail")

	return cmd
}
