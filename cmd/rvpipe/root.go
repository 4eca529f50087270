package main

import (
	"fmt"
	"io"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/yanghyeonseo/ca-pa4/config"
	"github.com/yanghyeonseo/ca-pa4/loader"
	"github.com/yanghyeonseo/ca-pa4/timing/core"
)

// flagKeys maps persistent flags to the config keys they override.
var flagKeys = map[string]string{
	"log-level":   "log_level",
	"btb-bits":    "btb_index_bits",
	"max-cycles":  "max_cycles",
	"trace":       "trace.level",
	"trace-start": "trace.start_cycle",
	"trace-file":  "trace.file",
	"cache":       "cache.enabled",
}

// app is the state shared by every command of one invocation.
type app struct {
	out    io.Writer
	errOut io.Writer

	configPath string
	flags      *pflag.FlagSet

	cfg    *config.Config
	logger hclog.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}
	d := config.Default()

	rootCmd := &cobra.Command{
		Use:   "rvpipe",
		Short: "Cycle-accurate 5-stage RV32 pipeline simulator",
		Long: `rvpipe simulates RV32I programs (plus push/pop) on a five-stage pipeline
with forwarding, load-use stalls and a direct-mapped BTB.

Programs may be RV32 ELF executables, YAML images or hex word lists.
Settings come from --config, RVPIPE_* environment variables and flags,
in increasing order of precedence.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.flags = cmd.Flags()
			return a.loadConfig()
		},
	}

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "config file (yaml, json or toml)")
	pf.String("log-level", d.LogLevel, "log level: trace, debug, info, warn, error")
	pf.Int("btb-bits", d.BTBIndexBits, "BTB index bits (2^k entries)")
	pf.Uint64("max-cycles", d.MaxCycles, "stop after this many cycles (0 = no limit)")
	pf.IntP("trace", "t", d.Trace.Level, "trace level 0-6")
	pf.Uint64("trace-start", d.Trace.StartCycle, "first cycle to trace")
	pf.String("trace-file", d.Trace.File, "write the trace to a size-rotated file")
	pf.Bool("cache", d.Cache.Enabled, "profile instruction and data cache hit rates")

	rootCmd.AddCommand(
		newRunCmd(a),
		newEmulateCmd(a),
		newDebugCmd(a),
		newBenchCmd(a),
		newConfigCmd(a),
	)

	return rootCmd
}

// loadConfig resolves the configuration from file, environment and flags,
// and builds the root logger.
func (a *app) loadConfig() error {
	v, err := config.NewViper(a.configPath)
	if err != nil {
		return err
	}

	for name, key := range flagKeys {
		flag := a.flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}

	level := hclog.LevelFromString(cfg.LogLevel)
	if level == hclog.NoLevel {
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}

	a.cfg = cfg
	a.logger = hclog.New(&hclog.LoggerOptions{
		Name:   "rvpipe",
		Output: a.errOut,
		Level:  level,
	})

	return nil
}

// loadProgram reads a program; hex listings are placed at the start of imem.
func (a *app) loadProgram(path string) (*loader.Program, error) {
	prog, err := loader.LoadFile(path, a.cfg.Memory.IMemBase)
	if err != nil {
		return nil, err
	}

	a.logger.Named("loader").Debug("program read",
		"path", path,
		"entry", hclog.Fmt("0x%08x", prog.Entry),
		"segments", len(prog.Segments),
	)

	return prog, nil
}

// newCore builds a core with the program loaded.
func (a *app) newCore(path string, opts ...core.Option) (*core.Core, error) {
	prog, err := a.loadProgram(path)
	if err != nil {
		return nil, err
	}

	opts = append([]core.Option{
		core.WithLogger(a.logger.Named("core")),
		core.WithOutput(a.out),
	}, opts...)

	c, err := core.New(a.cfg, opts...)
	if err != nil {
		return nil, err
	}

	if err := c.Load(prog); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}
