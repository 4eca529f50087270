// Package config holds the simulator configuration: BTB geometry, memory
// layout, run limits, tracing and logging.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables that override config
// keys, e.g. RVPIPE_BTB_INDEX_BITS or RVPIPE_TRACE_LEVEL.
const EnvPrefix = "RVPIPE"

// Validation errors.
var (
	ErrInvalidBTB    = errors.New("invalid btb configuration")
	ErrInvalidMemory = errors.New("invalid memory configuration")
	ErrInvalidTrace  = errors.New("invalid trace configuration")
	ErrInvalidCache  = errors.New("invalid cache configuration")
)

// MaxBTBIndexBits bounds the BTB at 64K entries.
const MaxBTBIndexBits = 16

// Config is the complete simulator configuration.
type Config struct {
	// BTBIndexBits is k for a BTB with 2^k entries.
	BTBIndexBits int `yaml:"btb_index_bits" mapstructure:"btb_index_bits"`

	// MaxCycles stops a run that has not hit EBREAK. 0 means no limit.
	MaxCycles uint64 `yaml:"max_cycles" mapstructure:"max_cycles"`

	// LogLevel is an hclog level name.
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`

	Memory MemoryConfig `yaml:"memory" mapstructure:"memory"`
	Trace  TraceConfig  `yaml:"trace" mapstructure:"trace"`
	Cache  CacheConfig  `yaml:"cache" mapstructure:"cache"`
}

// MemoryConfig is the memory layout.
type MemoryConfig struct {
	IMemBase uint32 `yaml:"imem_base" mapstructure:"imem_base"`
	IMemSize uint32 `yaml:"imem_size" mapstructure:"imem_size"`
	DMemBase uint32 `yaml:"dmem_base" mapstructure:"dmem_base"`
	DMemSize uint32 `yaml:"dmem_size" mapstructure:"dmem_size"`

	// StackPointer is the initial value of x2. 0 selects the end of dmem,
	// so the first push lands in its last word.
	StackPointer uint32 `yaml:"stack_pointer" mapstructure:"stack_pointer"`
}

// TraceConfig controls per-cycle output.
type TraceConfig struct {
	// Level is 0 (silent) through 6 (dump memory every cycle).
	Level int `yaml:"level" mapstructure:"level"`

	// StartCycle suppresses per-cycle output before this cycle.
	StartCycle uint64 `yaml:"start_cycle" mapstructure:"start_cycle"`

	// File sends the trace to a size-rotated file instead of stdout.
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

// CacheConfig enables hit/miss profiling of the fetch and data streams.
// Profiling never changes timing.
type CacheConfig struct {
	Enabled bool        `yaml:"enabled" mapstructure:"enabled"`
	ICache  CacheParams `yaml:"icache" mapstructure:"icache"`
	DCache  CacheParams `yaml:"dcache" mapstructure:"dcache"`
}

// CacheParams is the geometry of one profiled cache.
type CacheParams struct {
	Size          int `yaml:"size" mapstructure:"size"`
	Associativity int `yaml:"associativity" mapstructure:"associativity"`
	BlockSize     int `yaml:"block_size" mapstructure:"block_size"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		BTBIndexBits: 4,
		MaxCycles:    1_000_000,
		LogLevel:     "info",
		Memory: MemoryConfig{
			IMemBase: 0x80000000,
			IMemSize: 64 * 1024,
			DMemBase: 0x80010000,
			DMemSize: 64 * 1024,
		},
		Trace: TraceConfig{
			Level:      2,
			MaxSizeMB:  64,
			MaxBackups: 3,
		},
		Cache: CacheConfig{
			ICache: CacheParams{Size: 4 * 1024, Associativity: 2, BlockSize: 32},
			DCache: CacheParams{Size: 4 * 1024, Associativity: 4, BlockSize: 32},
		},
	}
}

// InitialSP returns the initial stack pointer.
func (c *Config) InitialSP() uint32 {
	if c.Memory.StackPointer != 0 {
		return c.Memory.StackPointer
	}
	return c.Memory.DMemBase + c.Memory.DMemSize
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.BTBIndexBits < 0 || c.BTBIndexBits > MaxBTBIndexBits {
		return fmt.Errorf("%w: btb_index_bits must be in [0, %d], got %d",
			ErrInvalidBTB, MaxBTBIndexBits, c.BTBIndexBits)
	}

	if err := c.Memory.validate(); err != nil {
		return err
	}

	if c.Trace.Level < 0 || c.Trace.Level > 6 {
		return fmt.Errorf("%w: level must be in [0, 6], got %d", ErrInvalidTrace, c.Trace.Level)
	}
	if c.Trace.File != "" && c.Trace.MaxSizeMB <= 0 {
		return fmt.Errorf("%w: max_size_mb must be > 0", ErrInvalidTrace)
	}

	if c.Cache.Enabled {
		if err := c.Cache.ICache.validate("icache"); err != nil {
			return err
		}
		if err := c.Cache.DCache.validate("dcache"); err != nil {
			return err
		}
	}

	return nil
}

func (m *MemoryConfig) validate() error {
	if m.IMemSize == 0 || m.IMemSize%4 != 0 {
		return fmt.Errorf("%w: imem_size must be a non-zero multiple of 4", ErrInvalidMemory)
	}
	if m.DMemSize == 0 || m.DMemSize%4 != 0 {
		return fmt.Errorf("%w: dmem_size must be a non-zero multiple of 4", ErrInvalidMemory)
	}
	if m.IMemBase%4 != 0 || m.DMemBase%4 != 0 {
		return fmt.Errorf("%w: memory bases must be word aligned", ErrInvalidMemory)
	}

	iEnd := uint64(m.IMemBase) + uint64(m.IMemSize)
	dEnd := uint64(m.DMemBase) + uint64(m.DMemSize)
	if iEnd > 1<<32 || dEnd > 1<<32 {
		return fmt.Errorf("%w: memory regions must fit in 32 bits", ErrInvalidMemory)
	}
	if uint64(m.IMemBase) < dEnd && uint64(m.DMemBase) < iEnd {
		return fmt.Errorf("%w: imem and dmem overlap", ErrInvalidMemory)
	}
	return nil
}

func (p *CacheParams) validate(name string) error {
	if p.BlockSize <= 0 || p.BlockSize&(p.BlockSize-1) != 0 {
		return fmt.Errorf("%w: %s block_size must be a power of two", ErrInvalidCache, name)
	}
	if p.Associativity <= 0 {
		return fmt.Errorf("%w: %s associativity must be > 0", ErrInvalidCache, name)
	}
	if p.Size <= 0 || p.Size%(p.BlockSize*p.Associativity) != 0 {
		return fmt.Errorf("%w: %s size must be a multiple of block_size * associativity",
			ErrInvalidCache, name)
	}
	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// SetDefaults registers every key of Default() with v so that environment
// variables and bound flags resolve for all of them.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("btb_index_bits", d.BTBIndexBits)
	v.SetDefault("max_cycles", d.MaxCycles)
	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("memory.imem_base", d.Memory.IMemBase)
	v.SetDefault("memory.imem_size", d.Memory.IMemSize)
	v.SetDefault("memory.dmem_base", d.Memory.DMemBase)
	v.SetDefault("memory.dmem_size", d.Memory.DMemSize)
	v.SetDefault("memory.stack_pointer", d.Memory.StackPointer)

	v.SetDefault("trace.level", d.Trace.Level)
	v.SetDefault("trace.start_cycle", d.Trace.StartCycle)
	v.SetDefault("trace.file", d.Trace.File)
	v.SetDefault("trace.max_size_mb", d.Trace.MaxSizeMB)
	v.SetDefault("trace.max_backups", d.Trace.MaxBackups)
	v.SetDefault("trace.compress", d.Trace.Compress)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.icache.size", d.Cache.ICache.Size)
	v.SetDefault("cache.icache.associativity", d.Cache.ICache.Associativity)
	v.SetDefault("cache.icache.block_size", d.Cache.ICache.BlockSize)
	v.SetDefault("cache.dcache.size", d.Cache.DCache.Size)
	v.SetDefault("cache.dcache.associativity", d.Cache.DCache.Associativity)
	v.SetDefault("cache.dcache.block_size", d.Cache.DCache.BlockSize)
}

// NewViper returns a viper instance with defaults and RVPIPE_* environment
// overrides. A non-empty path is read as the config file.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load reads a configuration file (YAML, JSON or TOML by extension) with
// environment overrides. An empty path yields the defaults plus
// environment overrides.
func Load(path string) (*Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	return data, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
