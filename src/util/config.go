package util

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/xyproto/env/v2"
)

// Config mirrors the tunable part of Options in a TOML configuration file.
type Config struct {
	Registers  int    `toml:"registers"`
	Threads    int    `toml:"threads"`
	Traces     bool   `toml:"traces"`
	BinopTemps bool   `toml:"binop_temps"`
	StackBase  int    `toml:"stack_base"`
	HeapBase   int    `toml:"heap_base"`
	LogLevel   string `toml:"log_level"`
}

// Environment variables that override the configuration file.
const (
	EnvRegisters = "PREVC_REGISTERS"
	EnvThreads   = "PREVC_THREADS"
	EnvTraces    = "PREVC_TRACES"
	EnvLogLevel  = "PREVC_LOG_LEVEL"
)

// LoadConfig reads the configuration file at path. Keys missing from the file keep their default values; unknown
// keys are rejected.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(b)
}

// ParseConfig decodes a TOML document on top of the default configuration.
func ParseConfig(b []byte) (Config, error) {
	cfg := configOf(DefaultOptions())
	dec := toml.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Apply copies the configuration into opt.
func (cfg Config) Apply(opt *Options) {
	opt.Registers = cfg.Registers
	opt.Threads = cfg.Threads
	opt.Traces = cfg.Traces
	opt.BinopTemps = cfg.BinopTemps
	opt.StackBase = cfg.StackBase
	opt.HeapBase = cfg.HeapBase
	opt.LogLevel = cfg.LogLevel
}

// ApplyEnv overrides opt with any PREVC_* environment variables that are set.
func ApplyEnv(opt *Options) {
	opt.Registers = env.Int(EnvRegisters, opt.Registers)
	opt.Threads = env.Int(EnvThreads, opt.Threads)
	if env.Has(EnvTraces) {
		opt.Traces = env.Bool(EnvTraces)
	}
	opt.LogLevel = env.Str(EnvLogLevel, opt.LogLevel)
}

// configOf returns the configuration view of opt.
func configOf(opt Options) Config {
	return Config{
		Registers:  opt.Registers,
		Threads:    opt.Threads,
		Traces:     opt.Traces,
		BinopTemps: opt.BinopTemps,
		StackBase:  opt.StackBase,
		HeapBase:   opt.HeapBase,
		LogLevel:   opt.LogLevel,
	}
}
