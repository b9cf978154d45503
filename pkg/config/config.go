// Package config loads minic.toml, the compiler configuration file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/minic/pkg/codegen/arch"
	"github.com/GriffinCanCode/minic/pkg/codegen/mips32"
	"github.com/GriffinCanCode/minic/pkg/logger"
)

const (
	ConfigFileName = "minic.toml"

	// MinEvalRegisters is the largest number of registers one instruction
	// pins at once.
	MinEvalRegisters = 5
)

// Config is the whole configuration file
type Config struct {
	Backend BackendConfig `toml:"backend"`
	Log     LogConfig     `toml:"log"`
}

// BackendConfig controls code generation.
type BackendConfig struct {
	// Budget is the code plus data size limit in bytes.
	Budget int `toml:"budget"`

	// Comments annotates spills and stack parameters in the output.
	Comments bool `toml:"comments"`

	// Validate runs the assembly validator over the generated text.
	Validate bool `toml:"validate"`

	// EvalRegisters limits the allocatable registers; 0 means all of them.
	EvalRegisters int `toml:"eval_registers"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Budget:   mips32.DefaultBudget,
			Comments: true,
			Validate: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads path on top of the defaults. Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a configuration document on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Backend.Budget < 0 {
		return fmt.Errorf("invalid config: budget %d is negative", c.Backend.Budget)
	}
	n := c.Backend.EvalRegisters
	if limit := len(arch.New().EvalRegisters()); n != 0 && (n < MinEvalRegisters || n > limit) {
		return fmt.Errorf("invalid config: eval_registers must be 0 or between %d and %d, got %d",
			MinEvalRegisters, limit, n)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// Options maps the backend section onto generator options.
func (c *Config) Options() mips32.Options {
	opts := mips32.Options{
		Budget:   c.Backend.Budget,
		Comments: c.Backend.Comments,
		Validate: c.Backend.Validate,
	}
	if c.Backend.EvalRegisters > 0 {
		opts.Arch = arch.New(arch.WithEvalRegisters(c.Backend.EvalRegisters))
	}
	return opts
}

// Logger maps the log section onto a logger configuration.
func (c *Config) Logger() (logger.Config, error) {
	level, err := logger.ParseLevel(c.Log.Level)
	if err != nil {
		return logger.Config{}, err
	}
	cfg := logger.DefaultConfig()
	cfg.Level = level
	cfg.Format = c.Log.Format
	cfg.LogFile = c.Log.File
	return cfg, nil
}

// Save writes c to path with explanatory comments.
func (c *Config) Save(path string) error {
	if err := os.WriteFile(path, []byte(c.commented()), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) commented() string {
	var sb strings.Builder

	sb.WriteString("[backend]\n")
	sb.WriteString("# code + data size limit in bytes\n")
	sb.WriteString(fmt.Sprintf("budget = %d\n", c.Backend.Budget))
	sb.WriteString("# annotate spills and stack parameters\n")
	sb.WriteString(fmt.Sprintf("comments = %t\n", c.Backend.Comments))
	sb.WriteString("# check the generated assembly\n")
	sb.WriteString(fmt.Sprintf("validate = %t\n", c.Backend.Validate))
	sb.WriteString("# 0 uses every evaluation register\n")
	sb.WriteString(fmt.Sprintf("eval_registers = %d\n\n", c.Backend.EvalRegisters))

	sb.WriteString("[log]\n")
	sb.WriteString("# debug | info | warn | error\n")
	sb.WriteString(fmt.Sprintf("level = %q\n", c.Log.Level))
	sb.WriteString("# text | json\n")
	sb.WriteString(fmt.Sprintf("format = %q\n", c.Log.Format))
	sb.WriteString(fmt.Sprintf("file = %q\n", c.Log.File))

	return sb.String()
}
