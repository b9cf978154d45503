// Package main implements the minic compiler binary.
//
// minic reads a program in the JSON IR form and writes MIPS32 assembly.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GriffinCanCode/minic/pkg/codegen/mips32"
	"github.com/GriffinCanCode/minic/pkg/config"
	"github.com/GriffinCanCode/minic/pkg/ir"
	"github.com/GriffinCanCode/minic/pkg/ir/irjson"
	"github.com/GriffinCanCode/minic/pkg/logger"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}

	var err error
	cmd := os.Args[1]
	switch cmd {
	case "compile":
		err = compile(os.Args[2:], os.Stdout)
	case "init":
		err = initConfig(os.Args[2:])
	case "version":
		fmt.Printf("minic compiler version %s\n", version)
	case "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `minic - Compile the minic IR to MIPS32 assembly

Usage:
    minic compile <program.json> [options]  Compile to assembly
    minic init [dir]                        Write a default minic.toml
    minic version                           Show compiler version
    minic help                              Show this help message

Options:
    -o <file>       Output assembly file (default: program name with .s)
    -config <file>  Configuration file (default: ./minic.toml if present)
    -budget <n>     Code + data size limit in bytes, overrides the config
    -v              Verbose output
    -dump-ir        Print the IR before code generation`)
}

type compileFlags struct {
	output  string
	config  string
	budget  int
	verbose bool
	dumpIR  bool
}

// parseCompileFlags accepts the source file before or after the options.
func parseCompileFlags(args []string) (string, compileFlags, error) {
	var f compileFlags
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&f.output, "o", "", "output assembly file")
	fs.StringVar(&f.config, "config", "", "configuration file")
	fs.IntVar(&f.budget, "budget", 0, "code + data size limit in bytes")
	fs.BoolVar(&f.verbose, "v", false, "verbose output")
	fs.BoolVar(&f.dumpIR, "dump-ir", false, "print the IR")

	var source string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		source, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return "", f, err
	}
	if source == "" && fs.NArg() > 0 {
		source = fs.Arg(0)
	}
	if source == "" {
		return "", f, errors.New("no input file")
	}
	return source, f, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadConfig(path)
	}
	if _, err := os.Stat(config.ConfigFileName); err == nil {
		return config.LoadConfig(config.ConfigFileName)
	}
	return config.Default(), nil
}

func compile(args []string, stdout io.Writer) error {
	source, flags, err := parseCompileFlags(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(flags.config)
	if err != nil {
		return err
	}
	if flags.budget > 0 {
		cfg.Backend.Budget = flags.budget
	}
	logCfg, err := cfg.Logger()
	if err != nil {
		return err
	}
	if flags.verbose {
		logCfg.Level = logger.LevelDebug
	}
	if err := logger.Init(logCfg); err != nil {
		return err
	}

	start := time.Now()
	logger.LogCompilerStart(args)
	err = compileFile(source, flags, cfg, stdout)
	logger.LogCompilerComplete(err == nil, time.Since(start).String())
	return err
}

func compileFile(source string, flags compileFlags, cfg *config.Config, stdout io.Writer) error {
	logger.LogFileProcessing(source)
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open program: %w", err)
	}
	defer in.Close()

	prog, err := irjson.Decode(in)
	if err != nil {
		return err
	}
	if flags.dumpIR {
		fmt.Fprint(stdout, ir.Format(prog))
	}

	text, err := mips32.NewGenerator(nil, cfg.Options()).GenerateString(prog)
	if err != nil {
		return err
	}

	output := flags.output
	if output == "" {
		output = strings.TrimSuffix(source, filepath.Ext(source)) + ".s"
	}
	if err := os.WriteFile(output, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	logger.LogOutput(output, len(text))
	return nil
}

func initConfig(args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	path := filepath.Join(dir, config.ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Printf("Created %s\n", path)
	return nil
}
