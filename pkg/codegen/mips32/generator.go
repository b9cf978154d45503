// Package mips32 implements MIPS32 code generation.
//
// Design: Direct assembly generation, one basic block at a time. Each block
// gets its own LRU register file; values live in their frame slots between
// blocks. Operators without a native opcode are synthesized from slt, xor and
// sltiu sequences. A small runtime preamble provides the string helpers.
package mips32

import (
	"errors"
	"fmt"
	"io"

	"github.com/GriffinCanCode/minic/pkg/codegen/arch"
	"github.com/GriffinCanCode/minic/pkg/codegen/asm"
	"github.com/GriffinCanCode/minic/pkg/codegen/frame"
	"github.com/GriffinCanCode/minic/pkg/codegen/regalloc"
	"github.com/GriffinCanCode/minic/pkg/codegen/strpool"
	"github.com/GriffinCanCode/minic/pkg/ir"
	"github.com/GriffinCanCode/minic/pkg/logger"
)

// DefaultBudget is the code plus data size limit in bytes.
const DefaultBudget = 64 * 1024

var (
	// ErrCodeSizeExceeded means the program does not fit the budget. No
	// output is produced.
	ErrCodeSizeExceeded = errors.New("code size budget exceeded")

	// ErrUnsupportedCast is returned for string conversions other than
	// char to string.
	ErrUnsupportedCast = errors.New("unsupported typecast")
)

// Options configures a Generator.
type Options struct {
	Budget   int        // code + data bytes; 0 means DefaultBudget
	Comments bool       // annotate spills, reloads and stack parameters
	Validate bool       // run the validator over the finished text
	Arch     *arch.Arch // nil means the full MIPS32 register file
}

// Generator generates MIPS32 assembly
type Generator struct {
	w    io.Writer
	opts Options
	arch *arch.Arch
	pool *strpool.Pool

	fr *frame.Frame
	bc *frame.BlockContext
}

func NewGenerator(w io.Writer, opts Options) *Generator {
	if opts.Budget <= 0 {
		opts.Budget = DefaultBudget
	}
	a := opts.Arch
	if a == nil {
		a = arch.New()
	}
	return &Generator{
		w:    w,
		opts: opts,
		arch: a,
	}
}

// Generate emits assembly for prog. Nothing is written unless the whole
// program compiles within budget.
func (g *Generator) Generate(prog *ir.Program) error {
	text, err := g.GenerateString(prog)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(g.w, text); err != nil {
		return fmt.Errorf("failed to write assembly: %w", err)
	}
	return nil
}

// GenerateString compiles prog and returns the assembly text.
func (g *Generator) GenerateString(prog *ir.Program) (string, error) {
	logger.Debug("Generating mips32 assembly", "functions", len(prog.Functions))

	logger.LogPhase("verify")
	if err := ir.Verify(prog); err != nil {
		return "", fmt.Errorf("verification failed: %w", err)
	}
	if prog.Function("main") == nil {
		return "", fmt.Errorf("no main function: %w", ir.ErrMalformed)
	}
	logger.LogPhaseComplete("verify")

	logger.LogPhase("codegen")
	g.pool = strpool.New()
	out := asm.NewBuffer(g.opts.Comments)
	out.Directive("\t.text")
	out.Directive("\t.globl __start")
	emitRuntime(out)

	for _, fn := range prog.Functions {
		logger.Debug("Generating function assembly", "arch", "mips32", "name", fn.Name)
		if err := g.generateFunction(fn, out); err != nil {
			logger.LogError("codegen", fn.Name, err)
			return "", fmt.Errorf("function %s: %w", fn.Name, err)
		}
	}

	used := out.Size() + g.pool.Size()
	logger.LogBudget(used, g.opts.Budget)
	if used > g.opts.Budget {
		return "", fmt.Errorf("%d bytes, budget %d: %w", used, g.opts.Budget, ErrCodeSizeExceeded)
	}

	g.pool.EmitTo(out)
	text := out.String()
	logger.LogPhaseComplete("codegen")

	if g.opts.Validate {
		if err := ValidateProgram(text); err != nil {
			logger.Error("Assembly validation failed", "error", err)
			return "", fmt.Errorf("validation failed: %w", err)
		}
	}

	logger.Info("mips32 code generation complete",
		"functions", len(prog.Functions),
		"bytes", used,
		"strings", g.pool.Len())
	return text, nil
}

// generateFunction lowers fn and appends it to out.
func (g *Generator) generateFunction(fn *ir.Function, out *asm.Buffer) error {
	g.fr = frame.New(g.arch, fn, g.pool, g.opts.Comments)

	for i, p := range fn.Params {
		if err := g.fr.BindParam(p, i); err != nil {
			return err
		}
	}

	// Register every block first so forward branches resolve.
	for _, bl := range fn.Blocks {
		g.fr.AddBlock(bl)
	}
	instCount := 0
	for _, bl := range fn.Blocks {
		bc := g.fr.AddBlock(bl)
		if err := g.generateBlock(bc); err != nil {
			return fmt.Errorf("b%d: %w", bl.ID, err)
		}
		instCount += bc.Text.Count()
	}
	logger.LogCodeGen("mips32", fn.Name, instCount)

	g.fr.EmitTo(out)
	return nil
}

// generateBlock lowers the instructions of one block into its buffer.
func (g *Generator) generateBlock(bc *frame.BlockContext) error {
	g.bc = bc
	g.fr.ResetSpillSlots()

	for _, inst := range bc.Block.Insts {
		if err := g.generateInst(inst); err != nil {
			return err
		}
		bc.Alloc.Tick()
		if err := bc.Alloc.Err(); err != nil {
			return fmt.Errorf("%s: %w", ir.FormatInst(inst), err)
		}
	}

	// Falling through to the next block: memory must be current.
	if !bc.Block.Terminated() {
		bc.Alloc.FlushDirtyNamed()
	}
	g.fr.ResetSpillSlots()
	return nil
}

func (g *Generator) alloc() *regalloc.Allocator {
	return g.bc.Alloc
}

func (g *Generator) emit(op string, args ...any) {
	g.bc.Text.Inst(op, args...)
}

// use returns a register holding v.
func (g *Generator) use(v ir.Value) arch.Register {
	return g.bc.Alloc.Acquire(v, true)
}

// def returns a register bound to v for writing. Call dirty once written.
func (g *Generator) def(v ir.Value) arch.Register {
	return g.bc.Alloc.Acquire(v, false)
}

func (g *Generator) dirty(r arch.Register) {
	g.bc.Alloc.MarkDirty(r)
}
