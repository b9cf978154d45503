package mips32

import (
	"fmt"

	"github.com/GriffinCanCode/minic/pkg/codegen/arch"
	"github.com/GriffinCanCode/minic/pkg/codegen/asm"
	"github.com/GriffinCanCode/minic/pkg/ir"
)

// I/O is expressed with simulator pseudo-instructions.
var printOps = map[ir.DataType]string{
	ir.Int:    "print_int",
	ir.Char:   "print_char",
	ir.String: "print_string",
}

// generateBuiltin emits assembly for a built-in call. Operands are acquired
// even when the result is discarded.
func (g *Generator) generateBuiltin(b *ir.BuiltinCall) error {
	switch b.Builtin {
	case ir.BuiltinPrint:
		return g.generatePrint(b)
	case ir.BuiltinReadInt:
		g.generateRead("read_int", b.Dest)
	case ir.BuiltinReadChar:
		g.generateRead("read_char", b.Dest)
	case ir.BuiltinReadString:
		g.generateReadString(b)
	case ir.BuiltinGetAt:
		g.generateGetAt(b)
	case ir.BuiltinSetAt:
		g.generateSetAt(b)
	case ir.BuiltinStrcat:
		g.generateStrcat(b)
	default:
		return fmt.Errorf("unsupported builtin: %v", b.Builtin)
	}
	return nil
}

func (g *Generator) generatePrint(b *ir.BuiltinCall) error {
	for _, arg := range b.Args {
		op, ok := printOps[arg.Type()]
		if !ok {
			return fmt.Errorf("print of %s value %s: %w", arg.Type(), arg, ir.ErrMalformed)
		}
		r := g.use(arg)
		g.emit(op, r)
		g.alloc().Release(r)
	}
	return nil
}

func (g *Generator) generateRead(op string, dest *ir.Temp) {
	if dest == nil {
		g.emit(op, g.alloc().Scratch())
		return
	}
	d := g.def(dest)
	g.emit(op, d)
	g.dirty(d)
}

// generateReadString reads at most n bytes into a fresh arena buffer.
func (g *Generator) generateReadString(b *ir.BuiltinCall) {
	gp := g.arch.GlobalPointer()
	n := g.use(b.Args[0])
	buf := g.alloc().Scratch()
	g.emit("move", buf, gp)
	g.emit("read_string", buf, n)
	g.emit("addu", gp, gp, n)
	g.emit("addiu", gp, gp, 1)
	if b.Dest == nil {
		return
	}
	d := g.def(b.Dest)
	g.emit("move", d, buf)
	g.dirty(d)
}

func (g *Generator) generateGetAt(b *ir.BuiltinCall) {
	s := g.use(b.Args[0])
	i := g.use(b.Args[1])
	if b.Dest == nil {
		return
	}
	addr := g.alloc().Scratch()
	g.emit("addu", addr, s, i)
	d := g.def(b.Dest)
	g.emit("lbu", d, asm.Mem(0, addr))
	g.dirty(d)
}

// generateSetAt copies the string into the arena and stores the character
// into the copy. The source string is left untouched.
func (g *Generator) generateSetAt(b *ir.BuiltinCall) {
	s := g.use(b.Args[0])
	i := g.use(b.Args[1])
	c := g.use(b.Args[2])
	v0 := g.arch.ReturnValue()

	g.emit("move", g.arch.ParamRegisters()[0], s)
	g.emit("jal", helperCopyString)
	addr := g.alloc().Scratch()
	g.emit("addu", addr, v0, i)
	g.emit("sb", c, asm.Mem(0, addr))
	g.bindResult(b.Dest, v0)
}

func (g *Generator) generateStrcat(b *ir.BuiltinCall) {
	l := g.use(b.Args[0])
	r := g.use(b.Args[1])
	params := g.arch.ParamRegisters()
	g.emit("move", params[0], l)
	g.emit("move", params[1], r)
	g.emit("jal", helperStrcat)
	g.bindResult(b.Dest, g.arch.ReturnValue())
}

func (g *Generator) bindResult(dest *ir.Temp, src arch.Register) {
	if dest == nil {
		return
	}
	d := g.def(dest)
	g.emit("move", d, src)
	g.dirty(d)
}
