package mips32

import (
	"fmt"

	"github.com/GriffinCanCode/minic/pkg/codegen/arch"
	"github.com/GriffinCanCode/minic/pkg/codegen/asm"
	"github.com/GriffinCanCode/minic/pkg/ir"
)

// generateInst emits assembly for an instruction
func (g *Generator) generateInst(inst ir.Inst) error {
	switch i := inst.(type) {
	case *ir.Declare:
		g.fr.Offset(i.Var)
		return nil
	case *ir.Assign:
		return g.generateAssign(i)
	case *ir.Binary:
		return g.generateBinary(i)
	case *ir.Unary:
		return g.generateUnary(i)
	case *ir.Typecast:
		return g.generateTypecast(i)
	case *ir.Call:
		return g.generateCall(i)
	case *ir.BuiltinCall:
		return g.generateBuiltin(i)
	case *ir.Jump:
		return g.generateJump(i)
	case *ir.CondJump:
		return g.generateCondJump(i)
	case *ir.Return:
		return g.generateReturn(i)
	default:
		return fmt.Errorf("unsupported instruction: %T", inst)
	}
}

func (g *Generator) generateAssign(a *ir.Assign) error {
	src := g.use(a.Src)
	dest := g.def(a.Dest)
	if dest != src {
		g.emit("move", dest, src)
	}
	g.dirty(dest)
	return nil
}

// generateBinary emits assembly for binary operations
func (g *Generator) generateBinary(b *ir.Binary) error {
	if b.Op.Relational() && b.L.Type() == ir.String {
		return g.generateStringCompare(b)
	}

	l := g.use(b.L)
	r := g.use(b.R)
	zero := g.arch.Zero()

	switch b.Op {
	// Arithmetic
	case ir.OpAdd:
		d := g.def(b.Dest)
		g.emit("addu", d, l, r)
		g.dirty(d)
	case ir.OpSub:
		d := g.def(b.Dest)
		g.emit("subu", d, l, r)
		g.dirty(d)
	case ir.OpMul:
		d := g.def(b.Dest)
		g.emit("mul", d, l, r)
		g.dirty(d)
	case ir.OpDiv:
		d := g.def(b.Dest)
		g.emit("div", l, r)
		g.emit("mflo", d)
		g.dirty(d)
	case ir.OpMod:
		d := g.def(b.Dest)
		g.emit("div", l, r)
		g.emit("mfhi", d)
		g.dirty(d)

	// Comparisons
	case ir.OpLt:
		d := g.def(b.Dest)
		g.emit("slt", d, l, r)
		g.dirty(d)
	case ir.OpGt:
		d := g.def(b.Dest)
		g.emit("slt", d, r, l)
		g.dirty(d)
	case ir.OpLe:
		g.lessOrEqual(b.Dest, l, r)
	case ir.OpGe:
		g.lessOrEqual(b.Dest, r, l)
	case ir.OpEq:
		d := g.def(b.Dest)
		g.emit("xor", d, l, r)
		g.emit("sltiu", d, d, 1)
		g.dirty(d)
	case ir.OpNe:
		d := g.def(b.Dest)
		g.emit("xor", d, l, r)
		g.emit("sltu", d, zero, d)
		g.dirty(d)

	// Boolean operations normalize both sides to 0/1 first
	case ir.OpAnd, ir.OpOr:
		t1 := g.alloc().Scratch()
		t2 := g.alloc().Scratch()
		g.emit("sltu", t1, zero, l)
		g.emit("sltu", t2, zero, r)
		d := g.def(b.Dest)
		if b.Op == ir.OpAnd {
			g.emit("and", d, t1, t2)
		} else {
			g.emit("or", d, t1, t2)
		}
		g.dirty(d)

	case ir.OpBitAnd:
		d := g.def(b.Dest)
		g.emit("and", d, l, r)
		g.dirty(d)
	case ir.OpBitOr:
		d := g.def(b.Dest)
		g.emit("or", d, l, r)
		g.dirty(d)

	default:
		return fmt.Errorf("unsupported operation: %v", b.Op)
	}
	return nil
}

// lessOrEqual computes (l < r) | (l == r). The destination is written last
// so it may share a register with either operand.
func (g *Generator) lessOrEqual(dest ir.Value, l, r arch.Register) {
	t1 := g.alloc().Scratch()
	t2 := g.alloc().Scratch()
	g.emit("slt", t1, l, r)
	g.emit("xor", t2, l, r)
	g.emit("sltiu", t2, t2, 1)
	d := g.def(dest)
	g.emit("or", d, t1, t2)
	g.dirty(d)
}

// generateStringCompare calls __strcmp and turns its three-way result into 0/1.
func (g *Generator) generateStringCompare(b *ir.Binary) error {
	l := g.use(b.L)
	r := g.use(b.R)
	if b.Op == ir.OpGt || b.Op == ir.OpGe {
		l, r = r, l
	}
	a0, a1 := g.arch.ParamRegisters()[0], g.arch.ParamRegisters()[1]
	g.emit("move", a0, l)
	g.emit("move", a1, r)
	g.emit("jal", helperStrcmp)

	v0, zero := g.arch.ReturnValue(), g.arch.Zero()
	d := g.def(b.Dest)
	switch b.Op {
	case ir.OpLt, ir.OpGt:
		g.emit("slt", d, v0, zero)
	case ir.OpLe, ir.OpGe:
		g.emit("slti", d, v0, 1)
	case ir.OpEq:
		g.emit("sltiu", d, v0, 1)
	case ir.OpNe:
		g.emit("sltu", d, zero, v0)
	}
	g.dirty(d)
	return nil
}

func (g *Generator) generateUnary(u *ir.Unary) error {
	s := g.use(u.Operand)
	zero := g.arch.Zero()
	d := g.def(u.Dest)
	switch u.Op {
	case ir.OpNot:
		g.emit("sltiu", d, s, 1)
	case ir.OpBitNot:
		g.emit("nor", d, s, zero)
	case ir.OpNeg:
		g.emit("subu", d, zero, s)
	default:
		return fmt.Errorf("unsupported operation: %v", u.Op)
	}
	g.dirty(d)
	return nil
}

func (g *Generator) generateTypecast(c *ir.Typecast) error {
	from, to := c.Src.Type(), c.Dest.Type()
	switch {
	case from == to, from == ir.Char && to == ir.Int:
		s := g.use(c.Src)
		d := g.def(c.Dest)
		if d != s {
			g.emit("move", d, s)
		}
		g.dirty(d)

	case from == ir.Int && to == ir.Char:
		s := g.use(c.Src)
		d := g.def(c.Dest)
		g.emit("andi", d, s, 0xff)
		g.dirty(d)

	case from == ir.Char && to == ir.String:
		// Two-byte string in the arena: the character and its terminator.
		gp, zero := g.arch.GlobalPointer(), g.arch.Zero()
		s := g.use(c.Src)
		d := g.def(c.Dest)
		g.emit("sb", s, asm.Mem(0, gp))
		g.emit("sb", zero, asm.Mem(1, gp))
		g.emit("move", d, gp)
		g.emit("addiu", gp, gp, 2)
		g.dirty(d)

	default:
		return fmt.Errorf("%s to %s: %w", from, to, ErrUnsupportedCast)
	}
	return nil
}

func (g *Generator) generateJump(j *ir.Jump) error {
	label, err := g.fr.BlockLabel(j.Target)
	if err != nil {
		return err
	}
	g.alloc().FlushDirtyNamed()
	g.emit("j", label)
	return nil
}

func (g *Generator) generateCondJump(j *ir.CondJump) error {
	t, err := g.fr.BlockLabel(j.True)
	if err != nil {
		return err
	}
	f, err := g.fr.BlockLabel(j.False)
	if err != nil {
		return err
	}
	c := g.use(j.Cond)
	g.alloc().FlushDirtyNamed()
	g.emit("bne", c, g.arch.Zero(), t)
	g.emit("j", f)
	return nil
}

func (g *Generator) generateReturn(r *ir.Return) error {
	if r.Value != nil {
		v := g.use(r.Value)
		g.emit("move", g.arch.ReturnValue(), v)
	}
	g.alloc().FlushDirtyNamed()
	g.emit("j", g.fr.ReturnLabel())
	return nil
}
