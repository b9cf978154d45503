package mips32

import (
	"github.com/GriffinCanCode/minic/pkg/codegen/arch"
	"github.com/GriffinCanCode/minic/pkg/codegen/asm"
	"github.com/GriffinCanCode/minic/pkg/ir"
)

// generateCall emits a call to a program function.
//
// The caller reserves one word per stack argument plus one for $gp, so the
// callee's arena allocations are dropped when $gp is restored. A STRING
// result is copied down to the caller's arena before anything else runs.
//
//	addiu $sp, $sp, -(k+1)*4
//	sw    $gp, k*4($sp)
//	...   arguments into $a0-$a3, then 0($sp), 4($sp), ...
//	jal   callee
//	lw    $gp, k*4($sp)
//	addiu $sp, $sp, (k+1)*4
func (g *Generator) generateCall(c *ir.Call) error {
	a := g.alloc()
	sp, gp := g.arch.StackPointer(), g.arch.GlobalPointer()
	params := g.arch.ParamRegisters()
	nreg := g.arch.MaxRegisterParams()

	// Callee and argument loads may read variables through memory.
	a.FlushDirtyNamed()

	stackArgs := max(len(c.Args)-nreg, 0)
	reserve := (stackArgs + 1) * arch.WordSize
	g.emit("addiu", sp, sp, -reserve)
	g.emit("sw", gp, asm.Mem(stackArgs*arch.WordSize, sp))

	for i, arg := range c.Args {
		r := g.use(arg)
		if i < nreg {
			g.emit("move", params[i], r)
		} else {
			g.emit("sw", r, asm.Mem((i-nreg)*arch.WordSize, sp))
		}
		a.Release(r)
	}

	a.SpillTemporaries()
	a.EvictCallerSaved()
	g.emit("jal", c.Callee.Name)
	g.emit("lw", gp, asm.Mem(stackArgs*arch.WordSize, sp))
	g.emit("addiu", sp, sp, reserve)

	if c.Dest == nil {
		return nil
	}
	v0 := g.arch.ReturnValue()
	if c.Callee.ReturnType == ir.String {
		g.emit("move", params[0], v0)
		g.emit("jal", helperCopyString)
	}
	d := g.def(c.Dest)
	g.emit("move", d, v0)
	g.dirty(d)
	return nil
}
