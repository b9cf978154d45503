// Package regalloc implements per-block register allocation with LRU eviction.
//
// Design: one table entry per allocatable register, each holding at most one
// occupant. Values are bound on demand and evicted least-recently-used first;
// Named values are written back to their frame slot, temporaries go to spill
// slots. Nothing survives a block boundary.
package regalloc

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/minic/pkg/codegen/arch"
	"github.com/GriffinCanCode/minic/pkg/codegen/asm"
	"github.com/GriffinCanCode/minic/pkg/ir"
	"github.com/GriffinCanCode/minic/pkg/logger"
)

// ErrNoRegister is returned when every register is pinned by the current
// instruction.
var ErrNoRegister = errors.New("no register available")

// Frame is the part of the function frame the allocator needs.
type Frame interface {
	// Offset returns the stack slot of v, assigning one on first use.
	Offset(v *ir.Named) int
	// Spill reserves a slot for t.
	Spill(t *ir.Temp) int
	// Reload returns and frees the slot of a spilled t.
	Reload(t *ir.Temp) (int, bool)
	// NoteRegister records use of a callee-saved register.
	NoteRegister(r arch.Register)
}

// Strings resolves string constants to data labels.
type Strings interface {
	Label(c *ir.Const) string
}

type entry struct {
	reg    arch.Register
	val    ir.Value
	dirty  bool
	age    int
	pinned bool
}

// Allocator owns the register file of one basic block.
type Allocator struct {
	arch    *arch.Arch
	frame   Frame
	strs    Strings
	buf     *asm.Buffer
	entries []*entry
	err     error
}

// NewAllocator creates an allocator emitting spill and reload code into buf.
func NewAllocator(a *arch.Arch, frame Frame, strs Strings, buf *asm.Buffer) *Allocator {
	regs := a.EvalRegisters()
	entries := make([]*entry, len(regs))
	for i, r := range regs {
		entries[i] = &entry{reg: r}
	}
	return &Allocator{
		arch:    a,
		frame:   frame,
		strs:    strs,
		buf:     buf,
		entries: entries,
	}
}

// Err returns the first error the allocator ran into.
func (a *Allocator) Err() error {
	return a.err
}

func (a *Allocator) fail(err error) {
	if a.err == nil {
		logger.Error("Register allocation failed", "error", err)
		a.err = err
	}
}

// Acquire returns a register holding v, or a register bound to v when load
// is false. Every register handed out stays pinned until the next Tick.
// Reading a temporary consumes it.
func (a *Allocator) Acquire(v ir.Value, load bool) arch.Register {
	if c, ok := v.(*ir.Const); ok && c.IsZero() {
		return a.arch.Zero()
	}

	if e := a.lookup(v); e != nil {
		e.age = 0
		e.pinned = true
		if _, ok := v.(*ir.Temp); ok && load {
			e.val = nil
			e.dirty = false
		}
		return e.reg
	}

	e := a.take()
	if e == nil {
		a.fail(fmt.Errorf("binding %s: %w", v, ErrNoRegister))
		return a.arch.Zero()
	}
	e.val = v
	e.dirty = false

	switch x := v.(type) {
	case *ir.Const:
		if x.DataType == ir.String {
			a.buf.Inst("la", e.reg, a.strs.Label(x))
		} else {
			a.buf.Inst("li", e.reg, x.Val)
		}

	case *ir.Named:
		off := a.frame.Offset(x)
		if load {
			a.buf.Inst("lw", e.reg, asm.Mem(-off, a.arch.FramePointer()))
		}

	case *ir.Temp:
		if load {
			e.val = nil
			off, ok := a.frame.Reload(x)
			if !ok {
				a.fail(fmt.Errorf("%s is not live: %w", x, ir.ErrMalformed))
				return e.reg
			}
			a.buf.Comment("reload %s", x)
			a.buf.Inst("lw", e.reg, asm.Mem(-off, a.arch.FramePointer()))
		}
	}
	return e.reg
}

// Scratch returns an unbound register for intermediate results.
func (a *Allocator) Scratch() arch.Register {
	e := a.take()
	if e == nil {
		a.fail(fmt.Errorf("scratch register: %w", ErrNoRegister))
		return a.arch.Zero()
	}
	e.val = nil
	e.dirty = false
	return e.reg
}

// take hands out a free entry, evicting if necessary. The entry is pinned.
func (a *Allocator) take() *entry {
	var e *entry
	for _, cand := range a.entries {
		if cand.val == nil && !cand.pinned {
			e = cand
			break
		}
	}
	if e == nil {
		e = a.victim()
		if e == nil {
			return nil
		}
		a.evict(e)
	}
	e.age = 0
	e.pinned = true
	if a.arch.IsCalleeSaved(e.reg) {
		a.frame.NoteRegister(e.reg)
	}
	return e
}

// victim picks the occupied, unpinned entry used longest ago. Ties go to
// the entry earliest in the table.
func (a *Allocator) victim() *entry {
	var best *entry
	for _, e := range a.entries {
		if e.val == nil || e.pinned {
			continue
		}
		if best == nil || e.age > best.age {
			best = e
		}
	}
	return best
}

// evict makes e free, preserving its occupant where needed.
func (a *Allocator) evict(e *entry) {
	logger.Debug("Evicting register", "reg", e.reg.Name, "value", e.val.String(), "age", e.age)
	switch v := e.val.(type) {
	case *ir.Named:
		if e.dirty {
			a.writeBack(e, v)
		}
	case *ir.Temp:
		a.spill(e, v)
	}
	e.val = nil
	e.dirty = false
}

func (a *Allocator) writeBack(e *entry, v *ir.Named) {
	off := a.frame.Offset(v)
	a.buf.Inst("sw", e.reg, asm.Mem(-off, a.arch.FramePointer()))
	e.dirty = false
}

func (a *Allocator) spill(e *entry, t *ir.Temp) {
	off := a.frame.Spill(t)
	logger.LogSpill(t.String(), e.reg.Name, off)
	a.buf.Comment("spill %s", t)
	a.buf.Inst("sw", e.reg, asm.Mem(-off, a.arch.FramePointer()))
}

// MarkDirty records that r now holds a value newer than its memory copy.
func (a *Allocator) MarkDirty(r arch.Register) {
	if e := a.entryFor(r); e != nil && e.val != nil {
		e.dirty = true
	}
}

// FlushDirtyNamed writes every modified Named value back to its slot.
// The bindings stay valid and become clean.
func (a *Allocator) FlushDirtyNamed() {
	for _, e := range a.entries {
		if v, ok := e.val.(*ir.Named); ok && e.dirty {
			a.writeBack(e, v)
		}
	}
}

// SpillTemporaries moves every live temporary to a spill slot.
func (a *Allocator) SpillTemporaries() {
	for _, e := range a.entries {
		if t, ok := e.val.(*ir.Temp); ok {
			a.spill(e, t)
			e.val = nil
			e.dirty = false
		}
	}
}

// EvictCallerSaved drops every binding a call may clobber.
func (a *Allocator) EvictCallerSaved() {
	for _, e := range a.entries {
		if e.val != nil && a.arch.IsCallerSaved(e.reg) {
			a.evict(e)
		}
	}
}

// Tick ends an instruction: occupants age by one and all pins are cleared.
func (a *Allocator) Tick() {
	for _, e := range a.entries {
		if e.val != nil {
			e.age++
		}
		e.pinned = false
	}
}

// Release unpins r before the end of the instruction.
func (a *Allocator) Release(r arch.Register) {
	if e := a.entryFor(r); e != nil {
		e.pinned = false
	}
}

// Lookup reports the register currently bound to v.
func (a *Allocator) Lookup(v ir.Value) (arch.Register, bool) {
	if e := a.lookup(v); e != nil {
		return e.reg, true
	}
	return arch.Register{}, false
}

// Holder returns the occupant of r and whether it is dirty.
func (a *Allocator) Holder(r arch.Register) (ir.Value, bool) {
	if e := a.entryFor(r); e != nil {
		return e.val, e.dirty
	}
	return nil, false
}

func (a *Allocator) lookup(v ir.Value) *entry {
	for _, e := range a.entries {
		if e.val == nil {
			continue
		}
		if c, ok := v.(*ir.Const); ok {
			if ec, ok := e.val.(*ir.Const); ok && c.Equal(ec) {
				return e
			}
			continue
		}
		if e.val == v {
			return e
		}
	}
	return nil
}

func (a *Allocator) entryFor(r arch.Register) *entry {
	for _, e := range a.entries {
		if e.reg == r {
			return e
		}
	}
	return nil
}
