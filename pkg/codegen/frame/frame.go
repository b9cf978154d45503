// Package frame lays out the stack frame of one function.
//
// Design: every Named value and spill slot gets a word below $fp, addressed
// as -off($fp). Offsets are handed out on demand and never move, so the final
// frame size is only known once every block has been lowered.
//
//	caller args    8+4*k($fp)
//	saved $ra      4($fp)
//	saved $fp      0($fp)
//	locals/spills  -4($fp) ... -size($fp)
//	callee-saved   below locals
package frame

import (
	"fmt"

	"github.com/GriffinCanCode/minic/pkg/codegen/arch"
	"github.com/GriffinCanCode/minic/pkg/codegen/asm"
	"github.com/GriffinCanCode/minic/pkg/codegen/regalloc"
	"github.com/GriffinCanCode/minic/pkg/ir"
	"github.com/GriffinCanCode/minic/pkg/logger"
)

// BlockContext is the lowering state of one basic block.
type BlockContext struct {
	Block *ir.Block
	Label string
	Text  *asm.Buffer
	Alloc *regalloc.Allocator
}

type spillSlot struct {
	off   int
	inUse bool
}

// Frame holds the layout and per-block state of one function.
type Frame struct {
	arch     *arch.Arch
	fn       *ir.Function
	strs     regalloc.Strings
	comments bool

	offsets map[*ir.Named]int
	slots   []*spillSlot
	spills  map[*ir.Temp]*spillSlot
	size    int
	used    map[arch.Register]bool

	params  *asm.Buffer
	blocks  []*BlockContext
	byBlock map[*ir.Block]*BlockContext
}

// New creates an empty frame for fn.
func New(a *arch.Arch, fn *ir.Function, strs regalloc.Strings, comments bool) *Frame {
	return &Frame{
		arch:     a,
		fn:       fn,
		strs:     strs,
		comments: comments,
		offsets:  make(map[*ir.Named]int),
		spills:   make(map[*ir.Temp]*spillSlot),
		used:     make(map[arch.Register]bool),
		params:   asm.NewBuffer(comments),
		byBlock:  make(map[*ir.Block]*BlockContext),
	}
}

// Offset returns the slot of v, assigning the next word on first use.
func (f *Frame) Offset(v *ir.Named) int {
	if off, ok := f.offsets[v]; ok {
		return off
	}
	f.size += arch.WordSize
	f.offsets[v] = f.size
	return f.size
}

// BindParam assigns a slot to the index-th parameter and emits the code
// copying it there from its argument register or the caller's stack.
func (f *Frame) BindParam(v ir.Value, index int) error {
	named, ok := v.(*ir.Named)
	if !ok {
		return fmt.Errorf("%s: parameter %d is %T: %w", f.fn.Name, index, v, ir.ErrMalformed)
	}
	off := f.Offset(named)
	fp := f.arch.FramePointer()
	nreg := f.arch.MaxRegisterParams()
	if index < nreg {
		f.params.Inst("sw", f.arch.ParamRegisters()[index], asm.Mem(-off, fp))
		return nil
	}
	tmp := f.arch.ParamRegisters()[0]
	f.params.Comment("stack parameter %s", named)
	f.params.Inst("lw", tmp, asm.Mem(arch.HeaderSize+arch.WordSize*(index-nreg), fp))
	f.params.Inst("sw", tmp, asm.Mem(-off, fp))
	return nil
}

// Spill reserves the first free spill slot for t, growing the frame when
// none is free.
func (f *Frame) Spill(t *ir.Temp) int {
	if s, ok := f.spills[t]; ok {
		return s.off
	}
	var slot *spillSlot
	for _, s := range f.slots {
		if !s.inUse {
			slot = s
			break
		}
	}
	if slot == nil {
		f.size += arch.WordSize
		slot = &spillSlot{off: f.size}
		f.slots = append(f.slots, slot)
	}
	slot.inUse = true
	f.spills[t] = slot
	return slot.off
}

// Reload returns the slot of a spilled t and frees it.
func (f *Frame) Reload(t *ir.Temp) (int, bool) {
	s, ok := f.spills[t]
	if !ok {
		return 0, false
	}
	delete(f.spills, t)
	s.inUse = false
	return s.off, true
}

// ResetSpillSlots forgets every spilled temporary. Slots stay reserved for
// reuse by later blocks.
func (f *Frame) ResetSpillSlots() {
	for _, s := range f.slots {
		s.inUse = false
	}
	f.spills = make(map[*ir.Temp]*spillSlot)
}

// NoteRegister records a callee-saved register the function must preserve.
func (f *Frame) NoteRegister(r arch.Register) {
	if f.arch.IsCalleeSaved(r) {
		f.used[r] = true
	}
}

// UsedCalleeSaved returns the callee-saved registers in use, in table order.
func (f *Frame) UsedCalleeSaved() []arch.Register {
	var regs []arch.Register
	for _, r := range f.arch.EvalRegisters() {
		if f.used[r] {
			regs = append(regs, r)
		}
	}
	return regs
}

// LocalSize is the space taken by locals and spill slots.
func (f *Frame) LocalSize() int {
	return f.size
}

// StackSize is the total space reserved below $fp.
func (f *Frame) StackSize() int {
	return f.size + arch.WordSize*len(f.UsedCalleeSaved())
}

// AddBlock registers b so branches to it resolve, and creates its allocator.
func (f *Frame) AddBlock(b *ir.Block) *BlockContext {
	if bc, ok := f.byBlock[b]; ok {
		return bc
	}
	text := asm.NewBuffer(f.comments)
	bc := &BlockContext{
		Block: b,
		Label: fmt.Sprintf("%s_$%d", f.fn.Name, b.ID),
		Text:  text,
		Alloc: regalloc.NewAllocator(f.arch, f, f.strs, text),
	}
	f.blocks = append(f.blocks, bc)
	f.byBlock[b] = bc
	return bc
}

// BlockLabel returns the label of a registered block.
func (f *Frame) BlockLabel(b *ir.Block) (string, error) {
	bc, ok := f.byBlock[b]
	if !ok {
		id := -1
		if b != nil {
			id = b.ID
		}
		return "", fmt.Errorf("%s: branch to unregistered block b%d: %w", f.fn.Name, id, ir.ErrMalformed)
	}
	return bc.Label, nil
}

// ReturnLabel is the label of the shared function exit.
func (f *Frame) ReturnLabel() string {
	return f.fn.Name + "_$return"
}

// EmitTo writes the complete function: prologue, stack setup, parameter
// copy-in, callee-saved saves, every block, and the shared exit sequence.
func (f *Frame) EmitTo(buf *asm.Buffer) {
	fp, sp := f.arch.FramePointer(), f.arch.StackPointer()
	saved := f.UsedCalleeSaved()
	logger.LogFrame(f.fn.Name, f.size, len(saved))

	buf.Label(f.fn.Name)
	for _, line := range f.arch.Prologue() {
		buf.Line(line)
	}
	if total := f.StackSize(); total > 0 {
		buf.Inst("addiu", sp, sp, -total)
	}
	buf.Append(f.params)
	for i, r := range saved {
		buf.Inst("sw", r, asm.Mem(-(f.size+arch.WordSize*(i+1)), fp))
	}

	for _, bc := range f.blocks {
		buf.Label(bc.Label)
		buf.Append(bc.Text)
	}

	buf.Label(f.ReturnLabel())
	for i, r := range saved {
		buf.Inst("lw", r, asm.Mem(-(f.size+arch.WordSize*(i+1)), fp))
	}
	buf.Inst("move", sp, fp)
	for _, line := range f.arch.Epilogue() {
		buf.Line(line)
	}
}
