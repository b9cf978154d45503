// Package ir - programmatic graph construction
// Design: Builder owns the counters, Program owns the graph
package ir

import (
	"github.com/GriffinCanCode/minic/pkg/logger"
)

// Builder assembles a Program one function at a time. Temporary and block
// ids are unique per Builder.
type Builder struct {
	prog      *Program
	currentFn *Function
	currentBl *Block
	tempID    int
	blockID   int
}

func NewBuilder() *Builder {
	return &Builder{
		prog: &Program{},
	}
}

// Param creates a parameter value. Pass it to Function in declaration order.
func Param(name string, typ DataType) *Named {
	return &Named{Name: name, DataType: typ}
}

// Function opens a new function with an entry block and a terminal block.
// The terminal block is placed last when the function is closed.
func (b *Builder) Function(name string, ret DataType, params ...*Named) *Function {
	return b.Define(b.Declare(name, ret, params...))
}

// Declare creates a function signature without a body, so calls can be
// built before the callee is defined.
func (b *Builder) Declare(name string, ret DataType, params ...*Named) *Function {
	fn := &Function{Name: name, ReturnType: ret}
	for _, p := range params {
		fn.Params = append(fn.Params, p)
	}
	return fn
}

// Define opens a function previously created with Declare.
func (b *Builder) Define(fn *Function) *Function {
	b.closeFunction()

	b.currentFn = fn
	b.prog.Functions = append(b.prog.Functions, fn)

	fn.Entry = b.newBlock()
	fn.Blocks = append(fn.Blocks, fn.Entry)
	fn.Terminal = b.newBlock()
	b.currentBl = fn.Entry

	logger.Debug("Building function", "name", fn.Name, "params", len(fn.Params))
	return fn
}

func (b *Builder) closeFunction() {
	if b.currentFn == nil {
		return
	}
	b.currentFn.Blocks = append(b.currentFn.Blocks, b.currentFn.Terminal)
	b.currentFn = nil
	b.currentBl = nil
}

// NewBlock creates a block in the current function without switching to it.
func (b *Builder) NewBlock() *Block {
	bl := b.newBlock()
	b.currentFn.Blocks = append(b.currentFn.Blocks, bl)
	return bl
}

// SetBlock makes bl the insertion point.
func (b *Builder) SetBlock(bl *Block) {
	b.currentBl = bl
}

// Block returns the insertion point.
func (b *Builder) Block() *Block {
	return b.currentBl
}

// Terminal returns the terminal block of the current function.
func (b *Builder) Terminal() *Block {
	return b.currentFn.Terminal
}

// Local declares a local variable in the current block.
func (b *Builder) Local(name string, typ DataType) *Named {
	v := &Named{Name: name, DataType: typ}
	b.Emit(&Declare{Var: v})
	return v
}

func Int32(v int32) *Const {
	return &Const{DataType: Int, Val: v}
}

func CharLit(c byte) *Const {
	return &Const{DataType: Char, Val: int32(c)}
}

func StringLit(s string) *Const {
	return &Const{DataType: String, Str: s}
}

// Emit appends a raw instruction to the current block.
func (b *Builder) Emit(inst Inst) {
	b.currentBl.Insts = append(b.currentBl.Insts, inst)
}

func (b *Builder) Assign(dest, src Value) {
	b.Emit(&Assign{Dest: dest, Src: src})
}

// Binary emits l op r into a fresh temporary.
func (b *Builder) Binary(op BinaryOp, l, r Value) *Temp {
	typ := Int
	if !op.Relational() && op != OpAnd && op != OpOr && l.Type() == Char && r.Type() == Char {
		typ = Char
	}
	dest := b.newTemp(typ)
	b.Emit(&Binary{Op: op, Dest: dest, L: l, R: r})
	return dest
}

// Unary emits op v into a fresh temporary.
func (b *Builder) Unary(op UnaryOp, v Value) *Temp {
	typ := v.Type()
	if op == OpNot {
		typ = Int
	}
	dest := b.newTemp(typ)
	b.Emit(&Unary{Op: op, Dest: dest, Operand: v})
	return dest
}

// Cast converts v to typ.
func (b *Builder) Cast(v Value, typ DataType) *Temp {
	dest := b.newTemp(typ)
	b.Emit(&Typecast{Dest: dest, Src: v})
	return dest
}

// Call emits a call to fn. The result temporary is nil for void callees.
func (b *Builder) Call(fn *Function, args ...Value) *Temp {
	var dest *Temp
	if fn.ReturnType != Void {
		dest = b.newTemp(fn.ReturnType)
	}
	b.Emit(&Call{Dest: dest, Callee: fn, Args: args})
	return dest
}

// Builtin emits a built-in call. The result temporary is nil for print.
func (b *Builder) Builtin(bi Builtin, args ...Value) *Temp {
	var dest *Temp
	if rt := bi.ReturnType(); rt != Void {
		dest = b.newTemp(rt)
	}
	b.Emit(&BuiltinCall{Dest: dest, Builtin: bi, Args: args})
	return dest
}

func (b *Builder) Jump(target *Block) {
	b.Emit(&Jump{Target: target})
	b.link(b.currentBl, target)
}

func (b *Builder) CondJump(cond Value, t, f *Block) {
	b.Emit(&CondJump{Cond: cond, True: t, False: f})
	b.link(b.currentBl, t)
	b.link(b.currentBl, f)
}

// Return leaves the function. v is nil for void functions.
func (b *Builder) Return(v Value) {
	b.Emit(&Return{Value: v})
}

// Program closes the open function and returns the finished graph.
func (b *Builder) Program() *Program {
	b.closeFunction()
	logger.Debug("IR build complete", "functions", len(b.prog.Functions))
	return b.prog
}

func (b *Builder) link(from, to *Block) {
	from.Succs = append(from.Succs, to)
	to.Preds = append(to.Preds, from)
}

func (b *Builder) newTemp(typ DataType) *Temp {
	temp := &Temp{
		ID:       b.tempID,
		DataType: typ,
	}
	b.tempID++
	return temp
}

func (b *Builder) newBlock() *Block {
	bl := &Block{ID: b.blockID}
	b.blockID++
	return bl
}
