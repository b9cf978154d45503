// Package arch describes the MIPS32 register file and frame conventions.
//
// Design: one immutable descriptor shared by every code generation component.
// Register roles are only ever looked up here.
package arch

import "fmt"

// Register is a physical register. ID is the hardware number.
type Register struct {
	Name string
	ID   int
}

func (r Register) String() string {
	return r.Name
}

// Zero reports whether r is the hard-wired zero register.
func (r Register) Zero() bool {
	return r.ID == 0
}

// WordSize is the size of every stack slot and register in bytes.
const WordSize = 4

// HeaderSize is the space the prologue reserves for the saved $ra and $fp.
const HeaderSize = 2 * WordSize

// MIPS32 register file
var (
	Zero = Register{"$0", 0}
	AT   = Register{"$at", 1}
	V0   = Register{"$v0", 2}
	V1   = Register{"$v1", 3}
	A0   = Register{"$a0", 4}
	A1   = Register{"$a1", 5}
	A2   = Register{"$a2", 6}
	A3   = Register{"$a3", 7}
	T0   = Register{"$t0", 8}
	T1   = Register{"$t1", 9}
	T2   = Register{"$t2", 10}
	T3   = Register{"$t3", 11}
	T4   = Register{"$t4", 12}
	T5   = Register{"$t5", 13}
	T6   = Register{"$t6", 14}
	T7   = Register{"$t7", 15}
	S0   = Register{"$s0", 16}
	S1   = Register{"$s1", 17}
	S2   = Register{"$s2", 18}
	S3   = Register{"$s3", 19}
	S4   = Register{"$s4", 20}
	S5   = Register{"$s5", 21}
	S6   = Register{"$s6", 22}
	S7   = Register{"$s7", 23}
	T8   = Register{"$t8", 24}
	T9   = Register{"$t9", 25}
	GP   = Register{"$gp", 28}
	SP   = Register{"$sp", 29}
	FP   = Register{"$fp", 30}
	RA   = Register{"$ra", 31}
)

var (
	// Argument registers a0-a3
	paramRegs = []Register{A0, A1, A2, A3}
	// Temporary registers (caller-saved)
	tempRegs = []Register{T0, T1, T2, T3, T4, T5, T6, T7, T8, T9}
	// Saved registers (callee-saved)
	savedRegs = []Register{S0, S1, S2, S3, S4, S5, S6, S7}
)

// Arch is the register and frame descriptor consumed by the backend.
type Arch struct {
	params []Register
	eval   []Register
	saved  map[Register]bool
}

// Option restricts the descriptor, mostly to force register pressure in tests.
type Option func(*Arch)

// WithEvalRegisters keeps only the first n evaluation registers.
// n <= 0 keeps all of them.
func WithEvalRegisters(n int) Option {
	return func(a *Arch) {
		if n > 0 && n < len(a.eval) {
			a.eval = a.eval[:n]
		}
	}
}

// WithParamRegisters keeps only the first n parameter registers, n >= 1.
func WithParamRegisters(n int) Option {
	return func(a *Arch) {
		if n >= 1 && n < len(a.params) {
			a.params = a.params[:n]
		}
	}
}

// New builds the MIPS32 descriptor. Evaluation registers are the
// caller-saved temporaries followed by the callee-saved registers.
func New(opts ...Option) *Arch {
	a := &Arch{
		params: append([]Register(nil), paramRegs...),
		saved:  make(map[Register]bool, len(savedRegs)),
	}
	a.eval = append(a.eval, tempRegs...)
	a.eval = append(a.eval, savedRegs...)
	for _, r := range savedRegs {
		a.saved[r] = true
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Arch) Zero() Register          { return Zero }
func (a *Arch) Assembler() Register     { return AT }
func (a *Arch) ReturnValue() Register   { return V0 }
func (a *Arch) ReturnAddress() Register { return RA }
func (a *Arch) StackPointer() Register  { return SP }
func (a *Arch) FramePointer() Register  { return FP }
func (a *Arch) GlobalPointer() Register { return GP }

// ParamRegisters returns the argument registers in order.
func (a *Arch) ParamRegisters() []Register {
	return a.params
}

// MaxRegisterParams is the number of arguments passed in registers.
func (a *Arch) MaxRegisterParams() int {
	return len(a.params)
}

// EvalRegisters returns the allocatable registers in allocation order.
func (a *Arch) EvalRegisters() []Register {
	return a.eval
}

// IsCalleeSaved reports whether a callee must preserve r.
func (a *Arch) IsCalleeSaved(r Register) bool {
	return a.saved[r]
}

// IsCallerSaved reports whether r may be clobbered by a call.
func (a *Arch) IsCallerSaved(r Register) bool {
	if a.saved[r] {
		return false
	}
	switch r {
	case Zero, SP, FP, GP, RA:
		return false
	}
	return true
}

// Prologue returns the frame setup sequence. $fp points at the saved $fp
// word, so caller stack arguments start at HeaderSize($fp).
func (a *Arch) Prologue() []string {
	return []string{
		fmt.Sprintf("addiu %s, %s, -%d", SP, SP, HeaderSize),
		fmt.Sprintf("sw %s, %d(%s)", RA, WordSize, SP),
		fmt.Sprintf("sw %s, 0(%s)", FP, SP),
		fmt.Sprintf("move %s, %s", FP, SP),
	}
}

// Epilogue undoes Prologue. $sp must already equal $fp.
func (a *Arch) Epilogue() []string {
	return []string{
		fmt.Sprintf("lw %s, 0(%s)", FP, SP),
		fmt.Sprintf("lw %s, %d(%s)", RA, WordSize, SP),
		fmt.Sprintf("addiu %s, %s, %d", SP, SP, HeaderSize),
		fmt.Sprintf("jr %s", RA),
	}
}

// Lookup finds a register by its assembler name.
func Lookup(name string) (Register, bool) {
	for _, r := range all {
		if r.Name == name {
			return r, true
		}
	}
	return Register{}, false
}

var all = []Register{
	Zero, AT, V0, V1, A0, A1, A2, A3,
	T0, T1, T2, T3, T4, T5, T6, T7,
	S0, S1, S2, S3, S4, S5, S6, S7,
	T8, T9, GP, SP, FP, RA,
}
