// Package ir implements the intermediate representation consumed by the backend.
//
// Design: Linear three-address code grouped into basic blocks, explicit control
// flow, closed sum types for values and instructions. The graph is produced
// once upstream and treated as read-only by code generation.
package ir

import (
	"fmt"
	"strconv"
)

// Program is the top-level IR container. It owns every function, block and
// value reachable from it.
type Program struct {
	Functions []*Function
}

// Function looks up a function by name.
func (p *Program) Function(name string) *Function {
	for _, fn := range p.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// Function represents a compiled function
type Function struct {
	Name       string
	ReturnType DataType
	Params     []Value // must all be *Named
	Entry      *Block
	Terminal   *Block
	Blocks     []*Block
}

// Block is a basic block. Preds and Succs are informational only.
type Block struct {
	ID    int
	Insts []Inst
	Preds []*Block
	Succs []*Block
}

// Terminated reports whether the block ends in a control transfer.
func (b *Block) Terminated() bool {
	if len(b.Insts) == 0 {
		return false
	}
	switch b.Insts[len(b.Insts)-1].(type) {
	case *Jump, *CondJump, *Return:
		return true
	}
	return false
}

// DataType is the type of a value
type DataType int

const (
	Int DataType = iota
	Char
	String
	Void
)

func (t DataType) String() string {
	switch t {
	case Int:
		return "int"
	case Char:
		return "char"
	case String:
		return "string"
	case Void:
		return "void"
	default:
		return fmt.Sprintf("DataType(%d)", int(t))
	}
}

// ParseDataType is the inverse of DataType.String.
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "int":
		return Int, nil
	case "char":
		return Char, nil
	case "string":
		return String, nil
	case "void", "":
		return Void, nil
	}
	return Void, fmt.Errorf("unknown data type %q", s)
}

// Value is one of *Named, *Temp or *Const.
type Value interface {
	value()
	Type() DataType
	String() string
}

// Named is a value bound to a declared source variable. Identity is the pointer.
type Named struct {
	Name     string
	DataType DataType
}

func (*Named) value()           {}
func (n *Named) Type() DataType { return n.DataType }
func (n *Named) String() string { return n.Name }

// Temp is a single-definition value scoped to the block that defines it.
type Temp struct {
	ID       int
	DataType DataType
}

func (*Temp) value()           {}
func (t *Temp) Type() DataType { return t.DataType }
func (t *Temp) String() string { return "%t" + strconv.Itoa(t.ID) }

// Const is a literal. Int and Char literals live in Val, strings in Str.
type Const struct {
	DataType DataType
	Val      int32
	Str      string
}

func (*Const) value()           {}
func (c *Const) Type() DataType { return c.DataType }

func (c *Const) String() string {
	switch c.DataType {
	case Char:
		return strconv.QuoteRune(rune(byte(c.Val)))
	case String:
		return strconv.Quote(c.Str)
	default:
		return strconv.Itoa(int(c.Val))
	}
}

// Equal compares constants by type and literal, never by identity.
func (c *Const) Equal(o *Const) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.DataType != o.DataType {
		return false
	}
	if c.DataType == String {
		return c.Str == o.Str
	}
	return c.Val == o.Val
}

// IsZero reports whether c is an integer or character zero.
func (c *Const) IsZero() bool {
	return (c.DataType == Int || c.DataType == Char) && c.Val == 0
}

// Inst is an IR instruction
type Inst interface {
	inst()
}

// Assign copies Src into Dest.
type Assign struct {
	Dest Value
	Src  Value
}

func (*Assign) inst() {}

// Declare introduces a local variable.
type Declare struct {
	Var *Named
}

func (*Declare) inst() {}

type Jump struct {
	Target *Block
}

func (*Jump) inst() {}

type CondJump struct {
	Cond  Value
	True  *Block
	False *Block
}

func (*CondJump) inst() {}

// Return leaves the function. Value is nil for void functions.
type Return struct {
	Value Value
}

func (*Return) inst() {}

// Call invokes a program function. Dest is nil when the result is discarded
// or the callee returns void.
type Call struct {
	Dest   *Temp
	Callee *Function
	Args   []Value
}

func (*Call) inst() {}

// BuiltinCall invokes a language built-in.
type BuiltinCall struct {
	Dest    *Temp
	Builtin Builtin
	Args    []Value
}

func (*BuiltinCall) inst() {}

type Binary struct {
	Op   BinaryOp
	Dest Value
	L    Value
	R    Value
}

func (*Binary) inst() {}

type Unary struct {
	Op      UnaryOp
	Dest    Value
	Operand Value
}

func (*Unary) inst() {}

// Typecast converts Src to the data type of Dest.
type Typecast struct {
	Dest Value
	Src  Value
}

func (*Typecast) inst() {}

// BinaryOp enumerates two-operand operators
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpLt
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
	OpAnd
	OpOr
	OpBitAnd
	OpBitOr
)

var binaryOpNames = [...]string{
	OpAdd:    "add",
	OpSub:    "sub",
	OpMul:    "mul",
	OpDiv:    "div",
	OpMod:    "mod",
	OpLt:     "lt",
	OpLe:     "le",
	OpGt:     "gt",
	OpGe:     "ge",
	OpEq:     "eq",
	OpNe:     "ne",
	OpAnd:    "and",
	OpOr:     "or",
	OpBitAnd: "bitand",
	OpBitOr:  "bitor",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpNames) {
		return binaryOpNames[op]
	}
	return fmt.Sprintf("BinaryOp(%d)", int(op))
}

// Relational reports whether op yields a 0/1 comparison result.
func (op BinaryOp) Relational() bool {
	return op >= OpLt && op <= OpNe
}

// ParseBinaryOp maps an op name back to its operator.
func ParseBinaryOp(s string) (BinaryOp, bool) {
	for i, name := range binaryOpNames {
		if name == s {
			return BinaryOp(i), true
		}
	}
	return 0, false
}

// UnaryOp enumerates one-operand operators
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpBitNot
	OpNeg
)

var unaryOpNames = [...]string{
	OpNot:    "not",
	OpBitNot: "bitnot",
	OpNeg:    "neg",
}

func (op UnaryOp) String() string {
	if int(op) < len(unaryOpNames) {
		return unaryOpNames[op]
	}
	return fmt.Sprintf("UnaryOp(%d)", int(op))
}

func ParseUnaryOp(s string) (UnaryOp, bool) {
	for i, name := range unaryOpNames {
		if name == s {
			return UnaryOp(i), true
		}
	}
	return 0, false
}

// Builtin identifies a language built-in function.
type Builtin int

const (
	BuiltinPrint Builtin = iota
	BuiltinReadInt
	BuiltinReadChar
	BuiltinReadString
	BuiltinGetAt
	BuiltinSetAt
	BuiltinStrcat
)

var builtinNames = [...]string{
	BuiltinPrint:      "print",
	BuiltinReadInt:    "read_int",
	BuiltinReadChar:   "read_char",
	BuiltinReadString: "read_string",
	BuiltinGetAt:      "get_at",
	BuiltinSetAt:      "set_at",
	BuiltinStrcat:     "strcat",
}

func (b Builtin) String() string {
	if int(b) < len(builtinNames) {
		return builtinNames[b]
	}
	return fmt.Sprintf("Builtin(%d)", int(b))
}

// ParseBuiltin resolves a built-in by its source name.
func ParseBuiltin(s string) (Builtin, bool) {
	for i, name := range builtinNames {
		if name == s {
			return Builtin(i), true
		}
	}
	return 0, false
}

// ReturnType is the data type a built-in produces.
func (b Builtin) ReturnType() DataType {
	switch b {
	case BuiltinReadInt:
		return Int
	case BuiltinReadChar, BuiltinGetAt:
		return Char
	case BuiltinReadString, BuiltinSetAt, BuiltinStrcat:
		return String
	default:
		return Void
	}
}

// Uses returns the values an instruction reads, in evaluation order.
func Uses(inst Inst) []Value {
	switch i := inst.(type) {
	case *Assign:
		return []Value{i.Src}
	case *CondJump:
		return []Value{i.Cond}
	case *Return:
		if i.Value != nil {
			return []Value{i.Value}
		}
	case *Call:
		return i.Args
	case *BuiltinCall:
		return i.Args
	case *Binary:
		return []Value{i.L, i.R}
	case *Unary:
		return []Value{i.Operand}
	case *Typecast:
		return []Value{i.Src}
	}
	return nil
}

// Def returns the value an instruction defines, or nil.
func Def(inst Inst) Value {
	switch i := inst.(type) {
	case *Assign:
		return i.Dest
	case *Call:
		if i.Dest != nil {
			return i.Dest
		}
	case *BuiltinCall:
		if i.Dest != nil {
			return i.Dest
		}
	case *Binary:
		return i.Dest
	case *Unary:
		return i.Dest
	case *Typecast:
		return i.Dest
	}
	return nil
}

// Targets returns the blocks an instruction may transfer control to.
func Targets(inst Inst) []*Block {
	switch i := inst.(type) {
	case *Jump:
		return []*Block{i.Target}
	case *CondJump:
		return []*Block{i.True, i.False}
	}
	return nil
}
