package irjson

import (
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/GriffinCanCode/minic/pkg/ir"
)

// Marshal encodes prog in the format Decode reads. Variables are written by
// name, so two distinct variables sharing a name in one function collapse
// into one on the way back.
func Marshal(prog *ir.Program) ([]byte, error) {
	pj := programJSON{}
	for _, fn := range prog.Functions {
		fj, err := encodeFunction(fn)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", fn.Name, err)
		}
		pj.Functions = append(pj.Functions, fj)
	}
	return json.MarshalIndent(pj, "", "  ")
}

func encodeFunction(fn *ir.Function) (functionJSON, error) {
	fj := functionJSON{Name: fn.Name}
	if fn.ReturnType != ir.Void {
		fj.Returns = fn.ReturnType.String()
	}
	if fn.Entry == nil || fn.Terminal == nil {
		return fj, fmt.Errorf("missing entry or terminal block")
	}
	fj.Entry = fn.Entry.ID
	fj.Terminal = fn.Terminal.ID

	for _, p := range fn.Params {
		n, ok := p.(*ir.Named)
		if !ok {
			return fj, fmt.Errorf("parameter %s is not a named variable", p)
		}
		fj.Params = append(fj.Params, paramJSON{Name: n.Name, Type: n.DataType.String()})
	}

	typed := make(map[*ir.Temp]bool)
	for _, bl := range fn.Blocks {
		bj := blockJSON{ID: bl.ID, Insts: []instJSON{}}
		for _, inst := range bl.Insts {
			ij, err := encodeInst(inst, typed)
			if err != nil {
				return fj, fmt.Errorf("b%d: %w", bl.ID, err)
			}
			bj.Insts = append(bj.Insts, ij)
		}
		fj.Blocks = append(fj.Blocks, bj)
	}
	return fj, nil
}

func encodeInst(inst ir.Inst, typed map[*ir.Temp]bool) (instJSON, error) {
	op := func(v ir.Value) *operandJSON {
		o := encodeOperand(v, typed)
		return &o
	}
	args := func(vs []ir.Value) []operandJSON {
		out := make([]operandJSON, len(vs))
		for i, v := range vs {
			out[i] = encodeOperand(v, typed)
		}
		return out
	}
	id := func(bl *ir.Block) *int {
		n := bl.ID
		return &n
	}

	// Operands are encoded in evaluation order so the defining reference of
	// a temporary carries its type.
	switch i := inst.(type) {
	case *ir.Declare:
		return instJSON{Op: "declare", Name: i.Var.Name, Type: i.Var.DataType.String()}, nil
	case *ir.Assign:
		src := op(i.Src)
		return instJSON{Op: "assign", Src: src, Dest: op(i.Dest)}, nil
	case *ir.Jump:
		return instJSON{Op: "jump", Target: id(i.Target)}, nil
	case *ir.CondJump:
		return instJSON{Op: "branch", Cond: op(i.Cond), True: id(i.True), False: id(i.False)}, nil
	case *ir.Return:
		ij := instJSON{Op: "return"}
		if i.Value != nil {
			ij.Value = op(i.Value)
		}
		return ij, nil
	case *ir.Call:
		ij := instJSON{Op: "call", Callee: i.Callee.Name, Args: args(i.Args)}
		if i.Dest != nil {
			ij.Dest = op(i.Dest)
		}
		return ij, nil
	case *ir.BuiltinCall:
		ij := instJSON{Op: "builtin", Name: i.Builtin.String(), Args: args(i.Args)}
		if i.Dest != nil {
			ij.Dest = op(i.Dest)
		}
		return ij, nil
	case *ir.Binary:
		l, r := op(i.L), op(i.R)
		return instJSON{Op: i.Op.String(), L: l, R: r, Dest: op(i.Dest)}, nil
	case *ir.Unary:
		v := op(i.Operand)
		return instJSON{Op: i.Op.String(), Operand: v, Dest: op(i.Dest)}, nil
	case *ir.Typecast:
		src := op(i.Src)
		return instJSON{Op: "cast", Src: src, Dest: op(i.Dest)}, nil
	}
	return instJSON{}, fmt.Errorf("unsupported instruction %T", inst)
}

func encodeOperand(v ir.Value, typed map[*ir.Temp]bool) operandJSON {
	switch x := v.(type) {
	case *ir.Named:
		return operandJSON{Var: x.Name}
	case *ir.Temp:
		id := x.ID
		o := operandJSON{Temp: &id}
		if !typed[x] {
			o.Type = x.DataType.String()
			typed[x] = true
		}
		return o
	case *ir.Const:
		switch x.DataType {
		case ir.Char:
			s := string(rune(byte(x.Val)))
			return operandJSON{Char: &s}
		case ir.String:
			s := x.Str
			return operandJSON{String: &s}
		default:
			n := x.Val
			return operandJSON{Int: &n}
		}
	}
	return operandJSON{}
}
