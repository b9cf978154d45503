package ir

import (
	"fmt"
	"io"
	"strings"
)

// Format renders a program as readable text, one instruction per line.
func Format(prog *Program) string {
	var sb strings.Builder
	for i, fn := range prog.Functions {
		if i > 0 {
			sb.WriteByte('\n')
		}
		FormatFunction(&sb, fn)
	}
	return sb.String()
}

// FormatFunction writes one function to w.
func FormatFunction(w io.Writer, fn *Function) {
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = fmt.Sprintf("%s %s", p, p.Type())
	}
	fmt.Fprintf(w, "func %s(%s) %s {\n", fn.Name, strings.Join(params, ", "), fn.ReturnType)
	for _, bl := range fn.Blocks {
		marker := ""
		switch bl {
		case fn.Entry:
			marker = " ; entry"
		case fn.Terminal:
			marker = " ; terminal"
		}
		fmt.Fprintf(w, "b%d:%s\n", bl.ID, marker)
		for _, inst := range bl.Insts {
			fmt.Fprintf(w, "\t%s\n", FormatInst(inst))
		}
	}
	fmt.Fprintf(w, "}\n")
}

// FormatInst renders a single instruction.
func FormatInst(inst Inst) string {
	switch i := inst.(type) {
	case *Assign:
		return fmt.Sprintf("%s = %s", i.Dest, i.Src)
	case *Declare:
		return fmt.Sprintf("declare %s %s", i.Var.Name, i.Var.DataType)
	case *Jump:
		return fmt.Sprintf("jump b%d", i.Target.ID)
	case *CondJump:
		return fmt.Sprintf("if %s goto b%d else b%d", i.Cond, i.True.ID, i.False.ID)
	case *Return:
		if i.Value == nil {
			return "return"
		}
		return fmt.Sprintf("return %s", i.Value)
	case *Call:
		call := fmt.Sprintf("call %s(%s)", i.Callee.Name, joinValues(i.Args))
		if i.Dest != nil {
			return fmt.Sprintf("%s = %s", i.Dest, call)
		}
		return call
	case *BuiltinCall:
		call := fmt.Sprintf("%s(%s)", i.Builtin, joinValues(i.Args))
		if i.Dest != nil {
			return fmt.Sprintf("%s = %s", i.Dest, call)
		}
		return call
	case *Binary:
		return fmt.Sprintf("%s = %s %s, %s", i.Dest, i.Op, i.L, i.R)
	case *Unary:
		return fmt.Sprintf("%s = %s %s", i.Dest, i.Op, i.Operand)
	case *Typecast:
		return fmt.Sprintf("%s = cast %s to %s", i.Dest, i.Src, i.Dest.Type())
	default:
		return fmt.Sprintf("<unknown %T>", inst)
	}
}

func joinValues(vals []Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}
