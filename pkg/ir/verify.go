package ir

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// ErrMalformed marks IR that violates the contract the backend relies on.
var ErrMalformed = errors.New("malformed IR")

// builtinArity is the fixed argument count of each built-in; -1 means one or more.
var builtinArity = map[Builtin]int{
	BuiltinPrint:      -1,
	BuiltinReadInt:    0,
	BuiltinReadChar:   0,
	BuiltinReadString: 1,
	BuiltinGetAt:      2,
	BuiltinSetAt:      3,
	BuiltinStrcat:     2,
}

// Verify checks every function of prog and reports all problems at once.
// Each reported error wraps ErrMalformed.
func Verify(prog *Program) error {
	var err error
	seen := make(map[string]bool)
	for _, fn := range prog.Functions {
		if seen[fn.Name] {
			err = multierr.Append(err, malformed(fn, "duplicate function"))
		}
		seen[fn.Name] = true
		err = multierr.Append(err, verifyFunction(prog, fn))
	}
	return err
}

func malformed(fn *Function, format string, args ...any) error {
	return fmt.Errorf("%s: %s: %w", fn.Name, fmt.Sprintf(format, args...), ErrMalformed)
}

func verifyFunction(prog *Program, fn *Function) error {
	var err error

	if strings.HasPrefix(fn.Name, "__") {
		err = multierr.Append(err, malformed(fn, "name is reserved for the runtime"))
	}
	for i, p := range fn.Params {
		if _, ok := p.(*Named); !ok {
			err = multierr.Append(err, malformed(fn, "parameter %d is %T, not a named variable", i, p))
		}
	}

	blocks := make(map[*Block]bool, len(fn.Blocks))
	for _, bl := range fn.Blocks {
		if blocks[bl] {
			err = multierr.Append(err, malformed(fn, "block b%d listed twice", bl.ID))
		}
		blocks[bl] = true
	}
	if fn.Entry == nil || !blocks[fn.Entry] {
		err = multierr.Append(err, malformed(fn, "missing entry block"))
	}
	if fn.Terminal == nil || !blocks[fn.Terminal] {
		err = multierr.Append(err, malformed(fn, "missing terminal block"))
	}

	// Temporaries never cross blocks, so definitions are tracked per function
	// to catch a use in a block other than the defining one.
	defBlock := make(map[*Temp]*Block)
	for _, bl := range fn.Blocks {
		read := make(map[*Temp]bool)
		for idx, inst := range bl.Insts {
			if idx < len(bl.Insts)-1 {
				switch inst.(type) {
				case *Jump, *CondJump, *Return:
					err = multierr.Append(err, malformed(fn, "b%d: control transfer before end of block", bl.ID))
				}
			}
			switch inst.(type) {
			case *Assign, *Binary, *Unary, *Typecast:
				if isNil(Def(inst)) {
					err = multierr.Append(err, malformed(fn, "b%d: %s has no destination", bl.ID, instName(inst)))
				}
			}
			if _, ok := Def(inst).(*Const); ok {
				err = multierr.Append(err, malformed(fn, "b%d: result stored into a constant", bl.ID))
			}

			for _, target := range Targets(inst) {
				if target == nil || !blocks[target] {
					err = multierr.Append(err, malformed(fn, "b%d: branch target outside function", bl.ID))
				}
			}

			for _, v := range Uses(inst) {
				if isNil(v) {
					err = multierr.Append(err, malformed(fn, "b%d: %s has a missing operand", bl.ID, instName(inst)))
					continue
				}
				t, ok := v.(*Temp)
				if !ok {
					continue
				}
				switch {
				case defBlock[t] == nil:
					err = multierr.Append(err, malformed(fn, "b%d: %s read before definition", bl.ID, t))
				case defBlock[t] != bl:
					err = multierr.Append(err, malformed(fn, "b%d: %s defined in b%d", bl.ID, t, defBlock[t].ID))
				case read[t]:
					err = multierr.Append(err, malformed(fn, "b%d: %s read twice", bl.ID, t))
				}
				read[t] = true
			}

			if t, ok := Def(inst).(*Temp); ok && t != nil {
				if defBlock[t] != nil {
					err = multierr.Append(err, malformed(fn, "b%d: %s defined twice", bl.ID, t))
				}
				defBlock[t] = bl
			}

			err = multierr.Append(err, verifyInst(prog, fn, bl, inst))
		}
	}
	return err
}

func verifyInst(prog *Program, fn *Function, bl *Block, inst Inst) error {
	switch i := inst.(type) {
	case *Call:
		if i.Callee == nil || prog.Function(i.Callee.Name) != i.Callee {
			return malformed(fn, "b%d: call to unknown function", bl.ID)
		}
		if len(i.Args) != len(i.Callee.Params) {
			return malformed(fn, "b%d: %s takes %d arguments, got %d",
				bl.ID, i.Callee.Name, len(i.Callee.Params), len(i.Args))
		}
	case *BuiltinCall:
		want, ok := builtinArity[i.Builtin]
		if !ok {
			return malformed(fn, "b%d: unknown built-in %s", bl.ID, i.Builtin)
		}
		if (want < 0 && len(i.Args) == 0) || (want >= 0 && len(i.Args) != want) {
			return malformed(fn, "b%d: %s got %d arguments", bl.ID, i.Builtin, len(i.Args))
		}
	case *Return:
		if i.Value != nil && fn.ReturnType == Void {
			return malformed(fn, "b%d: value returned from void function", bl.ID)
		}
	case *Declare:
		if i.Var == nil {
			return malformed(fn, "b%d: empty declaration", bl.ID)
		}
	}
	return nil
}

// isNil reports whether v is absent, including a typed nil pointer.
func isNil(v Value) bool {
	switch x := v.(type) {
	case nil:
		return true
	case *Named:
		return x == nil
	case *Temp:
		return x == nil
	case *Const:
		return x == nil
	}
	return false
}

func instName(inst Inst) string {
	switch i := inst.(type) {
	case *Assign:
		return "assign"
	case *Binary:
		return i.Op.String()
	case *Unary:
		return i.Op.String()
	case *Typecast:
		return "cast"
	case *CondJump:
		return "branch"
	case *Call:
		return "call"
	case *BuiltinCall:
		return i.Builtin.String()
	}
	return fmt.Sprintf("%T", inst)
}
