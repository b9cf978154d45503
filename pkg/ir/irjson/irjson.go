// Package irjson reads and writes IR programs as JSON.
//
// A program is a list of functions. Blocks are referenced by id, callees by
// name and variables by their declared name within the function. Operands
// take one of the forms
//
//	{"var": "x"}
//	{"temp": 3, "type": "int"}
//	{"int": 42}
//	{"char": "a"}
//	{"string": "hello"}
//
// A temporary must carry its type where it first appears; later references
// may omit it.
package irjson

import (
	"fmt"
	"io"

	"github.com/segmentio/encoding/json"

	"github.com/GriffinCanCode/minic/pkg/ir"
)

type programJSON struct {
	Functions []functionJSON `json:"functions"`
}

type functionJSON struct {
	Name     string      `json:"name"`
	Returns  string      `json:"returns,omitempty"`
	Params   []paramJSON `json:"params,omitempty"`
	Entry    int         `json:"entry"`
	Terminal int         `json:"terminal"`
	Blocks   []blockJSON `json:"blocks"`
}

type paramJSON struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type blockJSON struct {
	ID    int        `json:"id"`
	Insts []instJSON `json:"insts"`
}

type instJSON struct {
	Op      string        `json:"op"`
	Name    string        `json:"name,omitempty"`
	Type    string        `json:"type,omitempty"`
	Dest    *operandJSON  `json:"dest,omitempty"`
	Src     *operandJSON  `json:"src,omitempty"`
	L       *operandJSON  `json:"l,omitempty"`
	R       *operandJSON  `json:"r,omitempty"`
	Operand *operandJSON  `json:"operand,omitempty"`
	Cond    *operandJSON  `json:"cond,omitempty"`
	Value   *operandJSON  `json:"value,omitempty"`
	Callee  string        `json:"callee,omitempty"`
	Args    []operandJSON `json:"args,omitempty"`
	Target  *int          `json:"target,omitempty"`
	True    *int          `json:"true,omitempty"`
	False   *int          `json:"false,omitempty"`
}

type operandJSON struct {
	Var    string  `json:"var,omitempty"`
	Temp   *int    `json:"temp,omitempty"`
	Type   string  `json:"type,omitempty"`
	Int    *int32  `json:"int,omitempty"`
	Char   *string `json:"char,omitempty"`
	String *string `json:"string,omitempty"`
}

// Decode reads one JSON program from r.
func Decode(r io.Reader) (*ir.Program, error) {
	var pj programJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&pj); err != nil {
		return nil, fmt.Errorf("failed to decode program: %w", err)
	}
	return pj.program()
}

// Unmarshal parses a JSON program held in memory.
func Unmarshal(data []byte) (*ir.Program, error) {
	var pj programJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return nil, fmt.Errorf("failed to parse program: %w", err)
	}
	return pj.program()
}

func (pj *programJSON) program() (*ir.Program, error) {
	prog := &ir.Program{}
	byName := make(map[string]*ir.Function, len(pj.Functions))

	// Signatures first so calls may refer to functions defined later.
	for _, fj := range pj.Functions {
		ret, err := ir.ParseDataType(fj.Returns)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", fj.Name, err)
		}
		fn := &ir.Function{Name: fj.Name, ReturnType: ret}
		for _, p := range fj.Params {
			typ, err := ir.ParseDataType(p.Type)
			if err != nil {
				return nil, fmt.Errorf("function %s: parameter %s: %w", fj.Name, p.Name, err)
			}
			fn.Params = append(fn.Params, &ir.Named{Name: p.Name, DataType: typ})
		}
		byName[fj.Name] = fn
		prog.Functions = append(prog.Functions, fn)
	}

	for i := range pj.Functions {
		if err := decodeBody(&pj.Functions[i], prog.Functions[i], byName); err != nil {
			return nil, fmt.Errorf("function %s: %w", pj.Functions[i].Name, err)
		}
	}
	return prog, nil
}

type scope struct {
	vars   map[string]*ir.Named
	temps  map[int]*ir.Temp
	blocks map[int]*ir.Block
	funcs  map[string]*ir.Function
}

func decodeBody(fj *functionJSON, fn *ir.Function, funcs map[string]*ir.Function) error {
	sc := &scope{
		vars:   make(map[string]*ir.Named),
		temps:  make(map[int]*ir.Temp),
		blocks: make(map[int]*ir.Block),
		funcs:  funcs,
	}
	for _, p := range fn.Params {
		n := p.(*ir.Named)
		sc.vars[n.Name] = n
	}
	for _, bj := range fj.Blocks {
		if sc.blocks[bj.ID] != nil {
			return fmt.Errorf("duplicate block id %d", bj.ID)
		}
		bl := &ir.Block{ID: bj.ID}
		sc.blocks[bj.ID] = bl
		fn.Blocks = append(fn.Blocks, bl)
	}
	fn.Entry = sc.blocks[fj.Entry]
	fn.Terminal = sc.blocks[fj.Terminal]
	if fn.Entry == nil || fn.Terminal == nil {
		return fmt.Errorf("entry b%d or terminal b%d not among blocks", fj.Entry, fj.Terminal)
	}

	for i, bj := range fj.Blocks {
		bl := fn.Blocks[i]
		for j := range bj.Insts {
			inst, err := sc.inst(&bj.Insts[j])
			if err != nil {
				return fmt.Errorf("b%d instruction %d: %w", bj.ID, j, err)
			}
			bl.Insts = append(bl.Insts, inst)
			for _, target := range ir.Targets(inst) {
				bl.Succs = append(bl.Succs, target)
				target.Preds = append(target.Preds, bl)
			}
		}
	}
	return nil
}

func (sc *scope) inst(ij *instJSON) (ir.Inst, error) {
	switch ij.Op {
	case "declare":
		typ, err := ir.ParseDataType(ij.Type)
		if err != nil {
			return nil, err
		}
		v := &ir.Named{Name: ij.Name, DataType: typ}
		sc.vars[ij.Name] = v
		return &ir.Declare{Var: v}, nil

	case "assign":
		src, err := sc.operand(ij.Src)
		if err != nil {
			return nil, err
		}
		dest, err := sc.operand(ij.Dest)
		if err != nil {
			return nil, err
		}
		return &ir.Assign{Dest: dest, Src: src}, nil

	case "jump":
		target, err := sc.block(ij.Target)
		if err != nil {
			return nil, err
		}
		return &ir.Jump{Target: target}, nil

	case "branch":
		cond, err := sc.operand(ij.Cond)
		if err != nil {
			return nil, err
		}
		t, err := sc.block(ij.True)
		if err != nil {
			return nil, err
		}
		f, err := sc.block(ij.False)
		if err != nil {
			return nil, err
		}
		return &ir.CondJump{Cond: cond, True: t, False: f}, nil

	case "return":
		if ij.Value == nil {
			return &ir.Return{}, nil
		}
		v, err := sc.operand(ij.Value)
		if err != nil {
			return nil, err
		}
		return &ir.Return{Value: v}, nil

	case "call":
		callee := sc.funcs[ij.Callee]
		if callee == nil {
			return nil, fmt.Errorf("unknown function %q", ij.Callee)
		}
		args, err := sc.operands(ij.Args)
		if err != nil {
			return nil, err
		}
		dest, err := sc.optionalTemp(ij.Dest)
		if err != nil {
			return nil, err
		}
		return &ir.Call{Dest: dest, Callee: callee, Args: args}, nil

	case "builtin":
		bi, ok := ir.ParseBuiltin(ij.Name)
		if !ok {
			return nil, fmt.Errorf("unknown built-in %q", ij.Name)
		}
		args, err := sc.operands(ij.Args)
		if err != nil {
			return nil, err
		}
		dest, err := sc.optionalTemp(ij.Dest)
		if err != nil {
			return nil, err
		}
		return &ir.BuiltinCall{Dest: dest, Builtin: bi, Args: args}, nil

	case "cast":
		src, err := sc.operand(ij.Src)
		if err != nil {
			return nil, err
		}
		dest, err := sc.operand(ij.Dest)
		if err != nil {
			return nil, err
		}
		return &ir.Typecast{Dest: dest, Src: src}, nil
	}

	if op, ok := ir.ParseBinaryOp(ij.Op); ok {
		l, err := sc.operand(ij.L)
		if err != nil {
			return nil, err
		}
		r, err := sc.operand(ij.R)
		if err != nil {
			return nil, err
		}
		dest, err := sc.operand(ij.Dest)
		if err != nil {
			return nil, err
		}
		return &ir.Binary{Op: op, Dest: dest, L: l, R: r}, nil
	}
	if op, ok := ir.ParseUnaryOp(ij.Op); ok {
		v, err := sc.operand(ij.Operand)
		if err != nil {
			return nil, err
		}
		dest, err := sc.operand(ij.Dest)
		if err != nil {
			return nil, err
		}
		return &ir.Unary{Op: op, Dest: dest, Operand: v}, nil
	}
	return nil, fmt.Errorf("unknown op %q", ij.Op)
}

func (sc *scope) block(id *int) (*ir.Block, error) {
	if id == nil {
		return nil, fmt.Errorf("missing block reference")
	}
	bl := sc.blocks[*id]
	if bl == nil {
		return nil, fmt.Errorf("unknown block b%d", *id)
	}
	return bl, nil
}

func (sc *scope) operands(ops []operandJSON) ([]ir.Value, error) {
	vals := make([]ir.Value, 0, len(ops))
	for i := range ops {
		v, err := sc.operand(&ops[i])
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func (sc *scope) optionalTemp(oj *operandJSON) (*ir.Temp, error) {
	if oj == nil {
		return nil, nil
	}
	v, err := sc.operand(oj)
	if err != nil {
		return nil, err
	}
	t, ok := v.(*ir.Temp)
	if !ok {
		return nil, fmt.Errorf("call result must be a temporary, got %s", v)
	}
	return t, nil
}

func (sc *scope) operand(oj *operandJSON) (ir.Value, error) {
	if oj == nil {
		return nil, fmt.Errorf("missing operand")
	}
	switch {
	case oj.Var != "":
		v := sc.vars[oj.Var]
		if v == nil {
			return nil, fmt.Errorf("undeclared variable %q", oj.Var)
		}
		return v, nil

	case oj.Temp != nil:
		if t := sc.temps[*oj.Temp]; t != nil {
			return t, nil
		}
		if oj.Type == "" {
			return nil, fmt.Errorf("temp %d has no type where it first appears", *oj.Temp)
		}
		typ, err := ir.ParseDataType(oj.Type)
		if err != nil {
			return nil, err
		}
		t := &ir.Temp{ID: *oj.Temp, DataType: typ}
		sc.temps[*oj.Temp] = t
		return t, nil

	case oj.Int != nil:
		return ir.Int32(*oj.Int), nil

	case oj.Char != nil:
		runes := []rune(*oj.Char)
		if len(runes) != 1 || runes[0] > 0xff {
			return nil, fmt.Errorf("char literal %q is not a single byte", *oj.Char)
		}
		return ir.CharLit(byte(runes[0])), nil

	case oj.String != nil:
		return ir.StringLit(*oj.String), nil
	}
	return nil, fmt.Errorf("empty operand")
}
