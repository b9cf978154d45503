package ir

import (
	"errors"
	"strings"
	"testing"

	"go.uber.org/multierr"
)

func buildMax() *Program {
	b := NewBuilder()
	x := Param("x", Int)
	y := Param("y", Int)
	b.Function("max", Int, x, y)
	res := b.Local("res", Int)
	then := b.NewBlock()
	els := b.NewBlock()
	cond := b.Binary(OpGt, x, y)
	b.CondJump(cond, then, els)

	b.SetBlock(then)
	b.Assign(res, x)
	b.Jump(b.Terminal())

	b.SetBlock(els)
	b.Assign(res, y)
	b.Jump(b.Terminal())

	b.SetBlock(b.Terminal())
	b.Return(res)
	return b.Program()
}

func TestBuilderLayout(t *testing.T) {
	prog := buildMax()
	fn := prog.Function("max")
	if fn == nil {
		t.Fatal("function max not found")
	}
	if len(fn.Blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(fn.Blocks))
	}
	if fn.Blocks[0] != fn.Entry {
		t.Error("entry block should come first")
	}
	if fn.Blocks[len(fn.Blocks)-1] != fn.Terminal {
		t.Error("terminal block should come last")
	}
	if len(fn.Terminal.Preds) != 2 {
		t.Errorf("terminal should have 2 predecessors, got %d", len(fn.Terminal.Preds))
	}
	if len(fn.Entry.Succs) != 2 {
		t.Errorf("entry should have 2 successors, got %d", len(fn.Entry.Succs))
	}
	if err := Verify(prog); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestBuilderCountersAreMonotonic(t *testing.T) {
	b := NewBuilder()
	b.Function("f", Int)
	t0 := b.Binary(OpAdd, Int32(1), Int32(2))
	t1 := b.Binary(OpAdd, t0, Int32(3))
	b.Return(t1)
	b.Function("g", Int)
	t2 := b.Unary(OpNeg, Int32(4))
	b.Return(t2)
	prog := b.Program()

	if t0.ID >= t1.ID || t1.ID >= t2.ID {
		t.Errorf("temp ids not increasing: %d %d %d", t0.ID, t1.ID, t2.ID)
	}
	f, g := prog.Function("f"), prog.Function("g")
	if f.Entry.ID == g.Entry.ID {
		t.Error("block ids must be unique across functions")
	}
}

func TestBuilderResultTypes(t *testing.T) {
	b := NewBuilder()
	b.Function("f", Void)
	tests := []struct {
		name string
		got  *Temp
		want DataType
	}{
		{"relational", b.Binary(OpLt, CharLit('a'), CharLit('b')), Int},
		{"char_arith", b.Binary(OpAdd, CharLit('a'), CharLit(1)), Char},
		{"mixed_arith", b.Binary(OpAdd, CharLit('a'), Int32(1)), Int},
		{"not", b.Unary(OpNot, CharLit('a')), Int},
		{"cast", b.Cast(Int32(65), Char), Char},
		{"get_at", b.Builtin(BuiltinGetAt, StringLit("ab"), Int32(1)), Char},
		{"strcat", b.Builtin(BuiltinStrcat, StringLit("a"), StringLit("b")), String},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got.Type() != tt.want {
				t.Errorf("got %s, want %s", tt.got.Type(), tt.want)
			}
		})
	}
	if dest := b.Builtin(BuiltinPrint, Int32(1)); dest != nil {
		t.Error("print should not produce a result")
	}
}

func TestConstEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b *Const
		want bool
	}{
		{"same_int", Int32(5), Int32(5), true},
		{"different_int", Int32(5), Int32(6), false},
		{"int_vs_char", Int32(97), CharLit('a'), false},
		{"same_string", StringLit("hi"), StringLit("hi"), true},
		{"different_string", StringLit("hi"), StringLit("ho"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal = %v, want %v", got, tt.want)
			}
		})
	}
	if !Int32(0).IsZero() || !CharLit(0).IsZero() || StringLit("").IsZero() {
		t.Error("IsZero misclassifies constants")
	}
}

func TestParseRoundTrip(t *testing.T) {
	for op := OpAdd; op <= OpBitOr; op++ {
		got, ok := ParseBinaryOp(op.String())
		if !ok || got != op {
			t.Errorf("ParseBinaryOp(%q) = %v, %v", op.String(), got, ok)
		}
	}
	for op := OpNot; op <= OpNeg; op++ {
		got, ok := ParseUnaryOp(op.String())
		if !ok || got != op {
			t.Errorf("ParseUnaryOp(%q) = %v, %v", op.String(), got, ok)
		}
	}
	for bi := BuiltinPrint; bi <= BuiltinStrcat; bi++ {
		got, ok := ParseBuiltin(bi.String())
		if !ok || got != bi {
			t.Errorf("ParseBuiltin(%q) = %v, %v", bi.String(), got, ok)
		}
	}
	for _, dt := range []DataType{Int, Char, String, Void} {
		got, err := ParseDataType(dt.String())
		if err != nil || got != dt {
			t.Errorf("ParseDataType(%q) = %v, %v", dt.String(), got, err)
		}
	}
	if _, err := ParseDataType("float"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestFormat(t *testing.T) {
	out := Format(buildMax())
	for _, want := range []string{
		"func max(x int, y int) int {",
		"declare res int",
		"= gt x, y",
		"res = x",
		"return res",
		"; entry",
		"; terminal",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}

func TestVerifyMalformed(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Program
		want  string
	}{
		{
			name: "temp_param",
			build: func() *Program {
				b := NewBuilder()
				fn := b.Function("f", Void)
				fn.Params = append(fn.Params, &Temp{ID: 99, DataType: Int})
				return b.Program()
			},
			want: "not a named variable",
		},
		{
			name: "foreign_target",
			build: func() *Program {
				b := NewBuilder()
				b.Function("f", Void)
				b.Emit(&Jump{Target: &Block{ID: 1000}})
				return b.Program()
			},
			want: "branch target outside function",
		},
		{
			name: "temp_read_twice",
			build: func() *Program {
				b := NewBuilder()
				b.Function("f", Int)
				t0 := b.Binary(OpAdd, Int32(1), Int32(2))
				b.Binary(OpAdd, t0, t0)
				b.Return(Int32(0))
				return b.Program()
			},
			want: "read twice",
		},
		{
			name: "temp_crosses_block",
			build: func() *Program {
				b := NewBuilder()
				b.Function("f", Int)
				t0 := b.Binary(OpAdd, Int32(1), Int32(2))
				b.Jump(b.Terminal())
				b.SetBlock(b.Terminal())
				b.Return(t0)
				return b.Program()
			},
			want: "defined in b",
		},
		{
			name: "arity",
			build: func() *Program {
				b := NewBuilder()
				g := b.Function("g", Int, Param("a", Int))
				b.Return(Int32(1))
				b.Function("f", Void)
				b.Emit(&Call{Callee: g})
				return b.Program()
			},
			want: "takes 1 arguments, got 0",
		},
		{
			name: "unknown_callee",
			build: func() *Program {
				b := NewBuilder()
				ghost := b.Declare("ghost", Void)
				b.Function("f", Void)
				b.Call(ghost)
				return b.Program()
			},
			want: "unknown function",
		},
		{
			name: "reserved_name",
			build: func() *Program {
				b := NewBuilder()
				b.Function("__strcmp", Void)
				return b.Program()
			},
			want: "reserved",
		},
		{
			name: "binary_missing_operand",
			build: func() *Program {
				b := NewBuilder()
				b.Function("f", Void)
				b.Emit(&Binary{Op: OpAdd, Dest: &Temp{ID: 52, DataType: Int}, R: Int32(2)})
				return b.Program()
			},
			want: "missing operand",
		},
		{
			name: "unary_typed_nil_operand",
			build: func() *Program {
				b := NewBuilder()
				b.Function("f", Void)
				b.Emit(&Unary{Op: OpNeg, Dest: &Temp{ID: 50, DataType: Int}, Operand: (*Named)(nil)})
				return b.Program()
			},
			want: "missing operand",
		},
		{
			name: "assign_without_destination",
			build: func() *Program {
				b := NewBuilder()
				b.Function("f", Void)
				b.Emit(&Assign{Src: Int32(1)})
				return b.Program()
			},
			want: "assign has no destination",
		},
		{
			name: "cast_without_source",
			build: func() *Program {
				b := NewBuilder()
				b.Function("f", Void)
				b.Emit(&Typecast{Dest: &Temp{ID: 51, DataType: Char}})
				return b.Program()
			},
			want: "cast has a missing operand",
		},
		{
			name: "missing_terminal",
			build: func() *Program {
				return &Program{Functions: []*Function{{Name: "f", Entry: &Block{}}}}
			},
			want: "missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.build())
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("error does not wrap ErrMalformed: %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in %v", tt.want, err)
			}
		})
	}
}

func TestVerifyAggregates(t *testing.T) {
	b := NewBuilder()
	b.Function("__a", Void)
	b.Function("__b", Void)
	err := Verify(b.Program())
	if n := len(multierr.Errors(err)); n != 2 {
		t.Errorf("expected 2 aggregated errors, got %d: %v", n, err)
	}
}

func TestForwardCallVerifies(t *testing.T) {
	b := NewBuilder()
	helper := b.Declare("helper", Int, Param("n", Int))
	b.Function("main", Int)
	r := b.Call(helper, Int32(3))
	b.Return(r)
	b.Define(helper)
	b.Return(helper.Params[0])
	if err := Verify(b.Program()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}
