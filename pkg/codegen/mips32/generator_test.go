package mips32

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/GriffinCanCode/minic/pkg/codegen/arch"
	"github.com/GriffinCanCode/minic/pkg/ir"
)

func compile(t *testing.T, prog *ir.Program, opts Options) string {
	t.Helper()
	opts.Validate = true
	var buf bytes.Buffer
	if err := NewGenerator(&buf, opts).Generate(prog); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return buf.String()
}

// seq joins instructions the way they appear in the output.
func seq(insts ...string) string {
	return "\t" + strings.Join(insts, "\n\t") + "\n"
}

func assertContains(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("expected %q in output:\n%s", w, out)
		}
	}
}

// binaryProgram builds main(x, y) returning x op y.
func binaryProgram(op ir.BinaryOp) *ir.Program {
	b := ir.NewBuilder()
	x := ir.Param("x", ir.Int)
	y := ir.Param("y", ir.Int)
	b.Function("main", ir.Int, x, y)
	b.Return(b.Binary(op, x, y))
	return b.Program()
}

func TestGenerateStructure(t *testing.T) {
	b := ir.NewBuilder()
	b.Function("main", ir.Int)
	b.Return(ir.Int32(42))
	out := compile(t, b.Program(), Options{})

	assertContains(t, out,
		"__start:\n"+seq("la $gp, __arena", "jal main", "break"),
		"__copy_string:",
		"__strcmp:",
		"__strcat:",
		"main:\n"+seq("addiu $sp, $sp, -8", "sw $ra, 4($sp)", "sw $fp, 0($sp)", "move $fp, $sp"),
		"main_$0:\n"+seq("li $t0, 42", "move $v0, $t0", "j main_$return"),
		"main_$1:\nmain_$return:\n",
		seq("move $sp, $fp", "lw $fp, 0($sp)", "lw $ra, 4($sp)", "addiu $sp, $sp, 8", "jr $ra"),
		"\t.data\n",
		"__arena:",
	)
	if strings.Index(out, "__start:") > strings.Index(out, "main:") {
		t.Error("runtime preamble should precede the functions")
	}
}

func TestLessOrEqualSequence(t *testing.T) {
	out := compile(t, binaryProgram(ir.OpLe), Options{})
	assertContains(t, out, seq(
		"lw $t0, -4($fp)",
		"lw $t1, -8($fp)",
		"slt $t2, $t0, $t1",
		"xor $t3, $t0, $t1",
		"sltiu $t3, $t3, 1",
		"or $t4, $t2, $t3",
		"move $v0, $t4",
	))
}

func TestBinaryLowering(t *testing.T) {
	tests := []struct {
		name string
		op   ir.BinaryOp
		want string
	}{
		{"add", ir.OpAdd, seq("addu $t2, $t0, $t1")},
		{"sub", ir.OpSub, seq("subu $t2, $t0, $t1")},
		{"mul", ir.OpMul, seq("mul $t2, $t0, $t1")},
		{"div", ir.OpDiv, seq("div $t0, $t1", "mflo $t2")},
		{"mod", ir.OpMod, seq("div $t0, $t1", "mfhi $t2")},
		{"lt", ir.OpLt, seq("slt $t2, $t0, $t1")},
		{"gt", ir.OpGt, seq("slt $t2, $t1, $t0")},
		{"ge", ir.OpGe, seq("slt $t2, $t1, $t0", "xor $t3, $t1, $t0", "sltiu $t3, $t3, 1", "or $t4, $t2, $t3")},
		{"eq", ir.OpEq, seq("xor $t2, $t0, $t1", "sltiu $t2, $t2, 1")},
		{"ne", ir.OpNe, seq("xor $t2, $t0, $t1", "sltu $t2, $0, $t2")},
		{"and", ir.OpAnd, seq("sltu $t2, $0, $t0", "sltu $t3, $0, $t1", "and $t4, $t2, $t3")},
		{"or", ir.OpOr, seq("sltu $t2, $0, $t0", "sltu $t3, $0, $t1", "or $t4, $t2, $t3")},
		{"bitand", ir.OpBitAnd, seq("and $t2, $t0, $t1")},
		{"bitor", ir.OpBitOr, seq("or $t2, $t0, $t1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := compile(t, binaryProgram(tt.op), Options{})
			assertContains(t, out, tt.want)
		})
	}
}

func TestUnaryLowering(t *testing.T) {
	tests := []struct {
		name string
		op   ir.UnaryOp
		want string
	}{
		{"not", ir.OpNot, "sltiu $t1, $t0, 1"},
		{"bitnot", ir.OpBitNot, "nor $t1, $t0, $0"},
		{"neg", ir.OpNeg, "subu $t1, $0, $t0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ir.NewBuilder()
			x := ir.Param("x", ir.Int)
			b.Function("main", ir.Int, x)
			b.Return(b.Unary(tt.op, x))
			out := compile(t, b.Program(), Options{})
			assertContains(t, out, tt.want)
		})
	}
}

func TestTypecastLowering(t *testing.T) {
	tests := []struct {
		name string
		from ir.DataType
		to   ir.DataType
		want string
	}{
		{"int_to_char", ir.Int, ir.Char, seq("andi $t1, $t0, 255")},
		{"char_to_int", ir.Char, ir.Int, seq("move $t1, $t0")},
		{"char_to_string", ir.Char, ir.String, seq("sb $t0, 0($gp)", "sb $0, 1($gp)", "move $t1, $gp", "addiu $gp, $gp, 2")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ir.NewBuilder()
			x := ir.Param("x", tt.from)
			b.Function("main", tt.to, x)
			b.Return(b.Cast(x, tt.to))
			out := compile(t, b.Program(), Options{})
			assertContains(t, out, tt.want)
		})
	}
}

func TestIdentityCastReusesRegister(t *testing.T) {
	b := ir.NewBuilder()
	x := ir.Param("x", ir.Int)
	b.Function("main", ir.Int, x)
	b.Return(b.Cast(x, ir.Int))
	out := compile(t, b.Program(), Options{})
	assertContains(t, out, seq("lw $t0, -4($fp)", "move $t1, $t0", "move $v0, $t1"))
}

func TestUnsupportedCast(t *testing.T) {
	tests := []struct {
		name string
		src  ir.Value
		to   ir.DataType
	}{
		{"int_to_string", ir.Int32(5), ir.String},
		{"string_to_int", ir.StringLit("5"), ir.Int},
		{"string_to_char", ir.StringLit("x"), ir.Char},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ir.NewBuilder()
			b.Function("main", ir.Int)
			b.Cast(tt.src, tt.to)
			b.Return(ir.Int32(0))

			var buf bytes.Buffer
			err := NewGenerator(&buf, Options{}).Generate(b.Program())
			if !errors.Is(err, ErrUnsupportedCast) {
				t.Errorf("expected ErrUnsupportedCast, got %v", err)
			}
			if buf.Len() != 0 {
				t.Error("failed compilation wrote output")
			}
		})
	}
}

func TestStringComparison(t *testing.T) {
	tests := []struct {
		name string
		op   ir.BinaryOp
		args string
		test string
	}{
		{"lt", ir.OpLt, seq("move $a0, $t0", "move $a1, $t1"), "slt $t2, $v0, $0"},
		{"le", ir.OpLe, seq("move $a0, $t0", "move $a1, $t1"), "slti $t2, $v0, 1"},
		{"gt", ir.OpGt, seq("move $a0, $t1", "move $a1, $t0"), "slt $t2, $v0, $0"},
		{"ge", ir.OpGe, seq("move $a0, $t1", "move $a1, $t0"), "slti $t2, $v0, 1"},
		{"eq", ir.OpEq, seq("move $a0, $t0", "move $a1, $t1"), "sltiu $t2, $v0, 1"},
		{"ne", ir.OpNe, seq("move $a0, $t0", "move $a1, $t1"), "sltu $t2, $0, $v0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ir.NewBuilder()
			b.Function("main", ir.Int)
			b.Return(b.Binary(tt.op, ir.StringLit("apple"), ir.StringLit("pear")))
			out := compile(t, b.Program(), Options{})
			assertContains(t, out,
				seq("la $t0, String_0", "la $t1, String_1"),
				tt.args+seq("jal __strcmp", tt.test),
				"String_0:\t.asciiz \"apple\"",
				"String_1:\t.asciiz \"pear\"",
			)
		})
	}
}

func TestCallArgumentPlacement(t *testing.T) {
	b := ir.NewBuilder()
	var params []*ir.Named
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		params = append(params, ir.Param(name, ir.Int))
	}
	f := b.Function("f", ir.Int, params...)
	b.Return(params[4])
	b.Function("main", ir.Void)
	b.Call(f, ir.Int32(1), ir.Int32(2), ir.Int32(3), ir.Int32(4), ir.Int32(5))
	b.Return(nil)

	out := compile(t, b.Program(), Options{})
	assertContains(t, out,
		// The fifth argument arrives on the caller's stack.
		seq("lw $a0, 8($fp)", "sw $a0, -20($fp)"),
		seq(
			"addiu $sp, $sp, -8",
			"sw $gp, 4($sp)",
			"li $t0, 1",
			"move $a0, $t0",
			"li $t1, 2",
			"move $a1, $t1",
			"li $t2, 3",
			"move $a2, $t2",
			"li $t3, 4",
			"move $a3, $t3",
			"li $t4, 5",
			"sw $t4, 0($sp)",
			"jal f",
			"lw $gp, 4($sp)",
			"addiu $sp, $sp, 8",
			"move $t0, $v0",
		),
	)
}

func TestCallWithoutStackArguments(t *testing.T) {
	b := ir.NewBuilder()
	f := b.Function("f", ir.Void)
	b.Return(nil)
	b.Function("main", ir.Void)
	b.Call(f)
	b.Return(nil)

	out := compile(t, b.Program(), Options{})
	assertContains(t, out, seq("addiu $sp, $sp, -4", "sw $gp, 0($sp)", "jal f", "lw $gp, 0($sp)", "addiu $sp, $sp, 4"))
	if strings.Contains(out, "move $t0, $v0") {
		t.Error("void call should not bind a result")
	}
}

func TestStringReturnIsCopied(t *testing.T) {
	b := ir.NewBuilder()
	greet := b.Function("greet", ir.String)
	b.Return(ir.StringLit("hi"))
	b.Function("main", ir.Void)
	s := b.Call(greet)
	b.Builtin(ir.BuiltinPrint, s)
	b.Return(nil)

	out := compile(t, b.Program(), Options{})
	assertContains(t, out,
		seq("la $t0, String_0", "move $v0, $t0"),
		seq("jal greet", "lw $gp, 0($sp)", "addiu $sp, $sp, 4",
			"move $a0, $v0", "jal __copy_string", "move $t0, $v0", "print_string $t0"),
	)
}

func TestCallFlushesAndEvicts(t *testing.T) {
	b := ir.NewBuilder()
	f := b.Function("f", ir.Void)
	b.Return(nil)
	b.Function("main", ir.Int)
	x := b.Local("x", ir.Int)
	b.Assign(x, ir.Int32(7))
	b.Call(f)
	b.Return(x)

	out := compile(t, b.Program(), Options{})
	// x is written back before the call and reloaded after it.
	assertContains(t, out,
		seq("li $t0, 7", "move $t1, $t0", "sw $t1, -4($fp)", "addiu $sp, $sp, -4"),
		seq("addiu $sp, $sp, 4", "lw $t0, -4($fp)", "move $v0, $t0"),
	)
}

func TestFlushBeforeJump(t *testing.T) {
	b := ir.NewBuilder()
	b.Function("main", ir.Int)
	x := b.Local("x", ir.Int)
	b.Assign(x, ir.Int32(7))
	next := b.NewBlock()
	b.Jump(next)
	b.SetBlock(next)
	b.Return(x)

	out := compile(t, b.Program(), Options{})
	assertContains(t, out,
		seq("li $t0, 7", "move $t1, $t0", "sw $t1, -4($fp)", "j main_$2"),
		"main_$2:\n"+seq("lw $t0, -4($fp)", "move $v0, $t0", "j main_$return"),
	)
}

func TestConditionalJump(t *testing.T) {
	b := ir.NewBuilder()
	x := ir.Param("x", ir.Int)
	b.Function("main", ir.Int, x)
	then := b.NewBlock()
	els := b.NewBlock()
	b.CondJump(b.Binary(ir.OpLt, x, ir.Int32(10)), then, els)
	b.SetBlock(then)
	b.Assign(x, ir.Int32(1))
	b.Return(x)
	b.SetBlock(els)
	b.Return(ir.Int32(0))

	out := compile(t, b.Program(), Options{})
	assertContains(t, out,
		seq("lw $t0, -4($fp)", "li $t1, 10", "slt $t2, $t0, $t1", "bne $t2, $0, main_$2", "j main_$3"),
		// Dirty x is stored before control leaves the block.
		"main_$2:\n"+seq("li $t0, 1", "move $t1, $t0", "move $v0, $t1", "sw $t1, -4($fp)", "j main_$return"),
		"main_$3:\n"+seq("move $v0, $0", "j main_$return"),
	)
}

func TestFallThroughFlushesNamed(t *testing.T) {
	b := ir.NewBuilder()
	b.Function("main", ir.Int)
	x := b.Local("x", ir.Int)
	b.Assign(x, ir.Int32(3))
	next := b.NewBlock()
	b.SetBlock(next)
	b.Return(x)

	out := compile(t, b.Program(), Options{})
	assertContains(t, out, seq("move $t1, $t0", "sw $t1, -4($fp)")+"main_$2:\n")
}

func TestSpillUnderPressure(t *testing.T) {
	b := ir.NewBuilder()
	x := ir.Param("x", ir.Int)
	b.Function("main", ir.Int, x)
	var temps []*ir.Temp
	for i := int32(1); i <= 6; i++ {
		temps = append(temps, b.Binary(ir.OpAdd, x, ir.Int32(i)))
	}
	sum := b.Binary(ir.OpAdd, temps[0], temps[1])
	for _, tmp := range temps[2:] {
		sum = b.Binary(ir.OpAdd, sum, tmp)
	}
	b.Return(sum)

	out := compile(t, b.Program(), Options{
		Arch:     arch.New(arch.WithEvalRegisters(5)),
		Comments: true,
	})
	assertContains(t, out, "\tsw $t2, -8($fp)", "# spill %t0")

	reloaded := false
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "\tlw ") && strings.HasSuffix(line, ", -8($fp)") {
			reloaded = true
		}
	}
	if !reloaded {
		t.Errorf("spilled temporary never reloaded:\n%s", out)
	}
	if strings.Contains(out, "$t5") {
		t.Error("restricted register file leaked $t5")
	}
}

func TestCalleeSavedRegisters(t *testing.T) {
	b := ir.NewBuilder()
	x := ir.Param("x", ir.Int)
	b.Function("main", ir.Int, x)
	var temps []*ir.Temp
	for i := int32(1); i <= 5; i++ {
		temps = append(temps, b.Binary(ir.OpAdd, x, ir.Int32(i)))
	}
	sum := temps[0]
	for _, tmp := range temps[1:] {
		sum = b.Binary(ir.OpAdd, sum, tmp)
	}
	b.Return(sum)

	out := compile(t, b.Program(), Options{})
	assertContains(t, out,
		seq("addiu $sp, $sp, -12", "sw $a0, -4($fp)", "sw $s0, -8($fp)", "sw $s1, -12($fp)"),
		"main_$return:\n"+seq("lw $s0, -8($fp)", "lw $s1, -12($fp)", "move $sp, $fp"),
	)
}

func TestBuiltins(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *ir.Builder)
		want  string
	}{
		{
			name: "print",
			build: func(b *ir.Builder) {
				b.Builtin(ir.BuiltinPrint, ir.Int32(5), ir.CharLit('a'), ir.StringLit("s"))
			},
			want: seq("li $t0, 5", "print_int $t0", "li $t1, 97", "print_char $t1", "la $t2, String_0", "print_string $t2"),
		},
		{
			name: "read_int",
			build: func(b *ir.Builder) {
				b.Builtin(ir.BuiltinPrint, b.Builtin(ir.BuiltinReadInt))
			},
			want: seq("read_int $t0", "print_int $t0"),
		},
		{
			name: "read_char",
			build: func(b *ir.Builder) {
				b.Builtin(ir.BuiltinPrint, b.Builtin(ir.BuiltinReadChar))
			},
			want: seq("read_char $t0", "print_char $t0"),
		},
		{
			name: "read_string",
			build: func(b *ir.Builder) {
				b.Builtin(ir.BuiltinPrint, b.Builtin(ir.BuiltinReadString, ir.Int32(10)))
			},
			want: seq("li $t0, 10", "move $t1, $gp", "read_string $t1, $t0",
				"addu $gp, $gp, $t0", "addiu $gp, $gp, 1", "move $t2, $t1", "print_string $t2"),
		},
		{
			name: "get_at",
			build: func(b *ir.Builder) {
				b.Builtin(ir.BuiltinPrint, b.Builtin(ir.BuiltinGetAt, ir.StringLit("abc"), ir.Int32(1)))
			},
			want: seq("la $t0, String_0", "li $t1, 1", "addu $t2, $t0, $t1", "lbu $t3, 0($t2)", "print_char $t3"),
		},
		{
			name: "set_at",
			build: func(b *ir.Builder) {
				b.Builtin(ir.BuiltinPrint, b.Builtin(ir.BuiltinSetAt, ir.StringLit("abc"), ir.Int32(1), ir.CharLit('x')))
			},
			want: seq("la $t0, String_0", "li $t1, 1", "li $t2, 120", "move $a0, $t0", "jal __copy_string",
				"addu $t3, $v0, $t1", "sb $t2, 0($t3)", "move $t4, $v0", "print_string $t4"),
		},
		{
			name: "strcat",
			build: func(b *ir.Builder) {
				b.Builtin(ir.BuiltinPrint, b.Builtin(ir.BuiltinStrcat, ir.StringLit("ab"), ir.StringLit("cd")))
			},
			want: seq("la $t0, String_0", "la $t1, String_1", "move $a0, $t0", "move $a1, $t1",
				"jal __strcat", "move $t2, $v0", "print_string $t2"),
		},
		{
			name: "discarded_read",
			build: func(b *ir.Builder) {
				b.Emit(&ir.BuiltinCall{Builtin: ir.BuiltinReadInt})
			},
			want: seq("read_int $t0", "j main_$return"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ir.NewBuilder()
			b.Function("main", ir.Void)
			tt.build(b)
			b.Return(nil)
			out := compile(t, b.Program(), Options{})
			assertContains(t, out, tt.want)
		})
	}
}

func TestStringPoolDeduplication(t *testing.T) {
	b := ir.NewBuilder()
	b.Function("main", ir.Void)
	b.Builtin(ir.BuiltinPrint, ir.StringLit("hello"))
	b.Builtin(ir.BuiltinPrint, ir.StringLit("hello"))
	b.Builtin(ir.BuiltinPrint, ir.StringLit("bye"))
	b.Return(nil)

	out := compile(t, b.Program(), Options{})
	if n := strings.Count(out, ".asciiz"); n != 2 {
		t.Errorf("expected 2 literals, got %d:\n%s", n, out)
	}
	assertContains(t, out, "String_0:\t.asciiz \"hello\"\nString_1:\t.asciiz \"bye\"\n")
}

func TestCodeSizeBudget(t *testing.T) {
	b := ir.NewBuilder()
	b.Function("main", ir.Int)
	b.Return(ir.Int32(1))
	prog := b.Program()

	var buf bytes.Buffer
	err := NewGenerator(&buf, Options{Budget: 32}).Generate(prog)
	if !errors.Is(err, ErrCodeSizeExceeded) {
		t.Fatalf("expected ErrCodeSizeExceeded, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("no output expected when over budget, got:\n%s", buf.String())
	}

	if _, err := NewGenerator(nil, Options{}).GenerateString(prog); err != nil {
		t.Errorf("default budget should fit a tiny program: %v", err)
	}
}

func TestMalformedProgram(t *testing.T) {
	tests := []struct {
		name  string
		build func() *ir.Program
	}{
		{
			name: "no_main",
			build: func() *ir.Program {
				b := ir.NewBuilder()
				b.Function("helper", ir.Void)
				b.Return(nil)
				return b.Program()
			},
		},
		{
			name: "temporary_across_blocks",
			build: func() *ir.Program {
				b := ir.NewBuilder()
				b.Function("main", ir.Int)
				t0 := b.Binary(ir.OpAdd, ir.Int32(1), ir.Int32(2))
				next := b.NewBlock()
				b.Jump(next)
				b.SetBlock(next)
				b.Return(t0)
				return b.Program()
			},
		},
		{
			name: "cast_without_source",
			build: func() *ir.Program {
				b := ir.NewBuilder()
				b.Function("main", ir.Int)
				b.Emit(&ir.Typecast{Dest: &ir.Temp{ID: 90, DataType: ir.Char}})
				b.Return(ir.Int32(0))
				return b.Program()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGenerator(nil, Options{}).GenerateString(tt.build())
			if !errors.Is(err, ir.ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestRegisterShortage(t *testing.T) {
	b := ir.NewBuilder()
	x := ir.Param("x", ir.Int)
	y := ir.Param("y", ir.Int)
	b.Function("main", ir.Int, x, y)
	b.Return(b.Binary(ir.OpLe, x, y))

	_, err := NewGenerator(nil, Options{Arch: arch.New(arch.WithEvalRegisters(4))}).GenerateString(b.Program())
	if err == nil || !strings.Contains(err.Error(), "no register available") {
		t.Errorf("expected a register shortage, got %v", err)
	}
}
