// Package asm accumulates assembly text and tracks its encoded size.
package asm

import (
	"fmt"
	"io"
	"strings"

	"github.com/GriffinCanCode/minic/pkg/codegen/arch"
)

// InstSize is the encoded size of one machine instruction.
const InstSize = arch.WordSize

// pseudo-instructions that expand to two machine instructions
var wide = map[string]bool{
	"li": true,
	"la": true,
}

// Buffer is an append-only list of assembly lines.
type Buffer struct {
	lines    []string
	size     int
	insts    int
	comments bool
}

// NewBuffer returns an empty buffer. Comments are dropped unless enabled.
func NewBuffer(comments bool) *Buffer {
	return &Buffer{comments: comments}
}

// Inst appends one instruction. Operands are separated by ", ".
func (b *Buffer) Inst(op string, args ...any) {
	var sb strings.Builder
	sb.WriteByte('\t')
	sb.WriteString(op)
	for i, a := range args {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		fmt.Fprint(&sb, a)
	}
	b.add(op, sb.String())
}

// Line appends a preformatted instruction such as "move $fp, $sp".
func (b *Buffer) Line(text string) {
	op, _, _ := strings.Cut(text, " ")
	b.add(op, "\t"+text)
}

func (b *Buffer) add(op, line string) {
	b.lines = append(b.lines, line)
	b.insts++
	if wide[op] {
		b.size += 2 * InstSize
	} else {
		b.size += InstSize
	}
}

// Label appends "name:".
func (b *Buffer) Label(name string) {
	b.lines = append(b.lines, name+":")
}

// Comment appends a "#" comment when comments are enabled.
func (b *Buffer) Comment(format string, args ...any) {
	if !b.comments {
		return
	}
	b.lines = append(b.lines, "\t# "+fmt.Sprintf(format, args...))
}

// Directive appends an assembler directive. Directives carry no code size.
func (b *Buffer) Directive(format string, args ...any) {
	b.lines = append(b.lines, fmt.Sprintf(format, args...))
}

// Append moves the contents of o to the end of b.
func (b *Buffer) Append(o *Buffer) {
	b.lines = append(b.lines, o.lines...)
	b.size += o.size
	b.insts += o.insts
}

// Size is the encoded size of every instruction appended so far, in bytes.
func (b *Buffer) Size() int {
	return b.size
}

// Count is the number of instructions appended so far.
func (b *Buffer) Count() int {
	return b.insts
}

// Lines returns the raw lines without a trailing newline.
func (b *Buffer) Lines() []string {
	return b.lines
}

func (b *Buffer) String() string {
	var sb strings.Builder
	_, _ = b.WriteTo(&sb)
	return sb.String()
}

// WriteTo writes every line followed by a newline.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, l := range b.lines {
		m, err := io.WriteString(w, l+"\n")
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Mem formats a base+offset memory operand such as -4($fp).
func Mem(off int, base arch.Register) string {
	return fmt.Sprintf("%d(%s)", off, base)
}
