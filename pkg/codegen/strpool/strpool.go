// Package strpool interns string literals into the read-only data section.
package strpool

import (
	"fmt"
	"strings"

	"github.com/GriffinCanCode/minic/pkg/codegen/asm"
	"github.com/GriffinCanCode/minic/pkg/ir"
	"github.com/GriffinCanCode/minic/pkg/logger"
)

// ArenaLabel marks the start of the writable region for runtime strings.
const ArenaLabel = "__arena"

// Pool maps each distinct literal to one label. It lives for a whole
// compilation unit so labels are unique across functions.
type Pool struct {
	labels  map[string]string // Content -> Label
	ordered []string          // contents in label order
	size    int
}

func New() *Pool {
	return &Pool{
		labels: make(map[string]string),
	}
}

// Label returns the label for c, interning it on first request.
func (p *Pool) Label(c *ir.Const) string {
	if label, ok := p.labels[c.Str]; ok {
		return label
	}
	label := fmt.Sprintf("String_%d", len(p.ordered))
	p.labels[c.Str] = label
	p.ordered = append(p.ordered, c.Str)
	p.size += len(c.Str) + 1
	logger.Debug("Interned string literal", "label", label, "bytes", len(c.Str)+1)
	return label
}

// Len is the number of distinct literals.
func (p *Pool) Len() int {
	return len(p.ordered)
}

// Size is the number of data bytes the literals occupy, terminators included.
func (p *Pool) Size() int {
	return p.size
}

// EmitTo writes the data section followed by the arena label.
func (p *Pool) EmitTo(buf *asm.Buffer) {
	buf.Directive("\t.data")
	for i, s := range p.ordered {
		buf.Directive("String_%d:\t.asciiz \"%s\"", i, Escape(s))
	}
	buf.Directive("\t.align 2")
	buf.Label(ArenaLabel)
}

// Escape renders s for an .asciiz directive.
func Escape(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		case 0:
			sb.WriteString(`\0`)
		default:
			if c < 0x20 || c >= 0x7f {
				fmt.Fprintf(&sb, "\\x%02x", c)
			} else {
				sb.WriteByte(c)
			}
		}
	}
	return sb.String()
}
