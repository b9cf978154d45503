package mips32

import (
	"github.com/GriffinCanCode/minic/pkg/codegen/asm"
	"github.com/GriffinCanCode/minic/pkg/codegen/strpool"
)

// Runtime helper labels. The helpers clobber only $a0, $a1, $v0, $v1 and
// $ra, so evaluation registers survive a helper call.
const (
	helperCopyString = "__copy_string"
	helperStrcmp     = "__strcmp"
	helperStrcat     = "__strcat"
	entryLabel       = "__start"
)

// runtime is the preamble placed before the first function. $gp is the
// arena bump pointer; it starts right after the string data.
var runtime = []struct {
	label string
	code  []string
}{
	{entryLabel, []string{
		"la $gp, " + strpool.ArenaLabel,
		"jal main",
		"break",
	}},

	// __copy_string(a0 src) returns a copy of src at the arena top.
	{helperCopyString, []string{
		"move $v0, $gp",
	}},
	{helperCopyString + "_loop", []string{
		"lbu $v1, 0($a0)",
		"sb $v1, 0($gp)",
		"addiu $a0, $a0, 1",
		"addiu $gp, $gp, 1",
		"bne $v1, $0, " + helperCopyString + "_loop",
		"jr $ra",
	}},

	// __strcmp(a0, a1) returns the difference of the first differing bytes.
	{helperStrcmp, []string{
		"lbu $v0, 0($a0)",
		"lbu $v1, 0($a1)",
		"bne $v0, $v1, " + helperStrcmp + "_done",
		"beq $v0, $0, " + helperStrcmp + "_done",
		"addiu $a0, $a0, 1",
		"addiu $a1, $a1, 1",
		"j " + helperStrcmp,
	}},
	{helperStrcmp + "_done", []string{
		"subu $v0, $v0, $v1",
		"jr $ra",
	}},

	// __strcat(a0, a1) returns a0 followed by a1 at the arena top.
	{helperStrcat, []string{
		"move $v0, $gp",
	}},
	{helperStrcat + "_first", []string{
		"lbu $v1, 0($a0)",
		"beq $v1, $0, " + helperStrcat + "_second",
		"sb $v1, 0($gp)",
		"addiu $a0, $a0, 1",
		"addiu $gp, $gp, 1",
		"j " + helperStrcat + "_first",
	}},
	{helperStrcat + "_second", []string{
		"lbu $v1, 0($a1)",
		"sb $v1, 0($gp)",
		"addiu $a1, $a1, 1",
		"addiu $gp, $gp, 1",
		"bne $v1, $0, " + helperStrcat + "_second",
		"jr $ra",
	}},
}

func emitRuntime(buf *asm.Buffer) {
	for _, block := range runtime {
		buf.Label(block.label)
		for _, line := range block.code {
			buf.Line(line)
		}
	}
}
