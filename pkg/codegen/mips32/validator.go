// Package mips32 - Assembly validation and correctness verification
package mips32

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/GriffinCanCode/minic/pkg/codegen/arch"
	"github.com/GriffinCanCode/minic/pkg/logger"
)

// ErrInvalidAssembly is wrapped by every validation failure.
var ErrInvalidAssembly = errors.New("invalid assembly")

// ValidationError represents an assembly validation error
type ValidationError struct {
	Line    int
	Message string
	Code    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("line %d: %s\n  %s", e.Line, e.Message, e.Code)
}

// Validator validates generated MIPS32 assembly
type Validator struct {
	errors []ValidationError
	warns  []ValidationError
}

// NewValidator creates a new assembly validator
func NewValidator() *Validator {
	return &Validator{
		errors: make([]ValidationError, 0),
		warns:  make([]ValidationError, 0),
	}
}

// line is one parsed line of the text section.
type line struct {
	num   int
	text  string
	label string // set for "name:" lines
	op    string
	args  []string
}

func (l line) isInst() bool { return l.op != "" }

// Operand counts of every mnemonic the generator may emit.
var mnemonics = map[string]int{
	// Arithmetic and logic
	"addu": 3, "subu": 3, "mul": 3, "and": 3, "or": 3, "xor": 3, "nor": 3,
	"addiu": 3, "andi": 3, "ori": 3, "xori": 3,
	"sll": 3, "srl": 3, "sra": 3,
	"div": 2, "divu": 2, "mflo": 1, "mfhi": 1,
	// Comparisons
	"slt": 3, "sltu": 3, "slti": 3, "sltiu": 3,
	// Loads and stores
	"lw": 2, "sw": 2, "lb": 2, "lbu": 2, "sb": 2,
	// Branches and jumps
	"beq": 3, "bne": 3, "j": 1, "jal": 1, "jr": 1,
	// Pseudoinstructions
	"move": 2, "li": 2, "la": 2, "nop": 0, "break": 0, "syscall": 0,
	// Simulator I/O
	"print_int": 1, "print_char": 1, "print_string": 1,
	"read_int": 1, "read_char": 1, "read_string": 2,
}

var (
	regPattern  = regexp.MustCompile(`^\$[a-z0-9]+$`)
	addrPattern = regexp.MustCompile(`^-?[0-9]+\((\$[a-z0-9]+)\)$`)
)

// Validate performs comprehensive validation on assembly code
func (v *Validator) Validate(assembly string) error {
	lines := parseText(assembly)

	v.validateSyntax(lines)
	v.validateRegisters(lines)
	v.validateCallingConvention(lines)
	v.validateStackBalance(lines)
	v.validateInstructionValidity(lines)
	v.validateMemoryAddressing(lines)
	v.detectRedundantMoves(lines)

	if len(v.errors) > 0 {
		return v.formatErrors()
	}

	if len(v.warns) > 0 {
		v.logWarnings()
	}

	return nil
}

// parseText splits the text section into labels and instructions. Comments,
// directives and everything after .data are dropped.
func parseText(assembly string) []line {
	var out []line
	for i, raw := range strings.Split(assembly, "\n") {
		text := strings.TrimSpace(raw)
		if text == ".data" {
			break
		}
		if text == "" || strings.HasPrefix(text, "#") || strings.HasPrefix(text, ".") {
			continue
		}
		l := line{num: i + 1, text: text}
		if name, ok := strings.CutSuffix(text, ":"); ok {
			l.label = name
			out = append(out, l)
			continue
		}
		op, rest, _ := strings.Cut(text, " ")
		l.op = op
		if rest = strings.TrimSpace(rest); rest != "" {
			for _, a := range strings.Split(rest, ",") {
				l.args = append(l.args, strings.TrimSpace(a))
			}
		}
		out = append(out, l)
	}
	return out
}

// validateSyntax checks mnemonics, operand counts and label references
func (v *Validator) validateSyntax(lines []line) {
	labels := make(map[string]bool)
	for _, l := range lines {
		if l.isInst() {
			continue
		}
		if strings.ContainsAny(l.label, " \t") {
			v.addError(l.num, "invalid label format (contains spaces)", l.text)
		}
		if labels[l.label] {
			v.addError(l.num, fmt.Sprintf("duplicate label %s", l.label), l.text)
		}
		labels[l.label] = true
	}

	for _, l := range lines {
		if !l.isInst() {
			continue
		}
		want, ok := mnemonics[l.op]
		if !ok {
			v.addError(l.num, fmt.Sprintf("unknown instruction %s", l.op), l.text)
			continue
		}
		if len(l.args) != want {
			v.addError(l.num, fmt.Sprintf("%s takes %d operands, got %d", l.op, want, len(l.args)), l.text)
			continue
		}
		if target, ok := branchTarget(l); ok && !labels[target] {
			v.addError(l.num, fmt.Sprintf("undefined label %s", target), l.text)
		}
	}
}

// validateRegisters checks register usage correctness
func (v *Validator) validateRegisters(lines []line) {
	for _, l := range lines {
		if !l.isInst() {
			continue
		}
		for _, reg := range registers(l) {
			if _, ok := arch.Lookup(reg); !ok {
				v.addError(l.num, fmt.Sprintf("invalid register: %s", reg), l.text)
			}
		}
	}
}

// validateCallingConvention checks that every callee-saved register a
// function writes is reloaded on the way out.
func (v *Validator) validateCallingConvention(lines []line) {
	a := arch.New()
	functionName := ""
	written := make(map[string]bool)
	restored := make(map[string]bool)
	inExit := false

	for _, l := range lines {
		if !l.isInst() {
			switch {
			case isFunctionLabel(l.label):
				functionName = l.label
				written = make(map[string]bool)
				restored = make(map[string]bool)
				inExit = false
			case strings.HasSuffix(l.label, "_$return"):
				inExit = true
			}
			continue
		}

		if dest, ok := destination(l); ok {
			if r, found := arch.Lookup(dest); found && a.IsCalleeSaved(r) {
				if inExit && l.op == "lw" {
					restored[dest] = true
				} else {
					written[dest] = true
				}
			}
		}

		if l.op == "jr" && len(l.args) == 1 && l.args[0] == "$ra" {
			for reg := range written {
				if !restored[reg] {
					v.addError(l.num, fmt.Sprintf("callee-saved register %s not restored in %s", reg, functionName), l.text)
				}
			}
		}
	}
}

// validateStackBalance tracks $sp through each function. Every block must
// be entered with the frame fully built and every exit must leave $sp
// where the caller had it.
func (v *Validator) validateStackBalance(lines []line) {
	offset, fpOffset := 0, 0
	level, haveLevel := 0, false

	for _, l := range lines {
		if !l.isInst() {
			if isFunctionLabel(l.label) {
				offset, fpOffset = 0, 0
				haveLevel = false
				continue
			}
			if strings.Contains(l.label, "_$") {
				if !haveLevel {
					level, haveLevel = offset, true
				} else if offset != level {
					v.addError(l.num, fmt.Sprintf("stack imbalance entering block: %d, want %d", offset, level), l.text)
				}
			}
			continue
		}

		switch {
		case l.op == "addiu" && len(l.args) == 3 && l.args[0] == "$sp" && l.args[1] == "$sp":
			n, err := strconv.Atoi(l.args[2])
			if err != nil {
				v.addError(l.num, "non-constant stack adjustment", l.text)
				continue
			}
			if n%arch.WordSize != 0 {
				v.addError(l.num, "stack adjustment is not word aligned", l.text)
			}
			offset += n
		case l.op == "move" && len(l.args) == 2 && l.args[0] == "$fp" && l.args[1] == "$sp":
			fpOffset = offset
		case l.op == "move" && len(l.args) == 2 && l.args[0] == "$sp" && l.args[1] == "$fp":
			offset = fpOffset
		case l.op == "j" || l.op == "beq" || l.op == "bne":
			if haveLevel && offset != level {
				v.addError(l.num, fmt.Sprintf("stack imbalance at branch: %d, want %d", offset, level), l.text)
			}
		case l.op == "jr":
			if offset > 0 {
				v.addError(l.num, "stack underflow detected", l.text)
			} else if offset < 0 {
				v.addError(l.num, fmt.Sprintf("stack imbalance at return: %d bytes still reserved", -offset), l.text)
			}
		}
	}
}

// validateInstructionValidity checks for invalid instruction combinations
func (v *Validator) validateInstructionValidity(lines []line) {
	for _, l := range lines {
		if !l.isInst() || len(l.args) != mnemonics[l.op] {
			continue
		}

		if dest, ok := destination(l); ok && dest == "$0" {
			v.addWarn(l.num, "writing to zero register has no effect", l.text)
		}

		switch l.op {
		case "div", "divu":
			if l.args[1] == "$0" {
				v.addError(l.num, "division by zero", l.text)
			}
		case "addiu", "slti", "sltiu":
			v.checkImmediate(l, l.args[2], -1<<15, 1<<15-1)
		case "andi", "ori", "xori":
			v.checkImmediate(l, l.args[2], 0, 1<<16-1)
		case "li":
			v.checkImmediate(l, l.args[1], -1<<31, 1<<32-1)
		}
	}
}

func (v *Validator) checkImmediate(l line, text string, lo, hi int64) {
	val, err := strconv.ParseInt(text, 0, 64)
	if err != nil {
		v.addError(l.num, fmt.Sprintf("bad immediate %q", text), l.text)
		return
	}
	if val < lo || val > hi {
		v.addError(l.num, fmt.Sprintf("immediate %d out of range for %s", val, l.op), l.text)
	}
}

// validateMemoryAddressing checks memory addressing mode correctness
func (v *Validator) validateMemoryAddressing(lines []line) {
	for _, l := range lines {
		switch l.op {
		case "lw", "sw", "lb", "lbu", "sb":
		default:
			continue
		}
		if len(l.args) != 2 {
			continue
		}
		memOp := l.args[1]
		if !addrPattern.MatchString(memOp) {
			v.addError(l.num, fmt.Sprintf("invalid memory addressing mode: %s", memOp), l.text)
			continue
		}
		off, _ := strconv.Atoi(memOp[:strings.Index(memOp, "(")])
		if off < -1<<15 || off > 1<<15-1 {
			v.addError(l.num, fmt.Sprintf("offset %d out of range", off), l.text)
		}
		if (l.op == "lw" || l.op == "sw") && off%arch.WordSize != 0 {
			v.addWarn(l.num, "unaligned word access", l.text)
		}
	}
}

// detectRedundantMoves identifies and warns about redundant move instructions
func (v *Validator) detectRedundantMoves(lines []line) {
	for i, l := range lines {
		if l.op != "move" || len(l.args) != 2 {
			continue
		}
		dest, src := l.args[0], l.args[1]

		if dest == src {
			v.addWarn(l.num, fmt.Sprintf("redundant move: source and destination are identical (%s)", src), l.text)
			continue
		}

		if i+1 < len(lines) && lines[i+1].text == l.text {
			v.addWarn(lines[i+1].num, "duplicate move instruction", l.text)
		}
	}
}

// Helper functions

func (v *Validator) addError(line int, msg, code string) {
	v.errors = append(v.errors, ValidationError{Line: line, Message: msg, Code: code})
}

func (v *Validator) addWarn(line int, msg, code string) {
	v.warns = append(v.warns, ValidationError{Line: line, Message: msg, Code: code})
}

func (v *Validator) formatErrors() error {
	var sb strings.Builder
	for _, err := range v.errors {
		sb.WriteString("\n  " + err.Error())
	}
	return fmt.Errorf("%w:%s", ErrInvalidAssembly, sb.String())
}

func (v *Validator) logWarnings() {
	for _, warn := range v.warns {
		logger.LogWarning("validate", warn.Line, warn.Message)
	}
}

// isFunctionLabel reports whether label starts a function or runtime
// routine rather than a block inside one.
func isFunctionLabel(label string) bool {
	return label != "" && !strings.Contains(label, "$")
}

// branchTarget returns the label operand of a control transfer.
func branchTarget(l line) (string, bool) {
	switch l.op {
	case "j", "jal", "beq", "bne":
		return l.args[len(l.args)-1], true
	}
	return "", false
}

// registers returns the register operands of l, including the base of a
// memory operand. Labels such as f_$1 are not registers.
func registers(l line) []string {
	var regs []string
	for _, arg := range l.args {
		if regPattern.MatchString(arg) {
			regs = append(regs, arg)
		} else if m := addrPattern.FindStringSubmatch(arg); m != nil {
			regs = append(regs, m[1])
		}
	}
	return regs
}

// destination returns the register an instruction writes, if any.
func destination(l line) (string, bool) {
	switch l.op {
	case "sw", "sb", "beq", "bne", "j", "jal", "jr", "div", "divu",
		"break", "syscall", "nop",
		"print_int", "print_char", "print_string", "read_string":
		return "", false
	}
	if len(l.args) == 0 {
		return "", false
	}
	return l.args[0], true
}

// ValidateProgram validates an entire generated program
func ValidateProgram(assembly string) error {
	validator := NewValidator()
	return validator.Validate(assembly)
}

// QuickValidate performs fast basic validation for development
func QuickValidate(assembly string) bool {
	validator := NewValidator()
	lines := parseText(assembly)

	// Just check syntax and registers for quick feedback
	validator.validateSyntax(lines)
	validator.validateRegisters(lines)

	return len(validator.errors) == 0
}

// ValidateAndReport validates assembly and returns a detailed report
func ValidateAndReport(assembly string) (bool, string) {
	validator := NewValidator()
	err := validator.Validate(assembly)

	var report strings.Builder
	report.WriteString("=== MIPS32 Assembly Validation Report ===\n\n")

	if err != nil {
		report.WriteString(fmt.Sprintf("Status: FAILED\n\nErrors:\n%s\n", err.Error()))
		return false, report.String()
	}

	report.WriteString("Status: PASSED\n\n")

	if len(validator.warns) > 0 {
		report.WriteString("Warnings:\n")
		for _, warn := range validator.warns {
			report.WriteString(fmt.Sprintf("  Line %d: %s\n", warn.Line, warn.Message))
		}
	} else {
		report.WriteString("No warnings.\n")
	}

	instCount := 0
	for _, l := range parseText(assembly) {
		if l.isInst() {
			instCount++
		}
	}

	report.WriteString("\nStatistics:\n")
	report.WriteString(fmt.Sprintf("  Total lines: %d\n", len(strings.Split(assembly, "\n"))))
	report.WriteString(fmt.Sprintf("  Instructions: %d\n", instCount))

	logger.Info("MIPS32 assembly validation passed", "instructions", instCount, "warnings", len(validator.warns))

	return true, report.String()
}
