// Package asm reads program files and loads them into memory.
//
// A program file holds one instruction per line, written as
//
//	mnemonic dest,src1,imm
//
// Lines that start with a semicolon are comments. Blank lines are skipped.
//
// The immediate is a signed 16-bit decimal, from -32768 to 32767. Unsigned
// spellings of negative values, such as 65535 for -1, are rejected.
package asm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/sarchlab/vmsim/cpu"
)

var (
	// ErrSyntax means that a line is not an instruction.
	ErrSyntax = errors.New("syntax error")

	// ErrUnknownMnemonic means that a line names an instruction that does
	// not exist.
	ErrUnknownMnemonic = errors.New("unknown mnemonic")
)

// SyntaxError reports the line that could not be parsed.
type SyntaxError struct {
	Line int
	Text string
	Err  error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %v near: %q", e.Line, e.Err, e.Text)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// Parse reads a whole program.
func Parse(r io.Reader) ([]cpu.Instruction, error) {
	var program []cpu.Instruction

	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		text := scanner.Text()

		trimmed := strings.TrimSpace(text)
		if trimmed == "" || strings.HasPrefix(trimmed, ";") {
			continue
		}

		inst, err := ParseLine(trimmed)
		if err != nil {
			return nil, &SyntaxError{Line: lineNumber, Text: text, Err: err}
		}

		program = append(program, inst)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return program, nil
}

// ParseFile reads the program in a file.
func ParseFile(path string) ([]cpu.Instruction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open program: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// ParseLine parses a single instruction. A trailing comment is allowed.
func ParseLine(line string) (cpu.Instruction, error) {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}

	line = strings.TrimSpace(line)
	split := strings.IndexFunc(line, unicode.IsSpace)
	if split < 0 {
		return cpu.Instruction{}, ErrSyntax
	}
	mnemonic, operands := line[:split], line[split:]

	op, ok := cpu.LookupMnemonic(mnemonic)
	if !ok {
		return cpu.Instruction{}, fmt.Errorf("%w %q", ErrUnknownMnemonic, mnemonic)
	}

	fields := strings.Split(operands, ",")
	if len(fields) != 3 {
		return cpu.Instruction{}, fmt.Errorf("%w: %s takes 3 operands",
			ErrSyntax, mnemonic)
	}

	dest, err := parseRegister(fields[0])
	if err != nil {
		return cpu.Instruction{}, err
	}

	src1, err := parseRegister(fields[1])
	if err != nil {
		return cpu.Instruction{}, err
	}

	imm, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 16)
	if err != nil {
		return cpu.Instruction{}, fmt.Errorf("%w: bad immediate %q",
			ErrSyntax, strings.TrimSpace(fields[2]))
	}

	return cpu.Instruction{
		Opcode: op,
		Dest:   dest,
		Src1:   src1,
		Imm:    int16(imm),
	}, nil
}

func parseRegister(field string) (uint8, error) {
	field = strings.TrimSpace(field)

	reg, err := strconv.ParseUint(field, 10, 8)
	if err != nil || reg >= cpu.NumRegisters {
		return 0, fmt.Errorf("%w: bad register %q", ErrSyntax, field)
	}

	return uint8(reg), nil
}

// Load writes the program into memory, one instruction per word, starting at
// address 0.
func Load(m cpu.Memory, program []cpu.Instruction) error {
	for addr, inst := range program {
		if err := m.Write(uint32(addr), inst.Encode()); err != nil {
			return fmt.Errorf("loading instruction %d: %w", addr, err)
		}
	}

	return nil
}
