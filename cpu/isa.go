package cpu

import (
	"fmt"
	"strings"
)

// NumRegisters is the number of general purpose registers.
const NumRegisters = 32

// LinkRegister receives the return address of a CALL.
const LinkRegister = 31

// Opcode identifies an instruction.
type Opcode uint8

// The instruction set.
const (
	ADD Opcode = iota
	ADDI
	SUB
	SUBI
	SGE
	SGT
	SEQ
	BT
	BF
	BA
	ST
	LD
	CALL
	JMP
	MUL
	SEQI
	HALT
)

var mnemonics = [...]string{
	ADD:  "add",
	ADDI: "addi",
	SUB:  "sub",
	SUBI: "subi",
	SGE:  "sge",
	SGT:  "sgt",
	SEQ:  "seq",
	BT:   "bt",
	BF:   "bf",
	BA:   "ba",
	ST:   "st",
	LD:   "ld",
	CALL: "call",
	JMP:  "jmp",
	MUL:  "mul",
	SEQI: "seqi",
	HALT: "halt",
}

// Valid reports whether the opcode is part of the instruction set.
func (op Opcode) Valid() bool {
	return int(op) < len(mnemonics)
}

// Mnemonic returns the name of the opcode as written in programs.
func (op Opcode) Mnemonic() string {
	if !op.Valid() {
		return fmt.Sprintf("op%d", uint8(op))
	}

	return mnemonics[op]
}

// String returns the upper case name of the opcode.
func (op Opcode) String() string {
	return strings.ToUpper(op.Mnemonic())
}

// LookupMnemonic returns the opcode named by a mnemonic. Mnemonics are case
// sensitive and lower case.
func LookupMnemonic(name string) (Opcode, bool) {
	for op, m := range mnemonics {
		if m == name {
			return Opcode(op), true
		}
	}

	return 0, false
}

// An Instruction is a decoded instruction word.
//
//	31      26 25  21 20  16 15             0
//	| opcode  | dest | src1 |   immediate    |
type Instruction struct {
	Opcode Opcode
	Dest   uint8
	Src1   uint8
	Imm    int16
}

// Encode packs the fields into an instruction word. Fields wider than their
// slot are truncated.
func Encode(op Opcode, dest, src1 int, imm int) uint32 {
	return uint32(op)<<26 |
		uint32(dest&0x1f)<<21 |
		uint32(src1&0x1f)<<16 |
		uint32(imm)&0xffff
}

// Decode unpacks an instruction word.
func Decode(word uint32) Instruction {
	return Instruction{
		Opcode: Opcode(word >> 26),
		Dest:   uint8(word>>21) & 0x1f,
		Src1:   uint8(word>>16) & 0x1f,
		Imm:    int16(word & 0xffff),
	}
}

// Encode packs the instruction into a word.
func (i Instruction) Encode() uint32 {
	return Encode(i.Opcode, int(i.Dest), int(i.Src1), int(i.Imm))
}

// Src2 returns the register selected by the low bits of the immediate.
func (i Instruction) Src2() int {
	return int(i.Imm) & (NumRegisters - 1)
}

func (i Instruction) String() string {
	return fmt.Sprintf("%s %d,%d,%d", i.Opcode.Mnemonic(), i.Dest, i.Src1, i.Imm)
}
