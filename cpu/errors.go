package cpu

import (
	"errors"
	"fmt"
)

// ErrIllegalInstruction means that the CPU fetched a word whose opcode is not
// part of the instruction set.
var ErrIllegalInstruction = errors.New("illegal instruction")

// IllegalInstructionError tells where the illegal instruction was found.
type IllegalInstructionError struct {
	PC     uint32
	Opcode Opcode
}

func (e *IllegalInstructionError) Error() string {
	return fmt.Sprintf("illegal instruction at pc = %d: opcode = %d",
		e.PC, uint8(e.Opcode))
}

// Unwrap makes the error match ErrIllegalInstruction.
func (e *IllegalInstructionError) Unwrap() error {
	return ErrIllegalInstruction
}
