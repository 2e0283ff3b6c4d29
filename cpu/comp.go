// Package cpu provides the processor that executes programs out of virtual
// memory, one instruction per tick.
package cpu

import (
	"fmt"

	"github.com/sarchlab/vmsim/sim"
)

// HookPosInstruction marks an instruction that is about to execute. The item
// is the Instruction and the detail is an InstructionDetail.
var HookPosInstruction = &sim.HookPos{Name: "Instruction"}

// InstructionDetail tells where an instruction was fetched from.
type InstructionDetail struct {
	PC uint32
}

// Memory is the virtual memory seen by the CPU. Addresses are word indices.
type Memory interface {
	Read(addr uint32) (uint32, error)
	Write(addr uint32, data uint32) error
}

// Comp is a CPU component.
type Comp struct {
	sim.HookableBase

	name   string
	memory Memory

	pc              uint32
	regs            [NumRegisters]uint32
	halted          bool
	err             error
	numInstructions uint64
}

// Name returns the name of the CPU.
func (c *Comp) Name() string {
	return c.name
}

// PC returns the program counter.
func (c *Comp) PC() uint32 {
	return c.pc
}

// Registers returns a copy of the registers.
func (c *Comp) Registers() [NumRegisters]uint32 {
	return c.regs
}

// Halted tells if the CPU executed a HALT.
func (c *Comp) Halted() bool {
	return c.halted
}

// Err returns the error that stopped the CPU, if any.
func (c *Comp) Err() error {
	return c.err
}

// NumInstructions returns the number of instructions executed.
func (c *Comp) NumInstructions() uint64 {
	return c.numInstructions
}

// Abort stops the CPU with an error. The CPU does not execute any more
// instructions.
func (c *Comp) Abort(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Tick executes one instruction. It returns false once the CPU has halted or
// failed.
func (c *Comp) Tick() bool {
	if c.halted || c.err != nil {
		return false
	}

	if err := c.Step(); err != nil {
		c.err = err
		return false
	}

	return true
}

// Step fetches, decodes and executes the instruction at the program counter.
func (c *Comp) Step() error {
	pc := c.pc

	word, err := c.memory.Read(pc)
	if err != nil {
		return fmt.Errorf("fetch at pc = %d: %w", pc, err)
	}

	inst := Decode(word)
	if !inst.Opcode.Valid() {
		return &IllegalInstructionError{PC: pc, Opcode: inst.Opcode}
	}

	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    HookPosInstruction,
		Item:   inst,
		Detail: InstructionDetail{PC: pc},
	})

	if err := c.execute(inst); err != nil {
		return fmt.Errorf("%s at pc = %d: %w", inst.Opcode, pc, err)
	}

	c.numInstructions++

	return nil
}

func (c *Comp) execute(inst Instruction) error {
	source1 := int32(c.regs[inst.Src1])
	source2 := int32(c.regs[inst.Src2()])
	constant := int32(inst.Imm)
	destReg := int(inst.Dest)

	var dest int32
	writeback := true
	nextPC := c.pc + 1

	switch inst.Opcode {
	case ADD:
		dest = source1 + source2
	case ADDI:
		dest = source1 + constant
	case SUB:
		dest = source1 - source2
	case SUBI:
		dest = source1 - constant
	case MUL:
		dest = source1 * source2
	case SGE:
		dest = boolToInt(source1 >= source2)
	case SGT:
		dest = boolToInt(source1 > source2)
	case SEQ:
		dest = boolToInt(source1 == source2)
	case SEQI:
		dest = boolToInt(source1 == constant)
	case BT:
		writeback = false
		if source1 != 0 {
			nextPC = uint32(constant)
		}
	case BF:
		writeback = false
		if source1 == 0 {
			nextPC = uint32(constant)
		}
	case BA:
		writeback = false
		nextPC = uint32(constant)
	case LD:
		data, err := c.memory.Read(uint32(source1 + constant))
		if err != nil {
			return err
		}
		dest = int32(data)
	case ST:
		writeback = false
		err := c.memory.Write(uint32(source1+constant), c.regs[destReg])
		if err != nil {
			return err
		}
	case CALL:
		dest = int32(c.pc + 1)
		destReg = LinkRegister
		nextPC = uint32(constant)
	case JMP:
		writeback = false
		nextPC = uint32(source1)
	case HALT:
		writeback = false
		nextPC = c.pc
		c.halted = true
	}

	if writeback && destReg != 0 {
		c.regs[destReg] = uint32(dest)
	}

	c.pc = nextPC

	return nil
}

func boolToInt(b bool) int32 {
	if b {
		return 1
	}

	return 0
}
