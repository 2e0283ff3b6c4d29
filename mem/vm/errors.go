package vm

import "errors"

var (
	// ErrOutOfSwap means that a dirty page had to be written back for the
	// first time but every swap slot is already taken. The workload exceeds
	// the configured capacity.
	ErrOutOfSwap = errors.New("out of swap space")

	// ErrSwapCorrupted means that the content read back from a swap slot does
	// not match what was written into it.
	ErrSwapCorrupted = errors.New("swap slot corrupted")

	// ErrAddressOutOfRange means that a virtual address lies beyond the
	// virtual address space.
	ErrAddressOutOfRange = errors.New("virtual address out of range")

	// ErrInvariantViolated means that the page table and the coremap
	// disagree.
	ErrInvariantViolated = errors.New("page table and coremap disagree")
)
