package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/sarchlab/vmsim/mem/storage"
)

// A SwapDevice hands out swap slots and moves pages in and out of them.
//
// Slots are allocated in increasing order and are never given back. A page
// keeps the slot it got on its first write-back for as long as the machine
// lives, since pages are never destroyed.
type SwapDevice struct {
	store     storage.Storage
	nextSlot  int
	checksums []uint64
	written   []bool
	scratch   []byte
}

// NewSwapDevice creates a swap device that stores its slots in store, one slot
// per storage page.
func NewSwapDevice(store storage.Storage) *SwapDevice {
	return &SwapDevice{
		store:     store,
		checksums: make([]uint64, store.NumPages()),
		written:   make([]bool, store.NumPages()),
		scratch:   make([]byte, 0, store.PageSize()*storage.WordSize),
	}
}

// NumSlots returns the capacity of the device.
func (s *SwapDevice) NumSlots() int {
	return s.store.NumPages()
}

// NumAllocated returns the number of slots handed out so far.
func (s *SwapDevice) NumAllocated() int {
	return s.nextSlot
}

// Allocate returns a fresh slot, or ErrOutOfSwap if there is none left.
func (s *SwapDevice) Allocate() (uint32, error) {
	if s.nextSlot >= s.store.NumPages() {
		return 0, fmt.Errorf("%w: all %d slots in use",
			ErrOutOfSwap, s.store.NumPages())
	}

	slot := s.nextSlot
	s.nextSlot++

	return uint32(slot), nil
}

// WriteSlot stores a page of words into an allocated slot.
func (s *SwapDevice) WriteSlot(slot uint32, src []uint32) error {
	if err := s.slotMustBeAllocated(slot); err != nil {
		return err
	}

	if err := s.store.WritePage(int(slot), src); err != nil {
		return err
	}

	s.checksums[slot] = s.checksum(src)
	s.written[slot] = true

	return nil
}

// ReadSlot loads the content of a slot into dst and verifies it against the
// checksum taken when the slot was written.
func (s *SwapDevice) ReadSlot(slot uint32, dst []uint32) error {
	if err := s.slotMustBeAllocated(slot); err != nil {
		return err
	}

	if !s.written[slot] {
		return fmt.Errorf("%w: slot %d was never written",
			ErrSwapCorrupted, slot)
	}

	if err := s.store.ReadPage(int(slot), dst); err != nil {
		return err
	}

	if s.checksum(dst) != s.checksums[slot] {
		return fmt.Errorf("%w: checksum mismatch in slot %d",
			ErrSwapCorrupted, slot)
	}

	return nil
}

// Close releases the underlying storage.
func (s *SwapDevice) Close() error {
	return s.store.Close()
}

func (s *SwapDevice) slotMustBeAllocated(slot uint32) error {
	if int(slot) >= s.nextSlot {
		return fmt.Errorf("swap slot %d is not allocated", slot)
	}

	return nil
}

func (s *SwapDevice) checksum(words []uint32) uint64 {
	buf := s.scratch[:0]
	for _, w := range words {
		buf = binary.LittleEndian.AppendUint32(buf, w)
	}
	s.scratch = buf

	return xxhash.Sum64(buf)
}
