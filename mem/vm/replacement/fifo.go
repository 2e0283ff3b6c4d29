package replacement

import "github.com/sarchlab/vmsim/mem/vm"

// FIFOVictimFinder takes frames in a round-robin order, regardless of how the
// pages in them are used.
type FIFOVictimFinder struct {
	next int
}

// NewFIFOVictimFinder returns a FIFO policy that starts from frame 0.
func NewFIFOVictimFinder() *FIFOVictimFinder {
	return &FIFOVictimFinder{}
}

// FindVictim returns the frame under the cursor and advances the cursor.
func (f *FIFOVictimFinder) FindVictim(frames vm.FrameView) int {
	victim := f.next % frames.NumFrames()
	f.next = victim + 1

	return victim
}
