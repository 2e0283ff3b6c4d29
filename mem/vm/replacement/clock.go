package replacement

import "github.com/sarchlab/vmsim/mem/vm"

// ClockVictimFinder implements the second-chance algorithm. The hand skips
// frames whose page was referenced since the last pass, clearing the bit as
// it goes, and stops at the first frame that was not.
type ClockVictimFinder struct {
	hand int
}

// NewClockVictimFinder returns a clock policy with the hand on frame 0.
func NewClockVictimFinder() *ClockVictimFinder {
	return &ClockVictimFinder{}
}

// FindVictim returns the first unreferenced frame at or after the hand. The
// hand is left just past the victim.
func (c *ClockVictimFinder) FindVictim(frames vm.FrameView) int {
	n := frames.NumFrames()
	frame := c.hand % n

	// Terminates within two passes since every bit seen is cleared.
	for frames.Referenced(frame) {
		frames.ClearReferenced(frame)
		frame = (frame + 1) % n
	}

	c.hand = (frame + 1) % n

	return frame
}
