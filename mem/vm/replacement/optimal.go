package replacement

import (
	"math"

	"github.com/sarchlab/vmsim/mem/vm"
)

// OptimalVictimFinder evicts the page that is used again the farthest in the
// future. The future is a fixed trace of page accesses, and the finder keeps
// its position in the trace by observing every access the MMU makes.
type OptimalVictimFinder struct {
	trace    []vm.VPN
	accesses int
}

// NewOptimalVictimFinder creates an optimal policy that looks ahead in trace.
func NewOptimalVictimFinder(trace []vm.VPN) *OptimalVictimFinder {
	return &OptimalVictimFinder{trace: trace}
}

// ObserveAccess advances the position in the trace.
func (o *OptimalVictimFinder) ObserveAccess(vm.VPN) {
	o.accesses++
}

// Position returns the number of accesses observed so far.
func (o *OptimalVictimFinder) Position() int {
	return o.accesses
}

// FindVictim returns the frame whose page appears next the latest in the
// trace, counting from the current access. A page that does not appear again
// is at an infinite distance. Ties go to the lowest frame index.
func (o *OptimalVictimFinder) FindVictim(frames vm.FrameView) int {
	start := max(o.accesses-1, 0)
	victim := 0
	farthest := -1

	for frame := 0; frame < frames.NumFrames(); frame++ {
		vpn, owned := frames.Owner(frame)
		if !owned {
			return frame
		}

		distance := o.distance(vpn, start)
		if distance > farthest {
			farthest = distance
			victim = frame
		}
	}

	return victim
}

func (o *OptimalVictimFinder) distance(vpn vm.VPN, start int) int {
	for i := start; i < len(o.trace); i++ {
		if o.trace[i] == vpn {
			return i - start
		}
	}

	return math.MaxInt
}
