package sim

import (
	"log"
	"math"
)

// Freq defines the type of frequency
type Freq float64

// Defines the unit of frequency
const (
	Hz  Freq = 1
	KHz Freq = 1e3
	MHz Freq = 1e6
	GHz Freq = 1e9
)

// Period returns the number of seconds between two consecutive ticks.
func (f Freq) Period() float64 {
	if f == 0 {
		log.Panic("frequency cannot be 0")
	}
	return 1.0 / float64(f)
}

// Seconds converts a number of cycles into simulated seconds.
func (f Freq) Seconds(cycles uint64) float64 {
	return float64(cycles) * f.Period()
}

// Cycle converts a simulated time into the number of cycles passed since time
// 0.
func (f Freq) Cycle(seconds float64) uint64 {
	return uint64(math.Round(seconds * float64(f)))
}
