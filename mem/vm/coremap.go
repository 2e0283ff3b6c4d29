package vm

// A Frame is a coremap entry. It records which virtual page occupies a
// physical frame.
type Frame struct {
	// Owner is the page in the frame. It is only meaningful if Owned is
	// true.
	Owner VPN
	Owned bool

	// SwapSlot is the swap slot most recently associated with the content of
	// the frame.
	SwapSlot uint32
}

// A Coremap holds one entry per physical frame.
type Coremap struct {
	frames []Frame
}

// NewCoremap creates a coremap in which no frame has an owner.
func NewCoremap(numFrames int) *Coremap {
	return &Coremap{frames: make([]Frame, numFrames)}
}

// Len returns the number of frames.
func (c *Coremap) Len() int {
	return len(c.frames)
}

// Get returns a pointer to the entry of a frame.
func (c *Coremap) Get(frame int) *Frame {
	return &c.frames[frame]
}

// Frames returns a copy of all the entries.
func (c *Coremap) Frames() []Frame {
	list := make([]Frame, len(c.frames))
	copy(list, c.frames)

	return list
}
