package vm

// A FrameView is what a VictimFinder sees of the physical frames.
type FrameView interface {
	// NumFrames returns the number of physical frames.
	NumFrames() int

	// Owner returns the page in a frame. The bool is false if the frame
	// holds no page.
	Owner(frame int) (VPN, bool)

	// Referenced reports the referenced bit of the page in a frame.
	Referenced(frame int) bool

	// ClearReferenced clears the referenced bit of the page in a frame.
	ClearReferenced(frame int)
}

// A VictimFinder decides which frame to take when every frame is in use.
type VictimFinder interface {
	FindVictim(frames FrameView) int
}

// An AccessObserver is a VictimFinder that wants to see every page access.
type AccessObserver interface {
	ObserveAccess(vpn VPN)
}
