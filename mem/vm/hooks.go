package vm

import "github.com/sarchlab/vmsim/sim"

// HookPosAccess marks a translated access. The item is the VPN and the detail
// is an AccessDetail.
var HookPosAccess = &sim.HookPos{Name: "Access"}

// HookPosPageFault marks a page that has just been made resident. The item is
// the VPN and the detail is a FaultDetail.
var HookPosPageFault = &sim.HookPos{Name: "PageFault"}

// HookPosEviction marks a page that has just lost its frame. The item is the
// VPN and the detail is an EvictionDetail.
var HookPosEviction = &sim.HookPos{Name: "Eviction"}

// AccessDetail describes a translated access.
type AccessDetail struct {
	Addr uint32
	Mode AccessMode
}

// FaultDetail describes how a page fault was served.
type FaultDetail struct {
	Frame    int
	FromSwap bool
	SwapSlot uint32
}

// EvictionDetail describes an eviction.
type EvictionDetail struct {
	Frame     int
	WroteBack bool
	SwapSlot  uint32
	NewSlot   bool
}
