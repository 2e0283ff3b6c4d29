// Package vm provides the demand-paging memory model of the simulator: the
// page table, the coremap, the swap device and the MMU that translates
// virtual addresses, handles page faults and evicts pages.
package vm

import "fmt"

// VPN is a virtual page number.
type VPN uint32

// AccessMode tells whether an access reads or writes memory.
type AccessMode int

// Access modes.
const (
	Read AccessMode = iota
	Write
)

func (m AccessMode) String() string {
	switch m {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return fmt.Sprintf("AccessMode(%d)", int(m))
	}
}
