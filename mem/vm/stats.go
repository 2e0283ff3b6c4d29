package vm

// Stats are the counters of a memory system. They only grow.
type Stats struct {
	MemoryAccesses uint64
	PageFaults     uint64
	DiskReads      uint64
	DiskWrites     uint64
	TLBHits        uint64
	TLBMisses      uint64
}
