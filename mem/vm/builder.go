package vm

import (
	"fmt"

	"github.com/sarchlab/vmsim/logger"
	"github.com/sarchlab/vmsim/mem/storage"
)

// A Builder can build MMUs.
type Builder struct {
	pageSize     int
	numPages     int
	numFrames    int
	numSwapSlots int
	tlbEntries   int
	ram          storage.Storage
	swapStorage  storage.Storage
	victimFinder VictimFinder
	log          logger.Logger
}

// MakeBuilder creates a builder with the default geometry: pages of 4 words,
// 2048 virtual pages, 8 frames and 128 swap slots.
func MakeBuilder() Builder {
	return Builder{
		pageSize:     4,
		numPages:     2048,
		numFrames:    8,
		numSwapSlots: 128,
	}
}

// WithPageSize sets the number of words in a page.
func (b Builder) WithPageSize(n int) Builder {
	b.pageSize = n
	return b
}

// WithNumPages sets the number of virtual pages.
func (b Builder) WithNumPages(n int) Builder {
	b.numPages = n
	return b
}

// WithNumFrames sets the number of physical frames.
func (b Builder) WithNumFrames(n int) Builder {
	b.numFrames = n
	return b
}

// WithNumSwapSlots sets the number of swap slots. It is ignored if a swap
// storage is given.
func (b Builder) WithNumSwapSlots(n int) Builder {
	b.numSwapSlots = n
	return b
}

// WithTLBEntries sets the number of entries of the TLB. Zero disables the
// TLB.
func (b Builder) WithTLBEntries(n int) Builder {
	b.tlbEntries = n
	return b
}

// WithRAM sets the storage that holds the physical frames. By default, an
// in-memory storage is created.
func (b Builder) WithRAM(s storage.Storage) Builder {
	b.ram = s
	return b
}

// WithSwapStorage sets the storage that holds the swap slots. By default, an
// in-memory storage is created.
func (b Builder) WithSwapStorage(s storage.Storage) Builder {
	b.swapStorage = s
	return b
}

// WithVictimFinder sets the page replacement policy.
func (b Builder) WithVictimFinder(vf VictimFinder) Builder {
	b.victimFinder = vf
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l logger.Logger) Builder {
	b.log = l
	return b
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func (b Builder) parametersMustBeValid() {
	if !isPowerOfTwo(b.pageSize) {
		panic(fmt.Sprintf("page size %d is not a power of two", b.pageSize))
	}

	if b.numPages <= 0 {
		panic("there must be at least one virtual page")
	}

	if b.numFrames <= 0 {
		panic("there must be at least one frame")
	}

	if b.tlbEntries < 0 {
		panic("the number of TLB entries cannot be negative")
	}

	if b.victimFinder == nil {
		panic("a victim finder is required")
	}

	if b.ram != nil &&
		(b.ram.NumPages() != b.numFrames || b.ram.PageSize() != b.pageSize) {
		panic("RAM geometry does not match the number of frames and page size")
	}

	if b.swapStorage != nil && b.swapStorage.PageSize() != b.pageSize {
		panic("swap page size does not match the page size")
	}

	if b.swapStorage == nil && b.numSwapSlots <= 0 {
		panic("there must be at least one swap slot")
	}
}

// Build returns a newly created MMU.
func (b Builder) Build(name string) *MMU {
	b.parametersMustBeValid()

	m := &MMU{
		name:         name,
		log:          logger.OrDiscard(b.log),
		pageSize:     uint32(b.pageSize),
		pageTable:    NewPageTable(b.numPages),
		coremap:      NewCoremap(b.numFrames),
		victimFinder: b.victimFinder,
		pageBuf:      make([]uint32, b.pageSize),
	}

	if observer, ok := b.victimFinder.(AccessObserver); ok {
		m.observer = observer
	}

	b.createStorage(m)
	b.createTLB(m)

	return m
}

func (b Builder) createStorage(m *MMU) {
	m.ram = b.ram
	if m.ram == nil {
		m.ram = storage.NewMemory(b.numFrames, b.pageSize)
	}

	swapStorage := b.swapStorage
	if swapStorage == nil {
		swapStorage = storage.NewMemory(b.numSwapSlots, b.pageSize)
	}
	m.swap = NewSwapDevice(swapStorage)
}

func (b Builder) createTLB(m *MMU) {
	t, err := newTLB(b.tlbEntries)
	if err != nil {
		panic(err)
	}
	m.tlb = t
}
