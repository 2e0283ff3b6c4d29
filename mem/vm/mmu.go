package vm

import (
	"errors"
	"fmt"

	"github.com/sarchlab/vmsim/logger"
	"github.com/sarchlab/vmsim/mem/storage"
	"github.com/sarchlab/vmsim/sim"
)

// MMU translates virtual addresses into physical ones. It owns the page table
// and the coremap, serves page faults and evicts pages when all the frames
// are in use. It is not safe for concurrent use.
type MMU struct {
	sim.HookableBase

	name string
	log  logger.Logger

	pageSize     uint32
	pageTable    *PageTable
	coremap      *Coremap
	ram          storage.Storage
	swap         *SwapDevice
	tlb          *tlb
	victimFinder VictimFinder
	observer     AccessObserver

	nextUnusedFrame int
	stats           Stats
	pageBuf         []uint32
}

// Name returns the name of the MMU.
func (m *MMU) Name() string {
	return m.name
}

// PageSize returns the number of words in a page.
func (m *MMU) PageSize() int {
	return int(m.pageSize)
}

// NumPages returns the number of virtual pages.
func (m *MMU) NumPages() int {
	return m.pageTable.Len()
}

// NumFrames returns the number of physical frames.
func (m *MMU) NumFrames() int {
	return m.coremap.Len()
}

// Stats returns a copy of the counters.
func (m *MMU) Stats() Stats {
	return m.stats
}

// Page returns a copy of a page table entry.
func (m *MMU) Page(vpn VPN) (Page, bool) {
	return m.pageTable.Find(vpn)
}

// Frame returns a copy of a coremap entry.
func (m *MMU) Frame(frame int) Frame {
	return *m.coremap.Get(frame)
}

// Read translates addr and returns the word stored there.
func (m *MMU) Read(addr uint32) (uint32, error) {
	pAddr, err := m.Translate(addr, Read)
	if err != nil {
		return 0, err
	}

	return m.ram.ReadWord(pAddr)
}

// Write translates addr and stores data there.
func (m *MMU) Write(addr uint32, data uint32) error {
	pAddr, err := m.Translate(addr, Write)
	if err != nil {
		return err
	}

	return m.ram.WriteWord(pAddr, data)
}

// Translate converts a virtual address into a physical address, bringing the
// page in if it is not resident.
func (m *MMU) Translate(addr uint32, mode AccessMode) (uint32, error) {
	vpn := VPN(addr / m.pageSize)
	offset := addr & (m.pageSize - 1)

	if int(vpn) >= m.pageTable.Len() {
		return 0, fmt.Errorf("%w: address %d, page %d of %d",
			ErrAddressOutOfRange, addr, vpn, m.pageTable.Len())
	}

	m.stats.MemoryAccesses++
	if m.observer != nil {
		m.observer.ObserveAccess(vpn)
	}

	m.InvokeHook(sim.HookCtx{
		Domain: m,
		Pos:    HookPosAccess,
		Item:   vpn,
		Detail: AccessDetail{Addr: addr, Mode: mode},
	})

	frame, err := m.frameOf(vpn)
	if err != nil {
		return 0, err
	}

	page := m.pageTable.Get(vpn)
	page.Referenced = true
	if mode == Write {
		page.Dirty = true
	}

	return frame*m.pageSize + offset, nil
}

func (m *MMU) frameOf(vpn VPN) (uint32, error) {
	if frame, hit := m.tlb.lookup(vpn); hit {
		m.stats.TLBHits++
		return frame, nil
	}

	if m.tlb != nil {
		m.stats.TLBMisses++
	}

	if !m.pageTable.Get(vpn).Resident {
		if err := m.handlePageFault(vpn); err != nil {
			return 0, fmt.Errorf("page fault on page %d: %w", vpn, err)
		}
	}

	frame := m.pageTable.Get(vpn).Location
	m.tlb.insert(vpn, frame)

	return frame, nil
}

func (m *MMU) handlePageFault(vpn VPN) error {
	m.stats.PageFaults++

	frame, err := m.takeFrame()
	if err != nil {
		return err
	}

	page := m.pageTable.Get(vpn)
	entry := m.coremap.Get(frame)
	detail := FaultDetail{Frame: frame}

	// On a failed read the victim stays evicted and the frame stays unowned.
	if page.OnDisk {
		if err := m.swap.ReadSlot(page.Location, m.pageBuf); err != nil {
			return err
		}

		if err := m.ram.WritePage(frame, m.pageBuf); err != nil {
			return err
		}

		m.stats.DiskReads++
		entry.SwapSlot = page.Location
		detail.FromSwap = true
		detail.SwapSlot = page.Location
	} else {
		if err := m.ram.ZeroPage(frame); err != nil {
			return err
		}

		entry.SwapSlot = 0
	}

	entry.Owner = vpn
	entry.Owned = true

	page.Resident = true
	page.Location = uint32(frame)
	page.Dirty = false
	page.Referenced = false

	m.log.Debug("page fault",
		"vpn", vpn, "frame", frame, "from_swap", detail.FromSwap)

	m.InvokeHook(sim.HookCtx{
		Domain: m,
		Pos:    HookPosPageFault,
		Item:   vpn,
		Detail: detail,
	})

	return nil
}

// takeFrame returns a frame that holds no page. Frames that were never used
// are handed out first, in order. After that, the victim finder picks a frame
// and its page is evicted.
func (m *MMU) takeFrame() (int, error) {
	if m.nextUnusedFrame < m.coremap.Len() {
		frame := m.nextUnusedFrame
		m.nextUnusedFrame++
		return frame, nil
	}

	frame := m.victimFinder.FindVictim(frameView{m})
	if frame < 0 || frame >= m.coremap.Len() {
		panic(fmt.Sprintf("victim finder returned frame %d of %d",
			frame, m.coremap.Len()))
	}

	if err := m.evict(frame); err != nil {
		return 0, err
	}

	return frame, nil
}

func (m *MMU) evict(frame int) error {
	entry := m.coremap.Get(frame)
	if !entry.Owned {
		return nil
	}

	vpn := entry.Owner
	owner := m.pageTable.Get(vpn)
	detail := EvictionDetail{Frame: frame, SwapSlot: entry.SwapSlot}

	if owner.Dirty {
		if err := m.writeBack(frame, owner, &detail); err != nil {
			return err
		}
	}

	owner.Resident = false
	owner.Dirty = false
	if owner.OnDisk {
		owner.Location = entry.SwapSlot
	} else {
		owner.Location = 0
	}

	entry.Owned = false
	m.tlb.invalidate(vpn)

	m.log.Debug("eviction",
		"vpn", vpn, "frame", frame, "wrote_back", detail.WroteBack)

	m.InvokeHook(sim.HookCtx{
		Domain: m,
		Pos:    HookPosEviction,
		Item:   vpn,
		Detail: detail,
	})

	return nil
}

func (m *MMU) writeBack(
	frame int,
	owner *Page,
	detail *EvictionDetail,
) error {
	entry := m.coremap.Get(frame)

	slot := entry.SwapSlot
	if !owner.OnDisk {
		var err error
		slot, err = m.swap.Allocate()
		if err != nil {
			return err
		}
		detail.NewSlot = true
	}

	if err := m.ram.ReadPage(frame, m.pageBuf); err != nil {
		return err
	}

	if err := m.swap.WriteSlot(slot, m.pageBuf); err != nil {
		return err
	}

	m.stats.DiskWrites++
	owner.OnDisk = true
	entry.SwapSlot = slot
	detail.WroteBack = true
	detail.SwapSlot = slot

	return nil
}

// CheckInvariants verifies that the page table and the coremap agree with
// each other. It returns an error wrapping ErrInvariantViolated on the first
// disagreement found.
func (m *MMU) CheckInvariants() error {
	numFrames := m.coremap.Len()
	resident := 0

	for i := 0; i < m.pageTable.Len(); i++ {
		vpn := VPN(i)
		page := m.pageTable.Get(vpn)

		if !page.Resident {
			if page.Dirty {
				return m.violation("page %d is dirty but not resident", vpn)
			}
			continue
		}

		resident++
		if int(page.Location) >= numFrames {
			return m.violation("page %d is in frame %d of %d",
				vpn, page.Location, numFrames)
		}

		entry := m.coremap.Get(int(page.Location))
		if !entry.Owned || entry.Owner != vpn {
			return m.violation("page %d is in frame %d, which does not own it",
				vpn, page.Location)
		}
	}

	if resident > numFrames {
		return m.violation("%d resident pages with %d frames",
			resident, numFrames)
	}

	for f := 0; f < numFrames; f++ {
		entry := m.coremap.Get(f)
		if !entry.Owned {
			continue
		}

		page, found := m.pageTable.Find(entry.Owner)
		if !found || !page.Resident || int(page.Location) != f {
			return m.violation("frame %d owns page %d, which is not in it",
				f, entry.Owner)
		}
	}

	return nil
}

func (m *MMU) violation(format string, args ...any) error {
	return fmt.Errorf("%w: "+format,
		append([]any{ErrInvariantViolated}, args...)...)
}

// Snapshot is a copy of the state of an MMU.
type Snapshot struct {
	PageTable []PageEntry
	Coremap   []Frame
	Stats     Stats
	SwapSlots int
	TLBLen    int
}

// Snapshot copies the page table entries that were ever touched, the coremap
// and the counters.
func (m *MMU) Snapshot() Snapshot {
	return Snapshot{
		PageTable: m.pageTable.Touched(),
		Coremap:   m.coremap.Frames(),
		Stats:     m.stats,
		SwapSlots: m.swap.NumAllocated(),
		TLBLen:    m.tlb.len(),
	}
}

// Close releases the RAM and the swap storage.
func (m *MMU) Close() error {
	return errors.Join(m.ram.Close(), m.swap.Close())
}

// frameView exposes the frames of an MMU to a VictimFinder.
type frameView struct {
	m *MMU
}

func (v frameView) NumFrames() int {
	return v.m.coremap.Len()
}

func (v frameView) Owner(frame int) (VPN, bool) {
	entry := v.m.coremap.Get(frame)
	return entry.Owner, entry.Owned
}

func (v frameView) Referenced(frame int) bool {
	entry := v.m.coremap.Get(frame)
	if !entry.Owned {
		return false
	}

	return v.m.pageTable.Get(entry.Owner).Referenced
}

func (v frameView) ClearReferenced(frame int) {
	entry := v.m.coremap.Get(frame)
	if !entry.Owned {
		return
	}

	v.m.pageTable.Get(entry.Owner).Referenced = false
}
