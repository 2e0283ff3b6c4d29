package vm

import (
	"github.com/sarchlab/vmsim/mem/storage"
	"github.com/sarchlab/vmsim/sim"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

type roundRobin struct {
	next int
}

func (r *roundRobin) FindVictim(frames FrameView) int {
	frame := r.next % frames.NumFrames()
	r.next++

	return frame
}

type accessCounter struct {
	vpns []VPN
}

func (c *accessCounter) FindVictim(frames FrameView) int {
	return 0
}

func (c *accessCounter) ObserveAccess(vpn VPN) {
	c.vpns = append(c.vpns, vpn)
}

var _ = Describe("MMU", func() {
	var (
		mockCtrl *gomock.Controller
		builder  Builder
		mmu      *MMU
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		builder = MakeBuilder().
			WithPageSize(4).
			WithNumPages(16).
			WithNumFrames(2).
			WithNumSwapSlots(4).
			WithVictimFinder(&roundRobin{})
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("with FIFO replacement", func() {
		BeforeEach(func() {
			mmu = builder.Build("MMU")
		})

		It("should evict the first page and bring it back from swap", func() {
			Expect(mmu.Write(0, 10)).To(Succeed())
			Expect(mmu.Write(4, 20)).To(Succeed())
			Expect(mmu.Stats().PageFaults).To(Equal(uint64(2)))
			Expect(mmu.Stats().DiskWrites).To(BeZero())

			Expect(mmu.Write(8, 30)).To(Succeed())
			Expect(mmu.Stats().PageFaults).To(Equal(uint64(3)))
			Expect(mmu.Stats().DiskWrites).To(Equal(uint64(1)))
			Expect(mmu.Stats().DiskReads).To(BeZero())

			page, _ := mmu.Page(0)
			Expect(page.Resident).To(BeFalse())
			Expect(page.OnDisk).To(BeTrue())

			data, err := mmu.Read(0)
			Expect(err).ToNot(HaveOccurred())
			Expect(data).To(Equal(uint32(10)))

			stats := mmu.Stats()
			Expect(stats.PageFaults).To(Equal(uint64(4)))
			Expect(stats.DiskReads).To(Equal(uint64(1)))
			Expect(stats.MemoryAccesses).To(Equal(uint64(4)))
			Expect(mmu.CheckInvariants()).To(Succeed())
		})

		It("should not fault on a repeated access", func() {
			Expect(mmu.Write(5, 1)).To(Succeed())
			_, err := mmu.Read(6)
			Expect(err).ToNot(HaveOccurred())

			Expect(mmu.Stats().PageFaults).To(Equal(uint64(1)))
			Expect(mmu.Stats().MemoryAccesses).To(Equal(uint64(2)))
		})

		It("should zero-fill pages on first touch", func() {
			data, err := mmu.Read(13)
			Expect(err).ToNot(HaveOccurred())
			Expect(data).To(BeZero())
		})

		It("should keep data across many evictions", func() {
			for vpn := uint32(0); vpn < 4; vpn++ {
				Expect(mmu.Write(vpn*4+1, vpn+100)).To(Succeed())
			}

			for vpn := uint32(0); vpn < 4; vpn++ {
				data, err := mmu.Read(vpn*4 + 1)
				Expect(err).ToNot(HaveOccurred())
				Expect(data).To(Equal(vpn + 100))
				Expect(mmu.CheckInvariants()).To(Succeed())
			}
		})

		It("should not write back clean pages", func() {
			_, _ = mmu.Read(0)
			_, _ = mmu.Read(4)
			_, _ = mmu.Read(8)

			Expect(mmu.Stats().DiskWrites).To(BeZero())
			page, _ := mmu.Page(0)
			Expect(page.OnDisk).To(BeFalse())
			Expect(page.Touched()).To(BeFalse())
		})

		It("should reuse the swap slot of a page", func() {
			Expect(mmu.Write(0, 1)).To(Succeed())
			Expect(mmu.Write(4, 2)).To(Succeed())
			Expect(mmu.Write(8, 3)).To(Succeed())
			Expect(mmu.Write(0, 4)).To(Succeed())
			Expect(mmu.Write(12, 5)).To(Succeed())
			Expect(mmu.Write(16, 6)).To(Succeed())

			snapshot := mmu.Snapshot()
			Expect(snapshot.SwapSlots).To(Equal(3))
			Expect(snapshot.Stats.DiskWrites).To(Equal(uint64(4)))
		})

		It("should reject addresses beyond the address space", func() {
			_, err := mmu.Read(16 * 4)

			Expect(err).To(MatchError(ErrAddressOutOfRange))
			Expect(mmu.Stats().MemoryAccesses).To(BeZero())
		})

		It("should set the referenced and dirty bits", func() {
			_, _ = mmu.Read(0)
			page, _ := mmu.Page(0)
			Expect(page.Referenced).To(BeTrue())
			Expect(page.Dirty).To(BeFalse())

			Expect(mmu.Write(1, 7)).To(Succeed())
			page, _ = mmu.Page(0)
			Expect(page.Dirty).To(BeTrue())
		})

		It("should report touched pages and owners in a snapshot", func() {
			Expect(mmu.Write(4, 1)).To(Succeed())

			snapshot := mmu.Snapshot()
			Expect(snapshot.PageTable).To(HaveLen(1))
			Expect(snapshot.PageTable[0].VPN).To(Equal(VPN(1)))
			Expect(snapshot.Coremap[0].Owned).To(BeTrue())
			Expect(snapshot.Coremap[0].Owner).To(Equal(VPN(1)))
			Expect(snapshot.Coremap[1].Owned).To(BeFalse())
		})
	})

	Context("when the swap is full", func() {
		BeforeEach(func() {
			mmu = builder.WithNumSwapSlots(1).Build("MMU")
		})

		It("should fail without corrupting the tables", func() {
			Expect(mmu.Write(0, 1)).To(Succeed())
			Expect(mmu.Write(4, 2)).To(Succeed())
			Expect(mmu.Write(8, 3)).To(Succeed())

			err := mmu.Write(12, 4)

			Expect(err).To(MatchError(ErrOutOfSwap))
			Expect(mmu.CheckInvariants()).To(Succeed())
			page, _ := mmu.Page(3)
			Expect(page.Resident).To(BeFalse())
		})
	})

	Context("when the swap is corrupted", func() {
		var swap *storage.Memory

		BeforeEach(func() {
			swap = storage.NewMemory(4, 4)
			mmu = builder.WithSwapStorage(swap).Build("MMU")
		})

		It("should detect the corruption on swap-in", func() {
			Expect(mmu.Write(0, 1)).To(Succeed())
			Expect(mmu.Write(4, 2)).To(Succeed())
			Expect(mmu.Write(8, 3)).To(Succeed())

			Expect(swap.WriteWord(0, 99)).To(Succeed())

			_, err := mmu.Read(0)
			Expect(err).To(MatchError(ErrSwapCorrupted))
		})

		It("should leave the victim frame empty after a failed swap-in", func() {
			Expect(mmu.Write(0, 1)).To(Succeed())
			Expect(mmu.Write(4, 2)).To(Succeed())
			Expect(mmu.Write(8, 3)).To(Succeed())
			Expect(swap.WriteWord(0, 99)).To(Succeed())

			_, err := mmu.Read(0)

			Expect(err).To(MatchError(ErrSwapCorrupted))
			Expect(mmu.Frame(1).Owned).To(BeFalse())
			page, _ := mmu.Page(0)
			Expect(page.Resident).To(BeFalse())
			Expect(page.OnDisk).To(BeTrue())
			evicted, _ := mmu.Page(1)
			Expect(evicted.Resident).To(BeFalse())
			Expect(evicted.OnDisk).To(BeTrue())
			Expect(mmu.Stats().PageFaults).To(Equal(uint64(4)))
			Expect(mmu.Stats().DiskWrites).To(Equal(uint64(2)))
			Expect(mmu.Stats().DiskReads).To(BeZero())
			Expect(mmu.CheckInvariants()).To(Succeed())
		})
	})

	Context("when the tables disagree", func() {
		BeforeEach(func() {
			mmu = builder.Build("MMU")
			Expect(mmu.Write(0, 1)).To(Succeed())
			Expect(mmu.Write(4, 2)).To(Succeed())
			Expect(mmu.CheckInvariants()).To(Succeed())
		})

		It("should find a resident page whose frame owns another page", func() {
			mmu.coremap.Get(0).Owner = 3

			err := mmu.CheckInvariants()

			Expect(err).To(MatchError(ErrInvariantViolated))
			Expect(err.Error()).To(ContainSubstring("does not own it"))
		})

		It("should find a resident page whose frame is empty", func() {
			mmu.coremap.Get(1).Owned = false

			Expect(mmu.CheckInvariants()).To(MatchError(ErrInvariantViolated))
		})

		It("should find a frame owning a page that is elsewhere", func() {
			mmu.coremap.Get(1).Owner = 0

			err := mmu.CheckInvariants()

			Expect(err).To(MatchError(ErrInvariantViolated))
		})

		It("should find a frame owning a page that is not resident", func() {
			page := mmu.pageTable.Get(1)
			page.Resident = false
			page.Dirty = false

			err := mmu.CheckInvariants()

			Expect(err).To(MatchError(ErrInvariantViolated))
			Expect(err.Error()).To(ContainSubstring("frame 1 owns page 1"))
		})

		It("should find a dirty page that is not resident", func() {
			mmu.pageTable.Get(7).Dirty = true

			err := mmu.CheckInvariants()

			Expect(err).To(MatchError(ErrInvariantViolated))
			Expect(err.Error()).To(ContainSubstring("dirty but not resident"))
		})

		It("should find a page in a frame that does not exist", func() {
			page := mmu.pageTable.Get(5)
			page.Resident = true
			page.Location = 2

			err := mmu.CheckInvariants()

			Expect(err).To(MatchError(ErrInvariantViolated))
			Expect(err.Error()).To(ContainSubstring("frame 2 of 2"))
		})

		It("should find more resident pages than frames", func() {
			page := mmu.pageTable.Get(5)
			page.Resident = true
			page.Location = 0

			Expect(mmu.CheckInvariants()).To(MatchError(ErrInvariantViolated))
			Expect(mmu.pageTable.NumResident()).To(Equal(3))
		})
	})

	Context("with a TLB", func() {
		BeforeEach(func() {
			mmu = builder.WithTLBEntries(2).Build("MMU")
		})

		It("should count hits and misses", func() {
			_, _ = mmu.Read(0)
			_, _ = mmu.Read(1)
			_, _ = mmu.Read(2)

			Expect(mmu.Stats().TLBMisses).To(Equal(uint64(1)))
			Expect(mmu.Stats().TLBHits).To(Equal(uint64(2)))
		})

		It("should not hit on an evicted page", func() {
			Expect(mmu.Write(0, 1)).To(Succeed())
			Expect(mmu.Write(4, 2)).To(Succeed())
			Expect(mmu.Write(8, 3)).To(Succeed())

			data, err := mmu.Read(0)

			Expect(err).ToNot(HaveOccurred())
			Expect(data).To(Equal(uint32(1)))
			Expect(mmu.Stats().PageFaults).To(Equal(uint64(4)))
			Expect(mmu.Stats().TLBHits).To(BeZero())
		})
	})

	Context("with a mocked victim finder", func() {
		var victimFinder *MockVictimFinder

		BeforeEach(func() {
			victimFinder = NewMockVictimFinder(mockCtrl)
			mmu = builder.WithVictimFinder(victimFinder).Build("MMU")
		})

		It("should only ask for a victim when all frames are taken", func() {
			_, _ = mmu.Read(0)
			_, _ = mmu.Read(4)

			victimFinder.EXPECT().
				FindVictim(gomock.Any()).
				DoAndReturn(func(frames FrameView) int {
					Expect(frames.NumFrames()).To(Equal(2))
					owner, owned := frames.Owner(1)
					Expect(owned).To(BeTrue())
					Expect(owner).To(Equal(VPN(1)))
					Expect(frames.Referenced(1)).To(BeTrue())
					frames.ClearReferenced(1)
					Expect(frames.Referenced(1)).To(BeFalse())
					return 1
				})

			_, err := mmu.Read(8)

			Expect(err).ToNot(HaveOccurred())
			Expect(mmu.Frame(1).Owner).To(Equal(VPN(2)))
			Expect(mmu.Frame(0).Owner).To(Equal(VPN(0)))
		})

		It("should panic on an invalid victim", func() {
			_, _ = mmu.Read(0)
			_, _ = mmu.Read(4)
			victimFinder.EXPECT().FindVictim(gomock.Any()).Return(2)

			Expect(func() { _, _ = mmu.Read(8) }).To(Panic())
		})
	})

	It("should feed every access to an access observer", func() {
		counter := &accessCounter{}
		mmu = builder.WithVictimFinder(counter).Build("MMU")

		_, _ = mmu.Read(0)
		_, _ = mmu.Read(9)
		_, _ = mmu.Read(4)

		Expect(counter.vpns).To(Equal([]VPN{0, 2, 1}))
	})

	It("should invoke hooks on accesses, faults and evictions", func() {
		mmu = builder.Build("MMU")
		hook := NewMockHook(mockCtrl)
		mmu.AcceptHook(hook)

		var positions []*sim.HookPos
		hook.EXPECT().Func(gomock.Any()).Do(func(ctx sim.HookCtx) {
			positions = append(positions, ctx.Pos)
		}).AnyTimes()

		Expect(mmu.Write(0, 1)).To(Succeed())
		Expect(mmu.Write(4, 1)).To(Succeed())
		Expect(mmu.Write(8, 1)).To(Succeed())

		Expect(positions).To(Equal([]*sim.HookPos{
			HookPosAccess, HookPosPageFault,
			HookPosAccess, HookPosPageFault,
			HookPosAccess, HookPosEviction, HookPosPageFault,
		}))
	})
})

var _ = Describe("Builder", func() {
	It("should panic without a victim finder", func() {
		Expect(func() { MakeBuilder().Build("MMU") }).To(Panic())
	})

	It("should panic if the page size is not a power of two", func() {
		Expect(func() {
			MakeBuilder().
				WithVictimFinder(&roundRobin{}).
				WithPageSize(3).
				Build("MMU")
		}).To(Panic())
	})

	It("should panic if the RAM does not match the frames", func() {
		Expect(func() {
			MakeBuilder().
				WithVictimFinder(&roundRobin{}).
				WithRAM(storage.NewMemory(4, 4)).
				Build("MMU")
		}).To(Panic())
	})

	It("should use the default geometry", func() {
		mmu := MakeBuilder().WithVictimFinder(&roundRobin{}).Build("MMU")

		Expect(mmu.Name()).To(Equal("MMU"))
		Expect(mmu.PageSize()).To(Equal(4))
		Expect(mmu.NumPages()).To(Equal(2048))
		Expect(mmu.NumFrames()).To(Equal(8))
		Expect(mmu.Snapshot().TLBLen).To(BeZero())
	})
})
