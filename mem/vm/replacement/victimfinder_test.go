package replacement

import (
	"github.com/sarchlab/vmsim/mem/vm"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

// frameTable is a FrameView over plain slices.
type frameTable struct {
	owners     []vm.VPN
	referenced []bool
}

func newFrameTable(owners ...vm.VPN) *frameTable {
	return &frameTable{
		owners:     owners,
		referenced: make([]bool, len(owners)),
	}
}

func (t *frameTable) NumFrames() int                 { return len(t.owners) }
func (t *frameTable) Owner(frame int) (vm.VPN, bool) { return t.owners[frame], true }
func (t *frameTable) Referenced(frame int) bool      { return t.referenced[frame] }
func (t *frameTable) ClearReferenced(frame int)      { t.referenced[frame] = false }

var _ = Describe("FIFOVictimFinder", func() {
	var (
		mockCtrl *gomock.Controller
		frames   *MockFrameView
		finder   *FIFOVictimFinder
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		frames = NewMockFrameView(mockCtrl)
		frames.EXPECT().NumFrames().Return(3).AnyTimes()
		finder = NewFIFOVictimFinder()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should go around the frames without looking at them", func() {
		victims := make([]int, 0, 7)
		for i := 0; i < 7; i++ {
			victims = append(victims, finder.FindVictim(frames))
		}

		Expect(victims).To(Equal([]int{0, 1, 2, 0, 1, 2, 0}))
	})
})

var _ = Describe("ClockVictimFinder", func() {
	var (
		mockCtrl *gomock.Controller
		finder   *ClockVictimFinder
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		finder = NewClockVictimFinder()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should skip referenced frames and clear their bits", func() {
		frames := NewMockFrameView(mockCtrl)
		frames.EXPECT().NumFrames().Return(4).AnyTimes()
		gomock.InOrder(
			frames.EXPECT().Referenced(0).Return(true),
			frames.EXPECT().ClearReferenced(0),
			frames.EXPECT().Referenced(1).Return(true),
			frames.EXPECT().ClearReferenced(1),
			frames.EXPECT().Referenced(2).Return(false),
		)

		Expect(finder.FindVictim(frames)).To(Equal(2))
	})

	It("should resume just past the victim", func() {
		frames := newFrameTable(10, 11, 12, 13)

		Expect(finder.FindVictim(frames)).To(Equal(0))

		frames.referenced[2] = true
		Expect(finder.FindVictim(frames)).To(Equal(1))
		Expect(finder.FindVictim(frames)).To(Equal(3))
		Expect(frames.referenced[2]).To(BeFalse())
	})

	It("should never pick a referenced frame while an unreferenced one exists",
		func() {
			frames := newFrameTable(10, 11, 12, 13)
			for i := 0; i < 20; i++ {
				for f := range frames.referenced {
					frames.referenced[f] = f != i%4
				}

				Expect(finder.FindVictim(frames)).To(Equal(i % 4))
			}
		})

	It("should take the frame under the hand when every frame is referenced",
		func() {
			frames := newFrameTable(10, 11, 12)
			for f := range frames.referenced {
				frames.referenced[f] = true
			}

			Expect(finder.FindVictim(frames)).To(Equal(0))
			Expect(frames.referenced).To(Equal([]bool{false, false, false}))
		})
})

var _ = Describe("OptimalVictimFinder", func() {
	It("should evict the page used the farthest in the future", func() {
		finder := NewOptimalVictimFinder([]vm.VPN{0, 1, 2, 3, 1, 0, 2})
		frames := newFrameTable(0, 1, 2)
		for i := 0; i < 4; i++ {
			finder.ObserveAccess(0)
		}

		Expect(finder.Position()).To(Equal(4))
		Expect(finder.FindVictim(frames)).To(Equal(2))
	})

	It("should prefer pages that are never used again", func() {
		finder := NewOptimalVictimFinder([]vm.VPN{0, 1, 2, 3, 0, 2})
		frames := newFrameTable(0, 1, 2)
		for i := 0; i < 4; i++ {
			finder.ObserveAccess(0)
		}

		Expect(finder.FindVictim(frames)).To(Equal(1))
	})

	It("should break ties by the lowest frame index", func() {
		finder := NewOptimalVictimFinder([]vm.VPN{5, 6, 7})
		frames := newFrameTable(1, 2, 3)
		for i := 0; i < 3; i++ {
			finder.ObserveAccess(0)
		}

		Expect(finder.FindVictim(frames)).To(Equal(0))
	})

	It("should take an unowned frame first", func() {
		mockCtrl := gomock.NewController(GinkgoT())
		defer mockCtrl.Finish()
		frames := NewMockFrameView(mockCtrl)
		frames.EXPECT().NumFrames().Return(2).AnyTimes()
		frames.EXPECT().Owner(0).Return(vm.VPN(0), true)
		frames.EXPECT().Owner(1).Return(vm.VPN(0), false)

		finder := NewOptimalVictimFinder([]vm.VPN{0})

		Expect(finder.FindVictim(frames)).To(Equal(1))
	})

	It("should fault less than FIFO on the default workload", func() {
		fifo := run(NewFIFOVictimFinder(), DefaultTrace())
		optimal := run(NewOptimalVictimFinder(DefaultTrace()), DefaultTrace())

		Expect(optimal).To(BeNumerically("<=", fifo))
	})
})

// run replays trace through an MMU with 4 frames and counts the faults.
func run(finder vm.VictimFinder, trace []vm.VPN) uint64 {
	mmu := vm.MakeBuilder().
		WithNumPages(256).
		WithNumFrames(4).
		WithVictimFinder(finder).
		Build("MMU")

	for _, vpn := range trace {
		_, err := mmu.Read(uint32(vpn) * uint32(mmu.PageSize()))
		Expect(err).ToNot(HaveOccurred())
	}

	return mmu.Stats().PageFaults
}
