package machine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vmsim/asm"
	"github.com/sarchlab/vmsim/config"
	"github.com/sarchlab/vmsim/cpu"
	"github.com/sarchlab/vmsim/mem/storage"
	"github.com/sarchlab/vmsim/mem/trace"
	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/replacement"
)

const sumProgram = `; sums 5 + 4 + 3 + 2 + 1
addi 1,0,5
addi 2,0,0
add 2,2,1
subi 1,1,1
bt 0,1,2
st 2,0,100
ld 3,0,100
halt 0,0,0
`

const loopForever = `ba 0,0,0
`

// fillPages stores into one new page per iteration.
const fillPages = `addi 2,0,0
addi 1,0,7
st 1,2,64
addi 2,2,4
ba 0,0,2
`

func newMachine(cfg config.Config, program string, opts ...Option) *Machine {
	m, err := New(cfg, opts...)
	Expect(err).ToNot(HaveOccurred())
	Expect(m.Load(strings.NewReader(program))).To(Succeed())

	return m
}

var _ = Describe("Machine", func() {
	var cfg config.Config

	BeforeEach(func() {
		cfg = config.Default()
	})

	It("should run a program to completion", func() {
		m := newMachine(cfg, sumProgram, WithInvariantChecks())

		Expect(m.Run(context.Background())).To(Succeed())

		regs := m.CPU().Registers()
		Expect(regs[2]).To(Equal(uint32(15)))
		Expect(regs[3]).To(Equal(uint32(15)))
		Expect(m.ProgramSize()).To(Equal(8))

		snapshot := m.Snapshot()
		Expect(snapshot.Halted).To(BeTrue())
		Expect(snapshot.Instructions).To(Equal(uint64(20)))
		Expect(snapshot.Cycle).To(Equal(uint64(20)))
		Expect(snapshot.Stats.MemoryAccesses).To(Equal(uint64(30)))
		Expect(snapshot.Stats.PageFaults).To(Equal(uint64(3)))
		Expect(snapshot.Policy).To(Equal("fifo"))
		Expect(m.CheckInvariants()).To(Succeed())
	})

	It("should refuse an invalid configuration", func() {
		cfg.Policy = "random"

		_, err := New(cfg)

		Expect(err).To(MatchError(config.ErrInvalidConfig))
		Expect(err).To(MatchError(replacement.ErrUnknownPolicy))
	})

	It("should refuse a swap storage with another page size", func() {
		_, err := New(cfg, WithSwapStorage(storage.NewMemory(4, 8)))

		Expect(err).To(MatchError(config.ErrInvalidConfig))
	})

	It("should report syntax errors when loading", func() {
		m, err := New(cfg)
		Expect(err).ToNot(HaveOccurred())

		err = m.Load(strings.NewReader("addi 1,0,1\njump 0,0,0\n"))

		Expect(err).To(MatchError(asm.ErrUnknownMnemonic))
	})

	It("should load the program through the MMU", func() {
		m := newMachine(cfg, sumProgram)

		Expect(m.MMU().Stats().MemoryAccesses).To(Equal(uint64(8)))
		Expect(m.MMU().Stats().PageFaults).To(Equal(uint64(2)))
	})

	It("should stop on an illegal instruction", func() {
		m, err := New(cfg)
		Expect(err).ToNot(HaveOccurred())
		Expect(m.MMU().Write(0, 40<<26)).To(Succeed())

		err = m.Run(context.Background())

		Expect(err).To(MatchError(cpu.ErrIllegalInstruction))
	})

	It("should fail when the swap runs out", func() {
		cfg.NumFrames = 2
		cfg.NumSwapSlots = 2
		cfg.NumPages = 64
		m := newMachine(cfg, fillPages, WithInvariantChecks())

		err := m.Run(context.Background())

		Expect(err).To(MatchError(vm.ErrOutOfSwap))
		Expect(m.CheckInvariants()).To(Succeed())
	})

	It("should stop between instructions when interrupted", func() {
		m := newMachine(cfg, loopForever)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error)

		go func() {
			done <- m.Run(ctx)
		}()

		Eventually(func() uint64 {
			return m.SafeSnapshot().Instructions
		}).Should(BeNumerically(">", 10))
		cancel()

		var err error
		Eventually(done, time.Second).Should(Receive(&err))
		Expect(err).To(MatchError(ErrInterrupted))
		Expect(err).To(MatchError(context.Canceled))

		snapshot := m.Snapshot()
		Expect(snapshot.Halted).To(BeFalse())
		Expect(snapshot.Stats.MemoryAccesses).To(
			Equal(snapshot.Instructions + 1))
		Expect(m.CheckInvariants()).To(Succeed())
	})

	It("should stop the CPU when an invariant breaks", func() {
		m := newMachine(cfg, loopForever, WithInvariantChecks())
		checks := 0
		m.invariants = func() error {
			checks++
			if checks == 5 {
				return fmt.Errorf("%w: frame 0 owns page 9",
					vm.ErrInvariantViolated)
			}
			return m.mmu.CheckInvariants()
		}

		err := m.Run(context.Background())

		Expect(err).To(MatchError(vm.ErrInvariantViolated))
		Expect(m.CPU().Err()).To(MatchError(vm.ErrInvariantViolated))
		Expect(m.CPU().NumInstructions()).To(Equal(uint64(5)))
	})

	It("should fault less with the optimal policy on a recorded trace", func() {
		cfg.NumFrames = 2
		fifo, err := New(cfg)
		Expect(err).ToNot(HaveOccurred())
		recorder := trace.NewAccessRecorder()
		fifo.MMU().AcceptHook(recorder)
		Expect(fifo.Load(strings.NewReader(sumProgram))).To(Succeed())
		Expect(fifo.Run(context.Background())).To(Succeed())

		cfg.Policy = "optimal"
		optimal := newMachine(cfg, sumProgram, WithTrace(recorder.Trace()))
		Expect(optimal.Run(context.Background())).To(Succeed())

		Expect(optimal.Policy()).To(Equal(replacement.Optimal))
		Expect(optimal.MMU().Stats().PageFaults).To(
			BeNumerically("<=", fifo.MMU().Stats().PageFaults))
		Expect(optimal.CPU().Registers()).To(Equal(fifo.CPU().Registers()))
	})

	It("should read the optimal trace from a file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "trace.txt")
		Expect(os.WriteFile(path, []byte("{0, 0, 1}"), 0o644)).To(Succeed())
		cfg.Policy = "optimal"
		cfg.TraceFile = path

		m := newMachine(cfg, sumProgram)

		Expect(m.Run(context.Background())).To(Succeed())
	})

	It("should report a missing trace file", func() {
		cfg.Policy = "optimal"
		cfg.TraceFile = filepath.Join(GinkgoT().TempDir(), "missing.txt")

		_, err := New(cfg)

		Expect(err).To(HaveOccurred())
	})

	It("should keep swap in the given storage", func() {
		swap := storage.NewMemory(16, 4)
		cfg.NumFrames = 2
		m := newMachine(cfg, sumProgram, WithSwapStorage(swap))

		Expect(m.Run(context.Background())).To(Succeed())
		Expect(m.MMU().Stats().DiskWrites).ToNot(BeZero())
		Expect(m.Close()).To(Succeed())
	})

	It("should load programs from files", func() {
		path := filepath.Join(GinkgoT().TempDir(), "a.s")
		Expect(os.WriteFile(path, []byte(sumProgram), 0o644)).To(Succeed())
		m, err := New(cfg)
		Expect(err).ToNot(HaveOccurred())

		Expect(m.LoadFile(path)).To(Succeed())
		Expect(m.LoadFile(path + ".missing")).ToNot(Succeed())
	})
})

var _ = Describe("Machine pausing", func() {
	It("should be interrupted while paused", func() {
		m := newMachine(config.Default(), loopForever)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan error, 1)

		go func() {
			done <- m.Run(ctx)
		}()

		Eventually(func() uint64 {
			return m.SafeSnapshot().Instructions
		}).Should(BeNumerically(">", 0))

		m.Pause()
		cancel()

		var err error
		Eventually(done, 2*time.Second).Should(Receive(&err))
		Expect(err).To(MatchError(ErrInterrupted))
		Expect(err).To(MatchError(context.Canceled))
		Expect(m.CheckInvariants()).To(Succeed())
	})

	It("should stay paused while snapshots are taken", func() {
		m := newMachine(config.Default(), loopForever)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan error, 1)

		go func() {
			done <- m.Run(ctx)
		}()

		Eventually(func() uint64 {
			return m.SafeSnapshot().Instructions
		}).Should(BeNumerically(">", 0))

		m.Pause()
		before := m.SafeSnapshot().Instructions
		Consistently(func() uint64 {
			return m.SafeSnapshot().Instructions
		}).Should(Equal(before))

		m.Continue()
		Eventually(func() uint64 {
			return m.SafeSnapshot().Instructions
		}).Should(BeNumerically(">", before))

		cancel()
		Eventually(done).Should(Receive(MatchError(ErrInterrupted)))
	})
})
