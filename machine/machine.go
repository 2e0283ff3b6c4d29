// Package machine assembles a complete simulated computer: a CPU executing
// out of demand-paged virtual memory, driven by a serial engine.
package machine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sarchlab/vmsim/asm"
	"github.com/sarchlab/vmsim/config"
	"github.com/sarchlab/vmsim/cpu"
	"github.com/sarchlab/vmsim/logger"
	"github.com/sarchlab/vmsim/mem/storage"
	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/replacement"
	"github.com/sarchlab/vmsim/sim"
)

// ErrInterrupted means that a run was stopped from outside before the
// program halted.
var ErrInterrupted = errors.New("interrupted")

type options struct {
	log             logger.Logger
	swapStorage     storage.Storage
	checkInvariants bool
	trace           []vm.VPN
}

// An Option customizes a Machine.
type Option func(*options)

// WithLogger sets the logger of the machine and of its MMU.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithSwapStorage keeps the swap slots in s instead of in memory. The page
// size of s must match the configuration. Its page count replaces the
// configured number of swap slots.
func WithSwapStorage(s storage.Storage) Option {
	return func(o *options) {
		o.swapStorage = s
	}
}

// WithInvariantChecks verifies the page table and the coremap after every
// instruction. A violation stops the CPU.
func WithInvariantChecks() Option {
	return func(o *options) {
		o.checkInvariants = true
	}
}

// WithTrace sets the page access trace of the optimal policy. It takes
// precedence over the trace file of the configuration.
func WithTrace(trace []vm.VPN) Option {
	return func(o *options) {
		o.trace = trace
	}
}

// Machine owns every part of a simulated computer.
type Machine struct {
	cfg    config.Config
	log    logger.Logger
	kind   replacement.Kind
	engine *sim.SerialEngine
	mmu    *vm.MMU
	cpu    *cpu.Comp

	programSize int
	invariants  func() error

	pauseLock sync.Mutex
	paused    bool
}

// New builds a machine. The configuration is validated first.
func New(cfg config.Config, opts ...Option) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	if o.swapStorage != nil && o.swapStorage.PageSize() != cfg.PageSize {
		return nil, fmt.Errorf("%w: swap storage has pages of %d words, not %d",
			config.ErrInvalidConfig, o.swapStorage.PageSize(), cfg.PageSize)
	}

	m := &Machine{
		cfg:  cfg,
		log:  logger.OrDiscard(o.log),
		kind: cfg.PolicyKind(),
	}

	trace, err := m.optimalTrace(o.trace)
	if err != nil {
		return nil, err
	}

	policy, err := replacement.New(m.kind, trace)
	if err != nil {
		return nil, err
	}

	m.mmu = vm.MakeBuilder().
		WithPageSize(cfg.PageSize).
		WithNumPages(cfg.NumPages).
		WithNumFrames(cfg.NumFrames).
		WithNumSwapSlots(cfg.NumSwapSlots).
		WithSwapStorage(o.swapStorage).
		WithTLBEntries(cfg.TLBEntries).
		WithVictimFinder(policy).
		WithLogger(m.log).
		Build("MMU")

	m.cpu = cpu.MakeBuilder().
		WithMemory(m.mmu).
		Build("CPU")

	m.invariants = m.mmu.CheckInvariants

	m.engine = sim.NewSerialEngine()
	m.engine.RegisterTicker(m.cpu)

	if o.checkInvariants {
		m.engine.AcceptHook(sim.HookFunc(m.checkAfterTick))
	}

	m.log.Info("machine configured",
		"policy", m.kind.String(),
		"page_size", cfg.PageSize,
		"pages", cfg.NumPages,
		"frames", cfg.NumFrames,
		"swap_slots", cfg.NumSwapSlots,
		"tlb_entries", cfg.TLBEntries,
	)

	return m, nil
}

func (m *Machine) optimalTrace(trace []vm.VPN) ([]vm.VPN, error) {
	if m.kind != replacement.Optimal || trace != nil || m.cfg.TraceFile == "" {
		return trace, nil
	}

	f, err := os.Open(m.cfg.TraceFile)
	if err != nil {
		return nil, fmt.Errorf("cannot open trace: %w", err)
	}
	defer f.Close()

	return replacement.ReadTrace(f)
}

func (m *Machine) checkAfterTick(ctx sim.HookCtx) {
	if ctx.Pos != sim.HookPosAfterTick {
		return
	}

	if err := m.invariants(); err != nil {
		m.log.Error("invariant violated", "error", err)
		m.cpu.Abort(err)
	}
}

// Config returns the configuration of the machine.
func (m *Machine) Config() config.Config {
	return m.cfg
}

// Policy returns the page replacement policy.
func (m *Machine) Policy() replacement.Kind {
	return m.kind
}

// MMU returns the memory management unit.
func (m *Machine) MMU() *vm.MMU {
	return m.mmu
}

// CPU returns the processor.
func (m *Machine) CPU() *cpu.Comp {
	return m.cpu
}

// Engine returns the engine that drives the processor.
func (m *Machine) Engine() *sim.SerialEngine {
	return m.engine
}

// ProgramSize returns the number of instructions loaded.
func (m *Machine) ProgramSize() int {
	return m.programSize
}

// Load parses a program and writes it into virtual memory from address 0.
// The writes go through the MMU like any other access.
func (m *Machine) Load(r io.Reader) error {
	program, err := asm.Parse(r)
	if err != nil {
		return err
	}

	if err := asm.Load(m.mmu, program); err != nil {
		return err
	}

	m.programSize = len(program)
	m.log.Info("program loaded", "instructions", len(program))

	return nil
}

// LoadFile loads the program stored in a file.
func (m *Machine) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open program: %w", err)
	}
	defer f.Close()

	return m.Load(f)
}

// Run executes the program until it halts, fails or ctx is done. Cancelling
// ctx stops the machine between two instructions and returns an error
// wrapping ErrInterrupted.
func (m *Machine) Run(ctx context.Context) error {
	err := m.engine.Run(ctx)
	if err != nil {
		m.log.Info("run interrupted",
			"cycle", m.engine.CurrentCycle(), "pc", m.cpu.PC())
		return fmt.Errorf("%w at pc = %d: %w", ErrInterrupted, m.cpu.PC(), err)
	}

	if err := m.cpu.Err(); err != nil {
		m.log.Error("run failed", "pc", m.cpu.PC(), "error", err)
		return err
	}

	m.engine.Finished()
	m.log.Info("program halted",
		"instructions", m.cpu.NumInstructions(),
		"page_faults", m.mmu.Stats().PageFaults)

	return nil
}

// Snapshot is a copy of the state of a machine.
type Snapshot struct {
	vm.Snapshot

	Policy       string
	PC           uint32
	Registers    [cpu.NumRegisters]uint32
	Halted       bool
	Instructions uint64
	Cycle        uint64
}

// Snapshot copies the state of the machine. It must not be called while the
// machine runs in another goroutine. Use SafeSnapshot instead.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		Snapshot:     m.mmu.Snapshot(),
		Policy:       m.kind.String(),
		PC:           m.cpu.PC(),
		Registers:    m.cpu.Registers(),
		Halted:       m.cpu.Halted(),
		Instructions: m.cpu.NumInstructions(),
		Cycle:        m.engine.CurrentCycle(),
	}
}

// SafeSnapshot waits for the current instruction to complete and copies the
// state of the machine. It can be called while the machine runs.
func (m *Machine) SafeSnapshot() Snapshot {
	m.pauseLock.Lock()
	defer m.pauseLock.Unlock()

	if !m.paused {
		m.engine.Pause()
		defer m.engine.Continue()
	}

	return m.Snapshot()
}

// Pause stops the machine after the current instruction until Continue is
// called.
func (m *Machine) Pause() {
	m.pauseLock.Lock()
	defer m.pauseLock.Unlock()

	if m.paused {
		return
	}

	m.engine.Pause()
	m.paused = true
}

// Continue resumes a paused machine.
func (m *Machine) Continue() {
	m.pauseLock.Lock()
	defer m.pauseLock.Unlock()

	if !m.paused {
		return
	}

	m.engine.Continue()
	m.paused = false
}

// CheckInvariants verifies that the page table and the coremap agree.
func (m *Machine) CheckInvariants() error {
	return m.mmu.CheckInvariants()
}

// Close releases the storage of the machine.
func (m *Machine) Close() error {
	return m.mmu.Close()
}
