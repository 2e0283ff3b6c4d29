package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/xid"
	"github.com/spf13/cobra"

	"github.com/sarchlab/vmsim/config"
	"github.com/sarchlab/vmsim/datarecording"
	"github.com/sarchlab/vmsim/logger"
	"github.com/sarchlab/vmsim/machine"
	"github.com/sarchlab/vmsim/mem/storage"
	"github.com/sarchlab/vmsim/mem/trace"
	"github.com/sarchlab/vmsim/monitoring"
	"github.com/sarchlab/vmsim/report"
)

// runArgs collects the flags of the run command. Zero values leave the
// configuration untouched, except tlb where a negative value does.
type runArgs struct {
	program string

	envFiles  []string
	policy    string
	traceFile string
	frames    int
	pageSize  int
	tlb       int

	recordTrace string
	dbPath      string
	faultLog    string
	swapFile    string

	monitor     bool
	monitorPort int
	openBrowser bool

	quiet           bool
	checkInvariants bool
	logFormat       string
	logLevel        string
}

var flags = runArgs{tlb: -1}

var runCmd = &cobra.Command{
	Use:   "run [program]",
	Short: "Run a program.",
	Long: `Run a program until it halts. The program defaults to a.s.

Interrupting the run prints the core map, the page table and the statistics.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := flags
		a.program = "a.s"
		if len(args) > 0 {
			a.program = args[0]
		}

		ctx, stop := signal.NotifyContext(cmd.Context(),
			os.Interrupt, syscall.SIGTERM)
		defer stop()

		return simulate(ctx, cmd.OutOrStdout(), a)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringSliceVar(&flags.envFiles, "env", nil,
		".env files to read the configuration from")
	f.StringVar(&flags.policy, "policy", "",
		"page replacement policy: fifo, second-chance or optimal")
	f.StringVar(&flags.traceFile, "trace-file", "",
		"page access trace used by the optimal policy")
	f.IntVar(&flags.frames, "frames", 0, "number of physical frames")
	f.IntVar(&flags.pageSize, "page-size", 0, "number of words in a page")
	f.IntVar(&flags.tlb, "tlb", -1, "number of TLB entries, 0 disables the TLB")
	f.StringVar(&flags.recordTrace, "record-trace", "",
		"write the pages accessed by the run into a trace file")
	f.StringVar(&flags.dbPath, "db", "",
		"record page faults and evictions into <db>.sqlite3")
	f.StringVar(&flags.faultLog, "fault-log", "",
		"write a line per page fault and eviction into a file")
	f.StringVar(&flags.swapFile, "swap-file", "",
		"keep the swap slots in a memory-mapped file")
	f.BoolVar(&flags.monitor, "monitor", false,
		"serve the state of the machine over HTTP")
	f.IntVar(&flags.monitorPort, "monitor-port", 0,
		"port of the monitoring server, random if 0")
	f.BoolVar(&flags.openBrowser, "open-browser", false,
		"open the monitoring server in a browser")
	f.BoolVarP(&flags.quiet, "quiet", "q", false,
		"do not print each executed instruction")
	f.BoolVar(&flags.checkInvariants, "check-invariants", false,
		"verify the page table and the core map after every instruction")
	f.StringVar(&flags.logFormat, "log-format", "zap", "zap, logrus or none")
	f.StringVar(&flags.logLevel, "log-level", "warn", "minimum log level")
}

func (a runArgs) config() (config.Config, error) {
	cfg, err := config.Load(a.envFiles...)
	if err != nil {
		return cfg, err
	}

	if a.policy != "" {
		cfg.Policy = a.policy
	}

	if a.traceFile != "" {
		cfg.TraceFile = a.traceFile
	}

	if a.frames != 0 {
		cfg.NumFrames = a.frames
	}

	if a.pageSize != 0 {
		cfg.PageSize = a.pageSize
	}

	if a.tlb >= 0 {
		cfg.TLBEntries = a.tlb
	}

	return cfg, cfg.Validate()
}

func (a runArgs) openSwap(cfg config.Config) (storage.Storage, error) {
	if a.swapFile == "" {
		return nil, nil
	}

	return storage.NewMMap(a.swapFile, cfg.NumSwapSlots, cfg.PageSize)
}

// newMachine builds the machine. The swap storage, if any, is closed when the
// machine cannot be built and by the machine otherwise.
func (a runArgs) newMachine(
	cfg config.Config,
	l logger.Logger,
	swap storage.Storage,
) (*machine.Machine, error) {
	opts := []machine.Option{machine.WithLogger(l)}

	if a.checkInvariants {
		opts = append(opts, machine.WithInvariantChecks())
	}

	if swap != nil {
		opts = append(opts, machine.WithSwapStorage(swap))
	}

	m, err := machine.New(cfg, opts...)
	if err != nil {
		if swap != nil {
			_ = swap.Close()
		}
		return nil, err
	}

	return m, nil
}

// simulate runs a program and prints the report into out. An interrupted run
// returns an error wrapping machine.ErrInterrupted.
func simulate(ctx context.Context, out io.Writer, a runArgs) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}

	l, err := newLogger(a.logFormat, a.logLevel)
	if err != nil {
		return err
	}

	swap, err := a.openSwap(cfg)
	if err != nil {
		return err
	}

	m, err := a.newMachine(cfg, l, swap)
	if err != nil {
		return err
	}
	defer m.Close()

	fmt.Fprintln(out, m.Policy().Description())

	r, err := a.attachRecorders(m, out)
	if err != nil {
		return err
	}
	defer r.close()

	if err := m.LoadFile(a.program); err != nil {
		return err
	}

	if a.monitor {
		mon := monitoring.NewMonitor(m).WithPortNumber(a.monitorPort)
		url, err := mon.StartServer()
		if err != nil {
			return err
		}
		defer mon.StopServer()

		if a.openBrowser {
			if err := mon.OpenBrowser(url); err != nil {
				l.Warn("cannot open browser", "error", err)
			}
		}
	}

	runErr := m.Run(ctx)

	if err := r.finish(m, a.program, runErr); err != nil {
		return err
	}

	return writeReport(out, m, runErr)
}

func writeReport(out io.Writer, m *machine.Machine, runErr error) error {
	s := m.Snapshot()

	switch {
	case errors.Is(runErr, machine.ErrInterrupted):
		fmt.Fprintf(out, "\nInterrupted at pc = %d.\n", s.PC)
		report.WriteInterrupted(out, s.Snapshot)
	case runErr != nil:
		report.WriteStats(out, s.Stats)
	default:
		report.WriteRegisters(out, s.Registers)
		report.WriteStats(out, s.Stats)
		report.WriteSimTime(out, s.Instructions, s.Cycle, m.Config().Freq)
	}

	return runErr
}

// recorders are the optional outputs of a run besides the report.
type recorders struct {
	runID       string
	access      *trace.AccessRecorder
	accessPath  string
	db          datarecording.DataRecorder
	faultLogger *os.File
}

type runEntry struct {
	ID             string
	Program        string
	Policy         string
	PageSize       int
	Frames         int
	Instructions   uint64
	Cycles         uint64
	MemoryAccesses uint64
	PageFaults     uint64
	DiskReads      uint64
	DiskWrites     uint64
	Outcome        string
}

func (a runArgs) attachRecorders(
	m *machine.Machine,
	out io.Writer,
) (*recorders, error) {
	r := &recorders{runID: xid.New().String()}

	if !a.quiet {
		m.CPU().AcceptHook(report.NewInstructionTracer(out))
	}

	if a.recordTrace != "" {
		r.access = trace.NewAccessRecorder()
		r.accessPath = a.recordTrace
		m.MMU().AcceptHook(r.access)
	}

	if a.faultLog != "" {
		f, err := os.Create(a.faultLog)
		if err != nil {
			return nil, err
		}
		r.faultLogger = f
		m.MMU().AcceptHook(trace.NewTracer(log.New(f, "", 0), m.Engine()))
	}

	if a.dbPath != "" {
		r.db = datarecording.New(a.dbPath)
		r.db.CreateTable("runs", runEntry{})
		m.MMU().AcceptHook(trace.NewDBTracer(r.db, m.Engine()))
	}

	return r, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "halted"
	case errors.Is(err, machine.ErrInterrupted):
		return "interrupted"
	default:
		return "failed"
	}
}

// finish writes what the recorders collected.
func (r *recorders) finish(m *machine.Machine, program string, runErr error) error {
	if r.db != nil {
		s := m.Snapshot()
		r.db.InsertData("runs", runEntry{
			ID:             r.runID,
			Program:        program,
			Policy:         s.Policy,
			PageSize:       m.Config().PageSize,
			Frames:         m.Config().NumFrames,
			Instructions:   s.Instructions,
			Cycles:         s.Cycle,
			MemoryAccesses: s.Stats.MemoryAccesses,
			PageFaults:     s.Stats.PageFaults,
			DiskReads:      s.Stats.DiskReads,
			DiskWrites:     s.Stats.DiskWrites,
			Outcome:        outcome(runErr),
		})
		r.db.Flush()
	}

	if r.access != nil {
		f, err := os.Create(r.accessPath)
		if err != nil {
			return err
		}
		defer f.Close()

		if _, err := r.access.WriteTo(f); err != nil {
			return err
		}
	}

	return nil
}

func (r *recorders) close() {
	if r.db != nil {
		_ = r.db.Close()
	}

	if r.faultLogger != nil {
		_ = r.faultLogger.Close()
	}
}
