// Package report prints the human readable output of a simulation.
package report

import (
	"fmt"
	"io"

	"github.com/sarchlab/vmsim/cpu"
	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/sim"
)

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}

// WriteStats prints the counters of the memory system. The TLB counters are
// only printed if the TLB was used.
func WriteStats(w io.Writer, s vm.Stats) {
	fmt.Fprintf(w, "\n%d memory accesses\n", s.MemoryAccesses)
	fmt.Fprintf(w, "%d page faults\n", s.PageFaults)
	fmt.Fprintf(w, "%d disk reads\n", s.DiskReads)
	fmt.Fprintf(w, "%d disk writes\n", s.DiskWrites)

	if s.TLBHits+s.TLBMisses > 0 {
		fmt.Fprintf(w, "%d TLB hits\n", s.TLBHits)
		fmt.Fprintf(w, "%d TLB misses\n", s.TLBMisses)
	}
}

// WriteSimTime prints how many instructions ran and how long they would take
// on a CPU running at freq.
func WriteSimTime(w io.Writer, instructions, cycles uint64, freq sim.Freq) {
	fmt.Fprintf(w, "%d instructions in %d cycles (%.9f s at %.0f Hz)\n",
		instructions, cycles, freq.Seconds(cycles), float64(freq))
}

// WriteCoremap prints one line per frame.
func WriteCoremap(w io.Writer, frames []vm.Frame) {
	fmt.Fprintf(w, "\nCore map:\n")

	for i, f := range frames {
		fmt.Fprintf(w, "Entry %d: Swap page = %d. ", i, f.SwapSlot)

		if f.Owned {
			fmt.Fprintf(w, "Owner = %d.\n", f.Owner)
		} else {
			fmt.Fprintf(w, "No owner.\n")
		}
	}
}

// WritePageTable prints one line per page table entry.
func WritePageTable(w io.Writer, entries []vm.PageEntry) {
	fmt.Fprintf(w, "\nPage table:\n")

	for _, e := range entries {
		fmt.Fprintf(w, "Entry %d: ", e.VPN)
		fmt.Fprintf(w, "Ram/Swap page = %d. ", e.Location)
		fmt.Fprintf(w, "In memory = %d. ", boolToInt(e.Resident))
		fmt.Fprintf(w, "On disk = %d. ", boolToInt(e.OnDisk))
		fmt.Fprintf(w, "Modified = %d. ", boolToInt(e.Dirty))
		fmt.Fprintf(w, "Referenced = %d. ", boolToInt(e.Referenced))
		fmt.Fprintf(w, "Readonly = %d.\n", boolToInt(e.ReadOnly))
	}
}

// WriteRegisters prints the registers as signed values, four per row.
func WriteRegisters(w io.Writer, regs [cpu.NumRegisters]uint32) {
	for i := 0; i < cpu.NumRegisters; i += 4 {
		for j := 0; j < 4; j++ {
			if j > 0 {
				fmt.Fprintf(w, "| ")
			}
			fmt.Fprintf(w, "R%02d = %-12d", i+j, int32(regs[i+j]))
		}
		fmt.Fprintf(w, "\n")
	}
}

// WriteInterrupted prints the state of the memory system when a run is
// interrupted: the coremap, the page table and the counters.
func WriteInterrupted(w io.Writer, s vm.Snapshot) {
	WriteCoremap(w, s.Coremap)
	WritePageTable(w, s.PageTable)
	WriteStats(w, s.Stats)
}

// instructionTracer prints every instruction as it is executed.
type instructionTracer struct {
	w io.Writer
}

// NewInstructionTracer creates a hook that prints the program counter and the
// name of every instruction.
func NewInstructionTracer(w io.Writer) sim.Hook {
	return &instructionTracer{w: w}
}

func (t *instructionTracer) Func(ctx sim.HookCtx) {
	if ctx.Pos != cpu.HookPosInstruction {
		return
	}

	inst := ctx.Item.(cpu.Instruction)
	detail := ctx.Detail.(cpu.InstructionDetail)

	fmt.Fprintf(t.w, "pc = %3d: %s\n", detail.PC, inst.Opcode)
}
