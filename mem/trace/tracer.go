// Package trace provides hooks that trace what the memory system does.
package trace

import (
	"io"
	"log"

	"github.com/sarchlab/vmsim/datarecording"
	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/replacement"
	"github.com/sarchlab/vmsim/sim"
)

// pageFaultEntry represents a page fault in the database
type pageFaultEntry struct {
	Cycle    uint64 `json:"cycle"`
	VPN      uint32 `json:"vpn"`
	Frame    int    `json:"frame"`
	FromSwap bool   `json:"from_swap"`
	SwapSlot uint32 `json:"swap_slot"`
}

// evictionEntry represents an eviction in the database
type evictionEntry struct {
	Cycle     uint64 `json:"cycle"`
	VPN       uint32 `json:"vpn"`
	Frame     int    `json:"frame"`
	WroteBack bool   `json:"wrote_back"`
	SwapSlot  uint32 `json:"swap_slot"`
	NewSlot   bool   `json:"new_slot"`
}

// A tracer is a hook that logs page faults and evictions as text lines.
type tracer struct {
	cycleTeller sim.CycleTeller
	logger      *log.Logger
}

// NewTracer creates a tracer that writes one comma separated line per page
// fault or eviction.
func NewTracer(logger *log.Logger, cycleTeller sim.CycleTeller) sim.Hook {
	return &tracer{
		cycleTeller: cycleTeller,
		logger:      logger,
	}
}

// Func logs a page fault or an eviction.
func (t *tracer) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case vm.HookPosPageFault:
		detail := ctx.Detail.(vm.FaultDetail)
		t.logger.Printf("fault, %d, %d, %d, %t, %d\n",
			t.cycleTeller.CurrentCycle(),
			ctx.Item.(vm.VPN),
			detail.Frame,
			detail.FromSwap,
			detail.SwapSlot,
		)
	case vm.HookPosEviction:
		detail := ctx.Detail.(vm.EvictionDetail)
		t.logger.Printf("evict, %d, %d, %d, %t, %d\n",
			t.cycleTeller.CurrentCycle(),
			ctx.Item.(vm.VPN),
			detail.Frame,
			detail.WroteBack,
			detail.SwapSlot,
		)
	}
}

// A dbTracer is a hook that records page faults and evictions into a
// database using the data recorder.
type dbTracer struct {
	cycleTeller  sim.CycleTeller
	dataRecorder datarecording.DataRecorder
}

// NewDBTracer creates a tracer that records into the page_faults and
// evictions tables.
func NewDBTracer(
	dataRecorder datarecording.DataRecorder,
	cycleTeller sim.CycleTeller,
) sim.Hook {
	t := &dbTracer{
		cycleTeller:  cycleTeller,
		dataRecorder: dataRecorder,
	}

	t.dataRecorder.CreateTable("page_faults", pageFaultEntry{})
	t.dataRecorder.CreateTable("evictions", evictionEntry{})

	return t
}

// Func records a page fault or an eviction.
func (t *dbTracer) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case vm.HookPosPageFault:
		detail := ctx.Detail.(vm.FaultDetail)
		t.dataRecorder.InsertData("page_faults", pageFaultEntry{
			Cycle:    t.cycleTeller.CurrentCycle(),
			VPN:      uint32(ctx.Item.(vm.VPN)),
			Frame:    detail.Frame,
			FromSwap: detail.FromSwap,
			SwapSlot: detail.SwapSlot,
		})
	case vm.HookPosEviction:
		detail := ctx.Detail.(vm.EvictionDetail)
		t.dataRecorder.InsertData("evictions", evictionEntry{
			Cycle:     t.cycleTeller.CurrentCycle(),
			VPN:       uint32(ctx.Item.(vm.VPN)),
			Frame:     detail.Frame,
			WroteBack: detail.WroteBack,
			SwapSlot:  detail.SwapSlot,
			NewSlot:   detail.NewSlot,
		})
	}
}

// AccessRecorder is a hook that remembers the page of every access. The
// recorded sequence can drive the optimal replacement policy of a later run.
type AccessRecorder struct {
	trace []vm.VPN
}

// NewAccessRecorder creates an empty AccessRecorder.
func NewAccessRecorder() *AccessRecorder {
	return &AccessRecorder{}
}

// Func records the page of an access.
func (r *AccessRecorder) Func(ctx sim.HookCtx) {
	if ctx.Pos != vm.HookPosAccess {
		return
	}

	r.trace = append(r.trace, ctx.Item.(vm.VPN))
}

// Trace returns a copy of the recorded pages.
func (r *AccessRecorder) Trace() []vm.VPN {
	trace := make([]vm.VPN, len(r.trace))
	copy(trace, r.trace)

	return trace
}

// WriteTo writes the recorded pages in the trace format.
func (r *AccessRecorder) WriteTo(w io.Writer) (int64, error) {
	return replacement.WriteTrace(w, r.trace)
}
