// Package monitoring serves the state of a running machine over HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/vmsim/machine"
	"github.com/sarchlab/vmsim/mem/vm"
)

// Target is what a Monitor observes and controls.
type Target interface {
	SafeSnapshot() machine.Snapshot
	Pause()
	Continue()
}

// Monitor can turn a simulation into a server and allows external monitoring
// controlling of the simulation.
type Monitor struct {
	target     Target
	portNumber int
	listener   net.Listener
}

// NewMonitor creates a new Monitor
func NewMonitor(target Target) *Monitor {
	return &Monitor{target: target}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// Handler returns the router that serves the API.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseEngine)
	r.HandleFunc("/api/continue", m.continueEngine)
	r.HandleFunc("/api/stats", m.stats)
	r.HandleFunc("/api/pagetable", m.pageTable)
	r.HandleFunc("/api/coremap", m.coremap)
	r.HandleFunc("/api/registers", m.registers)
	r.HandleFunc("/api/machine", m.machineDetails)
	r.HandleFunc("/api/field/{path}", m.fieldValue)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	return r
}

// StartServer starts serving in the background and returns the URL of the
// server.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", err
	}
	m.listener = listener

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	go func() {
		err := http.Serve(listener, m.Handler())
		if err != nil && !isClosedErr(err) {
			log.Panic(err)
		}
	}()

	return url, nil
}

// OpenBrowser opens the API root of the server in the default browser.
func (m *Monitor) OpenBrowser(url string) error {
	return browser.OpenURL(url + "/api/stats")
}

// StopServer closes the listener of the server.
func (m *Monitor) StopServer() error {
	if m.listener == nil {
		return nil
	}

	return m.listener.Close()
}

func isClosedErr(err error) bool {
	return strings.Contains(err.Error(), "use of closed network connection")
}

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	m.target.Pause()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueEngine(w http.ResponseWriter, _ *http.Request) {
	m.target.Continue()
	_, err := w.Write(nil)
	dieOnErr(err)
}

type statsRsp struct {
	Cycle          uint64 `json:"cycle"`
	Instructions   uint64 `json:"instructions"`
	MemoryAccesses uint64 `json:"memory_accesses"`
	PageFaults     uint64 `json:"page_faults"`
	DiskReads      uint64 `json:"disk_reads"`
	DiskWrites     uint64 `json:"disk_writes"`
	TLBHits        uint64 `json:"tlb_hits"`
	TLBMisses      uint64 `json:"tlb_misses"`
	SwapSlots      int    `json:"swap_slots"`
	Halted         bool   `json:"halted"`
}

func (m *Monitor) stats(w http.ResponseWriter, _ *http.Request) {
	s := m.target.SafeSnapshot()

	writeJSON(w, statsRsp{
		Cycle:          s.Cycle,
		Instructions:   s.Instructions,
		MemoryAccesses: s.Stats.MemoryAccesses,
		PageFaults:     s.Stats.PageFaults,
		DiskReads:      s.Stats.DiskReads,
		DiskWrites:     s.Stats.DiskWrites,
		TLBHits:        s.Stats.TLBHits,
		TLBMisses:      s.Stats.TLBMisses,
		SwapSlots:      s.SwapSlots,
		Halted:         s.Halted,
	})
}

type pageRsp struct {
	VPN        uint32 `json:"vpn"`
	Location   uint32 `json:"location"`
	Resident   bool   `json:"resident"`
	OnDisk     bool   `json:"on_disk"`
	Dirty      bool   `json:"dirty"`
	Referenced bool   `json:"referenced"`
	ReadOnly   bool   `json:"read_only"`
}

func (m *Monitor) pageTable(w http.ResponseWriter, _ *http.Request) {
	s := m.target.SafeSnapshot()

	rsp := make([]pageRsp, 0, len(s.PageTable))
	for _, e := range s.PageTable {
		rsp = append(rsp, pageRsp{
			VPN:        uint32(e.VPN),
			Location:   e.Location,
			Resident:   e.Resident,
			OnDisk:     e.OnDisk,
			Dirty:      e.Dirty,
			Referenced: e.Referenced,
			ReadOnly:   e.ReadOnly,
		})
	}

	writeJSON(w, rsp)
}

type frameRsp struct {
	Frame    int     `json:"frame"`
	Owner    *uint32 `json:"owner"`
	SwapSlot uint32  `json:"swap_slot"`
}

func (m *Monitor) coremap(w http.ResponseWriter, _ *http.Request) {
	s := m.target.SafeSnapshot()

	rsp := make([]frameRsp, 0, len(s.Coremap))
	for i, f := range s.Coremap {
		entry := frameRsp{Frame: i, SwapSlot: f.SwapSlot}
		if f.Owned {
			owner := uint32(f.Owner)
			entry.Owner = &owner
		}
		rsp = append(rsp, entry)
	}

	writeJSON(w, rsp)
}

type registersRsp struct {
	PC        uint32  `json:"pc"`
	Registers []int32 `json:"registers"`
}

func (m *Monitor) registers(w http.ResponseWriter, _ *http.Request) {
	s := m.target.SafeSnapshot()

	rsp := registersRsp{PC: s.PC}
	for _, r := range s.Registers {
		rsp.Registers = append(rsp.Registers, int32(r))
	}

	writeJSON(w, rsp)
}

// machineView is the snapshot of a machine in the shape served by the
// serializer.
type machineView struct {
	Policy       string
	PC           uint32
	Halted       bool
	Instructions uint64
	Cycle        uint64
	Registers    []int32
	Stats        vm.Stats
	Coremap      []vm.Frame
	PageTable    []vm.PageEntry
}

func newMachineView(s machine.Snapshot) *machineView {
	v := &machineView{
		Policy:       s.Policy,
		PC:           s.PC,
		Halted:       s.Halted,
		Instructions: s.Instructions,
		Cycle:        s.Cycle,
		Stats:        s.Stats,
		Coremap:      s.Coremap,
		PageTable:    s.PageTable,
	}

	for _, r := range s.Registers {
		v.Registers = append(v.Registers, int32(r))
	}

	return v
}

func (m *Monitor) machineDetails(w http.ResponseWriter, _ *http.Request) {
	view := newMachineView(m.target.SafeSnapshot())

	serializer := goseth.NewSerializer()
	serializer.SetRoot(view)
	serializer.SetMaxDepth(2)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

// fieldValue serializes one field of the machine. The path is a dot
// separated list of field names, for example "Stats".
func (m *Monitor) fieldValue(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]
	view := newMachineView(m.target.SafeSnapshot())

	serializer := goseth.NewSerializer()
	serializer.SetRoot(view)
	serializer.SetMaxDepth(1)

	err := serializer.SetEntryPoint(strings.Split(path, "."))
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	duration := time.Second
	if d, err := time.ParseDuration(r.URL.Query().Get("duration")); err == nil {
		duration = d
	}

	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	time.Sleep(duration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
