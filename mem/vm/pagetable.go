package vm

// A Page is an entry in the page table. It holds the state of one virtual
// page.
type Page struct {
	Resident   bool // Occupies a physical frame.
	OnDisk     bool // Has a swap slot.
	Dirty      bool // Written since last synchronized to swap.
	Referenced bool // Accessed since the bit was last cleared.
	ReadOnly   bool // Advisory, never enforced.

	// Location is the frame index if the page is resident, or the swap slot
	// if it is only on disk.
	Location uint32
}

// Touched reports whether the page has ever been given a frame or a slot.
func (p Page) Touched() bool {
	return p.Resident || p.OnDisk || p.Location != 0
}

// A PageTable holds one entry per virtual page, indexed by page number.
type PageTable struct {
	entries []Page
}

// NewPageTable creates a page table with every page absent.
func NewPageTable(numPages int) *PageTable {
	return &PageTable{entries: make([]Page, numPages)}
}

// Len returns the number of virtual pages.
func (pt *PageTable) Len() int {
	return len(pt.entries)
}

// Get returns a pointer to the entry of a page so that it can be updated in
// place. The pointer must not be kept across calls that may reshape the
// table.
func (pt *PageTable) Get(vpn VPN) *Page {
	return &pt.entries[vpn]
}

// Find returns a copy of the entry of a page. The bool tells if vpn is inside
// the table.
func (pt *PageTable) Find(vpn VPN) (Page, bool) {
	if int(vpn) >= len(pt.entries) {
		return Page{}, false
	}

	return pt.entries[vpn], true
}

// NumResident counts the pages that are currently in a frame.
func (pt *PageTable) NumResident() int {
	n := 0
	for _, p := range pt.entries {
		if p.Resident {
			n++
		}
	}

	return n
}

// PageEntry pairs a page table entry with its page number.
type PageEntry struct {
	VPN VPN
	Page
}

// Touched returns a copy of every entry that has ever been given a frame or a
// slot, in page number order.
func (pt *PageTable) Touched() []PageEntry {
	var list []PageEntry
	for i, p := range pt.entries {
		if p.Touched() {
			list = append(list, PageEntry{VPN: VPN(i), Page: p})
		}
	}

	return list
}
