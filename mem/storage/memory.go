package storage

// Memory is a Storage that keeps all the words in process memory.
type Memory struct {
	pageSize int
	numPages int
	words    []uint32
}

// NewMemory creates a zeroed in-memory storage.
func NewMemory(numPages, pageSize int) *Memory {
	if numPages <= 0 || pageSize <= 0 {
		panic("storage must have at least one page of at least one word")
	}

	return &Memory{
		pageSize: pageSize,
		numPages: numPages,
		words:    make([]uint32, numPages*pageSize),
	}
}

// NumPages returns the number of pages.
func (m *Memory) NumPages() int {
	return m.numPages
}

// PageSize returns the number of words per page.
func (m *Memory) PageSize() int {
	return m.pageSize
}

// ReadWord returns the word at addr.
func (m *Memory) ReadWord(addr uint32) (uint32, error) {
	if err := checkWord(addr, m.numPages, m.pageSize); err != nil {
		return 0, err
	}

	return m.words[addr], nil
}

// WriteWord stores data at addr.
func (m *Memory) WriteWord(addr uint32, data uint32) error {
	if err := checkWord(addr, m.numPages, m.pageSize); err != nil {
		return err
	}

	m.words[addr] = data

	return nil
}

// ReadPage copies a page into dst.
func (m *Memory) ReadPage(page int, dst []uint32) error {
	if err := checkPage(page, m.numPages, m.pageSize, len(dst)); err != nil {
		return err
	}

	copy(dst, m.words[page*m.pageSize:(page+1)*m.pageSize])

	return nil
}

// WritePage copies src into a page.
func (m *Memory) WritePage(page int, src []uint32) error {
	if err := checkPage(page, m.numPages, m.pageSize, len(src)); err != nil {
		return err
	}

	copy(m.words[page*m.pageSize:(page+1)*m.pageSize], src)

	return nil
}

// ZeroPage clears a page.
func (m *Memory) ZeroPage(page int) error {
	if err := checkPage(page, m.numPages, m.pageSize, m.pageSize); err != nil {
		return err
	}

	clear(m.words[page*m.pageSize : (page+1)*m.pageSize])

	return nil
}

// Close does nothing for an in-memory storage.
func (m *Memory) Close() error {
	return nil
}
