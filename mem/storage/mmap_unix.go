//go:build linux || darwin

package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MMap is a Storage backed by a memory-mapped file. It lets the swap area of
// a simulated machine outlive the process for inspection.
type MMap struct {
	file     *os.File
	data     []byte
	pageSize int
	numPages int
}

// NewMMap maps path as a storage of numPages pages of pageSize words. The file
// is created if it does not exist and truncated to the exact size needed.
func NewMMap(path string, numPages, pageSize int) (*MMap, error) {
	if numPages <= 0 || pageSize <= 0 {
		return nil, errors.New("storage must have at least one page of at least one word")
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}

	size := numPages * pageSize * WordSize
	if err := file.Truncate(int64(size)); err != nil {
		file.Close()
		return nil, err
	}

	data, err := unix.Mmap(int(file.Fd()), 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	return &MMap{
		file:     file,
		data:     data,
		pageSize: pageSize,
		numPages: numPages,
	}, nil
}

// NumPages returns the number of pages.
func (m *MMap) NumPages() int {
	return m.numPages
}

// PageSize returns the number of words per page.
func (m *MMap) PageSize() int {
	return m.pageSize
}

func (m *MMap) mustBeOpen() error {
	if m.data == nil {
		return errors.New("storage closed")
	}

	return nil
}

// ReadWord returns the word at addr.
func (m *MMap) ReadWord(addr uint32) (uint32, error) {
	if err := m.mustBeOpen(); err != nil {
		return 0, err
	}

	if err := checkWord(addr, m.numPages, m.pageSize); err != nil {
		return 0, err
	}

	offset := int(addr) * WordSize

	return binary.LittleEndian.Uint32(m.data[offset:]), nil
}

// WriteWord stores data at addr.
func (m *MMap) WriteWord(addr uint32, data uint32) error {
	if err := m.mustBeOpen(); err != nil {
		return err
	}

	if err := checkWord(addr, m.numPages, m.pageSize); err != nil {
		return err
	}

	offset := int(addr) * WordSize
	binary.LittleEndian.PutUint32(m.data[offset:], data)

	return nil
}

// ReadPage copies a page into dst.
func (m *MMap) ReadPage(page int, dst []uint32) error {
	if err := m.mustBeOpen(); err != nil {
		return err
	}

	if err := checkPage(page, m.numPages, m.pageSize, len(dst)); err != nil {
		return err
	}

	offset := page * m.pageSize * WordSize
	for i := range dst {
		dst[i] = binary.LittleEndian.Uint32(m.data[offset+i*WordSize:])
	}

	return nil
}

// WritePage copies src into a page.
func (m *MMap) WritePage(page int, src []uint32) error {
	if err := m.mustBeOpen(); err != nil {
		return err
	}

	if err := checkPage(page, m.numPages, m.pageSize, len(src)); err != nil {
		return err
	}

	offset := page * m.pageSize * WordSize
	for i, w := range src {
		binary.LittleEndian.PutUint32(m.data[offset+i*WordSize:], w)
	}

	return nil
}

// ZeroPage clears a page.
func (m *MMap) ZeroPage(page int) error {
	if err := m.mustBeOpen(); err != nil {
		return err
	}

	if err := checkPage(page, m.numPages, m.pageSize, m.pageSize); err != nil {
		return err
	}

	start := page * m.pageSize * WordSize
	clear(m.data[start : start+m.pageSize*WordSize])

	return nil
}

// Sync flushes the mapped region to the file.
func (m *MMap) Sync() error {
	if err := m.mustBeOpen(); err != nil {
		return err
	}

	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return err
	}

	return m.file.Sync()
}

// Close flushes and unmaps the file.
func (m *MMap) Close() error {
	if m.data == nil {
		return nil
	}

	if err := m.Sync(); err != nil {
		return err
	}

	if err := unix.Munmap(m.data); err != nil {
		return err
	}
	m.data = nil

	return m.file.Close()
}
