// Package storage provides the word-addressable backing stores of the
// simulator: the physical frames (RAM) and the swap slots (disk).
package storage

import (
	"errors"
	"fmt"
)

// WordSize is the number of bytes in a word.
const WordSize = 4

// ErrOutOfRange is returned when an address or page number falls outside of
// a storage.
var ErrOutOfRange = errors.New("storage: out of range")

// Storage is a fixed-capacity array of words organized into equally sized
// pages.
type Storage interface {
	// NumPages returns the number of pages the storage holds.
	NumPages() int

	// PageSize returns the number of words in a page.
	PageSize() int

	ReadWord(addr uint32) (uint32, error)
	WriteWord(addr uint32, data uint32) error

	// ReadPage copies page into dst, which must hold PageSize words.
	ReadPage(page int, dst []uint32) error

	// WritePage copies src, which must hold PageSize words, into page.
	WritePage(page int, src []uint32) error

	// ZeroPage fills page with zeros.
	ZeroPage(page int) error

	Close() error
}

func checkWord(addr uint32, numPages, pageSize int) error {
	if uint64(addr) >= uint64(numPages)*uint64(pageSize) {
		return fmt.Errorf("%w: word address %d", ErrOutOfRange, addr)
	}

	return nil
}

func checkPage(page, numPages, pageSize, bufLen int) error {
	if page < 0 || page >= numPages {
		return fmt.Errorf("%w: page %d", ErrOutOfRange, page)
	}

	if bufLen != pageSize {
		return fmt.Errorf("storage: buffer of %d words for a page of %d words",
			bufLen, pageSize)
	}

	return nil
}
