//go:build !linux && !darwin

package storage

import "errors"

// MMap is not available on this platform.
type MMap struct {
	*Memory
}

// NewMMap always fails on platforms without mmap support.
func NewMMap(path string, numPages, pageSize int) (*MMap, error) {
	return nil, errors.New("storage: mmap is not supported on this platform")
}

// Sync does nothing.
func (m *MMap) Sync() error {
	return nil
}
