package vm

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"
)

// tlb caches the frame of recently translated pages. A nil tlb is valid and
// never hits.
type tlb struct {
	entries *freelru.LRU[VPN, uint32]
}

func hashVPN(vpn VPN) uint32 {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(vpn))

	return uint32(xxhash.Sum64(b[:]))
}

func newTLB(numEntries int) (*tlb, error) {
	if numEntries == 0 {
		return nil, nil
	}

	entries, err := freelru.New[VPN, uint32](uint32(numEntries), hashVPN)
	if err != nil {
		return nil, err
	}

	return &tlb{entries: entries}, nil
}

func (t *tlb) lookup(vpn VPN) (frame uint32, hit bool) {
	if t == nil {
		return 0, false
	}

	return t.entries.Get(vpn)
}

func (t *tlb) insert(vpn VPN, frame uint32) {
	if t == nil {
		return
	}

	t.entries.Add(vpn, frame)
}

func (t *tlb) invalidate(vpn VPN) {
	if t == nil {
		return
	}

	t.entries.Remove(vpn)
}

func (t *tlb) len() int {
	if t == nil {
		return 0
	}

	return t.entries.Len()
}
