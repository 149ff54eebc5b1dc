package storage

import (
	"fmt"

	"github.com/sekai02/pagewrite/internal/nvm"
	"github.com/sekai02/pagewrite/internal/sys"
)

// MemBackend is an in-memory NVM device. It starts fully erased.
type MemBackend struct {
	*controller
	data []byte
}

func NewMemBackend(geo sys.Geometry) (*MemBackend, error) {
	if err := geo.Validate(); err != nil {
		return nil, fmt.Errorf("invalid geometry: %w", err)
	}

	b := &MemBackend{data: make([]byte, geo.Size())}
	for i := range b.data {
		b.data[i] = sys.ErasedByte
	}
	b.controller = newController(geo, b)
	return b, nil
}

// Load copies image into the cells at addr without going through the
// controller, the way a programmer would preload a part.
func (b *MemBackend) Load(addr nvm.Address, image []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.geo.Contains(uint32(addr), len(image)) {
		return fmt.Errorf("image [0x%X, 0x%X) out of bounds (size 0x%X)", addr, int64(addr)+int64(len(image)), b.geo.Size())
	}
	copy(b.data[addr:], image)
	return nil
}

// Snapshot returns a copy of the whole cell array.
func (b *MemBackend) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]byte, len(b.data))
	copy(result, b.data)
	return result
}

func (b *MemBackend) readByte(addr nvm.Address) byte {
	return b.data[addr]
}

func (b *MemBackend) erase(page nvm.Address) {
	for i := 0; i < b.geo.PageSize; i++ {
		b.data[int(page)+i] = sys.ErasedByte
	}
}

func (b *MemBackend) program(addr nvm.Address, lo, hi byte) {
	b.data[addr] &= lo
	b.data[addr+1] &= hi
}

func (b *MemBackend) flush() error {
	return nil
}
