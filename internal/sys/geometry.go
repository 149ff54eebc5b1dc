package sys

import "fmt"

const (
	// DefaultPageSize matches the program memory page of the AVR Dx parts.
	DefaultPageSize  = 512
	DefaultPageCount = 128

	WordSize   = 2
	ErasedByte = 0xFF

	MaxPageSize = 64 << 10
	// MaxSize is the span of a 32-bit address.
	MaxSize = 1 << 32
)

// Geometry describes the erase layout of an NVM device.
type Geometry struct {
	PageSize  int `json:"page_size"`
	PageCount int `json:"page_count"`
}

func DefaultGeometry() Geometry {
	return Geometry{PageSize: DefaultPageSize, PageCount: DefaultPageCount}
}

// Validate checks that the page size is an even power of two no larger than
// MaxPageSize and that the device holds at least one page without exceeding
// the 32-bit address space.
func (g Geometry) Validate() error {
	if g.PageSize < WordSize || g.PageSize > MaxPageSize || g.PageSize&(g.PageSize-1) != 0 {
		return fmt.Errorf("page size %d is not a power of two in [%d, %d]", g.PageSize, WordSize, MaxPageSize)
	}
	if g.PageCount < 1 {
		return fmt.Errorf("page count %d must be positive", g.PageCount)
	}
	if int64(g.PageCount) > MaxSize/int64(g.PageSize) {
		return fmt.Errorf("%s exceeds the 32-bit address space", g)
	}
	return nil
}

func (g Geometry) Size() int64 {
	return int64(g.PageSize) * int64(g.PageCount)
}

func (g Geometry) PageStart(addr uint32) uint32 {
	return addr &^ uint32(g.PageSize-1)
}

func (g Geometry) PageOffset(addr uint32) int {
	return int(addr % uint32(g.PageSize))
}

func (g Geometry) PageIndex(addr uint32) int {
	return int(addr / uint32(g.PageSize))
}

func (g Geometry) Aligned(addr uint32) bool {
	return addr%uint32(g.PageSize) == 0
}

// Contains reports whether [addr, addr+n) lies inside the device.
func (g Geometry) Contains(addr uint32, n int) bool {
	return n >= 0 && int64(addr)+int64(n) <= g.Size()
}

func (g Geometry) String() string {
	return fmt.Sprintf("%d pages of %d bytes", g.PageCount, g.PageSize)
}
