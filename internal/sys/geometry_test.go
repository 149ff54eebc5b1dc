package sys

import "testing"

func TestValidate(t *testing.T) {
	testCases := []struct {
		desc      string
		geo       Geometry
		wantError bool
	}{
		{desc: "Default geometry", geo: DefaultGeometry()},
		{desc: "Small page", geo: Geometry{PageSize: 2, PageCount: 1}},
		{desc: "Odd page size", geo: Geometry{PageSize: 1, PageCount: 4}, wantError: true},
		{desc: "Not a power of two", geo: Geometry{PageSize: 96, PageCount: 4}, wantError: true},
		{desc: "Zero pages", geo: Geometry{PageSize: 64, PageCount: 0}, wantError: true},
		{desc: "Largest page", geo: Geometry{PageSize: MaxPageSize, PageCount: 1}},
		{desc: "Page too large", geo: Geometry{PageSize: 1 << 30, PageCount: 1}, wantError: true},
		{desc: "Whole address space", geo: Geometry{PageSize: 64, PageCount: 1 << 26}},
		{desc: "Past the address space", geo: Geometry{PageSize: 64, PageCount: 1<<26 + 2}, wantError: true},
		{desc: "Page count overflows size", geo: Geometry{PageSize: MaxPageSize, PageCount: 1 << 62}, wantError: true},
	}

	for _, tc := range testCases {
		err := tc.geo.Validate()
		if (err != nil) != tc.wantError {
			t.Errorf("Test %q: failed = %t (%v), want %t", tc.desc, err != nil, err, tc.wantError)
		}
	}
}

func TestAddressHelpers(t *testing.T) {
	geo := Geometry{PageSize: 64, PageCount: 4}

	testCases := []struct {
		addr      uint32
		start     uint32
		offset    int
		index     int
		isAligned bool
	}{
		{addr: 0, start: 0, offset: 0, index: 0, isAligned: true},
		{addr: 10, start: 0, offset: 10, index: 0},
		{addr: 63, start: 0, offset: 63, index: 0},
		{addr: 64, start: 64, offset: 0, index: 1, isAligned: true},
		{addr: 0xC5, start: 0xC0, offset: 5, index: 3},
	}

	for _, tc := range testCases {
		if got := geo.PageStart(tc.addr); got != tc.start {
			t.Errorf("PageStart(0x%X) = 0x%X, want 0x%X", tc.addr, got, tc.start)
		}
		if got := geo.PageOffset(tc.addr); got != tc.offset {
			t.Errorf("PageOffset(0x%X) = %d, want %d", tc.addr, got, tc.offset)
		}
		if got := geo.PageIndex(tc.addr); got != tc.index {
			t.Errorf("PageIndex(0x%X) = %d, want %d", tc.addr, got, tc.index)
		}
		if got := geo.Aligned(tc.addr); got != tc.isAligned {
			t.Errorf("Aligned(0x%X) = %t, want %t", tc.addr, got, tc.isAligned)
		}
	}

	if !geo.Contains(0, 256) {
		t.Errorf("Contains(0, 256) = false, want true")
	}
	if geo.Contains(200, 57) {
		t.Errorf("Contains(200, 57) = true, want false")
	}
}
