package emulator

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/sekai02/pagewrite/internal/nvm"
	"github.com/sekai02/pagewrite/internal/storage"
	"github.com/sekai02/pagewrite/internal/sys"
)

var testGeometry = sys.Geometry{PageSize: 64, PageCount: 8}

// newTestEmulator returns an emulator over a memory device preloaded with a
// recognisable pattern, and the pattern itself as the reference model.
func newTestEmulator(t *testing.T, geo sys.Geometry) (*Emulator, *storage.MemBackend, []byte) {
	t.Helper()

	mem, err := storage.NewMemBackend(geo)
	if err != nil {
		t.Fatalf("Cannot create memory backend: %v", err)
	}
	model := make([]byte, geo.Size())
	for i := range model {
		model[i] = byte(i*7 + 3)
	}
	if err := mem.Load(0, model); err != nil {
		t.Fatalf("Cannot preload memory backend: %v", err)
	}

	return New(mem, slog.New(slog.NewTextHandler(io.Discard, nil))), mem, model
}

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(0xA0 ^ i)
	}
	return data
}

func TestWriteByte(t *testing.T) {
	em, mem, model := newTestEmulator(t, testGeometry)

	if err := em.PutByte(0x47, 0xAB, em.NewPageBuffer()); err != nil {
		t.Fatalf("Cannot PutByte(): %v", err)
	}

	model[0x47] = 0xAB
	if got := mem.Snapshot(); !bytes.Equal(got, model) {
		t.Fatalf("Device differs from reference after a single byte write")
	}
	if got := mem.EraseLog(); !reflect.DeepEqual(got, []nvm.Address{0x40}) {
		t.Errorf("EraseLog() = %v, want [0x40]", got)
	}

	b, err := em.ByteAt(0x47)
	if err != nil || b != 0xAB {
		t.Errorf("ByteAt(0x47) = 0x%X, %v; want 0xAB", b, err)
	}
}

func TestWriteBlock(t *testing.T) {
	ps := testGeometry.PageSize

	testCases := []struct {
		desc      string
		addr      nvm.Address
		n         int
		wantPages []nvm.Address
	}{
		{desc: "Single byte at page start", addr: 0x40, n: 1, wantPages: []nvm.Address{0x40}},
		{desc: "Middle of a page", addr: 0x45, n: 20, wantPages: []nvm.Address{0x40}},
		{desc: "Exactly one page", addr: 0x80, n: ps, wantPages: []nvm.Address{0x80}},
		{desc: "Ends on page boundary", addr: 0x50, n: 48, wantPages: []nvm.Address{0x40}},
		{desc: "Crosses one boundary", addr: 0x3F, n: 2, wantPages: []nvm.Address{0x00, 0x40}},
		{desc: "Two full pages", addr: 0x00, n: 2 * ps, wantPages: []nvm.Address{0x00, 0x40}},
		{desc: "Three pages unaligned", addr: 0x41, n: 2*ps + 1, wantPages: []nvm.Address{0x40, 0x80, 0xC0}},
		{desc: "Three pages, last byte of device", addr: 0x141, n: 3*ps - 1, wantPages: []nvm.Address{0x140, 0x180, 0x1C0}},
	}

	for _, tc := range testCases {
		em, mem, model := newTestEmulator(t, testGeometry)
		data := testData(tc.n)

		if err := em.WriteBlock(tc.addr, data, em.NewPageBuffer()); err != nil {
			t.Fatalf("Test %q: WriteBlock() failed: %v", tc.desc, err)
		}

		copy(model[tc.addr:], data)
		if got := mem.Snapshot(); !bytes.Equal(got, model) {
			t.Errorf("Test %q: device differs from reference model", tc.desc)
		}
		if got := mem.EraseLog(); !reflect.DeepEqual(got, tc.wantPages) {
			t.Errorf("Test %q: committed pages %v, want %v", tc.desc, got, tc.wantPages)
		}

		readBack := make([]byte, tc.n)
		if err := em.ReadBlock(tc.addr, readBack); err != nil {
			t.Fatalf("Test %q: ReadBlock() failed: %v", tc.desc, err)
		}
		if !bytes.Equal(readBack, data) {
			t.Errorf("Test %q: read back %X, want %X", tc.desc, readBack, data)
		}
	}
}

func TestWriteBlockBoundaryScenario(t *testing.T) {
	em, mem, model := newTestEmulator(t, testGeometry)
	data := testData(130)

	if err := em.WriteBlock(10, data, em.NewPageBuffer()); err != nil {
		t.Fatalf("Cannot WriteBlock(): %v", err)
	}

	if got, want := mem.EraseLog(), []nvm.Address{0x00, 0x40, 0x80}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Committed pages %v, want %v", got, want)
	}

	got := mem.Snapshot()
	// prefix page: 10 previous bytes then 54 new ones
	if !bytes.Equal(got[:10], model[:10]) || !bytes.Equal(got[10:64], data[:54]) {
		t.Errorf("First page composition is wrong")
	}
	if !bytes.Equal(got[64:128], data[54:118]) {
		t.Errorf("Middle page composition is wrong")
	}
	// suffix page: 12 new bytes then 52 previous ones
	if !bytes.Equal(got[128:140], data[118:]) || !bytes.Equal(got[140:192], model[140:192]) {
		t.Errorf("Last page composition is wrong")
	}
	if !bytes.Equal(got[192:], model[192:]) {
		t.Errorf("Pages after the range were modified")
	}
}

func TestWriteBlockEmpty(t *testing.T) {
	em, mem, _ := newTestEmulator(t, testGeometry)
	mem.ResetStats()

	if err := em.WriteBlock(10, nil, nil); err != nil {
		t.Fatalf("Empty WriteBlock() = %v, want nil", err)
	}
	if calls := mem.Stats().Calls(); calls != 0 {
		t.Errorf("Empty WriteBlock() made %d backend calls", calls)
	}
}

func TestCommitPageMisaligned(t *testing.T) {
	em, mem, _ := newTestEmulator(t, testGeometry)
	mem.ResetStats()

	for _, addr := range []nvm.Address{1, 10, 0x41, 0x7F} {
		err := em.CommitPage(addr, em.NewPageBuffer())
		if !errors.Is(err, nvm.ErrMisaligned) {
			t.Errorf("CommitPage(0x%X) = %v, want ErrMisaligned", addr, err)
		}
	}
	if calls := mem.Stats().Calls(); calls != 0 {
		t.Errorf("Misaligned CommitPage() made %d backend calls", calls)
	}
}

func TestCommitPage(t *testing.T) {
	em, mem, model := newTestEmulator(t, testGeometry)
	mem.SetBusyPolls(4)

	buf := testData(testGeometry.PageSize)
	if err := em.CommitPage(0x80, buf); err != nil {
		t.Fatalf("Cannot CommitPage(): %v", err)
	}

	copy(model[0x80:], buf)
	if !bytes.Equal(mem.Snapshot(), model) {
		t.Errorf("Device differs from reference model")
	}
	if mem.Stats().BusyPolls < 5 {
		t.Errorf("Busy period was not waited out: %+v", mem.Stats())
	}
}

func TestPreconditions(t *testing.T) {
	em, _, _ := newTestEmulator(t, testGeometry)
	size := nvm.Address(testGeometry.Size())

	testCases := []struct {
		desc string
		err  error
		want error
	}{
		{desc: "Short buffer for byte write", err: em.PutByte(0, 1, make([]byte, 8)), want: nvm.ErrBufferSize},
		{desc: "Short buffer for block write", err: em.WriteBlock(0, []byte{1}, make([]byte, 63)), want: nvm.ErrBufferSize},
		{desc: "Byte past the end", err: em.PutByte(size, 1, em.NewPageBuffer()), want: nvm.ErrOutOfRange},
		{desc: "Block past the end", err: em.WriteBlock(size-2, []byte{1, 2, 3}, em.NewPageBuffer()), want: nvm.ErrOutOfRange},
		{desc: "Commit past the end", err: em.CommitPage(size, em.NewPageBuffer()), want: nvm.ErrOutOfRange},
		{desc: "Read past the end", err: em.ReadBlock(size-1, make([]byte, 2)), want: nvm.ErrOutOfRange},
		{desc: "Misaligned erase", err: em.ErasePage(3), want: nvm.ErrMisaligned},
	}

	for _, tc := range testCases {
		if !errors.Is(tc.err, tc.want) {
			t.Errorf("Test %q: got %v, want %v", tc.desc, tc.err, tc.want)
		}
	}
}

func TestFaultPropagation(t *testing.T) {
	t.Run("byte write", func(t *testing.T) {
		em, mem, _ := newTestEmulator(t, testGeometry)
		mem.InjectFault(0x40)

		err := em.PutByte(0x41, 0, em.NewPageBuffer())
		if !errors.Is(err, nvm.ErrFault) {
			t.Fatalf("PutByte() = %v, want ErrFault", err)
		}
	})

	t.Run("block write stops at the failing page", func(t *testing.T) {
		em, mem, model := newTestEmulator(t, testGeometry)
		mem.InjectFault(0x40)
		data := testData(130)

		err := em.WriteBlock(10, data, em.NewPageBuffer())
		if !errors.Is(err, nvm.ErrFault) {
			t.Fatalf("WriteBlock() = %v, want ErrFault", err)
		}

		if got := mem.EraseLog(); !reflect.DeepEqual(got, []nvm.Address{0x00}) {
			t.Errorf("Committed pages %v, want only [0x00]", got)
		}

		got := mem.Snapshot()
		if !bytes.Equal(got[10:64], data[:54]) {
			t.Errorf("Page committed before the fault was not kept")
		}
		if !bytes.Equal(got[64:], model[64:]) {
			t.Errorf("Pages at or after the failing page were modified")
		}
	})

	t.Run("recovers once the fault is gone", func(t *testing.T) {
		em, mem, _ := newTestEmulator(t, testGeometry)
		mem.InjectFault(0)
		if err := em.PutByte(1, 1, em.NewPageBuffer()); err == nil {
			t.Fatalf("Expected the first write to fail")
		}
		mem.ClearFaults()
		if err := em.PutByte(1, 1, em.NewPageBuffer()); err != nil {
			t.Fatalf("Write after ClearFaults() failed: %v", err)
		}
	})
}

func TestErasePage(t *testing.T) {
	em, mem, model := newTestEmulator(t, testGeometry)

	if err := em.ErasePage(0x40); err != nil {
		t.Fatalf("Cannot ErasePage(): %v", err)
	}
	for i := 0x40; i < 0x80; i++ {
		model[i] = sys.ErasedByte
	}
	if !bytes.Equal(mem.Snapshot(), model) {
		t.Errorf("Device differs from reference model after erase")
	}

	mem.InjectFault(0x80)
	if err := em.ErasePage(0x80); !errors.Is(err, nvm.ErrFault) {
		t.Errorf("ErasePage() on faulty page = %v, want ErrFault", err)
	}
}
