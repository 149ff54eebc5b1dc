package storage

import (
	"fmt"
	"os"

	"github.com/sekai02/pagewrite/internal/nvm"
	"github.com/sekai02/pagewrite/internal/sys"
)

// FileBackend is an NVM device backed by a flash image on disk.
type FileBackend struct {
	*controller
	file     *os.File
	fileName string
	ioErr    error
}

// OpenFileBackend opens or creates the image at path. A missing image, or
// one shorter than the geometry, is padded with erased pages. A zero
// PageCount is derived from the size of an existing image.
func OpenFileBackend(path string, geo sys.Geometry) (*FileBackend, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}

	fileStat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if geo.PageCount == 0 && geo.PageSize > 0 {
		geo.PageCount = int(fileStat.Size() / int64(geo.PageSize))
	}
	if err := geo.Validate(); err != nil {
		f.Close()
		return nil, fmt.Errorf("invalid geometry for %q: %w", path, err)
	}

	if fileStat.Size() < geo.Size() {
		if err := padErased(f, fileStat.Size(), geo.Size()); err != nil {
			f.Close()
			return nil, fmt.Errorf("cannot extend %q: %v", path, err)
		}
	}

	b := &FileBackend{file: f, fileName: path}
	b.controller = newController(geo, b)
	return b, nil
}

func (b *FileBackend) Name() string {
	return fmt.Sprintf("Flash image file %q", b.fileName)
}

func (b *FileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file == nil {
		return fmt.Errorf("already closed")
	}
	if err := b.file.Sync(); err != nil {
		b.file.Close()
		return err
	}
	err := b.file.Close()
	b.file = nil
	return err
}

func (b *FileBackend) readByte(addr nvm.Address) byte {
	buf := []byte{sys.ErasedByte}
	if _, err := b.file.ReadAt(buf, int64(addr)); err != nil {
		b.setErr(fmt.Errorf("cannot read 0x%x: %v", addr, err))
		return sys.ErasedByte
	}
	return buf[0]
}

func (b *FileBackend) erase(page nvm.Address) {
	if _, err := b.file.WriteAt(erasedPage(b.geo.PageSize), int64(page)); err != nil {
		b.setErr(fmt.Errorf("cannot erase page 0x%x: %v", page, err))
	}
}

func (b *FileBackend) program(addr nvm.Address, lo, hi byte) {
	buf := make([]byte, sys.WordSize)
	if _, err := b.file.ReadAt(buf, int64(addr)); err != nil {
		b.setErr(fmt.Errorf("cannot read 0x%x: %v", addr, err))
		return
	}
	buf[0] &= lo
	buf[1] &= hi
	if _, err := b.file.WriteAt(buf, int64(addr)); err != nil {
		b.setErr(fmt.Errorf("cannot program 0x%x: %v", addr, err))
	}
}

// flush reports the first I/O error seen since the last flush.
func (b *FileBackend) flush() error {
	err := b.ioErr
	b.ioErr = nil
	return err
}

func (b *FileBackend) setErr(err error) {
	if b.ioErr == nil {
		b.ioErr = err
	}
}

func padErased(f *os.File, from, to int64) error {
	buf := make([]byte, to-from)
	for i := range buf {
		buf[i] = sys.ErasedByte
	}
	n, err := f.WriteAt(buf, from)
	if err != nil {
		return err
	}
	if int64(n) < to-from {
		return fmt.Errorf("got %d bytes, want %d", n, to-from)
	}
	return nil
}
