// Package emulator implements byte and block writes on top of an NVM device
// that can only erase and program whole pages.
//
// Every write follows the same shape: assemble a complete image of the page
// in a caller-supplied buffer, then commit it with an erase followed by a
// program of the whole page. Operations block while the device reports busy
// and do no locking of their own; callers serialize access to a device.
package emulator

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/sekai02/pagewrite/internal/nvm"
	"github.com/sekai02/pagewrite/internal/sys"
)

type Emulator struct {
	backend nvm.Backend
	geo     sys.Geometry
	log     *slog.Logger
}

func New(backend nvm.Backend, logger *slog.Logger) *Emulator {
	if logger == nil {
		logger = slog.Default()
	}
	geo := backend.Geometry()
	return &Emulator{
		backend: backend,
		geo:     geo,
		log:     logger.With("component", "emulator", "page_size", geo.PageSize),
	}
}

func (e *Emulator) Geometry() sys.Geometry {
	return e.geo
}

func (e *Emulator) Backend() nvm.Backend {
	return e.backend
}

// NewPageBuffer allocates a scratch buffer large enough for one page.
func (e *Emulator) NewPageBuffer() []byte {
	return make([]byte, e.geo.PageSize)
}

// PutByte replaces the byte at addr, leaving the rest of its page intact.
func (e *Emulator) PutByte(addr nvm.Address, data byte, pageBuf []byte) error {
	if err := e.checkBuffer(pageBuf); err != nil {
		return err
	}
	if err := e.checkRange(addr, 1); err != nil {
		return err
	}

	start := nvm.Address(e.geo.PageStart(uint32(addr)))
	offset := e.geo.PageOffset(uint32(addr))

	for i := 0; i < e.geo.PageSize; i++ {
		if i == offset {
			pageBuf[i] = data
			continue
		}
		pageBuf[i] = e.backend.ByteAt(start + nvm.Address(i))
	}

	if err := e.commit(start, pageBuf); err != nil {
		return fmt.Errorf("write byte at 0x%X: %w", addr, err)
	}
	return nil
}

// WriteBlock writes data starting at addr, which may have any alignment.
// Bytes outside [addr, addr+len(data)) on the touched pages keep their
// previous content. The first failing page commit aborts the write; pages
// committed before it are not rolled back. An empty write touches nothing.
func (e *Emulator) WriteBlock(addr nvm.Address, data []byte, pageBuf []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := e.checkBuffer(pageBuf); err != nil {
		return err
	}
	if err := e.checkRange(addr, len(data)); err != nil {
		return err
	}

	pageSize := e.geo.PageSize
	page := nvm.Address(e.geo.PageStart(uint32(addr)))
	cursor := e.geo.PageOffset(uint32(addr))

	// keep whatever precedes the first written byte
	for i := 0; i < cursor; i++ {
		pageBuf[i] = e.backend.ByteAt(page + nvm.Address(i))
	}

	var err error
	for _, b := range data {
		pageBuf[cursor] = b
		cursor++
		if cursor == pageSize {
			if err = e.commit(page, pageBuf); err != nil {
				return fmt.Errorf("write block at 0x%X: %w", addr, err)
			}
			cursor = 0
			page += nvm.Address(pageSize)
		}
	}

	if cursor > 0 {
		for i := cursor; i < pageSize; i++ {
			pageBuf[i] = e.backend.ByteAt(page + nvm.Address(i))
		}
		if err = e.commit(page, pageBuf); err != nil {
			return fmt.Errorf("write block at 0x%X: %w", addr, err)
		}
	}

	return err
}

// CommitPage erases the page at addr and programs it from pageBuf. A
// misaligned addr is rejected before the device is touched.
func (e *Emulator) CommitPage(addr nvm.Address, pageBuf []byte) error {
	if !e.geo.Aligned(uint32(addr)) {
		return fmt.Errorf("commit page 0x%X: %w", addr, nvm.ErrMisaligned)
	}
	if err := e.checkBuffer(pageBuf); err != nil {
		return err
	}
	if err := e.checkRange(addr, e.geo.PageSize); err != nil {
		return err
	}
	return e.commit(addr, pageBuf)
}

// ErasePage erases a single page without programming it.
func (e *Emulator) ErasePage(addr nvm.Address) error {
	if !e.geo.Aligned(uint32(addr)) {
		return fmt.Errorf("erase page 0x%X: %w", addr, nvm.ErrMisaligned)
	}
	if err := e.checkRange(addr, e.geo.PageSize); err != nil {
		return err
	}

	e.waitReady()
	e.backend.SetCommand(nvm.CmdPageErase)
	e.backend.ErasePage(addr)
	e.backend.SetCommand(nvm.CmdNone)

	if e.backend.Fault() {
		e.log.Warn("Page erase failed", "page", addr)
		return fmt.Errorf("erase page 0x%X: %w", addr, nvm.ErrFault)
	}
	return nil
}

func (e *Emulator) ByteAt(addr nvm.Address) (byte, error) {
	if err := e.checkRange(addr, 1); err != nil {
		return 0, err
	}
	return e.backend.ByteAt(addr), nil
}

// ReadBlock fills buf with the device content starting at addr.
func (e *Emulator) ReadBlock(addr nvm.Address, buf []byte) error {
	if err := e.checkRange(addr, len(buf)); err != nil {
		return err
	}
	for i := range buf {
		buf[i] = e.backend.ByteAt(addr + nvm.Address(i))
	}
	return nil
}

// commit assumes page is aligned and pageBuf holds a complete page image.
func (e *Emulator) commit(page nvm.Address, pageBuf []byte) error {
	e.waitReady()
	e.backend.SetCommand(nvm.CmdPageErase)
	e.backend.ErasePage(page)
	e.waitReady()

	// the controller refuses to go from erase straight to write
	e.backend.SetCommand(nvm.CmdNone)
	e.backend.SetCommand(nvm.CmdPageWrite)

	for i := 0; i < e.geo.PageSize; i += sys.WordSize {
		e.backend.ProgramWord(page+nvm.Address(i), binary.LittleEndian.Uint16(pageBuf[i:]))
	}
	e.backend.SetCommand(nvm.CmdNone)

	if e.backend.Fault() {
		e.log.Warn("Page commit failed", "page", page)
		return fmt.Errorf("commit page 0x%X: %w", page, nvm.ErrFault)
	}

	e.log.Debug("Page committed", "page", page)
	return nil
}

func (e *Emulator) waitReady() {
	for e.backend.IsBusy() {
	}
}

func (e *Emulator) checkBuffer(pageBuf []byte) error {
	if len(pageBuf) < e.geo.PageSize {
		return fmt.Errorf("%w: got %d bytes, want %d", nvm.ErrBufferSize, len(pageBuf), e.geo.PageSize)
	}
	return nil
}

func (e *Emulator) checkRange(addr nvm.Address, n int) error {
	if !e.geo.Contains(uint32(addr), n) {
		return fmt.Errorf("%w: [0x%X, 0x%X) exceeds 0x%X", nvm.ErrOutOfRange, addr, int64(addr)+int64(n), e.geo.Size())
	}
	return nil
}
