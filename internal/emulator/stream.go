package emulator

import (
	"fmt"

	"github.com/sekai02/pagewrite/internal/nvm"
	"github.com/sekai02/pagewrite/internal/sys"
)

type StreamState uint8

const (
	AwaitingPageStart StreamState = iota
	WithinPage
)

func (s StreamState) String() string {
	switch s {
	case AwaitingPageStart:
		return "awaiting-page-start"
	case WithinPage:
		return "within-page"
	}
	return fmt.Sprintf("StreamState(%d)", uint8(s))
}

// Stream writes one byte per call straight to the device, for callers that
// cannot spare a page buffer. Each page is erased when the stream reaches its
// first byte, so a stream must start on a page boundary.
//
// A Stream is not safe for concurrent use and only one stream per device may
// be open at a time, since the program command stays open between calls.
type Stream struct {
	em    *Emulator
	state StreamState
	page  nvm.Address
}

func (e *Emulator) NewStream() *Stream {
	return &Stream{em: e}
}

func (s *Stream) State() StreamState {
	return s.state
}

// Page returns the page currently being programmed. Only meaningful while
// the stream is WithinPage.
func (s *Stream) Page() nvm.Address {
	return s.page
}

// Write programs data at addr. Setting finalize closes the program command
// and returns the stream to AwaitingPageStart.
//
// A misaligned first address or an address outside the open page fails with
// ErrMisaligned and leaves the stream as it was. A device fault closes the
// command and resets the stream; writing resumes from a page boundary.
func (s *Stream) Write(addr nvm.Address, data byte, finalize bool) error {
	geo := s.em.geo
	if err := s.em.checkRange(addr, 1); err != nil {
		return err
	}

	if s.state == AwaitingPageStart {
		if !geo.Aligned(uint32(addr)) {
			return fmt.Errorf("stream start 0x%X: %w", addr, nvm.ErrMisaligned)
		}
		s.state = WithinPage
	} else if !geo.Aligned(uint32(addr)) && nvm.Address(geo.PageStart(uint32(addr))) != s.page {
		return fmt.Errorf("stream write 0x%X outside page 0x%X: %w", addr, s.page, nvm.ErrMisaligned)
	}

	backend := s.em.backend
	if geo.Aligned(uint32(addr)) {
		s.openPage(addr)
	}

	// the neighbour byte stays erased so it can still be programmed later
	var word uint16
	if addr%sys.WordSize != 0 {
		word = uint16(data)<<8 | sys.ErasedByte
	} else {
		word = sys.ErasedByte<<8 | uint16(data)
	}
	backend.ProgramWord(addr&^(sys.WordSize-1), word)

	page := s.page
	if finalize {
		s.Reset()
	}

	if backend.Fault() {
		s.em.log.Warn("Stream write failed", "addr", addr, "page", page)
		s.Reset()
		return fmt.Errorf("stream write 0x%X on page 0x%X: %w", addr, page, nvm.ErrFault)
	}
	return nil
}

// Reset closes any open program command and returns to AwaitingPageStart.
func (s *Stream) Reset() {
	if s.state == WithinPage {
		s.em.backend.SetCommand(nvm.CmdNone)
	}
	s.state = AwaitingPageStart
	s.page = 0
}

func (s *Stream) openPage(page nvm.Address) {
	backend := s.em.backend

	s.em.waitReady()
	backend.SetCommand(nvm.CmdNone)
	backend.SetCommand(nvm.CmdPageErase)
	backend.ErasePage(page)
	s.em.waitReady()
	backend.SetCommand(nvm.CmdNone)
	backend.SetCommand(nvm.CmdPageWrite)

	s.page = page
	s.em.log.Debug("Stream opened page", "page", page)
}
