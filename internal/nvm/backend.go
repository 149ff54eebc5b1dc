package nvm

import (
	"errors"
	"fmt"

	"github.com/sekai02/pagewrite/internal/sys"
)

// Address is a byte offset into the NVM address space.
type Address uint32

// Command is the operation the NVM controller currently accepts.
type Command uint8

const (
	CmdNone Command = iota
	CmdPageErase
	CmdPageWrite
)

func (c Command) String() string {
	switch c {
	case CmdNone:
		return "NOCMD"
	case CmdPageErase:
		return "PAGE_ERASE"
	case CmdPageWrite:
		return "PAGE_WRITE"
	}
	return fmt.Sprintf("CMD(%d)", uint8(c))
}

var (
	ErrMisaligned = errors.New("address is not page aligned")
	ErrFault      = errors.New("device reported a fault")
	ErrBufferSize = errors.New("page buffer smaller than a page")
	ErrOutOfRange = errors.New("address range outside the device")
)

// Backend is the raw NVM controller. A change from one non-idle command to
// another must pass through CmdNone.
type Backend interface {
	Geometry() sys.Geometry
	// ErasePage erases the page starting at addr. Requires CmdPageErase.
	ErasePage(addr Address)
	// ProgramWord writes a little-endian word at the even address addr.
	// Requires CmdPageWrite and a page that was erased beforehand.
	ProgramWord(addr Address, word uint16)
	ByteAt(addr Address) byte
	SetCommand(cmd Command)
	IsBusy() bool
	// Fault reports whether the most recent erase or program failed.
	Fault() bool
}
