package main

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sekai02/pagewrite/internal/checksum"
	"github.com/sekai02/pagewrite/internal/nvm"
	"github.com/sekai02/pagewrite/internal/sys"
)

const dumpWidth = 16

// parseAddr accepts decimal, 0x hex and 0 octal addresses.
func parseAddr(s string) (nvm.Address, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return nvm.Address(v), nil
}

// region resolves addr and length against the image; a zero length runs to
// the end of the image.
func region(rc *runContext, addrStr string, length int64) (nvm.Address, []byte, error) {
	addr, err := parseAddr(addrStr)
	if err != nil {
		return 0, nil, err
	}
	size := rc.em.Geometry().Size()
	if int64(addr) >= size {
		return 0, nil, fmt.Errorf("address 0x%X: %w", addr, nvm.ErrOutOfRange)
	}
	if length <= 0 || int64(addr)+length > size {
		length = size - int64(addr)
	}

	buf := make([]byte, length)
	if err := rc.em.ReadBlock(addr, buf); err != nil {
		return 0, nil, err
	}
	return addr, buf, nil
}

type InfoCmd struct{}

func (c *InfoCmd) Run(rc *runContext) error {
	geo := rc.em.Geometry()
	_, data, err := region(rc, "0", 0)
	if err != nil {
		return err
	}

	erased := 0
	blank := bytes.Repeat([]byte{sys.ErasedByte}, geo.PageSize)
	for start := 0; start < len(data); start += geo.PageSize {
		if bytes.Equal(data[start:start+geo.PageSize], blank) {
			erased++
		}
	}

	s := rc.styles
	fmt.Fprintf(rc.out, "%s %s\n", s.label.Render("Image:   "), rc.image)
	fmt.Fprintf(rc.out, "%s %s (%d bytes)\n", s.label.Render("Geometry:"), geo, geo.Size())
	fmt.Fprintf(rc.out, "%s %d of %d\n", s.label.Render("Erased:  "), erased, geo.PageCount)
	fmt.Fprintf(rc.out, "%s 0x%04X\n", s.label.Render("CRC16:   "), checksum.CRC16(data))
	return nil
}

type DumpCmd struct {
	Addr   string `arg:"" optional:"" default:"0" help:"Start address."`
	Length int64  `short:"n" help:"Number of bytes, 0 dumps to the end." default:"256"`
}

func (c *DumpCmd) Run(rc *runContext) error {
	addr, data, err := region(rc, c.Addr, c.Length)
	if err != nil {
		return err
	}

	geo := rc.em.Geometry()
	s := rc.styles
	for i := 0; i < len(data); i += dumpWidth {
		lineAddr := uint32(addr) + uint32(i)
		if i == 0 || geo.Aligned(lineAddr) {
			fmt.Fprintln(rc.out, s.page.Render(fmt.Sprintf(" page %d ", geo.PageIndex(lineAddr))))
		}

		line := data[i:min(i+dumpWidth, len(data))]
		var sb strings.Builder
		sb.WriteString(s.addr.Render(fmt.Sprintf("%08X", lineAddr)))
		sb.WriteString(" ")
		for _, b := range line {
			cell := fmt.Sprintf(" %02X", b)
			if b == sys.ErasedByte {
				sb.WriteString(s.erased.Render(cell))
			} else {
				sb.WriteString(s.data.Render(cell))
			}
		}
		sb.WriteString(strings.Repeat("   ", dumpWidth-len(line)))
		sb.WriteString("  ")
		sb.WriteString(s.ascii.Render(printable(line)))
		fmt.Fprintln(rc.out, sb.String())
	}
	return nil
}

func printable(line []byte) string {
	out := make([]byte, len(line))
	for i, b := range line {
		if b < 0x20 || b > 0x7E {
			b = '.'
		}
		out[i] = b
	}
	return string(out)
}

type CRCCmd struct {
	Addr    string `arg:"" optional:"" default:"0" help:"Start address."`
	Length  int64  `short:"n" help:"Number of bytes, 0 runs to the end." default:"0"`
	PerPage bool   `help:"Also print one checksum per page."`
}

func (c *CRCCmd) Run(rc *runContext) error {
	addr, data, err := region(rc, c.Addr, c.Length)
	if err != nil {
		return err
	}

	fmt.Fprintf(rc.out, "0x%04X\n", checksum.CRC16(data))
	if c.PerPage {
		for _, sum := range checksum.Pages(uint32(addr), data, rc.em.Geometry().PageSize) {
			fmt.Fprintf(rc.out, "%08X 0x%04X\n", sum.Addr, sum.CRC)
		}
	}
	return nil
}

type WriteByteCmd struct {
	Addr  string `arg:"" help:"Address of the byte."`
	Value uint8  `arg:"" help:"New value."`
}

func (c *WriteByteCmd) Run(rc *runContext) error {
	addr, err := parseAddr(c.Addr)
	if err != nil {
		return err
	}
	if err := rc.em.PutByte(addr, c.Value, rc.em.NewPageBuffer()); err != nil {
		return err
	}
	fmt.Fprintf(rc.out, "%s wrote 0x%02X at 0x%X\n", okLabel("OK"), c.Value, addr)
	return nil
}

type WriteBlockCmd struct {
	Addr string `arg:"" help:"Start address, any alignment."`
	File string `arg:"" type:"existingfile" help:"File to write."`
}

func (c *WriteBlockCmd) Run(rc *runContext) error {
	addr, err := parseAddr(c.Addr)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	if err := rc.em.WriteBlock(addr, data, rc.em.NewPageBuffer()); err != nil {
		return err
	}
	fmt.Fprintf(rc.out, "%s wrote %d bytes at 0x%X\n", okLabel("OK"), len(data), addr)
	return nil
}

type StreamCmd struct {
	Addr string `arg:"" help:"Page aligned start address."`
	File string `arg:"" type:"existingfile" help:"File to stream."`
}

func (c *StreamCmd) Run(rc *runContext) error {
	addr, err := parseAddr(c.Addr)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}

	stream := rc.em.NewStream()
	defer stream.Reset()
	for i, b := range data {
		if err := stream.Write(addr+nvm.Address(i), b, i == len(data)-1); err != nil {
			return fmt.Errorf("after %d bytes: %w", i, err)
		}
	}
	fmt.Fprintf(rc.out, "%s streamed %d bytes at 0x%X\n", okLabel("OK"), len(data), addr)
	return nil
}

type EraseCmd struct {
	Addr string `arg:"" help:"Page aligned address."`
}

func (c *EraseCmd) Run(rc *runContext) error {
	addr, err := parseAddr(c.Addr)
	if err != nil {
		return err
	}
	if err := rc.em.ErasePage(addr); err != nil {
		return err
	}
	fmt.Fprintf(rc.out, "%s erased page 0x%X\n", okLabel("OK"), addr)
	return nil
}
