package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"github.com/sekai02/pagewrite/internal/emulator"
	"github.com/sekai02/pagewrite/internal/storage"
	"github.com/sekai02/pagewrite/internal/sys"
)

type Globals struct {
	Image     string `help:"Flash image file." short:"i" default:"flash.bin" type:"path"`
	PageSize  int    `help:"Page size in bytes." default:"512"`
	Pages     int    `help:"Page count, 0 derives it from the image size." default:"0"`
	BusyPolls int    `help:"Busy polls reported after each erase or page write." default:"0"`
	Verbose   bool   `help:"Log every page operation." short:"v"`
}

type CLI struct {
	Globals

	Info       InfoCmd       `cmd:"" help:"Show the image geometry and usage."`
	Dump       DumpCmd       `cmd:"" help:"Hex dump a region."`
	CRC        CRCCmd        `cmd:"" name:"crc" help:"CRC-16/XMODEM of a region and of each page in it."`
	WriteByte  WriteByteCmd  `cmd:"" help:"Replace a single byte."`
	WriteBlock WriteBlockCmd `cmd:"" help:"Write a file at any address."`
	Stream     StreamCmd     `cmd:"" help:"Stream a file byte by byte starting at a page boundary."`
	Erase      EraseCmd      `cmd:"" help:"Erase one page."`
}

type runContext struct {
	image  string
	em     *emulator.Emulator
	out    io.Writer
	styles styles
}

var (
	okLabel  = color.New(color.FgGreen, color.Bold).SprintFunc()
	errLabel = color.New(color.FgRed, color.Bold).SprintFunc()
)

func openImage(g Globals) (*storage.FileBackend, *emulator.Emulator, error) {
	level := slog.LevelWarn
	if g.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	backend, err := storage.OpenFileBackend(g.Image, sys.Geometry{PageSize: g.PageSize, PageCount: g.Pages})
	if err != nil {
		return nil, nil, err
	}
	backend.SetBusyPolls(g.BusyPolls)
	return backend, emulator.New(backend, logger), nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("nvmtool"),
		kong.Description("Offline byte and block writes on a page-programmed flash image."),
		kong.UsageOnError(),
	)

	backend, em, err := openImage(cli.Globals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errLabel("ERROR"), err)
		os.Exit(1)
	}

	err = ctx.Run(&runContext{image: cli.Image, em: em, out: os.Stdout, styles: newStyles()})
	if cli.Verbose {
		st := backend.Stats()
		fmt.Fprintf(os.Stderr, "%d erases, %d programs, %d reads, %d busy polls\n", st.Erases, st.Programs, st.Reads, st.BusyPolls)
	}
	if cerr := backend.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errLabel("ERROR"), err)
		os.Exit(1)
	}
}
