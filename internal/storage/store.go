package storage

import (
	"log/slog"
	"sync"

	"github.com/sekai02/pagewrite/internal/index"
	"github.com/sekai02/pagewrite/internal/nvm"
	"github.com/sekai02/pagewrite/internal/sys"
)

// medium is the raw cell array behind a simulated controller.
type medium interface {
	readByte(addr nvm.Address) byte
	erase(page nvm.Address)
	// program clears bits only; a programmed bit stays 0 until erased.
	program(addr nvm.Address, lo, hi byte)
	// flush is called whenever the controller returns to CmdNone.
	flush() error
}

// Stats counts the primitive calls made against a backend.
type Stats struct {
	Reads      int
	Erases     int
	Programs   int
	Commands   int
	BusyPolls  int
	FaultPolls int
}

func (s Stats) Calls() int {
	return s.Reads + s.Erases + s.Programs + s.Commands + s.BusyPolls + s.FaultPolls
}

// controller models the NVM controller shared by all simulated backends: a
// command register, a busy countdown and a sticky fault flag that is
// cleared when a new erase command is issued.
type controller struct {
	mu  sync.Mutex
	geo sys.Geometry
	m   medium

	cmd       nvm.Command
	busy      int
	busyPolls int
	fault     bool

	faultPages index.PageSet
	erased     index.PageSet
	programmed index.PageSet
	eraseLog   []nvm.Address
	stats      Stats
}

func newController(geo sys.Geometry, m medium) *controller {
	return &controller{
		geo:        geo,
		m:          m,
		faultPages: index.NewPageSet(),
		erased:     index.NewPageSet(),
		programmed: index.NewPageSet(),
	}
}

func (c *controller) Geometry() sys.Geometry {
	return c.geo
}

func (c *controller) ErasePage(addr nvm.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Erases++
	if c.cmd != nvm.CmdPageErase || !c.geo.Aligned(uint32(addr)) || !c.geo.Contains(uint32(addr), c.geo.PageSize) {
		c.fault = true
		return
	}

	page := c.geo.PageIndex(uint32(addr))
	if c.faultPages.Contains(page) {
		c.fault = true
		return
	}

	c.m.erase(addr)
	c.erased.Add(page)
	c.eraseLog = append(c.eraseLog, addr)
	c.busy = c.busyPolls
}

func (c *controller) ProgramWord(addr nvm.Address, word uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Programs++
	if c.cmd != nvm.CmdPageWrite || addr%sys.WordSize != 0 || !c.geo.Contains(uint32(addr), sys.WordSize) {
		c.fault = true
		return
	}

	page := c.geo.PageIndex(uint32(addr))
	if c.faultPages.Contains(page) {
		c.fault = true
		return
	}

	c.m.program(addr, byte(word), byte(word>>8))
	c.programmed.Add(page)
}

func (c *controller) ByteAt(addr nvm.Address) byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Reads++
	if !c.geo.Contains(uint32(addr), 1) {
		return sys.ErasedByte
	}
	return c.m.readByte(addr)
}

func (c *controller) SetCommand(cmd nvm.Command) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Commands++
	prev := c.cmd
	if cmd != nvm.CmdNone && prev != nvm.CmdNone && cmd != prev {
		c.fault = true
		return
	}
	if cmd == nvm.CmdPageErase && prev == nvm.CmdNone {
		c.fault = false
	}
	c.cmd = cmd

	if cmd == nvm.CmdNone && prev != nvm.CmdNone {
		if err := c.m.flush(); err != nil {
			slog.Error("Failed to flush NVM medium", "error", err)
			c.fault = true
		}
		if prev == nvm.CmdPageWrite {
			c.busy = c.busyPolls
		}
	}
}

func (c *controller) IsBusy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.BusyPolls++
	if c.busy > 0 {
		c.busy--
		return true
	}
	return false
}

func (c *controller) Fault() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.FaultPolls++
	return c.fault
}

// SetBusyPolls sets how many IsBusy polls report busy after an erase or a
// completed page write.
func (c *controller) SetBusyPolls(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.busyPolls = n
}

// InjectFault makes every erase or program on the page containing addr fail.
func (c *controller) InjectFault(addr nvm.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.faultPages.Add(c.geo.PageIndex(uint32(addr)))
}

func (c *controller) ClearFaults() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, page := range c.faultPages.Sorted() {
		c.faultPages.Remove(page)
	}
	c.fault = false
}

func (c *controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stats
}

func (c *controller) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats = Stats{}
	c.eraseLog = nil
}

// EraseLog lists the erased page addresses in the order they were erased.
func (c *controller) EraseLog() []nvm.Address {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]nvm.Address, len(c.eraseLog))
	copy(result, c.eraseLog)
	return result
}

// Touched returns the indexes of every page erased or programmed so far.
func (c *controller) Touched() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return index.Union([]index.PageSet{c.erased, c.programmed}).Sorted()
}
