// package pr8 emulates the high-speed paper-tape reader and punch:
// reader on device 1, punch on device 2, roughly 300 characters per
// second. The device shape matches the teletype; the reader wiring
// and the character rate differ, the reader always reports progress,
// and each punched character is written as a "PR8-Punch" line.
package pr8

import (
	"fmt"
	"io"
	"sync"
	"time"

	"socdp8.com/iocore"
)

const (
	ReaderDevice = 1
	PunchDevice  = 2

	// 3 ms per character, ~300 cps.
	charDelay = 3 * time.Millisecond
)

type PR8 struct {
	ctrl *iocore.Controller
	out  io.Writer
	now  func() time.Time

	mu           sync.Mutex
	readerData   []byte
	readerPos    int
	lastReaderAt time.Time
	lastPunchAt  time.Time
}

// New registers the reader and punch with the controller. Progress
// and punched characters are written to out.
func New(ctrl *iocore.Controller, out io.Writer) (*PR8, error) {
	p := &PR8{ctrl: ctrl, out: out, now: time.Now}
	if err := p.setupReader(); err != nil {
		return nil, err
	}
	if err := p.setupPunch(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PR8) setupReader() error {
	return p.ctrl.RegisterDevice(ReaderDevice, iocore.Config{
		// RSF: skip if the reader flag is set.
		SkipFlag: iocore.IOP1,
		// RRB: read the buffer and clear the flag.
		ACLoad:    iocore.IOP2,
		FlagClear: iocore.IOP2,
		// RFC: raise the IRQ so the next byte can be fetched.
		Interrupt:      iocore.IOP4,
		SetFlagOnWrite: true,
		OnFlagUnset:    p.readerFlagReset,
	})
}

func (p *PR8) setupPunch() error {
	return p.ctrl.RegisterDevice(PunchDevice, iocore.Config{
		// PSF: skip if the punch flag is set.
		SkipFlag: iocore.IOP1,
		// PCF: clear the flag, raise the IRQ so the data can be
		// retrieved.
		FlagClear: iocore.IOP2,
		Interrupt: iocore.IOP2,
		// PPC: load the register from the AC.
		RegisterLoad:   iocore.IOP4,
		SetFlagOnWrite: true,
		OnFlagUnset:    p.punchFlagReset,
	})
}

// SetReaderInput installs data as the reader tape and rewinds it.
func (p *PR8) SetReaderInput(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readerData = data
	p.readerPos = 0
	p.lastReaderAt = time.Time{}
}

// Clear empties the tape and drops both device flags.
func (p *PR8) Clear() {
	p.mu.Lock()
	p.readerData = nil
	p.readerPos = 0
	p.mu.Unlock()
	p.ctrl.ClearDeviceFlag(ReaderDevice)
	p.ctrl.ClearDeviceFlag(PunchDevice)
}

func (p *PR8) readerFlagReset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if now.Sub(p.lastReaderAt) < charDelay {
		return
	}
	if p.readerPos >= len(p.readerData) {
		return
	}
	p.ctrl.WriteDeviceRegister(ReaderDevice, uint16(p.readerData[p.readerPos]))
	p.readerPos++
	p.lastReaderAt = now
	fmt.Fprintf(p.out, "PR8-Read %d / %d\n", p.readerPos, len(p.readerData))
}

func (p *PR8) punchFlagReset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if now.Sub(p.lastPunchAt) < charDelay {
		return
	}
	data, hasNew := p.ctrl.ReadDeviceRegister(PunchDevice)
	if !hasNew {
		return
	}
	fmt.Fprintf(p.out, "PR8-Punch '%c'\n", data&0x7F)
	p.ctrl.WriteDeviceRegister(PunchDevice, 0)
	p.lastPunchAt = now
}
