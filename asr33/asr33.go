// package asr33 emulates the console teletype: a 10 cps paper-tape
// reader on device 3 and the matching punch on device 4. Both sides
// pace themselves to the mechanical character rate and are driven
// entirely by flag-unset callbacks from the I/O core.
package asr33

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"socdp8.com/iocore"
)

const (
	ReaderDevice = 3
	PunchDevice  = 4

	// 100 ms per character, 10 cps.
	charDelay = 100 * time.Millisecond
)

// ASR33 is one teletype. The reader tape is installed from the shell
// task and consumed from the I/O worker, so all state is behind one
// mutex.
type ASR33 struct {
	ctrl *iocore.Controller
	out  io.Writer
	now  func() time.Time

	mu           sync.Mutex
	readerData   []byte
	readerPos    int
	showProgress bool
	lastReaderAt time.Time
	lastPunchAt  time.Time
}

// New registers the reader and punch with the controller. Punched
// characters and reader progress are written to out.
func New(ctrl *iocore.Controller, out io.Writer) (*ASR33, error) {
	a := &ASR33{ctrl: ctrl, out: out, now: time.Now}
	if err := a.setupReader(); err != nil {
		return nil, err
	}
	if err := a.setupPunch(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *ASR33) setupReader() error {
	return a.ctrl.RegisterDevice(ReaderDevice, iocore.Config{
		// KSF: skip if the keyboard flag is set.
		SkipFlag: iocore.IOP1,
		// KCC: clear AC and flag, raise the IRQ so the next byte can
		// be loaded.
		ACClear:   iocore.IOP2,
		FlagClear: iocore.IOP2,
		Interrupt: iocore.IOP2,
		// KRS: load the AC from the register.
		ACLoad: iocore.IOP4,
		// Delivering a byte raises the keyboard flag.
		SetFlagOnWrite: true,
		OnFlagUnset:    a.readerFlagReset,
	})
}

func (a *ASR33) setupPunch() error {
	return a.ctrl.RegisterDevice(PunchDevice, iocore.Config{
		// TSF: skip if the punch flag is set.
		SkipFlag: iocore.IOP1,
		// TCF: clear the flag, raise the IRQ so the data can be
		// retrieved.
		FlagClear: iocore.IOP2,
		Interrupt: iocore.IOP2,
		// TPC: load the register from the AC.
		RegisterLoad:   iocore.IOP4,
		SetFlagOnWrite: true,
		OnFlagUnset:    a.punchFlagReset,
	})
}

// SetReaderInput installs data as the reader tape and rewinds it.
// Delivery starts on the next sweep and progress is reported.
func (a *ASR33) SetReaderInput(data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.readerData = data
	a.readerPos = 0
	a.lastReaderAt = time.Time{}
	a.showProgress = true
}

// SetStringInput installs input encoded the way ASR-33 tapes carry
// text, uppercased with the high bit set. No progress is reported.
func (a *ASR33) SetStringInput(input string) {
	upper := strings.ToUpper(input)
	data := make([]byte, len(upper))
	for i := 0; i < len(upper); i++ {
		data[i] = upper[i] | 0x80
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.readerData = data
	a.readerPos = 0
	a.lastReaderAt = time.Time{}
	a.showProgress = false
}

// Clear empties the tape and drops both device flags.
func (a *ASR33) Clear() {
	a.mu.Lock()
	a.readerData = nil
	a.readerPos = 0
	a.mu.Unlock()
	a.ctrl.ClearDeviceFlag(ReaderDevice)
	a.ctrl.ClearDeviceFlag(PunchDevice)
}

// readerFlagReset delivers the next tape byte once the flag is down,
// the character window has passed and bytes remain. Anything else
// defers to a later sweep.
func (a *ASR33) readerFlagReset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	if now.Sub(a.lastReaderAt) < charDelay {
		return
	}
	if a.readerPos >= len(a.readerData) {
		return
	}
	a.ctrl.WriteDeviceRegister(ReaderDevice, uint16(a.readerData[a.readerPos]))
	a.readerPos++
	a.lastReaderAt = now
	if a.showProgress {
		fmt.Fprintf(a.out, "ASR33-Read %d / %d\n", a.readerPos, len(a.readerData))
	}
}

// punchFlagReset accepts a character the PDP-8 loaded into the punch
// register, prints it and re-arms the punch by writing the register
// back to zero.
func (a *ASR33) punchFlagReset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	if now.Sub(a.lastPunchAt) < charDelay {
		return
	}
	data, hasNew := a.ctrl.ReadDeviceRegister(PunchDevice)
	if !hasNew {
		return
	}
	fmt.Fprintf(a.out, "%c", data&0x7F)
	a.ctrl.WriteDeviceRegister(PunchDevice, 0)
	a.lastPunchAt = now
}
