// package iocore implements the broker between device-flag
// transitions in the fabric's I/O controller and the firmware-side
// device emulations. Many virtual devices share the one hardware
// mailbox; each registers a configuration word describing its IOP
// pulse wiring and a pair of flag callbacks serviced by a single
// worker goroutine.
package iocore

import (
	"fmt"
	"sync"
	"time"
)

// Pulse selects one of the IOP strobes the PDP-8 emits while
// executing an I/O instruction.
type Pulse uint8

const (
	None Pulse = iota
	IOP1
	IOP2
	IOP4
)

// Config describes how fabric reacts to the IOP pulses of one device
// and which firmware callbacks service it. Configurations are
// immutable after registration.
type Config struct {
	// Interrupt selects the pulse that raises the software IRQ.
	Interrupt Pulse
	// RegisterLoad selects the pulse that loads the device register
	// from the AC.
	RegisterLoad Pulse
	// ACClear selects the pulse that clears the AC.
	ACClear Pulse
	// ACLoad selects the pulse that loads the AC from the register.
	ACLoad Pulse
	// FlagSet and FlagClear select the pulses that set and clear the
	// device flag.
	FlagSet   Pulse
	FlagClear Pulse
	// SkipFlag selects the pulse that skips the next instruction if
	// the flag is set.
	SkipFlag Pulse

	// SetFlagOnWrite makes fabric assert the device flag whenever the
	// firmware writes the device register.
	SetFlagOnWrite bool

	// OnFlagSet and OnFlagUnset are invoked once per sweep, depending
	// on the observed flag state. Either may be nil. They run on the
	// worker and must not block.
	OnFlagSet   func()
	OnFlagUnset func()
}

// Bus is the slice of the platform interface the controller needs.
type Bus interface {
	PeekIO(off uint32) uint32
	PokeIO(off uint32, value uint32)
	SetIOInterruptHandler(h func())
}

const (
	// NumDevices is the size of the fabric's device table. Device 0
	// doubles as the flag-clear command register and cannot be
	// registered.
	NumDevices = 64

	// addrClearFlag takes a device number whose flag fabric should
	// drop.
	addrClearFlag = 0

	// addrFlags holds the low half of the device-flag bitmap; the
	// high half follows it.
	addrFlags = 64

	// taskDelay bounds the wait for an interrupt wake. Devices that
	// sit with their flag in its resting state until a timing window
	// opens are serviced by the tick, without a fabric edge.
	taskDelay = 10 * time.Millisecond
)

// Device register layout, per io_controller.vhd. Each pulse-select
// field is two bits wide; bit 12 enables set-flag-on-write, bits
// [11:0] carry the data word and bit 27 reflects the new-data latch.
const (
	shiftInterrupt    = 25
	shiftRegisterLoad = 23
	shiftACClear      = 21
	shiftACLoad       = 19
	shiftFlagSet      = 17
	shiftFlagClear    = 15
	shiftSkipFlag     = 13

	bitSetFlagOnWrite = 1 << 12
	bitNewData        = 1 << 27

	dataMask = 0o7777
)

// pulseCode holds the Gray-coded pulse-select values the fabric
// decoder expects: none=00, IOP1=01, IOP2=11, IOP4=10.
var pulseCode = [4]uint32{0b00, 0b01, 0b11, 0b10}

func encodeConfig(cfg Config) uint32 {
	w := pulseCode[cfg.Interrupt&3] << shiftInterrupt
	w |= pulseCode[cfg.RegisterLoad&3] << shiftRegisterLoad
	w |= pulseCode[cfg.ACClear&3] << shiftACClear
	w |= pulseCode[cfg.ACLoad&3] << shiftACLoad
	w |= pulseCode[cfg.FlagSet&3] << shiftFlagSet
	w |= pulseCode[cfg.FlagClear&3] << shiftFlagClear
	w |= pulseCode[cfg.SkipFlag&3] << shiftSkipFlag
	if cfg.SetFlagOnWrite {
		w |= bitSetFlagOnWrite
	}
	return w
}

// Controller owns the I/O register file and the device table. All
// device callbacks run sequentially on its worker goroutine.
type Controller struct {
	bus Bus

	mu      sync.Mutex
	devices [NumDevices]*Config

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// New wires a controller to the bus, installs the interrupt handler
// and starts the worker.
func New(bus Bus) *Controller {
	c := &Controller{
		bus:  bus,
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	bus.SetIOInterruptHandler(c.Interrupt)
	go c.run()
	return c
}

// Close detaches the interrupt handler and stops the worker. A sweep
// in progress completes first.
func (c *Controller) Close() {
	c.bus.SetIOInterruptHandler(nil)
	close(c.quit)
	<-c.done
}

// Interrupt wakes the worker for a sweep. It is the only controller
// method safe to call from interrupt context: it never blocks, and a
// wake coalesces with one already pending.
func (c *Controller) Interrupt() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) run() {
	defer close(c.done)
	tick := time.NewTicker(taskDelay)
	defer tick.Stop()
	for {
		select {
		case <-c.quit:
			return
		case <-c.wake:
		case <-tick.C:
		}
		c.CheckDevices()
	}
}

// RegisterDevice stores cfg under deviceNum and writes its packed
// form to the fabric register. A previous configuration for the same
// device is replaced.
func (c *Controller) RegisterDevice(deviceNum uint8, cfg Config) error {
	if deviceNum == 0 || deviceNum >= NumDevices {
		return fmt.Errorf("iocore: invalid device number %d", deviceNum)
	}
	c.mu.Lock()
	c.devices[deviceNum] = &cfg
	c.mu.Unlock()
	c.bus.PokeIO(uint32(deviceNum), encodeConfig(cfg))
	return nil
}

// WriteDeviceRegister replaces the data bits of the device register
// with the low 12 bits of data, preserving the configuration bits and
// clearing the new-data latch. Fabric raises the device flag if the
// device was registered with SetFlagOnWrite.
func (c *Controller) WriteDeviceRegister(deviceNum uint8, data uint16) {
	reg := c.bus.PeekIO(uint32(deviceNum))
	reg &^= dataMask | bitNewData
	reg |= uint32(data) & dataMask
	c.bus.PokeIO(uint32(deviceNum), reg)
}

// ReadDeviceRegister returns the data bits of the device register and
// whether fabric has latched a new word since the firmware last wrote
// it.
func (c *Controller) ReadDeviceRegister(deviceNum uint8) (uint16, bool) {
	reg := c.bus.PeekIO(uint32(deviceNum))
	return uint16(reg & dataMask), reg&bitNewData != 0
}

// ClearDeviceFlag asks fabric to drop the flag of deviceNum.
func (c *Controller) ClearDeviceFlag(deviceNum uint8) {
	c.bus.PokeIO(addrClearFlag, uint32(deviceNum))
}

// CheckDevices performs one sweep: it snapshots the device-flag
// bitmap and invokes each registered device's callback for the
// observed state, in ascending device order. Fabric updates the
// bitmap asynchronously, so a callback may observe a flag that has
// already changed by the time it acts.
func (c *Controller) CheckDevices() {
	flags := uint64(c.bus.PeekIO(addrFlags)) | uint64(c.bus.PeekIO(addrFlags+1))<<32
	c.mu.Lock()
	defer c.mu.Unlock()
	for num, dev := range c.devices {
		if dev == nil {
			continue
		}
		if flags&(1<<num) != 0 {
			if dev.OnFlagSet != nil {
				dev.OnFlagSet()
			}
		} else if dev.OnFlagUnset != nil {
			dev.OnFlagUnset()
		}
	}
}
