package asr33

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"socdp8.com/hal/sim"
	"socdp8.com/iocore"
)

// fakeClock stands in for time.Now so the character windows are under
// test control. The I/O worker keeps sweeping in the background, but
// deliveries depend only on the fake time and the flag states, so the
// outcomes stay deterministic.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(0, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// syncBuffer collects device output; callbacks write from the worker
// goroutine.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

func newTestASR33(t *testing.T) (*sim.HAL, *iocore.Controller, *ASR33, *fakeClock, *syncBuffer) {
	t.Helper()
	h := sim.New()
	ctrl := iocore.New(h)
	t.Cleanup(ctrl.Close)
	out := new(syncBuffer)
	tty, err := New(ctrl, out)
	if err != nil {
		t.Fatal(err)
	}
	clk := newFakeClock()
	tty.now = clk.Now
	// Registration writes raise the flags; start from the resting
	// state.
	tty.Clear()
	return h, ctrl, tty, clk, out
}

func TestReaderPacing(t *testing.T) {
	h, ctrl, tty, clk, _ := newTestASR33(t)

	tty.SetReaderInput([]byte{0xC1, 0xC2, 0xC3})
	ctrl.CheckDevices()
	if data, _ := ctrl.ReadDeviceRegister(ReaderDevice); data != 0xC1 {
		t.Fatalf("first byte = %#x, want 0xC1", data)
	}
	if !h.Flag(ReaderDevice) {
		t.Fatal("delivery did not raise the keyboard flag")
	}

	// The program reads the byte and clears the flag; the next byte
	// is not due for another 100 ms.
	h.ClearFlag(ReaderDevice)
	clk.Advance(50 * time.Millisecond)
	ctrl.CheckDevices()
	if h.Flag(ReaderDevice) {
		t.Fatal("byte delivered inside the character window")
	}

	clk.Advance(70 * time.Millisecond)
	ctrl.CheckDevices()
	if data, _ := ctrl.ReadDeviceRegister(ReaderDevice); data != 0xC2 {
		t.Fatalf("second byte = %#x, want 0xC2", data)
	}
}

// TestReaderStream plays the PDP-8 side of a full tape read: each
// delivered byte is consumed and the flag cleared, and the stream
// must come out in order with no duplicates.
func TestReaderStream(t *testing.T) {
	h, ctrl, tty, clk, _ := newTestASR33(t)

	tape := []byte{0x81, 0x82, 0x83, 0x84}
	tty.SetReaderInput(tape)
	var got []byte
	for i := 0; i < 4*len(tape) && len(got) < len(tape); i++ {
		ctrl.CheckDevices()
		if h.Flag(ReaderDevice) {
			data, _ := ctrl.ReadDeviceRegister(ReaderDevice)
			got = append(got, byte(data))
			h.ClearFlag(ReaderDevice)
		}
		clk.Advance(100 * time.Millisecond)
	}
	if !bytes.Equal(got, tape) {
		t.Errorf("stream = %#x, want %#x", got, tape)
	}
}

func TestReaderExhausted(t *testing.T) {
	h, ctrl, tty, clk, _ := newTestASR33(t)

	tty.SetReaderInput([]byte{0x80})
	ctrl.CheckDevices()
	h.ClearFlag(ReaderDevice)
	clk.Advance(time.Second)
	ctrl.CheckDevices()
	if h.Flag(ReaderDevice) {
		t.Fatal("delivery past the end of the tape")
	}
}

func TestStringInput(t *testing.T) {
	_, _, tty, _, _ := newTestASR33(t)

	tty.SetStringInput("Ab")
	tty.mu.Lock()
	defer tty.mu.Unlock()
	if len(tty.readerData) != 2 || tty.readerData[0] != 0xC1 || tty.readerData[1] != 0xC2 {
		t.Errorf("encoded tape = %#x, want [0xC1 0xC2]", tty.readerData)
	}
	if tty.showProgress {
		t.Error("string input reports progress")
	}
}

func TestReaderProgress(t *testing.T) {
	_, ctrl, tty, _, out := newTestASR33(t)

	tty.SetReaderInput([]byte{0x80, 0x81})
	ctrl.CheckDevices()
	if got, want := out.String(), "ASR33-Read 1 / 2\n"; got != want {
		t.Errorf("progress output = %q, want %q", got, want)
	}
}

func TestPunch(t *testing.T) {
	h, ctrl, _, clk, out := newTestASR33(t)

	// TLS: the register takes the AC, the flag is cleared and the IRQ
	// fires.
	h.Deliver(PunchDevice, uint16('H')|0x80)
	ctrl.CheckDevices()
	if got := out.String(); got != "H" {
		t.Fatalf("punched output = %q, want %q", got, "H")
	}
	reg := h.Register(PunchDevice)
	if reg&0o7777 != 0 || reg&(1<<27) != 0 {
		t.Errorf("punch register not reset: %#08x", reg)
	}
	if !h.Flag(PunchDevice) {
		t.Error("punch not re-armed after accepting a character")
	}

	// A second character inside the 100 ms window waits.
	h.ClearFlag(PunchDevice)
	h.Deliver(PunchDevice, uint16('I'))
	ctrl.CheckDevices()
	if got := out.String(); got != "H" {
		t.Fatalf("punched output = %q, want %q", got, "H")
	}
	clk.Advance(150 * time.Millisecond)
	ctrl.CheckDevices()
	if got := out.String(); got != "HI" {
		t.Fatalf("punched output = %q, want %q", got, "HI")
	}
}

func TestClear(t *testing.T) {
	h, _, tty, _, _ := newTestASR33(t)

	tty.SetReaderInput([]byte{1, 2, 3})
	h.SetFlag(ReaderDevice)
	h.SetFlag(PunchDevice)
	tty.Clear()
	if h.Flag(ReaderDevice) || h.Flag(PunchDevice) {
		t.Error("flags survived clear")
	}
	tty.mu.Lock()
	defer tty.mu.Unlock()
	if len(tty.readerData) != 0 || tty.readerPos != 0 {
		t.Error("tape survived clear")
	}
}
