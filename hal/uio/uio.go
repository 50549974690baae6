//go:build linux

// package uio implements the platform interface on top of the Linux
// UIO devices exported by the socdp8 kernel modules: one memory
// mapping for the core-memory block, one for the I/O controller
// register file, and the I/O interrupt line behind the io device's
// event counter.
package uio

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"socdp8.com/hal"
)

const (
	// The core-memory BRAM holds 4096 words per field for eight
	// fields, one word per 32-bit slot.
	coreWords = 0o100000
	coreSize  = coreWords * 4

	ioSize = 4096
)

// HAL is the hardware platform handle. Open returns it with both
// fabric windows mapped and the interrupt pump running.
type HAL struct {
	coreDev *os.File
	coreMap []byte
	core    []uint16

	ioDev *os.File
	ioMap []byte
	io    []uint32

	media string

	mu      sync.Mutex
	handler func()
}

// Open maps the fabric windows behind the given UIO device paths and
// roots file access at media.
func Open(coreDev, ioDev, media string) (*HAL, error) {
	h := &HAL{media: media}
	var err error
	h.coreDev, h.coreMap, err = mapDevice(coreDev, coreSize)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("uio: core memory: %w", err)
	}
	// The fabric stores one 12-bit word per 32-bit slot; 16-bit
	// accesses at byte offset addr*4 reach the significant half.
	h.core = unsafe.Slice((*uint16)(unsafe.Pointer(unsafe.SliceData(h.coreMap))), len(h.coreMap)/2)
	h.ioDev, h.ioMap, err = mapDevice(ioDev, ioSize)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("uio: io controller: %w", err)
	}
	h.io = unsafe.Slice((*uint32)(unsafe.Pointer(unsafe.SliceData(h.ioMap))), len(h.ioMap)/4)
	go h.irqLoop()
	return h, nil
}

func mapDevice(path string, size int) (*os.File, []byte, error) {
	dev, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, nil, err
	}
	mem, err := unix.Mmap(int(dev.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		dev.Close()
		return nil, nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return dev, mem, nil
}

// irqLoop is the interrupt service routine: the UIO event counter
// read blocks until the fabric raises the line. The installed handler
// runs on this goroutine and must not block.
func (h *HAL) irqLoop() {
	var buf [4]byte
	for {
		// Unmask, then wait for the next event.
		binary.LittleEndian.PutUint32(buf[:], 1)
		if _, err := h.ioDev.Write(buf[:]); err != nil {
			return
		}
		if _, err := h.ioDev.Read(buf[:]); err != nil {
			return
		}
		h.mu.Lock()
		handler := h.handler
		h.mu.Unlock()
		if handler != nil {
			handler()
		}
	}
}

func (h *HAL) PeekMem(addr uint16) uint16 {
	return h.core[int(addr)*2]
}

func (h *HAL) PokeMem(addr uint16, value uint16) {
	h.core[int(addr)*2] = value
}

func (h *HAL) PeekIO(off uint32) uint32 {
	return h.io[off]
}

func (h *HAL) PokeIO(off uint32, value uint32) {
	h.io[off] = value
}

func (h *HAL) SetIOInterruptHandler(handler func()) {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()
}

func (h *HAL) ListFiles() ([]hal.FileEntry, error) {
	dir, err := os.ReadDir(h.media)
	if err != nil {
		return nil, err
	}
	entries := make([]hal.FileEntry, 0, len(dir))
	for _, e := range dir {
		entries = append(entries, hal.FileEntry{Name: e.Name(), Dir: e.IsDir()})
	}
	return entries, nil
}

func (h *HAL) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(h.media, path))
}

func (h *HAL) SaveFile(path string, data []byte) error {
	return os.WriteFile(filepath.Join(h.media, path), data, 0644)
}

func (h *HAL) Close() error {
	h.SetIOInterruptHandler(nil)
	if h.ioMap != nil {
		unix.Munmap(h.ioMap)
	}
	if h.ioDev != nil {
		h.ioDev.Close()
	}
	if h.coreMap != nil {
		unix.Munmap(h.coreMap)
	}
	if h.coreDev != nil {
		h.coreDev.Close()
	}
	h.core, h.coreMap, h.coreDev = nil, nil, nil
	h.io, h.ioMap, h.ioDev = nil, nil, nil
	return nil
}
