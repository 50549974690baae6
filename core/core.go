// package core provides the operator views of PDP-8 core memory: the
// octal dump and the raw snapshot stream used by state save/load.
package core

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Memory is the peek/poke view of core memory. Addresses are 15 bits;
// only the low 12 bits of a word are significant.
type Memory interface {
	PeekMem(addr uint16) uint16
	PokeMem(addr uint16, value uint16)
}

// LastAddr is the highest core-memory address: 4096 words in each of
// eight fields.
const LastAddr = 0o77777

// Dump writes the words in [start, end] to w in octal, with a
// five-digit octal address header at each address divisible by eight
// and four octal digits per word.
func Dump(w io.Writer, m Memory, start, end uint16) {
	for addr := uint32(start); addr <= uint32(end) && addr <= LastAddr; addr++ {
		if addr%8 == 0 {
			fmt.Fprintf(w, "\n%05o: ", addr)
		}
		fmt.Fprintf(w, "%04o ", m.PeekMem(uint16(addr)))
	}
	fmt.Fprintln(w)
}

// Save serializes all of core memory: two bytes per word,
// little-endian, in address order.
func Save(m Memory) []byte {
	data := make([]byte, (LastAddr+1)*2)
	for addr := 0; addr <= LastAddr; addr++ {
		binary.LittleEndian.PutUint16(data[addr*2:], m.PeekMem(uint16(addr)))
	}
	return data
}

// Load pokes a snapshot back into core memory. A trailing odd byte
// and words beyond the address space are ignored.
func Load(m Memory, data []byte) {
	for i := 0; i+1 < len(data) && i/2 <= LastAddr; i += 2 {
		m.PokeMem(uint16(i/2), binary.LittleEndian.Uint16(data[i:]))
	}
}
