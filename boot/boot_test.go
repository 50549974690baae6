package boot

import "testing"

type pokes map[uint16]uint16

func (p pokes) PokeMem(addr uint16, value uint16) {
	p[addr] = value
}

func TestStoreRIMLoader(t *testing.T) {
	m := make(pokes)
	StoreRIMLoader(m)
	if len(m) != 17 {
		t.Fatalf("poked %d words, want 17", len(m))
	}
	want := map[uint16]uint16{
		0o7756: 0o6032,
		0o7761: 0o6036,
		0o7775: 0o5356,
		0o7776: 0o0000,
	}
	for addr, value := range want {
		if m[addr] != value {
			t.Errorf("word at %05o = %04o, want %04o", addr, m[addr], value)
		}
	}
	for addr := range m {
		if addr < 0o7756 || addr > 0o7776 {
			t.Errorf("poke outside the loader range: %05o", addr)
		}
	}
}
