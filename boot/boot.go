// package boot preloads bootstrap programs into core memory.
package boot

// Memory is the poke view of core memory.
type Memory interface {
	PokeMem(addr uint16, value uint16)
}

// rimLoader is the binary RIM paper-tape loader as traditionally
// toggled into high core from the front panel. The firmware does not
// interpret it.
var rimLoader = [...]uint16{
	0o6032, // KCC        / clear keyboard flag and ac
	0o6031, // KSF        / skip if keyboard flag
	0o5357, // JMP 7757   / jmp -1
	0o6036, // KRB        / clear ac, or AC with data (8 bit), clear flag
	0o7106, // CLL RTL    / clear link, rotate left 2
	0o7006, // RTL        / rotate left 2
	0o7510, // SPA        / skip if ac > 0
	0o5357, // JMP 7757   / jmp back
	0o7006, // RTL        / rotate left 2
	0o6031, // KSF        / skip if keyboard flag
	0o5367, // JMP 7767   / jmp -1
	0o6034, // KRS        / or AC with keyboard (8 bit)
	0o7420, // SNL        / skip if link
	0o3776, // DCA I 7776 / store ac in [7776], clear ac
	0o3376, // DCA 7776   / store ac in 7776, clear ac
	0o5356, // JMP 7756
	0o0000, // address
}

// RIMLoaderAddr is the first address of the RIM loader.
const RIMLoaderAddr = 0o7756

// StoreRIMLoader pokes the RIM loader into 07756-07776.
func StoreRIMLoader(m Memory) {
	for i, word := range rimLoader {
		m.PokeMem(RIMLoaderAddr+uint16(i), word)
	}
}
