package emu

// Memory is a flat, byte-addressable backing store for simulated programs.
// It is sparse: pages are allocated lazily on first write so that large
// address spaces (stacks placed high in the address space, for example)
// don't require eager allocation.
type Memory struct {
	pages map[uint64][]byte
}

// memoryPageSize is the granularity at which backing pages are allocated.
const memoryPageSize = 4096

// NewMemory creates an empty memory image. All addresses read as zero until
// written.
func NewMemory() *Memory {
	return &Memory{pages: make(map[uint64][]byte)}
}

func (m *Memory) page(addr uint64, alloc bool) []byte {
	key := addr &^ (memoryPageSize - 1)
	p, ok := m.pages[key]
	if !ok {
		if !alloc {
			return nil
		}
		p = make([]byte, memoryPageSize)
		m.pages[key] = p
	}
	return p
}

// Read8 reads a single byte. Unwritten addresses read as zero.
func (m *Memory) Read8(addr uint64) uint8 {
	p := m.page(addr, false)
	if p == nil {
		return 0
	}
	return p[addr&(memoryPageSize-1)]
}

// Write8 writes a single byte.
func (m *Memory) Write8(addr uint64, value uint8) {
	p := m.page(addr, true)
	p[addr&(memoryPageSize-1)] = value
}

// Read16 reads a little-endian 16-bit value.
func (m *Memory) Read16(addr uint64) uint16 {
	return uint16(m.Read8(addr)) | uint16(m.Read8(addr+1))<<8
}

// Write16 writes a little-endian 16-bit value.
func (m *Memory) Write16(addr uint64, value uint16) {
	m.Write8(addr, uint8(value))
	m.Write8(addr+1, uint8(value>>8))
}

// Read32 reads a little-endian 32-bit value.
func (m *Memory) Read32(addr uint64) uint32 {
	var v uint32
	for i := uint64(0); i < 4; i++ {
		v |= uint32(m.Read8(addr+i)) << (8 * i)
	}
	return v
}

// Write32 writes a little-endian 32-bit value.
func (m *Memory) Write32(addr uint64, value uint32) {
	for i := uint64(0); i < 4; i++ {
		m.Write8(addr+i, uint8(value>>(8*i)))
	}
}

// Read64 reads a little-endian 64-bit value.
func (m *Memory) Read64(addr uint64) uint64 {
	var v uint64
	for i := uint64(0); i < 8; i++ {
		v |= uint64(m.Read8(addr+i)) << (8 * i)
	}
	return v
}

// Write64 writes a little-endian 64-bit value.
func (m *Memory) Write64(addr uint64, value uint64) {
	for i := uint64(0); i < 8; i++ {
		m.Write8(addr+i, uint8(value>>(8*i)))
	}
}
