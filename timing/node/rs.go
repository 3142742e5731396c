package node

import "github.com/sarchlab/oocoresim/insts"

// RS is a reservation station: a pool of issue slots feeding a fixed set
// of connected functional units. Size == 0 means unbounded.
type RS struct {
	ID         int
	Size       int
	Connected  []int // indices into Node.FUs
	occupancy  int
}

// HasSpace reports whether the station can accept another op.
func (s *RS) HasSpace() bool {
	return s.Size == 0 || s.occupancy < s.Size
}

// Occupancy returns the number of ops currently assigned to this station.
func (s *RS) Occupancy() int { return s.occupancy }

// FU is a functional unit: a typed execution lane shared by every op whose
// kind matches its type mask.
type FU struct {
	ID         int
	TypeMask   uint32
	AvailCycle uint64
	IdleCycle  uint64
	HeldByMem  bool
}

// CanExecute reports whether fu can execute an op of the given kind.
func (fu *FU) CanExecute(kind insts.OpKind) bool {
	return fu.TypeMask&(1<<uint(kind)) != 0
}

// KindMask builds a functional-unit type mask covering the given op kinds.
func KindMask(kinds ...insts.OpKind) uint32 {
	var mask uint32
	for _, k := range kinds {
		mask |= 1 << uint(k)
	}
	return mask
}
