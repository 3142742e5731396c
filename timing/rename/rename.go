// Package rename implements the per-core register map and wake-up-graph
// wiring performed at the tail of the map stage: for each op, it resolves
// source registers against the latest in-flight writer, wires a wake-up
// edge when that writer hasn't produced its result yet, and installs the
// op as the new latest writer of its destination registers. It also tracks
// the most recent in-flight store so later loads pick up memory-ordering
// dependency edges.
package rename

import (
	"github.com/sarchlab/oocoresim/insts"
	"github.com/sarchlab/oocoresim/timing/op"
)

// NumArchRegs is the size of the architectural register file the map
// table covers (ARM64 X0-X30 plus the zero/stack-pointer encoding slot).
const NumArchRegs = 32

// memAddrBit and memDataBit are the SrcsNotRdyVector bit positions used
// for memory-ordering dependencies, placed past the register-source bits
// so the two dependency kinds never alias.
const (
	memAddrBit = op.MaxSrcRegs
	memDataBit = op.MaxSrcRegs + 1
)

// Map is a per-core register map and in-flight store tracker.
type Map struct {
	writer    [NumArchRegs]*op.Op
	lastStore *op.Op
}

// New creates an empty register map: no register has an in-flight writer.
func New() *Map {
	return &Map{}
}

// Rename resolves o's source and destination registers against the map,
// wiring wake-up edges for any source whose latest writer hasn't produced
// its result yet (is not done), and installs o as the latest writer of its destinations.
func (m *Map) Rename(o *op.Op) {
	o.SrcsNotRdyVector = 0

	for i := 0; i < o.Static.NumSrcRegs; i++ {
		reg := o.Static.SrcRegs[i]
		writer := m.writer[reg]
		if writer == nil {
			continue
		}
		if op.OpDone(writer.State) {
			continue
		}
		op.AddEdge(writer, o, op.RegDataDep, uint(i))
	}

	if o.Static.MemType == insts.MemLoad && m.lastStore != nil && !op.OpDone(m.lastStore.State) {
		op.AddEdge(m.lastStore, o, op.MemAddrDep, memAddrBit)
		op.AddEdge(m.lastStore, o, op.MemDataDep, memDataBit)
	}

	if o.Static.MemType == insts.MemStore {
		m.lastStore = o
	}

	for i := 0; i < o.Static.NumDstRegs; i++ {
		reg := o.Static.DstRegs[i]
		m.writer[reg] = o
	}
}

// ClearWriter removes o as the map's recorded writer for any register it
// still holds, called when o is freed (retired or flushed) so a later op
// doesn't spuriously think it has a dependency on a dead op.
func (m *Map) ClearWriter(o *op.Op) {
	for reg, w := range m.writer {
		if w == o {
			m.writer[reg] = nil
		}
	}
	if m.lastStore == o {
		m.lastStore = nil
	}
}
