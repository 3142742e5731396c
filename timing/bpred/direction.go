// Package bpred implements the branch prediction subsystem: direction and
// target prediction, the call-return stack, and the recovery-time
// restoration of all of the above. Concrete predictor algorithms are
// pluggable behind small interfaces; the orchestration that wires them
// together for an in-flight Op lives in Unit.
package bpred

import "github.com/sarchlab/oocoresim/timing/op"

// DirectionPredictor predicts taken/not-taken for conditional branches and
// learns from their resolution. Implementations own their private state
// (history tables, counters); Unit only ever calls through this interface.
type DirectionPredictor interface {
	Init()

	// Predict returns the current taken/not-taken guess for op, without
	// mutating predictor state.
	Predict(o *op.Op) bool

	// SpecUpdate speculatively updates predictor state immediately after a
	// prediction, before the branch resolves.
	SpecUpdate(o *op.Op)

	// Update commits non-speculative learning once the branch has
	// resolved.
	Update(o *op.Op)

	// Retire performs any update that must wait until the op is known to
	// be on the correct, committed path.
	Retire(o *op.Op)

	// Recover restores speculative state from a recovery snapshot.
	Recover(info op.RecoveryInfo)
}

// twoBitCounter is a standard saturating 2-bit counter: 0/1 predict
// not-taken, 2/3 predict taken.
type twoBitCounter = uint8

const (
	counterStronglyNotTaken twoBitCounter = 0
	counterWeaklyNotTaken   twoBitCounter = 1
	counterWeaklyTaken      twoBitCounter = 2
	counterStronglyTaken    twoBitCounter = 3
)

func incCounter(c twoBitCounter) twoBitCounter {
	if c < counterStronglyTaken {
		return c + 1
	}
	return c
}

func decCounter(c twoBitCounter) twoBitCounter {
	if c > counterStronglyNotTaken {
		return c - 1
	}
	return c
}

// BimodalPredictor is a per-PC table of 2-bit saturating counters, indexed
// directly by PC bits — no global history folded in.
type BimodalPredictor struct {
	table []twoBitCounter
	size  uint32
}

// NewBimodalPredictor creates a bimodal predictor with the given table
// size, which must be a power of two.
func NewBimodalPredictor(size uint32) *BimodalPredictor {
	if size == 0 {
		size = 1024
	}
	return &BimodalPredictor{table: make([]twoBitCounter, size), size: size}
}

func (p *BimodalPredictor) Init() {
	for i := range p.table {
		p.table[i] = counterWeaklyTaken
	}
}

func (p *BimodalPredictor) index(o *op.Op) uint32 {
	return uint32((o.Static.Addr >> 2) & uint64(p.size-1))
}

func (p *BimodalPredictor) Predict(o *op.Op) bool {
	return p.table[p.index(o)] >= counterWeaklyTaken
}

func (p *BimodalPredictor) SpecUpdate(o *op.Op) {}

func (p *BimodalPredictor) Update(o *op.Op) {
	idx := p.index(o)
	if o.Oracle.Dir {
		p.table[idx] = incCounter(p.table[idx])
	} else {
		p.table[idx] = decCounter(p.table[idx])
	}
}

func (p *BimodalPredictor) Retire(o *op.Op) {}

func (p *BimodalPredictor) Recover(info op.RecoveryInfo) {}

// GsharePredictor XORs the global history register into the PC index
// before looking up a 2-bit counter table, letting it distinguish the same
// branch's behavior across different surrounding control-flow paths.
type GsharePredictor struct {
	table      []twoBitCounter
	size       uint32
	ghistBits  uint32
	globalHist *uint32 // shared with Unit; Unit owns the canonical copy
}

// NewGsharePredictor creates a gshare predictor over a table of the given
// size (a power of two), folding in the low ghistBits bits of the global
// history register shared with the owning Unit.
func NewGsharePredictor(size uint32, ghistBits uint32, globalHist *uint32) *GsharePredictor {
	if size == 0 {
		size = 1024
	}
	return &GsharePredictor{
		table:      make([]twoBitCounter, size),
		size:       size,
		ghistBits:  ghistBits,
		globalHist: globalHist,
	}
}

func (p *GsharePredictor) Init() {
	for i := range p.table {
		p.table[i] = counterWeaklyTaken
	}
}

func (p *GsharePredictor) index(o *op.Op) uint32 {
	mask := uint32(1)<<p.ghistBits - 1
	hist := (*p.globalHist >> (32 - p.ghistBits)) & mask
	pcBits := uint32((o.Static.Addr >> 2)) & mask
	return (pcBits ^ hist) & (p.size - 1)
}

func (p *GsharePredictor) Predict(o *op.Op) bool {
	return p.table[p.index(o)] >= counterWeaklyTaken
}

func (p *GsharePredictor) SpecUpdate(o *op.Op) {}

func (p *GsharePredictor) Update(o *op.Op) {
	idx := p.index(o)
	if o.Oracle.Dir {
		p.table[idx] = incCounter(p.table[idx])
	} else {
		p.table[idx] = decCounter(p.table[idx])
	}
}

func (p *GsharePredictor) Retire(o *op.Op) {}

func (p *GsharePredictor) Recover(info op.RecoveryInfo) {}
