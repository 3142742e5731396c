package op

import "fmt"

// PoolGrowthIncrement is the number of slots a Pool grows by when it runs
// out of free ops and Grow is allowed.
const PoolGrowthIncrement = 256

// FatalError reports a pool invariant violation. Callers that receive one
// should treat it the way the rest of the simulator treats FatalInvariant:
// dump stats and abort.
type FatalError struct {
	Msg string
}

func (e *FatalError) Error() string {
	return e.Msg
}

// Pool is a bounded-growth arena for Op records. It hands out ops with
// stable pool identifiers and tracks how many are currently live. Slots are
// allocated individually (not as a contiguous []Op) so that growing the
// pool never relocates an Op already handed out: the ROB, RS, ready list,
// and wake edges all hold raw *Op pointers that must stay valid across a
// Grow.
type Pool struct {
	slots     []*Op
	free      []uint32
	maxGrowth int // 0 means unbounded growth
	activeOps int64
}

// NewPool creates an empty Pool that grows by PoolGrowthIncrement slots at
// a time, without a cap, until maxGrowth bounds the total slot count.
// maxGrowth == 0 means unbounded.
func NewPool(maxGrowth int) *Pool {
	return &Pool{maxGrowth: maxGrowth}
}

// ActiveOps returns the number of currently allocated (not yet freed) ops.
// It is a process-wide (per-Pool) invariant that this never goes negative;
// Free enforces that by refusing to double-free.
func (p *Pool) ActiveOps() int64 {
	return p.activeOps
}

// Allocate returns a fresh Op reset to its default state, tagged with
// procID and a stable pool identifier. Pool growth failing is fatal.
func (p *Pool) Allocate(procID int) (*Op, error) {
	if len(p.free) == 0 {
		if err := p.grow(); err != nil {
			return nil, err
		}
	}

	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]

	o := p.slots[idx]
	o.reset(idx)
	o.ProcID = procID
	p.activeOps++

	return o, nil
}

// Free returns an op's slot to the free list. Freeing an op that is not
// currently in use (a double-free) is fatal, as is freeing an op this pool
// did not allocate.
func (p *Pool) Free(o *Op) error {
	if o == nil {
		return &FatalError{Msg: "op pool: free of nil op"}
	}
	if int(o.opPoolID) >= len(p.slots) || p.slots[o.opPoolID] != o {
		return &FatalError{Msg: "op pool: free of op not owned by this pool"}
	}
	if !o.inUse {
		return &FatalError{Msg: fmt.Sprintf("op pool: double free of op_pool_id=%d", o.opPoolID)}
	}

	o.inUse = false
	o.Static = nil
	o.WakeEdges = [NumDepTypes][]WakeEdge{}
	o.NodeNext = nil
	o.NodePrev = nil
	o.RdyNext = nil
	o.NextOpIntoRS = nil

	p.free = append(p.free, o.opPoolID)
	p.activeOps--
	if p.activeOps < 0 {
		return &FatalError{Msg: "op pool: active_ops went negative"}
	}

	return nil
}

func (p *Pool) grow() error {
	if p.maxGrowth > 0 && len(p.slots)+PoolGrowthIncrement > p.maxGrowth {
		return &FatalError{Msg: "op pool: exceeded maximum growth bound"}
	}

	base := uint32(len(p.slots))
	for i := uint32(0); i < PoolGrowthIncrement; i++ {
		idx := base + i
		p.slots = append(p.slots, &Op{opPoolID: idx})
		p.free = append(p.free, idx)
	}

	return nil
}
