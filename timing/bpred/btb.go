package bpred

import "github.com/sarchlab/oocoresim/timing/op"

// BTBData is the snapshot of predictor state a BTB needs to evaluate and
// recover a prediction, passed explicitly rather than embedded in the BTB
// itself so that BTB and IndirectBTB can share the same data shape.
type BTBData struct {
	Hit    bool
	Target uint64
}

// BTB caches PC -> predicted-target mappings for direct branches whose
// target isn't known until the first time they're seen (or whose target
// has since changed).
type BTB interface {
	Init()

	// Predict looks up pc and fills bp_data with the result.
	Predict(bpData *BTBData, o *op.Op)

	// Update writes a resolved target into the table.
	Update(bpData *BTBData, o *op.Op)

	// Recover restores the BTB to a consistent state after a recovery.
	// The direct-mapped implementation has no speculative state of its
	// own (writes are committed at target_known_op, which only fires
	// on-path or when off-path writes are explicitly allowed), so this is
	// a no-op for it.
	Recover(bpData *BTBData, info op.RecoveryInfo)
}

type btbEntry struct {
	valid  bool
	tag    uint64
	target uint64
}

// DirectMappedBTB is a direct-mapped, PC-indexed cache from branch address
// to predicted target.
type DirectMappedBTB struct {
	entries []btbEntry
	size    uint32
}

// NewDirectMappedBTB creates a BTB with the given number of entries, which
// must be a power of two.
func NewDirectMappedBTB(size uint32) *DirectMappedBTB {
	if size == 0 {
		size = 256
	}
	return &DirectMappedBTB{entries: make([]btbEntry, size), size: size}
}

func (b *DirectMappedBTB) Init() {
	for i := range b.entries {
		b.entries[i] = btbEntry{}
	}
}

func (b *DirectMappedBTB) index(pc uint64) uint32 {
	return uint32((pc >> 2) & uint64(b.size-1))
}

func (b *DirectMappedBTB) Predict(bpData *BTBData, o *op.Op) {
	e := b.entries[b.index(o.Static.Addr)]
	if e.valid && e.tag == o.Static.Addr {
		bpData.Hit = true
		bpData.Target = e.target
		return
	}
	bpData.Hit = false
	bpData.Target = 0
}

func (b *DirectMappedBTB) Update(bpData *BTBData, o *op.Op) {
	idx := b.index(o.Static.Addr)
	b.entries[idx] = btbEntry{valid: true, tag: o.Static.Addr, target: o.Oracle.Target}
}

func (b *DirectMappedBTB) Recover(bpData *BTBData, info op.RecoveryInfo) {}

// IndirectBTB caches PC -> predicted-target for indirect branches/calls,
// whose target is read from a register at runtime and so can't be derived
// from the instruction encoding alone.
type IndirectBTB interface {
	Init()
	Predict(bpData *BTBData, o *op.Op)
	Update(bpData *BTBData, o *op.Op)
	Recover(bpData *BTBData, info op.RecoveryInfo)
}

// DirectMappedIndirectBTB is structurally identical to DirectMappedBTB but
// kept as a distinct type: indirect targets change far more often than
// direct ones (virtual-call dispatch, switch jump tables), so a real
// implementation would size and index it differently even though the
// reference implementation here shares the same table shape.
type DirectMappedIndirectBTB struct {
	inner *DirectMappedBTB
}

// NewDirectMappedIndirectBTB creates an indirect BTB with the given number
// of entries.
func NewDirectMappedIndirectBTB(size uint32) *DirectMappedIndirectBTB {
	return &DirectMappedIndirectBTB{inner: NewDirectMappedBTB(size)}
}

func (b *DirectMappedIndirectBTB) Init() { b.inner.Init() }

func (b *DirectMappedIndirectBTB) Predict(bpData *BTBData, o *op.Op) {
	b.inner.Predict(bpData, o)
}

func (b *DirectMappedIndirectBTB) Update(bpData *BTBData, o *op.Op) {
	b.inner.Update(bpData, o)
}

func (b *DirectMappedIndirectBTB) Recover(bpData *BTBData, info op.RecoveryInfo) {
	b.inner.Recover(bpData, info)
}
