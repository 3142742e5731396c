package bpred

import "github.com/sarchlab/oocoresim/timing/op"

// ConfidencePredictor rates how much to trust a direction prediction. It is
// optional: a core can run with none configured, in which case Unit skips
// the confidence calls entirely.
type ConfidencePredictor interface {
	Init()
	PredictConf(o *op.Op)
	UpdateConf(o *op.Op)
	RecoverConf()
}

// SaturatingConfidence is a per-PC table of small saturating counters; a
// high counter value means "this branch has predicted correctly many times
// in a row."
type SaturatingConfidence struct {
	table []uint8
	size  uint32
	max   uint8
}

// NewSaturatingConfidence creates a confidence predictor with the given
// table size (power of two) and counter ceiling.
func NewSaturatingConfidence(size uint32, max uint8) *SaturatingConfidence {
	if size == 0 {
		size = 1024
	}
	if max == 0 {
		max = 7
	}
	return &SaturatingConfidence{table: make([]uint8, size), size: size, max: max}
}

func (c *SaturatingConfidence) Init() {
	for i := range c.table {
		c.table[i] = 0
	}
}

func (c *SaturatingConfidence) index(o *op.Op) uint32 {
	return uint32((o.Static.Addr >> 2) & uint64(c.size-1))
}

func (c *SaturatingConfidence) PredictConf(o *op.Op) {
	o.Pred.PredConf = int(c.table[c.index(o)])
}

func (c *SaturatingConfidence) UpdateConf(o *op.Op) {
	idx := c.index(o)
	if o.Pred.Mispred {
		c.table[idx] = 0
		return
	}
	if c.table[idx] < c.max {
		c.table[idx]++
	}
}

func (c *SaturatingConfidence) RecoverConf() {}
