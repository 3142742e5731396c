// Package latency provides instruction timing models for cycle-accurate
// simulation.
//
// The latency values are based on a modern mobile out-of-order core and
// can be configured via TimingConfig.
package latency

import (
	"github.com/sarchlab/oocoresim/insts"
)

// Table provides instruction latency lookups.
type Table struct {
	config *TimingConfig
}

// NewTable creates a new latency table with default timing values.
func NewTable() *Table {
	return &Table{
		config: DefaultTimingConfig(),
	}
}

// NewTableWithConfig creates a new latency table with custom timing
// configuration.
func NewTableWithConfig(config *TimingConfig) *Table {
	return &Table{
		config: config,
	}
}

// GetLatency returns the execution latency in cycles for the given
// instruction. For variable-latency operations, returns the
// typical/expected latency.
func (t *Table) GetLatency(inst *insts.Instruction) uint64 {
	if inst == nil {
		return 1
	}

	switch inst.Op {
	case insts.OpADD, insts.OpSUB, insts.OpAND, insts.OpORR, insts.OpEOR:
		return t.config.ALULatency

	case insts.OpB, insts.OpBL, insts.OpBCond, insts.OpBR, insts.OpBLR, insts.OpRET:
		return t.config.BranchLatency

	case insts.OpLDR, insts.OpLDP, insts.OpLDRB, insts.OpLDRSB,
		insts.OpLDRH, insts.OpLDRSH, insts.OpLDRLit:
		return t.config.LoadLatency

	case insts.OpSTR, insts.OpSTP, insts.OpSTRB, insts.OpSTRH:
		return t.config.StoreLatency

	case insts.OpSVC:
		return t.config.SyscallLatency

	case insts.OpVADD, insts.OpVSUB, insts.OpVMUL, insts.OpVMOV,
		insts.OpVFADD, insts.OpVFSUB, insts.OpVFMUL:
		return t.config.SIMDLatency

	case insts.OpLDRQ, insts.OpSTRQ:
		return t.config.SIMDLatency

	default:
		return 1
	}
}

// GetLatencyByKind returns the execution latency for an op kind directly,
// without a concrete decoded instruction. This is what timing/core's exec
// stage uses to size functional-unit occupancy for ops whose static info has
// already been classified.
func (t *Table) GetLatencyByKind(kind insts.OpKind) uint64 {
	switch kind {
	case insts.KindArithmetic:
		return t.config.ALULatency
	case insts.KindMemory:
		return t.config.LoadLatency
	case insts.KindControlFlow:
		return t.config.BranchLatency
	case insts.KindSystem:
		return t.config.SyscallLatency
	case insts.KindSIMD:
		return t.config.SIMDLatency
	default:
		return 1
	}
}

// GetMinLatency returns the minimum execution latency for variable-latency
// operations.
func (t *Table) GetMinLatency(inst *insts.Instruction) uint64 {
	// All implemented opcodes currently have fixed latency.
	return t.GetLatency(inst)
}

// GetMaxLatency returns the maximum execution latency for variable-latency
// operations.
func (t *Table) GetMaxLatency(inst *insts.Instruction) uint64 {
	return t.GetLatency(inst)
}

// GetMemLatency returns the latency contributed by the memory system itself
// for a hit at the given level, layered on top of GetLatency's base
// execution latency for load/store ops.
func (t *Table) GetMemLatency(hit bool, level int) uint64 {
	if !hit {
		return t.config.MemoryLatency
	}
	if level <= 1 {
		return t.config.L1HitLatency
	}
	return t.config.L2HitLatency
}

// IsMemoryOp returns true if the instruction accesses memory.
func (t *Table) IsMemoryOp(inst *insts.Instruction) bool {
	return insts.ClassifyMemType(inst) != insts.MemNone
}

// IsLoadOp returns true if the instruction is a load operation.
func (t *Table) IsLoadOp(inst *insts.Instruction) bool {
	return insts.ClassifyMemType(inst) == insts.MemLoad
}

// IsStoreOp returns true if the instruction is a store operation.
func (t *Table) IsStoreOp(inst *insts.Instruction) bool {
	return insts.ClassifyMemType(inst) == insts.MemStore
}

// IsBranchOp returns true if the instruction is a control-flow operation.
func (t *Table) IsBranchOp(inst *insts.Instruction) bool {
	if inst == nil {
		return false
	}
	return insts.ClassifyCFType(inst).IsControlFlow()
}

// IsSIMDOp returns true if the instruction is a SIMD operation.
func (t *Table) IsSIMDOp(inst *insts.Instruction) bool {
	if inst == nil {
		return false
	}
	return inst.IsSIMD
}

// RecoveryLatency returns the number of cycles after detection that a
// misprediction recovery takes effect.
func (t *Table) RecoveryLatency() uint64 {
	return t.config.ExtraRecoveryCycles
}

// RedirectLatency returns the number of cycles after detection that a
// redirect (BTB-miss resolution, no pipeline flush) takes effect. System
// calls carry an additional penalty on top of this.
func (t *Table) RedirectLatency(isSyscall bool) uint64 {
	if isSyscall {
		return t.config.ExtraRedirectCycles + t.config.ExtraCallsysCycles
	}
	return t.config.ExtraRedirectCycles
}

// LateBPLatency returns the cycle distance between an early branch
// prediction and the late (second-stage) predictor's resolution of the same
// op.
func (t *Table) LateBPLatency() uint64 {
	return t.config.LateBPLatency
}

// Config returns the current timing configuration.
func (t *Table) Config() *TimingConfig {
	return t.config
}
