// Package latency provides instruction and recovery timing models for
// cycle-accurate timing simulation.
package latency

import (
	"encoding/json"
	"fmt"
	"os"
)

// TimingConfig holds latency values for different instruction types and for
// the recovery/redirect scheduler. Values are loosely based on a modern
// out-of-order mobile core and can be overridden via JSON or the CLI
// parameter surface (see timing/params).
type TimingConfig struct {
	// ALULatency is the execution latency for basic ALU operations
	// (ADD, SUB, AND, ORR, EOR). Default: 1 cycle.
	ALULatency uint64 `json:"alu_latency"`

	// BranchLatency is the base execution latency for branch instructions.
	// This does not include misprediction penalty. Default: 1 cycle.
	BranchLatency uint64 `json:"branch_latency"`

	// LoadLatency is the latency for load operations assuming L1 cache hit.
	// Default: 4 cycles.
	LoadLatency uint64 `json:"load_latency"`

	// StoreLatency is the latency for store operations (fire-and-forget to
	// the store queue). Default: 1 cycle.
	StoreLatency uint64 `json:"store_latency"`

	// SyscallLatency is the latency for system call instructions. Default:
	// 1 cycle (handling itself is external).
	SyscallLatency uint64 `json:"syscall_latency"`

	// SIMDLatency is the execution latency for SIMD operations. Default: 2
	// cycles.
	SIMDLatency uint64 `json:"simd_latency"`

	// L1HitLatency is the L1 data cache hit latency. Default: 4 cycles.
	L1HitLatency uint64 `json:"l1_hit_latency"`

	// L2HitLatency is the L2 cache hit latency. Default: 12 cycles.
	L2HitLatency uint64 `json:"l2_hit_latency"`

	// MemoryLatency is the main memory access latency. Default: 150
	// cycles.
	MemoryLatency uint64 `json:"memory_latency"`

	// ExtraRecoveryCycles is added to the cycle an op's mispredict was
	// detected on to compute the cycle recovery fires. Corresponds to
	// spec's EXTRA_RECOVERY_CYCLES. Default: 1.
	ExtraRecoveryCycles uint64 `json:"extra_recovery_cycles"`

	// ExtraRedirectCycles is the corresponding extra latency for
	// redirect-only events (BTB-miss resolution). Default: 1.
	ExtraRedirectCycles uint64 `json:"extra_redirect_cycles"`

	// ExtraCallsysCycles is added on top of ExtraRedirectCycles for system
	// call ops. Default: 2.
	ExtraCallsysCycles uint64 `json:"extra_callsys_cycles"`

	// LateBPLatency is the cycle count from prediction to late-predictor
	// resolution, used when the late branch predictor disagrees with the
	// early one. Default: 3.
	LateBPLatency uint64 `json:"late_bp_latency"`
}

// DefaultTimingConfig returns a TimingConfig with reasonable default
// values.
func DefaultTimingConfig() *TimingConfig {
	return &TimingConfig{
		ALULatency:          1,
		BranchLatency:       1,
		LoadLatency:         4,
		StoreLatency:        1,
		SyscallLatency:      1,
		SIMDLatency:         2,
		L1HitLatency:        4,
		L2HitLatency:        12,
		MemoryLatency:       150,
		ExtraRecoveryCycles: 1,
		ExtraRedirectCycles: 1,
		ExtraCallsysCycles:  2,
		LateBPLatency:       3,
	}
}

// LoadConfig loads a TimingConfig from a JSON file, starting from the
// default values so a partial file only overrides what it mentions.
func LoadConfig(path string) (*TimingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing config file: %w", err)
	}

	config := DefaultTimingConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse timing config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a TimingConfig to a JSON file.
func (c *TimingConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize timing config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write timing config file: %w", err)
	}

	return nil
}

// Validate checks that all latency values are usable.
func (c *TimingConfig) Validate() error {
	if c.ALULatency == 0 {
		return fmt.Errorf("alu_latency must be > 0")
	}
	if c.BranchLatency == 0 {
		return fmt.Errorf("branch_latency must be > 0")
	}
	if c.LoadLatency == 0 {
		return fmt.Errorf("load_latency must be > 0")
	}
	if c.StoreLatency == 0 {
		return fmt.Errorf("store_latency must be > 0")
	}
	if c.SyscallLatency == 0 {
		return fmt.Errorf("syscall_latency must be > 0")
	}
	return nil
}

// Clone returns a deep copy of the TimingConfig.
func (c *TimingConfig) Clone() *TimingConfig {
	cp := *c
	return &cp
}
