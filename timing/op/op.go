// Package op defines the per-instruction dynamic record that flows through
// the out-of-order pipeline, and the arena that allocates it.
package op

import "github.com/sarchlab/oocoresim/insts"

// NeverCycle is the sentinel value used for timing stamps that have not
// happened yet.
const NeverCycle = ^uint64(0)

// MaxSrcRegs and MaxDstRegs bound the architectural register operands an op
// carries. ARM64 load/store-pair instructions need two destinations (Rd,
// Rt2) for LDP and three sources (Rn, Rd, Rt2) for STP.
const (
	MaxSrcRegs = 3
	MaxDstRegs = 2
)

// NumDepTypes is the number of distinct wake-up edge kinds a producing op
// can fan out on.
const NumDepTypes = 3

// DepType names a wake-up edge kind.
type DepType int

// Dependency kinds.
const (
	RegDataDep DepType = iota
	MemAddrDep
	MemDataDep
)

// State is the pipeline state machine an op moves through from fetch to
// retirement.
type State int

// Pipeline states.
const (
	StateFetched State = iota
	StateIssued
	StateInRS
	StateReady
	StateWaitFwd
	StateScheduled
	StateTentative
	StateWaitMem
	StateWaitDCache
	StateMiss
	StateDone
)

// String names a state for diagnostics.
func (s State) String() string {
	switch s {
	case StateFetched:
		return "FETCHED"
	case StateIssued:
		return "ISSUED"
	case StateInRS:
		return "IN_RS"
	case StateReady:
		return "READY"
	case StateWaitFwd:
		return "WAIT_FWD"
	case StateScheduled:
		return "SCHEDULED"
	case StateTentative:
		return "TENTATIVE"
	case StateWaitMem:
		return "WAIT_MEM"
	case StateWaitDCache:
		return "WAIT_DCACHE"
	case StateMiss:
		return "MISS"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// OpDone reports whether a state counts as execution-complete for
// retirement purposes. MISS ops are not done: they are still waiting on the
// memory system.
func OpDone(s State) bool {
	return s == StateDone
}

// StaticInfo is shared by reference across every dynamic instance fetched
// from the same static instruction address. It never changes once built by
// decode.
type StaticInfo struct {
	Addr     uint64
	InstSize uint64
	Kind     insts.OpKind
	MemType  insts.MemType
	CFType   insts.CFType
	Barrier  bool

	SrcRegs    [MaxSrcRegs]uint8
	NumSrcRegs int
	DstRegs    [MaxDstRegs]uint8
	NumDstRegs int

	Latency uint64

	Inst *insts.Instruction
}

// OracleInfo is ground truth handed down by the front-end: what actually
// happened when this op executed.
type OracleInfo struct {
	Dir    bool
	Target uint64
	NPC    uint64
	VA     uint64
}

// PredInfo is what the branch predictor guessed for this op, and whether it
// was right.
type PredInfo struct {
	Pred         bool
	PredNPC      uint64
	LatePred     bool
	LatePredNPC  uint64
	BTBMiss      bool
	NoTarget     bool
	Mispred      bool
	Misfetch     bool
	LateMispred  bool
	LateMisfetch bool
	PredGlobHist uint32
	PredConf     int
}

// RecoveryInfo is a snapshot of predictor state taken immediately before
// this op's speculative update, sufficient to restore the predictor exactly
// if this op turns out to be mispredicted.
type RecoveryInfo struct {
	GlobalHist  uint32
	TargetHist  uint32
	CRSTos      int
	CRSNext     int
	CRSDepth    int
	ResolvedDir bool
	ResolvedTgt uint64
}

// Flags are boolean pipeline-state bits that don't fit the State enum.
type Flags struct {
	InRdyList         bool
	InNodeList        bool
	OffPath           bool
	RecoveryScheduled bool
	RedirectScheduled bool
	Replay            bool
}

// WakeEdge is one outgoing wake-up edge from a producing op to a consumer
// waiting on one of its dependency bits.
type WakeEdge struct {
	Consumer *Op
	Dep      DepType
	SrcSlot  int // which source-register slot of Consumer this edge clears
}

// Op is the per-instruction dynamic record. A fresh Op is returned by
// Pool.Allocate and returned to the pool with Pool.Free.
type Op struct {
	// Identity.
	ProcID     int
	OpNum      uint64
	UniqueNum  uint64
	InstUID    uint64
	opPoolID   uint32

	Static *StaticInfo

	Oracle OracleInfo
	Pred   PredInfo
	Recov  RecoveryInfo
	Flags  Flags

	State State

	// Timing stamps, in cycles. NeverCycle until set.
	FetchCycle  uint64
	MapCycle    uint64
	IssueCycle  uint64
	SchedCycle  uint64
	ExecCycle   uint64
	DoneCycle   uint64
	RetireCycle uint64
	RdyCycle    uint64

	ExecCount int

	// Wake-up graph: this op's outgoing edges to consumers that depend on
	// its result, plus the mask of its own unresolved source dependencies.
	WakeEdges        [NumDepTypes][]WakeEdge
	SrcsNotRdyVector uint32

	// Node-stage linkage. NodeNext/NodePrev thread the ROB's doubly-linked
	// list, which the walk that fills reservation stations also follows in
	// program order. NextOpIntoRS is cleared by Pool.Free and is not read
	// by that walk.
	NodeID       uint64
	RSID         int
	NextOpIntoRS *Op
	NodeNext     *Op
	NodePrev     *Op

	// Ready-list linkage.
	RdyNext *Op

	inUse bool
}

// PoolID returns the op's stable pool identifier, valid even if the op's
// fields are later reset for reuse.
func (o *Op) PoolID() uint32 {
	return o.opPoolID
}

// reset restores an op to the well-defined default state Pool.Allocate
// promises: state FETCHED, all cycle stamps at NeverCycle, off-path false,
// exec_count zero.
func (o *Op) reset(poolID uint32) {
	*o = Op{
		opPoolID:    poolID,
		State:       StateFetched,
		FetchCycle:  NeverCycle,
		MapCycle:    NeverCycle,
		IssueCycle:  NeverCycle,
		SchedCycle:  NeverCycle,
		ExecCycle:   NeverCycle,
		DoneCycle:   NeverCycle,
		RetireCycle: NeverCycle,
		RdyCycle:    NeverCycle,
		RSID:        -1,
		inUse:       true,
	}
}
