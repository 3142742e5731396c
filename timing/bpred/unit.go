package bpred

import (
	"github.com/sarchlab/oocoresim/insts"
	"github.com/sarchlab/oocoresim/timing/op"
)

// Unit orchestrates the direction predictor(s), BTB, indirect BTB,
// confidence predictor, and call-return stack behind the five operations
// the fetch and exec stages call through: PredictOp, TargetKnownOp,
// ResolveOp, RetireOp, RecoverOp.
type Unit struct {
	dirPred     DirectionPredictor
	lateDirPred DirectionPredictor // nil disables the two-stage predictor
	btb         BTB
	ibtb        IndirectBTB // nil disables indirect-branch prediction
	conf        ConfidencePredictor // nil disables confidence estimation
	crs         *CRS                // nil disables call/return prediction

	globalHist *uint32 // nil until NewUnit; may be supplied by WithGlobalHistory to share storage with a direction predictor built against the same register
	targetHist uint32

	allowOffPathBTBWrites bool
	updateBPOffPath       bool
}

// Option configures a Unit at construction time.
type Option func(*Unit)

// WithLateDirectionPredictor enables the two-stage (early + late) predictor
// scheme: a disagreement between the two, discovered LateBPLatency cycles
// after the early prediction, can itself trigger a recovery.
func WithLateDirectionPredictor(p DirectionPredictor) Option {
	return func(u *Unit) { u.lateDirPred = p }
}

// WithIndirectBTB enables indirect-branch/indirect-call target prediction.
func WithIndirectBTB(b IndirectBTB) Option {
	return func(u *Unit) { u.ibtb = b }
}

// WithConfidence enables per-branch confidence estimation.
func WithConfidence(c ConfidencePredictor) Option {
	return func(u *Unit) { u.conf = c }
}

// WithCRS enables call-return stack based return prediction.
func WithCRS(crs *CRS) Option {
	return func(u *Unit) { u.crs = crs }
}

// WithAllowOffPathBTBWrites lets target_known_op train the BTB/iBTB even
// for ops later discovered to be off-path.
func WithAllowOffPathBTBWrites(allow bool) Option {
	return func(u *Unit) { u.allowOffPathBTBWrites = allow }
}

// WithUpdateBPOffPath lets resolve_op commit direction-predictor learning
// for off-path ops.
func WithUpdateBPOffPath(update bool) Option {
	return func(u *Unit) { u.updateBPOffPath = update }
}

// WithGlobalHistory makes the Unit read and update its speculative global
// history through hist instead of a private register. Pass the same
// pointer given to a gshare-style direction predictor so the predictor
// sees the Unit's real, speculatively-updated history rather than a
// register of its own that nothing ever writes.
func WithGlobalHistory(hist *uint32) Option {
	return func(u *Unit) { u.globalHist = hist }
}

// NewUnit creates a Unit with the given mandatory direction predictor and
// BTB, plus whatever optional collaborators are supplied.
func NewUnit(dirPred DirectionPredictor, btb BTB, opts ...Option) *Unit {
	u := &Unit{dirPred: dirPred, btb: btb}
	for _, opt := range opts {
		opt(u)
	}
	if u.globalHist == nil {
		u.globalHist = new(uint32)
	}

	u.dirPred.Init()
	u.btb.Init()
	if u.lateDirPred != nil {
		u.lateDirPred.Init()
	}
	if u.ibtb != nil {
		u.ibtb.Init()
	}
	if u.conf != nil {
		u.conf.Init()
	}

	return u
}

// GlobalHist returns the current speculative global history register.
func (u *Unit) GlobalHist() uint32 { return *u.globalHist }

// HasLateBP reports whether this Unit was built with a second-stage
// (late) direction predictor. Callers use this to tell a genuine
// early/late disagreement apart from the zero-value PredInfo fields a
// single-stage Unit leaves untouched.
func (u *Unit) HasLateBP() bool { return u.lateDirPred != nil }

func pcPlusOffset(o *op.Op) uint64 {
	return o.Static.Addr + o.Static.InstSize
}

func boolBit31(b bool) uint32 {
	if b {
		return 1 << 31
	}
	return 0
}

// PredictOp predicts direction and target for o, which must already have
// Static.CFType populated. It snapshots enough predictor state into
// o.Recov to allow an exact rollback later, pushes/pops the CRS as needed,
// and returns the predicted next-fetch address.
func (u *Unit) PredictOp(o *op.Op, fetchAddr uint64) uint64 {
	o.Recov.GlobalHist = *u.globalHist
	o.Recov.TargetHist = u.targetHist
	if u.crs != nil {
		snap := u.crs.Snap()
		o.Recov.CRSTos, o.Recov.CRSNext, o.Recov.CRSDepth = snap.Tos, snap.Next, snap.Depth
	}

	cfType := o.Static.CFType

	if cfType == insts.CFSys {
		o.Pred.Pred = true
		o.Pred.PredNPC = o.Oracle.NPC
		o.Pred.BTBMiss = false
		o.Pred.NoTarget = false
		o.Pred.Mispred = false
		o.Pred.Misfetch = false
		u.dirPred.SpecUpdate(o)
		return o.Pred.PredNPC
	}

	var btbData BTBData
	u.btb.Predict(&btbData, o)
	predTarget := btbData.Target
	if !btbData.Hit {
		o.Pred.BTBMiss = true
		o.Pred.NoTarget = true
		predTarget = o.Oracle.Target
	}

	var predTaken bool
	switch cfType {
	case insts.CFCond:
		predTaken = u.dirPred.Predict(o)
		if u.lateDirPred != nil {
			o.Pred.LatePred = u.lateDirPred.Predict(o)
		}
		*u.globalHist = (*u.globalHist >> 1) | boolBit31(predTaken)
		o.Pred.PredGlobHist = *u.globalHist

	case insts.CFUncond:
		predTaken = true

	case insts.CFCall, insts.CFIndirectCall:
		predTaken = true
		if u.crs != nil {
			u.crs.Push(pcPlusOffset(o))
		}
		if cfType == insts.CFIndirectCall && u.ibtb != nil {
			var ibd BTBData
			u.ibtb.Predict(&ibd, o)
			if ibd.Hit {
				predTarget = ibd.Target
				o.Pred.NoTarget = false
			}
		}

	case insts.CFIndirect:
		predTaken = true
		if u.ibtb != nil {
			var ibd BTBData
			u.ibtb.Predict(&ibd, o)
			if ibd.Hit {
				predTarget = ibd.Target
				o.Pred.NoTarget = false
			}
		}

	case insts.CFReturn:
		predTaken = true
		if u.crs != nil {
			if addr, ok := u.crs.Pop(); ok {
				predTarget = addr
				o.Pred.NoTarget = false
			}
		}

	case insts.CFIndirectCallOther:
		predTaken = true
		if u.crs != nil {
			addr, ok := u.crs.Pop()
			u.crs.Push(pcPlusOffset(o))
			if ok {
				predTarget = addr
				o.Pred.NoTarget = false
			}
		}

	default:
		predTaken = true
	}

	o.Pred.Pred = predTaken

	pcPlus := pcPlusOffset(o)
	prediction := pcPlus
	if predTaken {
		prediction = predTarget
	}
	o.Pred.PredNPC = prediction

	o.Pred.Mispred = predTaken != o.Oracle.Dir && prediction != o.Oracle.NPC
	o.Pred.Misfetch = !o.Pred.Mispred && prediction != o.Oracle.NPC

	if u.lateDirPred != nil && cfType == insts.CFCond {
		lateTaken := o.Pred.LatePred
		latePrediction := pcPlus
		if lateTaken {
			latePrediction = predTarget
		}
		o.Pred.LatePredNPC = latePrediction
		o.Pred.LateMispred = lateTaken != o.Oracle.Dir && latePrediction != o.Oracle.NPC
		o.Pred.LateMisfetch = !o.Pred.LateMispred && latePrediction != o.Oracle.NPC
		u.lateDirPred.SpecUpdate(o)
	}

	if cfType == insts.CFCond {
		u.dirPred.SpecUpdate(o)
		if u.conf != nil {
			u.conf.PredictConf(o)
		}
	}

	return prediction
}

// TargetKnownOp writes the BTB (on a BTB-miss) and indirect BTB (for
// indirect-targeted CF types) once the true target is known. Off-path ops
// only train the tables when allowOffPathBTBWrites is set.
func (u *Unit) TargetKnownOp(o *op.Op) {
	if o.Flags.OffPath && !u.allowOffPathBTBWrites {
		return
	}

	cfType := o.Static.CFType
	if cfType == insts.CFSys {
		return
	}

	if o.Pred.BTBMiss {
		var bd BTBData
		u.btb.Update(&bd, o)
	}
	if u.ibtb != nil && cfType.UsesIndirectTarget() {
		var bd BTBData
		u.ibtb.Update(&bd, o)
	}
}

// ResolveOp commits non-speculative predictor learning for o, once its
// branch has resolved. Learning from off-path ops is gated by
// updateBPOffPath.
func (u *Unit) ResolveOp(o *op.Op) {
	if o.Flags.OffPath && !u.updateBPOffPath {
		return
	}

	if o.Static.CFType != insts.CFCond {
		return
	}

	u.dirPred.Update(o)
	if u.lateDirPred != nil {
		u.lateDirPred.Update(o)
	}
	if u.conf != nil {
		u.conf.UpdateConf(o)
	}
}

// RetireOp performs the final, commit-only-on-correct-path update for
// predictors that only learn from retired ops.
func (u *Unit) RetireOp(o *op.Op) {
	u.dirPred.Retire(o)
	if u.lateDirPred != nil {
		u.lateDirPred.Retire(o)
	}
}

// RecoverOp restores global history, target history, CRS pointers, and any
// internal predictor speculative state from the snapshot taken at
// prediction time. Conditional branches restore history one step past the
// mispredicting branch, using the now-known outcome; other CF types
// restore the snapshot verbatim.
func (u *Unit) RecoverOp(cfType insts.CFType, info op.RecoveryInfo) {
	if cfType == insts.CFCond {
		*u.globalHist = (info.GlobalHist >> 1) | boolBit31(info.ResolvedDir)
	} else {
		*u.globalHist = info.GlobalHist
	}
	u.targetHist = info.TargetHist

	if u.crs != nil {
		u.crs.Restore(Snapshot{Tos: info.CRSTos, Next: info.CRSNext, Depth: info.CRSDepth})
	}

	u.dirPred.Recover(info)
	if u.lateDirPred != nil {
		u.lateDirPred.Recover(info)
	}
	if u.conf != nil {
		u.conf.RecoverConf()
	}
}
