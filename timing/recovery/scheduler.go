// Package recovery implements the single-slot "earliest pending"
// recovery and redirect scheduling discipline: whenever a misprediction or
// a target-resolution event is detected, it arranges for the pipeline to
// react at a specific future cycle, keeping only the earliest such event
// pending per core at any time.
package recovery

import (
	"github.com/sarchlab/oocoresim/insts"
	"github.com/sarchlab/oocoresim/timing/latency"
	"github.com/sarchlab/oocoresim/timing/op"
)

// NoneCycle is the sentinel cycle value meaning "no event scheduled".
const NoneCycle = ^uint64(0)

// RecoveryRecord is the single pending-recovery slot for a core.
type RecoveryRecord struct {
	Pending             bool
	Cycle               uint64
	OpNum               uint64
	InstUID             uint64
	FetchAddr           uint64
	CFType              insts.CFType
	Info                op.RecoveryInfo
	LateBPRecovery      bool
	LateBPRecoveryWrong bool
}

// RedirectRecord is the single pending-redirect slot for a core.
type RedirectRecord struct {
	Pending   bool
	Cycle     uint64
	OpNum     uint64
	InstUID   uint64
	FetchAddr uint64
}

// Scheduler owns a core's recovery and redirect records and the timing
// table used to compute when each fires.
type Scheduler struct {
	recovery RecoveryRecord
	redirect RedirectRecord
	table    *latency.Table
}

// NewScheduler creates a Scheduler with both records initialized to the
// "none pending" sentinel state.
func NewScheduler(table *latency.Table) *Scheduler {
	return &Scheduler{
		recovery: RecoveryRecord{Cycle: NoneCycle, OpNum: NoneCycle},
		redirect: RedirectRecord{Cycle: NoneCycle, OpNum: NoneCycle},
		table:    table,
	}
}

// ScheduleRecovery records a pending recovery for o, keeping only the
// earliest (lowest op_num) one: it replaces the current record if none is
// pending or if o.OpNum <= the currently recorded op_num. A newer op can
// never override a pending recovery for an older op.
func (s *Scheduler) ScheduleRecovery(o *op.Op, cycle uint64, lateBP bool, forceOffpath bool) {
	if s.recovery.Pending && o.OpNum > s.recovery.OpNum {
		return
	}

	fetchAddr := o.Oracle.NPC
	if forceOffpath && lateBP {
		fetchAddr = o.Pred.LatePredNPC
	}

	fireCycle := cycle + s.table.RecoveryLatency() + 1
	if lateBP {
		fireCycle = cycle + s.table.LateBPLatency()
	}

	s.recovery = RecoveryRecord{
		Pending:             true,
		Cycle:               fireCycle,
		OpNum:               o.OpNum,
		InstUID:             o.InstUID,
		FetchAddr:           fetchAddr,
		CFType:              o.Static.CFType,
		Info:                o.Recov,
		LateBPRecovery:      lateBP,
		LateBPRecoveryWrong: lateBP && forceOffpath,
	}
	o.Flags.RecoveryScheduled = true
}

// ScheduleRedirect records a pending redirect for o, by the same
// earliest-op_num priority as ScheduleRecovery. System-call ops carry an
// extra latency component.
func (s *Scheduler) ScheduleRedirect(o *op.Op, cycle uint64) {
	if s.redirect.Pending && o.OpNum > s.redirect.OpNum {
		return
	}

	isSyscall := o.Static.CFType == insts.CFSys
	fireCycle := cycle + s.table.RedirectLatency(isSyscall) + 1

	s.redirect = RedirectRecord{
		Pending:   true,
		Cycle:     fireCycle,
		OpNum:     o.OpNum,
		InstUID:   o.InstUID,
		FetchAddr: o.Oracle.NPC,
	}
	o.Flags.RedirectScheduled = true
}

// RecoveryDue reports whether the pending recovery, if any, fires on the
// given cycle.
func (s *Scheduler) RecoveryDue(cycle uint64) bool {
	return s.recovery.Pending && s.recovery.Cycle == cycle
}

// RedirectDue reports whether the pending redirect, if any, fires on the
// given cycle.
func (s *Scheduler) RedirectDue(cycle uint64) bool {
	return s.redirect.Pending && s.redirect.Cycle == cycle
}

// TakeRecovery returns the pending recovery record and clears the slot. It
// must only be called when RecoveryDue is true.
func (s *Scheduler) TakeRecovery() RecoveryRecord {
	r := s.recovery
	s.recovery = RecoveryRecord{Cycle: NoneCycle, OpNum: NoneCycle}
	return r
}

// TakeRedirect returns the pending redirect record and clears the slot. It
// must only be called when RedirectDue is true.
func (s *Scheduler) TakeRedirect() RedirectRecord {
	r := s.redirect
	s.redirect = RedirectRecord{Cycle: NoneCycle, OpNum: NoneCycle}
	return r
}

// RecoveryPending reports whether a recovery is currently pending, and if
// so, the op_num it is pending for.
func (s *Scheduler) RecoveryPending() (opNum uint64, pending bool) {
	return s.recovery.OpNum, s.recovery.Pending
}

// RedirectPending reports whether a redirect is currently pending, and if
// so, the op_num it is pending for.
func (s *Scheduler) RedirectPending() (opNum uint64, pending bool) {
	return s.redirect.OpNum, s.redirect.Pending
}
