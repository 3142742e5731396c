package node

import (
	"github.com/sarchlab/oocoresim/timing/op"
	"github.com/sarchlab/oocoresim/timing/rename"
)

// StallReason classifies why retirement made no progress on a cycle.
type StallReason int

// Stall reasons.
const (
	StallNone StallReason = iota
	StallROBFull
	StallWaitRecovery
	StallWaitRedirect
	StallWaitL1Miss
	StallWaitMemory
	StallWaitDCMiss
	StallOther
)

// Node is the per-core node stage: ROB, reservation stations, functional
// units, and ready list, plus the cursor and scheduling slots the five-step
// algorithm needs across cycles.
type Node struct {
	ROB   *ROB
	RSs   []*RS
	FUs   []*FU
	Ready ReadyList

	RetireWidth int

	// nextIntoRS is the cursor the fill-RS step resumes from; it always
	// points at the oldest ROB op not yet placed into a reservation
	// station (or nil once every issued op has been placed).
	nextIntoRS *op.Op

	// Scheduled holds, per FU id, the op selected by the Schedule step to
	// be drained by next cycle's exec stage.
	Scheduled []*op.Op

	rn *rename.Map
}

// NewNode creates a Node stage with the given ROB size, reservation
// stations, functional units, and retire width.
func NewNode(robSize int, rss []*RS, fus []*FU, retireWidth int, rn *rename.Map) *Node {
	return &Node{
		ROB:         NewROB(robSize),
		RSs:         rss,
		FUs:         fus,
		RetireWidth: retireWidth,
		Scheduled:   make([]*op.Op, len(fus)),
		rn:          rn,
	}
}

// IssueIntoROB is step 1: append ops from the decode tail into the ROB in
// order, stopping at the first one that doesn't fit (ROB full) or
// immediately after a barrier op. Returns the number of ops issued and
// whether the ROB was full when it stopped.
func (n *Node) IssueIntoROB(tail []*op.Op) (issued int, robFull bool) {
	for _, o := range tail {
		if n.ROB.Full() {
			return issued, true
		}

		n.ROB.PushTail(o)
		o.State = op.StateIssued
		issued++

		if n.nextIntoRS == nil {
			n.nextIntoRS = o
		}

		if o.Static.Barrier {
			return issued, false
		}
	}

	return issued, false
}

// RemoveScheduledOps is step 2: any ready-list op that the previous cycle's
// Schedule step moved to SCHEDULED or MISS no longer belongs on the ready
// list or occupying its reservation station slot.
func (n *Node) RemoveScheduledOps() {
	n.Ready.Walk(func(o *op.Op) {
		if o.State == op.StateScheduled || o.State == op.StateMiss {
			n.Ready.Remove(o)
			if o.RSID >= 0 && o.RSID < len(n.RSs) {
				n.RSs[o.RSID].occupancy--
			}
		}
	})
}

// rsCanExecute reports whether any FU connected to rs can execute an op of the
// op's kind.
func (n *Node) rsCanExecute(rs *RS, o *op.Op) bool {
	for _, fuID := range rs.Connected {
		if n.FUs[fuID].CanExecute(o.Static.Kind) {
			return true
		}
	}
	return false
}

// FillRS is step 3: walk ops issued into the ROB, in program order starting
// from the fill cursor, assigning each to the emptiest reservation station
// among those connected to an FU that can execute it. Stops the first time
// no eligible station has space, leaving the cursor there for next cycle.
func (n *Node) FillRS(cycle uint64) {
	cur := n.nextIntoRS

	for cur != nil {
		if cur.State != op.StateIssued {
			cur = cur.NodeNext
			continue
		}

		var best *RS
		for _, rs := range n.RSs {
			if !n.rsCanExecute(rs, cur) || !rs.HasSpace() {
				continue
			}
			if best == nil || rs.occupancy < best.occupancy {
				best = rs
			}
		}

		if best == nil {
			break
		}

		best.occupancy++
		cur.RSID = best.ID
		cur.State = op.StateInRS

		if cur.SrcsNotRdyVector == 0 {
			if cur.RdyCycle != op.NeverCycle && cur.RdyCycle > cycle {
				cur.State = op.StateWaitFwd
			} else {
				cur.State = op.StateReady
			}
			n.Ready.Push(cur)
		}

		next := cur.NodeNext
		cur = next
	}

	n.nextIntoRS = cur
}

// Schedule is step 4: for every ready op whose rdy_cycle has arrived,
// assign it to a connected FU under an oldest-first policy — prefer an
// empty slot, otherwise bump the youngest occupant if this op is older.
func (n *Node) Schedule(cycle uint64) {
	for i := range n.Scheduled {
		n.Scheduled[i] = nil
	}

	n.Ready.Walk(func(o *op.Op) {
		if o.RdyCycle != op.NeverCycle && o.RdyCycle > cycle+1 {
			return
		}

		rs := n.RSs[o.RSID]
		bestFU := -1
		bestIsEmpty := false

		for _, fuID := range rs.Connected {
			fu := n.FUs[fuID]
			if fu.AvailCycle > cycle || !fu.CanExecute(o.Static.Kind) {
				continue
			}

			if n.Scheduled[fuID] == nil {
				bestFU = fuID
				bestIsEmpty = true
				break
			}

			if bestFU == -1 && n.Scheduled[fuID].OpNum > o.OpNum {
				bestFU = fuID
			}
		}

		if bestFU == -1 {
			return
		}
		if !bestIsEmpty && n.Scheduled[bestFU] != nil && n.Scheduled[bestFU].OpNum <= o.OpNum {
			return
		}

		n.Scheduled[bestFU] = o
		o.State = op.StateScheduled
		o.SchedCycle = cycle
	})
}

// Retirable reports whether o may retire: execution-complete, on-path, and
// with no recovery or redirect pending against it.
func Retirable(o *op.Op) bool {
	return op.OpDone(o.State) && !o.Flags.OffPath && !o.Flags.RecoveryScheduled && !o.Flags.RedirectScheduled
}

// Retire is step 5: retire up to RetireWidth ops from the ROB head, in
// strict ROB order, stopping at the first non-retirable op. onRetire is
// invoked for each retired op (predictor retirement hooks, front-end
// notification, pool free) after it is detached from rename bookkeeping.
// Returns the count retired and the stall reason if retirement made no
// progress at all.
func (n *Node) Retire(cycle uint64, onRetire func(*op.Op), stallReasonFor func(*op.Op) StallReason) (retired int, reason StallReason) {
	for retired < n.RetireWidth {
		head := n.ROB.Head()
		if head == nil {
			return retired, StallNone
		}

		if !Retirable(head) {
			if retired == 0 {
				return 0, stallReasonFor(head)
			}
			return retired, StallNone
		}

		n.ROB.PopHead()
		head.RetireCycle = cycle
		if n.rn != nil {
			n.rn.ClearWriter(head)
		}
		onRetire(head)
		retired++
	}

	return retired, StallNone
}

// FlushAfter removes every op with OpNum > opNum from the ROB and ready
// list, used by a firing recovery. It also rewinds the fill-RS cursor so a
// subsequent FillRS doesn't dereference a flushed op.
func (n *Node) FlushAfter(opNum uint64) []*op.Op {
	flushed := n.ROB.FlushAfter(opNum)

	for _, o := range flushed {
		if o.Flags.InRdyList {
			n.Ready.Remove(o)
		}
		if o.RSID >= 0 && o.RSID < len(n.RSs) {
			n.RSs[o.RSID].occupancy--
		}
		for i, sch := range n.Scheduled {
			if sch == o {
				n.Scheduled[i] = nil
			}
		}
	}

	if n.nextIntoRS != nil && n.nextIntoRS.OpNum > opNum {
		n.nextIntoRS = n.ROB.Tail()
		if n.nextIntoRS != nil && n.nextIntoRS.State != op.StateIssued {
			n.nextIntoRS = nil
		}
	}

	return flushed
}
