// Package core provides the per-core cycle-accurate driver: it owns the
// fetch/icache stage, the decode/map shift register, and the exec stage,
// and orchestrates them together with the node stage (timing/node), the
// branch predictor (timing/bpred), the recovery/redirect scheduler
// (timing/recovery), and the memory-request plumbing (timing/memsys)
// around a single upstream collaborator (timing/frontend.FrontEnd).
package core

import (
	"fmt"

	"github.com/sarchlab/oocoresim/insts"
	"github.com/sarchlab/oocoresim/timing/bpred"
	"github.com/sarchlab/oocoresim/timing/cache"
	"github.com/sarchlab/oocoresim/timing/frontend"
	"github.com/sarchlab/oocoresim/timing/latency"
	"github.com/sarchlab/oocoresim/timing/memsys"
	"github.com/sarchlab/oocoresim/timing/node"
	"github.com/sarchlab/oocoresim/timing/op"
	"github.com/sarchlab/oocoresim/timing/recovery"
	"github.com/sarchlab/oocoresim/timing/rename"
)

// icState names the fetch/icache stage's state machine.
type icState int

// Icache stage states.
const (
	icFetch icState = iota
	icWaitForMiss
	icWaitForRedirect
	icWaitForEmptyROB
	icWaitForTimer
)

// icLineSize is the instruction-cache line size used to decide whether a
// fetch address touches a new line worth simulating a miss for.
const icLineSize = 64

// FatalInvariant is the panic value the core raises when it detects a
// condition treated as a programming error rather than a recoverable stall.
// The core raises it for one condition: an op scheduled onto a functional
// unit whose type mask doesn't include the op's kind. Fetch addresses are
// not checked for an encoded core id.
type FatalInvariant struct {
	Msg string
	Op  *op.Op
}

func (e *FatalInvariant) Error() string {
	return fmt.Sprintf("fatal invariant violation: %s", e.Msg)
}

// Config bundles the pipeline widths and collaborators a Core is built
// from.
type Config struct {
	ProcID      int
	IssueWidth  int
	CFSPerCycle int
	MapCycles   uint64
	RetireWidth int
	ROBSize     int
	RSs         []*node.RS
	FUs         []*node.FU
	MemCapacity int

	FrontEnd frontend.FrontEnd
	BPUnit   *bpred.Unit
	Table    *latency.Table
	Cache    *cache.Cache
}

// Stats holds per-core performance counters.
type Stats struct {
	Cycles      uint64
	Retired     uint64
	Fetched     uint64
	Mispredicts uint64
	Misfetches  uint64
	Recoveries  uint64
	Redirects   uint64
	ICacheMiss  uint64
}

// CPI returns cycles retired per instruction, or zero if nothing has
// retired yet.
func (s Stats) CPI() float64 {
	if s.Retired == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Retired)
}

type decodeEntry struct {
	o          *op.Op
	readyCycle uint64
}

// pendingExec is a non-memory op latched onto an FU, waiting for its
// execution latency to elapse before it wakes REG_DATA_DEP consumers and
// becomes retirable.
type pendingExec struct {
	o          *op.Op
	doneCycle  uint64
}

// Core is one out-of-order core: a node stage (ROB+RS+FUs), a branch
// predictor, a recovery/redirect scheduler, a rename map, a memory-request
// front, and the fetch/decode/exec glue around them.
type Core struct {
	cfg Config

	pool  *op.Pool
	node  *node.Node
	rn    *rename.Map
	recov *recovery.Scheduler
	mem   *memsys.System

	cycle      uint64
	opCounter  uint64
	fetchAddr  uint64
	icState    icState
	icLines    map[uint64]bool
	timerUntil uint64

	decodeQueue  []decodeEntry
	pendingExecs []pendingExec

	halted   bool
	exitCode int64
	bogus    bool
	offPath  bool

	stats           Stats
	lastRetireCycle uint64
	totalRetired    uint64
}

// NewCore builds a Core from cfg. The op pool is owned by the core so
// recovery flushes and retirement can free ops back to it directly.
func NewCore(cfg Config, poolMaxGrowth int) *Core {
	c := &Core{
		cfg:     cfg,
		pool:    op.NewPool(poolMaxGrowth),
		rn:      rename.New(),
		recov:   recovery.NewScheduler(cfg.Table),
		mem:     memsys.NewSystem(cfg.Cache, cfg.MemCapacity),
		icLines: make(map[uint64]bool),
	}
	c.node = node.NewNode(cfg.ROBSize, cfg.RSs, cfg.FUs, cfg.RetireWidth, c.rn)
	return c
}

// Start initializes the front end and primes the fetch address.
func (c *Core) Start(argv []string) error {
	if err := c.cfg.FrontEnd.Init(argv); err != nil {
		return err
	}
	c.fetchAddr = c.cfg.FrontEnd.NextFetchAddr(c.cfg.ProcID)
	return nil
}

// Halted reports whether the core has retired its exit marker.
func (c *Core) Halted() bool { return c.halted }

// ExitCode returns the exit code once Halted is true.
func (c *Core) ExitCode() int64 { return c.exitCode }

// Stats returns a snapshot of the core's performance counters.
func (c *Core) Stats() Stats {
	s := c.stats
	s.Cycles = c.cycle
	return s
}

// ResetStats zeroes every counter except the cycle count, used to honor a
// --clear_stats trigger firing mid-run without restarting the core.
func (c *Core) ResetStats() {
	c.stats = Stats{}
}

// TotalRetired returns the number of ops this core has retired since it
// was created, ignoring any --clear_stats resets. The sim driver uses this
// against --inst_limit, which caps real program progress rather than the
// reported statistics window.
func (c *Core) TotalRetired() uint64 { return c.totalRetired }

// LastRetireCycle returns the cycle number of this core's most recent
// retirement, or zero if it has never retired anything. The simulation
// loop's forward-progress watchdog (§5, §8 P8) compares this against the
// current cycle.
func (c *Core) LastRetireCycle() uint64 { return c.lastRetireCycle }

// StalledHeadOp returns the op currently at the head of the ROB, or nil if
// the ROB is empty. Used by the forward-progress watchdog to name the
// offending op in its deadlock diagnostic.
func (c *Core) StalledHeadOp() *op.Op {
	return c.node.ROB.Head()
}

// Bogus reports whether the core is currently running in bogus-rerun mode
// (§4.8): it keeps issuing memory traffic to preserve interference for
// still-running peers, but no longer contributes to reported statistics.
func (c *Core) Bogus() bool { return c.bogus }

// EnterBogusMode flushes the core's in-flight state and rewinds its front
// end via Resettable, then resumes ticking with stat collection frozen.
// It is only valid for front ends that implement Resettable; trace-driven
// front ends are expected to.
func (c *Core) EnterBogusMode() error {
	r, ok := c.cfg.FrontEnd.(frontend.Resettable)
	if !ok {
		return fmt.Errorf("core: front end does not support bogus rerun")
	}
	if err := r.Reset(); err != nil {
		return fmt.Errorf("core: resetting front end for bogus rerun: %w", err)
	}

	c.flushAfter(0)
	c.icLines = make(map[uint64]bool)
	c.icState = icFetch
	c.timerUntil = 0
	c.halted = false
	c.bogus = true
	c.fetchAddr = c.cfg.FrontEnd.NextFetchAddr(c.cfg.ProcID)

	return nil
}

// Tick advances the core by one cycle, running every stage in the
// reverse-pipeline order described in §5: recovery/redirect firing first
// (so a flush can't contaminate this cycle's scheduling), then retire,
// exec, the node stage's RS/schedule steps, the map/decode queue, and
// finally fetch.
func (c *Core) Tick() {
	if c.halted {
		return
	}

	c.cycle++

	c.handleRecoveryRedirect()
	c.retireStage()
	c.node.RemoveScheduledOps()
	c.execStage()
	c.mem.Advance(c.cycle)
	c.drainPendingExecs()
	c.node.FillRS(c.cycle)
	c.node.Schedule(c.cycle)
	c.mapStage()
	c.fetchStage()
}

func (c *Core) handleRecoveryRedirect() {
	if c.recov.RecoveryDue(c.cycle) {
		rec := c.recov.TakeRecovery()
		c.flushAfter(rec.OpNum)
		if surviving := c.node.ROB.Find(rec.OpNum); surviving != nil {
			surviving.Flags.RecoveryScheduled = false
			surviving.Flags.RedirectScheduled = false
		}
		c.cfg.BPUnit.RecoverOp(rec.CFType, rec.Info)
		c.cfg.FrontEnd.Recover(c.cfg.ProcID, rec.InstUID)
		c.fetchAddr = rec.FetchAddr
		c.icState = icFetch
		c.offPath = false
		if !c.bogus {
			c.stats.Recoveries++
		}
		return
	}

	if c.recov.RedirectDue(c.cycle) {
		red := c.recov.TakeRedirect()
		if surviving := c.node.ROB.Find(red.OpNum); surviving != nil {
			surviving.Flags.RedirectScheduled = false
		}
		c.cfg.FrontEnd.Redirect(c.cfg.ProcID, red.InstUID, red.FetchAddr)
		c.fetchAddr = red.FetchAddr
		if c.icState == icWaitForRedirect || c.icState == icWaitForEmptyROB {
			c.icState = icFetch
		}
		c.offPath = false
		if !c.bogus {
			c.stats.Redirects++
		}
	}
}

// flushAfter discards every op with OpNum > opNum from the node stage and
// the still-in-flight decode queue, freeing each back to the pool. Every
// op sitting in the decode queue was fetched after whatever reached exec
// to trigger this recovery, so the whole queue is always strictly younger
// and gets dropped unconditionally.
func (c *Core) flushAfter(opNum uint64) {
	for _, o := range c.node.FlushAfter(opNum) {
		c.rn.ClearWriter(o)
		_ = c.pool.Free(o)
	}

	for _, entry := range c.decodeQueue {
		c.rn.ClearWriter(entry.o)
		_ = c.pool.Free(entry.o)
	}
	c.decodeQueue = c.decodeQueue[:0]

	kept := c.pendingExecs[:0]
	for _, p := range c.pendingExecs {
		if p.o.OpNum > opNum {
			c.rn.ClearWriter(p.o)
			_ = c.pool.Free(p.o)
			continue
		}
		kept = append(kept, p)
	}
	c.pendingExecs = kept
}

func (c *Core) retireStage() {
	retired, _ := c.node.Retire(c.cycle, func(o *op.Op) {
		c.cfg.BPUnit.RetireOp(o)
		c.cfg.FrontEnd.Retire(c.cfg.ProcID, o.InstUID)
		if !c.bogus {
			c.stats.Retired++
			c.totalRetired++
		}
		_ = c.pool.Free(o)
	}, c.stallReasonFor)

	if retired > 0 {
		c.lastRetireCycle = c.cycle
	}

	if c.node.ROB.Count() == 0 && len(c.decodeQueue) == 0 && !c.cfg.FrontEnd.CanFetchOp(c.cfg.ProcID) {
		if r, ok := c.cfg.FrontEnd.(interface{ Result() (bool, int64) }); ok {
			if exited, code := r.Result(); exited {
				c.halted = true
				c.exitCode = code
			}
		}
	}
}

func (c *Core) stallReasonFor(head *op.Op) node.StallReason {
	switch {
	case head.Flags.RecoveryScheduled:
		return node.StallWaitRecovery
	case head.Flags.RedirectScheduled:
		return node.StallWaitRedirect
	case head.State == op.StateMiss:
		return node.StallWaitDCMiss
	case head.State == op.StateWaitMem:
		return node.StallWaitMemory
	default:
		return node.StallOther
	}
}

func (c *Core) execStage() {
	for fuID, o := range c.node.Scheduled {
		if o == nil {
			continue
		}
		c.node.Scheduled[fuID] = nil

		fu := c.node.FUs[fuID]
		if !fu.CanExecute(o.Static.Kind) {
			panic(&FatalInvariant{Msg: "functional unit type mask does not include op kind", Op: o})
		}

		lat := c.cfg.Table.GetLatencyByKind(o.Static.Kind)
		if lat == 0 {
			lat = 1
		}

		o.ExecCycle = c.cycle
		o.ExecCount++
		fu.AvailCycle = c.cycle + lat
		fu.IdleCycle = c.cycle + lat

		switch o.Static.MemType {
		case insts.MemStore:
			c.execStore(o, lat)
		case insts.MemLoad:
			c.execLoad(o, lat)
		default:
			c.execSimple(o, lat)
		}

		if o.Static.CFType.IsControlFlow() {
			c.resolveBranch(o)
		}
	}
}

func (c *Core) execSimple(o *op.Op, lat uint64) {
	o.State = op.StateScheduled
	doneCycle := c.cycle + lat
	o.DoneCycle = doneCycle
	c.pendingExecs = append(c.pendingExecs, pendingExec{o: o, doneCycle: doneCycle})
}

func (c *Core) execStore(o *op.Op, lat uint64) {
	o.State = op.StateScheduled
	addr := o.Static.Addr
	c.mem.NewMemReq(c.cycle, memsys.ReqStore, addr, 8, 0, func(cache.AccessResult) {
		o.State = op.StateDone
		o.DoneCycle = c.cycle
		for _, dep := range []op.DepType{op.MemAddrDep, op.MemDataDep} {
			for _, w := range op.WakeConsumers(o, dep) {
				c.tryReady(w)
			}
		}
	})
}

func (c *Core) execLoad(o *op.Op, lat uint64) {
	o.State = op.StateMiss
	addr := o.Static.Addr
	accepted := c.mem.NewMemReq(c.cycle, memsys.ReqLoad, addr, 8, 0, func(cache.AccessResult) {
		o.State = op.StateDone
		o.DoneCycle = c.cycle
		for _, w := range op.WakeConsumers(o, op.RegDataDep) {
			c.tryReady(w)
		}
	})
	if !accepted {
		// Request buffer full: reschedule next cycle by reinserting into
		// the ready list with the same RS assignment.
		o.State = op.StateReady
		o.RdyCycle = c.cycle + 1
		c.node.Ready.Push(o)
	}
}

// tryReady moves a woken consumer (WakeConsumers already guarantees its
// SrcsNotRdyVector reached zero) onto the ready list, unless it's already
// there or hasn't been placed in a reservation station yet.
func (c *Core) tryReady(w *op.Op) {
	if w.Flags.InRdyList || w.RSID < 0 {
		return
	}
	switch w.State {
	case op.StateInRS, op.StateWaitFwd:
		w.State = op.StateReady
		c.node.Ready.Push(w)
	}
}

func (c *Core) resolveBranch(o *op.Op) {
	c.cfg.BPUnit.TargetKnownOp(o)
	c.cfg.BPUnit.ResolveOp(o)

	o.Recov.ResolvedDir = o.Oracle.Dir
	o.Recov.ResolvedTgt = o.Oracle.Target

	switch {
	case o.Pred.Mispred:
		if !c.bogus {
			c.stats.Mispredicts++
		}
		c.recov.ScheduleRecovery(o, c.cycle, false, false)
	case o.Pred.Misfetch:
		if !c.bogus {
			c.stats.Misfetches++
		}
		c.recov.ScheduleRedirect(o, c.cycle)
	}

	if c.cfg.BPUnit.HasLateBP() && o.Static.CFType == insts.CFCond &&
		o.Pred.LatePred != o.Pred.Pred && !o.Pred.Mispred {
		c.recov.ScheduleRecovery(o, c.cycle, true, true)
	}
}

// drainPendingExecs completes non-memory ops whose execution latency has
// elapsed, transitioning them to DONE and waking their REG_DATA_DEP
// consumers.
func (c *Core) drainPendingExecs() {
	kept := c.pendingExecs[:0]
	for _, p := range c.pendingExecs {
		if p.doneCycle > c.cycle {
			kept = append(kept, p)
			continue
		}
		p.o.State = op.StateDone
		for _, w := range op.WakeConsumers(p.o, op.RegDataDep) {
			c.tryReady(w)
		}
	}
	c.pendingExecs = kept
}

func (c *Core) mapStage() {
	for len(c.decodeQueue) > 0 {
		front := c.decodeQueue[0]
		if front.readyCycle > c.cycle {
			break
		}

		issued, _ := c.node.IssueIntoROB([]*op.Op{front.o})
		if issued == 0 {
			break
		}

		c.decodeQueue = c.decodeQueue[1:]
		if front.o.Static.Barrier {
			break
		}
	}
}

func (c *Core) fetchStage() {
	switch c.icState {
	case icWaitForEmptyROB:
		if c.node.ROB.Count() != 0 {
			return
		}
		c.icState = icFetch
	case icWaitForMiss, icWaitForRedirect:
		return
	case icWaitForTimer:
		if c.cycle < c.timerUntil {
			return
		}
		c.icState = icFetch
	}

	fetched, cfCount := 0, 0

	for fetched < c.cfg.IssueWidth {
		if !c.cfg.FrontEnd.CanFetchOp(c.cfg.ProcID) {
			break
		}

		addr := c.cfg.FrontEnd.NextFetchAddr(c.cfg.ProcID)
		if addr != c.fetchAddr {
			break
		}

		line := addr &^ (icLineSize - 1)
		if !c.icLines[line] {
			accepted := c.mem.NewMemReq(c.cycle, memsys.ReqIFetch, line, icLineSize, 0, func(cache.AccessResult) {
				c.icLines[line] = true
				if c.icState == icWaitForMiss {
					c.icState = icFetch
				}
			})
			if accepted {
				c.icState = icWaitForMiss
				if !c.bogus {
					c.stats.ICacheMiss++
				}
			}
			return
		}

		o, err := c.pool.Allocate(c.cfg.ProcID)
		if err != nil {
			break
		}

		if err := c.cfg.FrontEnd.FetchOp(c.cfg.ProcID, o); err != nil {
			_ = c.pool.Free(o)
			break
		}

		c.opCounter++
		o.OpNum = c.opCounter
		o.UniqueNum = o.OpNum
		o.FetchCycle = c.cycle
		if !c.bogus {
			c.stats.Fetched++
		}

		o.Flags.OffPath = c.offPath
		predicted := c.cfg.BPUnit.PredictOp(o, c.fetchAddr)
		diverges := o.Pred.Mispred || o.Pred.Misfetch
		if diverges {
			c.offPath = true
		}

		c.rn.Rename(o)
		c.decodeQueue = append(c.decodeQueue, decodeEntry{o: o, readyCycle: c.cycle + c.cfg.MapCycles})

		fetched++
		c.fetchAddr = predicted

		isCF := o.Static.CFType.IsControlFlow()
		if isCF {
			cfCount++
		}

		if diverges {
			c.cfg.FrontEnd.Redirect(c.cfg.ProcID, o.InstUID, predicted)
		}

		switch {
		case o.Static.Barrier:
			c.icState = icWaitForEmptyROB
		case o.Pred.NoTarget:
			c.icState = icWaitForRedirect
		}

		if o.Static.Barrier || o.Pred.NoTarget || diverges {
			return
		}
		if c.cfg.CFSPerCycle > 0 && cfCount >= c.cfg.CFSPerCycle {
			return
		}
		if isCF && o.Pred.Pred {
			return
		}
	}
}
