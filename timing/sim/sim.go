// Package sim provides the global simulation clock: it advances every
// core one cycle at a time, enforces the forward-progress watchdog, and
// implements the multi-core "bogus rerun" policy that lets a core which
// has reached its completion condition keep generating memory-system
// interference for cores still running.
package sim

import (
	"fmt"
	"time"

	"github.com/sarchlab/oocoresim/timing/core"
	"github.com/sarchlab/oocoresim/timing/op"
	"github.com/sarchlab/oocoresim/timing/params"
)

// ForwardProgressError is returned when a core retires nothing for
// ForwardProgressLimit consecutive cycles, the deadlock condition spec §5
// and §8 (P8) require the driver to abort on.
type ForwardProgressError struct {
	ProcID  int
	Cycle   uint64
	HeadOp  *op.Op
}

func (e *ForwardProgressError) Error() string {
	if e.HeadOp == nil {
		return fmt.Sprintf("sim: forward progress watchdog fired for core %d at cycle %d (ROB empty)", e.ProcID, e.Cycle)
	}
	return fmt.Sprintf("sim: forward progress watchdog fired for core %d at cycle %d (ROB head op_num=%d addr=0x%x)",
		e.ProcID, e.Cycle, e.HeadOp.OpNum, e.HeadOp.Static.Addr)
}

// Config bundles the cores and the global knobs the sim loop reads.
type Config struct {
	Cores      []*core.Core
	InstLimits []uint64 // per-core retired-instruction cap, 0 = no cap; see params.Params.InstLimitFor

	SimLimit   params.Trigger
	ClearStats params.Trigger

	ForwardProgressLimit    uint64
	ForwardProgressInterval uint64
}

// Result is the outcome of a completed Run.
type Result struct {
	Cycles    uint64
	Stats     []core.Stats
	ExitCodes []int64
}

// Sim drives every core's Tick in lockstep and owns the cross-core
// bookkeeping the cycle-by-cycle core model doesn't: per-core real/bogus
// completion state, the forward-progress watchdog, and the --sim_limit /
// --clear_stats trigger evaluators.
type Sim struct {
	cfg Config

	cycle uint64

	realDone   []bool
	bogusMode  []bool
	finalStats []core.Stats

	statsCleared bool
	start        time.Time
}

// New builds a Sim ready to Run.
func New(cfg Config) *Sim {
	n := len(cfg.Cores)
	return &Sim{
		cfg:        cfg,
		realDone:   make([]bool, n),
		bogusMode:  make([]bool, n),
		finalStats: make([]core.Stats, n),
	}
}

// Run advances the global clock until --sim_limit fires or every core has
// reached its real completion condition, whichever comes first. A
// *core.FatalInvariant panic from any core's Tick unwinds out of Run as an
// error instead of a panic, matching the fatal-exit-15 contract (§7).
func (s *Sim) Run() (result Result, err error) {
	s.start = time.Now()

	defer func() {
		if r := recover(); r != nil {
			if fi, ok := r.(*core.FatalInvariant); ok {
				err = fi
				return
			}
			panic(r)
		}
	}()

	for {
		s.cycle++

		for i, c := range s.cfg.Cores {
			if s.realDone[i] && !s.bogusMode[i] {
				continue
			}
			c.Tick()
			s.checkCompletion(i, c)
		}

		if s.cycle%max1(s.cfg.ForwardProgressInterval) == 0 {
			if fpErr := s.checkForwardProgress(); fpErr != nil {
				return s.snapshot(), fpErr
			}
		}

		instructions, cycles, timeNS, stats := s.aggregate()

		if !s.statsCleared && s.cfg.ClearStats.Due(instructions, cycles, timeNS, stats) {
			s.clearStats()
			s.statsCleared = true
		}

		if s.cfg.SimLimit.Due(instructions, cycles, timeNS, stats) {
			break
		}
		if s.allRealDone() {
			break
		}
	}

	return s.snapshot(), nil
}

func max1(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	return n
}

// checkCompletion reacts to core i having just finished a tick: a
// first-time real completion (exit reached or --inst_limit hit) snapshots
// stats and, in trace-driven mode, restarts the core in bogus mode (§4.8);
// a bogus core re-reaching the end of its (rewound) stream simply restarts
// bogus mode again.
func (s *Sim) checkCompletion(i int, c *core.Core) {
	limit := uint64(0)
	if i < len(s.cfg.InstLimits) {
		limit = s.cfg.InstLimits[i]
	}
	instLimitHit := limit > 0 && c.TotalRetired() >= limit

	switch {
	case !s.realDone[i] && (c.Halted() || instLimitHit):
		s.finalStats[i] = c.Stats()
		s.realDone[i] = true
		if err := c.EnterBogusMode(); err == nil {
			s.bogusMode[i] = true
		}

	case s.bogusMode[i] && c.Halted():
		_ = c.EnterBogusMode()
	}
}

func (s *Sim) allRealDone() bool {
	for _, d := range s.realDone {
		if !d {
			return false
		}
	}
	return true
}

// checkForwardProgress implements §5 item 5 and §8 P8: any core still
// actively ticking (real or bogus) that hasn't retired anything within the
// last ForwardProgressLimit cycles is a deadlock.
func (s *Sim) checkForwardProgress() *ForwardProgressError {
	for i, c := range s.cfg.Cores {
		if s.realDone[i] && !s.bogusMode[i] {
			continue
		}
		if s.cycle-c.LastRetireCycle() > s.cfg.ForwardProgressLimit {
			return &ForwardProgressError{ProcID: i, Cycle: s.cycle, HeadOp: c.StalledHeadOp()}
		}
	}
	return nil
}

// aggregate sums named per-core counters into the map the generic
// <stat>[k]:N trigger form looks keys up in, alongside the instructions
// and cycles totals the i[k]:N/c[k]:N forms use directly.
func (s *Sim) aggregate() (instructions, cycles, timeNS uint64, stats map[string]uint64) {
	stats = map[string]uint64{
		"retired": 0, "fetched": 0, "mispredicts": 0, "misfetches": 0,
		"recoveries": 0, "redirects": 0, "icachemiss": 0,
	}
	for i, c := range s.cfg.Cores {
		st := c.Stats()
		if s.realDone[i] {
			st = s.finalStats[i]
		}
		instructions += st.Retired
		stats["retired"] += st.Retired
		stats["fetched"] += st.Fetched
		stats["mispredicts"] += st.Mispredicts
		stats["misfetches"] += st.Misfetches
		stats["recoveries"] += st.Recoveries
		stats["redirects"] += st.Redirects
		stats["icachemiss"] += st.ICacheMiss
	}
	return instructions, s.cycle, uint64(time.Since(s.start).Nanoseconds()), stats
}

func (s *Sim) clearStats() {
	for i, c := range s.cfg.Cores {
		if !s.realDone[i] {
			c.ResetStats()
		}
	}
}

func (s *Sim) snapshot() Result {
	res := Result{
		Cycles:    s.cycle,
		Stats:     make([]core.Stats, len(s.cfg.Cores)),
		ExitCodes: make([]int64, len(s.cfg.Cores)),
	}
	for i, c := range s.cfg.Cores {
		if s.realDone[i] {
			res.Stats[i] = s.finalStats[i]
		} else {
			res.Stats[i] = c.Stats()
		}
		res.ExitCodes[i] = c.ExitCode()
	}
	return res
}
