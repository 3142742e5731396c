// Package main provides the entry point for oocoresim, a cycle-accurate
// out-of-order multi-core simulator driven by functional-emulation
// traces.
package main

import (
	"fmt"
	"os"

	"github.com/sarchlab/oocoresim/timing/bpred"
	"github.com/sarchlab/oocoresim/timing/cache"
	"github.com/sarchlab/oocoresim/timing/core"
	"github.com/sarchlab/oocoresim/timing/frontend"
	"github.com/sarchlab/oocoresim/timing/latency"
	"github.com/sarchlab/oocoresim/timing/node"
	"github.com/sarchlab/oocoresim/timing/params"
	"github.com/sarchlab/oocoresim/timing/sim"
)

func main() {
	p, err := params.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "oocoresim: %v\n", err)
		os.Exit(1)
	}

	if p.Program == "" {
		fmt.Fprintln(os.Stderr, "Usage: oocoresim [options] <program.elf>")
		os.Exit(1)
	}

	cores := make([]*core.Core, p.NumCores)
	for i := 0; i < p.NumCores; i++ {
		c, buildErr := buildCore(p, i)
		if buildErr != nil {
			fmt.Fprintf(os.Stderr, "oocoresim: core %d: %v\n", i, buildErr)
			os.Exit(1)
		}
		if startErr := c.Start([]string{p.Program}); startErr != nil {
			fmt.Fprintf(os.Stderr, "oocoresim: core %d: %v\n", i, startErr)
			os.Exit(1)
		}
		cores[i] = c
	}

	instLimits := make([]uint64, p.NumCores)
	for i := range instLimits {
		instLimits[i] = p.InstLimitFor(i)
	}

	s := sim.New(sim.Config{
		Cores:                   cores,
		InstLimits:              instLimits,
		SimLimit:                p.SimLimit,
		ClearStats:              p.ClearStats,
		ForwardProgressLimit:    p.ForwardProgressLimit,
		ForwardProgressInterval: p.ForwardProgressInterval,
	})

	result, runErr := s.Run()
	printReport(p, result)

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "oocoresim: %v\n", runErr)
		os.Exit(15)
	}

	os.Exit(0)
}

// buildCore assembles one core's collaborators from p: predictors, the
// node stage's reservation stations and functional units, the memory
// system, and the exec-driven front end. Reservation-station and
// functional-unit layouts fall back to a single fully-connected RS/FU pair
// when the corresponding parameter list is empty.
func buildCore(p *params.Params, procID int) (*core.Core, error) {
	bpUnit, err := buildBPUnit(p)
	if err != nil {
		return nil, err
	}

	fus := buildFUs(p)
	rss := buildRSs(p, len(fus))

	cfg := core.Config{
		ProcID:      procID,
		IssueWidth:  p.IssueWidth,
		CFSPerCycle: p.IssueWidth,
		MapCycles:   p.MapCycles,
		RetireWidth: p.IssueWidth,
		ROBSize:     p.NodeTableSize,
		RSs:         rss,
		FUs:         fus,
		MemCapacity: p.IssueWidth * 4,
		FrontEnd:    frontend.NewExecDriven(p.Warmup),
		BPUnit:      bpUnit,
		Table:       latency.NewTable(),
		Cache:       cache.New(cache.DefaultL1DConfig(), nil),
	}

	return core.NewCore(cfg, 0), nil
}

func buildFUs(p *params.Params) []*node.FU {
	if len(p.FUTypes) == 0 {
		// no --fu_types layout given: one FU that executes every kind.
		return []*node.FU{{ID: 0, TypeMask: ^uint32(0)}}
	}
	fus := make([]*node.FU, len(p.FUTypes))
	for i, mask := range p.FUTypes {
		fus[i] = &node.FU{ID: i, TypeMask: uint32(mask)}
	}
	return fus
}

func buildRSs(p *params.Params, numFUs int) []*node.RS {
	if len(p.RSConnections) == 0 {
		all := make([]int, numFUs)
		for i := range all {
			all[i] = i
		}
		size := 0
		if len(p.RSSizes) > 0 {
			size = p.RSSizes[0]
		}
		return []*node.RS{{ID: 0, Size: size, Connected: all}}
	}

	rss := make([]*node.RS, len(p.RSConnections))
	for i, conns := range p.RSConnections {
		size := 0
		if i < len(p.RSSizes) {
			size = p.RSSizes[i]
		}
		rss[i] = &node.RS{ID: i, Size: size, Connected: conns}
	}
	return rss
}

func buildBPUnit(p *params.Params) (*bpred.Unit, error) {
	// Shared with the Unit itself via WithGlobalHistory, so a gshare
	// predictor built here indexes on the same speculative history the
	// Unit updates on every prediction, not a register of its own.
	hist := new(uint32)

	dirPred, err := directionPredictor(p.BPMech, hist)
	if err != nil {
		return nil, err
	}
	btb, err := btbImpl(p.BTBMech)
	if err != nil {
		return nil, err
	}

	opts := []bpred.Option{bpred.WithGlobalHistory(hist)}
	if p.LateBPMech != "" {
		late, lateErr := directionPredictor(p.LateBPMech, hist)
		if lateErr != nil {
			return nil, lateErr
		}
		opts = append(opts, bpred.WithLateDirectionPredictor(late))
	}
	if p.IBTBMech != "" {
		opts = append(opts, bpred.WithIndirectBTB(bpred.NewDirectMappedIndirectBTB(256)))
	}
	if p.ConfMech != "" {
		opts = append(opts, bpred.WithConfidence(bpred.NewSaturatingConfidence(1024, 3)))
	}
	opts = append(opts, bpred.WithCRS(bpred.NewCRS(16)))

	return bpred.NewUnit(dirPred, btb, opts...), nil
}

func directionPredictor(mech string, hist *uint32) (bpred.DirectionPredictor, error) {
	switch mech {
	case "", "bimodal":
		return bpred.NewBimodalPredictor(4096), nil
	case "gshare":
		return bpred.NewGsharePredictor(4096, 12, hist), nil
	default:
		return nil, fmt.Errorf("unknown direction predictor mechanism %q", mech)
	}
}

func btbImpl(mech string) (bpred.BTB, error) {
	switch mech {
	case "", "direct_mapped":
		return bpred.NewDirectMappedBTB(1024), nil
	default:
		return nil, fmt.Errorf("unknown BTB mechanism %q", mech)
	}
}

func printReport(p *params.Params, res sim.Result) {
	fmt.Printf("Program: %s\n", p.Program)
	fmt.Printf("Cycles: %d\n", res.Cycles)
	for i, st := range res.Stats {
		fmt.Printf("\nCore %d:\n", i)
		fmt.Printf("  Exit code: %d\n", res.ExitCodes[i])
		fmt.Printf("  Retired: %d\n", st.Retired)
		fmt.Printf("  Fetched: %d\n", st.Fetched)
		fmt.Printf("  CPI: %.2f\n", st.CPI())
		fmt.Printf("  Mispredicts: %d\n", st.Mispredicts)
		fmt.Printf("  Misfetches: %d\n", st.Misfetches)
		fmt.Printf("  Recoveries: %d\n", st.Recoveries)
		fmt.Printf("  Redirects: %d\n", st.Redirects)
		fmt.Printf("  I-cache misses: %d\n", st.ICacheMiss)
	}
}
