package params

import (
	"fmt"
	"strconv"
	"strings"
)

// TriggerKind names which counter a Trigger compares against.
type TriggerKind int

// Trigger kinds.
const (
	TriggerNone TriggerKind = iota
	TriggerInst
	TriggerCycle
	TriggerTime
	TriggerStat
)

// Trigger is a parsed `--sim_limit`/`--clear_stats` condition: fire once a
// named counter reaches N, where N may carry a "k" (×1000) suffix on the
// counter's key.
type Trigger struct {
	Kind TriggerKind
	Stat string // populated, lower-cased, when Kind == TriggerStat
	N    uint64
}

// ParseTrigger parses the `none | i[k]:N | c[k]:N | t:N | <stat>[k]:N`
// grammar shared by `--sim_limit` and `--clear_stats`.
func ParseTrigger(s string) (Trigger, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "none" {
		return Trigger{Kind: TriggerNone}, nil
	}

	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Trigger{}, fmt.Errorf("params: malformed trigger %q, want key[:k]:N", s)
	}

	key := strings.ToLower(parts[0])
	kilo := strings.HasSuffix(key, "k")
	key = strings.TrimSuffix(key, "k")

	n, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Trigger{}, fmt.Errorf("params: trigger %q: %w", s, err)
	}
	if kilo {
		n *= 1000
	}

	switch key {
	case "i":
		return Trigger{Kind: TriggerInst, N: n}, nil
	case "c":
		return Trigger{Kind: TriggerCycle, N: n}, nil
	case "t":
		return Trigger{Kind: TriggerTime, N: n}, nil
	case "":
		return Trigger{}, fmt.Errorf("params: trigger %q has an empty stat key", s)
	default:
		return Trigger{Kind: TriggerStat, Stat: key, N: n}, nil
	}
}

// Due reports whether the trigger fires given the aggregate simulation
// counters. stats carries every named counter the sim loop tracks
// (lower-cased keys), used for the generic <stat>[k]:N form.
func (t Trigger) Due(instructions, cycles, timeNS uint64, stats map[string]uint64) bool {
	switch t.Kind {
	case TriggerNone:
		return false
	case TriggerInst:
		return instructions >= t.N
	case TriggerCycle:
		return cycles >= t.N
	case TriggerTime:
		return timeNS >= t.N
	case TriggerStat:
		return stats[t.Stat] >= t.N
	default:
		return false
	}
}

// String renders the trigger back into its grammar form, mainly for
// diagnostics.
func (t Trigger) String() string {
	switch t.Kind {
	case TriggerNone:
		return "none"
	case TriggerInst:
		return fmt.Sprintf("i:%d", t.N)
	case TriggerCycle:
		return fmt.Sprintf("c:%d", t.N)
	case TriggerTime:
		return fmt.Sprintf("t:%d", t.N)
	case TriggerStat:
		return fmt.Sprintf("%s:%d", t.Stat, t.N)
	default:
		return "none"
	}
}
