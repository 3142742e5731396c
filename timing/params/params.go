// Package params implements the simulator's command-line parameter
// surface (spec §6): environment variables, an optional PARAMS.in file in
// the working directory, and command-line flags, applied in that order of
// increasing precedence.
package params

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// flagSpec describes one parameter: its flag name, default raw value, and
// usage string. Every parameter is parsed as a string first so the three
// sources (env, file, flag) can be layered before any type conversion
// happens.
type flagSpec struct {
	name  string
	def   string
	usage string
}

var flagSpecs = []flagSpec{
	{"inst_limit", "0", "per-core retired-instruction cap, \"N[,N...]\""},
	{"sim_limit", "none", "global stop trigger: none|i[k]:N|c[k]:N|t:N|<stat>[k]:N"},
	{"clear_stats", "none", "stats-reset trigger, same grammar as sim_limit"},
	{"warmup", "0", "uop-mode warmup instruction count"},
	{"num_cores", "1", "simulated core count (1-32)"},
	{"issue_width", "4", "fetch/issue width per cycle"},
	{"node_table_size", "128", "ROB size (entries)"},
	{"map_cycles", "1", "decode/map pipeline depth in cycles"},
	{"rs_sizes", "", "reservation station sizes, \"a,b,...\" (empty = one unbounded RS)"},
	{"rs_connections", "", "per-RS connected-FU bitmask, \"mask,mask,...\" (empty = one RS wired to every FU)"},
	{"fu_types", "", "per-FU op-kind type mask, \"mask,mask,...\" (empty = one FU that executes every kind)"},
	{"bp_mech", "bimodal", "direction predictor: bimodal|gshare"},
	{"late_bp_mech", "", "late-stage direction predictor (empty disables)"},
	{"btb_mech", "direct_mapped", "BTB implementation"},
	{"ibtb_mech", "", "indirect BTB implementation (empty disables)"},
	{"conf_mech", "", "confidence predictor (empty disables)"},
	{"extra_recovery_cycles", "1", "cycles added to a mispredict's detection cycle before recovery fires"},
	{"extra_redirect_cycles", "1", "cycles added before a redirect-only event fires"},
	{"extra_callsys_cycles", "2", "extra redirect latency for system-call ops"},
	{"late_bp_latency", "3", "cycles from early prediction to late-predictor resolution"},
	{"forward_progress_limit", "100000", "cycles without a retirement before the watchdog fires"},
	{"forward_progress_interval", "1000", "cycles between forward-progress watchdog checks"},
}

// Params is the fully parsed, typed parameter set consumed by the sim
// driver.
type Params struct {
	Program string

	InstLimit     []uint64
	SimLimit      Trigger
	ClearStats    Trigger
	Warmup        uint64
	NumCores      int
	IssueWidth    int
	NodeTableSize int
	MapCycles     uint64
	RSSizes       []int
	RSConnections [][]int
	FUTypes       []uint64

	BPMech     string
	LateBPMech string
	BTBMech    string
	IBTBMech   string
	ConfMech   string

	ExtraRecoveryCycles     uint64
	ExtraRedirectCycles     uint64
	ExtraCallsysCycles      uint64
	LateBPLatency           uint64
	ForwardProgressLimit    uint64
	ForwardProgressInterval uint64
}

// Parse builds a Params from argv, layering environment variables, an
// optional PARAMS.in file in the current directory, and argv itself, in
// that order of increasing precedence. The first non-flag token in argv,
// if any, is taken as the program-under-test's ELF path.
func Parse(argv []string) (*Params, error) {
	raw := make(map[string]string, len(flagSpecs))
	for _, s := range flagSpecs {
		raw[s.name] = s.def
	}

	applyEnv(raw)
	if err := applyParamsFile(raw, "PARAMS.in"); err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("oocoresim", flag.ContinueOnError)
	vals := make(map[string]*string, len(flagSpecs))
	for _, s := range flagSpecs {
		vals[s.name] = fs.String(s.name, raw[s.name], s.usage)
	}
	if err := fs.Parse(argv); err != nil {
		return nil, fmt.Errorf("params: parsing flags: %w", err)
	}

	p := &Params{}
	if fs.NArg() > 0 {
		p.Program = fs.Arg(0)
	}

	var err error
	if p.InstLimit, err = parseUint64List(*vals["inst_limit"]); err != nil {
		return nil, err
	}
	if p.SimLimit, err = ParseTrigger(*vals["sim_limit"]); err != nil {
		return nil, err
	}
	if p.ClearStats, err = ParseTrigger(*vals["clear_stats"]); err != nil {
		return nil, err
	}
	if p.Warmup, err = strconv.ParseUint(*vals["warmup"], 10, 64); err != nil {
		return nil, fmt.Errorf("params: warmup: %w", err)
	}
	if p.NumCores, err = strconv.Atoi(*vals["num_cores"]); err != nil {
		return nil, fmt.Errorf("params: num_cores: %w", err)
	}
	if p.NumCores <= 0 || p.NumCores > 32 {
		return nil, fmt.Errorf("params: num_cores must be in [1,32], got %d", p.NumCores)
	}
	if p.IssueWidth, err = strconv.Atoi(*vals["issue_width"]); err != nil {
		return nil, fmt.Errorf("params: issue_width: %w", err)
	}
	if p.NodeTableSize, err = strconv.Atoi(*vals["node_table_size"]); err != nil {
		return nil, fmt.Errorf("params: node_table_size: %w", err)
	}
	if p.MapCycles, err = strconv.ParseUint(*vals["map_cycles"], 10, 64); err != nil {
		return nil, fmt.Errorf("params: map_cycles: %w", err)
	}
	if p.RSSizes, err = parseIntList(*vals["rs_sizes"]); err != nil {
		return nil, err
	}
	if p.RSConnections, err = parseConnectionLists(*vals["rs_connections"]); err != nil {
		return nil, err
	}
	if p.FUTypes, err = parseUint64List(*vals["fu_types"]); err != nil {
		return nil, err
	}

	p.BPMech = *vals["bp_mech"]
	p.LateBPMech = *vals["late_bp_mech"]
	p.BTBMech = *vals["btb_mech"]
	p.IBTBMech = *vals["ibtb_mech"]
	p.ConfMech = *vals["conf_mech"]

	if p.ExtraRecoveryCycles, err = strconv.ParseUint(*vals["extra_recovery_cycles"], 10, 64); err != nil {
		return nil, fmt.Errorf("params: extra_recovery_cycles: %w", err)
	}
	if p.ExtraRedirectCycles, err = strconv.ParseUint(*vals["extra_redirect_cycles"], 10, 64); err != nil {
		return nil, fmt.Errorf("params: extra_redirect_cycles: %w", err)
	}
	if p.ExtraCallsysCycles, err = strconv.ParseUint(*vals["extra_callsys_cycles"], 10, 64); err != nil {
		return nil, fmt.Errorf("params: extra_callsys_cycles: %w", err)
	}
	if p.LateBPLatency, err = strconv.ParseUint(*vals["late_bp_latency"], 10, 64); err != nil {
		return nil, fmt.Errorf("params: late_bp_latency: %w", err)
	}
	if p.ForwardProgressLimit, err = strconv.ParseUint(*vals["forward_progress_limit"], 10, 64); err != nil {
		return nil, fmt.Errorf("params: forward_progress_limit: %w", err)
	}
	if p.ForwardProgressInterval, err = strconv.ParseUint(*vals["forward_progress_interval"], 10, 64); err != nil {
		return nil, fmt.Errorf("params: forward_progress_interval: %w", err)
	}

	return p, nil
}

// InstLimitFor returns the retired-instruction cap for core i (0 means no
// cap), falling back to the last entry in InstLimit when fewer limits than
// cores were supplied, and 0 when InstLimit is empty.
func (p *Params) InstLimitFor(i int) uint64 {
	if len(p.InstLimit) == 0 {
		return 0
	}
	if i < len(p.InstLimit) {
		return p.InstLimit[i]
	}
	return p.InstLimit[len(p.InstLimit)-1]
}

func applyEnv(raw map[string]string) {
	for _, s := range flagSpecs {
		key := "OOCORESIM_" + strings.ToUpper(s.name)
		if v, ok := os.LookupEnv(key); ok {
			raw[s.name] = v
		}
	}
}

// applyParamsFile merges a PARAMS.in file, if present, into raw. Lines are
// "--key value"; blank lines and lines starting with "#" are ignored. A
// missing file is not an error.
func applyParamsFile(raw map[string]string, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("params: opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "--")
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			return fmt.Errorf("params: %s: malformed line %q", path, line)
		}
		key, val := fields[0], strings.TrimSpace(fields[1])
		if _, known := raw[key]; !known {
			return fmt.Errorf("params: %s: unknown parameter %q", path, key)
		}
		raw[key] = val
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("params: reading %s: %w", path, err)
	}
	return nil
}

func parseUint64List(s string) ([]uint64, error) {
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	out := make([]uint64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("params: parsing %q as a uint64 list: %w", s, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseIntList(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("params: parsing %q as an int list: %w", s, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// parseConnectionLists parses "mask,mask,..." into one []int of connected
// FU indices per reservation station, by expanding each mask's set bits.
func parseConnectionLists(s string) ([][]int, error) {
	masks, err := parseUint64List(s)
	if err != nil {
		return nil, fmt.Errorf("params: parsing rs_connections: %w", err)
	}
	out := make([][]int, 0, len(masks))
	for _, mask := range masks {
		var conns []int
		for bit := 0; bit < 64; bit++ {
			if mask&(1<<uint(bit)) != 0 {
				conns = append(conns, bit)
			}
		}
		out = append(out, conns)
	}
	return out, nil
}
