package frontend

import (
	"fmt"

	"github.com/sarchlab/oocoresim/emu"
	"github.com/sarchlab/oocoresim/insts"
	"github.com/sarchlab/oocoresim/loader"
	"github.com/sarchlab/oocoresim/timing/op"
)

// instSize is the fixed instruction width of the ARM64 subset this
// simulator decodes.
const instSize = 4

// traceEntry is one committed dynamic instruction: what the functional
// emulator actually did when it executed the instruction at addr.
type traceEntry struct {
	addr   uint64
	inst   *insts.Instruction
	dir    bool
	target uint64
	npc    uint64
	va     uint64
}

// ExecDriven is a FrontEnd backed by a single up-front functional
// emulation pass over an ELF program. It is "execution-driven" in the
// sense that every oracle field comes from actually running the program,
// not from a pre-recorded trace file; unlike a true speculative
// execution-driven front end, it does not execute down wrong-path
// instruction streams, since doing so would require re-deriving ARM64
// semantics for arbitrary, possibly invalid, register state. Wrong-path
// fetches for addresses outside the committed trace simply stall
// (CanFetchOp reports false) until the core recovers back onto the
// correct path — a core's speculative window never outruns the true
// program by more than the distance between a misprediction and its
// recovery, so this never starves progress.
type ExecDriven struct {
	instLimit uint64
	trace     []traceEntry
	cursor    int

	exited   bool
	exitCode int64
}

// NewExecDriven creates a front end that will emulate at most instLimit
// instructions (0 means no limit) once Init is called.
func NewExecDriven(instLimit uint64) *ExecDriven {
	return &ExecDriven{instLimit: instLimit}
}

// Init loads the ELF binary named by argv[0] and runs it functionally to
// completion (or instLimit), recording the committed instruction trace
// FetchOp replays.
func (f *ExecDriven) Init(argv []string) error {
	if len(argv) < 1 {
		return fmt.Errorf("exec-driven front end: need a program path")
	}

	prog, err := loader.Load(argv[0])
	if err != nil {
		return fmt.Errorf("exec-driven front end: loading program: %w", err)
	}

	mem := emu.NewMemory()
	for _, seg := range prog.Segments {
		for i, b := range seg.Data {
			mem.Write8(seg.VirtAddr+uint64(i), b)
		}
		for i := uint64(len(seg.Data)); i < seg.MemSize; i++ {
			mem.Write8(seg.VirtAddr+i, 0)
		}
	}

	e := emu.NewEmulator(
		emu.WithStackPointer(prog.InitialSP),
		emu.WithMaxInstructions(f.instLimit),
	)
	e.LoadProgram(prog.EntryPoint, mem)

	dec := insts.NewDecoder()

	for f.instLimit == 0 || uint64(len(f.trace)) < f.instLimit {
		pc := e.RegFile().PC
		word := e.Memory().Read32(pc)
		inst := dec.Decode(word)

		result := e.Step()
		npc := e.RegFile().PC

		entry := traceEntry{addr: pc, inst: inst, npc: npc, target: pc + instSize}
		if insts.ClassifyCFType(inst).IsControlFlow() {
			entry.dir = npc != pc+instSize
			if entry.dir {
				entry.target = npc
			}
		}
		f.trace = append(f.trace, entry)

		if result.Exited {
			f.exited = true
			f.exitCode = result.ExitCode
			break
		}
		if result.Err != nil {
			break
		}
	}

	return nil
}

// Reset implements Resettable: it rewinds the cursor to the start of the
// already-recorded trace so a finished core can be restarted in bogus mode
// without re-running the functional emulation pass.
func (f *ExecDriven) Reset() error {
	f.cursor = 0
	return nil
}

// Result reports how the underlying emulation run finished. It is not
// part of the FrontEnd interface: callers that need it (the sim driver,
// for the final exit code) type-assert for it the way callers check for
// io.Closer.
func (f *ExecDriven) Result() (exited bool, exitCode int64) {
	return f.exited, f.exitCode
}

// NextFetchAddr implements FrontEnd.
func (f *ExecDriven) NextFetchAddr(procID int) uint64 {
	if f.cursor >= len(f.trace) {
		return 0
	}
	return f.trace[f.cursor].addr
}

// CanFetchOp implements FrontEnd.
func (f *ExecDriven) CanFetchOp(procID int) bool {
	return f.cursor < len(f.trace)
}

// FetchOp implements FrontEnd.
func (f *ExecDriven) FetchOp(procID int, o *op.Op) error {
	if f.cursor >= len(f.trace) {
		return fmt.Errorf("exec-driven front end: no op available at cursor %d", f.cursor)
	}

	e := f.trace[f.cursor]
	srcs, dsts := registerOperands(e.inst)

	o.Static = &op.StaticInfo{
		Addr:     e.addr,
		InstSize: instSize,
		Kind:     insts.ClassifyOpKind(e.inst),
		MemType:  insts.ClassifyMemType(e.inst),
		CFType:   insts.ClassifyCFType(e.inst),
		Barrier:  e.inst.Op == insts.OpSVC,
		Inst:     e.inst,
	}
	copy(o.Static.SrcRegs[:], srcs)
	o.Static.NumSrcRegs = len(srcs)
	copy(o.Static.DstRegs[:], dsts)
	o.Static.NumDstRegs = len(dsts)

	o.Oracle = op.OracleInfo{Dir: e.dir, Target: e.target, NPC: e.npc, VA: e.va}
	o.InstUID = uint64(f.cursor)

	f.cursor++
	return nil
}

// Redirect implements FrontEnd. It looks for fetchAddr in the committed
// trace after instUID (the redirect landed back on the correct path, the
// common case for a BTB-trained or correctly-resolved target) and resumes
// there; otherwise the front end has nothing to offer until Recover pulls
// it back onto the correct path.
func (f *ExecDriven) Redirect(procID int, instUID uint64, fetchAddr uint64) {
	for i := int(instUID) + 1; i < len(f.trace); i++ {
		if f.trace[i].addr == fetchAddr {
			f.cursor = i
			return
		}
	}
	f.cursor = len(f.trace)
}

// Recover implements FrontEnd: roll the cursor back to immediately after
// instUID.
func (f *ExecDriven) Recover(procID int, instUID uint64) {
	f.cursor = int(instUID) + 1
	if f.cursor > len(f.trace) {
		f.cursor = len(f.trace)
	}
}

// Retire implements FrontEnd. The execution-driven front end has already
// committed every architectural effect up front, so retirement is purely
// informational here.
func (f *ExecDriven) Retire(procID int, instUID uint64) {}

// Done implements FrontEnd.
func (f *ExecDriven) Done(procID int, flags DoneFlags) {}

// registerOperands derives the architectural source and destination
// registers an instruction reads and writes, for rename-table purposes.
// Register 31 is never tracked: on every encoding path it is either XZR
// (always zero, never a real producer) or an SP reference folded into the
// addressing mode, neither of which rename needs to track.
func registerOperands(inst *insts.Instruction) (srcs, dsts []uint8) {
	memType := insts.ClassifyMemType(inst)
	cfType := insts.ClassifyCFType(inst)

	switch {
	case memType == insts.MemStore:
		srcs = appendArchReg(srcs, inst.Rn, inst.Rd)
		if inst.Op == insts.OpSTP {
			srcs = appendArchReg(srcs, inst.Rt2)
		}

	case memType == insts.MemLoad:
		srcs = appendArchReg(srcs, inst.Rn)
		dsts = appendArchReg(dsts, inst.Rd)
		if inst.Op == insts.OpLDP {
			dsts = appendArchReg(dsts, inst.Rt2)
		}

	case cfType == insts.CFIndirect:
		srcs = appendArchReg(srcs, inst.Rn)

	case cfType == insts.CFIndirectCall:
		srcs = appendArchReg(srcs, inst.Rn)
		dsts = appendArchReg(dsts, 30)

	case cfType == insts.CFCall:
		dsts = appendArchReg(dsts, 30)

	case cfType.IsControlFlow():
		// BCond/RET/B/SVC carry no general-purpose register operands here.

	default:
		srcs = appendArchReg(srcs, inst.Rn)
		if inst.Format == insts.FormatDPReg {
			srcs = appendArchReg(srcs, inst.Rm)
		}
		dsts = appendArchReg(dsts, inst.Rd)
	}

	return srcs, dsts
}

func appendArchReg(regs []uint8, r ...uint8) []uint8 {
	for _, reg := range r {
		if reg == 31 {
			continue
		}
		regs = append(regs, reg)
	}
	return regs
}
