package core_test

import (
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oocoresim/insts"
	"github.com/sarchlab/oocoresim/timing/bpred"
	"github.com/sarchlab/oocoresim/timing/cache"
	"github.com/sarchlab/oocoresim/timing/core"
	"github.com/sarchlab/oocoresim/timing/frontend"
	"github.com/sarchlab/oocoresim/timing/latency"
	"github.com/sarchlab/oocoresim/timing/node"
)

func newTestCore(argv []string) *core.Core {
	fu := &node.FU{
		ID:       0,
		TypeMask: node.KindMask(insts.KindArithmetic, insts.KindMemory, insts.KindControlFlow, insts.KindSystem, insts.KindSIMD),
	}
	rs := &node.RS{ID: 0, Connected: []int{0}}
	bp := bpred.NewUnit(bpred.NewBimodalPredictor(64), bpred.NewDirectMappedBTB(64))
	table := latency.NewTable()
	c := cache.New(cache.DefaultL1DConfig(), nil)

	cfg := core.Config{
		ProcID:      0,
		IssueWidth:  2,
		CFSPerCycle: 1,
		MapCycles:   1,
		RetireWidth: 2,
		ROBSize:     32,
		RSs:         []*node.RS{rs},
		FUs:         []*node.FU{fu},
		MemCapacity: 8,
		FrontEnd:    frontend.NewExecDriven(0),
		BPUnit:      bp,
		Table:       table,
		Cache:       c,
	}

	co := core.NewCore(cfg, 0)
	Expect(co.Start(argv)).To(Succeed())
	return co
}

func runToHalt(c *core.Core, maxCycles int) {
	for i := 0; i < maxCycles && !c.Halted(); i++ {
		c.Tick()
	}
}

var _ = Describe("Core", func() {
	var elfPath string

	BeforeEach(func() {
		dir, err := os.MkdirTemp("", "core-test")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = os.RemoveAll(dir) })
		elfPath = filepath.Join(dir, "exit.elf")
	})

	It("retires a straight-line exit program and reports its exit code", func() {
		// mov x8, #93 ; mov x0, #7 ; svc #0
		writeMinimalARM64ELF(elfPath, 0x400000, 0x400000, []byte{
			0xa8, 0x0b, 0x80, 0xd2,
			0xe0, 0x00, 0x80, 0xd2,
			0x01, 0x00, 0x00, 0xd4,
		})

		c := newTestCore([]string{elfPath})
		runToHalt(c, 1000)

		Expect(c.Halted()).To(BeTrue())
		Expect(c.ExitCode()).To(Equal(int64(7)))
		Expect(c.Stats().Retired).To(Equal(uint64(3)))
		Expect(c.Stats().Cycles).To(BeNumerically(">", 0))
	})

	It("retires a program that takes a backward branch before exiting", func() {
		// 0x400000: movz x1, #1
		// 0x400004: subs x1, x1, #1
		// 0x400008: b.ne -4 (back to subs)
		// 0x40000c: mov x8, #93
		// 0x400010: mov x0, #0
		// 0x400014: svc #0
		writeMinimalARM64ELF(elfPath, 0x400000, 0x400000, []byte{
			0x21, 0x00, 0x80, 0xd2, // movz x1, #1
			0x21, 0x04, 0x00, 0xf1, // subs x1, x1, #1
			0xe1, 0xff, 0xff, 0x54, // b.ne -4
			0xa8, 0x0b, 0x80, 0xd2, // mov x8, #93
			0x00, 0x00, 0x80, 0xd2, // mov x0, #0
			0x01, 0x00, 0x00, 0xd4, // svc #0
		})

		c := newTestCore([]string{elfPath})
		runToHalt(c, 2000)

		Expect(c.Halted()).To(BeTrue())
		Expect(c.ExitCode()).To(Equal(int64(0)))
		Expect(c.Stats().Retired).To(BeNumerically(">=", uint64(6)))
	})
})

func writeMinimalARM64ELF(path string, loadAddr, entryPoint uint64, code []byte) {
	elfHeader := make([]byte, 64)
	copy(elfHeader[0:4], []byte{0x7f, 'E', 'L', 'F'})
	elfHeader[4] = 2
	elfHeader[5] = 1
	elfHeader[6] = 1
	binary.LittleEndian.PutUint16(elfHeader[16:18], 2)
	binary.LittleEndian.PutUint16(elfHeader[18:20], 183)
	binary.LittleEndian.PutUint32(elfHeader[20:24], 1)
	binary.LittleEndian.PutUint64(elfHeader[24:32], entryPoint)
	binary.LittleEndian.PutUint64(elfHeader[32:40], 64)
	binary.LittleEndian.PutUint64(elfHeader[40:48], 0)
	binary.LittleEndian.PutUint32(elfHeader[48:52], 0)
	binary.LittleEndian.PutUint16(elfHeader[52:54], 64)
	binary.LittleEndian.PutUint16(elfHeader[54:56], 56)
	binary.LittleEndian.PutUint16(elfHeader[56:58], 1)
	binary.LittleEndian.PutUint16(elfHeader[58:60], 64)
	binary.LittleEndian.PutUint16(elfHeader[60:62], 0)
	binary.LittleEndian.PutUint16(elfHeader[62:64], 0)

	progHeader := make([]byte, 56)
	binary.LittleEndian.PutUint32(progHeader[0:4], 1)
	binary.LittleEndian.PutUint32(progHeader[4:8], 0x5)
	binary.LittleEndian.PutUint64(progHeader[8:16], 120)
	binary.LittleEndian.PutUint64(progHeader[16:24], loadAddr)
	binary.LittleEndian.PutUint64(progHeader[24:32], loadAddr)
	binary.LittleEndian.PutUint64(progHeader[32:40], uint64(len(code)))
	binary.LittleEndian.PutUint64(progHeader[40:48], uint64(len(code)))
	binary.LittleEndian.PutUint64(progHeader[48:56], 0x1000)

	data := append(elfHeader, progHeader...)
	data = append(data, code...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		panic(err)
	}
}
