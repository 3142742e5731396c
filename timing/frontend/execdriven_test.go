package frontend_test

import (
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oocoresim/insts"
	"github.com/sarchlab/oocoresim/timing/frontend"
	"github.com/sarchlab/oocoresim/timing/op"
)

var _ = Describe("ExecDriven", func() {
	var elfPath string

	BeforeEach(func() {
		dir, err := os.MkdirTemp("", "execdriven-test")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = os.RemoveAll(dir) })

		elfPath = filepath.Join(dir, "exit.elf")
		// mov x8, #93 ; mov x0, #7 ; svc #0
		writeMinimalARM64ELF(elfPath, 0x400000, 0x400000, []byte{
			0xa8, 0x0b, 0x80, 0xd2,
			0xe0, 0x00, 0x80, 0xd2,
			0x01, 0x00, 0x00, 0xd4,
		})
	})

	It("replays the committed trace in program order with correct oracle fields", func() {
		f := frontend.NewExecDriven(0)
		Expect(f.Init([]string{elfPath})).To(Succeed())

		var addrs []uint64
		for f.CanFetchOp(0) {
			o := &op.Op{}
			Expect(f.FetchOp(0, o)).To(Succeed())
			addrs = append(addrs, o.Static.Addr)

			if o.Static.CFType == insts.CFSys {
				Expect(o.Static.Barrier).To(BeTrue())
			}
		}

		Expect(addrs).To(Equal([]uint64{0x400000, 0x400004, 0x400008}))

		exited, code := f.Result()
		Expect(exited).To(BeTrue())
		Expect(code).To(Equal(int64(7)))
	})

	It("stops offering ops once the trace is exhausted", func() {
		f := frontend.NewExecDriven(0)
		Expect(f.Init([]string{elfPath})).To(Succeed())

		for f.CanFetchOp(0) {
			o := &op.Op{}
			Expect(f.FetchOp(0, o)).To(Succeed())
		}

		Expect(f.CanFetchOp(0)).To(BeFalse())
		var o op.Op
		Expect(f.FetchOp(0, &o)).To(HaveOccurred())
	})

	It("recovers the cursor back to immediately after a given instUID", func() {
		f := frontend.NewExecDriven(0)
		Expect(f.Init([]string{elfPath})).To(Succeed())

		first := &op.Op{}
		Expect(f.FetchOp(0, first)).To(Succeed())
		second := &op.Op{}
		Expect(f.FetchOp(0, second)).To(Succeed())

		f.Recover(0, first.InstUID)
		Expect(f.NextFetchAddr(0)).To(Equal(second.Static.Addr))
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
