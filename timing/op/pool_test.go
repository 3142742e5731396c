package op_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oocoresim/timing/op"
)

var _ = Describe("Pool", func() {
	var pool *op.Pool

	BeforeEach(func() {
		pool = op.NewPool(0)
	})

	It("allocates ops reset to defaults", func() {
		o, err := pool.Allocate(3)
		Expect(err).NotTo(HaveOccurred())
		Expect(o.ProcID).To(Equal(3))
		Expect(o.State).To(Equal(op.StateFetched))
		Expect(o.FetchCycle).To(Equal(op.NeverCycle))
		Expect(o.Flags.OffPath).To(BeFalse())
		Expect(o.ExecCount).To(Equal(0))
	})

	It("tracks active_ops and never lets it go negative", func() {
		o, err := pool.Allocate(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(pool.ActiveOps()).To(Equal(int64(1)))

		Expect(pool.Free(o)).To(Succeed())
		Expect(pool.ActiveOps()).To(Equal(int64(0)))
	})

	It("treats double-free as fatal", func() {
		o, err := pool.Allocate(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(pool.Free(o)).To(Succeed())

		err = pool.Free(o)
		Expect(err).To(HaveOccurred())
		Expect(err).To(BeAssignableToTypeOf(&op.FatalError{}))
	})

	It("assigns stable pool identifiers across reuse", func() {
		o1, _ := pool.Allocate(0)
		id1 := o1.PoolID()
		Expect(pool.Free(o1)).To(Succeed())

		o2, _ := pool.Allocate(0)
		Expect(o2.PoolID()).To(Equal(id1))
	})

	It("grows by the fixed increment when exhausted", func() {
		var allocated []*op.Op
		for i := 0; i < op.PoolGrowthIncrement+1; i++ {
			o, err := pool.Allocate(0)
			Expect(err).NotTo(HaveOccurred())
			allocated = append(allocated, o)
		}
		Expect(pool.ActiveOps()).To(Equal(int64(op.PoolGrowthIncrement + 1)))
	})

	It("keeps earlier ops valid after a second growth reallocates no storage", func() {
		first, err := pool.Allocate(0)
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 2*op.PoolGrowthIncrement; i++ {
			_, err := pool.Allocate(0)
			Expect(err).NotTo(HaveOccurred())
		}

		Expect(pool.Free(first)).To(Succeed())
	})

	It("fails pool growth past a configured bound", func() {
		bounded := op.NewPool(op.PoolGrowthIncrement)
		for i := 0; i < op.PoolGrowthIncrement; i++ {
			_, err := bounded.Allocate(0)
			Expect(err).NotTo(HaveOccurred())
		}
		_, err := bounded.Allocate(0)
		Expect(err).To(HaveOccurred())
	})
})
