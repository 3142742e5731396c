package node

import "github.com/sarchlab/oocoresim/timing/op"

// ReadyList is a singly-linked list of ops whose SrcsNotRdyVector is zero
// and which are in-RS but not yet scheduled onto a functional unit.
type ReadyList struct {
	head  *op.Op
	count int
}

// Count returns the number of ops on the ready list.
func (l *ReadyList) Count() int { return l.count }

// Push adds o to the ready list and marks it in_rdy_list.
func (l *ReadyList) Push(o *op.Op) {
	o.RdyNext = l.head
	l.head = o
	o.Flags.InRdyList = true
	l.count++
}

// Remove detaches o from the ready list, if present.
func (l *ReadyList) Remove(o *op.Op) {
	if l.head == o {
		l.head = o.RdyNext
		o.RdyNext = nil
		o.Flags.InRdyList = false
		l.count--
		return
	}

	for cur := l.head; cur != nil; cur = cur.RdyNext {
		if cur.RdyNext == o {
			cur.RdyNext = o.RdyNext
			o.RdyNext = nil
			o.Flags.InRdyList = false
			l.count--
			return
		}
	}
}

// Walk calls fn for every op currently on the ready list. fn may call
// Remove on the op it was passed; Walk tolerates removal of the current
// element mid-walk.
func (l *ReadyList) Walk(fn func(*op.Op)) {
	cur := l.head
	for cur != nil {
		next := cur.RdyNext
		fn(cur)
		cur = next
	}
}
