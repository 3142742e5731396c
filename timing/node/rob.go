// Package node implements the node stage: the reorder buffer, reservation
// stations, functional units, and ready list, and the five-step per-cycle
// algorithm (issue into ROB, remove scheduled ops, fill RS, schedule,
// retire) that drives them.
package node

import "github.com/sarchlab/oocoresim/timing/op"

// ROB is a doubly-threaded list of ops in program order, bounded by a
// fixed maximum size.
type ROB struct {
	head, tail *op.Op
	count      int
	maxSize    int
}

// NewROB creates an empty ROB with the given NODE_TABLE_SIZE.
func NewROB(maxSize int) *ROB {
	return &ROB{maxSize: maxSize}
}

// Count returns the number of ops currently in the ROB.
func (r *ROB) Count() int { return r.count }

// Full reports whether the ROB has no free entry.
func (r *ROB) Full() bool { return r.count >= r.maxSize }

// Head returns the oldest op in the ROB, or nil if it's empty.
func (r *ROB) Head() *op.Op { return r.head }

// Tail returns the youngest op in the ROB, or nil if it's empty.
func (r *ROB) Tail() *op.Op { return r.tail }

// PushTail appends o to the ROB, assigning it the next node_id and setting
// in_node_list. The caller is responsible for having already checked Full.
func (r *ROB) PushTail(o *op.Op) {
	o.NodeID = uint64(r.count)
	o.NodeNext = nil
	o.NodePrev = r.tail

	if r.tail != nil {
		r.tail.NodeNext = o
	} else {
		r.head = o
	}
	r.tail = o
	r.count++
	o.Flags.InNodeList = true
}

// PopHead detaches and returns the oldest op in the ROB. It must only be
// called when the ROB is non-empty; maintains the invariant that
// count == 0 implies head == tail == nil.
func (r *ROB) PopHead() *op.Op {
	o := r.head
	if o == nil {
		return nil
	}

	r.head = o.NodeNext
	if r.head != nil {
		r.head.NodePrev = nil
	} else {
		r.tail = nil
	}
	o.NodeNext = nil
	o.NodePrev = nil
	r.count--
	o.Flags.InNodeList = false

	return o
}

// FlushAfter removes and returns every op with OpNum > opNum, in ROB
// order, for recovery-time flush. The ROB is left containing only ops with
// OpNum <= opNum.
func (r *ROB) FlushAfter(opNum uint64) []*op.Op {
	var flushed []*op.Op

	cur := r.head
	for cur != nil {
		next := cur.NodeNext
		if cur.OpNum > opNum {
			r.detach(cur)
			flushed = append(flushed, cur)
		}
		cur = next
	}

	return flushed
}

func (r *ROB) detach(o *op.Op) {
	if o.NodePrev != nil {
		o.NodePrev.NodeNext = o.NodeNext
	} else {
		r.head = o.NodeNext
	}
	if o.NodeNext != nil {
		o.NodeNext.NodePrev = o.NodePrev
	} else {
		r.tail = o.NodePrev
	}
	o.NodeNext = nil
	o.NodePrev = nil
	r.count--
	o.Flags.InNodeList = false
}

// Find returns the op with the given OpNum, or nil if none is present.
func (r *ROB) Find(opNum uint64) *op.Op {
	for cur := r.head; cur != nil; cur = cur.NodeNext {
		if cur.OpNum == opNum {
			return cur
		}
	}
	return nil
}

// Walk calls fn for every op head-to-tail, stopping early if fn returns
// false.
func (r *ROB) Walk(fn func(*op.Op) bool) {
	for cur := r.head; cur != nil; cur = cur.NodeNext {
		if !fn(cur) {
			return
		}
	}
}
