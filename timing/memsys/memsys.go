// Package memsys provides the core's one memory-hierarchy primitive:
// new_mem_req plus an asynchronous completion callback. The cache/DRAM
// policy behind it is a collaborator (timing/cache.Cache here); this
// package only owns the request/completion plumbing — the fill-queue that
// makes a synchronous cache lookup resolve on a cycle in the future rather
// than immediately, the way a real memory system's fill_callback fires
// asynchronously relative to the cycle a request was issued on.
package memsys

import "github.com/sarchlab/oocoresim/timing/cache"

// ReqKind names the kind of memory request being issued.
type ReqKind int

// Request kinds.
const (
	ReqIFetch ReqKind = iota
	ReqLoad
	ReqStore
)

// FillCallback is invoked once a request completes, with the result of the
// underlying cache access.
type FillCallback func(result cache.AccessResult)

type pendingReq struct {
	completeCycle uint64
	result        cache.AccessResult
	callback      FillCallback
}

// System models the memory-request buffer and fill-queue in front of one
// cache. A fixed-capacity buffer models "request buffer full" as a
// recoverable stall condition (§7.2): NewMemReq returns false instead of
// queuing when the buffer is saturated.
type System struct {
	cache    *cache.Cache
	capacity int
	pending  []pendingReq
}

// NewSystem creates a System backed by the given cache, with a request
// buffer holding up to capacity in-flight requests.
func NewSystem(c *cache.Cache, capacity int) *System {
	if capacity <= 0 {
		capacity = 16
	}
	return &System{cache: c, capacity: capacity}
}

// NewMemReq issues a memory request of the given kind against addr/size,
// to be resolved (reads) or applied (writes) against the underlying cache.
// The access itself is performed immediately against the cache's tag/data
// arrays (so hit/miss state updates right away, matching a real memory
// system's timing-independent tag lookup), but the caller is only notified
// of completion once the corresponding latency has elapsed, via callback
// at cycle `now + result.Latency`. Returns false, performing no caching
// side effect, if the request buffer is full.
func (s *System) NewMemReq(now uint64, kind ReqKind, addr uint64, size int, storeData uint64, callback FillCallback) bool {
	if len(s.pending) >= s.capacity {
		return false
	}

	var result cache.AccessResult
	switch kind {
	case ReqStore:
		result = s.cache.Write(addr, size, storeData)
	default:
		result = s.cache.Read(addr, size)
	}

	s.pending = append(s.pending, pendingReq{
		completeCycle: now + result.Latency,
		result:        result,
		callback:      callback,
	})

	return true
}

// Advance drains every pending request whose completion cycle has arrived,
// invoking its callback, and returns the number drained. It must be called
// once per cycle so in-flight requests resolve in issue order per address
// (ties broken by queue position, matching a FIFO fill queue).
func (s *System) Advance(now uint64) int {
	drained := 0
	remaining := s.pending[:0]

	for _, req := range s.pending {
		if req.completeCycle <= now {
			req.callback(req.result)
			drained++
			continue
		}
		remaining = append(remaining, req)
	}

	s.pending = remaining
	return drained
}

// Pending returns the number of in-flight requests.
func (s *System) Pending() int {
	return len(s.pending)
}

// Full reports whether the request buffer currently has no free slot.
func (s *System) Full() bool {
	return len(s.pending) >= s.capacity
}
