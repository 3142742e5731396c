// Package frontend provides the core's upstream collaborator: the
// pluggable source of the dynamic instruction stream. A FrontEnd supplies
// ops to fetch, accepts redirects down speculative paths, and is notified
// of recovery and retirement so it can keep its own notion of "current
// position" consistent with the core's.
package frontend

import "github.com/sarchlab/oocoresim/timing/op"

// DoneFlags reports how a core finished, passed to FrontEnd.Done.
type DoneFlags struct {
	Exited   bool
	ExitCode int64
}

// Resettable is an optional FrontEnd capability used by the multi-core
// "bogus rerun" policy: a finished core's front end rewinds to the start
// of its stream so the core can keep issuing memory traffic as
// interference for still-running cores, without re-deriving oracle state.
type Resettable interface {
	Reset() error
}

// FrontEnd is the core's only upstream input. A single implementation is
// selected at startup and driven exclusively by the core's fetch stage.
type FrontEnd interface {
	// Init is called once before the first fetch.
	Init(argv []string) error

	// NextFetchAddr returns the next address the core should fetch from.
	NextFetchAddr(procID int) uint64

	// CanFetchOp reports whether an op is available right now.
	CanFetchOp(procID int) bool

	// FetchOp populates o's Static and Oracle fields for the op at
	// NextFetchAddr, and advances the front-end's instruction cursor.
	FetchOp(procID int, o *op.Op) error

	// Redirect forces the front-end down a speculative path starting at
	// fetchAddr, following the op identified by instUID.
	Redirect(procID int, instUID uint64, fetchAddr uint64)

	// Recover rolls the front-end's cursor back to immediately after
	// instUID, discarding any speculative position taken by Redirect.
	Recover(procID int, instUID uint64)

	// Retire marks instUID as committed.
	Retire(procID int, instUID uint64)

	// Done is called once when the core finishes simulating.
	Done(procID int, flags DoneFlags)
}
