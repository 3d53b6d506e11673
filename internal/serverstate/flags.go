// Package serverstate holds the cross-goroutine shared mutable state named
// in spec.md §5: the atomic flags visible to both the pump and the
// independently-timed stall monitor, and the scratch fields of the active
// transfer.
//
// Grounded on pkg/concurrency/guard.go's single mutex-guarded busy bool,
// generalized to a struct of independent atomic.Bool fields because the
// stall monitor must set InboundStalled concurrently with the receive loop
// reading it — a single mutex around one bool cannot express two
// independently-set flags without serializing one against the other.
package serverstate

import "sync/atomic"

// Flags is the atomic-boolean set from spec.md §5.
type Flags struct {
	Initialized            atomic.Bool
	Listening              atomic.Bool
	Idle                   atomic.Bool
	TransferInProgress     atomic.Bool
	InboundStalled         atomic.Bool
	OutboundStalled        atomic.Bool
	ShutdownInitiated      atomic.Bool
	RetryPreviousTransfer  atomic.Bool
}

func NewFlags() *Flags {
	f := &Flags{}
	f.Idle.Store(true)
	return f
}
