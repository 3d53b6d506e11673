// Package requestqueue implements the Queue/Archive pair from spec.md §3:
// an ordered queue of received-but-not-yet-processed messages and an
// archive of messages whose handler has returned, with the invariant that
// a message id is never a member of both at once.
//
// Grounded on pkg/transfer/unified_manager.go's map-backed, mutex-guarded
// file queue (pendingFiles/completedFiles/failedFiles, moveFileInQueue),
// generalized from a three-state file queue to a two-state message queue.
package requestqueue

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kvothe17/peerengine/internal/eventlog"
	"github.com/kvothe17/peerengine/internal/wire"
)

var (
	// ErrAlreadyProcessed is returned by ProcessByID when id names a
	// message already moved to the archive.
	ErrAlreadyProcessed = errors.New("requestqueue: message already processed")
	// ErrInvalidID is returned by ProcessByID when id names no known
	// message, in either queue or archive.
	ErrInvalidID = errors.New("requestqueue: invalid message id")
	// ErrBusy is returned by ProcessByID when the queue is not idle.
	ErrBusy = errors.New("requestqueue: not idle")
)

// Message is the queued unit of work, per spec.md §3.
type Message struct {
	ID       uint32
	Type     wire.MessageType
	Body     wire.Body
	RemoteIP string
	Events   []eventlog.ServerEvent // attached when the handler returns, see listener.go
}

// Queue holds Messages the pump has received but not yet dispatched. A
// Message moves from Queue to Archive exactly once, never back.
//
// Assumes lock already held by caller for removePending, matching the documentation style of unified_manager.go's queue helpers.
type Queue struct {
	mu       sync.Mutex
	nextID   uint32
	pending  []uint32
	byID     map[uint32]*Message
	archived map[uint32]*Message
	idle     bool
}

func New() *Queue {
	return &Queue{
		nextID:   1,
		byID:     make(map[uint32]*Message),
		archived: make(map[uint32]*Message),
		idle:     true,
	}
}

// Enqueue assigns the next strictly-increasing id to msg and appends it to
// the queue. The id starts at 1 and is never reused, per spec.md §3.
func (q *Queue) Enqueue(msg *Message) uint32 {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.nextID
	q.nextID++
	msg.ID = id
	q.byID[id] = msg
	q.pending = append(q.pending, id)
	return id
}

// Idle reports whether the queue is between requests.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.idle
}

// ProcessNext pops the oldest queued message of a deferrable type (see
// wire.MessageType.MustProcessImmediately) and hands it to fn while idle is
// false, archiving it when fn returns. Messages of immediate types are
// skipped: the pump dispatches those itself and archives them through
// ProcessByID. It is a no-op returning (0, false, nil) when no deferrable
// message is queued.
func (q *Queue) ProcessNext(fn func(*Message) error) (id uint32, ran bool, err error) {
	q.mu.Lock()
	var msg *Message
	for _, p := range q.pending {
		if m := q.byID[p]; !m.Type.MustProcessImmediately() {
			id, msg = p, m
			break
		}
	}
	if msg == nil {
		q.mu.Unlock()
		return 0, false, nil
	}
	q.removePending(id)
	q.idle = false
	q.mu.Unlock()

	err = fn(msg)

	q.mu.Lock()
	delete(q.byID, id)
	q.archived[id] = msg
	q.idle = true
	q.mu.Unlock()

	return id, true, err
}

// ProcessByID is the explicit variant from spec.md §4.3: it refuses when
// the queue is not idle, when id is already archived, or when id is
// unknown.
func (q *Queue) ProcessByID(id uint32, fn func(*Message) error) error {
	q.mu.Lock()
	if !q.idle {
		q.mu.Unlock()
		return ErrBusy
	}
	if _, done := q.archived[id]; done {
		q.mu.Unlock()
		return ErrAlreadyProcessed
	}
	msg, ok := q.byID[id]
	if !ok {
		q.mu.Unlock()
		return ErrInvalidID
	}
	q.removePending(id)
	q.idle = false
	q.mu.Unlock()

	err := fn(msg)

	q.mu.Lock()
	delete(q.byID, id)
	q.archived[id] = msg
	q.idle = true
	q.mu.Unlock()

	return err
}

// removePending assumes q.mu is already held by the caller.
func (q *Queue) removePending(id uint32) {
	for i, p := range q.pending {
		if p == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// Archived reports whether id has moved to the archive.
func (q *Queue) Archived(id uint32) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.archived[id]
	return ok
}

// Get returns the message for id regardless of which side it is on, for
// test assertions and debugging.
func (q *Queue) Get(id uint32) (*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if msg, ok := q.byID[id]; ok {
		return msg, nil
	}
	if msg, ok := q.archived[id]; ok {
		return msg, nil
	}
	return nil, fmt.Errorf("requestqueue: %w: %d", ErrInvalidID, id)
}

// Counts returns the number of pending and archived messages, for
// observability and tests.
func (q *Queue) Counts() (pending, archived int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), len(q.archived)
}
