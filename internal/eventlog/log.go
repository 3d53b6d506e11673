package eventlog

import "sync"

// Log collects events for the currently active request and mirrors every
// event onto an observer channel, per spec.md §4.3/§9 ("prefer a single
// event channel of tagged variants consumed by the observer"). It is
// grounded on internal/app_events's channel-of-AppEvent pattern, scoped
// here to one request at a time rather than one per UI session.
type Log struct {
	mu       sync.Mutex
	active   uint32
	entries  map[uint32][]ServerEvent
	observer chan ServerEvent
}

// NewLog creates a Log. observerBuf sizes the non-blocking observer channel;
// when it is full the new notification is dropped (the event is still
// appended to its request's log) rather than blocking the handler, matching the teacher's async-notify-with-recover
// pattern in unified_manager.go's StatusListener dispatch.
func NewLog(observerBuf int) *Log {
	return &Log{
		entries:  make(map[uint32][]ServerEvent),
		observer: make(chan ServerEvent, observerBuf),
	}
}

// Observer returns the read side of the event-notification channel.
func (l *Log) Observer() <-chan ServerEvent { return l.observer }

// SetActive marks messageID as the request currently generating events.
func (l *Log) SetActive(messageID uint32) {
	l.mu.Lock()
	l.active = messageID
	l.mu.Unlock()
}

// Emit appends ev to its message's log and notifies the observer. Events
// within a single request appear in the order Emit is called, satisfying
// the ordering guarantee in spec.md §5.
func (l *Log) Emit(ev ServerEvent) {
	l.mu.Lock()
	l.entries[ev.MessageID()] = append(l.entries[ev.MessageID()], ev)
	l.mu.Unlock()

	select {
	case l.observer <- ev:
	default:
	}
}

// For returns the ordered event slice collected for messageID, for
// attaching to its Message when the handler returns and it moves to the
// archive.
func (l *Log) For(messageID uint32) []ServerEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.entries[messageID]
	out := make([]ServerEvent, len(entries))
	copy(out, entries)
	return out
}

// Drop removes the buffered entries for messageID once they have been
// attached to the archived Message, so the log does not grow unbounded.
func (l *Log) Drop(messageID uint32) {
	l.mu.Lock()
	delete(l.entries, messageID)
	l.mu.Unlock()
}
