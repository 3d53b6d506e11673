package serverstate

import "sync"

// State holds the active transfer's working fields, per spec.md §3's
// "ServerState (scratch)". Grounded on internal/app/state.go's single
// mutex-guarded "current request" holder, rewritten because the original
// carries WebRTC-specific channels that have no analogue in a raw-TCP
// design, and because each handler here receives the peer identity as an
// argument rather than reading it from shared state (spec.md §9's
// "shared RemoteServerInfo" design note).
type State struct {
	mu sync.Mutex

	incomingFilePath string
	incomingFileSize int64
	outgoingFilePath string
	outgoingFileSize int64

	lastBytesReceived int64
	lastBytesSent     int64
}

func New() *State { return &State{} }

// SetIncoming resets the scratch fields for a new inbound transfer.
func (s *State) SetIncoming(path string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incomingFilePath = path
	s.incomingFileSize = size
	s.lastBytesReceived = 0
}

func (s *State) Incoming() (path string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incomingFilePath, s.incomingFileSize
}

// SetOutgoing records a new outbound transfer's path, superseding whatever
// the previous transfer left behind. Per spec.md §9's resolved open
// question, outgoingFilePath is otherwise retained after a rejection —
// callers must not clear it themselves on FileTransferRejected.
func (s *State) SetOutgoing(path string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outgoingFilePath = path
	s.outgoingFileSize = size
	s.lastBytesSent = 0
}

func (s *State) Outgoing() (path string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outgoingFilePath, s.outgoingFileSize
}

func (s *State) SetLastBytesReceived(n int64) {
	s.mu.Lock()
	s.lastBytesReceived = n
	s.mu.Unlock()
}

func (s *State) LastBytesReceived() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBytesReceived
}

func (s *State) SetLastBytesSent(n int64) {
	s.mu.Lock()
	s.lastBytesSent = n
	s.mu.Unlock()
}

func (s *State) LastBytesSent() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBytesSent
}
