package serverstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncomingRoundTrip(t *testing.T) {
	s := New()
	s.SetIncoming("/tmp/in.bin", 1024)
	path, size := s.Incoming()
	assert.Equal(t, "/tmp/in.bin", path)
	assert.Equal(t, int64(1024), size)
}

func TestOutgoingRetainedAfterRejection(t *testing.T) {
	s := New()
	s.SetOutgoing("/tmp/out.bin", 2048)

	// A rejection handler has no API on State to clear outgoingFilePath;
	// only a subsequent SetOutgoing may supersede it.
	path, size := s.Outgoing()
	assert.Equal(t, "/tmp/out.bin", path)
	assert.Equal(t, int64(2048), size)

	path, size = s.Outgoing()
	assert.Equal(t, "/tmp/out.bin", path)
	assert.Equal(t, int64(2048), size)
}

func TestSetOutgoingSupersedesPrevious(t *testing.T) {
	s := New()
	s.SetOutgoing("/tmp/a.bin", 10)
	s.SetLastBytesSent(5)
	s.SetOutgoing("/tmp/b.bin", 20)

	path, size := s.Outgoing()
	assert.Equal(t, "/tmp/b.bin", path)
	assert.Equal(t, int64(20), size)
	assert.Zero(t, s.LastBytesSent())
}

func TestLastBytesCountersRoundTrip(t *testing.T) {
	s := New()
	s.SetLastBytesReceived(100)
	s.SetLastBytesSent(200)
	assert.Equal(t, int64(100), s.LastBytesReceived())
	assert.Equal(t, int64(200), s.LastBytesSent())
}

func TestSetIncomingResetsReceivedCounter(t *testing.T) {
	s := New()
	s.SetIncoming("/tmp/a.bin", 10)
	s.SetLastBytesReceived(10)
	s.SetIncoming("/tmp/b.bin", 20)
	assert.Zero(t, s.LastBytesReceived())
}
