// Package config centralizes the engine's tunables, grounded on
// pkg/transfer/config.go's TransferConfig/DefaultTransferConfig/Validate
// shape (explicit per-field range checks, sentinel-wrapped errors),
// resized to the defaults spec.md §5/§6 name.
package config

import (
	"fmt"
	"time"
)

// EngineConfig holds the timeouts and buffer sizing the engine needs.
type EngineConfig struct {
	// BufferSize is the chunk size used by both the send pipeline's read
	// loop and the frame codec's carry buffer capacity expectation.
	BufferSize int

	ConnectTimeout time.Duration
	ReceiveTimeout time.Duration
	SendTimeout    time.Duration

	// StallTimeout is the idle-since-last-progress duration after which
	// the inbound stall monitor fires, per spec.md §4.7.
	StallTimeout time.Duration

	// ProgressUpdateInterval is the fractional-progress delta (default
	// 0.0025, i.e. 0.25%) that triggers an UpdateFileTransferProgress
	// event, per spec.md §4.6.
	ProgressUpdateInterval float64

	// DebugChunkFileSizeMultiple bounds, in multiples of BufferSize, the
	// file size below which per-socket-read debug events are additionally
	// emitted, per spec.md §4.6.
	DebugChunkFileSizeMultiple int64
}

var (
	ErrInvalidBufferSize   = fmt.Errorf("config: buffer size must be positive")
	ErrInvalidTimeout      = fmt.Errorf("config: timeout must be positive")
	ErrInvalidProgressStep = fmt.Errorf("config: progress update interval must be in (0, 1]")
)

// DefaultEngineConfig returns spec.md's stated defaults: 5000ms timeouts,
// a 0.25% progress step, and the 10x-buffer-size debug threshold.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BufferSize:                 64 * 1024,
		ConnectTimeout:             5000 * time.Millisecond,
		ReceiveTimeout:             5000 * time.Millisecond,
		SendTimeout:                5000 * time.Millisecond,
		StallTimeout:               10 * time.Second,
		ProgressUpdateInterval:     0.0025,
		DebugChunkFileSizeMultiple: 10,
	}
}

// Validate checks every field is in range, failing fast the way
// TransferConfig.Validate does rather than letting a zero timeout turn
// into an always-expired deadline deep in netconn.
func (c EngineConfig) Validate() error {
	if c.BufferSize <= 0 {
		return ErrInvalidBufferSize
	}
	if c.ConnectTimeout <= 0 || c.ReceiveTimeout <= 0 || c.SendTimeout <= 0 || c.StallTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.ProgressUpdateInterval <= 0 || c.ProgressUpdateInterval > 1 {
		return ErrInvalidProgressStep
	}
	return nil
}
