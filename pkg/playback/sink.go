// Package playback schedules synthesized audio chunks onto a single
// gapless output timeline and plays them through an audio sink.
//
// Chunks arrive from the network with arbitrary jitter; the scheduler's
// watermark translates arrival order into back-to-back playback with no
// gaps and no overlap, and supports atomic interruption for barge-in.
package playback

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Sink plays raw PCM16 audio through an output device.
// Write appends to the device buffer and must not block on the network
// or for the duration of the audio itself.
type Sink interface {
	// Write appends PCM16 little-endian bytes to the playback buffer.
	Write(pcm []byte) error

	// Clear discards all buffered audio immediately.
	// Used to cut playback on interruption.
	Clear() error

	// Name returns the backend name (e.g., "oto", "mock").
	Name() string

	// Close releases the output device.
	io.Closer
}

// MockSink is a Sink for testing. It records writes and clears.
type MockSink struct {
	mu     sync.Mutex
	logger *slog.Logger

	writes  [][]byte
	cleared atomic.Int64
	closed  bool
}

// NewMockSink creates a new mock sink.
func NewMockSink(logger *slog.Logger) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockSink{logger: logger}
}

// Write records the chunk.
func (m *MockSink) Write(pcm []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return io.ErrClosedPipe
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	m.writes = append(m.writes, buf)
	return nil
}

// Clear discards recorded writes and counts the flush.
func (m *MockSink) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = nil
	m.cleared.Add(1)
	return nil
}

// Name returns "mock".
func (m *MockSink) Name() string {
	return "mock"
}

// Close marks the sink closed.
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Writes returns a copy of the chunks written since the last Clear.
func (m *MockSink) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

// ClearCount returns how many times Clear was called.
func (m *MockSink) ClearCount() int64 {
	return m.cleared.Load()
}

// Ensure MockSink implements Sink.
var _ Sink = (*MockSink)(nil)
