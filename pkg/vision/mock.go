package vision

import (
	"context"
	"sync"
	"sync/atomic"
)

// MockSnapshotter is a Snapshotter for testing. It returns a fixed
// payload and counts calls; an optional delay channel lets tests
// simulate a stalled camera.
type MockSnapshotter struct {
	mu     sync.Mutex
	data   []byte
	mime   string
	err    error
	closed bool

	calls atomic.Int64

	// Block, when non-nil, is received from before every snapshot so
	// tests can hold a snapshot in flight.
	Block chan struct{}
}

// NewMockSnapshotter creates a mock returning the given payload.
func NewMockSnapshotter(data []byte, mimeType string) *MockSnapshotter {
	return &MockSnapshotter{data: data, mime: mimeType}
}

// Fail makes subsequent snapshots return err.
func (m *MockSnapshotter) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Snapshot returns the configured payload.
func (m *MockSnapshotter) Snapshot(ctx context.Context) ([]byte, string, error) {
	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}

	m.calls.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, "", ErrCameraUnavailable
	}
	if m.err != nil {
		return nil, "", m.err
	}
	return m.data, m.mime, nil
}

// Calls returns how many snapshots were taken.
func (m *MockSnapshotter) Calls() int64 {
	return m.calls.Load()
}

// Close marks the mock closed.
func (m *MockSnapshotter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Ensure MockSnapshotter implements Snapshotter.
var _ Snapshotter = (*MockSnapshotter)(nil)
