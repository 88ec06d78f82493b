package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a mock audio source for testing.
// It generates synthetic audio (silence or sine wave) on the configured
// frame cadence, and also accepts frames pushed directly via Push.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan Frame
	stopCh   chan struct{}

	// Stats
	framesRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64

	// Synthetic audio generation
	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0
	generate  bool
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithoutGenerator disables the synthetic frame ticker.
// Frames are then delivered only via Push, which keeps tests deterministic.
func WithoutGenerator() MockSourceOption {
	return func(m *MockSource) {
		m.generate = false
	}
}

// NewMockSource creates a new mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:       cfg,
		logger:    logger,
		streamCh:  make(chan Frame, 10),
		stopCh:    make(chan struct{}),
		frequency: 0, // Silence by default
		amplitude: 0.5,
		generate:  true,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start begins generating audio.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.streamCh = make(chan Frame, 10)

	if m.generate {
		go m.generateLoop(ctx)
	}

	m.logger.Info("mock audio source started",
		"sample_rate", m.cfg.SampleRate,
		"frequency", m.frequency,
	)

	return nil
}

// Push delivers a frame directly to consumers.
// Returns false if the source is not running or the buffer is full.
func (m *MockSource) Push(f Frame) bool {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return false
	}
	ch := m.streamCh
	m.mu.Unlock()

	select {
	case ch <- f:
		m.framesRead.Add(1)
		m.samplesRead.Add(int64(len(f.Samples)))
		return true
	default:
		m.overruns.Add(1)
		return false
	}
}

func (m *MockSource) generateLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			frame := m.generateFrame()
			select {
			case m.streamCh <- frame:
				m.framesRead.Add(1)
				m.samplesRead.Add(int64(len(frame.Samples)))
			default:
				// Buffer full, drop frame (overrun)
				m.overruns.Add(1)
				m.logger.Debug("mock source: buffer full, dropping frame")
			}
		}
	}
}

func (m *MockSource) generateFrame() Frame {
	frameSize := m.cfg.FrameSize()
	samples := make([]int16, frameSize*m.cfg.Channels)

	if m.frequency > 0 {
		// Generate sine wave
		for i := 0; i < frameSize; i++ {
			sample := m.amplitude * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate))
			sampleInt := int16(sample * 32767)

			for ch := 0; ch < m.cfg.Channels; ch++ {
				samples[i*m.cfg.Channels+ch] = sampleInt
			}

			m.phase++
			if m.phase >= float64(m.cfg.SampleRate) {
				m.phase = 0
			}
		}
	}
	// else: samples are already zero (silence)

	return Frame{
		Samples:    samples,
		SampleRate: m.cfg.SampleRate,
		Channels:   m.cfg.Channels,
	}
}

// Stop halts audio generation.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false
	close(m.stopCh)
	close(m.streamCh)

	m.logger.Info("mock audio source stopped")

	return nil
}

// Read reads the next frame.
func (m *MockSource) Read(ctx context.Context) (Frame, error) {
	m.mu.Lock()
	ch := m.streamCh
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case frame, ok := <-ch:
		if !ok {
			return Frame{}, io.EOF
		}
		return frame, nil
	}
}

// Stream returns the frame channel.
func (m *MockSource) Stream() <-chan Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCh
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return "mock"
}

// Close releases resources.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.Stop()
	return nil
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SourceStats{
		FramesRead:  m.framesRead.Load(),
		SamplesRead: m.samplesRead.Load(),
		Overruns:    m.overruns.Load(),
		Running:     running,
		Backend:     "mock",
	}
}

// Ensure MockSource implements SourceWithStats.
var _ SourceWithStats = (*MockSource)(nil)
