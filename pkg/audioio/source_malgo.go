package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/studiokit/voicelive/pkg/pcm"
)

// MalgoSource captures audio from the default microphone using miniaudio.
// The device callback runs on a realtime-priority thread owned by
// miniaudio; its only job is to push bytes toward the stream channel,
// so slow consumers degrade to dropped frames instead of stalling the
// hardware buffer.
type MalgoSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan Frame
	actx     *malgo.AllocatedContext
	device   *malgo.Device

	// pending accumulates callback bytes until a full frame is available.
	// Touched only from the device callback.
	pending []byte

	// Stats
	framesRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// newMalgoSource creates a miniaudio-backed capture source.
func newMalgoSource(cfg Config, logger *slog.Logger) (*MalgoSource, error) {
	return &MalgoSource{
		cfg:      cfg,
		logger:   logger,
		streamCh: make(chan Frame, 10),
	}, nil
}

// Start opens the capture device and begins delivering frames.
func (s *MalgoSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	actx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return wrapDeviceError("init audio context", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(s.cfg.Channels)
	deviceConfig.SampleRate = uint32(s.cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = uint32(s.cfg.FrameDuration.Milliseconds())

	s.streamCh = make(chan Frame, 10)
	s.pending = s.pending[:0]
	frameBytes := s.cfg.FrameBytes()

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			s.pending = append(s.pending, input...)
			for len(s.pending) >= frameBytes {
				raw := make([]byte, frameBytes)
				copy(raw, s.pending[:frameBytes])
				s.pending = s.pending[frameBytes:]

				frame := Frame{
					Samples:    pcm.BytesToSamples(raw),
					SampleRate: s.cfg.SampleRate,
					Channels:   s.cfg.Channels,
				}

				select {
				case s.streamCh <- frame:
					s.framesRead.Add(1)
					s.samplesRead.Add(int64(len(frame.Samples)))
				default:
					s.overruns.Add(1)
				}
			}
		},
	}

	device, err := malgo.InitDevice(actx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = actx.Uninit()
		actx.Free()
		return wrapDeviceError("init capture device", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = actx.Uninit()
		actx.Free()
		return wrapDeviceError("start capture device", err)
	}

	s.actx = actx
	s.device = device
	s.running = true

	s.logger.Info("malgo audio source started",
		"sample_rate", s.cfg.SampleRate,
		"channels", s.cfg.Channels,
	)

	return nil
}

// wrapDeviceError maps miniaudio failures onto the capture error taxonomy.
func wrapDeviceError(op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "access denied") || strings.Contains(msg, "permission") {
		return fmt.Errorf("%s: %w: %v", op, ErrPermissionDenied, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrDeviceUnavailable, err)
}

// Stop halts capture and releases the device.
func (s *MalgoSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	if s.actx != nil {
		_ = s.actx.Uninit()
		s.actx.Free()
		s.actx = nil
	}

	close(s.streamCh)

	s.logger.Info("malgo audio source stopped")

	return nil
}

// Read reads the next frame, blocking if necessary.
func (s *MalgoSource) Read(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	ch := s.streamCh
	s.mu.Unlock()

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
func (s *MalgoSource) Stream() <-chan Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *MalgoSource) Config() Config {
	return s.cfg
}

// Name returns "malgo".
func (s *MalgoSource) Name() string {
	return "malgo"
}

// Close releases all resources.
func (s *MalgoSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.Stop()
}

// Stats returns source statistics.
func (s *MalgoSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		FramesRead:  s.framesRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "malgo",
	}
}

// Ensure MalgoSource implements SourceWithStats.
var _ SourceWithStats = (*MalgoSource)(nil)
