package playback

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// OtoSink plays PCM16 audio through the system speaker using oto.
// Writes append to an internal buffer that the oto player drains via
// the io.Reader side; Clear drops the buffer and resets the player so
// interrupted audio never reaches the device.
type OtoSink struct {
	otoCtx *oto.Context
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	player  *oto.Player
	buf     []byte
	playing bool
	closed  bool
}

// NewOtoSink opens the default output device at the given rate.
// The live endpoint emits 24kHz mono, so that is the usual configuration.
func NewOtoSink(sampleRate, channels int, logger *slog.Logger) (*OtoSink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		// ~100ms device buffer keeps latency low without glitching.
		BufferSize: sampleRate * channels * 2 / 10,
	}

	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("open output device: %w", err)
	}
	<-ready

	s := &OtoSink{
		otoCtx: otoCtx,
		logger: logger,
		buf:    make([]byte, 0, sampleRate*channels*4),
	}
	s.cond = sync.NewCond(&s.mu)

	logger.Info("oto audio sink ready",
		"sample_rate", sampleRate,
		"channels", channels,
	)

	return s, nil
}

// Write appends PCM16 bytes to the playback buffer.
// The player is created lazily on first write.
func (s *OtoSink) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}

	s.buf = append(s.buf, pcm...)

	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(readerFunc(s.fill))
		s.player.Play()
	}

	s.cond.Signal()
	return nil
}

// fill is the io.Reader side pulled by the oto player.
func (s *OtoSink) fill(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}

	if s.closed && len(s.buf) == 0 {
		// Feed silence so oto drains gracefully.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Clear discards buffered audio and resets the player immediately.
func (s *OtoSink) Clear() error {
	s.mu.Lock()
	s.buf = s.buf[:0]

	if s.player != nil && s.playing {
		s.playing = false
		player := s.player
		s.player = nil
		s.cond.Broadcast()
		s.mu.Unlock()

		// Pause stops output at once; Reset drops oto's internal
		// buffer so stale audio cannot overlap what comes next.
		player.Pause()
		player.Reset()
		player.Close()
		return nil
	}

	s.mu.Unlock()
	return nil
}

// Name returns "oto".
func (s *OtoSink) Name() string {
	return "oto"
}

// Close releases the player. The oto context itself cannot be torn
// down and is left for the process lifetime.
func (s *OtoSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cond.Broadcast()
	player := s.player
	s.player = nil
	s.mu.Unlock()

	if player != nil {
		player.Close()
	}
	return nil
}

// readerFunc adapts a fill function to io.Reader.
type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) {
	return f(p)
}

// Ensure OtoSink implements Sink.
var _ Sink = (*OtoSink)(nil)
