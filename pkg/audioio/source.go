package audioio

import (
	"context"
	"errors"
	"io"
	"math"

	"github.com/studiokit/voicelive/pkg/pcm"
)

// Capture errors. These are deliberately distinct from any networking
// error so callers can direct the user to device settings rather than
// retrying connectivity.
var (
	// ErrDeviceUnavailable is returned when no capture device can be opened.
	ErrDeviceUnavailable = errors.New("audioio: capture device unavailable")

	// ErrPermissionDenied is returned when microphone access is denied.
	ErrPermissionDenied = errors.New("audioio: microphone permission denied")
)

// Frame is a fixed-size span of samples captured from the microphone.
// Frames are produced continuously while capture runs and consumed
// exactly once by the outbound path.
type Frame struct {
	// Samples contains PCM16 audio samples (little-endian).
	Samples []int16

	// SampleRate is the sample rate of this frame.
	SampleRate int

	// Channels is the number of channels in this frame.
	Channels int
}

// Bytes returns the raw PCM16 bytes of the frame.
func (f *Frame) Bytes() []byte {
	return pcm.SamplesToBytes(f.Samples)
}

// FromBytes populates the frame from raw PCM16 bytes.
func (f *Frame) FromBytes(data []byte, sampleRate, channels int) {
	f.SampleRate = sampleRate
	f.Channels = channels
	f.Samples = pcm.BytesToSamples(data)
}

// Duration returns the duration of this frame in seconds.
func (f *Frame) Duration() float64 {
	if f.SampleRate == 0 || f.Channels == 0 {
		return 0
	}
	return float64(len(f.Samples)) / float64(f.SampleRate*f.Channels)
}

// RMS returns the amplitude envelope of the frame in [0, 1].
// Used for UI volume display only, never for control flow.
func (f *Frame) RMS() float64 {
	if len(f.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f.Samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(f.Samples)))
}

// Source captures audio from a microphone or other input device.
type Source interface {
	// Start begins audio capture.
	// After calling Start, frames are available via Read or Stream.
	Start(ctx context.Context) error

	// Stop halts audio capture.
	// It is safe to call Stop multiple times; no frames are delivered
	// after Stop returns.
	Stop() error

	// Read reads the next frame, blocking if necessary.
	// Returns io.EOF when the source is stopped.
	Read(ctx context.Context) (Frame, error)

	// Stream returns a channel that receives captured frames.
	// The channel is closed when the source is stopped.
	Stream() <-chan Frame

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name (e.g., "malgo", "mock").
	Name() string

	// Close releases all resources.
	// After Close, the source cannot be restarted.
	io.Closer
}

// SourceStats contains statistics about the audio source.
type SourceStats struct {
	// FramesRead is the total number of frames delivered.
	FramesRead int64 `json:"frames_read"`

	// SamplesRead is the total number of samples delivered.
	SamplesRead int64 `json:"samples_read"`

	// Overruns is the number of buffer overruns (dropped audio).
	Overruns int64 `json:"overruns"`

	// Running indicates if the source is currently capturing.
	Running bool `json:"running"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}
