// Package audioio provides microphone capture for live sessions.
//
// This package supports multiple backends:
//   - malgo (miniaudio) - Production capture on Linux/macOS/Windows
//   - Mock - CI/Testing without hardware
//
// The backend is selected automatically, or can be explicitly specified
// via configuration.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto automatically selects the best available backend.
	BackendAuto Backend = "auto"
	// BackendMalgo uses miniaudio (via malgo) for device capture.
	BackendMalgo Backend = "malgo"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds audio capture configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto"
	Backend Backend `json:"backend"`

	// SampleRate is the capture sample rate in Hz.
	// Default: 16000 (required by the live endpoint)
	SampleRate int `json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `json:"channels"`

	// FrameDuration is the size of each delivered frame.
	// Default: 20ms (320 samples at 16kHz)
	FrameDuration time.Duration `json:"frame_duration"`

	// Device is the platform-specific device identifier.
	// Empty selects the system default.
	Device string `json:"device"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendAuto,
		SampleRate:    16000, // live endpoint input requirement
		Channels:      1,     // Mono
		FrameDuration: 20 * time.Millisecond,
		Device:        "",
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.FrameDuration <= 0 {
		return fmt.Errorf("frame_duration must be positive, got %v", c.FrameDuration)
	}
	return nil
}

// FrameSize returns the number of samples per frame per channel.
func (c *Config) FrameSize() int {
	return int(float64(c.SampleRate) * c.FrameDuration.Seconds())
}

// FrameBytes returns the size of a frame in bytes (int16 samples).
func (c *Config) FrameBytes() int {
	return c.FrameSize() * c.Channels * 2
}
