package session

import (
	"fmt"
	"time"
)

// Live endpoint defaults.
const (
	// DefaultPrimaryEndpoint is the production realtime endpoint.
	DefaultPrimaryEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// DefaultFallbackEndpoint is tried exactly once when the primary
	// endpoint rejects the connection.
	DefaultFallbackEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"

	// DefaultModel is the realtime conversational model.
	DefaultModel = "models/gemini-2.0-flash-exp"

	// DefaultVoice is the synthesized voice name.
	DefaultVoice = "Puck"
)

// Config holds session configuration.
type Config struct {
	// PrimaryEndpoint is the websocket URL dialed first.
	PrimaryEndpoint string `json:"primary_endpoint"`

	// FallbackEndpoint is dialed exactly once if the primary fails.
	// Empty disables the fallback retry.
	FallbackEndpoint string `json:"fallback_endpoint"`

	// APIKey authenticates the connection via query parameter.
	APIKey string `json:"-"`

	// TokenProvider, when set, supplies a bearer token before each
	// connect instead of (or in addition to) the API key.
	TokenProvider TokenProvider `json:"-"`

	// Model is the conversational model requested in setup.
	Model string `json:"model"`

	// Voice is the synthesized voice requested in setup.
	Voice string `json:"voice"`

	// SystemPrompt is the session system instruction.
	SystemPrompt string `json:"-"`

	// InputSampleRate is the capture rate sent upstream. Default 16000.
	InputSampleRate int `json:"input_sample_rate"`

	// OutputSampleRate is the rate of synthesized audio. Default 24000.
	OutputSampleRate int `json:"output_sample_rate"`

	// VideoInterval is the cadence of periodic context snapshots when
	// video is enabled. Default 1s.
	VideoInterval time.Duration `json:"video_interval"`

	// SendQueueSize bounds the outbound message queue. When the queue
	// is full, messages are dropped rather than blocking capture.
	SendQueueSize int `json:"send_queue_size"`

	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration `json:"handshake_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
// The API key (or a token provider) must still be supplied.
func DefaultConfig() Config {
	return Config{
		PrimaryEndpoint:  DefaultPrimaryEndpoint,
		FallbackEndpoint: DefaultFallbackEndpoint,
		Model:            DefaultModel,
		Voice:            DefaultVoice,
		InputSampleRate:  16000,
		OutputSampleRate: 24000,
		VideoInterval:    time.Second,
		SendQueueSize:    64,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.PrimaryEndpoint == "" {
		return fmt.Errorf("primary_endpoint is required")
	}
	if c.APIKey == "" && c.TokenProvider == nil {
		return ErrMissingCredentials
	}
	if c.InputSampleRate <= 0 {
		return fmt.Errorf("input_sample_rate must be positive, got %d", c.InputSampleRate)
	}
	if c.OutputSampleRate <= 0 {
		return fmt.Errorf("output_sample_rate must be positive, got %d", c.OutputSampleRate)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("send_queue_size must be positive, got %d", c.SendQueueSize)
	}
	if c.VideoInterval <= 0 {
		return fmt.Errorf("video_interval must be positive, got %v", c.VideoInterval)
	}
	return nil
}

// inputMimeType returns the MIME type for outbound audio.
func (c *Config) inputMimeType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", c.InputSampleRate)
}
