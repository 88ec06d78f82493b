package audioio

import (
	"context"
	"io"
	"math"
	"testing"
	"time"
)

func TestMockSource_StartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx := context.Background()

	// Start should succeed
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Starting again should be a no-op
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}

	// Stop should succeed
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Stopping again should be a no-op
	if err := src.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}
}

func TestMockSource_Read(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	frame, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	expectedSamples := cfg.FrameSize() * cfg.Channels
	if len(frame.Samples) != expectedSamples {
		t.Errorf("Expected %d samples, got %d", expectedSamples, len(frame.Samples))
	}

	if frame.SampleRate != cfg.SampleRate {
		t.Errorf("Expected sample rate %d, got %d", cfg.SampleRate, frame.SampleRate)
	}

	if frame.Channels != cfg.Channels {
		t.Errorf("Expected %d channels, got %d", cfg.Channels, frame.Channels)
	}
}

func TestMockSource_Push(t *testing.T) {
	cfg := DefaultConfig()

	src := NewMockSource(cfg, nil, WithoutGenerator())
	defer src.Close()

	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	want := Frame{Samples: []int16{1, 2, 3}, SampleRate: 16000, Channels: 1}
	if !src.Push(want) {
		t.Fatal("Push returned false on running source")
	}

	got, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got.Samples) != 3 || got.Samples[0] != 1 {
		t.Errorf("unexpected frame: %+v", got)
	}

	src.Stop()
	if src.Push(want) {
		t.Error("Push should fail after Stop")
	}
}

func TestMockSource_ReadAfterStop(t *testing.T) {
	cfg := DefaultConfig()

	src := NewMockSource(cfg, nil, WithoutGenerator())
	defer src.Close()

	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	src.Stop()

	if _, err := src.Read(ctx); err != io.EOF {
		t.Errorf("expected io.EOF after stop, got %v", err)
	}
}

func TestMockSource_SineWave(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil, WithSineWave(440, 0.5))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	frame, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	// A sine wave should have non-zero energy
	if frame.RMS() < 0.1 {
		t.Errorf("expected audible RMS for sine wave, got %f", frame.RMS())
	}
}

func TestFrame_RMS(t *testing.T) {
	silent := Frame{Samples: make([]int16, 320), SampleRate: 16000, Channels: 1}
	if rms := silent.RMS(); rms != 0 {
		t.Errorf("silence should have zero RMS, got %f", rms)
	}

	full := Frame{Samples: []int16{32767, -32768, 32767, -32768}, SampleRate: 16000, Channels: 1}
	if rms := full.RMS(); math.Abs(rms-1.0) > 0.01 {
		t.Errorf("full-scale square wave should have RMS ~1, got %f", rms)
	}

	var empty Frame
	if rms := empty.RMS(); rms != 0 {
		t.Errorf("empty frame should have zero RMS, got %f", rms)
	}
}

func TestFrame_BytesRoundTrip(t *testing.T) {
	frame := Frame{Samples: []int16{100, -200, 300}, SampleRate: 16000, Channels: 1}

	var out Frame
	out.FromBytes(frame.Bytes(), 16000, 1)

	if len(out.Samples) != len(frame.Samples) {
		t.Fatalf("expected %d samples, got %d", len(frame.Samples), len(out.Samples))
	}
	for i, s := range frame.Samples {
		if out.Samples[i] != s {
			t.Errorf("sample %d: expected %d, got %d", i, s, out.Samples[i])
		}
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default valid", func(c *Config) {}, false},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }, true},
		{"negative channels", func(c *Config) { c.Channels = -1 }, true},
		{"zero frame duration", func(c *Config) { c.FrameDuration = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigFrameSize(t *testing.T) {
	cfg := DefaultConfig()

	// 20ms at 16kHz mono = 320 samples = 640 bytes
	if cfg.FrameSize() != 320 {
		t.Errorf("expected frame size 320, got %d", cfg.FrameSize())
	}
	if cfg.FrameBytes() != 640 {
		t.Errorf("expected frame bytes 640, got %d", cfg.FrameBytes())
	}
}
