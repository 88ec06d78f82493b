package session

import (
	"errors"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "defaults with api key",
			mutate: func(c *Config) { c.APIKey = "k" },
		},
		{
			name:   "defaults with token provider",
			mutate: func(c *Config) { c.TokenProvider = StaticToken("tok") },
		},
		{
			name:    "no credentials",
			mutate:  func(c *Config) {},
			wantErr: true,
		},
		{
			name: "missing primary endpoint",
			mutate: func(c *Config) {
				c.APIKey = "k"
				c.PrimaryEndpoint = ""
			},
			wantErr: true,
		},
		{
			name: "bad input rate",
			mutate: func(c *Config) {
				c.APIKey = "k"
				c.InputSampleRate = 0
			},
			wantErr: true,
		},
		{
			name: "bad queue size",
			mutate: func(c *Config) {
				c.APIKey = "k"
				c.SendQueueSize = -1
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected valid config, got %v", err)
			}
		})
	}
}

func TestConfigMissingCredentialsSentinel(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestConfigInputMimeType(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.inputMimeType(); got != MimePCM16k {
		t.Errorf("expected %q, got %q", MimePCM16k, got)
	}
}

func TestConnectErrorUnwrap(t *testing.T) {
	primary := errors.New("primary down")
	fallback := errors.New("fallback down")

	both := &ConnectError{Primary: primary, Fallback: fallback}
	if !errors.Is(both, fallback) {
		t.Error("expected unwrap to reach the fallback error")
	}

	only := &ConnectError{Primary: primary}
	if !errors.Is(only, primary) {
		t.Error("expected unwrap to reach the primary error")
	}
}
