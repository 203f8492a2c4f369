// Package config provides environment-driven configuration for the
// sideline client.
package config

import (
	"fmt"
	"os"
	"time"
)

// Defaults for the assistant backend.
const (
	DefaultServerURL = "ws://localhost:8000/ws/live-chat"
	DefaultAPIBase   = "http://localhost:8000"
	DefaultPanelAddr = ":7071"
)

// Config holds everything the client needs to run.
type Config struct {
	// ServerURL is the duplex session endpoint (ws:// or wss://).
	ServerURL string

	// APIBase is the HTTP base URL for the assist/query/upload endpoints.
	APIBase string

	// PanelAddr is the listen address for the local observer panel.
	// Empty disables the panel.
	PanelAddr string

	// ElevenLabsKey and ElevenLabsVoiceID configure fallback synthesis.
	// Empty key disables the ElevenLabs provider (the mock chain tail
	// still produces silence so the fallback path stays exercised).
	ElevenLabsKey     string
	ElevenLabsVoiceID string

	// ReconnectDelay is the fixed delay between reconnect attempts.
	ReconnectDelay time.Duration

	// FallbackDelay is how long to wait for agent audio before
	// synthesizing the remembered text locally.
	FallbackDelay time.Duration

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// FromEnv builds a Config from environment variables, applying defaults.
func FromEnv() Config {
	return Config{
		ServerURL:         getenv("SIDELINE_SERVER_URL", DefaultServerURL),
		APIBase:           getenv("SIDELINE_API_BASE", DefaultAPIBase),
		PanelAddr:         getenv("SIDELINE_PANEL_ADDR", DefaultPanelAddr),
		ElevenLabsKey:     os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: os.Getenv("ELEVENLABS_VOICE_ID"),
		ReconnectDelay:    3 * time.Second,
		FallbackDelay:     2500 * time.Millisecond,
		LogLevel:          getenv("LOG_LEVEL", "info"),
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("config: server URL required")
	}
	if c.APIBase == "" {
		return fmt.Errorf("config: API base URL required")
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("config: reconnect delay must be positive, got %v", c.ReconnectDelay)
	}
	if c.FallbackDelay <= 0 {
		return fmt.Errorf("config: fallback delay must be positive, got %v", c.FallbackDelay)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
