// Package audioio provides microphone capture and speaker playback
// abstractions for the sideline client.
//
// Capture delivers fixed-size frames of float32 mono samples, the way
// hardware processing callbacks hand them over; the capture encoder is
// responsible for PCM16 conversion. Playback accepts raw PCM16 chunks.
// A mock backend serves tests and CI without audio hardware.
package audioio

import (
	"context"
	"fmt"
	"io"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto automatically selects the best available backend.
	BackendAuto Backend = "auto"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `json:"backend"`

	// SampleRate is the capture sample rate in Hz.
	// Default: 16000 (what the session channel expects outbound).
	SampleRate int `json:"sample_rate"`

	// Channels is the number of audio channels. Default: 1 (mono).
	Channels int `json:"channels"`

	// FrameSize is the number of samples per capture frame.
	// Default: 4096.
	FrameSize int `json:"frame_size"`

	// EchoCancellation and NoiseSuppression are requested of the
	// capture backend when supported.
	EchoCancellation bool `json:"echo_cancellation"`
	NoiseSuppression bool `json:"noise_suppression"`

	// Device is the platform-specific device identifier, empty for
	// the system default.
	Device string `json:"device"`
}

// DefaultConfig returns a Config with sensible defaults for capture.
func DefaultConfig() Config {
	return Config{
		Backend:          BackendAuto,
		SampleRate:       16000,
		Channels:         1,
		FrameSize:        4096,
		EchoCancellation: true,
		NoiseSuppression: true,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("audioio: sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("audioio: channels must be positive, got %d", c.Channels)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("audioio: frame_size must be positive, got %d", c.FrameSize)
	}
	return nil
}

// Frame is one fixed-size buffer of captured samples.
type Frame struct {
	// Samples are raw mono samples in [-1, 1]. Values outside the
	// range can occur on hot signals and must be clamped downstream.
	Samples []float32

	// SampleRate is the rate the frame was captured at.
	SampleRate int
}

// Duration returns the frame length in seconds.
func (f *Frame) Duration() float64 {
	if f.SampleRate == 0 {
		return 0
	}
	return float64(len(f.Samples)) / float64(f.SampleRate)
}

// Source captures audio from a microphone or other input device.
type Source interface {
	// Start begins audio capture. After Start, frames arrive on the
	// channel returned by Frames.
	Start(ctx context.Context) error

	// Stop halts audio capture. It is safe to call Stop multiple times.
	Stop() error

	// Frames returns the channel delivering capture frames.
	// The channel is closed when the source is stopped.
	Frames() <-chan Frame

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name (e.g., "mock").
	Name() string

	// Close releases all resources. After Close, the source cannot be
	// restarted.
	io.Closer
}

// Chunk is one buffer of playable PCM16 audio.
type Chunk struct {
	// Data is little-endian PCM16 mono.
	Data []byte

	// SampleRate is the rate the chunk should be played at.
	SampleRate int
}

// Sink plays PCM16 audio to a speaker or other output device.
type Sink interface {
	// Start begins audio playback.
	Start(ctx context.Context) error

	// Stop halts audio playback. Safe to call multiple times.
	Stop() error

	// Write sends a chunk to the output device. May block while the
	// device drains its buffer.
	Write(ctx context.Context, chunk Chunk) error

	// Flush waits for all buffered audio to be played.
	Flush(ctx context.Context) error

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name.
	Name() string

	io.Closer
}

// SourceStats contains statistics about an audio source.
type SourceStats struct {
	FramesRead  int64  `json:"frames_read"`
	SamplesRead int64  `json:"samples_read"`
	Running     bool   `json:"running"`
	Backend     string `json:"backend"`
}

// SinkStats contains statistics about an audio sink.
type SinkStats struct {
	ChunksWritten int64  `json:"chunks_written"`
	BytesWritten  int64  `json:"bytes_written"`
	Running       bool   `json:"running"`
	Backend       string `json:"backend"`
}
