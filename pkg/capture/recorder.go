// Package capture streams microphone audio up the session channel.
// At most one capture session exists at a time across all entry points;
// frames are converted to base64 PCM16 envelopes and a stream-end
// delimiter closes every session.
package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/fieldside/sideline/pkg/audioio"
	"github.com/fieldside/sideline/pkg/protocol"
)

// Target identifies which flow initiated the capture session and which
// surface the resulting turn belongs to.
type Target int

const (
	// TargetPrimaryChat routes the turn to the main conversation.
	TargetPrimaryChat Target = iota

	// TargetNavAssist routes the turn through the assist overlay race.
	TargetNavAssist
)

// String returns the target name for logs.
func (t Target) String() string {
	if t == TargetNavAssist {
		return "nav_assist"
	}
	return "primary_chat"
}

// ErrAlreadyRecording is returned when a second capture session is
// requested while one is active, regardless of which flow owns it.
var ErrAlreadyRecording = errors.New("capture: recording already in progress")

// Sender is the outbound half of the session channel.
type Sender interface {
	Send(env *protocol.Envelope) error
	IsOpen() bool
}

// Recorder owns the single system-wide capture session.
type Recorder struct {
	sender Sender
	logger *slog.Logger

	// active gates frame forwarding. Checked per frame without the
	// mutex, so a buffer already in flight at Stop may still go out.
	active atomic.Bool

	mu     sync.Mutex
	source audioio.Source
	target Target

	onTurnStart func(Target)
	onStatus    func(recording bool)
}

// NewRecorder creates a recorder sending frames through sender.
func NewRecorder(sender Sender, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		sender: sender,
		logger: logger.With("component", "capture"),
	}
}

// OnTurnStart registers the callback fired after a capture session ends
// and its stream-end delimiter is sent. The arbiter uses it to open the
// response turn for the session's target.
func (r *Recorder) OnTurnStart(fn func(Target)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onTurnStart = fn
}

// OnStatus registers the recording-state observer.
func (r *Recorder) OnStatus(fn func(recording bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStatus = fn
}

// Start begins a capture session from source on behalf of target.
// Returns ErrAlreadyRecording if any session is active.
func (r *Recorder) Start(ctx context.Context, source audioio.Source, target Target) error {
	if !r.active.CompareAndSwap(false, true) {
		return ErrAlreadyRecording
	}

	if err := source.Start(ctx); err != nil {
		r.active.Store(false)
		return err
	}

	r.mu.Lock()
	r.source = source
	r.target = target
	status := r.onStatus
	r.mu.Unlock()

	r.logger.Info("capture started", "target", target, "backend", source.Name())
	if status != nil {
		status(true)
	}

	go r.pump(source)
	return nil
}

func (r *Recorder) pump(source audioio.Source) {
	for frame := range source.Frames() {
		if !r.active.Load() {
			continue
		}

		env := protocol.NewAudio(
			EncodeFrame(frame.Samples),
			protocol.PCMMimeType(frame.SampleRate),
		)
		if err := r.sender.Send(env); err != nil {
			r.logger.Debug("audio frame dropped", "error", err)
		}
	}
}

// Stop ends the capture session: the source is stopped and closed, the
// stream-end delimiter goes out if the channel is open, and the turn
// opens for the session's target. Safe to call repeatedly; only the
// first call after Start has an effect.
func (r *Recorder) Stop() {
	if !r.active.CompareAndSwap(true, false) {
		return
	}

	r.mu.Lock()
	source := r.source
	target := r.target
	turnStart := r.onTurnStart
	status := r.onStatus
	r.source = nil
	r.mu.Unlock()

	if source != nil {
		if err := source.Stop(); err != nil {
			r.logger.Warn("source stop failed", "error", err)
		}
		if err := source.Close(); err != nil {
			r.logger.Warn("source close failed", "error", err)
		}
	}

	if r.sender.IsOpen() {
		if err := r.sender.Send(protocol.NewAudioStreamEnd()); err != nil {
			r.logger.Warn("stream end delimiter dropped", "error", err)
		}
	}

	r.logger.Info("capture stopped", "target", target)
	if status != nil {
		status(false)
	}
	if turnStart != nil {
		turnStart(target)
	}
}

// Recording reports whether a capture session is active.
func (r *Recorder) Recording() bool {
	return r.active.Load()
}

// Target returns the owner of the current or most recent session.
func (r *Recorder) Target() Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target
}

// EncodeFrame converts float32 samples to base64 little-endian PCM16.
// Samples are clamped to [-1, 1] first.
func EncodeFrame(samples []float32) string {
	return base64.StdEncoding.EncodeToString(PCM16FromFloat32(samples))
}

// PCM16FromFloat32 converts clamped float32 samples to little-endian
// PCM16 bytes. Negative samples scale by 32768 and non-negative by
// 32767 so both extremes land exactly on the int16 range.
func PCM16FromFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}

		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}

		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
