// Package speech synthesizes remembered agent text locally when the
// agent's own audio does not arrive in time. A one-shot timer is armed
// at the turn boundary; agent audio cancels it, expiry speaks the text
// through the fallback provider chain.
package speech

import (
	"context"
	"log/slog"
	"sync"
	"time"
	"unicode"

	"github.com/fieldside/sideline/pkg/playback"
	"github.com/fieldside/sideline/pkg/tts"
	"github.com/fieldside/sideline/pkg/wav"
)

// Enqueuer accepts finished clips for ordered playback.
type Enqueuer interface {
	Enqueue(clip *playback.Clip)
}

// Speaker owns the speech fallback timer and local synthesis.
type Speaker struct {
	provider tts.Provider
	queue    Enqueuer
	delay    time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	gen   uint64
	timer *time.Timer

	onStatus func(label string)
	onError  func(message string)
	onFire   func(text string)
}

// NewSpeaker creates a speaker that waits delay before falling back to
// local synthesis.
func NewSpeaker(provider tts.Provider, queue Enqueuer, delay time.Duration, logger *slog.Logger) *Speaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Speaker{
		provider: provider,
		queue:    queue,
		delay:    delay,
		logger:   logger.With("component", "speech"),
	}
}

// OnStatus registers the status label observer.
func (s *Speaker) OnStatus(fn func(label string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStatus = fn
}

// OnError registers the synthesis failure observer.
func (s *Speaker) OnError(fn func(message string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// OnFire registers a hook that runs when the timer expires, before the
// candidate is spoken. The arbitrator uses it to close the turn.
func (s *Speaker) OnFire(fn func(text string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFire = fn
}

// Arm starts the fallback timer for text. A previously armed timer is
// replaced; expiry of a replaced or canceled timer does nothing.
func (s *Speaker) Arm(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}

	s.timer = time.AfterFunc(s.delay, func() {
		if !s.claim(gen) {
			return
		}
		s.logger.Info("no agent audio before deadline, speaking locally", "chars", len(text))
		s.mu.Lock()
		fire := s.onFire
		s.mu.Unlock()
		if fire != nil {
			fire(text)
		}
		s.SpeakNow(context.Background(), text)
	})
}

// Cancel disarms the pending timer. Safe to call when nothing is armed.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// claim reports whether gen is still the live generation and retires
// the timer when it is.
func (s *Speaker) claim(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.timer = nil
	return true
}

// SpeakNow synthesizes text immediately and queues the result for
// playback. Failures surface through the error observer; they never
// stall the session.
func (s *Speaker) SpeakNow(ctx context.Context, text string) {
	if text == "" {
		return
	}

	s.setStatus("Speaking...")

	lang := DetectLanguage(text)
	result, err := s.provider.Synthesize(ctx, text, lang)
	if err != nil {
		s.logger.Warn("local synthesis failed", "error", err, "lang", lang)
		s.setStatus("Ready")
		s.reportError("Speech synthesis failed")
		return
	}

	data := wav.Encode(result.Audio, result.Format.SampleRate)
	s.queue.Enqueue(playback.NewClip(data, nil))
}

// DetectLanguage picks the synthesis language. Any Arabic codepoint in
// the text selects Arabic.
func DetectLanguage(text string) tts.Language {
	for _, r := range text {
		if unicode.Is(unicode.Arabic, r) {
			return tts.LangArabic
		}
	}
	return tts.LangEnglish
}

func (s *Speaker) setStatus(label string) {
	s.mu.Lock()
	fn := s.onStatus
	s.mu.Unlock()
	if fn != nil {
		fn(label)
	}
}

func (s *Speaker) reportError(message string) {
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	if fn != nil {
		fn(message)
	}
}
