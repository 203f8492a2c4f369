// Package arbiter decides, per turn, whether the agent's autonomous
// response or the local assist overlay answers the user. It owns the
// turn state machine, the audio fragment assembler, and the fallback
// candidate, so exactly one spoken response reaches the user per turn.
package arbiter

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fieldside/sideline/pkg/assist"
	"github.com/fieldside/sideline/pkg/capture"
	"github.com/fieldside/sideline/pkg/playback"
	"github.com/fieldside/sideline/pkg/protocol"
	"github.com/fieldside/sideline/pkg/wav"
)

// State is the turn state. Exactly one holds at a time.
type State int

const (
	// Idle: no response turn is open.
	Idle State = iota

	// AwaitingAutonomous: a primary-chat turn is open; the agent's
	// autonomous response plays as it arrives.
	AwaitingAutonomous

	// AwaitingAssistRace: a nav-assist turn is open; the assist overlay
	// races the agent's autonomous response.
	AwaitingAssistRace

	// Suppressed: the overlay won the race; agent output for this turn
	// is discarded.
	Suppressed
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case AwaitingAutonomous:
		return "awaiting_autonomous"
	case AwaitingAssistRace:
		return "awaiting_assist_race"
	case Suppressed:
		return "suppressed"
	}
	return "idle"
}

// Surface renders conversation entries and executes overlay actions.
type Surface interface {
	ShowBot(message string)
	ShowUser(message string)
	ShowError(message string)
	Navigate(route string)
	Apply(action assist.Action)
}

// Fallback is the speech fallback the arbiter arms and cancels.
type Fallback interface {
	Arm(text string)
	Cancel()
	SpeakNow(ctx context.Context, text string)
}

// Assistant resolves assist-race lookups.
type Assistant interface {
	Assist(ctx context.Context, surface string, req assist.AssistRequest) (*assist.AssistResponse, error)
}

// Enqueuer accepts finalized clips for ordered playback.
type Enqueuer interface {
	Enqueue(clip *playback.Clip)
}

// raceSurface names the assist in-flight guard the arbiter uses.
const raceSurface = "nav_assist"

// Arbiter is the per-turn response arbitrator.
type Arbiter struct {
	surface   Surface
	fallback  Fallback
	assistant Assistant
	queue     Enqueuer
	logger    *slog.Logger

	mu        sync.Mutex
	state     State
	candidate string
	assembler *wav.Assembler
	uiContext string
}

// New creates an arbiter. All collaborators are required except
// assistant, which may be nil when no overlay backend is configured.
func New(surface Surface, fallback Fallback, assistant Assistant, queue Enqueuer, logger *slog.Logger) *Arbiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Arbiter{
		surface:   surface,
		fallback:  fallback,
		assistant: assistant,
		queue:     queue,
		logger:    logger.With("component", "arbiter"),
		assembler: wav.NewAssembler(),
	}
}

// State returns the current turn state.
func (a *Arbiter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SetUIContext records the context string attached to assist lookups.
func (a *Arbiter) SetUIContext(ctx string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.uiContext = ctx
}

// BeginTurn opens a response turn when a capture session ends. The
// target decides whether the overlay races the agent.
func (a *Arbiter) BeginTurn(target capture.Target) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if target == capture.TargetNavAssist {
		a.state = AwaitingAssistRace
	} else {
		a.state = AwaitingAutonomous
	}
	a.candidate = ""
	a.logger.Debug("turn opened", "state", a.state)
}

// HandleText processes an agent text fragment. Structured navigation
// payloads are internal and never shown; ordinary text is surfaced and
// remembered as the fallback candidate.
func (a *Arbiter) HandleText(content string) {
	a.mu.Lock()
	if a.state == Suppressed {
		a.mu.Unlock()
		a.logger.Debug("suppressed turn, text discarded")
		return
	}
	if protocol.LooksLikeNavigationPayload(content) {
		a.mu.Unlock()
		a.logger.Debug("structured navigation payload, not surfaced")
		return
	}
	a.candidate = content
	armTimer := a.state == AwaitingAssistRace
	a.mu.Unlock()

	a.surface.ShowBot(content)
	if armTimer {
		a.fallback.Arm(content)
	}
}

// HandleAudio processes one decoded PCM fragment from the agent.
func (a *Arbiter) HandleAudio(pcm []byte, rate int) {
	a.mu.Lock()
	switch a.state {
	case Suppressed:
		a.mu.Unlock()
		a.fallback.Cancel()
		return
	case Idle:
		a.mu.Unlock()
		a.logger.Debug("no open turn, audio fragment discarded", "bytes", len(pcm))
		return
	}
	a.assembler.Add(pcm, rate)
	a.mu.Unlock()

	// Agent audio is arriving, so local synthesis is not needed.
	a.fallback.Cancel()
}

// HandleTranscription surfaces the user's transcribed speech and, in an
// assist-race turn, launches the overlay lookup with the transcript.
func (a *Arbiter) HandleTranscription(content string) {
	a.surface.ShowUser(content)

	a.mu.Lock()
	race := a.state == AwaitingAssistRace && a.assistant != nil
	uiContext := a.uiContext
	a.mu.Unlock()

	if race {
		go a.runRace(content, uiContext)
	}
}

// HandleNavigate processes a navigation instruction from the agent.
func (a *Arbiter) HandleNavigate(message, route string) {
	a.mu.Lock()
	if message != "" {
		a.candidate = message
	}
	// Navigation closes an autonomous turn; no trailing audio follows.
	// An assist-race turn stays live, the race may still resolve.
	if a.state == AwaitingAutonomous {
		a.state = Idle
	}
	a.mu.Unlock()

	if message != "" {
		a.surface.ShowBot(message)
	}
	if route != "" {
		a.surface.Navigate(route)
	}
}

// HandleTurnComplete closes the turn at the agent's turn boundary.
// Buffered fragments are finalized into exactly one clip; a suppressed
// turn drops them unassembled.
func (a *Arbiter) HandleTurnComplete() {
	a.mu.Lock()
	suppressed := a.state == Suppressed
	var clip []byte
	speakCandidate := ""

	if suppressed {
		a.assembler.Discard()
	} else if a.assembler.Len() > 0 {
		clip = a.assembler.Finalize()
	} else if a.state == AwaitingAssistRace && a.candidate != "" {
		speakCandidate = a.candidate
	}

	a.state = Idle
	a.candidate = ""
	a.mu.Unlock()

	a.fallback.Cancel()

	if clip != nil {
		a.queue.Enqueue(playback.NewClip(clip, nil))
	} else if speakCandidate != "" {
		a.fallback.SpeakNow(context.Background(), speakCandidate)
	}
}

// HandleError surfaces a server-reported error. Turn state is
// untouched; the agent may still complete the turn.
func (a *Arbiter) HandleError(content string) {
	a.surface.ShowError(content)
}

// HandleDisconnect resets the turn on channel loss. Partial fragments
// from the dead connection are dropped.
func (a *Arbiter) HandleDisconnect() {
	a.mu.Lock()
	a.state = Idle
	a.candidate = ""
	a.assembler.Discard()
	a.mu.Unlock()

	a.fallback.Cancel()
}

// FallbackFired closes the turn when the speech fallback timer expires.
// Wire it to the fallback's fire hook.
func (a *Arbiter) FallbackFired(string) {
	a.mu.Lock()
	if a.state == AwaitingAssistRace || a.state == AwaitingAutonomous {
		a.state = Idle
	}
	a.candidate = ""
	a.mu.Unlock()
}

func (a *Arbiter) runRace(transcript, uiContext string) {
	resp, err := a.assistant.Assist(context.Background(), raceSurface, assist.AssistRequest{
		Command: transcript,
		Context: uiContext,
	})
	if err != nil {
		// The race stays open; the agent can still answer.
		a.logger.Warn("assist lookup failed", "error", err)
		a.surface.ShowError("Assist lookup failed")
		return
	}

	a.mu.Lock()
	if a.state != AwaitingAssistRace {
		a.mu.Unlock()
		a.logger.Debug("race resolved after turn closed, verdict dropped", "handled", resp.Handled)
		return
	}
	if resp.Message != "" {
		a.candidate = resp.Message
	}
	spoken := a.candidate
	if resp.Handled {
		a.state = Suppressed
	}
	a.mu.Unlock()

	if resp.Message != "" {
		a.surface.ShowBot(resp.Message)
	}
	for _, action := range resp.Actions {
		a.surface.Apply(action)
	}

	if resp.Handled {
		a.fallback.Cancel()
		if spoken != "" {
			a.fallback.SpeakNow(context.Background(), spoken)
		}
	}
}
