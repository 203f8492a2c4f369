// Package playback serializes playback of assembled audio clips.
// Clips play strictly in FIFO order, one at a time; each clip's resource
// handle is released exactly once, on natural end or on error, and the
// queue always advances: a failing clip never stalls it.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrAutoplayBlocked is returned by a Player when the environment
// refuses to start playback without a user interaction. The clip stays
// at the head of the queue until Unblock is called.
var ErrAutoplayBlocked = errors.New("playback: autoplay blocked, interaction required")

// Clip is a finalized playable audio container with an ephemeral
// resource handle.
type Clip struct {
	// ID identifies the clip in logs.
	ID uuid.UUID

	// Data is the complete WAV container.
	Data []byte

	releaseOnce sync.Once
	released    bool
	onRelease   func()
}

// NewClip wraps WAV bytes in a clip. onRelease, if non-nil, runs when
// the clip's handle is released; it runs at most once.
func NewClip(data []byte, onRelease func()) *Clip {
	return &Clip{
		ID:        uuid.New(),
		Data:      data,
		onRelease: onRelease,
	}
}

// Release frees the clip's resource handle. Safe to call repeatedly;
// only the first call has an effect.
func (c *Clip) Release() {
	c.releaseOnce.Do(func() {
		c.released = true
		if c.onRelease != nil {
			c.onRelease()
		}
	})
}

// Released reports whether the handle has been freed.
func (c *Clip) Released() bool {
	return c.released
}

// Player performs the actual playback of one clip, blocking until the
// clip ends or fails.
type Player interface {
	Play(ctx context.Context, clip *Clip) error
}

// Queue serializes clip playback.
type Queue struct {
	player Player
	logger *slog.Logger

	mu      sync.Mutex
	clips   []*Clip
	playing bool
	closed  bool

	promptShown bool
	unblock     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	// onStatus receives a human status label, "Ready" when the queue
	// drains. onBlocked fires once when autoplay is rejected.
	onStatus  func(label string)
	onBlocked func()
}

// NewQueue creates a playback queue driving the given player.
func NewQueue(player Player, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		player:  player,
		logger:  logger.With("component", "playback"),
		unblock: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// OnStatus sets the status label callback.
func (q *Queue) OnStatus(fn func(label string)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onStatus = fn
}

// OnBlocked sets the one-time autoplay prompt callback.
func (q *Queue) OnBlocked(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onBlocked = fn
}

// Enqueue appends a clip and starts playback if nothing is playing.
func (q *Queue) Enqueue(clip *Clip) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		clip.Release()
		return
	}

	q.clips = append(q.clips, clip)
	q.logger.Debug("clip enqueued", "clip", clip.ID, "bytes", len(clip.Data), "depth", len(q.clips))

	if !q.playing {
		q.playing = true
		go q.run()
	}
}

// Unblock retries the head clip after an autoplay rejection.
func (q *Queue) Unblock() {
	select {
	case q.unblock <- struct{}{}:
	default:
	}
}

// Len returns the number of queued clips, including the one playing.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.clips)
}

// Close stops the queue and releases any queued clips.
func (q *Queue) Close() {
	q.cancel()

	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for _, clip := range q.clips {
		clip.Release()
	}
	q.clips = nil
}

func (q *Queue) run() {
	for {
		q.mu.Lock()
		if q.closed || len(q.clips) == 0 {
			q.playing = false
			status := q.onStatus
			q.mu.Unlock()
			if status != nil {
				status("Ready")
			}
			return
		}
		clip := q.clips[0]
		q.mu.Unlock()

		err := q.player.Play(q.ctx, clip)

		if errors.Is(err, ErrAutoplayBlocked) {
			q.surfaceBlockedPrompt()
			select {
			case <-q.unblock:
				continue // retry the same head clip
			case <-q.ctx.Done():
				continue // closed check at loop top drains
			}
		}

		if err != nil && !errors.Is(err, context.Canceled) {
			q.logger.Warn("clip playback failed, advancing", "clip", clip.ID, "error", err)
		}

		clip.Release()

		q.mu.Lock()
		if len(q.clips) > 0 && q.clips[0] == clip {
			q.clips = q.clips[1:]
		}
		q.mu.Unlock()
	}
}

func (q *Queue) surfaceBlockedPrompt() {
	q.mu.Lock()
	shown := q.promptShown
	q.promptShown = true
	fn := q.onBlocked
	q.mu.Unlock()

	if !shown && fn != nil {
		fn()
	}
}
