package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fieldside/sideline/pkg/playback"
	"github.com/fieldside/sideline/pkg/tts"
	"github.com/fieldside/sideline/pkg/wav"
)

type clipRecorder struct {
	mu    sync.Mutex
	clips []*playback.Clip
}

func (r *clipRecorder) Enqueue(clip *playback.Clip) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clips = append(r.clips, clip)
}

func (r *clipRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clips)
}

func (r *clipRecorder) first() *playback.Clip {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.clips) == 0 {
		return nil
	}
	return r.clips[0]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestArmFiresAfterDelay(t *testing.T) {
	rec := &clipRecorder{}
	s := NewSpeaker(tts.NewMock(), rec, 20*time.Millisecond, nil)

	s.Arm("the play is under review")

	waitFor(t, func() bool { return rec.count() == 1 })

	clip := rec.first()
	_, rate, err := wav.Decode(clip.Data)
	if err != nil {
		t.Fatalf("queued clip is not a wav container: %v", err)
	}
	if rate != 24000 {
		t.Errorf("clip rate = %d, want 24000", rate)
	}
}

func TestCancelDisarms(t *testing.T) {
	rec := &clipRecorder{}
	s := NewSpeaker(tts.NewMock(), rec, 20*time.Millisecond, nil)

	s.Arm("should never be spoken")
	s.Cancel()

	time.Sleep(80 * time.Millisecond)
	if rec.count() != 0 {
		t.Error("canceled timer still synthesized")
	}
}

func TestCancelWhenIdleIsSafe(t *testing.T) {
	s := NewSpeaker(tts.NewMock(), &clipRecorder{}, time.Millisecond, nil)
	s.Cancel()
	s.Cancel()
}

func TestRearmReplacesPendingTimer(t *testing.T) {
	rec := &clipRecorder{}
	mock := tts.NewMock()
	s := NewSpeaker(mock, rec, 30*time.Millisecond, nil)

	s.Arm("first candidate")
	time.Sleep(10 * time.Millisecond)
	s.Arm("second candidate")

	waitFor(t, func() bool { return rec.count() >= 1 })
	time.Sleep(60 * time.Millisecond)

	if rec.count() != 1 {
		t.Fatalf("expected exactly one synthesis, got %d", rec.count())
	}
	last := mock.LastCall()
	if last == nil || last.Text != "second candidate" {
		t.Errorf("spoke %+v, want second candidate", last)
	}
}

func TestSpeakNowFailureSurfaces(t *testing.T) {
	rec := &clipRecorder{}
	s := NewSpeaker(tts.WithError(errors.New("no voice")), rec, time.Hour, nil)

	var statuses []string
	var errMsg string
	var mu sync.Mutex
	s.OnStatus(func(label string) {
		mu.Lock()
		statuses = append(statuses, label)
		mu.Unlock()
	})
	s.OnError(func(msg string) {
		mu.Lock()
		errMsg = msg
		mu.Unlock()
	})

	s.SpeakNow(context.Background(), "doomed")

	mu.Lock()
	defer mu.Unlock()
	if errMsg == "" {
		t.Error("failure not surfaced")
	}
	if len(statuses) != 2 || statuses[0] != "Speaking..." || statuses[1] != "Ready" {
		t.Errorf("statuses = %v", statuses)
	}
	if rec.count() != 0 {
		t.Error("failed synthesis must not enqueue a clip")
	}
}

func TestSpeakNowIgnoresEmptyText(t *testing.T) {
	mock := tts.NewMock()
	s := NewSpeaker(mock, &clipRecorder{}, time.Hour, nil)

	s.SpeakNow(context.Background(), "")

	if mock.CallCount("Synthesize") != 0 {
		t.Error("empty text must not reach the provider")
	}
}

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		text string
		want tts.Language
	}{
		{"hello there", tts.LangEnglish},
		{"", tts.LangEnglish},
		{"مرحبا", tts.LangArabic},
		{"score update: تعادل", tts.LangArabic},
		{"numbers 123 only", tts.LangEnglish},
	}
	for _, tc := range cases {
		if got := DetectLanguage(tc.text); got != tc.want {
			t.Errorf("DetectLanguage(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}
