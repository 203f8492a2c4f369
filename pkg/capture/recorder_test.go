package capture

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/fieldside/sideline/pkg/audioio"
	"github.com/fieldside/sideline/pkg/protocol"
)

// fakeSender records envelopes sent through it.
type fakeSender struct {
	mu   sync.Mutex
	sent []*protocol.Envelope
	open bool
}

func (f *fakeSender) Send(env *protocol.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeSender) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeSender) envelopes() []*protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*protocol.Envelope, len(f.sent))
	copy(out, f.sent)
	return out
}

func mockSource() *audioio.MockSource {
	cfg := audioio.DefaultConfig()
	cfg.FrameSize = 256 // short frames keep the test fast
	return audioio.NewMockSource(cfg, nil, audioio.WithSineWave(440, 0.5))
}

func TestRecorderStreamsFramesAndDelimiter(t *testing.T) {
	sender := &fakeSender{open: true}
	rec := NewRecorder(sender, nil)

	var turnTargets []Target
	var mu sync.Mutex
	rec.OnTurnStart(func(tgt Target) {
		mu.Lock()
		turnTargets = append(turnTargets, tgt)
		mu.Unlock()
	})

	if err := rec.Start(context.Background(), mockSource(), TargetPrimaryChat); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sender.envelopes()) >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec.Stop()

	envs := sender.envelopes()
	if len(envs) < 2 {
		t.Fatalf("expected audio frames, got %d envelopes", len(envs))
	}

	ends := 0
	for _, env := range envs {
		switch env.Type {
		case protocol.TypeAudioStreamEnd:
			ends++
		case protocol.TypeAudio:
			if env.MimeType != "audio/pcm;rate=16000" {
				t.Errorf("mime = %q", env.MimeType)
			}
			if _, err := base64.StdEncoding.DecodeString(env.Audio); err != nil {
				t.Errorf("audio not base64: %v", err)
			}
		default:
			t.Errorf("unexpected envelope type %s", env.Type)
		}
	}
	if ends != 1 {
		t.Errorf("stream end sent %d times, want 1", ends)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(turnTargets) != 1 || turnTargets[0] != TargetPrimaryChat {
		t.Errorf("turn start = %v, want one primary_chat", turnTargets)
	}
}

func TestRecorderSingleSession(t *testing.T) {
	sender := &fakeSender{open: true}
	rec := NewRecorder(sender, nil)

	if err := rec.Start(context.Background(), mockSource(), TargetPrimaryChat); err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer rec.Stop()

	if err := rec.Start(context.Background(), mockSource(), TargetNavAssist); err != ErrAlreadyRecording {
		t.Errorf("second start = %v, want ErrAlreadyRecording", err)
	}
}

func TestRecorderStopIdempotent(t *testing.T) {
	sender := &fakeSender{open: true}
	rec := NewRecorder(sender, nil)

	var turnStarts int
	var mu sync.Mutex
	rec.OnTurnStart(func(Target) {
		mu.Lock()
		turnStarts++
		mu.Unlock()
	})

	if err := rec.Start(context.Background(), mockSource(), TargetNavAssist); err != nil {
		t.Fatalf("start: %v", err)
	}

	rec.Stop()
	rec.Stop()
	rec.Stop()

	mu.Lock()
	defer mu.Unlock()
	if turnStarts != 1 {
		t.Errorf("turn started %d times, want 1", turnStarts)
	}

	// Exactly one delimiter regardless of extra stops.
	ends := 0
	for _, env := range sender.envelopes() {
		if env.Type == protocol.TypeAudioStreamEnd {
			ends++
		}
	}
	if ends != 1 {
		t.Errorf("stream end sent %d times, want 1", ends)
	}
}

func TestRecorderNoDelimiterWhenChannelClosed(t *testing.T) {
	sender := &fakeSender{open: false}
	rec := NewRecorder(sender, nil)

	if err := rec.Start(context.Background(), mockSource(), TargetPrimaryChat); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.Stop()

	for _, env := range sender.envelopes() {
		if env.Type == protocol.TypeAudioStreamEnd {
			t.Error("stream end must not be sent on a closed channel")
		}
	}
}

func TestPCM16Conversion(t *testing.T) {
	cases := []struct {
		name    string
		samples []float32
		want    []int16
	}{
		{"silence", []float32{0}, []int16{0}},
		{"full scale", []float32{1, -1}, []int16{32767, -32768}},
		{"half scale", []float32{0.5, -0.5}, []int16{16383, -16384}},
		{"clamped hot signal", []float32{1.7, -2.3}, []int16{32767, -32768}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := PCM16FromFloat32(tc.samples)
			if len(got) != len(tc.want)*2 {
				t.Fatalf("length %d, want %d", len(got), len(tc.want)*2)
			}
			for i, want := range tc.want {
				v := int16(uint16(got[i*2]) | uint16(got[i*2+1])<<8)
				if v != want {
					t.Errorf("sample %d = %d, want %d", i, v, want)
				}
			}
		})
	}
}

func TestTargetString(t *testing.T) {
	if TargetPrimaryChat.String() != "primary_chat" {
		t.Error("primary chat name")
	}
	if TargetNavAssist.String() != "nav_assist" {
		t.Error("nav assist name")
	}
}
