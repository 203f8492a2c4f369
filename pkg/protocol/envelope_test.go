package protocol

import (
	"strings"
	"testing"
)

func TestParseInbound(t *testing.T) {
	raw := `{"type":"audio","audio":"AAEC","mime_type":"audio/pcm;rate=24000"}`

	env, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if env.Type != TypeAudio {
		t.Errorf("expected type audio, got %s", env.Type)
	}
	if env.Audio != "AAEC" {
		t.Errorf("unexpected audio payload: %s", env.Audio)
	}
	if got := RateFromMime(env.MimeType); got != 24000 {
		t.Errorf("expected rate 24000, got %d", got)
	}
}

func TestParseRejectsNonJSON(t *testing.T) {
	if _, err := Parse([]byte("not json")); err == nil {
		t.Error("expected error for non-JSON input")
	}
}

func TestOutboundEnvelopes(t *testing.T) {
	audio := NewAudio("cGNt", PCMMimeType(16000))
	data, err := audio.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if !strings.Contains(string(data), `"mime_type":"audio/pcm;rate=16000"`) {
		t.Errorf("audio envelope missing rate tag: %s", data)
	}

	end, _ := NewAudioStreamEnd().Bytes()
	if string(end) != `{"type":"audio_stream_end"}` {
		t.Errorf("unexpected stream end encoding: %s", end)
	}

	text, _ := NewText("hello", []string{"audio", "text"}).Bytes()
	if !strings.Contains(string(text), `"response_modalities":["audio","text"]`) {
		t.Errorf("text envelope missing modalities: %s", text)
	}
}

func TestRateFromMime(t *testing.T) {
	tests := []struct {
		mime string
		want int
	}{
		{"audio/pcm;rate=24000", 24000},
		{"audio/pcm; rate=16000", 16000},
		{"audio/pcm", 0},
		{"", 0},
		{"audio/pcm;rate=abc", 0},
		{"audio/pcm;rate=-1", 0},
	}

	for _, tt := range tests {
		if got := RateFromMime(tt.mime); got != tt.want {
			t.Errorf("RateFromMime(%q) = %d, want %d", tt.mime, got, tt.want)
		}
	}
}

func TestLooksLikeNavigationPayload(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"page field", `{"page":"#stats"}`, true},
		{"destination field", `{"destination":"#dashboard","message":"ok"}`, true},
		{"other object", `{"content":"hi"}`, false},
		{"plain text", "take me to stats", false},
		{"malformed json fails safe", `{"page": unterminated`, false},
		{"array", `[{"page":"#x"}]`, false},
		{"leading whitespace", ` {"page":"#x"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LooksLikeNavigationPayload(tt.text); got != tt.want {
				t.Errorf("LooksLikeNavigationPayload(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
