// Package protocol defines the JSON envelopes exchanged over the
// assistant session channel. Envelopes are flat objects discriminated
// by a "type" field; unknown inbound types are ignored by consumers.
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EnvelopeType identifies the kind of session message.
type EnvelopeType string

const (
	// Server → client envelopes.
	TypeConnected     EnvelopeType = "connected"
	TypeSetupComplete EnvelopeType = "setup_complete"
	TypeText          EnvelopeType = "text"
	TypeAudio         EnvelopeType = "audio"
	TypeTranscription EnvelopeType = "transcription"
	TypeNavigate      EnvelopeType = "navigate"
	TypeTurnComplete  EnvelopeType = "turn_complete"
	TypeToolCall      EnvelopeType = "tool_call"
	TypeError         EnvelopeType = "error"

	// Client → server envelopes. TypeText and TypeAudio are
	// bidirectional.
	TypeAudioStreamEnd EnvelopeType = "audio_stream_end"
)

// Envelope is the wire format for all session messages. Fields not used
// by a given type are omitted from the encoding.
type Envelope struct {
	Type EnvelopeType `json:"type"`

	// Text-bearing fields.
	Content string `json:"content,omitempty"`
	Message string `json:"message,omitempty"`

	// Audio fields. Audio is base64-encoded PCM16; MimeType carries the
	// sample rate as a tag, e.g. "audio/pcm;rate=24000".
	Audio    string `json:"audio,omitempty"`
	MimeType string `json:"mime_type,omitempty"`

	// Session / navigation fields.
	SessionID   string `json:"session_id,omitempty"`
	TargetRoute string `json:"target_route,omitempty"`

	// Tool call name, present on tool_call envelopes.
	Name string `json:"name,omitempty"`

	// ResponseModalities controls what the agent streams back for a
	// typed message: ["text"] or ["audio","text"].
	ResponseModalities []string `json:"response_modalities,omitempty"`
}

// Parse decodes an envelope from raw JSON.
func Parse(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: parse envelope: %w", err)
	}
	return &env, nil
}

// Bytes returns the JSON encoding of the envelope.
func (e *Envelope) Bytes() ([]byte, error) {
	return json.Marshal(e)
}

// NewAudio builds an outbound audio envelope from already base64-encoded
// PCM16 data and its MIME rate tag.
func NewAudio(audioB64, mimeType string) *Envelope {
	return &Envelope{Type: TypeAudio, Audio: audioB64, MimeType: mimeType}
}

// NewAudioStreamEnd builds the envelope that delimits the outbound audio
// stream so the server can close the turn boundary.
func NewAudioStreamEnd() *Envelope {
	return &Envelope{Type: TypeAudioStreamEnd}
}

// NewText builds an outbound text envelope. modalities selects whether
// the agent answers with text only or audio and text.
func NewText(content string, modalities []string) *Envelope {
	return &Envelope{Type: TypeText, Content: content, ResponseModalities: modalities}
}

// PCMMimeType returns the MIME tag for linear PCM at the given rate.
func PCMMimeType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}

// RateFromMime extracts the sample rate from a MIME-like tag such as
// "audio/pcm;rate=24000". Returns 0 when no usable rate is declared.
func RateFromMime(mime string) int {
	for _, part := range strings.Split(mime, ";") {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, "rate=") {
			continue
		}
		rate, err := strconv.Atoi(strings.TrimPrefix(part, "rate="))
		if err != nil || rate <= 0 {
			return 0
		}
		return rate
	}
	return 0
}

// LooksLikeNavigationPayload reports whether text is a structured
// navigation payload: a JSON object literal carrying a "page" or
// "destination" field. Malformed JSON is treated as ordinary text so
// content is shown rather than silently dropped.
func LooksLikeNavigationPayload(text string) bool {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return false
	}
	if _, ok := obj["page"]; ok {
		return true
	}
	_, ok := obj["destination"]
	return ok
}
