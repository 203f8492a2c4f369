package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fieldside/sideline/internal/httpc"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"

	// outputFormat keeps synthesis at 24 kHz mono PCM16, matching the
	// rate agent speech arrives at.
	elevenLabsOutputFormat = "pcm_24000"
	elevenLabsSampleRate   = 24000
)

// ElevenLabs model IDs.
const (
	// ModelTurboV2_5 is the fastest English model.
	ModelTurboV2_5 = "eleven_turbo_v2_5"

	// ModelMultilingualV2 handles Arabic and other non-English text.
	ModelMultilingualV2 = "eleven_multilingual_v2"
)

// ElevenLabs implements Provider using the ElevenLabs HTTP API.
type ElevenLabs struct {
	apiKey  string
	voiceID string
	client  *http.Client
	logger  *slog.Logger
	baseURL string

	// maxRetries for rate-limit and server errors.
	maxRetries int
}

// ElevenLabsOption configures the provider.
type ElevenLabsOption func(*ElevenLabs)

// WithBaseURL overrides the API base URL (used by tests).
func WithBaseURL(url string) ElevenLabsOption {
	return func(e *ElevenLabs) { e.baseURL = url }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) ElevenLabsOption {
	return func(e *ElevenLabs) { e.client = c }
}

// NewElevenLabs creates a new ElevenLabs TTS provider.
func NewElevenLabs(apiKey, voiceID string, opts ...ElevenLabsOption) (*ElevenLabs, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if voiceID == "" {
		return nil, ErrNoVoiceID
	}

	e := &ElevenLabs{
		apiKey:     apiKey,
		voiceID:    voiceID,
		client:     httpc.NewClient(30 * time.Second),
		logger:     slog.Default().With("component", "tts.elevenlabs"),
		baseURL:    elevenLabsBaseURL,
		maxRetries: 2,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Synthesize converts text to 24 kHz mono PCM16 audio.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string, lang Language) (*AudioResult, error) {
	start := time.Now()

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", e.baseURL, e.voiceID, elevenLabsOutputFormat)

	payload := map[string]any{
		"text":     text,
		"model_id": modelFor(lang),
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("marshal payload: %w", err))
	}

	resp, err := e.doWithRetry(ctx, url, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	latency := time.Since(start).Milliseconds()

	if resp.StatusCode != http.StatusOK {
		return nil, e.parseError(resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("read response: %w", err))
	}

	e.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"lang", lang,
	)

	return &AudioResult{
		Audio: audio,
		Format: AudioFormat{
			SampleRate: elevenLabsSampleRate,
			Channels:   1,
			BitDepth:   16,
		},
		CharCount: len(text),
		LatencyMs: latency,
		Duration:  estimateDuration(len(audio), elevenLabsSampleRate),
	}, nil
}

func modelFor(lang Language) string {
	if lang == LangArabic {
		return ModelMultilingualV2
	}
	return ModelTurboV2_5
}

func (e *ElevenLabs) doWithRetry(ctx context.Context, url string, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, WrapError(providerElevenLabs, fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("xi-api-key", e.apiKey)

		resp, err := e.client.Do(req)
		if err != nil {
			lastErr = WrapError(providerElevenLabs, err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			apiErr := e.parseError(resp)
			lastErr = apiErr
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

func (e *ElevenLabs) parseError(resp *http.Response) error {
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := string(body)

	var detail struct {
		Detail struct {
			Message string `json:"message"`
		} `json:"detail"`
	}
	if err := json.Unmarshal(body, &detail); err == nil && detail.Detail.Message != "" {
		msg = detail.Detail.Message
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    msg,
		Provider:   providerElevenLabs,
	}
}

// Health verifies the API key by listing voices.
func (e *ElevenLabs) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/voices", nil)
	if err != nil {
		return WrapError(providerElevenLabs, err)
	}
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return WrapError(providerElevenLabs, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return e.parseError(resp)
	}
	return nil
}

// Close releases resources.
func (e *ElevenLabs) Close() error {
	return nil
}

func estimateDuration(audioBytes, sampleRate int) time.Duration {
	if sampleRate == 0 {
		return 0
	}
	samples := audioBytes / 2
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}

var _ Provider = (*ElevenLabs)(nil)
