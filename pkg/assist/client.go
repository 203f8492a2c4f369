// Package assist is the HTTP client for the backend's assist, query,
// and upload endpoints. The assist endpoint powers the local overlay
// that races the agent's autonomous response; query is the synchronous
// ask path; upload pushes game footage and data files.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fieldside/sideline/internal/httpc"
)

// Action types the assist endpoint can instruct the client to perform.
const (
	ActionNavigate       = "navigate"
	ActionOpenUpload     = "open_upload"
	ActionFocusChatInput = "focus_chat_input"
	ActionInsertText     = "insert_text"
	ActionSendText       = "send_text"
	ActionShowGuide      = "show_guide"
	ActionOpenChat       = "open_chat"
	ActionHighlight      = "highlight"
)

// ErrRequestInFlight is returned when a surface already has an assist
// request outstanding.
var ErrRequestInFlight = errors.New("assist: request already in flight for surface")

// Action is one client-side effect requested by the assist endpoint.
type Action struct {
	Type   string `json:"type"`
	Target string `json:"target,omitempty"`
	Text   string `json:"text,omitempty"`
	Route  string `json:"route,omitempty"`
}

// AssistRequest carries a spoken or typed command plus UI context.
type AssistRequest struct {
	Command string `json:"command"`
	Context string `json:"context,omitempty"`
}

// AssistResponse is the overlay's verdict on a command.
type AssistResponse struct {
	Message string   `json:"message"`
	Handled bool     `json:"handled"`
	Actions []Action `json:"actions,omitempty"`
}

// QueryRequest is a synchronous question to the agent.
type QueryRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	Context   string `json:"context,omitempty"`
}

// QueryResponse is the agent's synchronous answer.
type QueryResponse struct {
	Content     string         `json:"content"`
	Category    string         `json:"category,omitempty"`
	ToolUsed    string         `json:"tool_used,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	TargetRoute string         `json:"target_route,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// UploadResponse acknowledges a file upload.
type UploadResponse struct {
	Status   string `json:"status"`
	Filename string `json:"filename"`
	Message  string `json:"message,omitempty"`
}

// Client talks to the assist API.
type Client struct {
	base   string
	http   *http.Client
	logger *slog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// New creates a client for the API at base, e.g. "http://localhost:8000".
func New(base string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:     strings.TrimRight(base, "/"),
		http:     httpc.NewClient(httpc.DefaultTimeout),
		logger:   logger.With("component", "assist"),
		inFlight: make(map[string]bool),
	}
}

// Assist asks the overlay whether it handles a command. surface names
// the UI flow making the request; a surface can have only one assist
// request outstanding at a time.
func (c *Client) Assist(ctx context.Context, surface string, req AssistRequest) (*AssistResponse, error) {
	if err := c.acquire(surface); err != nil {
		return nil, err
	}
	defer c.release(surface)

	started := time.Now()
	var resp AssistResponse
	if err := c.postJSON(ctx, "/api/ai-agent/assist", req, &resp); err != nil {
		return nil, err
	}

	c.logger.Debug("assist verdict",
		"surface", surface,
		"handled", resp.Handled,
		"actions", len(resp.Actions),
		"latency_ms", time.Since(started).Milliseconds(),
	)
	return &resp, nil
}

// Query asks the agent a question synchronously.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	var resp QueryResponse
	if err := c.postJSON(ctx, "/api/ai-agent/query", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Upload pushes a file to the backend as multipart form data.
func (c *Client) Upload(ctx context.Context, filename string, content io.Reader) (*UploadResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("assist: create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("assist: buffer upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("assist: finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/ai-agent/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("assist: create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assist: upload: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, c.statusError("upload", httpResp)
	}

	var resp UploadResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("assist: decode upload response: %w", err)
	}

	c.logger.Info("file uploaded", "filename", resp.Filename, "status", resp.Status)
	return &resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("assist: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("assist: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("assist: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(path, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("assist: decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) statusError(what string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("assist: %s returned %d: %s", what, resp.StatusCode, strings.TrimSpace(string(body)))
}

func (c *Client) acquire(surface string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[surface] {
		return ErrRequestInFlight
	}
	c.inFlight[surface] = true
	return nil
}

func (c *Client) release(surface string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, surface)
}
