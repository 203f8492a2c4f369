// Package session maintains the persistent duplex channel to the
// assistant backend. One channel carries microphone audio and typed
// text up, and interleaved text, audio fragments, and control envelopes
// down. The channel reconnects on a fixed delay for as long as it runs.
package session

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fieldside/sideline/pkg/protocol"
)

const handshakeTimeout = 10 * time.Second

// Status describes the channel's connection lifecycle for display.
type Status int

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusRecording
	StatusDisconnected
)

// Label returns the human-readable status string.
func (s Status) Label() string {
	switch s {
	case StatusConnecting:
		return "Connecting..."
	case StatusConnected:
		return "Connected"
	case StatusRecording:
		return "Recording..."
	case StatusDisconnected:
		return "Disconnected"
	}
	return "Unknown"
}

// Callbacks receive demultiplexed inbound envelopes. Nil callbacks are
// skipped. All callbacks run on the read loop goroutine, in arrival
// order.
type Callbacks struct {
	// OnConnected fires with the server-assigned session ID.
	OnConnected func(sessionID string)

	// OnSetupComplete fires when the agent session is ready for audio.
	OnSetupComplete func()

	// OnText delivers an agent text fragment.
	OnText func(content string)

	// OnAudio delivers one decoded PCM16 fragment and the sample rate
	// declared in its MIME tag, 0 when the tag carried none.
	OnAudio func(pcm []byte, rate int)

	// OnTranscription delivers a transcription of the user's speech.
	OnTranscription func(content string)

	// OnNavigate delivers a navigation instruction.
	OnNavigate func(message, targetRoute string)

	// OnTurnComplete fires at the agent's turn boundary.
	OnTurnComplete func()

	// OnToolCall reports a server-side tool invocation.
	OnToolCall func(name string)

	// OnErrorMsg delivers a server-reported error.
	OnErrorMsg func(content string)

	// OnDisconnect fires whenever the connection drops, before the
	// reconnect delay starts.
	OnDisconnect func(err error)
}

// Channel is the duplex session connection.
type Channel struct {
	url            string
	reconnectDelay time.Duration
	callbacks      Callbacks
	logger         *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	open      bool
	closed    bool
	recording bool
	sessionID string

	onStatus func(Status)
}

// New creates a channel toward the given ws:// or wss:// URL. Run must
// be called to connect.
func New(url string, reconnectDelay time.Duration, cb Callbacks, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		url:            url,
		reconnectDelay: reconnectDelay,
		callbacks:      cb,
		logger:         logger.With("component", "session"),
	}
}

// OnStatus registers the status observer. Call before Run.
func (c *Channel) OnStatus(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = fn
}

// Run connects and keeps the channel alive until ctx is canceled or
// Close is called. Every drop schedules a reconnect after the fixed
// delay, unconditionally and indefinitely.
func (c *Channel) Run(ctx context.Context) {
	for {
		if c.isClosed() || ctx.Err() != nil {
			return
		}

		c.setStatus(StatusConnecting)
		c.logger.Info("dialing session", "url", c.url)

		dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
		conn, _, err := dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.logger.Warn("dial failed", "error", err, "retry_in", c.reconnectDelay)
			c.dropped(err)
			if !c.sleepReconnect(ctx) {
				return
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.open = true
		c.mu.Unlock()

		c.setStatus(StatusConnected)
		c.logger.Info("session channel open")

		readErr := c.readLoop(conn)

		c.mu.Lock()
		c.open = false
		c.conn = nil
		c.mu.Unlock()
		conn.Close()

		c.logger.Warn("session channel dropped", "error", readErr, "retry_in", c.reconnectDelay)
		c.dropped(readErr)
		if !c.sleepReconnect(ctx) {
			return
		}
	}
}

func (c *Channel) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		env, err := protocol.Parse(data)
		if err != nil {
			c.logger.Warn("unparseable envelope", "error", err)
			continue
		}
		c.demux(env)
	}
}

func (c *Channel) demux(env *protocol.Envelope) {
	cb := c.callbacks

	switch env.Type {
	case protocol.TypeConnected:
		c.mu.Lock()
		c.sessionID = env.SessionID
		c.mu.Unlock()
		c.logger.Info("session established", "session_id", env.SessionID)
		if cb.OnConnected != nil {
			cb.OnConnected(env.SessionID)
		}

	case protocol.TypeSetupComplete:
		if cb.OnSetupComplete != nil {
			cb.OnSetupComplete()
		}

	case protocol.TypeText:
		if cb.OnText != nil {
			cb.OnText(env.Content)
		}

	case protocol.TypeAudio:
		pcm, err := base64.StdEncoding.DecodeString(env.Audio)
		if err != nil {
			c.logger.Warn("undecodable audio fragment", "error", err)
			return
		}
		if cb.OnAudio != nil {
			cb.OnAudio(pcm, protocol.RateFromMime(env.MimeType))
		}

	case protocol.TypeTranscription:
		if cb.OnTranscription != nil {
			cb.OnTranscription(env.Content)
		}

	case protocol.TypeNavigate:
		if cb.OnNavigate != nil {
			cb.OnNavigate(env.Message, env.TargetRoute)
		}

	case protocol.TypeTurnComplete:
		if cb.OnTurnComplete != nil {
			cb.OnTurnComplete()
		}

	case protocol.TypeToolCall:
		if cb.OnToolCall != nil {
			cb.OnToolCall(env.Name)
		}

	case protocol.TypeError:
		if cb.OnErrorMsg != nil {
			cb.OnErrorMsg(env.Content)
		}

	default:
		c.logger.Debug("ignoring unknown envelope type", "type", env.Type)
	}
}

// ErrNotOpen is returned by Send when the channel has no live
// connection. The envelope is dropped, never queued.
var ErrNotOpen = errors.New("session: channel not open")

// Send marshals and writes an envelope. Writes are serialized; when the
// channel is not open the envelope is dropped and logged.
func (c *Channel) Send(env *protocol.Envelope) error {
	data, err := env.Bytes()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open || c.conn == nil {
		c.logger.Debug("dropping envelope, channel not open", "type", env.Type)
		return ErrNotOpen
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// IsOpen reports whether a live connection exists.
func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// SessionID returns the server-assigned session ID, empty before the
// first connected envelope.
func (c *Channel) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SetRecording flips the displayed status between Recording and
// Connected while the channel is open.
func (c *Channel) SetRecording(on bool) {
	c.mu.Lock()
	c.recording = on
	open := c.open
	c.mu.Unlock()

	if !open {
		return
	}
	if on {
		c.setStatus(StatusRecording)
	} else {
		c.setStatus(StatusConnected)
	}
}

// Close permanently shuts the channel down. Run returns after the
// current connection drops.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.open = false
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) dropped(err error) {
	c.setStatus(StatusDisconnected)
	if c.callbacks.OnDisconnect != nil {
		c.callbacks.OnDisconnect(err)
	}
}

func (c *Channel) sleepReconnect(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.reconnectDelay):
		return !c.isClosed()
	}
}

func (c *Channel) setStatus(s Status) {
	c.mu.Lock()
	fn := c.onStatus
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}
