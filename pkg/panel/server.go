package panel

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
)

// State is the panel's snapshot of the running session.
type State struct {
	SessionStatus string `json:"session_status"`
	SessionID     string `json:"session_id"`
	TurnState     string `json:"turn_state"`
	Recording     bool   `json:"recording"`
	QueueDepth    int    `json:"queue_depth"`
	Observers     int    `json:"observers"`
}

// ConversationEntry is one rendered line of the conversation.
type ConversationEntry struct {
	Time    string `json:"time"`
	Role    string `json:"role"` // user, bot, error
	Message string `json:"message"`
}

// event is the wire shape of one feed item.
type event struct {
	Type  string `json:"type"` // state, conversation
	State *State `json:"state,omitempty"`
	Entry *ConversationEntry `json:"entry,omitempty"`
}

// conversationBuffer caps the retained transcript.
const conversationBuffer = 200

// Server is the observer panel server.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger
	events *hub

	mu           sync.RWMutex
	state        State
	conversation []ConversationEntry
}

// NewServer creates the panel server listening on addr.
func NewServer(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "panel")

	s := &Server{
		addr:         addr,
		logger:       logger,
		events:       newHub(logger),
		conversation: make([]ConversationEntry, 0, conversationBuffer),
		state:        State{SessionStatus: "Connecting...", TurnState: "idle"},
	}

	app := fiber.New(fiber.Config{
		AppName:               "Sideline Panel",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/api/state", s.handleState)
	app.Get("/api/conversation", s.handleConversation)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// Start runs the server until Shutdown. Blocks.
func (s *Server) Start() error {
	go s.events.run()
	s.logger.Info("panel listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown stops the server and detaches all observers.
func (s *Server) Shutdown() error {
	s.events.stop()
	return s.app.Shutdown()
}

func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.snapshot())
}

func (s *Server) handleConversation(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.JSON(s.conversation)
}

func (s *Server) handleEventsWS(conn *websocket.Conn) {
	// Seed the new observer with the current snapshot.
	if data, err := json.Marshal(event{Type: "state", State: s.snapshotPtr()}); err == nil {
		conn.WriteMessage(websocket.TextMessage, data)
	}
	newClient(s.events, conn).serve()
}

// SetSessionStatus records and broadcasts a session status label.
func (s *Server) SetSessionStatus(label string) {
	s.mu.Lock()
	s.state.SessionStatus = label
	s.mu.Unlock()
	s.broadcastState()
}

// SetSessionID records the server-assigned session ID.
func (s *Server) SetSessionID(id string) {
	s.mu.Lock()
	s.state.SessionID = id
	s.mu.Unlock()
	s.broadcastState()
}

// SetTurnState records and broadcasts the arbitration state name.
func (s *Server) SetTurnState(name string) {
	s.mu.Lock()
	s.state.TurnState = name
	s.mu.Unlock()
	s.broadcastState()
}

// SetRecording records and broadcasts the capture flag.
func (s *Server) SetRecording(on bool) {
	s.mu.Lock()
	s.state.Recording = on
	s.mu.Unlock()
	s.broadcastState()
}

// SetQueueDepth records and broadcasts the playback queue depth.
func (s *Server) SetQueueDepth(depth int) {
	s.mu.Lock()
	s.state.QueueDepth = depth
	s.mu.Unlock()
	s.broadcastState()
}

// AddConversation appends a transcript entry and broadcasts it.
func (s *Server) AddConversation(role, message string) {
	entry := ConversationEntry{
		Time:    time.Now().Format("15:04:05"),
		Role:    role,
		Message: message,
	}

	s.mu.Lock()
	s.conversation = append(s.conversation, entry)
	if len(s.conversation) > conversationBuffer {
		s.conversation = s.conversation[len(s.conversation)-conversationBuffer:]
	}
	s.mu.Unlock()

	if data, err := json.Marshal(event{Type: "conversation", Entry: &entry}); err == nil {
		s.events.send(data)
	}
}

func (s *Server) snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := s.state
	state.Observers = s.events.observerCount()
	return state
}

func (s *Server) snapshotPtr() *State {
	state := s.snapshot()
	return &state
}

func (s *Server) broadcastState() {
	if data, err := json.Marshal(event{Type: "state", State: s.snapshotPtr()}); err == nil {
		s.events.send(data)
	}
}
