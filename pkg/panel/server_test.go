package panel

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestHealthz(t *testing.T) {
	s := NewServer(":0", nil)

	resp, err := s.app.Test(httptest.NewRequest("GET", "/healthz", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestStateSnapshot(t *testing.T) {
	s := NewServer(":0", nil)
	s.SetSessionStatus("Connected")
	s.SetSessionID("s-42")
	s.SetTurnState("awaiting_assist_race")
	s.SetRecording(true)
	s.SetQueueDepth(2)

	resp, err := s.app.Test(httptest.NewRequest("GET", "/api/state", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	var state State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.SessionStatus != "Connected" || state.SessionID != "s-42" {
		t.Errorf("state = %+v", state)
	}
	if state.TurnState != "awaiting_assist_race" || !state.Recording || state.QueueDepth != 2 {
		t.Errorf("state = %+v", state)
	}
}

func TestConversationBufferCapped(t *testing.T) {
	s := NewServer(":0", nil)

	for i := 0; i < conversationBuffer+50; i++ {
		s.AddConversation("bot", "line")
	}

	resp, err := s.app.Test(httptest.NewRequest("GET", "/api/conversation", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	var entries []ConversationEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != conversationBuffer {
		t.Errorf("retained %d entries, want %d", len(entries), conversationBuffer)
	}
}

func TestWebsocketUpgradeRequired(t *testing.T) {
	s := NewServer(":0", nil)

	resp, err := s.app.Test(httptest.NewRequest("GET", "/ws/events", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 426 {
		t.Errorf("plain GET on /ws/events = %d, want 426", resp.StatusCode)
	}
}
