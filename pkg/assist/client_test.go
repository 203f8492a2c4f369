package assist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestAssistRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ai-agent/assist" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req AssistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Command != "open the stats page" {
			t.Errorf("command = %q", req.Command)
		}
		json.NewEncoder(w).Encode(AssistResponse{
			Message: "Opening stats",
			Handled: true,
			Actions: []Action{{Type: ActionNavigate, Route: "/stats"}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	resp, err := c.Assist(context.Background(), "chat", AssistRequest{
		Command: "open the stats page",
		Context: "dashboard",
	})
	if err != nil {
		t.Fatalf("assist: %v", err)
	}
	if !resp.Handled {
		t.Error("expected handled")
	}
	if len(resp.Actions) != 1 || resp.Actions[0].Type != ActionNavigate || resp.Actions[0].Route != "/stats" {
		t.Errorf("actions = %+v", resp.Actions)
	}
}

func TestAssistPerSurfaceGuard(t *testing.T) {
	entered := make(chan struct{})
	proceed := make(chan struct{})
	var once sync.Once

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(entered) })
		<-proceed
		json.NewEncoder(w).Encode(AssistResponse{Handled: false})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Assist(context.Background(), "chat", AssistRequest{Command: "slow"})
	}()

	<-entered

	// Same surface is rejected while the first request is outstanding.
	if _, err := c.Assist(context.Background(), "chat", AssistRequest{Command: "second"}); err != ErrRequestInFlight {
		t.Errorf("same surface = %v, want ErrRequestInFlight", err)
	}

	close(proceed)
	wg.Wait()

	// Guard releases once the request finishes.
	if _, err := c.Assist(context.Background(), "chat", AssistRequest{Command: "third"}); err != nil {
		t.Errorf("after release: %v", err)
	}
}

func TestAssistGuardIsPerSurface(t *testing.T) {
	entered := make(chan struct{})
	proceed := make(chan struct{})
	var once sync.Once

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req AssistRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Command == "slow" {
			once.Do(func() { close(entered) })
			<-proceed
		}
		json.NewEncoder(w).Encode(AssistResponse{Handled: true})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Assist(context.Background(), "chat", AssistRequest{Command: "slow"})
	}()
	<-entered
	defer func() { close(proceed); wg.Wait() }()

	if _, err := c.Assist(context.Background(), "nav", AssistRequest{Command: "fast"}); err != nil {
		t.Errorf("different surface blocked: %v", err)
	}
}

func TestQueryRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ai-agent/query" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req QueryRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(QueryResponse{
			Content:     "Third down conversion rate is 42%",
			Category:    "stats",
			ToolUsed:    "stats_lookup",
			SessionID:   req.SessionID,
			TargetRoute: "/stats/downs",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	resp, err := c.Query(context.Background(), QueryRequest{
		Message:   "what is our third down rate",
		SessionID: "s-9",
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if resp.SessionID != "s-9" {
		t.Errorf("session id = %q", resp.SessionID)
	}
	if resp.TargetRoute != "/stats/downs" {
		t.Errorf("target route = %q", resp.TargetRoute)
	}
}

func TestUploadMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ai-agent/upload" {
			t.Errorf("path = %s", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer file.Close()
		if header.Filename != "drive_chart.csv" {
			t.Errorf("filename = %q", header.Filename)
		}
		json.NewEncoder(w).Encode(UploadResponse{
			Status:   "success",
			Filename: header.Filename,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	resp, err := c.Upload(context.Background(), "/tmp/drive_chart.csv", strings.NewReader("q,yds\n1,87\n"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.Status != "success" || resp.Filename != "drive_chart.csv" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent offline", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	if _, err := c.Query(context.Background(), QueryRequest{Message: "x"}); err == nil {
		t.Fatal("expected error on 502")
	}
}
