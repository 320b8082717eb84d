package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/shawkridge/athena-sub002/internal/agents"
	"github.com/shawkridge/athena-sub002/internal/aggregator"
	"github.com/shawkridge/athena-sub002/internal/cache"
	"github.com/shawkridge/athena-sub002/internal/circuitbreaker"
	"github.com/shawkridge/athena-sub002/internal/executor"
	"github.com/shawkridge/athena-sub002/internal/models"
	"github.com/shawkridge/athena-sub002/internal/ratelimit"
	"github.com/shawkridge/athena-sub002/internal/store"
	"github.com/shawkridge/athena-sub002/internal/streaming"
)

func newTasksHandler(t *testing.T) (*TasksHandler, *store.MemoryStore) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	registry := agents.NewRegistry(logger)
	if err := registry.Register(&agents.StaticAgent{
		Source:   "documentation",
		Findings: []models.RawFinding{{Title: "Effective Go", Credibility: 0.95, Relevance: 1}},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	memStore := store.NewMemoryStore()
	exec := executor.New(
		registry,
		circuitbreaker.NewManager(circuitbreaker.DefaultConfig(), nil, logger),
		ratelimit.NewLimiter(nil, logger),
		cache.New(10, logger),
		aggregator.New(aggregator.Config{SourceCredibility: registry.Credibilities()}, logger),
		memStore, nil, streaming.NewManager(16),
		executor.Config{AgentTimeout: time.Second},
		logger,
	)
	return NewTasksHandler(exec, memStore, logger), memStore
}

func TestSubmitResearchTask(t *testing.T) {
	handler, memStore := newTasksHandler(t)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	body := strings.NewReader(`{"topic":"error handling patterns"}`)
	req := httptest.NewRequest(http.MethodPost, "/research", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	var resp submitResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TaskID == "" {
		t.Fatal("empty task_id")
	}

	// Background run finishes quickly with the static agent.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := memStore.GetTask(context.Background(), resp.TaskID)
		if err == nil && task.IsTerminal() {
			if task.Status != models.StatusCompleted {
				t.Fatalf("task status = %s, want completed", task.Status)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("task never reached a terminal state")
}

func TestSubmitRejectsMissingTopic(t *testing.T) {
	handler, _ := newTasksHandler(t)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/research", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetTask(t *testing.T) {
	handler, memStore := newTasksHandler(t)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	task := &models.ResearchTask{ID: "t1", Topic: "x", Status: models.StatusRunning}
	if err := memStore.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("create: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/research?task_id=t1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got models.ResearchTask
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "t1" || got.Status != models.StatusRunning {
		t.Fatalf("task = %+v", got)
	}
}

func TestGetUnknownTask(t *testing.T) {
	handler, _ := newTasksHandler(t)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/research?task_id=missing", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSSERequiresTaskID(t *testing.T) {
	h := NewStreamingHandler(streaming.NewManager(16), zaptest.NewLogger(t))
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/stream/sse", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSSEStreamsEvents(t *testing.T) {
	mgr := streaming.NewManager(16)
	h := NewStreamingHandler(mgr, zaptest.NewLogger(t))
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stream/sse?task_id=t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	mgr.Publish("t1", streaming.Event{Type: streaming.EventTaskStarted, Message: "hello"})

	buf := make([]byte, 4096)
	var collected string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !strings.Contains(collected, "event: task_started") {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			collected += string(buf[:n])
		}
		if err != nil {
			break
		}
	}
	if !strings.Contains(collected, "event: task_started") {
		t.Fatalf("stream output %q missing event", collected)
	}
}

func TestSSEReplaysSinceLastEventID(t *testing.T) {
	mgr := streaming.NewManager(16)
	for i := 0; i < 3; i++ {
		mgr.Publish("t1", streaming.Event{Type: streaming.EventFindingsBatch})
	}
	h := NewStreamingHandler(mgr, zaptest.NewLogger(t))
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/stream/sse?task_id=t1", nil)
	req.Header.Set("Last-Event-ID", "1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 4096)
	var collected string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !strings.Contains(collected, "id: 3") {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			collected += string(buf[:n])
		}
		if err != nil {
			break
		}
	}
	if strings.Contains(collected, "id: 1\n") {
		t.Fatalf("replayed already-seen event: %q", collected)
	}
	if !strings.Contains(collected, "id: 2") || !strings.Contains(collected, "id: 3") {
		t.Fatalf("replay missing events: %q", collected)
	}
}

func TestHealthz(t *testing.T) {
	h := NewHealthHandler(circuitbreaker.NewManager(circuitbreaker.DefaultConfig(), nil, zaptest.NewLogger(t)))
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("body = %q", rec.Body.String())
	}
}
