package streaming

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/shawkridge/athena-sub002/internal/metrics"
)

// Event types emitted over a research task's stream.
const (
	EventTaskStarted    = "task_started"
	EventTaskCompleted  = "task_completed"
	EventTaskFailed     = "task_failed"
	EventAgentStarted   = "agent_started"
	EventAgentCompleted = "agent_completed"
	EventAgentFailed    = "agent_failed"
	EventAgentSkipped   = "agent_skipped"
	EventFindingsBatch  = "findings_batch"
)

// Event is a minimal streaming event used by SSE and WebSocket consumers.
type Event struct {
	TaskID    string      `json:"task_id"`
	Type      string      `json:"type"`
	Source    string      `json:"source,omitempty"`
	Message   string      `json:"message,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Seq       uint64      `json:"seq"`
}

// Marshal returns JSON for event payloads in SSE frames or logs.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// DefaultHistoryCapacity bounds the per-task replay ring.
const DefaultHistoryCapacity = 256

// Manager provides in-process pub/sub for research task events with a
// per-task ring buffer for replay and Last-Event-ID support. One manager is
// constructed at startup and passed by reference to producers and the HTTP
// handlers.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
	capacity    int
	sink        func(Event)
}

// NewManager creates a streaming manager. A non-positive capacity falls back
// to the default.
func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// SetSink installs a persistence hook invoked with every published event
// after its sequence number is assigned. The sink must not block; the db
// event log hands off to its write queue. Call before any Publish.
func (m *Manager) SetSink(sink func(Event)) {
	m.mu.Lock()
	m.sink = sink
	m.mu.Unlock()
}

// Subscribe adds a subscriber channel for a taskID; the caller must drain and
// call Unsubscribe.
func (m *Manager) Subscribe(taskID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[taskID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[taskID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes the subscriber channel and closes it.
func (m *Manager) Unsubscribe(taskID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[taskID]; ok {
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(m.subscribers, taskID)
		}
	}
}

// Publish sends an event to all subscribers of taskID (non-blocking) and
// appends it to the replay ring.
func (m *Manager) Publish(taskID string, evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	evt.TaskID = taskID

	m.mu.Lock()
	rg := m.history[taskID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[taskID] = rg
	}
	rg.nextSeq++
	evt.Seq = rg.nextSeq
	rg.push(evt)
	targets := make([]chan Event, 0, len(m.subscribers[taskID]))
	for ch := range m.subscribers[taskID] {
		targets = append(targets, ch)
	}
	sink := m.sink
	m.mu.Unlock()

	if sink != nil {
		sink(evt)
	}

	metrics.RecordStreamEvent(evt.Type)

	for _, ch := range targets {
		select {
		case ch <- evt:
		default:
			// Drop if subscriber is slow
		}
	}
}

// ReplaySince returns events with Seq > since (best-effort within ring capacity).
func (m *Manager) ReplaySince(taskID string, since uint64) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rg := m.history[taskID]
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// Forget drops the replay history for a task, typically well after completion.
func (m *Manager) Forget(taskID string) {
	m.mu.Lock()
	delete(m.history, taskID)
	m.mu.Unlock()
}

// ring is a fixed-capacity ring buffer of events
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	// overwrite oldest
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		idx := (r.start + i) % len(r.buf)
		ev := r.buf[idx]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
