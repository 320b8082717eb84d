package streaming

import (
	"sync"
	"time"

	"github.com/shawkridge/athena-sub002/internal/models"
)

// maxLatencySamples bounds the per-agent latency history kept for rate
// estimation.
const maxLatencySamples = 32

type agentState struct {
	progress    models.AgentProgress
	startedAt   time.Time
	completedAt time.Time
	latencies   []time.Duration
}

// LiveAgentMonitor tracks per-agent progress for a running task: status,
// findings count, and timing. It derives an aggregate findings-per-second
// rate and a linear ETA from agents still in flight.
type LiveAgentMonitor struct {
	mu     sync.Mutex
	agents map[string]*agentState
	now    func() time.Time
}

func NewLiveAgentMonitor() *LiveAgentMonitor {
	return &LiveAgentMonitor{
		agents: make(map[string]*agentState),
		now:    time.Now,
	}
}

// AgentStarted marks the agent running and records its start time.
func (m *LiveAgentMonitor) AgentStarted(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(source)
	st.progress.Status = models.AgentRunning
	st.startedAt = m.now()
	started := st.startedAt
	st.progress.StartedAt = &started
}

// AgentCompleted records a successful agent with its findings count.
func (m *LiveAgentMonitor) AgentCompleted(source string, findings int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(source)
	st.progress.Status = models.AgentCompleted
	st.progress.FindingsCount = findings
	m.finishLocked(st)
}

// AgentFailed records a failed agent with the error message.
func (m *LiveAgentMonitor) AgentFailed(source string, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(source)
	st.progress.Status = models.AgentFailed
	st.progress.Error = errMsg
	m.finishLocked(st)
}

// AgentSkipped records an agent that never ran, with the reason.
func (m *LiveAgentMonitor) AgentSkipped(source string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(source)
	st.progress.Status = models.AgentSkipped
	st.progress.Error = reason
}

// Snapshot returns a copy of every agent's current progress.
func (m *LiveAgentMonitor) Snapshot() map[string]models.AgentProgress {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]models.AgentProgress, len(m.agents))
	for source, st := range m.agents {
		out[source] = st.progress
	}
	return out
}

// Rate returns completed findings per second across finished agents, zero
// until at least one agent has completed.
func (m *LiveAgentMonitor) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var findings int
	var elapsed time.Duration
	for _, st := range m.agents {
		if st.progress.Status != models.AgentCompleted {
			continue
		}
		findings += st.progress.FindingsCount
		elapsed += st.completedAt.Sub(st.startedAt)
	}
	if elapsed <= 0 {
		return 0
	}
	return float64(findings) / elapsed.Seconds()
}

// ETA estimates time remaining with a linear model: average completed-agent
// latency multiplied by agents still running. Zero when nothing is running
// or no agent has finished yet.
func (m *LiveAgentMonitor) ETA() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	var done int
	var total time.Duration
	var running int
	for _, st := range m.agents {
		switch st.progress.Status {
		case models.AgentRunning:
			running++
		case models.AgentCompleted, models.AgentFailed:
			if st.completedAt.After(st.startedAt) {
				done++
				total += st.completedAt.Sub(st.startedAt)
			}
		}
	}
	if running == 0 || done == 0 {
		return 0
	}
	return time.Duration(int64(total) / int64(done))
}

// Latencies returns the recorded per-agent execution durations.
func (m *LiveAgentMonitor) Latencies(source string) []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.agents[source]
	if !ok {
		return nil
	}
	out := make([]time.Duration, len(st.latencies))
	copy(out, st.latencies)
	return out
}

func (m *LiveAgentMonitor) state(source string) *agentState {
	st, ok := m.agents[source]
	if !ok {
		st = &agentState{progress: models.AgentProgress{Source: source, Status: models.AgentPending}}
		m.agents[source] = st
	}
	return st
}

func (m *LiveAgentMonitor) finishLocked(st *agentState) {
	st.completedAt = m.now()
	completed := st.completedAt
	st.progress.CompletedAt = &completed
	if !st.startedAt.IsZero() {
		lat := st.completedAt.Sub(st.startedAt)
		if len(st.latencies) < maxLatencySamples {
			st.latencies = append(st.latencies, lat)
		}
	}
}
