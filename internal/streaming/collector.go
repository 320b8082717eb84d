package streaming

import (
	"sync"

	"github.com/shawkridge/athena-sub002/internal/metrics"
	"github.com/shawkridge/athena-sub002/internal/models"
)

// DefaultBatchSize is the number of buffered findings that forces a flush.
const DefaultBatchSize = 5

// Update is one batched incremental update for a research task.
type Update struct {
	NewFindings []models.RawFinding             `json:"new_findings,omitempty"`
	TotalSoFar  int                             `json:"total_so_far"`
	AgentStatus map[string]models.AgentProgress `json:"agent_status"`
	Completed   bool                            `json:"completed"`
}

// Collector buffers newly discovered findings and emits a batched update once
// the buffer reaches the batch size, when an agent completes, or when the
// task finalizes. The buffer is the one structure shared across
// concurrently-completing agents, so every mutation and flush decision runs
// under a single lock. No update is ever emitted with an empty buffer unless
// finalizing.
type Collector struct {
	taskID    string
	batchSize int
	manager   *Manager
	monitor   *LiveAgentMonitor

	mu     sync.Mutex
	buffer []models.RawFinding
	total  int
}

// NewCollector creates a collector for one task. A non-positive batch size
// falls back to the default. The monitor supplies per-agent snapshots for
// every emitted update and may not be nil.
func NewCollector(taskID string, batchSize int, manager *Manager, monitor *LiveAgentMonitor) *Collector {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Collector{
		taskID:    taskID,
		batchSize: batchSize,
		manager:   manager,
		monitor:   monitor,
	}
}

// Add buffers one discovered finding, flushing when the batch fills.
func (c *Collector) Add(finding models.RawFinding) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buffer = append(c.buffer, finding)
	c.total++
	if len(c.buffer) >= c.batchSize {
		c.flushLocked(false)
	}
}

// AddAll buffers several findings from one agent, flushing at most once.
func (c *Collector) AddAll(findings []models.RawFinding) {
	if len(findings) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buffer = append(c.buffer, findings...)
	c.total += len(findings)
	if len(c.buffer) >= c.batchSize {
		c.flushLocked(false)
	}
}

// AgentDone force-flushes any buffered findings when an agent completes.
func (c *Collector) AgentDone() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buffer) > 0 {
		c.flushLocked(false)
	}
}

// Finalize emits the terminal update. It always fires, buffer or not, so
// subscribers observe completion.
func (c *Collector) Finalize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked(true)
}

// Total returns the number of findings seen so far.
func (c *Collector) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// flushLocked publishes the buffered findings. Caller holds c.mu.
func (c *Collector) flushLocked(final bool) {
	if len(c.buffer) == 0 && !final {
		return
	}

	update := Update{
		NewFindings: c.buffer,
		TotalSoFar:  c.total,
		AgentStatus: c.monitor.Snapshot(),
		Completed:   final,
	}
	c.buffer = nil

	if len(update.NewFindings) > 0 {
		metrics.StreamBatchSize.Observe(float64(len(update.NewFindings)))
	}
	c.manager.Publish(c.taskID, Event{
		Type:    EventFindingsBatch,
		Payload: update,
	})
}
