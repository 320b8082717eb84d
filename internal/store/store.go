package store

import (
	"context"
	"errors"
	"time"

	"github.com/shawkridge/athena-sub002/internal/models"
)

// ErrNotFound is returned when a task or finding does not exist.
var ErrNotFound = errors.New("store: not found")

// FindingStore persists research tasks and their findings. Implementations
// must be safe for concurrent use; the executor writes from multiple agent
// goroutines.
type FindingStore interface {
	// CreateTask records a new task in pending state.
	CreateTask(ctx context.Context, task *models.ResearchTask) error

	// UpdateTaskStatus moves a task through its lifecycle. Terminal states
	// also stamp the completion time.
	UpdateTaskStatus(ctx context.Context, taskID, status string) error

	// UpdateAgentProgress upserts per-agent progress for a task.
	UpdateAgentProgress(ctx context.Context, progress models.AgentProgress) error

	// RecordFinding persists one aggregated finding and returns its ID.
	RecordFinding(ctx context.Context, taskID string, finding models.AggregatedFinding) (string, error)

	// SaveResearchResult persists the final result of a completed task.
	SaveResearchResult(ctx context.Context, result *models.ResearchResult) error

	// GetTask loads a task by ID.
	GetTask(ctx context.Context, taskID string) (*models.ResearchTask, error)

	// Close flushes any pending writes and releases resources.
	Close() error
}

// Consolidator folds a finished task's findings into longer-term knowledge.
// Runs detached from the request path; failures must not affect the task
// outcome.
type Consolidator interface {
	TriggerConsolidation(ctx context.Context, taskID string) error
}

// NoopConsolidator satisfies Consolidator without doing anything. Default
// when no knowledge backend is configured.
type NoopConsolidator struct{}

func (NoopConsolidator) TriggerConsolidation(ctx context.Context, taskID string) error { return nil }

// nowUTC keeps timestamps uniform across implementations.
func nowUTC() time.Time { return time.Now().UTC() }
