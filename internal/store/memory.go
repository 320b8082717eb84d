package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/shawkridge/athena-sub002/internal/models"
)

// MemoryStore is an in-process FindingStore used for tests and local runs
// without Postgres.
type MemoryStore struct {
	mu       sync.RWMutex
	tasks    map[string]*models.ResearchTask
	progress map[string]map[string]models.AgentProgress
	findings map[string][]storedFinding
	results  map[string]*models.ResearchResult
}

type storedFinding struct {
	ID      string
	Finding models.AggregatedFinding
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:    make(map[string]*models.ResearchTask),
		progress: make(map[string]map[string]models.AgentProgress),
		findings: make(map[string][]storedFinding),
		results:  make(map[string]*models.ResearchResult),
	}
}

func (s *MemoryStore) CreateTask(ctx context.Context, task *models.ResearchTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	cp := *task
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = nowUTC()
	}
	s.tasks[task.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateTaskStatus(ctx context.Context, taskID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	task.Status = status
	now := nowUTC()
	switch status {
	case models.StatusRunning:
		task.StartedAt = &now
	case models.StatusCompleted, models.StatusFailed, models.StatusCancelled:
		task.CompletedAt = &now
	}
	return nil
}

func (s *MemoryStore) UpdateAgentProgress(ctx context.Context, progress models.AgentProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTask, ok := s.progress[progress.TaskID]
	if !ok {
		byTask = make(map[string]models.AgentProgress)
		s.progress[progress.TaskID] = byTask
	}
	byTask[progress.Source] = progress
	return nil
}

func (s *MemoryStore) RecordFinding(ctx context.Context, taskID string, finding models.AggregatedFinding) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return "", ErrNotFound
	}
	id := uuid.New().String()
	s.findings[taskID] = append(s.findings[taskID], storedFinding{ID: id, Finding: finding})
	s.tasks[taskID].FindingsCount = len(s.findings[taskID])
	return id, nil
}

func (s *MemoryStore) SaveResearchResult(ctx context.Context, result *models.ResearchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *result
	s.results[result.TaskID] = &cp
	return nil
}

func (s *MemoryStore) GetTask(ctx context.Context, taskID string) (*models.ResearchTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *task
	return &cp, nil
}

// GetResult loads the saved result for a task, nil when not yet saved.
func (s *MemoryStore) GetResult(taskID string) *models.ResearchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.results[taskID]
}

// Findings returns the recorded findings for a task in insertion order.
func (s *MemoryStore) Findings(taskID string) []models.AggregatedFinding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AggregatedFinding, 0, len(s.findings[taskID]))
	for _, f := range s.findings[taskID] {
		out = append(out, f.Finding)
	}
	return out
}

// Progress returns per-agent progress for a task.
func (s *MemoryStore) Progress(taskID string) map[string]models.AgentProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.AgentProgress, len(s.progress[taskID]))
	for source, p := range s.progress[taskID] {
		out[source] = p
	}
	return out
}

func (s *MemoryStore) Close() error { return nil }
