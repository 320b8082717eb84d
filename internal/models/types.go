package models

import "time"

// Task statuses
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Agent statuses
const (
	AgentPending   = "pending"
	AgentRunning   = "running"
	AgentCompleted = "completed"
	AgentFailed    = "failed"
	AgentSkipped   = "skipped"
)

// ResearchTask represents one research request over a topic. It is created
// on submission and mutated only by the executor; once the status is
// completed, failed, or cancelled it is terminal.
type ResearchTask struct {
	ID          string         `json:"id"`
	Topic       string         `json:"topic"`
	ProjectID   string         `json:"project_id,omitempty"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`

	FindingsCount int            `json:"findings_count"`
	AgentFindings map[string]int `json:"agent_findings,omitempty"`
}

// IsTerminal reports whether the task can no longer change state.
func (t *ResearchTask) IsTerminal() bool {
	switch t.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// AgentProgress tracks one (task, source) pair. It is created when the task
// starts and updated exactly once per agent at completion or skip.
type AgentProgress struct {
	TaskID        string     `json:"task_id"`
	Source        string     `json:"source"`
	Status        string     `json:"status"`
	FindingsCount int        `json:"findings_count"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// RawFinding is one discovered result from a single source. Immutable once
// produced by an agent.
type RawFinding struct {
	Source      string  `json:"source"`
	Title       string  `json:"title"`
	Summary     string  `json:"summary"`
	URL         string  `json:"url,omitempty"`
	Credibility float64 `json:"credibility"`
	Relevance   float64 `json:"relevance"`
}

// AggregatedFinding merges corroborating raw findings into one ranked result.
// SecondarySources never contains PrimarySource or duplicates, and
// FinalCredibility is always in [0, 1].
type AggregatedFinding struct {
	Title                string   `json:"title"`
	Summary              string   `json:"summary"`
	URL                  string   `json:"url,omitempty"`
	PrimarySource        string   `json:"primary_source"`
	SecondarySources     []string `json:"secondary_sources,omitempty"`
	BaseCredibility      float64  `json:"base_credibility"`
	Relevance            float64  `json:"relevance"`
	CrossValidationBoost float64  `json:"cross_validation_boost"`
	FinalCredibility     float64  `json:"final_credibility"`
}

// CorroborationCount returns the number of corroborating sources beyond the
// primary one.
func (f *AggregatedFinding) CorroborationCount() int {
	return len(f.SecondarySources)
}

// Constraints narrows a research fan-out. All fields are optional.
type Constraints struct {
	ExcludedSources []string          `json:"excluded_sources,omitempty"`
	FocusSources    []string          `json:"focus_sources,omitempty"`
	MinCredibility  float64           `json:"min_credibility,omitempty"`
	Directives      map[string]string `json:"directives,omitempty"`
	TimeRange       string            `json:"time_range,omitempty"`
}

// ResearchResult is the executor's report for one completed task. Per-agent
// outcomes are always included so partial success is distinguishable from
// total failure.
type ResearchResult struct {
	TaskID        string                    `json:"task_id"`
	Topic         string                    `json:"topic"`
	Status        string                    `json:"status"`
	Findings      []AggregatedFinding       `json:"findings"`
	AgentOutcomes map[string]*AgentProgress `json:"agent_outcomes"`
	FromCache     bool                      `json:"from_cache"`
	DurationMs    int64                     `json:"duration_ms"`
}
