package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JSONB represents a PostgreSQL jsonb column
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}

	return json.Unmarshal(bytes, j)
}

// taskRow maps the research_tasks table.
type taskRow struct {
	ID            string     `db:"id"`
	Topic         string     `db:"topic"`
	ProjectID     *string    `db:"project_id"`
	Status        string     `db:"status"`
	FindingsCount int        `db:"findings_count"`
	AgentFindings JSONB      `db:"agent_findings"`
	CreatedAt     time.Time  `db:"created_at"`
	StartedAt     *time.Time `db:"started_at"`
	CompletedAt   *time.Time `db:"completed_at"`
}

// findingRow maps the findings table.
type findingRow struct {
	ID                   uuid.UUID `db:"id"`
	TaskID               string    `db:"task_id"`
	Title                string    `db:"title"`
	Summary              string    `db:"summary"`
	URL                  *string   `db:"url"`
	PrimarySource        string    `db:"primary_source"`
	SecondarySources     JSONB     `db:"secondary_sources"`
	BaseCredibility      float64   `db:"base_credibility"`
	Relevance            float64   `db:"relevance"`
	CrossValidationBoost float64   `db:"cross_validation_boost"`
	FinalCredibility     float64   `db:"final_credibility"`
	CreatedAt            time.Time `db:"created_at"`
}

// agentProgressRow maps the agent_progress table, keyed (task_id, source).
type agentProgressRow struct {
	TaskID        string     `db:"task_id"`
	Source        string     `db:"source"`
	Status        string     `db:"status"`
	FindingsCount int        `db:"findings_count"`
	StartedAt     *time.Time `db:"started_at"`
	CompletedAt   *time.Time `db:"completed_at"`
	ErrorMessage  *string    `db:"error_message"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// EventLog represents a persisted streaming event row.
type EventLog struct {
	ID        uuid.UUID `db:"id"`
	TaskID    string    `db:"task_id"`
	Type      string    `db:"type"`
	Source    string    `db:"source"`
	Message   string    `db:"message"`
	Payload   JSONB     `db:"payload"`
	Timestamp time.Time `db:"timestamp"`
	Seq       uint64    `db:"seq"`
	CreatedAt time.Time `db:"created_at"`
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
