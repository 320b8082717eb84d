package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shawkridge/athena-sub002/internal/metrics"
	"github.com/shawkridge/athena-sub002/internal/models"
	"github.com/shawkridge/athena-sub002/internal/store"
)

var _ store.FindingStore = (*Client)(nil)

// CreateTask inserts a new research task row. Idempotent by task id so a
// retried submission does not fail.
func (c *Client) CreateTask(ctx context.Context, task *models.ResearchTask) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	if task.Status == "" {
		task.Status = models.StatusPending
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO research_tasks (id, topic, project_id, status, findings_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, task.ID, task.Topic, nullIfEmpty(task.ProjectID), task.Status, task.FindingsCount, task.CreatedAt)
	return err
}

// UpdateTaskStatus moves a task through its lifecycle asynchronously.
// Terminal statuses also stamp completed_at.
func (c *Client) UpdateTaskStatus(ctx context.Context, taskID, status string) error {
	c.queueWrite(WriteTypeTaskStatus, func(ctx context.Context) error {
		return c.execUpdateTaskStatus(ctx, taskID, status)
	}, nil)
	return nil
}

func (c *Client) execUpdateTaskStatus(ctx context.Context, taskID, status string) error {
	var res sql.Result
	var err error
	switch status {
	case models.StatusRunning:
		res, err = c.db.ExecContext(ctx, `
			UPDATE research_tasks SET status = $2, started_at = NOW()
			WHERE id = $1
		`, taskID, status)
	case models.StatusCompleted, models.StatusFailed, models.StatusCancelled:
		res, err = c.db.ExecContext(ctx, `
			UPDATE research_tasks SET status = $2, completed_at = NOW()
			WHERE id = $1
		`, taskID, status)
	default:
		res, err = c.db.ExecContext(ctx, `
			UPDATE research_tasks SET status = $2 WHERE id = $1
		`, taskID, status)
	}
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpdateAgentProgress upserts one (task, source) progress row asynchronously.
func (c *Client) UpdateAgentProgress(ctx context.Context, progress models.AgentProgress) error {
	c.queueWrite(WriteTypeAgentProgress, func(ctx context.Context) error {
		return c.execUpsertAgentProgress(ctx, progress)
	}, nil)
	return nil
}

func (c *Client) execUpsertAgentProgress(ctx context.Context, p models.AgentProgress) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO agent_progress (task_id, source, status, findings_count, started_at, completed_at, error_message, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (task_id, source) DO UPDATE SET
			status = EXCLUDED.status,
			findings_count = EXCLUDED.findings_count,
			started_at = COALESCE(agent_progress.started_at, EXCLUDED.started_at),
			completed_at = EXCLUDED.completed_at,
			error_message = EXCLUDED.error_message,
			updated_at = NOW()
	`, p.TaskID, p.Source, p.Status, p.FindingsCount, p.StartedAt, p.CompletedAt, nullIfEmpty(p.Error))
	return err
}

// RecordFinding persists one aggregated finding asynchronously. The row ID
// is generated client side so callers get it without waiting for the write.
func (c *Client) RecordFinding(ctx context.Context, taskID string, finding models.AggregatedFinding) (string, error) {
	id := uuid.New()
	c.queueWrite(WriteTypeFinding, func(ctx context.Context) error {
		if err := c.execInsertFinding(ctx, id, taskID, finding); err != nil {
			return err
		}
		metrics.FindingsPersisted.Inc()
		return nil
	}, nil)
	return id.String(), nil
}

func (c *Client) execInsertFinding(ctx context.Context, id uuid.UUID, taskID string, f models.AggregatedFinding) error {
	secondary := JSONB{"sources": f.SecondarySources}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO findings (
			id, task_id, title, summary, url, primary_source, secondary_sources,
			base_credibility, relevance, cross_validation_boost, final_credibility, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (id) DO NOTHING
	`, id, taskID, f.Title, f.Summary, nullIfEmpty(f.URL), f.PrimarySource, secondary,
		f.BaseCredibility, f.Relevance, f.CrossValidationBoost, f.FinalCredibility)
	return err
}

// SaveResearchResult persists the final result summary asynchronously and
// bumps the task's findings count.
func (c *Client) SaveResearchResult(ctx context.Context, result *models.ResearchResult) error {
	cp := *result
	c.queueWrite(WriteTypeResult, func(ctx context.Context) error {
		return c.execSaveResult(ctx, &cp)
	}, nil)
	return nil
}

func (c *Client) execSaveResult(ctx context.Context, result *models.ResearchResult) error {
	outcomes := make(JSONB, len(result.AgentOutcomes))
	for source, p := range result.AgentOutcomes {
		outcomes[source] = p
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO research_results (task_id, topic, status, findings_count, agent_outcomes, from_cache, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (task_id) DO UPDATE SET
			status = EXCLUDED.status,
			findings_count = EXCLUDED.findings_count,
			agent_outcomes = EXCLUDED.agent_outcomes,
			from_cache = EXCLUDED.from_cache,
			duration_ms = EXCLUDED.duration_ms
	`, result.TaskID, result.Topic, result.Status, len(result.Findings), outcomes, result.FromCache, result.DurationMs)
	if err != nil {
		return err
	}

	_, err = c.db.ExecContext(ctx, `
		UPDATE research_tasks SET findings_count = $2 WHERE id = $1
	`, result.TaskID, len(result.Findings))
	return err
}

// GetTask loads a task by ID.
func (c *Client) GetTask(ctx context.Context, taskID string) (*models.ResearchTask, error) {
	var row taskRow
	err := c.db.GetContext(ctx, &row, `
		SELECT id, topic, project_id, status, findings_count, created_at, started_at, completed_at
		FROM research_tasks WHERE id = $1
	`, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	task := &models.ResearchTask{
		ID:            row.ID,
		Topic:         row.Topic,
		Status:        row.Status,
		FindingsCount: row.FindingsCount,
		CreatedAt:     row.CreatedAt,
		StartedAt:     row.StartedAt,
		CompletedAt:   row.CompletedAt,
	}
	if row.ProjectID != nil {
		task.ProjectID = *row.ProjectID
	}
	return task, nil
}

// ListFindings loads a task's aggregated findings ranked by final credibility.
func (c *Client) ListFindings(ctx context.Context, taskID string) ([]models.AggregatedFinding, error) {
	var rows []findingRow
	err := c.db.SelectContext(ctx, &rows, `
		SELECT id, task_id, title, summary, url, primary_source, secondary_sources,
			base_credibility, relevance, cross_validation_boost, final_credibility, created_at
		FROM findings WHERE task_id = $1
		ORDER BY final_credibility DESC, title ASC
	`, taskID)
	if err != nil {
		return nil, err
	}

	findings := make([]models.AggregatedFinding, 0, len(rows))
	for _, row := range rows {
		f := models.AggregatedFinding{
			Title:                row.Title,
			Summary:              row.Summary,
			PrimarySource:        row.PrimarySource,
			SecondarySources:     decodeSecondarySources(row.SecondarySources),
			BaseCredibility:      row.BaseCredibility,
			Relevance:            row.Relevance,
			CrossValidationBoost: row.CrossValidationBoost,
			FinalCredibility:     row.FinalCredibility,
		}
		if row.URL != nil {
			f.URL = *row.URL
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// ListAgentProgress loads the per-source progress rows for a task.
func (c *Client) ListAgentProgress(ctx context.Context, taskID string) ([]models.AgentProgress, error) {
	var rows []agentProgressRow
	err := c.db.SelectContext(ctx, &rows, `
		SELECT task_id, source, status, findings_count, started_at, completed_at, error_message, updated_at
		FROM agent_progress WHERE task_id = $1
		ORDER BY source ASC
	`, taskID)
	if err != nil {
		return nil, err
	}

	progress := make([]models.AgentProgress, 0, len(rows))
	for _, row := range rows {
		p := models.AgentProgress{
			TaskID:        row.TaskID,
			Source:        row.Source,
			Status:        row.Status,
			FindingsCount: row.FindingsCount,
			StartedAt:     row.StartedAt,
			CompletedAt:   row.CompletedAt,
		}
		if row.ErrorMessage != nil {
			p.Error = *row.ErrorMessage
		}
		progress = append(progress, p)
	}
	return progress, nil
}

// decodeSecondarySources unwraps the {"sources": [...]} envelope written by
// execInsertFinding.
func decodeSecondarySources(j JSONB) []string {
	raw, ok := j["sources"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// SaveEventLog appends a streaming event row asynchronously. Replayed
// events are deduplicated on (task_id, type, seq).
func (c *Client) SaveEventLog(e *EventLog) {
	if e == nil {
		return
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	cp := *e
	c.queueWrite(WriteTypeEventLog, func(ctx context.Context) error {
		return c.execInsertEventLog(ctx, &cp)
	}, nil)
}

func (c *Client) execInsertEventLog(ctx context.Context, e *EventLog) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO event_logs (id, task_id, type, source, message, payload, timestamp, seq, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (task_id, type, seq) DO NOTHING
	`, e.ID, e.TaskID, e.Type, nullIfEmpty(e.Source), e.Message, e.Payload, e.Timestamp, e.Seq)
	return err
}
