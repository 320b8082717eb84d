package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shawkridge/athena-sub002/internal/agents"
	"github.com/shawkridge/athena-sub002/internal/aggregator"
	"github.com/shawkridge/athena-sub002/internal/cache"
	"github.com/shawkridge/athena-sub002/internal/circuitbreaker"
	"github.com/shawkridge/athena-sub002/internal/metrics"
	"github.com/shawkridge/athena-sub002/internal/models"
	"github.com/shawkridge/athena-sub002/internal/ratelimit"
	"github.com/shawkridge/athena-sub002/internal/store"
	"github.com/shawkridge/athena-sub002/internal/streaming"
	"github.com/shawkridge/athena-sub002/internal/util"
)

// DefaultAgentTimeout bounds one source's search call.
const DefaultAgentTimeout = 60 * time.Second

// ErrNoEligibleSources is returned when constraints and open circuits leave
// nothing to fan out to.
var ErrNoEligibleSources = errors.New("no eligible sources for task")

// ErrAllSourcesFailed is returned when every fanned-out source errored.
var ErrAllSourcesFailed = errors.New("all sources failed")

// Config tunes one executor instance.
type Config struct {
	AgentTimeout       time.Duration
	CacheTTL           time.Duration
	StreamingBatchSize int
}

// Executor owns the research fan-out/fan-in loop. All collaborators are
// explicit dependencies; the executor holds no global state and is safe
// for concurrent ExecuteResearch calls.
type Executor struct {
	registry     *agents.Registry
	breakers     *circuitbreaker.Manager
	limiter      *ratelimit.Limiter
	cache        *cache.QueryCache
	aggregator   *aggregator.Aggregator
	store        store.FindingStore
	consolidator store.Consolidator
	streams      *streaming.Manager
	config       Config
	logger       *zap.Logger
}

// New wires an executor. streams may be nil to disable live updates;
// consolidator may be nil for no post-task consolidation.
func New(
	registry *agents.Registry,
	breakers *circuitbreaker.Manager,
	limiter *ratelimit.Limiter,
	queryCache *cache.QueryCache,
	agg *aggregator.Aggregator,
	findingStore store.FindingStore,
	consolidator store.Consolidator,
	streams *streaming.Manager,
	config Config,
	logger *zap.Logger,
) *Executor {
	if config.AgentTimeout <= 0 {
		config.AgentTimeout = DefaultAgentTimeout
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = cache.DefaultTTL
	}
	if consolidator == nil {
		consolidator = store.NoopConsolidator{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		registry:     registry,
		breakers:     breakers,
		limiter:      limiter,
		cache:        queryCache,
		aggregator:   agg,
		store:        findingStore,
		consolidator: consolidator,
		streams:      streams,
		config:       config,
		logger:       logger,
	}
}

// unitResult is one source's outcome, gathered over the fan-in channel.
// Exactly one of findings/err/skipped is meaningful.
type unitResult struct {
	source   string
	findings []models.RawFinding
	err      error
	skipped  bool
	reason   string
}

// ExecuteResearch runs one research task across all eligible sources and
// returns the number of aggregated findings. Per-source failures are
// recorded, never propagated; the task only fails when no source succeeds.
func (e *Executor) ExecuteResearch(ctx context.Context, taskID, topic string, constraints models.Constraints) (int, error) {
	stop := metrics.StartTimer()
	metrics.TasksStarted.Inc()

	logger := e.logger.With(zap.String("task_id", taskID), zap.String("topic", util.TruncateString(topic, 80)))

	// Cache short-circuit.
	if findings, hit := e.cache.Get(ctx, topic); hit {
		logger.Info("Cache hit, skipping fan-out", zap.Int("findings", len(findings)))
		e.finishTask(ctx, taskID, topic, models.StatusCompleted, findings, nil, true, stop)
		return len(findings), nil
	}

	if err := e.store.UpdateTaskStatus(ctx, taskID, models.StatusRunning); err != nil {
		logger.Warn("Failed to mark task running", zap.Error(err))
	}
	e.publish(taskID, streaming.Event{Type: streaming.EventTaskStarted, Message: topic})

	monitor := streaming.NewLiveAgentMonitor()
	collector := streaming.NewCollector(taskID, e.config.StreamingBatchSize, e.streamManager(), monitor)

	eligible := e.eligibleSources(ctx, taskID, constraints, monitor, logger)
	if len(eligible) == 0 {
		logger.Warn("No eligible sources after constraints and circuit checks")
		e.finishTask(ctx, taskID, topic, models.StatusFailed, nil, monitor.Snapshot(), false, stop)
		collector.Finalize()
		return 0, ErrNoEligibleSources
	}

	results := e.fanOut(ctx, taskID, topic, constraints, eligible, monitor, collector, logger)

	raw := make([]models.RawFinding, 0, 32)
	succeeded := 0
	for _, res := range results {
		if res.err != nil || res.skipped {
			continue
		}
		succeeded++
		raw = append(raw, res.findings...)
	}

	aggregated := e.aggregator.Aggregate(raw)
	if constraints.MinCredibility > 0 {
		aggregated = aggregator.FilterMinCredibility(aggregated, constraints.MinCredibility)
	}

	status := models.StatusCompleted
	var execErr error
	if succeeded == 0 {
		status = models.StatusFailed
		execErr = fmt.Errorf("%w: task %s fanned out to %d sources", ErrAllSourcesFailed, taskID, len(eligible))
	}

	e.persistFindings(ctx, taskID, aggregated, logger)
	e.finishTask(ctx, taskID, topic, status, aggregated, monitor.Snapshot(), false, stop)

	if status == models.StatusCompleted {
		e.cache.Set(ctx, topic, aggregated, e.config.CacheTTL)
		e.triggerConsolidation(taskID)
	}

	collector.Finalize()
	logger.Info("Research task finished",
		zap.String("status", status),
		zap.Int("sources", len(eligible)),
		zap.Int("succeeded", succeeded),
		zap.Int("findings", len(aggregated)),
	)
	return len(aggregated), execErr
}

// eligibleSources initializes per-agent progress and filters out excluded
// sources and sources whose circuit is open. Skips are recorded, not failed.
func (e *Executor) eligibleSources(ctx context.Context, taskID string, constraints models.Constraints, monitor *streaming.LiveAgentMonitor, logger *zap.Logger) []string {
	sources := e.registry.Sources()
	if len(constraints.FocusSources) > 0 {
		focused := make([]string, 0, len(constraints.FocusSources))
		for _, s := range sources {
			if util.ContainsString(constraints.FocusSources, s) {
				focused = append(focused, s)
			}
		}
		sources = focused
	}

	eligible := make([]string, 0, len(sources))
	for _, source := range sources {
		var reason string
		switch {
		case util.ContainsString(constraints.ExcludedSources, source):
			reason = "excluded by constraints"
		case !e.breakers.IsHealthy(source):
			reason = "circuit open"
			circuitbreaker.RecordRejection(source)
		}
		if reason == "" {
			eligible = append(eligible, source)
			continue
		}

		logger.Info("Skipping source", zap.String("source", source), zap.String("reason", reason))
		monitor.AgentSkipped(source, reason)
		e.recordProgress(ctx, models.AgentProgress{
			TaskID: taskID,
			Source: source,
			Status: models.AgentSkipped,
			Error:  reason,
		}, logger)
		e.publish(taskID, streaming.Event{Type: streaming.EventAgentSkipped, Source: source, Message: reason})
	}
	return eligible
}

// fanOut launches one goroutine per source and gathers every unit's
// value-or-error result. It returns only after all units finish.
func (e *Executor) fanOut(ctx context.Context, taskID, topic string, constraints models.Constraints, sources []string, monitor *streaming.LiveAgentMonitor, collector *streaming.Collector, logger *zap.Logger) []unitResult {
	results := make(chan unitResult, len(sources))
	var wg sync.WaitGroup

	for _, source := range sources {
		wg.Add(1)
		go func(source string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Agent panicked", zap.String("source", source), zap.Any("panic", r))
					results <- unitResult{source: source, err: fmt.Errorf("agent %s panicked: %v", source, r)}
				}
			}()
			results <- e.runUnit(ctx, taskID, topic, constraints, source, monitor, collector, logger)
		}(source)
	}

	wg.Wait()
	close(results)

	out := make([]unitResult, 0, len(sources))
	for res := range results {
		out = append(out, res)
	}
	return out
}

// runUnit executes one source: breaker admission, rate-limiter wait, then
// the bounded search call. Outcomes feed the breaker, the monitor, and the
// progress store.
func (e *Executor) runUnit(ctx context.Context, taskID, topic string, constraints models.Constraints, source string, monitor *streaming.LiveAgentMonitor, collector *streaming.Collector, logger *zap.Logger) unitResult {
	reg, ok := e.registry.Get(source)
	if !ok {
		return unitResult{source: source, err: fmt.Errorf("source %s not registered", source)}
	}
	breaker := e.breakers.Get(source)

	if err := breaker.Allow(); err != nil {
		// Circuit opened between the eligibility check and now.
		reason := "circuit open"
		monitor.AgentSkipped(source, reason)
		e.recordProgress(ctx, models.AgentProgress{TaskID: taskID, Source: source, Status: models.AgentSkipped, Error: reason}, logger)
		e.publish(taskID, streaming.Event{Type: streaming.EventAgentSkipped, Source: source, Message: reason})
		return unitResult{source: source, skipped: true, reason: reason}
	}

	if err := e.limiter.Wait(ctx, source); err != nil {
		monitor.AgentFailed(source, err.Error())
		e.recordProgress(ctx, models.AgentProgress{TaskID: taskID, Source: source, Status: models.AgentFailed, Error: err.Error()}, logger)
		return unitResult{source: source, err: fmt.Errorf("rate limit wait for %s: %w", source, err)}
	}

	monitor.AgentStarted(source)
	e.publish(taskID, streaming.Event{Type: streaming.EventAgentStarted, Source: source})
	stop := metrics.StartTimer()

	unitCtx, cancel := context.WithTimeout(ctx, e.config.AgentTimeout)
	defer cancel()

	query := buildQuery(topic, source, constraints)
	findings, err := reg.Agent.Search(unitCtx, query)
	elapsed := stop()

	if err != nil {
		breaker.RecordFailure()
		monitor.AgentFailed(source, err.Error())
		metrics.RecordAgentMetrics(source, models.AgentFailed, elapsed, 0)
		e.recordProgress(ctx, models.AgentProgress{TaskID: taskID, Source: source, Status: models.AgentFailed, Error: err.Error()}, logger)
		e.publish(taskID, streaming.Event{Type: streaming.EventAgentFailed, Source: source, Message: err.Error()})
		logger.Warn("Source failed", zap.String("source", source), zap.Error(err))
		return unitResult{source: source, err: err}
	}

	breaker.RecordSuccess()
	for i := range findings {
		findings[i].Source = source
		if findings[i].Credibility == 0 {
			findings[i].Credibility = reg.Credibility
		}
	}

	monitor.AgentCompleted(source, len(findings))
	metrics.RecordAgentMetrics(source, models.AgentCompleted, elapsed, len(findings))
	e.recordProgress(ctx, models.AgentProgress{
		TaskID:        taskID,
		Source:        source,
		Status:        models.AgentCompleted,
		FindingsCount: len(findings),
	}, logger)
	e.publish(taskID, streaming.Event{Type: streaming.EventAgentCompleted, Source: source})
	collector.AddAll(findings)
	collector.AgentDone()

	return unitResult{source: source, findings: findings}
}

// persistFindings records the aggregated findings, logging but not failing
// on store errors.
func (e *Executor) persistFindings(ctx context.Context, taskID string, findings []models.AggregatedFinding, logger *zap.Logger) {
	for _, f := range findings {
		if _, err := e.store.RecordFinding(ctx, taskID, f); err != nil {
			logger.Error("Failed to persist finding", zap.String("title", util.TruncateString(f.Title, 60)), zap.Error(err))
		}
	}
}

// finishTask updates the terminal status, saves the result report, and
// emits metrics plus the terminal event.
func (e *Executor) finishTask(ctx context.Context, taskID, topic, status string, findings []models.AggregatedFinding, outcomes map[string]models.AgentProgress, fromCache bool, stop func() float64) {
	if err := e.store.UpdateTaskStatus(ctx, taskID, status); err != nil {
		e.logger.Warn("Failed to update task status", zap.String("task_id", taskID), zap.Error(err))
	}

	elapsed := stop()
	result := &models.ResearchResult{
		TaskID:        taskID,
		Topic:         topic,
		Status:        status,
		Findings:      findings,
		AgentOutcomes: toOutcomes(outcomes),
		FromCache:     fromCache,
		DurationMs:    int64(elapsed * 1000),
	}
	if err := e.store.SaveResearchResult(ctx, result); err != nil {
		e.logger.Warn("Failed to save research result", zap.String("task_id", taskID), zap.Error(err))
	}

	metrics.RecordTaskMetrics(status, elapsed)

	eventType := streaming.EventTaskCompleted
	if status == models.StatusFailed {
		eventType = streaming.EventTaskFailed
	}
	e.publish(taskID, streaming.Event{Type: eventType, Payload: result})
}

// triggerConsolidation fires the detached consolidation. It never blocks
// the caller and swallows every error and panic.
func (e *Executor) triggerConsolidation(taskID string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Warn("Consolidation panicked", zap.String("task_id", taskID), zap.Any("panic", r))
				metrics.ConsolidationTriggers.WithLabelValues("panic").Inc()
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := e.consolidator.TriggerConsolidation(ctx, taskID); err != nil {
			e.logger.Warn("Consolidation failed", zap.String("task_id", taskID), zap.Error(err))
			metrics.ConsolidationTriggers.WithLabelValues("error").Inc()
			return
		}
		metrics.ConsolidationTriggers.WithLabelValues("ok").Inc()
	}()
}

func (e *Executor) recordProgress(ctx context.Context, progress models.AgentProgress, logger *zap.Logger) {
	if err := e.store.UpdateAgentProgress(ctx, progress); err != nil {
		logger.Warn("Failed to record agent progress", zap.String("source", progress.Source), zap.Error(err))
	}
}

// streamManager never returns nil so the collector always has a sink.
func (e *Executor) streamManager() *streaming.Manager {
	if e.streams != nil {
		return e.streams
	}
	return streaming.NewManager(0)
}

func (e *Executor) publish(taskID string, evt streaming.Event) {
	if e.streams == nil {
		return
	}
	e.streams.Publish(taskID, evt)
}

// buildQuery appends per-source directives and the time-range hint to the
// topic.
func buildQuery(topic, source string, constraints models.Constraints) string {
	parts := []string{topic}
	if directive := constraints.Directives[source]; directive != "" {
		parts = append(parts, directive)
	}
	if constraints.TimeRange != "" {
		parts = append(parts, constraints.TimeRange)
	}
	return strings.Join(parts, " ")
}

func toOutcomes(snapshot map[string]models.AgentProgress) map[string]*models.AgentProgress {
	if snapshot == nil {
		return nil
	}
	out := make(map[string]*models.AgentProgress, len(snapshot))
	for source, p := range snapshot {
		cp := p
		out[source] = &cp
	}
	return out
}
