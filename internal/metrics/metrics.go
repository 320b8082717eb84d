package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Research task metrics
	TasksStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "athena_research_tasks_started_total",
			Help: "Total number of research tasks started",
		},
	)

	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_research_tasks_completed_total",
			Help: "Total number of research tasks completed",
		},
		[]string{"status"},
	)

	TaskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "athena_research_task_duration_seconds",
			Help:    "Research task execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Agent metrics
	AgentExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_agent_executions_total",
			Help: "Total number of agent executions",
		},
		[]string{"source", "status"},
	)

	AgentExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "athena_agent_execution_duration_seconds",
			Help:    "Agent execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"source"},
	)

	FindingsDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_findings_discovered_total",
			Help: "Total number of raw findings discovered",
		},
		[]string{"source"},
	)

	FindingsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "athena_findings_persisted_total",
			Help: "Total number of aggregated findings persisted",
		},
	)

	// Query cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "athena_query_cache_hits_total",
			Help: "Total number of query cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "athena_query_cache_misses_total",
			Help: "Total number of query cache misses",
		},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "athena_query_cache_evictions_total",
			Help: "Total number of query cache evictions",
		},
	)

	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "athena_query_cache_size",
			Help: "Current number of entries in the query cache",
		},
	)

	// Streaming metrics
	StreamEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_stream_events_total",
			Help: "Total number of streaming events published",
		},
		[]string{"type"},
	)

	StreamBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "athena_stream_batch_size",
			Help:    "Number of findings per emitted streaming batch",
			Buckets: []float64{1, 2, 5, 10, 20, 50},
		},
	)

	// Consolidation metrics
	ConsolidationTriggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_consolidation_triggers_total",
			Help: "Total number of consolidation triggers fired",
		},
		[]string{"status"},
	)

	// Persistence metrics
	StoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_store_writes_total",
			Help: "Total number of persistence writes",
		},
		[]string{"type", "status"},
	)

	StoreWriteQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "athena_store_write_queue_depth",
			Help: "Current depth of the async persistence write queue",
		},
	)
)

// RecordTaskMetrics records metrics for a completed research task
func RecordTaskMetrics(status string, durationSeconds float64) {
	TasksCompleted.WithLabelValues(status).Inc()
	if durationSeconds > 0 {
		TaskDuration.Observe(durationSeconds)
	}
}

// RecordAgentMetrics records metrics for one agent execution
func RecordAgentMetrics(source, status string, durationSeconds float64, findings int) {
	AgentExecutions.WithLabelValues(source, status).Inc()
	if durationSeconds > 0 {
		AgentExecutionDuration.WithLabelValues(source).Observe(durationSeconds)
	}
	if findings > 0 {
		FindingsDiscovered.WithLabelValues(source).Add(float64(findings))
	}
}

// RecordStreamEvent counts one published streaming event
func RecordStreamEvent(eventType string) {
	StreamEvents.WithLabelValues(eventType).Inc()
}
