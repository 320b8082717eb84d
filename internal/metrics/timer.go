package metrics

import "time"

// Timer measures one operation's duration for the per-operation recorders.
// Usage:
//
//	done := metrics.StartTimer()
//	...
//	metrics.RecordAgentMetrics(source, status, done(), len(findings))
func StartTimer() func() float64 {
	start := time.Now()
	return func() float64 {
		return time.Since(start).Seconds()
	}
}
