package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var rateLimitWaits = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "athena_rate_limit_wait_seconds",
		Help:    "Time spent waiting for rate limiter admission",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 3, 10, 30, 60},
	},
	[]string{"source"},
)

func observeWait(source string, waited time.Duration) {
	rateLimitWaits.WithLabelValues(source).Observe(waited.Seconds())
}
