package agents

import (
	"context"

	"github.com/shawkridge/athena-sub002/internal/models"
)

// Agent is a single research source. Search runs one query against the
// source and returns its raw findings. Implementations must honor ctx
// cancellation and return an error rather than partial silent results.
type Agent interface {
	// Name is the canonical source name (lowercase, stable). It keys the
	// rate limiter, the circuit breaker, and per-source credibility.
	Name() string

	// Search executes the query against the source.
	Search(ctx context.Context, query string) ([]models.RawFinding, error)
}

// SearchFunc adapts a function to the Agent interface.
type SearchFunc struct {
	Source string
	Fn     func(ctx context.Context, query string) ([]models.RawFinding, error)
}

func (s SearchFunc) Name() string { return s.Source }

func (s SearchFunc) Search(ctx context.Context, query string) ([]models.RawFinding, error) {
	return s.Fn(ctx, query)
}
