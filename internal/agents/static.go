package agents

import (
	"context"
	"time"

	"github.com/shawkridge/athena-sub002/internal/models"
)

// StaticAgent returns a fixed set of findings after an optional delay. It
// backs local development and tests; production deployments register real
// connectors instead.
type StaticAgent struct {
	Source   string
	Findings []models.RawFinding
	Delay    time.Duration
	Err      error
}

func (a *StaticAgent) Name() string { return a.Source }

func (a *StaticAgent) Search(ctx context.Context, query string) ([]models.RawFinding, error) {
	if a.Delay > 0 {
		select {
		case <-time.After(a.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.Err != nil {
		return nil, a.Err
	}
	out := make([]models.RawFinding, len(a.Findings))
	copy(out, a.Findings)
	for i := range out {
		out[i].Source = a.Source
	}
	return out, nil
}
