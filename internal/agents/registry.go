package agents

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Default base credibility per source. Overridable at registration time.
var defaultCredibility = map[string]float64{
	"documentation": 0.95,
	"arxiv":         0.90,
	"github":        0.85,
	"stackoverflow": 0.80,
	"hackernews":    0.70,
	"youtube":       0.65,
	"medium":        0.60,
	"reddit":        0.55,
	"twitter":       0.50,
}

// fallbackCredibility applies to sources without a table entry.
const fallbackCredibility = 0.50

// Registration pairs an agent with its base credibility.
type Registration struct {
	Agent       Agent
	Credibility float64
}

// Registry holds the configured research agents. It is an explicit
// dependency passed to the executor, never package-level state, so tests
// and embedders can build isolated registries.
type Registry struct {
	logger *zap.Logger

	mu     sync.RWMutex
	agents map[string]Registration
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger: logger,
		agents: make(map[string]Registration),
	}
}

// Register adds an agent using the default credibility for its source.
func (r *Registry) Register(agent Agent) error {
	cred, ok := defaultCredibility[agent.Name()]
	if !ok {
		cred = fallbackCredibility
	}
	return r.RegisterWithCredibility(agent, cred)
}

// RegisterWithCredibility adds an agent with an explicit base credibility.
// Registering the same source twice is an error.
func (r *Registry) RegisterWithCredibility(agent Agent, credibility float64) error {
	name := agent.Name()
	if name == "" {
		return fmt.Errorf("agent has empty source name")
	}
	if credibility < 0 || credibility > 1 {
		return fmt.Errorf("credibility %f for source %q out of range [0,1]", credibility, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[name]; exists {
		return fmt.Errorf("source %q already registered", name)
	}
	r.agents[name] = Registration{Agent: agent, Credibility: credibility}
	r.logger.Info("Registered research agent",
		zap.String("source", name),
		zap.Float64("credibility", credibility),
	)
	return nil
}

// Get returns the registration for a source.
func (r *Registry) Get(source string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.agents[source]
	return reg, ok
}

// Sources returns registered source names in sorted order.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.agents))
	for name := range r.agents {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Credibilities returns the source to base-credibility mapping, used to
// seed cross-validation.
func (r *Registry) Credibilities() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]float64, len(r.agents))
	for name, reg := range r.agents {
		out[name] = reg.Credibility
	}
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
