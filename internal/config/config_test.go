package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	c := Defaults()
	if c.CacheTTL() != 15*time.Minute {
		t.Fatalf("cache ttl = %s, want 15m", c.CacheTTL())
	}
	if c.AgentTimeout() != time.Minute {
		t.Fatalf("agent timeout = %s, want 1m", c.AgentTimeout())
	}
	if c.Research.Aggregation.SimilarityThreshold != 0.85 {
		t.Fatalf("similarity threshold = %f", c.Research.Aggregation.SimilarityThreshold)
	}
	if c.Research.Streaming.BatchSize != 5 {
		t.Fatalf("batch size = %d", c.Research.Streaming.BatchSize)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "research.yaml")
	content := `
research:
  cache:
    ttl_seconds: 120
  agents:
    timeout_seconds: 30
  sources:
    medium:
      requests_per_minute: 20
      burst_size: 3
      credibility: 0.6
observability:
  metrics:
    port: 9999
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.CacheTTL() != 2*time.Minute {
		t.Fatalf("cache ttl = %s, want 2m", c.CacheTTL())
	}
	if c.AgentTimeout() != 30*time.Second {
		t.Fatalf("agent timeout = %s, want 30s", c.AgentTimeout())
	}
	medium, ok := c.Research.Sources["medium"]
	if !ok {
		t.Fatal("medium source missing")
	}
	if medium.RequestsPerMinute != 20 || medium.BurstSize != 3 || medium.Credibility != 0.6 {
		t.Fatalf("medium = %+v", medium)
	}
	if c.Observability.Metrics.Port != 9999 {
		t.Fatalf("metrics port = %d", c.Observability.Metrics.Port)
	}
	// File did not set these, defaults survive.
	if c.Research.Cache.MaxEntries != 1000 {
		t.Fatalf("max entries = %d, want default 1000", c.Research.Cache.MaxEntries)
	}
}

func TestEnvOverridesWin(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("CACHE_TTL_SECONDS", "45")
	t.Setenv("STREAMING_BATCH_SIZE", "9")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.CacheTTL() != 45*time.Second {
		t.Fatalf("cache ttl = %s, want 45s", c.CacheTTL())
	}
	if c.Research.Streaming.BatchSize != 9 {
		t.Fatalf("batch size = %d, want 9", c.Research.Streaming.BatchSize)
	}
}

func TestLoadMalformedFileFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "research.yaml")
	if err := os.WriteFile(path, []byte("research: [not a map"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	if _, err := Load(); err == nil {
		t.Fatal("malformed config loaded without error")
	}
}
