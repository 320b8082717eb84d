package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// SourceConfig carries the per-source overridable knobs: rate limiting,
// circuit breaking, and credibility.
type SourceConfig struct {
	RequestsPerMinute int     `mapstructure:"requests_per_minute"`
	BurstSize         int     `mapstructure:"burst_size"`
	FailureThreshold  int     `mapstructure:"failure_threshold"`
	SuccessThreshold  int     `mapstructure:"success_threshold"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	Credibility       float64 `mapstructure:"credibility"`
}

type CacheConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
	MaxEntries int `mapstructure:"max_entries"`
}

type AgentsConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

type AggregationConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
}

type StreamingConfig struct {
	BatchSize       int `mapstructure:"batch_size"`
	HistoryCapacity int `mapstructure:"history_capacity"`
}

type ResearchConfig struct {
	Cache       CacheConfig             `mapstructure:"cache"`
	Agents      AgentsConfig            `mapstructure:"agents"`
	Aggregation AggregationConfig       `mapstructure:"aggregation"`
	Streaming   StreamingConfig         `mapstructure:"streaming"`
	Sources     map[string]SourceConfig `mapstructure:"sources"`
}

type ObservabilityConfig struct {
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Config is the full research.yaml surface.
type Config struct {
	Research      ResearchConfig      `mapstructure:"research"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

// Defaults returns the built-in configuration used when no file is present.
func Defaults() *Config {
	c := &Config{}
	c.Research.Cache.TTLSeconds = 900
	c.Research.Cache.MaxEntries = 1000
	c.Research.Agents.TimeoutSeconds = 60
	c.Research.Aggregation.SimilarityThreshold = 0.85
	c.Research.Streaming.BatchSize = 5
	c.Research.Streaming.HistoryCapacity = 256
	c.Observability.Metrics.Enabled = true
	c.Observability.Metrics.Port = 2112
	c.Observability.Logging.Level = "info"
	c.Observability.Logging.Format = "json"
	c.Database.Port = 5432
	c.Database.SSLMode = "disable"
	c.Redis.Addr = "localhost:6379"
	return c
}

// Load reads research.yaml from CONFIG_PATH, /app/config/research.yaml, or
// ./config/research.yaml. A missing file yields the defaults; a present but
// malformed file is an error.
func Load() (*Config, error) {
	cfg := Defaults()

	path := configPath()
	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	for _, p := range []string{"/app/config/research.yaml", "./config/research.yaml"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("METRICS_PORT"); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Observability.Metrics.Port = x
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.Logging.Level = v
	}
	if v := os.Getenv("CACHE_TTL_SECONDS"); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Research.Cache.TTLSeconds = x
		}
	}
	if v := os.Getenv("CACHE_MAX_ENTRIES"); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Research.Cache.MaxEntries = x
		}
	}
	if v := os.Getenv("AGENT_TIMEOUT_SECONDS"); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Research.Agents.TimeoutSeconds = x
		}
	}
	if v := os.Getenv("DEDUP_SIMILARITY_THRESHOLD"); v != "" {
		var x float64
		_, _ = fmt.Sscanf(v, "%f", &x)
		if x > 0 && x <= 1 {
			cfg.Research.Aggregation.SimilarityThreshold = x
		}
	}
	if v := os.Getenv("STREAMING_BATCH_SIZE"); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Research.Streaming.BatchSize = x
		}
	}
	if v := os.Getenv("DATABASE_URL_HOST"); v != "" {
		cfg.Database.Host = v
		cfg.Database.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
}

// CacheTTL returns the configured cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Research.Cache.TTLSeconds) * time.Second
}

// AgentTimeout returns the per-source search deadline.
func (c *Config) AgentTimeout() time.Duration {
	return time.Duration(c.Research.Agents.TimeoutSeconds) * time.Second
}
