package ratelimit

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type limitsFile struct {
	RateLimits struct {
		DefaultRPM      int                    `yaml:"default_rpm"`
		DefaultBurst    int                    `yaml:"default_burst"`
		SourceOverrides map[string]SourceLimit `yaml:"source_overrides"`
	} `yaml:"rate_limits"`
}

var defaultPaths = []string{
	os.Getenv("SOURCES_CONFIG_PATH"),
	"/app/config/sources.yaml",
	"./config/sources.yaml",
}

// LoadOverrides reads per-source rate limit overrides from the first
// sources.yaml found, searching the well-known paths and then upward from
// the working directory. A missing file is not an error: the built-in table
// applies.
func LoadOverrides(logger *zap.Logger) map[string]SourceLimit {
	for _, p := range defaultPaths {
		if p == "" {
			continue
		}
		if overrides, ok := loadFrom(p, logger); ok {
			return overrides
		}
	}
	if path, ok := findUpConfig(); ok {
		if overrides, ok := loadFrom(path, logger); ok {
			return overrides
		}
	}
	return nil
}

func loadFrom(path string, logger *zap.Logger) (map[string]SourceLimit, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var cfg limitsFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logger.Warn("Failed to unmarshal rate limit config",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, false
	}
	logger.Info("Loaded rate limit configuration", zap.String("path", path))
	return cfg.RateLimits.SourceOverrides, true
}

func findUpConfig() (string, bool) {
	wd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for i := 0; i < 6; i++ {
		cand := filepath.Join(wd, "config", "sources.yaml")
		if _, err := os.Stat(cand); err == nil {
			return cand, true
		}
		wd = filepath.Dir(wd)
	}
	return "", false
}
