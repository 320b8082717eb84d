package circuitbreaker

import (
	"os"
	"strconv"
	"time"
)

// SourceConfigFromEnv returns the shared source circuit breaker configuration,
// honoring environment overrides for operational tuning.
func SourceConfigFromEnv() Config {
	return Config{
		FailureThreshold: getEnvInt("CB_SOURCE_FAILURE_THRESHOLD", 5),
		SuccessThreshold: getEnvInt("CB_SOURCE_SUCCESS_THRESHOLD", 2),
		Timeout:          getEnvDuration("CB_SOURCE_TIMEOUT", 60*time.Second),
	}
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}
