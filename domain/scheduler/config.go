package scheduler

import (
	"os"
	"strconv"
	"time"
)

// Config holds scheduler configuration
type Config struct {
	// Enabled controls whether the scheduler runs
	Enabled bool

	// QueueStatsInterval is the interval for refreshing dedup queue gauges
	QueueStatsInterval time.Duration

	// OrphanSweepInterval is the interval for dismissing candidates whose
	// entities were merged away through another pair
	OrphanSweepInterval time.Duration

	// Cron schedule overrides (take precedence over intervals when set)
	// Format with seconds: "second minute hour day-of-month month day-of-week"
	QueueStatsSchedule  string
	OrphanSweepSchedule string
}

// NewConfig creates a new Config from environment variables
func NewConfig() *Config {
	return &Config{
		Enabled:             getEnvBool("SCHEDULER_ENABLED", true),
		QueueStatsInterval:  getEnvDuration("DEDUP_QUEUE_STATS_INTERVAL_MS", 5*time.Minute),
		OrphanSweepInterval: getEnvDuration("DEDUP_ORPHAN_SWEEP_INTERVAL_MS", 15*time.Minute),
		// Empty string means use the interval
		QueueStatsSchedule:  getEnvString("DEDUP_QUEUE_STATS_SCHEDULE", ""),
		OrphanSweepSchedule: getEnvString("DEDUP_ORPHAN_SWEEP_SCHEDULE", ""),
	}
}

// getEnvBool returns a boolean from an environment variable
func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration returns a duration from an environment variable (in milliseconds)
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}

// getEnvString returns a string from an environment variable
func getEnvString(key string, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
