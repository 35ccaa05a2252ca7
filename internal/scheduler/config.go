package scheduler

import (
	"time"

	"github.com/leadgate/leadgate/internal/config"
)

// Config controls scheduler intervals.
type Config struct {
	RunInterval time.Duration
	// GraceDays is how many days into a month the previous month is still
	// reconciled, so late qualifications reach its invoice.
	GraceDays  int
	JobTimeout time.Duration
	// EnabledJobs limits the run to the named jobs; empty runs all of them.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Hour,
		GraceDays:   5,
		JobTimeout:  5 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	c := DefaultConfig()
	c.RunInterval = cfg.ReconcileInterval
	return c
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.GraceDays < 0 {
		c.GraceDays = 0
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
