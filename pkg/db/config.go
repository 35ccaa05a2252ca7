package db

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidConfig = errors.New("invalid_database_config")

// Config selects the dialect and tunes the pool. Type is postgres, mysql or
// sqlite; sqlite only needs Name, the file path.
type Config struct {
	Type     string
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string

	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	LogLevel      string
	SlowThreshold time.Duration
}

func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Type)) {
	case "sqlite":
		return nil
	case "postgres", "mysql":
		if strings.TrimSpace(c.Host) == "" || strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%w: %s needs host and name", ErrInvalidConfig, c.Type)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidConfig, c.Type)
	}
}
