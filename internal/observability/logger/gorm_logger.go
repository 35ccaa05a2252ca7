package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// GormConfig is the database logging section of the application config.
type GormConfig struct {
	// Level is one of silent, error, warn or info.
	Level         string
	SlowThreshold time.Duration
}

// ParseGormLevel maps a config level name onto gorm's levels. Empty means
// warn.
func ParseGormLevel(raw string) (gormlogger.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return gormlogger.Warn, nil
	case "silent", "off":
		return gormlogger.Silent, nil
	case "error":
		return gormlogger.Error, nil
	case "warn", "warning":
		return gormlogger.Warn, nil
	case "info", "debug":
		return gormlogger.Info, nil
	default:
		return gormlogger.Silent, fmt.Errorf("invalid database log level %q", raw)
	}
}

// GormLogger writes gorm output through zap. Failed statements log at
// error, statements slower than the threshold at warn, everything else at
// debug when the level is info. Bound parameters are never logged since
// they carry payment references and contact data.
type GormLogger struct {
	base          *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func NewGormLogger(base *zap.Logger, cfg GormConfig) (*GormLogger, error) {
	level, err := ParseGormLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if base == nil {
		base = zap.NewNop()
	}
	return &GormLogger{
		base:          base.Named("gorm"),
		level:         level,
		slowThreshold: cfg.SlowThreshold,
	}, nil
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		WithContext(ctx, l.base).Info(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		WithContext(ctx, l.base).Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		WithContext(ctx, l.base).Error(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	slow := l.slowThreshold > 0 && elapsed > l.slowThreshold
	failed := err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound)

	switch {
	case failed && l.level >= gormlogger.Error:
		l.query(ctx, fc, elapsed).Error("query failed", zap.Error(err))
	case slow && l.level >= gormlogger.Warn:
		l.query(ctx, fc, elapsed).Warn("slow query", zap.Duration("threshold", l.slowThreshold))
	case l.level >= gormlogger.Info:
		l.query(ctx, fc, elapsed).Debug("query")
	}
}

// ParamsFilter drops bound values from the rendered SQL.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *GormLogger) query(ctx context.Context, fc func() (string, int64), elapsed time.Duration) *zap.Logger {
	sql, rows := fc()
	sql = strings.Join(strings.Fields(sql), " ")
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.String("table", tableOf(sql)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	return WithContext(ctx, l.base).With(fields...)
}

// tableOf names the first table a statement touches, so slow-query lines can
// be grouped by leads, credit_transactions and so on.
func tableOf(sql string) string {
	tokens := strings.Fields(strings.ToLower(sql))
	for i, token := range tokens {
		if i+1 >= len(tokens) {
			break
		}
		switch token {
		case "from", "into", "update":
			return strings.Trim(tokens[i+1], "`\"();")
		}
	}
	return ""
}

var _ gormlogger.Interface = (*GormLogger)(nil)
