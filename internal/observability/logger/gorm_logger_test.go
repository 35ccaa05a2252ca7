package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObserved(t *testing.T, cfg GormConfig) (*GormLogger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	l, err := NewGormLogger(zap.New(core), cfg)
	require.NoError(t, err)
	return l, logs
}

func statement(sql string) func() (string, int64) {
	return func() (string, int64) { return sql, 1 }
}

func TestParseGormLevel(t *testing.T) {
	cases := map[string]gormlogger.LogLevel{
		"":       gormlogger.Warn,
		"silent": gormlogger.Silent,
		"ERROR":  gormlogger.Error,
		" warn ": gormlogger.Warn,
		"info":   gormlogger.Info,
	}
	for raw, want := range cases {
		got, err := ParseGormLevel(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseGormLevel("verbose")
	assert.Error(t, err)
}

func TestTraceLogsSlowQueriesAboveThreshold(t *testing.T) {
	l, logs := newObserved(t, GormConfig{Level: "warn", SlowThreshold: 50 * time.Millisecond})
	ctx := context.Background()

	l.Trace(ctx, time.Now(), statement("SELECT 1 FROM leads"), nil)
	assert.Equal(t, 0, logs.Len())

	l.Trace(ctx, time.Now().Add(-time.Second), statement("SELECT *\n  FROM credit_transactions WHERE broker_id = ?"), nil)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "slow query", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "credit_transactions", fields["table"])
	assert.Equal(t, "SELECT * FROM credit_transactions WHERE broker_id = ?", fields["sql"])
}

func TestTraceLevelGatesErrors(t *testing.T) {
	silent, silentLogs := newObserved(t, GormConfig{Level: "silent"})
	silent.Trace(context.Background(), time.Now(), statement("UPDATE leads SET status = ?"), errors.New("boom"))
	assert.Equal(t, 0, silentLogs.Len())

	l, logs := newObserved(t, GormConfig{Level: "error"})
	l.Trace(context.Background(), time.Now(), statement("INSERT INTO invoices VALUES (?)"), gormlogger.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len())

	l.Trace(context.Background(), time.Now(), statement("UPDATE leads SET status = ?"), errors.New("boom"))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)
	assert.Equal(t, "leads", logs.All()[0].ContextMap()["table"])
}

func TestParamsFilterDropsValues(t *testing.T) {
	l, _ := newObserved(t, GormConfig{})
	sql, params := l.ParamsFilter(context.Background(), "SELECT ?", "secret")
	assert.Equal(t, "SELECT ?", sql)
	assert.Nil(t, params)
}
