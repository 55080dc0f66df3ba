package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

func statement(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_Trace(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-5")
	update := statement(`UPDATE "stock_records" SET "reserved"=reserved + 2`, 1)

	tests := []struct {
		name    string
		level   gormlogger.LogLevel
		elapsed time.Duration
		err     error
		wantMsg string
		wantLvl zapcore.Level
	}{
		{"query at info level", gormlogger.Info, time.Millisecond, nil, "SQL", zapcore.DebugLevel},
		{"query below info level", gormlogger.Warn, time.Millisecond, nil, "", 0},
		{"slow statement", gormlogger.Warn, time.Second, nil, "Slow SQL", zapcore.WarnLevel},
		{"failed statement", gormlogger.Error, time.Millisecond, errors.New("deadlock detected"), "SQL error", zapcore.ErrorLevel},
		{"record not found is quiet", gormlogger.Error, time.Millisecond, gormlogger.ErrRecordNotFound, "", 0},
		{"silent", gormlogger.Silent, time.Second, errors.New("boom"), "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, logs := observed()
			gl := NewGormLogger(l, tt.level, WithSlowThreshold(100*time.Millisecond))

			gl.Trace(ctx, time.Now().Add(-tt.elapsed), update, tt.err)

			if tt.wantMsg == "" {
				assert.Zero(t, logs.Len())
				return
			}
			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, tt.wantMsg, entry.Message)
			assert.Equal(t, tt.wantLvl, entry.Level)
			assert.Equal(t, "gorm", entry.LoggerName)
			fields := entry.ContextMap()
			assert.Equal(t, "req-5", fields["request_id"])
			assert.EqualValues(t, 1, fields["rows"])
		})
	}
}

func TestGormLogger_SlowThresholdDisabled(t *testing.T) {
	l, logs := observed()
	gl := NewGormLogger(l, gormlogger.Warn, WithSlowThreshold(0))
	gl.Trace(context.Background(), time.Now().Add(-time.Hour), statement("SELECT 1", 1), nil)
	assert.Zero(t, logs.Len())
}

func TestGormLogger_LogMode(t *testing.T) {
	l, logs := observed()
	gl := NewGormLogger(l, gormlogger.Silent)

	gl.Info(context.Background(), "hidden %d", 1)
	louder := gl.LogMode(gormlogger.Info)
	louder.Info(context.Background(), "migrated %d tables", 4)
	louder.Warn(context.Background(), "warn")
	louder.Error(context.Background(), "error")

	require.Equal(t, 3, logs.Len())
	assert.Equal(t, "migrated 4 tables", logs.All()[0].Message)
	assert.Equal(t, gormlogger.Silent, gl.level)
}

func TestMapGormLogLevel(t *testing.T) {
	tests := map[string]gormlogger.LogLevel{
		"silent": gormlogger.Silent,
		"error":  gormlogger.Error,
		"warn":   gormlogger.Warn,
		"info":   gormlogger.Info,
		"debug":  gormlogger.Info,
		"":       gormlogger.Warn,
	}
	for in, want := range tests {
		assert.Equal(t, want, MapGormLogLevel(in), "level %q", in)
	}
}
