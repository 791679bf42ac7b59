package log

import (
	"bytes"
	"testing"

	"github.com/kataras/golog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedGolog() (*GologLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	glogger := golog.New()
	glogger.SetOutput(&buf)
	glogger.SetTimeFormat("")
	return NewGologLogger(glogger), &buf
}

func TestGologLoggerDefaults(t *testing.T) {
	logger, _ := newBufferedGolog()
	assert.Equal(t, LogLevelInfo, logger.GetLevel())
}

func TestGologLoggerFormats(t *testing.T) {
	logger, buf := newBufferedGolog()
	logger.SetLevel(LogLevelDebug)

	logger.Info("answered in %dms for session %s", 42, "s1")
	require.Contains(t, buf.String(), "answered in 42ms for session s1")
}

func TestGologLoggerLevelFiltering(t *testing.T) {
	logger, buf := newBufferedGolog()
	logger.SetLevel(LogLevelError)

	logger.Debug("filtered")
	logger.Info("filtered")
	logger.Warn("filtered")
	assert.NotContains(t, buf.String(), "filtered")

	logger.Error("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestGologLoggerSetLevel(t *testing.T) {
	logger, _ := newBufferedGolog()

	for _, level := range []LogLevel{LogLevelDebug, LogLevelWarn, LogLevelError, LogLevelNone} {
		logger.SetLevel(level)
		assert.Equal(t, level, logger.GetLevel())
	}
}
