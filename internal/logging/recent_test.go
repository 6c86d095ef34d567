package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestRecentBufferEvictsOldest(t *testing.T) {
	t.Parallel()

	buf := NewRecentBuffer(3)
	for _, msg := range []string{"one", "two", "three", "four"} {
		require.NoError(t, buf.Write(zapcore.Entry{Level: zapcore.InfoLevel, Message: msg}, nil))
	}

	entries := buf.Recent(0)
	require.Len(t, entries, 3)
	require.Equal(t, "four", entries[0].Message)
	require.Equal(t, "three", entries[1].Message)
	require.Equal(t, "two", entries[2].Message)
}

func TestRecentBufferLimit(t *testing.T) {
	t.Parallel()

	buf := NewRecentBuffer(10)
	for _, msg := range []string{"a", "b", "c"} {
		require.NoError(t, buf.Write(zapcore.Entry{Level: zapcore.WarnLevel, Message: msg}, nil))
	}

	entries := buf.Recent(2)
	require.Len(t, entries, 2)
	require.Equal(t, "c", entries[0].Message)
}

func TestRecentBufferDropsDebug(t *testing.T) {
	t.Parallel()

	buf := NewRecentBuffer(5)
	require.False(t, buf.Enabled(zapcore.DebugLevel))
	require.True(t, buf.Enabled(zapcore.ErrorLevel))
}

func TestNewWithRecentCaptures(t *testing.T) {
	t.Parallel()

	logger, buf, err := NewWithRecent(false, 5)
	require.NoError(t, err)
	logger.Info("captured line")

	entries := buf.Recent(0)
	require.Len(t, entries, 1)
	require.Equal(t, "captured line", entries[0].Message)
	require.Equal(t, "info", entries[0].Level)
}
