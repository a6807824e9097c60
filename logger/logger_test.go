package logger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestLogger_DerivedLoggersShareEntries(t *testing.T) {
	root := NewTestLogger()
	child := ForSession(root, "checkout", "guest-purchase")

	child.Info(context.Background(), "step executed", map[string]interface{}{"step_index": 2})
	root.Warn(context.Background(), "root message", nil)

	entries := root.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "step executed", entries[0].Message)
	assert.Equal(t, "checkout", entries[0].Fields["story"])
	assert.Equal(t, "guest-purchase", entries[0].Fields["flow"])
	assert.Equal(t, 2, entries[0].Fields["step_index"])
	assert.NotContains(t, entries[1].Fields, "story")
	assert.True(t, root.HasMessage("warn", "root message"))

	root.Reset()
	assert.Empty(t, root.Entries())
}

func TestNewLogrusLoggerWithConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replayer.log")
	log := NewLogrusLoggerWithConfig(Config{Level: "debug", Format: "text", File: path, MaxSizeMB: 1})
	log.WithField("component", "test").Debug(context.Background(), "hello", nil)
	assert.NoError(t, log.Close())
	assert.FileExists(t, path)
}
