package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     slog.Level
	}{
		{
			name:     "debug level",
			logLevel: "debug",
			want:     slog.LevelDebug,
		},
		{
			name:     "info level",
			logLevel: "info",
			want:     slog.LevelInfo,
		},
		{
			name:     "warn level",
			logLevel: "warn",
			want:     slog.LevelWarn,
		},
		{
			name:     "error level",
			logLevel: "error",
			want:     slog.LevelError,
		},
		{
			name:     "invalid level defaults to info",
			logLevel: "invalid",
			want:     slog.LevelInfo,
		},
		{
			name:     "empty level defaults to info",
			logLevel: "",
			want:     slog.LevelInfo,
		},
		{
			name:     "case insensitive DEBUG",
			logLevel: "DEBUG",
			want:     slog.LevelDebug,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Setup(tt.logLevel)
			assert.Equal(t, tt.want, Level())
			assert.True(t, slog.Default().Enabled(context.Background(), tt.want))
		})
	}
}

func TestSetLevelAppliesToInstalledLogger(t *testing.T) {
	Setup("info")
	assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelDebug))

	SetLevel("debug")
	assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelDebug))

	SetLevel("error")
	assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelWarn))
}

func TestConfigureWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walletfolio.log")
	Configure(Options{Level: "info", File: path})
	t.Cleanup(func() { Setup("info") })

	slog.Info("Cache cleared", "wallet", "0xabc")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"Cache cleared"`)
	assert.Contains(t, string(data), `"wallet":"0xabc"`)
}
