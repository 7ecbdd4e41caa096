package config

import (
	"testing"

	"memlayout/platform"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 0, cfg.Bits)
	require.Equal(t, "info", cfg.LogLevel)
	require.False(t, cfg.Debug())
	require.False(t, cfg.Quiet())

	_, err = cfg.Options()
	require.ErrorIs(t, err, ErrNoTarget)
}

func TestLoadTarget(t *testing.T) {
	t.Setenv("MEMLAYOUT_PROCESS", "game.exe")
	t.Setenv("MEMLAYOUT_TITLE", "Game Window")
	t.Setenv("MEMLAYOUT_BITS", "32")
	t.Setenv("MEMLAYOUT_PLATFORM", "windows")
	t.Setenv("MEMLAYOUT_LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.Debug())

	opts, err := cfg.Options()
	require.NoError(t, err)
	require.Equal(t, "game.exe", opts.ProcessName)
	require.Equal(t, "Game Window", opts.Title)
	require.Equal(t, platform.WindowsX32, opts.Config)
}

func TestLoadUnresolvedPlatform(t *testing.T) {
	t.Setenv("MEMLAYOUT_TITLE", "only a title")

	cfg, err := Load()
	require.NoError(t, err)

	opts, err := cfg.Options()
	require.NoError(t, err)
	require.Equal(t, platform.Unknown, opts.Config.Platform)
	require.False(t, opts.Config.Resolved())
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		msg   string
	}{
		{"bits not a number", "MEMLAYOUT_BITS", "sixty-four", "parse env:"},
		{"bits unsupported", "MEMLAYOUT_BITS", "48", "MEMLAYOUT_BITS"},
		{"platform", "MEMLAYOUT_PLATFORM", "beos", "MEMLAYOUT_PLATFORM"},
		{"log level", "MEMLAYOUT_LOG_LEVEL", "chatty", "MEMLAYOUT_LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.msg)
		})
	}
}
