package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AllDisabledYieldsNoOpLogger(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.NotPanics(t, func() { l.Info("should be a no-op") })
}

func TestNew_ConsoleOnly(t *testing.T) {
	l, err := New(DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, l.Logger)
}

func TestNew_FileEnabledWithoutPathErrors(t *testing.T) {
	cfg := Config{File: FileConfig{Enabled: true}}
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNew_ConsoleAndFileBothEnabled(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Level:   LevelInfo,
		Console: ConsoleConfig{Enabled: true, Format: FormatConsole},
		File:    FileConfig{Enabled: true, Path: dir + "/engine.log", Format: FormatJSON},
	}
	l, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.NotPanics(t, func() { l.Info("hello") })
}

func TestNop_IsAlwaysSafe(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() { l.SwitchToConfiguredLevel() })

	n := Nop()
	assert.NotPanics(t, func() { n.Info("noop") })
}

func TestSwitchToConfiguredLevel_RestoresOriginalLevels(t *testing.T) {
	cfg := Config{
		Level:   LevelError,
		Console: ConsoleConfig{Enabled: true},
	}
	l, err := New(cfg)
	require.NoError(t, err)

	l.consoleLevel.SetLevel(parseLevel(LevelDebug))
	assert.Equal(t, parseLevel(LevelDebug), l.consoleLevel.Level())

	l.SwitchToConfiguredLevel()
	assert.Equal(t, parseLevel(LevelError), l.consoleLevel.Level())
}
