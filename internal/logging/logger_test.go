package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_ConsoleOnly(t *testing.T) {
	l, err := New(Config{Level: LevelInfo, Format: FormatConsole})
	require.NoError(t, err)
	require.NotNil(t, l)

	l.Info("test console logging")
}

func TestNew_WithFileRotation(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "engine.log")

	l, err := New(Config{
		Level:          LevelDebug,
		Format:         FormatJSON,
		FilePath:       logPath,
		FileMaxSizeMB:  1,
		FileMaxBackups: 1,
	})
	require.NoError(t, err)

	l.Debug("hello from file sink")
	require.NoError(t, l.Sync())

	_, err = os.Stat(logPath)
	require.NoError(t, err)
}

func TestDynamicLogger_SetLevel(t *testing.T) {
	l, err := New(Config{Level: LevelError, Format: FormatConsole})
	require.NoError(t, err)

	require.False(t, l.Core().Enabled(zapcore.InfoLevel))
	l.SetLevel(LevelInfo)
	require.True(t, l.Core().Enabled(zapcore.InfoLevel))
}
