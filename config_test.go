package pipeflow

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *cfg)
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "workers: 3\nlogLevel: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, DefaultConfig().HistoryLimit, cfg.HistoryLimit)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadConfig_ExplicitZeroHistory(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "historyLimit: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.HistoryLimit)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errPart string
	}{
		{"zero workers", "workers: 0\n", "Workers"},
		{"unknown level", "logLevel: loud\n", "LogLevel"},
		{"unknown format", "logFormat: xml\n", "LogFormat"},
		{"negative history", "historyLimit: -1\n", "HistoryLimit"},
		{"malformed yaml", "workers: [\n", "parsing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}
}

func TestWithConfig_AppliesToScene(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryLimit = 0
	s := newTestScene(t, WithConfig(&cfg))

	p := s.NewPipeline("main", staticInput("x"))
	p.Evaluate(0)
	assert.Equal(t, 0, s.History().Len())
}
