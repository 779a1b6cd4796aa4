package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		opts       Options
		logged     string
		wantLevel  slog.Level
		wantErr    bool
		wantSilent bool
	}{
		{
			name:      "auto format is json outside a terminal",
			opts:      Options{Level: "info", Format: "auto"},
			wantLevel: slog.LevelInfo,
			logged:    `"msg":"Namespace configured"`,
		},
		{
			name:       "empty format behaves like auto",
			opts:       Options{Level: "warn"},
			wantLevel:  slog.LevelWarn,
			wantSilent: true,
		},
		{
			name:      "text format",
			opts:      Options{Level: "debug", Format: "text"},
			wantLevel: slog.LevelDebug,
			logged:    `msg="Namespace configured"`,
		},
		{
			name:       "messages below the level are dropped",
			opts:       Options{Level: "error", Format: "json"},
			wantLevel:  slog.LevelError,
			wantSilent: true,
		},
		{name: "unknown level", opts: Options{Level: "loud"}, wantErr: true},
		{name: "unknown format", opts: Options{Level: "info", Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			level := new(slog.LevelVar)

			logger, closer, err := New(tt.opts, level, &buf)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Nil(t, closer, "stderr is not closed")
			assert.Equal(t, tt.wantLevel, level.Level())

			logger.Info("Namespace configured", "namespace", "app.notes")
			if tt.wantSilent {
				assert.Empty(t, buf.String())
				return
			}
			assert.Contains(t, buf.String(), tt.logged)
			assert.Contains(t, buf.String(), "app.notes")
		})
	}
}

func TestNew_LevelVarControlsOutput(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	logger, _, err := New(Options{Level: "info", Format: "json"}, level, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	level.Set(slog.LevelDebug)
	logger.Debug("visible")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docsync.log")
	var stderr bytes.Buffer

	logger, closer, err := New(Options{Level: "info", File: path}, new(slog.LevelVar), &stderr)
	require.NoError(t, err)
	require.NotNil(t, closer)

	logger.Info("Sync stopped")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"Sync stopped"`)
	assert.Empty(t, stderr.String())
}
