package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("HOST", "")
	t.Setenv("BATCH_SIZE", "")
	t.Setenv("EXPORT_DIR", "")
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOW_ORIGINS", "http://a, http://b")
	t.Setenv("PREVIEW_ROWS", "oops")

	cfg := Load()
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.AllowOrigins)
	assert.Equal(t, 20, cfg.PreviewRows)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, "exports", cfg.ExportDir)
}

func TestCORSClosedByDefault(t *testing.T) {
	t.Setenv("ALLOW_ORIGINS", "")
	assert.Empty(t, Load().AllowOrigins)

	t.Setenv("ALLOW_ORIGINS", " , *")
	assert.Equal(t, []string{"*"}, Load().AllowOrigins)
}

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.toml")

	s, err := LoadState(path)
	require.NoError(t, err)
	assert.Empty(t, s.LastOpened())

	require.NoError(t, s.Remember("/data/门店.xlsx"))

	again, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/门店.xlsx", again.LastOpened())
	assert.False(t, again.SavedAt.IsZero())
}

func TestStateBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")
	require.NoError(t, os.WriteFile(path, []byte("last_opened_file = ["), 0o644))
	_, err := LoadState(path)
	assert.Error(t, err)
}

func TestSetupLoggerConsoleOnly(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)
	logger := SetupLogger(Config{LogLevel: "warn"}, io.Discard)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	logger.Warn().Msg("ok")
}
