package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "dev")
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 3000, cfg.Port)
	require.Equal(t, 5, cfg.DefaultCapacity)
	require.Equal(t, 54*time.Second, cfg.PingPeriod)
}

func TestLoadRejectsMalformedConfig(t *testing.T) {
	t.Setenv("CONFIG_ENV", "dev")
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	bad := []byte("ping_period: not-a-duration\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.dev.yaml"), bad, 0o644))
	t.Chdir(dir)

	_, err := Load()
	require.Error(t, err)
}
