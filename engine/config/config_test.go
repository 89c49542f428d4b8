package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadParsesPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumen.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "warn"

[pool]
release_after_seconds = 5
sweep_interval_seconds = 10
`), 0o644))

	cfg := Load(path)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, 5*time.Second, cfg.Pool.ReleaseAfter())
	require.Equal(t, 10*time.Second, cfg.Pool.SweepInterval())
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Equal(t, Default(), cfg)

	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[pool\n"), 0o644))
	cfg = Load(path)
	require.Equal(t, Default(), cfg)
}

func TestPolicyZeroValuesUseDefaults(t *testing.T) {
	var p PoolPolicy
	require.Equal(t, DefaultReleaseAfter, p.ReleaseAfter())
	require.Equal(t, DefaultSweepInterval, p.SweepInterval())

	p = PoolPolicy{ReleaseAfterSeconds: -1, SweepIntervalSeconds: -1}
	require.Equal(t, DefaultReleaseAfter, p.ReleaseAfter())
	require.Equal(t, DefaultSweepInterval, p.SweepInterval())
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumen.toml")
	require.NoError(t, os.WriteFile(path, []byte("[pool]\nrelease_after_seconds = 1\n"), 0o644))

	reloaded := make(chan *Config, 4)
	w, err := Watch(path, func(cfg *Config) { reloaded <- cfg })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("[pool]\nrelease_after_seconds = 7\n"), 0o644))

	select {
	case cfg := <-reloaded:
		require.Equal(t, 7*time.Second, cfg.Pool.ReleaseAfter())
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
}
