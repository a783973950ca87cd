package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	settings, err := Load("")
	require.NoError(t, err)

	require.Equal(t, DefaultMetricsAddr, settings.MetricsAddress)
	require.Equal(t, "info", settings.LogLevel)
	require.Equal(t, 500*time.Millisecond, settings.SettleDelay())

	opts := settings.StoreOptions()
	require.True(t, opts.EnableWatchers)
	require.True(t, opts.EnableEvents)
	require.True(t, opts.EnableTransactions)
	require.Equal(t, 256, opts.CacheSize)
	require.Equal(t, 30*time.Second, opts.CacheTTL)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcpreg.yaml")
	content := `
databasePath: /tmp/custom.db
settleDelayMs: 50
store:
  cacheSize: 16
  enableWatchers: false
  encryptionKey: hunter2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	settings, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom.db", settings.DatabasePath)
	require.Equal(t, 50*time.Millisecond, settings.SettleDelay())

	opts := settings.StoreOptions()
	require.Equal(t, "/tmp/custom.db", opts.Path)
	require.Equal(t, 16, opts.CacheSize)
	require.False(t, opts.EnableWatchers)
	require.Equal(t, "hunter2", opts.EncryptionKey)
	// file settings merge over defaults rather than replacing them
	require.True(t, opts.EnableEvents)
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	settings, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultMetricsAddr, settings.MetricsAddress)
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n\t- nope"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
