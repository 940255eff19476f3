package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Empty(t, cfg.Validate())
	assert.True(t, cfg.Console.Enabled)
	assert.False(t, cfg.Store.Enabled)
	assert.Equal(t, 168*time.Hour, cfg.Store.RetentionDuration())
	assert.EqualValues(t, 64<<20, cfg.Store.MaxTableSize())
	assert.Equal(t, filepath.Join("data", "master.key"), cfg.Store.KeyPath())
}

func TestInitReadsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logpile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: warning
  depth: 4
store:
  enabled: true
  data_dir: /var/lib/logpile
cluster:
  nodes:
    - http://a:8088
    - http://b:8088
`), 0o644))
	t.Setenv("LOGPILE_STORE_RETENTION", "24h")
	t.Setenv("LOGPILE_CONSOLE_ENABLED", "false")

	v := viper.New()
	require.NoError(t, Init(v, path))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "warning", cfg.Log.Level)
	assert.Equal(t, 4, cfg.Log.Depth)
	assert.True(t, cfg.Store.Enabled)
	assert.Equal(t, "/var/lib/logpile", cfg.Store.DataDir)
	assert.Equal(t, 24*time.Hour, cfg.Store.RetentionDuration())
	assert.False(t, cfg.Console.Enabled)
	assert.Equal(t, []string{"http://a:8088", "http://b:8088"}, cfg.Cluster.Nodes)
	// untouched keys keep their defaults
	assert.Equal(t, ":8088", cfg.Server.Addr)
	assert.Equal(t, 64, cfg.Store.MaxTableMB)
}

func TestInitMissingExplicitFile(t *testing.T) {
	err := Init(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Log.Level = "loud"
	cfg.Log.Depth = 11
	cfg.Store.Enabled = true
	cfg.Store.MaxTableMB = 0
	cfg.Store.Retention = "a week"
	cfg.Cluster.Nodes = []string{"ftp://x"}
	cfg.Server.TokenHash = "plain"
	cfg.Diagnostics.Level = "chatty"

	errs := cfg.Validate()
	fields := make([]string, len(errs))
	for i, e := range errs {
		fields[i] = e.Field
	}
	assert.ElementsMatch(t, []string{
		"log.level", "log.depth", "store.max_table_mb", "store.retention",
		"cluster.nodes", "server.token_hash", "diagnostics.level",
	}, fields)

	assert.Contains(t, ValidationErrors(errs).Error(), "7 validation errors")
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	d := DiagnosticsConfig{Level: "debug"}
	assert.Equal(t, "DEBUG", d.SlogLevel().String())
	d.Level = "nonsense"
	assert.Equal(t, "INFO", d.SlogLevel().String())
}
