package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Run("loads default values when file does not exist", func(t *testing.T) {
		os.Clearenv()

		// Non-existent file — setDefaults() values must apply.
		cfg, err := Load("config.yaml.")

		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:6000", cfg.Worker.Addr)
		assert.Equal(t, "ssh", cfg.Worker.Key)
		assert.Equal(t, 100, cfg.Worker.SettleMs)
		assert.Equal(t, "xterm", cfg.Terminal.Term)
		assert.Equal(t, 200, cfg.Terminal.Cols)
		assert.Equal(t, 24, cfg.Terminal.Rows)
		assert.Equal(t, "saved_hosts.json", cfg.Hosts.Path)
		assert.True(t, cfg.History.Enabled)
		assert.False(t, cfg.Audit.Enabled)
	})

	t.Run("loads values from YAML file", func(t *testing.T) {
		os.Clearenv()

		yamlContent := `
worker:
  addr: "127.0.0.1:7700"
  key: "local-secret"
terminal:
  cols: 132
audit:
  enabled: true
  storage_path: "/var/portside/casts"
`
		err := os.WriteFile(configPath, []byte(yamlContent), 0644)
		require.NoError(t, err)

		cfg, err := Load(configPath)

		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:7700", cfg.Worker.Addr)
		assert.Equal(t, "local-secret", cfg.Worker.Key)
		assert.Equal(t, 132, cfg.Terminal.Cols)
		assert.True(t, cfg.Audit.Enabled)
		assert.Equal(t, "/var/portside/casts", cfg.Audit.StoragePath)
		// Untouched sections keep their defaults.
		assert.Equal(t, 24, cfg.Terminal.Rows)
	})

	t.Run("environment variables override file values", func(t *testing.T) {
		os.Clearenv()

		yamlContent := `
worker:
  addr: "127.0.0.1:7700"
`
		err := os.WriteFile(configPath, []byte(yamlContent), 0644)
		require.NoError(t, err)

		os.Setenv("PORTSIDE_WORKER_ADDR", "127.0.0.1:9999")
		os.Setenv("PORTSIDE_HOSTS", "/tmp/hosts.json")

		cfg, err := Load(configPath)

		require.NoError(t, err)
		// Env addr must win over the file value.
		assert.Equal(t, "127.0.0.1:9999", cfg.Worker.Addr)
		// Env hosts path must win over the default.
		assert.Equal(t, "/tmp/hosts.json", cfg.Hosts.Path)
	})

	t.Run("returns error on invalid YAML", func(t *testing.T) {
		os.Clearenv()

		err := os.WriteFile(configPath, []byte("worker: addr: [invalid yaml"), 0644)
		require.NoError(t, err)

		_, err = Load(configPath)
		assert.Error(t, err)
	})
}
