package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SPAWN_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "data/spawns.yml", cfg.Spawn.Path)
	assert.Equal(t, ":8088", cfg.Server.RESTAddr())
	require.Len(t, cfg.Worlds, 1)
	assert.Equal(t, "world", cfg.Worlds[0].Name)
	assert.Equal(t, time.Hour, cfg.Spawn.BackupInterval())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
spawn:
  path: /srv/spawns.yml
  backup_every_minutes: 0
worlds:
  - name: world
    spawn: {x: 10, y: 64, z: 10}
  - name: world_nether
    spawn: {x: 0, y: 32, z: 0}
server:
  rest_port: 9000
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/spawns.yml", cfg.Spawn.Path)
	assert.Equal(t, time.Duration(0), cfg.Spawn.BackupInterval())
	assert.Equal(t, 9000, cfg.Server.RESTPort)
	require.Len(t, cfg.Worlds, 2)
	assert.Equal(t, BlockCoord{X: 10, Y: 64, Z: 10}, cfg.Worlds[0].Spawn)
	// Незаданные секции сохраняют значения по умолчанию
	assert.Equal(t, "spawn:", cfg.Redis.KeyPrefix)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  rest_port: 9000\n")
	t.Setenv("SPAWN_REST_PORT", "9100")
	t.Setenv("SPAWN_REDIS_ADDR", "redis:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.RESTPort)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestLoadFromEnvPath(t *testing.T) {
	path := writeConfig(t, "spawn:\n  path: from-env.yml\n")
	t.Setenv("SPAWN_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env.yml", cfg.Spawn.Path)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "spawn: [unterminated"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "worlds:\n  - name: a\n  - name: a\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server:\n  rest_port: 70000\n"))
	assert.Error(t, err)
}
