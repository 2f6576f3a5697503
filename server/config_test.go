package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	def := DefaultConfig()
	assert.Equal(t, def.Port, cfg.Port)
	assert.Equal(t, def.Spawn, cfg.Spawn)
	assert.Equal(t, def.Sprites, cfg.Sprites)
	assert.Equal(t, def.Game, cfg.Game)
	assert.Equal(t, def.Net, cfg.Net)
	assert.False(t, cfg.Intake.StopOnEmptyHandshake)
}

func TestLoadConfigFlagsAndEnv(t *testing.T) {
	t.Setenv("CHASINGYOU_LOG_LEVEL", "debug")
	t.Setenv("CHASINGYOU_GAME_TAG_RADIUS", "25")

	cfg, err := LoadConfig([]string{"--port", "12345", "--fuse", "5s", "--host", "127.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, 12345, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.Game.Fuse)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 25, cfg.Game.TagRadius)
	assert.Equal(t, "127.0.0.1:12345", cfg.Addr())
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "party.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 4000
sprites: [red, blue]
intake:
  stop_on_empty_handshake: true
broadcast:
  min_interval: 20ms
game:
  fuse: 30s
`), 0o600))

	cfg, err := LoadConfig([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, []string{"red", "blue"}, cfg.Sprites)
	assert.True(t, cfg.Intake.StopOnEmptyHandshake)
	assert.Equal(t, 20*time.Millisecond, cfg.Broadcast.MinInterval)
	assert.Equal(t, 30*time.Second, cfg.Game.Fuse)
	assert.Equal(t, 10, cfg.Game.Step, "unset keys keep their defaults")
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	_, err := LoadConfig([]string{"--port", "70000"})
	assert.Error(t, err)

	_, err = LoadConfig([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)

	_, err = LoadConfig([]string{"--no-such-flag"})
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Sprites = nil
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Spawn = SpawnConfig{Min: 500, Max: 100}
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Sprites = []string{"red", "red"}
	assert.Error(t, cfg.Validate())
}
