package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), FileName))
	assert.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	data := `
debug = true

[bridge]
address = "ws://127.0.0.1:9000/dsn"

[favorites]
enabled = false

[hooks]
build = "1.4.15.0"
`
	assert.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	t.Setenv("RETROHOOK_BRIDGE_ADDR", "pipe:\\\\.\\pipe\\dsn")
	t.Setenv("RETROHOOK_DIALOGUE_ENABLED", "false")

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "pipe:\\\\.\\pipe\\dsn", cfg.Bridge.Address)
	assert.Equal(t, 64, cfg.Bridge.OutboundBuffer)
	assert.False(t, cfg.Dialogue.Enabled)
	assert.False(t, cfg.Favorites.Enabled)
	assert.Equal(t, "1.4.15.0", cfg.Hooks.Build)
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	assert.NoError(t, os.WriteFile(path, []byte("[bridge\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)

	assert.NoError(t, os.WriteFile(path, []byte("[bridge]\noutbound_buffer = 0\n"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)

	t.Setenv("RETROHOOK_DEBUG", "maybe")
	_, err = Load("")
	assert.Error(t, err)
}

func TestCreateLogger(t *testing.T) {
	assert.NotNil(t, CreateLogger(true, false))
	assert.NotNil(t, CreateLogger(false, true))
}
