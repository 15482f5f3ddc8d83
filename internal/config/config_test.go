package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tinkerforge/red-brick-apid/internal/config"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, warnings, err := config.Load(filepath.Join(t.TempDir(), "nope.conf"))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redbrickapid.conf")
	require.NoError(t, os.WriteFile(path, []byte("socket_path = /tmp/x.sock\ndebug = true\nbogus line\n"), 0600))

	cfg, warnings, err := config.Load(path)
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
	assert.Equal(t, "/tmp/x.sock", cfg.SocketPath)
	assert.True(t, cfg.DebugLog)
}
