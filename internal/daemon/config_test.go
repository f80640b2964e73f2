package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MQFS_CONFIG_DIR", dir)

	assert.Equal(t, dir, ConfigDir())
	assert.Equal(t, filepath.Join(dir, "settings.yaml"), SettingsPath())
	assert.Equal(t, filepath.Join(dir, "mqfs.log"), LogPath())

	t.Setenv("MQFS_LOG", "/tmp/elsewhere.log")
	assert.Equal(t, "/tmp/elsewhere.log", LogPath())
}

func TestInitConfigDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cfg")
	t.Setenv("MQFS_CONFIG_DIR", dir)

	require.NoError(t, InitConfigDir())

	raw, err := os.ReadFile(SettingsPath())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "logging: info")

	// A second init leaves an edited file alone.
	require.NoError(t, os.WriteFile(SettingsPath(), []byte("logging: debug\n"), 0600))
	require.NoError(t, InitConfigDir())
	raw, err = os.ReadFile(SettingsPath())
	require.NoError(t, err)
	assert.Equal(t, "logging: debug\n", string(raw))
}

func TestLoadSettings(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		t.Setenv("MQFS_CONFIG_DIR", filepath.Join(t.TempDir(), "nowhere"))

		s, err := LoadSettings()
		require.NoError(t, err)
		assert.Equal(t, "info", s.Logging)
		assert.Equal(t, []string{".*"}, s.Hide)
		assert.Zero(t, s.Port)
		assert.False(t, s.MuttWorkaroundEnabled())
		assert.Zero(t, s.HeaderBudget)
	})

	t.Run("values are read", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("MQFS_CONFIG_DIR", dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte(
			"logging: debug\nhide:\n  - \"*.bak\"\nport: 2049\nmutt-workaround: true\nheader-budget: 2048\n",
		), 0600))

		s, err := LoadSettings()
		require.NoError(t, err)
		assert.Equal(t, "debug", s.Logging)
		assert.Equal(t, []string{"*.bak"}, s.Hide)
		assert.Equal(t, 2049, s.Port)
		assert.True(t, s.MuttWorkaroundEnabled())
		assert.Equal(t, 2048, s.HeaderBudget)
	})

	t.Run("an explicit empty hide list survives defaults", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("MQFS_CONFIG_DIR", dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte(
			"hide: []\n",
		), 0600))

		s, err := LoadSettings()
		require.NoError(t, err)
		assert.Empty(t, s.Hide)
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("MQFS_CONFIG_DIR", dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte(
			"logging: [unclosed\n",
		), 0600))

		_, err := LoadSettings()
		assert.Error(t, err)
	})
}
