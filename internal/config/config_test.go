package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load(t.TempDir())
	require.NoError(t, err)

	c := s.Current()
	assert.Equal(t, "5050", c.Server.Port)
	assert.Equal(t, "sql", c.Drafts.Backend)
	assert.Equal(t, time.Second, c.Wizard.AutosaveDelay)
	assert.Equal(t, 100*time.Millisecond, c.Wizard.FocusDelay)
	assert.Equal(t, 5*time.Second, c.Wizard.StoreTimeout)
	assert.Equal(t, 10, c.Polling.MaxAttempts)
	assert.Equal(t, 3*time.Second, c.Polling.Interval)
	assert.Equal(t, 30*time.Minute, c.Sessions.IdleTimeout)
}

func TestLoadFileAndEnv(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "config"), 0o755))
	yaml := []byte("polling:\n  max_attempts: 4\n  interval: 500ms\napi:\n  base_url: http://api.internal/api\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, "config", "config.yaml"), yaml, 0o644))
	t.Setenv("SYMPTO_SERVER_PORT", "8088")

	s, err := Load(root)
	require.NoError(t, err)

	c := s.Current()
	assert.Equal(t, 4, c.Polling.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, c.Polling.Interval)
	assert.Equal(t, "http://api.internal/api", c.API.BaseURL)
	assert.Equal(t, "8088", c.Server.Port)
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "config", "config.yaml"), []byte("polling: [unclosed"), 0o644))

	_, err := Load(root)
	assert.Error(t, err)
}
