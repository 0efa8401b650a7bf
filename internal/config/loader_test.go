package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the opsagent config dir.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "opsagent")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), perm))
	require.NoError(t, os.Chmod(p, perm))
	return p
}

func TestLoadWithFile(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		setupTestHome(t)

		cfg, err := LoadWithFile("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("yaml overrides defaults", func(t *testing.T) {
		dir := setupTestHome(t)
		p := writeConfig(t, dir, `
server:
  port: 8088
  shutdown_timeout: 3s
safety:
  policy: "off"
  destructive: [nuke]
deploy:
  default_target: helm
github:
  default_repo: acme/backend
llm:
  provider: none
`, 0600)

		cfg, err := LoadWithFile(p)
		require.NoError(t, err)
		assert.Equal(t, 8088, cfg.Server.Port)
		assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration())
		assert.Equal(t, "off", cfg.Safety.Policy)
		assert.Equal(t, []string{"nuke"}, cfg.Safety.Destructive)
		assert.Equal(t, "helm", cfg.Deploy.DefaultTarget)
		assert.Equal(t, "acme/backend", cfg.GitHub.DefaultRepo)
		assert.Equal(t, "none", cfg.LLM.Provider)
		// untouched sections keep their defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.True(t, cfg.Kube.Enabled)
	})

	t.Run("environment wins over file", func(t *testing.T) {
		dir := setupTestHome(t)
		p := writeConfig(t, dir, "server:\n  port: 8088\n", 0600)
		t.Setenv("OPSAGENT_SERVER__PORT", "7070")
		t.Setenv("OPSAGENT_SAFETY__ALLOW_DESTROY", "true")
		t.Setenv("OPSAGENT_LLM__API_KEY", "sk-test")
		t.Setenv("OPSAGENT_SESSION__IDLE_TIMEOUT", "90")

		cfg, err := LoadWithFile(p)
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Server.Port)
		assert.True(t, cfg.Safety.AllowDestroy)
		assert.Equal(t, "sk-test", cfg.LLM.APIKey.Value())
		assert.Equal(t, 90*time.Second, cfg.Session.IdleTimeout.Duration())
	})

	t.Run("rejects world readable file", func(t *testing.T) {
		dir := setupTestHome(t)
		p := writeConfig(t, dir, "server:\n  port: 8088\n", 0644)

		_, err := LoadWithFile(p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insecure config file permissions")
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		dir := setupTestHome(t)
		p := writeConfig(t, dir, "safety:\n  policy: maybe\nserver:\n  port: 0\n", 0600)

		_, err := LoadWithFile(p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "safety.policy")
		assert.Contains(t, err.Error(), "server.port")
	})

	t.Run("rejects path outside config dirs", func(t *testing.T) {
		setupTestHome(t)
		_, err := LoadWithFile(filepath.Join(t.TempDir(), "config.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config path validation failed")
	})
}

func TestValidateConfigPath(t *testing.T) {
	dir := setupTestHome(t)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"user config dir", filepath.Join(dir, "config.yaml"), false},
		{"nested user config", filepath.Join(dir, "profiles", "prod.yaml"), false},
		{"system config dir", "/etc/opsagent/config.yaml", false},
		{"sibling with shared prefix", "/etc/opsagent../etc/passwd", true},
		{"traversal out of config dir", filepath.Join(dir, "..", "..", "..", "etc", "passwd"), true},
		{"tmp", "/tmp/config.yaml", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfigPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadBytes(t *testing.T) {
	cfg, err := LoadBytes([]byte("llm:\n  provider: openai\n  api_key: sk-abc\n"))
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.True(t, cfg.LLM.APIKey.IsSet())

	_, err = LoadBytes([]byte("llm:\n  provider: openai\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.api_key is required")
}
