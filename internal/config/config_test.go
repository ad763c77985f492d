package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penguin-run/penguin/pkg/types"
)

func withIsolatedHome(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	t.Cleanup(func() { os.Setenv("HOME", oldHome) })
	return tmpDir
}

func writeProjectConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	configDir := filepath.Join(dir, ".penguin")
	require.NoError(t, os.MkdirAll(configDir, 0755))
	path := filepath.Join(configDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	withIsolatedHome(t)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 150000, cfg.ContextWindow.TotalTokens)
	assert.Equal(t, 5000, cfg.Session.MaxMessagesPerSession)
	assert.True(t, cfg.Checkpoint.Enabled)
	assert.Equal(t, 50, cfg.Engine.MaxIterations)
	assert.Equal(t, 3, cfg.Engine.Retry.MaxAttempts)
}

func TestLoad_ProjectOverridesDefault(t *testing.T) {
	withIsolatedHome(t)
	project := t.TempDir()

	writeProjectConfig(t, project, "penguin.json", `{
		"context_window": {"total_tokens": 64000},
		"session": {"max_messages_per_session": 100},
		"engine": {"max_iterations": 10}
	}`)

	cfg, err := Load(project)
	require.NoError(t, err)

	assert.Equal(t, 64000, cfg.ContextWindow.TotalTokens)
	assert.Equal(t, 100, cfg.Session.MaxMessagesPerSession)
	assert.Equal(t, 10, cfg.Engine.MaxIterations)
	// Untouched keys still get defaults.
	assert.True(t, cfg.Checkpoint.Enabled)
}

func TestLoad_JSONCComments(t *testing.T) {
	withIsolatedHome(t)
	project := t.TempDir()

	writeProjectConfig(t, project, "penguin.jsonc", `{
		// total window size
		"context_window": {"total_tokens": 32000},
		/* checkpoint
		   frequency */
		"checkpoint": {"frequency": 3}
	}`)

	cfg, err := Load(project)
	require.NoError(t, err)

	assert.Equal(t, 32000, cfg.ContextWindow.TotalTokens)
	assert.Equal(t, 3, cfg.Checkpoint.Frequency)
}

func TestLoad_GlobalThenProjectPriority(t *testing.T) {
	home := withIsolatedHome(t)
	project := t.TempDir()

	globalDir := filepath.Join(home, ".config", "penguin")
	require.NoError(t, os.MkdirAll(globalDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(globalDir, "penguin.json"), []byte(`{
		"context_window": {"total_tokens": 50000},
		"session": {"max_messages_per_session": 10}
	}`), 0644))

	writeProjectConfig(t, project, "penguin.json", `{
		"session": {"max_messages_per_session": 20}
	}`)

	cfg, err := Load(project)
	require.NoError(t, err)

	// Project overrides session config...
	assert.Equal(t, 20, cfg.Session.MaxMessagesPerSession)
	// ...but global values not touched by project config survive.
	assert.Equal(t, 50000, cfg.ContextWindow.TotalTokens)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	withIsolatedHome(t)
	project := t.TempDir()

	writeProjectConfig(t, project, "penguin.json", `{"context_window": {"total_tokens": 10000}}`)

	os.Setenv("PENGUIN_CONTEXT_WINDOW", "77000")
	defer os.Unsetenv("PENGUIN_CONTEXT_WINDOW")

	cfg, err := Load(project)
	require.NoError(t, err)

	assert.Equal(t, 77000, cfg.ContextWindow.TotalTokens)
}

func TestLoad_ProviderAPIKeyFromEnv(t *testing.T) {
	withIsolatedHome(t)

	os.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	defer os.Unsetenv("ANTHROPIC_API_KEY")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	require.Contains(t, cfg.Provider, "anthropic")
	assert.Equal(t, "sk-ant-test", cfg.Provider["anthropic"].APIKey)
}

func TestLoad_PermissionConfig(t *testing.T) {
	withIsolatedHome(t)
	project := t.TempDir()

	writeProjectConfig(t, project, "penguin.json", `{
		"permission": {
			"edit": "allow",
			"bash": {"rm": "deny"},
			"doom_loop": "ask"
		}
	}`)

	cfg, err := Load(project)
	require.NoError(t, err)

	require.NotNil(t, cfg.Permission)
	assert.Equal(t, "allow", cfg.Permission.Edit)
	assert.Equal(t, "ask", cfg.Permission.DoomLoop)
	bashPerm, ok := cfg.Permission.Bash.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "deny", bashPerm["rm"])
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "penguin.json")

	cfg := &types.Config{
		ContextWindow: types.ContextWindowConfig{TotalTokens: 99000},
	}
	require.NoError(t, Save(cfg, path))

	withIsolatedHome(t)
	loaded, err := Load("")
	require.NoError(t, err)
	_ = loaded // Save/Load use different layers; just confirm Save didn't error and wrote a file.

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "99000")
}

func TestMergeConfig_AgentToolsMerge(t *testing.T) {
	target := &types.Config{
		Agent: map[string]types.AgentConfig{
			"coder": {Tools: map[string]bool{"bash": true}},
		},
	}
	source := &types.Config{
		Agent: map[string]types.AgentConfig{
			"coder": {Tools: map[string]bool{"edit": true}},
		},
	}

	mergeConfig(target, source)

	// Source replaces the whole AgentConfig for a given key (last-loaded wins).
	assert.True(t, target.Agent["coder"].Tools["edit"])
}
