package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_LoadDir(t *testing.T) {
	dir := t.TempDir()
	yamlBody := `description: Reviews diffs for correctness
mode: subagent
temperature: 0.2
tools:
  read: true
  edit: false
permission:
  edit: deny
  bash:
    "git diff*": allow
    "*": deny
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reviewer.yaml"), []byte(yamlBody), 0644))

	r := NewRegistry()
	require.NoError(t, r.LoadDir(dir))

	ag, err := r.Get("reviewer")
	require.NoError(t, err)
	assert.Equal(t, "Reviews diffs for correctness", ag.Description)
	assert.Equal(t, ModeSubagent, ag.Mode)
	assert.Equal(t, 0.2, ag.Temperature)
	assert.True(t, ag.Tools["read"])
	assert.False(t, ag.BuiltIn)
}

func TestRegistry_LoadDir_MissingDirIsNotError(t *testing.T) {
	r := NewRegistry()
	err := r.LoadDir(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.NoError(t, err)
}

func TestRegistry_LoadDir_IgnoresNonYAMLFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("not an agent"), 0644))

	r := NewRegistry()
	before := r.Count()
	require.NoError(t, r.LoadDir(dir))
	assert.Equal(t, before, r.Count())
}
