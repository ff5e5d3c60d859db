package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vmbundle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "bundles.json", cfg.Output)
	assert.Equal(t, "strict", cfg.Format)
	assert.Empty(t, cfg.DB)
	assert.False(t, cfg.Verbose)
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
output: out/bundles.json
format: compat
db: bundles.db
verbose: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "out/bundles.json", cfg.Output)
	assert.Equal(t, "compat", cfg.Format)
	assert.Equal(t, "bundles.db", cfg.DB)
	assert.True(t, cfg.Verbose)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "db: bundles.db\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bundles.json", cfg.Output)
	assert.Equal(t, "strict", cfg.Format)
	assert.Equal(t, "bundles.db", cfg.DB)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeConfig(t, "ouput: typo.json\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
