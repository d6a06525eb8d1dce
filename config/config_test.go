package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  port: 9000\nmodel:\n  path: /tmp/model.json\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Http.Port)
	assert.Equal(t, "/tmp/model.json", cfg.Model.Path)
	assert.Equal(t, []string{"*"}, cfg.Http.AllowedOrigins)
	assert.Equal(t, "sewing", cfg.Training.Department)
	assert.Equal(t, 0.2, cfg.Training.TestRatio)
	assert.Equal(t, int64(42), cfg.Training.Seed)
	assert.Equal(t, 100, cfg.Training.Booster.NEstimators)
	assert.Equal(t, 3, cfg.Training.Booster.MaxDepth)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.UI.APIURL)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadExplicitFileDoesNotFallBackToParent(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "cmd")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "custom.yaml"), []byte("http:\n  port: 9100\n"), 0o600))
	t.Chdir(sub)

	_, err := Load("custom.yaml")
	require.Error(t, err)
}

func TestLoadDefaultFallsBackToParent(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "cmd")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, DefaultPath), []byte("http:\n  port: 9100\n"), 0o600))
	t.Chdir(sub)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Http.Port)
}

func TestLoadDefaultMissingYieldsDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsInvalidRatio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("training:\n  test_ratio: 1.5\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test_ratio")
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http: [unterminated"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}
