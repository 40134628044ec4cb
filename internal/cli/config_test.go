package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nestc.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
[target]
vector_bits = 256

[runtime]
workers = 8

[store]
db = "nestc.db"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Target.VectorBits)
	assert.Equal(t, 8, cfg.Runtime.Workers)
	assert.Equal(t, "nestc.db", cfg.Store.DB)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "[runtime]\nthreads = 2\n", "unknown keys: runtime.threads"},
		{"negative vector bits", "[target]\nvector_bits = -128\n", "target.vector_bits must be non-negative"},
		{"negative workers", "[runtime]\nworkers = -1\n", "runtime.workers must be non-negative"},
		{"malformed", "[target\n", "failed to parse TOML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestResolveConfig_MissingDefaultIsEmpty(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := resolveConfig("")
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)
}

func TestResolveConfig_ReadsDefaultFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("[runtime]\nworkers = 3\n"), 0o644))

	cfg, err := resolveConfig("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Runtime.Workers)
}

func TestRootOptionsFallBackToConfig(t *testing.T) {
	opts := &RootOptions{Config: Config{Runtime: RuntimeConfig{Workers: 4}, Store: StoreConfig{DB: "a.db"}}}
	assert.Equal(t, 4, opts.workers(0))
	assert.Equal(t, 2, opts.workers(2))
	assert.Equal(t, "a.db", opts.dbPath(""))
	assert.Equal(t, "b.db", opts.dbPath("b.db"))
}
