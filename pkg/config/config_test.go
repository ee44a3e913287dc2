package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, BackendComprehend, cfg.Backend)
	assert.Equal(t, "en", cfg.Language)
	assert.Equal(t, 4000, cfg.ChunkSize)
	assert.Equal(t, 0.97, cfg.MinScore)
	assert.Equal(t, 10, cfg.MaxEntities)
	assert.Equal(t, "https://en.wikipedia.org/wiki/", cfg.SourceBaseURL)
	assert.True(t, cfg.ASCII)
	assert.Empty(t, cfg.Cache)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_Flags(t *testing.T) {
	cfg, err := Load(newFlags(t, "--backend", "prose", "--max-entities", "3", "--ascii=false"))
	require.NoError(t, err)

	assert.Equal(t, BackendProse, cfg.Backend)
	assert.Equal(t, 3, cfg.MaxEntities)
	assert.False(t, cfg.ASCII)
	assert.Equal(t, 3, cfg.AggregateConfig().MaxEntities)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("ENTITY_META_MIN_SCORE", "0.5")
	t.Setenv("ENTITY_META_CHUNK_SIZE", "100")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.MinScore)
	assert.Equal(t, 100, cfg.ChunkerConfig().Size)
	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
}

func TestLoad_FlagBeatsEnv(t *testing.T) {
	t.Setenv("ENTITY_META_BACKEND", "openai")

	cfg, err := Load(newFlags(t, "--backend", "prose"))
	require.NoError(t, err)
	assert.Equal(t, BackendProse, cfg.Backend)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entity-meta.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: prose\nmax-entities: 5\nsource-base-url: https://de.wikipedia.org/wiki/\n"), 0644))

	cfg, err := Load(newFlags(t, "--config", path))
	require.NoError(t, err)

	assert.Equal(t, BackendProse, cfg.Backend)
	assert.Equal(t, 5, cfg.MaxEntities)
	assert.Equal(t, "https://de.wikipedia.org/wiki/", cfg.SourceBaseURL)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(newFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := [][]string{
		{"--backend", "spacy"},
		{"--chunk-size", "0"},
		{"--min-score", "1.5"},
		{"--max-entities", "0"},
		{"--language", ""},
	}

	for _, args := range tests {
		_, err := Load(newFlags(t, args...))
		assert.Error(t, err, "%v", args)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ENTITY_META_MAX_ENTITIES=2\nENTITY_META_LANGUAGE=de\n"), 0644))
	t.Cleanup(func() {
		os.Unsetenv("ENTITY_META_MAX_ENTITIES")
		os.Unsetenv("ENTITY_META_LANGUAGE")
	})

	cfg, err := Load(newFlags(t, "--env-file", path))
	require.NoError(t, err)

	assert.Equal(t, path, cfg.EnvFile)
	assert.Equal(t, 2, cfg.MaxEntities)
	assert.Equal(t, "de", cfg.Language)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	cfg, err := Load(newFlags(t, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.MaxEntities)
}
